package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Env holds the process-level settings read from the environment; the
// rest of the configuration lives in the YAML file Env points at.
type Env struct {
	ConfigFile string `envconfig:"SMPPGW_CONFIG"    default:"smppgw.yml"`
	LogLevel   string `envconfig:"SMPPGW_LOG_LEVEL"`
}

// Config is the full gateway configuration.
type Config struct {
	SMPPPeers  []Peer   `yaml:"smpp_peers"`
	SMPPServer Server   `yaml:"smpp_server"`
	HTTPServer HTTP     `yaml:"http_server"`
	Logging    Logging  `yaml:"logging"`
	Database   Database `yaml:"database"`
	MaxPDUSize int      `yaml:"max_pdu_size"` // octets, cap on inbound command_length
}

// Peer describes one upstream SMPP peer this gateway binds to.
type Peer struct {
	ID                  string `yaml:"id"`
	IPAddress           string `yaml:"ipaddress"`
	Port                int    `yaml:"port"`
	SystemID            string `yaml:"system_id"`
	Password            string `yaml:"password"`
	SystemType          string `yaml:"system_type"`
	SourceAddrTON       byte   `yaml:"source_addr_ton"`
	SourceAddrNPI       byte   `yaml:"source_addr_npi"`
	DestAddrTON         byte   `yaml:"dest_addr_ton"`
	DestAddrNPI         byte   `yaml:"dest_addr_npi"`
	ReconnectInterval   int    `yaml:"reconnect_interval"`    // ms
	EnquireLinkInterval int    `yaml:"enquire_link_interval"` // s
	ResponseTimeout     int    `yaml:"response_timeout"`      // s
	RouteRegex          string `yaml:"route_regex"`
	Default             bool   `yaml:"default"`

	// RouteRE is the compiled route_regex, nil when absent or invalid.
	RouteRE *regexp.Regexp `yaml:"-"`
}

// Addr returns the peer's dial target.
func (p *Peer) Addr() string { return fmt.Sprintf("%s:%d", p.IPAddress, p.Port) }

// ReconnectEvery returns the reconnect interval as a duration.
func (p *Peer) ReconnectEvery() time.Duration {
	return time.Duration(p.ReconnectInterval) * time.Millisecond
}

// EnquireEvery returns the keepalive interval as a duration.
func (p *Peer) EnquireEvery() time.Duration {
	return time.Duration(p.EnquireLinkInterval) * time.Second
}

// RespTimeout returns the per-request response deadline as a duration.
func (p *Peer) RespTimeout() time.Duration {
	return time.Duration(p.ResponseTimeout) * time.Second
}

// Credential is one (system_id, password) pair accepted by the local
// SMPP server. Password may be plaintext or a bcrypt hash.
type Credential struct {
	SystemID string `yaml:"system_id"`
	Password string `yaml:"password"`
}

// Server configures the local SMPP server.
type Server struct {
	BindIP string       `yaml:"bind_ip"`
	Port   int          `yaml:"port"`
	Auth   []Credential `yaml:"auth"`
}

// Addr returns the SMPP server listen address.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.BindIP, s.Port) }

// HTTP configures the HTTP ingress and the SMSC egress target.
type HTTP struct {
	BindIP          string `yaml:"bind_ip"`
	Port            int    `yaml:"port"`
	KamailioURL     string `yaml:"kamailio_url"`
	PeerWaitTimeout int    `yaml:"peer_wait_timeout"` // s, wait for any bound peer
}

// Addr returns the HTTP listen address.
func (h *HTTP) Addr() string { return fmt.Sprintf("%s:%d", h.BindIP, h.Port) }

// WaitTimeout returns the bound-peer wait budget as a duration.
func (h *HTTP) WaitTimeout() time.Duration {
	return time.Duration(h.PeerWaitTimeout) * time.Second
}

// Logging configures the log sink.
type Logging struct {
	FilePath       string `yaml:"file_path"`
	MaxSize        string `yaml:"max_size"` // e.g. "20m"
	MaxFiles       int    `yaml:"max_files"`
	ConsoleEnabled bool   `yaml:"console_enabled"`
	LogLevel       string `yaml:"log_level"`
}

// MaxSizeMB parses max_size ("20m", "1g", bare megabytes) into megabytes.
func (l *Logging) MaxSizeMB() int {
	s := strings.ToLower(strings.TrimSpace(l.MaxSize))
	if s == "" {
		return 20
	}
	mult := 1
	switch {
	case strings.HasSuffix(s, "g"):
		mult, s = 1024, strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "k"):
		// lumberjack's floor is one megabyte
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 20
	}
	return n * mult
}

// Database configures the optional CDR sink. An empty URL disables it.
type Database struct {
	URL string `yaml:"url"`
}

// Load reads the environment and the YAML config file, applies defaults,
// validates, and compiles route regexes. Any error here is fatal to the
// process.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, skipping", slog.Any("error", err))
	}

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	raw, err := os.ReadFile(env.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", env.ConfigFile, err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", env.ConfigFile, err)
	}
	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}
	return cfg, nil
}

// Parse unmarshals, defaults and validates a YAML config document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.compileRoutes()
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.SMPPPeers) == 0 {
		return fmt.Errorf("no smpp_peers configured")
	}
	seen := make(map[string]bool, len(c.SMPPPeers))
	for i := range c.SMPPPeers {
		p := &c.SMPPPeers[i]
		if p.ID == "" {
			return fmt.Errorf("smpp_peers[%d]: missing id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("smpp_peers: duplicate id %q", p.ID)
		}
		seen[p.ID] = true
		if p.IPAddress == "" || p.Port == 0 {
			return fmt.Errorf("peer %s: missing ipaddress/port", p.ID)
		}
		if p.SystemID == "" {
			return fmt.Errorf("peer %s: missing system_id", p.ID)
		}
	}
	if c.HTTPServer.KamailioURL == "" {
		return fmt.Errorf("http_server: missing kamailio_url")
	}
	if c.HTTPServer.Port == 0 {
		return fmt.Errorf("http_server: missing port")
	}
	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.SMPPPeers {
		p := &c.SMPPPeers[i]
		if p.SourceAddrTON == 0 && p.SourceAddrNPI == 0 {
			p.SourceAddrTON, p.SourceAddrNPI = 1, 1
		}
		if p.DestAddrTON == 0 && p.DestAddrNPI == 0 {
			p.DestAddrTON, p.DestAddrNPI = 1, 1
		}
		if p.ReconnectInterval <= 0 {
			p.ReconnectInterval = 10000
		}
		if p.EnquireLinkInterval <= 0 {
			p.EnquireLinkInterval = 30
		}
		if p.ResponseTimeout <= 0 {
			p.ResponseTimeout = 10
		}
	}
	if c.SMPPServer.Port == 0 {
		c.SMPPServer.Port = 2775
	}
	if c.HTTPServer.PeerWaitTimeout <= 0 {
		c.HTTPServer.PeerWaitTimeout = 15
	}
	if c.MaxPDUSize <= 0 {
		c.MaxPDUSize = 64 * 1024
	}
	if c.Logging.MaxFiles <= 0 {
		c.Logging.MaxFiles = 5
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}
}

// compileRoutes compiles each peer's route_regex once. An invalid regex
// is logged here and disqualifies the peer from regex routing only; it
// can still serve as the default peer.
func (c *Config) compileRoutes() {
	for i := range c.SMPPPeers {
		p := &c.SMPPPeers[i]
		if p.RouteRegex == "" {
			continue
		}
		re, err := regexp.Compile(p.RouteRegex)
		if err != nil {
			slog.Warn("invalid route_regex, peer excluded from regex routing",
				slog.String("peer_id", p.ID),
				slog.String("route_regex", p.RouteRegex),
				slog.Any("error", err))
			continue
		}
		p.RouteRE = re
	}
}
