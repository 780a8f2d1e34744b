package egress

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teleforge/smppgw/internal/metrics"
	"github.com/teleforge/smppgw/pkg/smpp"
)

// ErrEgressFailed marks an egress call that exhausted every attempt.
var ErrEgressFailed = errors.New("egress failed")

// Message is one inbound SMS (mobile-originated or delivery receipt)
// headed for the SMSC. Short holds the raw short_message octets.
type Message struct {
	From       string
	To         string
	Short      []byte
	DataCoding byte
	EsmClass   byte
}

// IsReceipt reports whether the message is a delivery receipt.
func (m Message) IsReceipt() bool { return m.EsmClass&smpp.EsmClassReceipt != 0 }

// Config tunes the forwarder; zero values take the documented defaults.
type Config struct {
	URL            string
	Attempts       int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
}

// Forwarder delivers inbound messages to the SMSC over HTTP with bounded
// retry: 3 attempts, 5 s per attempt, 1 s pause in between.
type Forwarder struct {
	cfg    Config
	client *http.Client
}

// NewForwarder creates an egress forwarder for the configured SMSC URL.
func NewForwarder(cfg Config) *Forwarder {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Forwarder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.AttemptTimeout},
	}
}

// Forward posts the message to the SMSC. Any 2xx counts as delivered;
// transport errors and other statuses are retried until the attempt
// budget runs out, then ErrEgressFailed is returned.
func (f *Forwarder) Forward(ctx context.Context, msg Message) error {
	target := f.buildURL(msg)
	var lastErr error

	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		lastErr = f.attempt(ctx, target)
		if lastErr == nil {
			metrics.EgressAttemptsTotal.WithLabelValues("ok").Inc()
			return nil
		}
		metrics.EgressAttemptsTotal.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "egress attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", f.cfg.Attempts),
			slog.Any("error", lastErr))

		if attempt < f.cfg.Attempts {
			select {
			case <-time.After(f.cfg.RetryDelay):
			case <-ctx.Done():
				metrics.EgressFailuresTotal.Inc()
				return fmt.Errorf("%w: %v", ErrEgressFailed, ctx.Err())
			}
		}
	}

	metrics.EgressFailuresTotal.Inc()
	return fmt.Errorf("%w after %d attempts: %v", ErrEgressFailed, f.cfg.Attempts, lastErr)
}

func (f *Forwarder) attempt(ctx context.Context, target string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("building egress request: %w", err)
	}
	req.Header.Set("User-Agent", "smppgw/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("SMSC returned status %d", resp.StatusCode)
	}
	return nil
}

// buildURL renders the egress query. The payload travels as text: UTF-8
// when data_coding is 0, hex otherwise so downstream can decode against
// dcs. esm_class and the receipt flag only appear when esm_class is
// non-zero, keeping plain MO traffic on the legacy query shape.
func (f *Forwarder) buildURL(msg Message) string {
	q := url.Values{}
	q.Set("from", msg.From)
	q.Set("to", msg.To)
	q.Set("dcs", strconv.Itoa(int(msg.DataCoding)))
	if msg.DataCoding == 0 {
		q.Set("text", string(msg.Short))
	} else {
		q.Set("text", hex.EncodeToString(msg.Short))
	}
	if msg.EsmClass != 0 {
		q.Set("esm_class", strconv.Itoa(int(msg.EsmClass)))
		if msg.IsReceipt() {
			q.Set("receipt", "1")
		}
	}

	sep := "?"
	if strings.Contains(f.cfg.URL, "?") {
		sep = "&"
	}
	return f.cfg.URL + sep + q.Encode()
}
