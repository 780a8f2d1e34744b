package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teleforge/smppgw/internal/cdr"
	"github.com/teleforge/smppgw/internal/config"
	"github.com/teleforge/smppgw/internal/logging"
	"github.com/teleforge/smppgw/internal/peer"
	"github.com/teleforge/smppgw/pkg/smpp"
)

// Server is the HTTP ingress: the SMSC submits MT traffic here and it
// comes out as submit_sm on a routed peer session.
type Server struct {
	cfg        config.HTTP
	pool       *peer.Pool
	router     *peer.Router
	recorder   cdr.Recorder
	httpServer *http.Server
	stopOnce   sync.Once
}

// NewServer creates the ingress server.
func NewServer(cfg config.HTTP, pool *peer.Pool, router *peer.Router, recorder cdr.Recorder) *Server {
	if recorder == nil {
		recorder = cdr.Nop{}
	}
	return &Server{
		cfg:      cfg,
		pool:     pool,
		router:   router,
		recorder: recorder,
	}
}

// Handler builds the ingress mux; exposed for tests. Routes are plain
// paths guarded by an explicit GET/HEAD method check.
func (s *Server) Handler() http.Handler {
	getOnly := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Allow", "GET, HEAD")
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
	mux := http.NewServeMux()
	mux.Handle("/send_sms", getOnly(http.HandlerFunc(s.handleSendSMS)))
	mux.Handle("/metrics", getOnly(promhttp.Handler()))
	return mux
}

// ListenAndServe starts the HTTP server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	if s.httpServer != nil {
		return errors.New("http server already started")
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // waits for bound peers can take a while
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	slog.Info("HTTP server listening", slog.String("address", s.cfg.Addr()))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server ListenAndServe error", slog.Any("error", err))
		return err
	}
	slog.Info("HTTP server stopped.")
	return nil
}

// handleSendSMS implements GET /send_sms.
func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	ctx := logging.ContextWithReqID(r.Context(), uuid.NewString())

	q := r.URL.Query()
	from, to, text := q.Get("from"), q.Get("to"), q.Get("text")

	var missing []string
	for _, p := range []struct{ name, value string }{
		{"from", from}, {"to", to}, {"text", text},
	} {
		if p.value == "" {
			missing = append(missing, p.name)
		}
	}
	if len(missing) > 0 {
		slog.WarnContext(ctx, "send_sms rejected, missing parameters", slog.Any("missing", missing))
		http.Error(w, "Error: missing parameters: "+strings.Join(missing, ", "), http.StatusBadRequest)
		return
	}

	dcs := 0
	if v := q.Get("dcs"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 || parsed > 255 {
			http.Error(w, "Error: invalid dcs parameter", http.StatusBadRequest)
			return
		}
		dcs = parsed
	}

	slog.InfoContext(ctx, "send_sms request",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("dcs", dcs))

	if !s.pool.WaitForAnyBound(ctx, s.cfg.WaitTimeout()) {
		slog.WarnContext(ctx, "no SMPP peer became bound in time")
		http.Error(w, "No SMPP peer available", http.StatusServiceUnavailable)
		return
	}

	sess := s.router.Route(to)
	if sess == nil {
		slog.WarnContext(ctx, "no route for destination", slog.String("to", to))
		http.Error(w, "No SMPP peer available", http.StatusServiceUnavailable)
		return
	}
	ctx = logging.ContextWithPeerID(ctx, sess.ID())

	pc := sess.Config()
	var sm smpp.SubmitSM
	sm.SourceAddrTON = pc.SourceAddrTON
	sm.SourceAddrNPI = pc.SourceAddrNPI
	sm.SourceAddr = from
	sm.DestAddrTON = pc.DestAddrTON
	sm.DestAddrNPI = pc.DestAddrNPI
	sm.DestAddr = to
	sm.RegisteredDelivery = 1 // ask the peer for delivery receipts
	sm.DataCoding = byte(dcs)
	sm.ShortMessage = []byte(text)

	resp, err := sess.Submit(ctx, sm)

	rec := cdr.CDR{
		ID:         uuid.NewString(),
		Direction:  cdr.DirectionMT,
		PeerID:     sess.ID(),
		From:       from,
		To:         to,
		DataCoding: byte(dcs),
		OccurredAt: time.Now(),
	}

	switch {
	case errors.Is(err, peer.ErrResponseTimeout):
		rec.Status = "timeout"
		slog.ErrorContext(ctx, "submit_sm response timeout")
		http.Error(w, "Error: SMPP response timeout", http.StatusGatewayTimeout)
	case errors.Is(err, peer.ErrNotBound), errors.Is(err, peer.ErrConnectionClosed):
		rec.Status = "no_peer"
		slog.WarnContext(ctx, "peer lost between routing and submit", slog.Any("error", err))
		http.Error(w, "No SMPP peer available", http.StatusServiceUnavailable)
	case err != nil:
		rec.Status = "error"
		slog.ErrorContext(ctx, "submit_sm failed", slog.Any("error", err))
		http.Error(w, "Error: SMPP submit_sm failed", http.StatusInternalServerError)
	case resp.Header.Status != smpp.StatusOK:
		rec.Status = smpp.StatusText(resp.Header.Status)
		slog.ErrorContext(ctx, "submit_sm rejected by peer",
			slog.String("status", smpp.StatusText(resp.Header.Status)))
		http.Error(w, fmt.Sprintf("Error: SMPP submit_sm failed (%d)", resp.Header.Status), http.StatusInternalServerError)
	default:
		msgID := ""
		if body, ok := resp.Body.(*smpp.SubmitSMResp); ok {
			msgID = body.MessageID
		}
		rec.Status = "ok"
		rec.MessageID = msgID
		slog.InfoContext(ctx, "submit_sm accepted by peer", slog.String("message_id", msgID))
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK - message_id=%s", msgID)
	}
	s.recorder.Record(ctx, rec)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.httpServer != nil {
			s.httpServer.SetKeepAlivesEnabled(false)
			err = s.httpServer.Shutdown(ctx)
		}
	})
	return err
}
