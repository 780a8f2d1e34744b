package smppserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/teleforge/smppgw/internal/auth"
	"github.com/teleforge/smppgw/internal/config"
	"github.com/teleforge/smppgw/internal/egress"
	"github.com/teleforge/smppgw/internal/logging"
	"github.com/teleforge/smppgw/internal/metrics"
	"github.com/teleforge/smppgw/pkg/smpp"
)

// ServerSystemID is the system_id this gateway announces in bind responses.
const ServerSystemID = "SMPP-GATEWAY"

// bindState tracks what a connected ESME is allowed to do.
type bindState int

const (
	stateUnbound bindState = iota
	stateBoundTX
	stateBoundRX
	stateBoundTRX
	stateClosed
)

func (s bindState) canSubmit() bool { return s == stateBoundTX || s == stateBoundTRX }

// Forwarder hands accepted messages to the HTTP egress.
type Forwarder interface {
	Forward(ctx context.Context, msg egress.Message) error
}

// session holds per-connection state for one accepted ESME.
type session struct {
	conn     net.Conn
	writer   *bufio.Writer
	writeMu  sync.Mutex
	state    bindState
	systemID string
	boundAt  time.Time
}

// Server is the local SMPP server accepting ESME binds and submit_sm.
type Server struct {
	cfg       config.Server
	creds     *auth.Store
	forwarder Forwarder
	maxPDU    uint32

	listener net.Listener
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates the SMPP server.
func NewServer(cfg config.Server, creds *auth.Store, forwarder Forwarder, maxPDU uint32) *Server {
	if forwarder == nil {
		panic("forwarder cannot be nil for SMPP server")
	}
	return &Server{
		cfg:       cfg,
		creds:     creds,
		forwarder: forwarder,
		maxPDU:    maxPDU,
		shutdown:  make(chan struct{}),
	}
}

// Addr returns the bound listen address, valid once ListenAndServe has
// started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr()
	}
	return s.listener.Addr().String()
}

// Listen binds the TCP listener without serving yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("net.Listen %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	slog.Info("SMPP server listening", slog.String("address", ln.Addr().String()))
	return nil
}

// ListenAndServe accepts TCP connections and handles SMPP sessions until
// Shutdown.
func (s *Server) ListenAndServe() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return s.Serve()
}

// Serve runs the accept loop over an already bound listener.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				slog.Error("accept failed", slog.Any("error", err))
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}

		logCtx := logging.ContextWithRemoteAddr(context.Background(), conn.RemoteAddr().String())
		slog.InfoContext(logCtx, "accepted SMPP connection")

		ss := &session{conn: conn, writer: bufio.NewWriter(conn)}
		s.wg.Add(1)
		go s.handleSession(logCtx, ss)
	}
}

// Shutdown stops accepting, closes the listener and waits for handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleSession reads and processes PDUs for a single connection.
func (s *Server) handleSession(ctx context.Context, ss *session) {
	defer func() {
		ss.state = stateClosed
		_ = ss.conn.Close()
		slog.InfoContext(ctx, "closed SMPP client connection")
		s.wg.Done()
	}()

	r := bufio.NewReader(ss.conn)
	for {
		p, err := smpp.Read(r, s.maxPDU)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				slog.InfoContext(ctx, "client closed connection")
			case errors.Is(err, smpp.ErrMalformed):
				slog.WarnContext(ctx, "malformed PDU from client, closing", slog.Any("error", err))
			case errors.Is(err, net.ErrClosed):
			default:
				slog.WarnContext(ctx, "error reading PDU", slog.Any("error", err))
			}
			return
		}

		logCtx := logging.ContextWithPDUInfo(ctx, p.CommandName(), p.Header.Sequence)
		if ss.systemID != "" {
			logCtx = logging.ContextWithSystemID(logCtx, ss.systemID)
		}

		if closed := s.handlePDU(logCtx, ss, p); closed {
			return
		}

		ss.writeMu.Lock()
		err = ss.writer.Flush()
		ss.writeMu.Unlock()
		if err != nil {
			slog.WarnContext(logCtx, "error flushing writer", slog.Any("error", err))
			return
		}
	}
}

// handlePDU dispatches one PDU; the return value requests connection
// close.
func (s *Server) handlePDU(ctx context.Context, ss *session, p *smpp.PDU) bool {
	switch body := p.Body.(type) {
	case *smpp.Bind:
		return s.handleBind(ctx, ss, p, body)

	case *smpp.SubmitSM:
		if !ss.state.canSubmit() {
			slog.WarnContext(ctx, "submit_sm in invalid bind state")
			s.write(ctx, ss, smpp.NewGenericNack(p.Header.Sequence, smpp.StatusInvBndSts))
			return false
		}
		s.handleSubmitSM(ctx, ss, p.Header.Sequence, body)
		return false

	case *smpp.Empty:
		switch p.Header.ID {
		case smpp.CmdEnquireLink:
			slog.DebugContext(ctx, "enquire_link from client")
			s.write(ctx, ss, smpp.NewEnquireLinkResp(p.Header.Sequence))
			return false
		case smpp.CmdUnbind:
			slog.InfoContext(ctx, "unbind from client")
			s.write(ctx, ss, smpp.NewUnbindResp(p.Header.Sequence))
			s.flush(ctx, ss)
			return true
		default:
			s.write(ctx, ss, smpp.NewGenericNack(p.Header.Sequence, smpp.StatusInvBndSts))
			return false
		}

	case *smpp.Raw:
		slog.WarnContext(ctx, "unknown command id from client")
		s.write(ctx, ss, smpp.NewGenericNack(p.Header.Sequence, smpp.StatusInvCmdID))
		return false

	default:
		// a response or other PDU a server never expects
		slog.WarnContext(ctx, "unexpected PDU from client")
		s.write(ctx, ss, smpp.NewGenericNack(p.Header.Sequence, smpp.StatusInvBndSts))
		return false
	}
}

// handleBind authenticates and transitions the session. A rejected bind
// answers ESME_RBINDFAIL and drops the connection.
func (s *Server) handleBind(ctx context.Context, ss *session, p *smpp.PDU, b *smpp.Bind) bool {
	if ss.state != stateUnbound {
		slog.WarnContext(ctx, "bind on already bound session")
		s.write(ctx, ss, smpp.NewGenericNack(p.Header.Sequence, smpp.StatusInvBndSts))
		return false
	}

	logCtx := logging.ContextWithSystemID(ctx, b.SystemID)
	if !s.creds.Verify(b.SystemID, b.Password) {
		slog.WarnContext(logCtx, "bind authentication failed")
		s.write(logCtx, ss, smpp.NewBindResp(p.Header.ID, p.Header.Sequence, smpp.StatusBindFailed, ""))
		s.flush(logCtx, ss)
		return true
	}

	switch p.Header.ID {
	case smpp.CmdBindTransmitter:
		ss.state = stateBoundTX
	case smpp.CmdBindReceiver:
		ss.state = stateBoundRX
	case smpp.CmdBindTransceiver:
		ss.state = stateBoundTRX
	}
	ss.systemID = b.SystemID
	ss.boundAt = time.Now()

	s.write(logCtx, ss, smpp.NewBindResp(p.Header.ID, p.Header.Sequence, smpp.StatusOK, ServerSystemID))
	slog.InfoContext(logCtx, "bind successful", slog.String("bind_type", p.CommandName()))
	return false
}

// handleSubmitSM forwards the message to the SMSC and answers based on
// the egress outcome.
func (s *Server) handleSubmitSM(ctx context.Context, ss *session, seq uint32, sm *smpp.SubmitSM) {
	slog.InfoContext(ctx, "submit_sm from client",
		slog.String("from", sm.SourceAddr),
		slog.String("to", sm.DestAddr))

	msg := egress.Message{
		From:       sm.SourceAddr,
		To:         sm.DestAddr,
		Short:      sm.ShortMessage,
		DataCoding: sm.DataCoding,
		EsmClass:   sm.EsmClass,
	}
	if err := s.forwarder.Forward(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "egress failed for client submit_sm", slog.Any("error", err))
		metrics.ServerSubmitsTotal.WithLabelValues(ss.systemID, "error").Inc()
		s.write(ctx, ss, smpp.NewSubmitSMResp(seq, smpp.StatusSystemError, ""))
		return
	}

	messageID := fmt.Sprintf("msg-%d", time.Now().UnixMilli())
	metrics.ServerSubmitsTotal.WithLabelValues(ss.systemID, "ok").Inc()
	s.write(ctx, ss, smpp.NewSubmitSMResp(seq, smpp.StatusOK, messageID))
	slog.InfoContext(ctx, "submit_sm accepted", slog.String("message_id", messageID))
}

func (s *Server) write(ctx context.Context, ss *session, p *smpp.PDU) {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	if _, err := ss.writer.Write(smpp.Encode(p)); err != nil {
		slog.WarnContext(ctx, "failed to write PDU", slog.Any("error", err))
	}
}

func (s *Server) flush(ctx context.Context, ss *session) {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	if err := ss.writer.Flush(); err != nil {
		slog.DebugContext(ctx, "flush failed", slog.Any("error", err))
	}
}
