package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teleforge/smppgw/internal/config"
	"github.com/teleforge/smppgw/internal/egress"
	"github.com/teleforge/smppgw/internal/logging"
	"github.com/teleforge/smppgw/internal/metrics"
	"github.com/teleforge/smppgw/internal/notification"
	"github.com/teleforge/smppgw/pkg/smpp"
)

// State is the lifecycle position of a peer session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateBinding
	StateBound
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

var (
	// ErrResponseTimeout is returned when a request PDU got no response
	// within the session's deadline. The session itself stays bound.
	ErrResponseTimeout = errors.New("response timeout")

	// ErrNotBound is returned when a submit is attempted on a session
	// that has no bound connection.
	ErrNotBound = errors.New("session not bound")

	// ErrConnectionClosed is returned to requests in flight when the
	// transport goes away underneath them.
	ErrConnectionClosed = errors.New("connection closed")
)

// InboundHandler consumes deliver_sm content; satisfied by the egress
// forwarder.
type InboundHandler interface {
	Forward(ctx context.Context, msg egress.Message) error
}

const dialTimeout = 10 * time.Second

// Session is one long-lived client session towards an upstream SMPP
// peer. It owns its socket: a reader goroutine, a keepalive goroutine,
// and mutex-serialized writes. It is created at startup and re-enters
// the connect/bind cycle on every transport loss until shutdown.
type Session struct {
	cfg      config.Peer
	handler  InboundHandler
	notifier notification.Notifier
	maxPDU   uint32

	state atomic.Int32
	seq   atomic.Uint32

	mu      sync.Mutex // guards conn and pending
	conn    net.Conn
	pending map[uint32]chan *smpp.PDU

	writeMu   sync.Mutex
	lastWrite atomic.Int64 // unix nanos of the last outbound write

	// dial is swappable for tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// NewSession builds an unconnected session for one configured peer.
func NewSession(cfg config.Peer, handler InboundHandler, notifier notification.Notifier, maxPDU uint32) *Session {
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	return &Session{
		cfg:      cfg,
		handler:  handler,
		notifier: notifier,
		maxPDU:   maxPDU,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// ID returns the configured peer id.
func (s *Session) ID() string { return s.cfg.ID }

// Config returns the peer configuration.
func (s *Session) Config() *config.Peer { return &s.cfg }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Bound reports whether the session can carry traffic right now.
func (s *Session) Bound() bool { return s.State() == StateBound }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run drives the connect/bind/keepalive/reconnect cycle until ctx is
// cancelled. Reconnects happen at the fixed configured interval; the
// timer is implicit in the loop, so it can never stack.
func (s *Session) Run(ctx context.Context) {
	logCtx := logging.ContextWithPeerID(ctx, s.cfg.ID)
	for {
		err := s.runConnection(logCtx)
		if ctx.Err() != nil {
			s.setState(StateClosing)
			slog.InfoContext(logCtx, "peer session stopped")
			return
		}
		s.setState(StateDisconnected)
		metrics.PeerReconnectsTotal.WithLabelValues(s.cfg.ID).Inc()
		slog.InfoContext(logCtx, "peer session down, reconnect scheduled",
			slog.Any("error", err),
			slog.Duration("reconnect_in", s.cfg.ReconnectEvery()))

		select {
		case <-ctx.Done():
			s.setState(StateClosing)
			return
		case <-time.After(s.cfg.ReconnectEvery()):
		}
	}
}

// runConnection performs one connect → bind → bound cycle and returns
// when the transport dies or ctx is cancelled.
func (s *Session) runConnection(ctx context.Context) error {
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := s.dial(dialCtx, s.cfg.Addr())
	cancel()
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.conn = conn
	s.pending = make(map[uint32]chan *smpp.PDU)
	s.mu.Unlock()

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	readErr := make(chan error, 1)
	go func() { readErr <- s.readLoop(connCtx, conn) }()

	defer s.teardown(ctx, conn)

	s.setState(StateBinding)
	if err := s.bind(connCtx, conn); err != nil {
		return err
	}
	s.setState(StateBound)
	slog.InfoContext(ctx, "peer session bound", slog.String("remote", conn.RemoteAddr().String()))
	_ = s.notifier.Send(ctx, "peer bound", s.cfg.ID)

	kaErr := make(chan error, 1)
	go func() { kaErr <- s.keepalive(connCtx, conn) }()

	select {
	case err = <-readErr:
	case err = <-kaErr:
		// keepalive failures mean a dead transport; closing the socket
		// unblocks the reader.
	case <-ctx.Done():
		err = ctx.Err()
		// best-effort unbind on graceful shutdown
		_ = s.write(conn, smpp.NewUnbind(s.nextSeq()))
	}
	s.setState(StateClosing)
	_ = s.notifier.Send(ctx, "peer lost", s.cfg.ID)
	return err
}

// teardown closes the socket and fails every in-flight request.
func (s *Session) teardown(ctx context.Context, conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	for seq, ch := range s.pending {
		close(ch)
		delete(s.pending, seq)
	}
	s.pending = nil
	s.mu.Unlock()
}

// bind issues the transceiver bind and decodes rejections.
func (s *Session) bind(ctx context.Context, conn net.Conn) error {
	req := smpp.NewBindTransceiver(s.nextSeq(), s.cfg.SystemID, s.cfg.Password, s.cfg.SystemType)
	resp, err := s.request(ctx, conn, req)
	if err != nil {
		return fmt.Errorf("bind_transceiver: %w", err)
	}
	if resp.Header.Status != smpp.StatusOK {
		switch resp.Header.Status {
		case smpp.StatusBindFailed:
			slog.ErrorContext(ctx, "bind rejected by peer", slog.String("reason", "ESME_RBINDFAIL"))
		case smpp.StatusInvPasswd:
			slog.ErrorContext(ctx, "bind rejected by peer", slog.String("reason", "ESME_RINVPASWD"))
		default:
			slog.ErrorContext(ctx, "bind rejected by peer", slog.String("reason", smpp.StatusText(resp.Header.Status)))
		}
		return fmt.Errorf("bind rejected: %s", smpp.StatusText(resp.Header.Status))
	}
	return nil
}

// Submit sends a submit_sm on the bound session and waits for the
// response PDU.
func (s *Session) Submit(ctx context.Context, sm smpp.SubmitSM) (*smpp.PDU, error) {
	if !s.Bound() {
		return nil, ErrNotBound
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, ErrNotBound
	}

	resp, err := s.request(ctx, conn, smpp.NewSubmitSM(s.nextSeq(), sm))
	switch {
	case err != nil:
		metrics.SubmitsTotal.WithLabelValues(s.cfg.ID, "error").Inc()
	case resp.Header.Status != smpp.StatusOK:
		metrics.SubmitsTotal.WithLabelValues(s.cfg.ID, "rejected").Inc()
	default:
		metrics.SubmitsTotal.WithLabelValues(s.cfg.ID, "ok").Inc()
	}
	return resp, err
}

// request registers the sequence, writes the PDU, and waits for the
// correlated response, the response deadline, or ctx.
func (s *Session) request(ctx context.Context, conn net.Conn, p *smpp.PDU) (*smpp.PDU, error) {
	seq := p.Header.Sequence
	ch := make(chan *smpp.PDU, 1)

	s.mu.Lock()
	if s.pending == nil || s.conn != conn {
		s.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	s.pending[seq] = ch
	s.mu.Unlock()

	if err := s.write(conn, p); err != nil {
		s.removePending(seq)
		return nil, err
	}

	timer := time.NewTimer(s.cfg.RespTimeout())
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return resp, nil
	case <-timer.C:
		s.removePending(seq)
		return nil, fmt.Errorf("%s seq %d: %w", p.CommandName(), seq, ErrResponseTimeout)
	case <-ctx.Done():
		s.removePending(seq)
		return nil, ctx.Err()
	}
}

func (s *Session) removePending(seq uint32) {
	s.mu.Lock()
	delete(s.pending, seq)
	s.mu.Unlock()
}

// write serializes one PDU onto the wire. The write mutex keeps frames
// from interleaving; keepalives queue here like everything else.
func (s *Session) write(conn net.Conn, p *smpp.PDU) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(smpp.Encode(p)); err != nil {
		return fmt.Errorf("writing %s: %w", p.CommandName(), err)
	}
	s.lastWrite.Store(time.Now().UnixNano())
	return nil
}

// readLoop decodes frames until the transport fails. A malformed frame
// poisons the stream, so the connection is surrendered for a reconnect.
func (s *Session) readLoop(ctx context.Context, conn net.Conn) error {
	r := bufio.NewReader(conn)
	for {
		p, err := smpp.Read(r, s.maxPDU)
		if err != nil {
			if errors.Is(err, smpp.ErrMalformed) {
				slog.WarnContext(ctx, "malformed PDU from peer, dropping connection", slog.Any("error", err))
			}
			return err
		}
		s.dispatch(ctx, conn, p)
	}
}

func (s *Session) dispatch(ctx context.Context, conn net.Conn, p *smpp.PDU) {
	logCtx := logging.ContextWithPDUInfo(ctx, p.CommandName(), p.Header.Sequence)

	if p.IsResponse() {
		s.mu.Lock()
		ch, ok := s.pending[p.Header.Sequence]
		if ok {
			delete(s.pending, p.Header.Sequence)
		}
		s.mu.Unlock()
		if !ok {
			slog.DebugContext(logCtx, "response with no pending request")
			return
		}
		ch <- p
		return
	}

	switch body := p.Body.(type) {
	case *smpp.DeliverSM:
		go s.handleDeliver(logCtx, conn, p.Header.Sequence, body)
	case *smpp.Empty:
		switch p.Header.ID {
		case smpp.CmdEnquireLink:
			if err := s.write(conn, smpp.NewEnquireLinkResp(p.Header.Sequence)); err != nil {
				slog.WarnContext(logCtx, "failed to answer enquire_link", slog.Any("error", err))
			}
		case smpp.CmdUnbind:
			slog.InfoContext(logCtx, "peer requested unbind")
			_ = s.write(conn, smpp.NewUnbindResp(p.Header.Sequence))
			_ = conn.Close()
		}
	case *smpp.Raw:
		slog.WarnContext(logCtx, "unknown command from peer, sending generic_nack")
		_ = s.write(conn, smpp.NewGenericNack(p.Header.Sequence, smpp.StatusInvCmdID))
	default:
		// a request this session never expects (e.g. submit_sm)
		slog.WarnContext(logCtx, "unexpected request from peer, sending generic_nack")
		_ = s.write(conn, smpp.NewGenericNack(p.Header.Sequence, smpp.StatusInvBndSts))
	}
}

// handleDeliver runs the egress call and then acknowledges the
// deliver_sm. The ack always carries status 0: a failed egress is logged
// and counted, never surfaced to the peer, because upstream resend
// storms are worse than local loss.
func (s *Session) handleDeliver(ctx context.Context, conn net.Conn, seq uint32, d *smpp.DeliverSM) {
	kind := "mo"
	if d.IsReceipt() {
		kind = "receipt"
	}
	metrics.DeliversTotal.WithLabelValues(s.cfg.ID, kind).Inc()
	slog.InfoContext(ctx, "deliver_sm received",
		slog.String("from", d.SourceAddr),
		slog.String("to", d.DestAddr),
		slog.String("kind", kind))

	msg := egress.Message{
		From:       d.SourceAddr,
		To:         d.DestAddr,
		Short:      d.ShortMessage,
		DataCoding: d.DataCoding,
		EsmClass:   d.EsmClass,
	}
	if err := s.handler.Forward(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "egress failed, acking deliver_sm anyway", slog.Any("error", err))
	}

	if err := s.write(conn, smpp.NewDeliverSMResp(seq, smpp.StatusOK)); err != nil {
		slog.WarnContext(ctx, "failed to ack deliver_sm", slog.Any("error", err))
	}
}

// keepalive sends enquire_link whenever the link has been write-idle for
// the configured interval. A keepalive that times out means the
// transport is gone; returning the error tears the connection down.
func (s *Session) keepalive(ctx context.Context, conn net.Conn) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			idle := time.Since(time.Unix(0, s.lastWrite.Load()))
			if idle < s.cfg.EnquireEvery() {
				continue
			}
			if _, err := s.request(ctx, conn, smpp.NewEnquireLink(s.nextSeq())); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				return fmt.Errorf("enquire_link: %w", err)
			}
		}
	}
}

// nextSeq hands out sequence numbers, wrapping past 2^31-1 to 1 and
// never using 0.
func (s *Session) nextSeq() uint32 {
	for {
		cur := s.seq.Load()
		next := cur + 1
		if next > smpp.MaxSequence {
			next = 1
		}
		if s.seq.CompareAndSwap(cur, next) {
			return next
		}
	}
}
