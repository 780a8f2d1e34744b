package peer

import (
	"context"
	"time"

	"github.com/teleforge/smppgw/internal/config"
	"github.com/teleforge/smppgw/internal/notification"
)

// Pool holds one session per configured peer, in configuration order.
// The set is fixed at startup; only the sessions' states move.
type Pool struct {
	sessions []*Session
	byID     map[string]*Session
}

// NewPool builds sessions for every configured peer.
func NewPool(peers []config.Peer, handler InboundHandler, notifier notification.Notifier, maxPDU uint32) *Pool {
	p := &Pool{byID: make(map[string]*Session, len(peers))}
	for _, pc := range peers {
		s := NewSession(pc, handler, notifier, maxPDU)
		p.sessions = append(p.sessions, s)
		p.byID[pc.ID] = s
	}
	return p
}

// Start launches every session's run loop.
func (p *Pool) Start(ctx context.Context) {
	for _, s := range p.sessions {
		go s.Run(ctx)
	}
}

// Get returns the session for a peer id, or nil.
func (p *Pool) Get(id string) *Session { return p.byID[id] }

// Sessions returns the sessions in configuration order.
func (p *Pool) Sessions() []*Session { return p.sessions }

// AnyBound reports whether at least one session is bound right now.
func (p *Pool) AnyBound() bool {
	for _, s := range p.sessions {
		if s.Bound() {
			return true
		}
	}
	return false
}

// BoundStates returns the bound flag per peer id, for metrics.
func (p *Pool) BoundStates() map[string]bool {
	out := make(map[string]bool, len(p.sessions))
	for _, s := range p.sessions {
		out[s.ID()] = s.Bound()
	}
	return out
}

// WaitForAnyBound blocks until a session is bound or the timeout
// elapses. It returns immediately when a bound peer already exists.
func (p *Pool) WaitForAnyBound(ctx context.Context, timeout time.Duration) bool {
	if p.AnyBound() {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-poll.C:
			if p.AnyBound() {
				return true
			}
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
