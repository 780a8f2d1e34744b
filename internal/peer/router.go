package peer

import (
	"log/slog"
)

// Router selects a bound session for a destination address. Peers are
// tried in configuration order: the first bound peer whose route_regex
// matches wins, then the bound default peer, then nothing.
type Router struct {
	pool *Pool
}

// NewRouter builds a router over the pool.
func NewRouter(pool *Pool) *Router {
	return &Router{pool: pool}
}

// Route returns the session to carry a message for `to`, or nil when no
// bound peer can take it.
func (r *Router) Route(to string) *Session {
	var fallback *Session

	for _, s := range r.pool.Sessions() {
		if !s.Bound() {
			continue
		}
		cfg := s.Config()
		if cfg.RouteRE != nil && cfg.RouteRE.MatchString(to) {
			slog.Debug("routed by regex",
				slog.String("to", to),
				slog.String("peer_id", cfg.ID),
				slog.String("route_regex", cfg.RouteRegex))
			return s
		}
		if cfg.Default && fallback == nil {
			fallback = s
		}
	}

	if fallback != nil {
		slog.Debug("routed to default peer",
			slog.String("to", to),
			slog.String("peer_id", fallback.ID()))
	}
	return fallback
}
