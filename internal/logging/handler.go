package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	PeerIDKey     contextKey = "peer_id"
	SystemIDKey   contextKey = "system_id"
	ReqIDKey      contextKey = "req_id"
	CommandIDKey  contextKey = "cmd_id"
	SeqNumberKey  contextKey = "seq"
	RemoteAddrKey contextKey = "remote_addr"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if peerID, ok := ctx.Value(PeerIDKey).(string); ok {
		r.AddAttrs(slog.String("peer_id", peerID))
	}
	if sysID, ok := ctx.Value(SystemIDKey).(string); ok {
		r.AddAttrs(slog.String("system_id", sysID))
	}
	if reqID, ok := ctx.Value(ReqIDKey).(string); ok {
		r.AddAttrs(slog.String("req_id", reqID))
	}
	if cmd, ok := ctx.Value(CommandIDKey).(string); ok {
		r.AddAttrs(slog.String("cmd_id", cmd))
	}
	if seq, ok := ctx.Value(SeqNumberKey).(uint32); ok {
		r.AddAttrs(slog.Uint64("seq", uint64(seq)))
	}
	if addr, ok := ctx.Value(RemoteAddrKey).(string); ok {
		r.AddAttrs(slog.String("remote_addr", addr))
	}
	return h.Handler.Handle(ctx, r)
}

// Helper functions to add values to context

func ContextWithPeerID(ctx context.Context, peerID string) context.Context {
	return context.WithValue(ctx, PeerIDKey, peerID)
}

func ContextWithSystemID(ctx context.Context, systemID string) context.Context {
	return context.WithValue(ctx, SystemIDKey, systemID)
}

func ContextWithReqID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, ReqIDKey, reqID)
}

func ContextWithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}

func ContextWithPDUInfo(ctx context.Context, commandName string, seq uint32) context.Context {
	ctx = context.WithValue(ctx, CommandIDKey, commandName)
	return context.WithValue(ctx, SeqNumberKey, seq)
}
