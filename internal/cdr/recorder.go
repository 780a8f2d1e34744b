package cdr

import (
	"context"
	"log/slog"
	"time"
)

// Traffic directions recorded in CDRs.
const (
	DirectionMT = "mt" // HTTP ingress → peer submit_sm
	DirectionMO = "mo" // deliver_sm / client submit_sm → HTTP egress
)

// CDR is one immutable call-detail row: accounting of a message the
// gateway already handled. Nothing is ever read back from the sink, and
// a failing sink never touches the data path.
type CDR struct {
	ID         string
	Direction  string
	PeerID     string
	SystemID   string
	From       string
	To         string
	DataCoding byte
	Receipt    bool
	Status     string
	MessageID  string
	OccurredAt time.Time
}

// Recorder accepts CDRs without blocking the caller.
type Recorder interface {
	Record(ctx context.Context, rec CDR)
}

// Nop is the recorder used when no database is configured.
type Nop struct{}

// Record discards the CDR.
func (Nop) Record(context.Context, CDR) {}

var _ Recorder = Nop{}

// logDropped reports rows lost because the sink could not keep up.
func logDropped(ctx context.Context, rec CDR) {
	slog.WarnContext(ctx, "CDR dropped, sink backlogged",
		slog.String("direction", rec.Direction),
		slog.String("cdr_id", rec.ID))
}
