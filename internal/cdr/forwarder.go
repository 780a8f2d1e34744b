package cdr

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teleforge/smppgw/internal/egress"
)

// Forwarder matches the egress forwarder surface.
type Forwarder interface {
	Forward(ctx context.Context, msg egress.Message) error
}

// RecordingForwarder decorates the egress forwarder so every message
// headed for the SMSC leaves a CDR behind, whatever the outcome.
type RecordingForwarder struct {
	next Forwarder
	rec  Recorder
}

// NewRecordingForwarder wraps next with CDR recording.
func NewRecordingForwarder(next Forwarder, rec Recorder) *RecordingForwarder {
	return &RecordingForwarder{next: next, rec: rec}
}

// Forward delegates and records.
func (f *RecordingForwarder) Forward(ctx context.Context, msg egress.Message) error {
	err := f.next.Forward(ctx, msg)

	status := "ok"
	if err != nil {
		status = "failed"
	}
	f.rec.Record(ctx, CDR{
		ID:         uuid.NewString(),
		Direction:  DirectionMO,
		From:       msg.From,
		To:         msg.To,
		DataCoding: msg.DataCoding,
		Receipt:    msg.IsReceipt(),
		Status:     status,
		OccurredAt: time.Now(),
	})
	return err
}

var _ Forwarder = (*RecordingForwarder)(nil)
