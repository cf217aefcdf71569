package audit

import (
	"context"

	"github.com/nerrad567/orgbd/internal/events"
)

// Sink writes session lifecycle events to a Repository. Request events are
// ignored; per-frame history belongs in InfluxDB, not the audit trail.
type Sink struct {
	repo Repository
}

// NewSink creates an audit sink over repo.
func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

// Handle implements events.Sink.
func (s *Sink) Handle(ctx context.Context, ev events.Event) error {
	log := &AuditLog{
		SessionID:  ev.SessionID,
		RemoteAddr: ev.RemoteAddr,
		CreatedAt:  ev.Time,
	}

	switch ev.Type {
	case events.SessionOpened:
		log.Action = ActionSessionOpened
	case events.SessionRejected:
		log.Action = ActionSessionRejected
		log.Reason = ev.Reason
	case events.SessionClosed:
		log.Action = ActionSessionClosed
		log.Reason = ev.Reason
		log.Frames = ev.Frames
		log.Details = map[string]any{"duration_ms": ev.Duration.Milliseconds()}
	default:
		return nil
	}

	return s.repo.Create(ctx, log)
}
