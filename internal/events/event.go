package events

import (
	"context"
	"time"
)

// Type names an event.
type Type string

// Event types.
const (
	// SessionOpened is published when a client connection is accepted.
	SessionOpened Type = "session.opened"

	// SessionRejected is published when a connection is refused because the
	// server is at its connection limit.
	SessionRejected Type = "session.rejected"

	// SessionClosed is published when a session ends, for any reason.
	SessionClosed Type = "session.closed"

	// RequestHandled is published after every dispatched frame.
	RequestHandled Type = "request.handled"
)

// Request outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeReplied = "replied"
	OutcomeDropped = "dropped"
)

// Event is one unit of server activity. Fields that do not apply to a Type
// are left zero.
type Event struct {
	Type       Type      `json:"type"`
	Time       time.Time `json:"time"`
	SessionID  string    `json:"session_id"`
	RemoteAddr string    `json:"remote_addr,omitempty"`

	// Request fields.
	DeviceIndex uint32        `json:"device_index"`
	Packet      string        `json:"packet,omitempty"`
	PayloadSize uint32        `json:"payload_size,omitempty"`
	Outcome     string        `json:"outcome,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Duration    time.Duration `json:"duration_ns,omitempty"`

	// Session close fields.
	Frames uint64 `json:"frames,omitempty"`
}

// Sink consumes events.
type Sink interface {
	Handle(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Handle calls f.
func (f SinkFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ev Event) bool
}
