package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRequests = "orgb_requests"
	MeasurementSessions = "orgb_sessions"
)

// RequestPoint is one dispatched ORGB frame.
type RequestPoint struct {
	DeviceIndex uint32
	Packet      string
	Outcome     string
	Reason      string
	PayloadSize uint32
	Duration    time.Duration
	Time        time.Time
}

// SessionPoint is one session lifecycle transition.
type SessionPoint struct {
	SessionID  string
	Event      string // opened, closed, rejected
	Reason     string
	RemoteAddr string
	Frames     uint64
	Duration   time.Duration
	Time       time.Time
}

// NewRequestPoint builds the orgb_requests point for p.
//
// Tags are device, packet, outcome and (for drops) reason; all are low
// cardinality. Payload size and dispatch latency are fields.
func NewRequestPoint(p RequestPoint) *write.Point {
	tags := map[string]string{
		"device":  strconv.FormatUint(uint64(p.DeviceIndex), 10),
		"packet":  p.Packet,
		"outcome": p.Outcome,
	}
	if p.Reason != "" {
		tags["reason"] = p.Reason
	}
	return write.NewPoint(
		MeasurementRequests,
		tags,
		map[string]interface{}{
			"payload_bytes": int64(p.PayloadSize),
			"duration_us":   p.Duration.Microseconds(),
		},
		pointTime(p.Time),
	)
}

// NewSessionPoint builds the orgb_sessions point for p. The session ID is a
// field rather than a tag to keep series cardinality bounded.
func NewSessionPoint(p SessionPoint) *write.Point {
	tags := map[string]string{"event": p.Event}
	if p.Reason != "" {
		tags["reason"] = p.Reason
	}
	fields := map[string]interface{}{
		"session_id":  p.SessionID,
		"frames":      int64(p.Frames), //nolint:gosec // frame counts never approach 2^63
		"duration_ms": p.Duration.Milliseconds(),
	}
	if p.RemoteAddr != "" {
		fields["remote_addr"] = p.RemoteAddr
	}
	return write.NewPoint(MeasurementSessions, tags, fields, pointTime(p.Time))
}

func pointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// WriteRequest queues an orgb_requests point. Non-blocking.
func (c *Client) WriteRequest(p RequestPoint) {
	c.write(NewRequestPoint(p))
}

// WriteSession queues an orgb_sessions point. Non-blocking.
func (c *Client) WriteSession(p SessionPoint) {
	c.write(NewSessionPoint(p))
}
