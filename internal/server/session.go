package server

import (
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/orgbd/internal/events"
	"github.com/nerrad567/orgbd/internal/orgb"
)

// Session close reasons reported in logs, metrics and events.
const (
	ClosePeer            = "peer_closed"
	CloseTruncated       = "truncated_frame"
	ClosePayloadTooLarge = "payload_too_large"
	CloseFrameTimeout    = "frame_timeout"
	CloseWriteFailed     = "write_failed"
	CloseShutdown        = "server_shutdown"
	CloseReadError       = "read_error"
)

// SessionInfo is a point-in-time view of one client session.
type SessionInfo struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	OpenedAt     time.Time `json:"opened_at"`
	Frames       uint64    `json:"frames"`
	LastActivity time.Time `json:"last_activity"`
}

// session is the state of one client connection. Only the session goroutine
// touches conn reads; counters are read concurrently by Sessions.
type session struct {
	id       string
	conn     net.Conn
	remote   string
	openedAt time.Time

	frames       atomic.Uint64
	lastActivity atomic.Int64
}

func newSession(conn net.Conn) *session {
	s := &session{
		id:       "ses-" + uuid.NewString()[:8],
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		openedAt: time.Now().UTC(),
	}
	s.lastActivity.Store(s.openedAt.UnixNano())
	return s
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:           s.id,
		RemoteAddr:   s.remote,
		OpenedAt:     s.openedAt,
		Frames:       s.frames.Load(),
		LastActivity: time.Unix(0, s.lastActivity.Load()).UTC(),
	}
}

// runSession owns the connection until it closes.
func (s *Server) runSession(sess *session) {
	defer s.wg.Done()
	defer s.untrack(sess)
	defer sess.conn.Close() //nolint:errcheck // closing a finished session

	s.metrics.sessionOpened()
	s.logger.Info("session opened", "session_id", sess.id, "remote", sess.remote)
	s.publish(events.Event{Type: events.SessionOpened, SessionID: sess.id, RemoteAddr: sess.remote})

	err := s.serveSession(sess)
	reason := s.closeReason(err)

	switch reason {
	case ClosePeer, CloseShutdown:
		s.logger.Info("session closed", "session_id", sess.id, "reason", reason, "frames", sess.frames.Load())
	default:
		s.logger.Warn("session closed", "session_id", sess.id, "reason", reason,
			"frames", sess.frames.Load(), "error", err)
	}

	s.metrics.sessionClosed(reason)
	s.publish(events.Event{
		Type:       events.SessionClosed,
		SessionID:  sess.id,
		RemoteAddr: sess.remote,
		Reason:     reason,
		Frames:     sess.frames.Load(),
		Duration:   time.Since(sess.openedAt),
	})
}

// serveSession runs the frame loop:
// await magic → read header → read payload → dispatch → await magic.
// It returns when the connection can no longer be used.
func (s *Server) serveSession(sess *session) error {
	dec := orgb.NewDecoder(sess.conn, s.cfg.MaxPayloadSize)

	for {
		before := dec.Discarded()
		err := dec.SyncMagic()
		if skipped := dec.Discarded() - before; skipped > 0 {
			s.metrics.resync(skipped)
			s.logger.Debug("resynchronised on frame magic", "session_id", sess.id, "skipped", skipped)
		}
		if err != nil {
			return err
		}

		if s.cfg.FrameTimeout > 0 {
			if err := sess.conn.SetReadDeadline(time.Now().Add(s.cfg.FrameTimeout)); err != nil {
				return err
			}
		}

		frame, err := dec.ReadFrameBody()
		if err != nil {
			s.metrics.frameError(frameErrorKind(err))
			return err
		}

		if s.cfg.FrameTimeout > 0 {
			if err := sess.conn.SetReadDeadline(time.Time{}); err != nil {
				return err
			}
		}

		if err := s.handleFrame(sess, frame); err != nil {
			return err
		}
	}
}

// handleFrame dispatches one frame and writes its reply, if any.
func (s *Server) handleFrame(sess *session, frame orgb.Frame) error {
	start := time.Now()
	sess.frames.Add(1)
	sess.lastActivity.Store(start.UnixNano())

	reply, outcome := s.dispatcher.Dispatch(frame)

	var writeErr error
	if reply != nil {
		writeErr = s.writeReply(sess, *reply)
	}

	elapsed := time.Since(start)
	packet := packetLabel(frame.Header.PacketID)
	s.metrics.frameHandled(packet, outcome, len(frame.Payload), elapsed)
	s.frames.Add(1)

	if outcome.Dropped() {
		s.drops.Add(1)
		s.logger.Debug("request dropped",
			"session_id", sess.id,
			"packet", packet,
			"device_index", frame.Header.DeviceIndex,
			"reason", outcome.DropReason(),
			"error", outcome.Reason,
		)
	}

	ev := events.Event{
		Type:        events.RequestHandled,
		SessionID:   sess.id,
		RemoteAddr:  sess.remote,
		DeviceIndex: frame.Header.DeviceIndex,
		Packet:      packet,
		PayloadSize: frame.Header.PayloadSize,
		Outcome:     outcome.Status,
		Reason:      outcome.DropReason(),
		Duration:    elapsed,
	}
	s.publish(ev)

	return writeErr
}

func (s *Server) writeReply(sess *session, reply orgb.Frame) error {
	if s.cfg.WriteTimeout > 0 {
		if err := sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return errors.Join(ErrWriteFailed, err)
		}
	}
	if err := orgb.WriteFrame(sess.conn, reply); err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}

// closeReason classifies the error that ended a session.
func (s *Server) closeReason(err error) string {
	switch {
	case s.isClosing():
		return CloseShutdown
	case err == nil, errors.Is(err, io.EOF) && !errors.Is(err, orgb.ErrTruncatedFrame):
		return ClosePeer
	case errors.Is(err, ErrWriteFailed):
		return CloseWriteFailed
	case errors.Is(err, orgb.ErrTruncatedFrame):
		return CloseTruncated
	case errors.Is(err, orgb.ErrPayloadTooLarge):
		return ClosePayloadTooLarge
	case errors.Is(err, os.ErrDeadlineExceeded):
		return CloseFrameTimeout
	default:
		return CloseReadError
	}
}

func frameErrorKind(err error) string {
	switch {
	case errors.Is(err, orgb.ErrTruncatedFrame):
		return CloseTruncated
	case errors.Is(err, orgb.ErrPayloadTooLarge):
		return ClosePayloadTooLarge
	case errors.Is(err, os.ErrDeadlineExceeded):
		return CloseFrameTimeout
	default:
		return CloseReadError
	}
}

// packetLabel bounds metric label cardinality for unknown packet IDs.
func packetLabel(id orgb.PacketID) string {
	if !id.Known() {
		return "unknown"
	}
	return id.String()
}
