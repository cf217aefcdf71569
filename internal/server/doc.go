// Package server runs the ORGB TCP listener.
//
// # Architecture
//
//	net.Listener ──► Server.Serve ──► session goroutine (one per connection)
//	                                       │
//	                                       ├─ orgb.Decoder   (frames)
//	                                       ├─ Dispatcher     (validate + apply)
//	                                       │     └─ controller.Registry.With
//	                                       └─ orgb.WriteFrame (replies)
//
// Frames on one connection are handled strictly in order: a reply is written
// before the next frame is read. Connections share nothing but the registry,
// whose per-controller lock makes each request atomic for that device.
//
// # Failure Handling
//
// Requests that fail validation (bad index, bad payload size, unknown packet)
// or that the controller rejects are dropped without a reply; the client sees
// nothing. The drop is logged at debug level, counted, and published as an
// event. Framing failures (stream ended mid-frame, oversize payload, frame
// timeout) and reply write failures end only the affected session.
//
// # Limits
//
//   - MaxConnections bounds live sessions; extra connections are accepted and
//     closed at once.
//   - MaxPayloadSize caps the payload buffer allocated per frame.
//   - FrameTimeout bounds how long a started frame may take to arrive. Idle
//     sessions waiting for a new frame are never timed out.
//
// # Shutdown
//
// Shutdown closes the listener and every live connection, then waits for the
// session goroutines to finish or the context to expire.
package server
