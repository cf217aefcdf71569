// Package orgb implements the ORGB binary wire protocol used by lighting
// clients to enumerate and drive RGB controllers over TCP.
//
// # Frame Layout
//
// Every request and reply is a 16-byte header followed by an optional payload.
// All integers are little-endian:
//
//	offset 0..3   magic         'O','R','G','B'
//	offset 4..7   device_index  uint32
//	offset 8..11  packet_id     uint32
//	offset 12..15 payload_size  uint32
//	offset 16..   payload       payload_size bytes
//
// # Decoding
//
// A Decoder wraps one connection. It scans for the magic (discarding noise),
// then reads the rest of the header and the payload in full before returning a
// Frame. Short reads are reassembled; a stream that ends mid-frame yields
// ErrTruncatedFrame. A stream that ends while scanning for the magic yields
// io.EOF and is a normal disconnect.
//
//	dec := orgb.NewDecoder(conn, orgb.DefaultMaxPayloadSize)
//	for {
//	    frame, err := dec.ReadFrame()
//	    if err != nil {
//	        return err
//	    }
//	    cmd, err := orgb.DecodeCommand(frame)
//	    ...
//	}
//
// # Commands
//
// DecodeCommand turns a frame into one typed Command per packet ID and
// validates the fixed parts of its payload. Colour and mode descriptions are
// carried verbatim; interpreting them is the controller's job.
//
// # Thread Safety
//
// A Decoder is owned by a single goroutine. Frames, commands and the
// encoding helpers are plain values and safe to share once built.
package orgb
