package orgb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// readBufferSize is the size of the Decoder's read buffer.
const readBufferSize = 4096

// Decoder reads frames from a byte stream.
//
// A Decoder is not safe for concurrent use; each connection gets its own.
type Decoder struct {
	r              *bufio.Reader
	maxPayloadSize uint32
	discarded      uint64
}

// NewDecoder returns a Decoder reading from r.
// A maxPayloadSize of zero selects DefaultMaxPayloadSize.
func NewDecoder(r io.Reader, maxPayloadSize uint32) *Decoder {
	if maxPayloadSize == 0 {
		maxPayloadSize = DefaultMaxPayloadSize
	}
	return &Decoder{
		r:              bufio.NewReaderSize(r, readBufferSize),
		maxPayloadSize: maxPayloadSize,
	}
}

// Discarded returns the total number of bytes skipped while looking for the
// magic.
func (d *Decoder) Discarded() uint64 {
	return d.discarded
}

// ReadFrame reads the next complete frame.
//
// Returns:
//   - Frame: header and payload, payload nil when PayloadSize is zero
//   - error: io.EOF on a clean end of stream, ErrTruncatedFrame,
//     ErrPayloadTooLarge, or the underlying read error
func (d *Decoder) ReadFrame() (Frame, error) {
	if err := d.SyncMagic(); err != nil {
		return Frame{}, err
	}
	return d.ReadFrameBody()
}

// SyncMagic consumes bytes until a full magic has been read.
//
// Bytes that cannot start or continue the magic are discarded. When a partial
// match breaks, the offending byte is tested again as a possible first byte
// so a frame that starts right after noise such as "O" is not lost.
// Running out of input here is a clean end of stream and returns io.EOF.
func (d *Decoder) SyncMagic() error {
	state := 0
	for state < len(Magic) {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		if b == Magic[state] {
			state++
			continue
		}
		d.discarded += uint64(state)
		if b == Magic[0] {
			state = 1
			continue
		}
		d.discarded++
		state = 0
	}
	return nil
}

// ReadFrameBody reads the header fields and payload that follow a magic
// already consumed by SyncMagic.
func (d *Decoder) ReadFrameBody() (Frame, error) {
	var fields [HeaderSize - len(Magic)]byte
	if _, err := io.ReadFull(d.r, fields[:]); err != nil {
		return Frame{}, readError("header", err)
	}
	h := parseHeaderFields(fields[:])

	if h.PayloadSize > d.maxPayloadSize {
		return Frame{Header: h}, fmt.Errorf("%w: %s declares %d bytes, limit is %d",
			ErrPayloadTooLarge, h.PacketID, h.PayloadSize, d.maxPayloadSize)
	}

	f := Frame{Header: h}
	if h.PayloadSize > 0 {
		f.Payload = make([]byte, h.PayloadSize)
		if _, err := io.ReadFull(d.r, f.Payload); err != nil {
			return Frame{Header: h}, readError("payload", err)
		}
	}
	return f, nil
}

// readError maps an end of stream inside a frame to ErrTruncatedFrame.
func readError(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: stream ended in %s: %w", ErrTruncatedFrame, part, err)
	}
	return fmt.Errorf("reading %s: %w", part, err)
}

// WriteFrame encodes f and writes it with a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Header.PacketID, err)
	}
	return nil
}
