package orgb

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func encodeFrame(t *testing.T, f Frame) []byte {
	t.Helper()
	buf, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	return buf
}

func TestHeaderEncodeLayout(t *testing.T) {
	h := Header{DeviceIndex: 2, PacketID: UpdateLEDs, PayloadSize: 0x01020304}
	got := h.Encode()

	want := []byte{
		'O', 'R', 'G', 'B',
		0x02, 0x00, 0x00, 0x00,
		0x1A, 0x04, 0x00, 0x00, // 1050
		0x04, 0x03, 0x02, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % x, want % x", got, want)
	}

	parsed, err := ParseHeader(got)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if parsed != h {
		t.Errorf("ParseHeader() = %+v, want %+v", parsed, h)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	if _, err := ParseHeader([]byte("ORGB")); !errors.Is(err, ErrShortHeader) {
		t.Errorf("ParseHeader(short) error = %v, want ErrShortHeader", err)
	}

	bad := Header{}.Encode()
	bad[3] = 'X'
	if _, err := ParseHeader(bad); !errors.Is(err, ErrBadMagic) {
		t.Errorf("ParseHeader(bad magic) error = %v, want ErrBadMagic", err)
	}
}

func TestDecoderResync(t *testing.T) {
	frame := NewFrame(0, RequestControllerCount, nil)

	tests := []struct {
		name          string
		noise         []byte
		wantDiscarded uint64
	}{
		{name: "no noise", noise: nil, wantDiscarded: 0},
		{name: "plain garbage", noise: []byte{0x00, 0xFF, 'x'}, wantDiscarded: 3},
		{name: "lone O", noise: []byte("O"), wantDiscarded: 1},
		{name: "partial OR", noise: []byte("OR"), wantDiscarded: 2},
		{name: "partial ORG", noise: []byte("ORG"), wantDiscarded: 3},
		{name: "mixed prefixes", noise: []byte("XOORGORGxO"), wantDiscarded: 10},
		{name: "wrong case", noise: []byte("orgb"), wantDiscarded: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := append(append([]byte{}, tt.noise...), encodeFrame(t, frame)...)
			dec := NewDecoder(bytes.NewReader(stream), 0)

			got, err := dec.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if got.Header != frame.Header {
				t.Errorf("Header = %+v, want %+v", got.Header, frame.Header)
			}
			if dec.Discarded() != tt.wantDiscarded {
				t.Errorf("Discarded() = %d, want %d", dec.Discarded(), tt.wantDiscarded)
			}

			if _, err := dec.ReadFrame(); !errors.Is(err, io.EOF) {
				t.Errorf("second ReadFrame() error = %v, want io.EOF", err)
			}
		})
	}
}

func TestDecoderResyncExample(t *testing.T) {
	// X,O,O,R,G then a real frame starting at the second O of "ORGB".
	stream := []byte{'X', 'O', 'O', 'R', 'G'}
	stream = append(stream, encodeFrame(t, NewFrame(3, SetCustomMode, nil))...)

	dec := NewDecoder(bytes.NewReader(stream), 0)
	got, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if got.Header.DeviceIndex != 3 || got.Header.PacketID != SetCustomMode {
		t.Errorf("Header = %+v, want device 3 SetCustomMode", got.Header)
	}
	if dec.Discarded() != 5 {
		t.Errorf("Discarded() = %d, want 5", dec.Discarded())
	}
}

func TestDecoderPartialReads(t *testing.T) {
	frames := []Frame{
		NewFrame(0, RequestControllerCount, nil),
		NewFrame(1, UpdateLEDs, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}),
		NewFrame(7, ResizeZone, ResizeZoneCmd{Zone: 1, NewSize: 30}.Payload()),
	}
	var stream []byte
	for _, f := range frames {
		stream = append(stream, encodeFrame(t, f)...)
	}

	readers := map[string]func(io.Reader) io.Reader{
		"whole":    func(r io.Reader) io.Reader { return r },
		"one byte": iotest.OneByteReader,
		"halves":   iotest.HalfReader,
		"data err": iotest.DataErrReader,
	}

	for name, wrap := range readers {
		t.Run(name, func(t *testing.T) {
			dec := NewDecoder(wrap(bytes.NewReader(stream)), 0)
			for i, want := range frames {
				got, err := dec.ReadFrame()
				if err != nil {
					t.Fatalf("frame %d: ReadFrame() error = %v", i, err)
				}
				if got.Header != want.Header {
					t.Errorf("frame %d: Header = %+v, want %+v", i, got.Header, want.Header)
				}
				if !bytes.Equal(got.Payload, want.Payload) {
					t.Errorf("frame %d: Payload = % x, want % x", i, got.Payload, want.Payload)
				}
			}
			if _, err := dec.ReadFrame(); !errors.Is(err, io.EOF) {
				t.Errorf("ReadFrame() after last frame error = %v, want io.EOF", err)
			}
		})
	}
}

func TestDecoderEndOfStream(t *testing.T) {
	full := encodeFrame(t, NewFrame(0, UpdateLEDs, []byte{1, 2, 3, 4}))

	tests := []struct {
		name      string
		stream    []byte
		wantErr   error
		truncated bool
	}{
		{name: "empty", stream: nil, wantErr: io.EOF},
		{name: "inside magic", stream: full[:2], wantErr: io.EOF},
		{name: "noise only", stream: []byte("hello"), wantErr: io.EOF},
		{name: "inside header", stream: full[:10], wantErr: ErrTruncatedFrame, truncated: true},
		{name: "inside payload", stream: full[:18], wantErr: ErrTruncatedFrame, truncated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(bytes.NewReader(tt.stream), 0)
			_, err := dec.ReadFrame()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadFrame() error = %v, want %v", err, tt.wantErr)
			}
			if !tt.truncated && errors.Is(err, ErrTruncatedFrame) {
				t.Errorf("ReadFrame() error = %v, clean close reported as truncated", err)
			}
		})
	}
}

func TestDecoderPayloadTooLarge(t *testing.T) {
	h := Header{DeviceIndex: 0, PacketID: UpdateLEDs, PayloadSize: 65}
	dec := NewDecoder(bytes.NewReader(h.Encode()), 64)

	f, err := dec.ReadFrame()
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("ReadFrame() error = %v, want ErrPayloadTooLarge", err)
	}
	if f.Header.PayloadSize != 65 {
		t.Errorf("PayloadSize = %d, want 65", f.Header.PayloadSize)
	}
	if f.Payload != nil {
		t.Errorf("Payload = % x, want nil (no allocation)", f.Payload)
	}
}

func TestDecoderPayloadAtLimit(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 64)
	dec := NewDecoder(bytes.NewReader(encodeFrame(t, NewFrame(0, UpdateLEDs, payload))), 64)

	f, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("Payload length %d, want %d bytes of 0xAB", len(f.Payload), len(payload))
	}
}

func TestDecoderReadErrorPassthrough(t *testing.T) {
	boom := errors.New("boom")
	stream := io.MultiReader(bytes.NewReader([]byte("ORGB\x00\x00")), iotest.ErrReader(boom))

	_, err := NewDecoder(stream, 0).ReadFrame()
	if !errors.Is(err, boom) {
		t.Fatalf("ReadFrame() error = %v, want %v", err, boom)
	}
	if errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("ReadFrame() error = %v, read failure reported as truncated", err)
	}
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	f := NewFrame(4, UpdateMode, []byte{9, 8, 7})
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	if buf.Len() != HeaderSize+3 {
		t.Errorf("wrote %d bytes, want %d", buf.Len(), HeaderSize+3)
	}
	got, err := NewDecoder(&buf, 0).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if got.Header != f.Header || !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("ReadFrame() = %+v, want %+v", got, f)
	}
}

func TestWriteFrameSizeMismatch(t *testing.T) {
	f := Frame{Header: Header{PacketID: UpdateLEDs, PayloadSize: 10}, Payload: []byte{1}}
	if err := WriteFrame(io.Discard, f); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("WriteFrame() error = %v, want ErrInvalidPayload", err)
	}
}
