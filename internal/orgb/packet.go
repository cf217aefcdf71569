package orgb

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// Wire constants.
const (
	// HeaderSize is the size of an encoded Header in bytes.
	HeaderSize = 16

	// DefaultPort is the TCP port ORGB clients connect to by default.
	DefaultPort = 1337

	// DefaultMaxPayloadSize caps the payload a Decoder will allocate for.
	DefaultMaxPayloadSize = 1 << 20
)

// Magic is the four-byte marker that opens every frame.
var Magic = [4]byte{'O', 'R', 'G', 'B'}

// byteOrder is the byte order of every integer on the wire.
var byteOrder = binary.LittleEndian

// PacketID identifies the operation a frame carries.
type PacketID uint32

// Packet IDs understood by the server. Values are fixed by existing clients.
const (
	// RequestControllerCount asks for the number of controllers.
	RequestControllerCount PacketID = 0

	// RequestControllerData asks for one controller's description blob.
	RequestControllerData PacketID = 1

	// ResizeZone changes the LED count of a resizable zone.
	ResizeZone PacketID = 1000

	// UpdateLEDs sets and applies colours for every LED of a controller.
	UpdateLEDs PacketID = 1050

	// UpdateZoneLEDs sets and applies colours for one zone.
	UpdateZoneLEDs PacketID = 1051

	// UpdateSingleLED sets and applies the colour of one LED.
	UpdateSingleLED PacketID = 1052

	// SetCustomMode switches a controller into its direct-control mode.
	SetCustomMode PacketID = 1100

	// UpdateMode sets and applies an operating mode.
	UpdateMode PacketID = 1101
)

var packetNames = map[PacketID]string{
	RequestControllerCount: "request_controller_count",
	RequestControllerData:  "request_controller_data",
	ResizeZone:             "resize_zone",
	UpdateLEDs:             "update_leds",
	UpdateZoneLEDs:         "update_zone_leds",
	UpdateSingleLED:        "update_single_led",
	SetCustomMode:          "set_custom_mode",
	UpdateMode:             "update_mode",
}

// String returns the snake_case name of the packet ID, or "unknown_<n>".
func (p PacketID) String() string {
	if name, ok := packetNames[p]; ok {
		return name
	}
	return "unknown_" + strconv.FormatUint(uint64(p), 10)
}

// Known reports whether the packet ID has a handler.
func (p PacketID) Known() bool {
	_, ok := packetNames[p]
	return ok
}

// Header is the fixed part of every frame, minus the magic.
type Header struct {
	DeviceIndex uint32
	PacketID    PacketID
	PayloadSize uint32
}

// Encode serialises the header, magic included.
func (h Header) Encode() []byte {
	return h.appendTo(make([]byte, 0, HeaderSize))
}

func (h Header) appendTo(dst []byte) []byte {
	dst = append(dst, Magic[:]...)
	dst = byteOrder.AppendUint32(dst, h.DeviceIndex)
	dst = byteOrder.AppendUint32(dst, uint32(h.PacketID))
	dst = byteOrder.AppendUint32(dst, h.PayloadSize)
	return dst
}

// ParseHeader parses a complete 16-byte header from the start of data.
//
// Parameters:
//   - data: at least HeaderSize bytes, starting with the magic
//
// Returns:
//   - Header: the decoded fields
//   - error: ErrShortHeader or ErrBadMagic
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortHeader, len(data), HeaderSize)
	}
	if [4]byte(data[0:4]) != Magic {
		return Header{}, fmt.Errorf("%w: %q", ErrBadMagic, data[0:4])
	}
	return parseHeaderFields(data[4:HeaderSize]), nil
}

// parseHeaderFields decodes the 12 bytes that follow the magic.
func parseHeaderFields(b []byte) Header {
	return Header{
		DeviceIndex: byteOrder.Uint32(b[0:4]),
		PacketID:    PacketID(byteOrder.Uint32(b[4:8])),
		PayloadSize: byteOrder.Uint32(b[8:12]),
	}
}

// Frame is a header together with its payload.
type Frame struct {
	Header  Header
	Payload []byte
}

// NewFrame builds a frame whose PayloadSize matches the payload.
func NewFrame(deviceIndex uint32, id PacketID, payload []byte) Frame {
	return Frame{
		Header: Header{
			DeviceIndex: deviceIndex,
			PacketID:    id,
			PayloadSize: uint32(len(payload)), //nolint:gosec // payloads are bounded well below 4 GiB
		},
		Payload: payload,
	}
}

// MarshalBinary encodes the header followed by the payload.
// It fails if the header's PayloadSize disagrees with the payload length.
func (f Frame) MarshalBinary() ([]byte, error) {
	if int(f.Header.PayloadSize) != len(f.Payload) {
		return nil, fmt.Errorf("%w: header declares %d bytes, payload has %d",
			ErrInvalidPayload, f.Header.PayloadSize, len(f.Payload))
	}
	buf := make([]byte, 0, HeaderSize+len(f.Payload))
	buf = f.Header.appendTo(buf)
	buf = append(buf, f.Payload...)
	return buf, nil
}
