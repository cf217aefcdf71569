package orgb

import "fmt"

// Fixed payload sizes and field offsets.
const (
	resizeZonePayloadSize  = 8
	zoneLEDsMinPayloadSize = 8
	singleLEDMinPayload    = 4
	controllerCountSize    = 4
)

// Command is a decoded request. Each packet ID maps to exactly one concrete
// type; use a type switch to dispatch.
type Command interface {
	// PacketID returns the packet ID the command travels under.
	PacketID() PacketID

	// Payload returns the wire payload for the command.
	Payload() []byte
}

// RequestControllerCountCmd asks for the number of controllers.
type RequestControllerCountCmd struct{}

// RequestControllerDataCmd asks for the description of the addressed controller.
type RequestControllerDataCmd struct{}

// ResizeZoneCmd changes the size of one zone.
type ResizeZoneCmd struct {
	Zone    int32
	NewSize int32
}

// UpdateLEDsCmd carries a colour description for every LED.
type UpdateLEDsCmd struct {
	Description []byte
}

// UpdateZoneLEDsCmd carries a colour description for one zone.
// Zone is read from bytes [4:8) of Description.
type UpdateZoneLEDsCmd struct {
	Zone        int32
	Description []byte
}

// UpdateSingleLEDCmd carries the colour of one LED.
// LED is read from bytes [0:4) of Description.
type UpdateSingleLEDCmd struct {
	LED         int32
	Description []byte
}

// SetCustomModeCmd switches to direct control. Any payload is ignored.
type SetCustomModeCmd struct{}

// UpdateModeCmd carries a mode description.
type UpdateModeCmd struct {
	Description []byte
}

func (RequestControllerCountCmd) PacketID() PacketID { return RequestControllerCount }
func (RequestControllerDataCmd) PacketID() PacketID  { return RequestControllerData }
func (ResizeZoneCmd) PacketID() PacketID             { return ResizeZone }
func (UpdateLEDsCmd) PacketID() PacketID             { return UpdateLEDs }
func (UpdateZoneLEDsCmd) PacketID() PacketID         { return UpdateZoneLEDs }
func (UpdateSingleLEDCmd) PacketID() PacketID        { return UpdateSingleLED }
func (SetCustomModeCmd) PacketID() PacketID          { return SetCustomMode }
func (UpdateModeCmd) PacketID() PacketID             { return UpdateMode }

func (RequestControllerCountCmd) Payload() []byte { return nil }
func (RequestControllerDataCmd) Payload() []byte  { return nil }
func (SetCustomModeCmd) Payload() []byte          { return nil }
func (c UpdateLEDsCmd) Payload() []byte           { return c.Description }
func (c UpdateZoneLEDsCmd) Payload() []byte       { return c.Description }
func (c UpdateSingleLEDCmd) Payload() []byte      { return c.Description }
func (c UpdateModeCmd) Payload() []byte           { return c.Description }

func (c ResizeZoneCmd) Payload() []byte {
	buf := make([]byte, 0, resizeZonePayloadSize)
	buf = byteOrder.AppendUint32(buf, uint32(c.Zone))    //nolint:gosec // two's complement on the wire
	buf = byteOrder.AppendUint32(buf, uint32(c.NewSize)) //nolint:gosec // two's complement on the wire
	return buf
}

// DecodeCommand validates a frame's payload and returns its typed command.
//
// Parameters:
//   - f: a complete frame as returned by Decoder.ReadFrame
//
// Returns:
//   - Command: one of the *Cmd types in this package
//   - error: ErrUnknownPacket or ErrInvalidPayload
func DecodeCommand(f Frame) (Command, error) {
	p := f.Payload
	switch f.Header.PacketID {
	case RequestControllerCount:
		return RequestControllerCountCmd{}, nil

	case RequestControllerData:
		return RequestControllerDataCmd{}, nil

	case ResizeZone:
		if len(p) != resizeZonePayloadSize {
			return nil, payloadError(f.Header.PacketID, "exactly", resizeZonePayloadSize, len(p))
		}
		return ResizeZoneCmd{
			Zone:    readInt32(p[0:4]),
			NewSize: readInt32(p[4:8]),
		}, nil

	case UpdateLEDs:
		return UpdateLEDsCmd{Description: p}, nil

	case UpdateZoneLEDs:
		if len(p) < zoneLEDsMinPayloadSize {
			return nil, payloadError(f.Header.PacketID, "at least", zoneLEDsMinPayloadSize, len(p))
		}
		return UpdateZoneLEDsCmd{Zone: readInt32(p[4:8]), Description: p}, nil

	case UpdateSingleLED:
		if len(p) < singleLEDMinPayload {
			return nil, payloadError(f.Header.PacketID, "at least", singleLEDMinPayload, len(p))
		}
		return UpdateSingleLEDCmd{LED: readInt32(p[0:4]), Description: p}, nil

	case SetCustomMode:
		return SetCustomModeCmd{}, nil

	case UpdateMode:
		return UpdateModeCmd{Description: p}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownPacket, uint32(f.Header.PacketID))
}

// NewRequest builds the frame a client sends for cmd.
func NewRequest(deviceIndex uint32, cmd Command) Frame {
	return NewFrame(deviceIndex, cmd.PacketID(), cmd.Payload())
}

// ControllerCountReply builds the reply to RequestControllerCount.
// The device index of the reply is always zero.
func ControllerCountReply(count uint32) Frame {
	payload := byteOrder.AppendUint32(make([]byte, 0, controllerCountSize), count)
	return NewFrame(0, RequestControllerCount, payload)
}

// ParseControllerCount reads the count from a RequestControllerCount reply.
func ParseControllerCount(f Frame) (uint32, error) {
	if f.Header.PacketID != RequestControllerCount || len(f.Payload) != controllerCountSize {
		return 0, fmt.Errorf("%w: not a controller count reply", ErrInvalidPayload)
	}
	return byteOrder.Uint32(f.Payload), nil
}

// ControllerDataReply builds the reply to RequestControllerData.
//
// The reply's payload size is the size the description declares in its
// first four bytes; anything past that is not sent.
//
// Parameters:
//   - deviceIndex: the index the client asked for
//   - description: the controller's self-describing blob
//
// Returns:
//   - Frame: the reply frame
//   - error: ErrShortDescription if the blob is shorter than it claims
func ControllerDataReply(deviceIndex uint32, description []byte) (Frame, error) {
	if len(description) < 4 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortDescription, len(description))
	}
	size := byteOrder.Uint32(description[0:4])
	if uint64(size) > uint64(len(description)) {
		return Frame{}, fmt.Errorf("%w: declares %d bytes, have %d", ErrShortDescription, size, len(description))
	}
	return NewFrame(deviceIndex, RequestControllerData, description[:size]), nil
}

func readInt32(b []byte) int32 {
	return int32(byteOrder.Uint32(b)) //nolint:gosec // two's complement on the wire
}

func payloadError(id PacketID, qualifier string, want, got int) error {
	return fmt.Errorf("%w: %s needs %s %d bytes, got %d", ErrInvalidPayload, id, qualifier, want, got)
}
