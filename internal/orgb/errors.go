package orgb

import "errors"

// Domain errors for the orgb package.
var (
	// ErrTruncatedFrame is returned when the stream ends after the magic but
	// before the header or payload is complete.
	ErrTruncatedFrame = errors.New("orgb: truncated frame")

	// ErrPayloadTooLarge is returned when a header declares a payload bigger
	// than the decoder's limit. The stream cannot be resynchronised.
	ErrPayloadTooLarge = errors.New("orgb: payload too large")

	// ErrBadMagic is returned when a buffer passed to ParseHeader does not
	// start with the ORGB magic.
	ErrBadMagic = errors.New("orgb: bad magic")

	// ErrShortHeader is returned when a buffer is shorter than HeaderSize.
	ErrShortHeader = errors.New("orgb: short header")

	// ErrUnknownPacket is returned for packet IDs with no handler.
	ErrUnknownPacket = errors.New("orgb: unknown packet id")

	// ErrInvalidPayload is returned when a payload has the wrong size for its
	// packet ID.
	ErrInvalidPayload = errors.New("orgb: invalid payload")

	// ErrShortDescription is returned when a device description is shorter
	// than the size it declares.
	ErrShortDescription = errors.New("orgb: short device description")
)
