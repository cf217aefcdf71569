package controller

import "errors"

// Domain errors for the controller package.
var (
	// ErrIndexOutOfRange is returned when a registry index has no controller.
	ErrIndexOutOfRange = errors.New("controller: index out of range")

	// ErrZoneOutOfRange is returned when a zone index does not exist.
	ErrZoneOutOfRange = errors.New("controller: zone out of range")

	// ErrLEDOutOfRange is returned when an LED index does not exist.
	ErrLEDOutOfRange = errors.New("controller: led out of range")

	// ErrModeOutOfRange is returned when a mode index does not exist.
	ErrModeOutOfRange = errors.New("controller: mode out of range")

	// ErrInvalidZoneSize is returned when a resize falls outside the zone's
	// minimum and maximum LED counts.
	ErrInvalidZoneSize = errors.New("controller: invalid zone size")

	// ErrColorCount is returned when a colour description carries a different
	// number of colours than the target has LEDs.
	ErrColorCount = errors.New("controller: colour count mismatch")

	// ErrNoCustomMode is returned when a controller has no mode suitable for
	// direct control.
	ErrNoCustomMode = errors.New("controller: no custom mode")

	// ErrDescriptionTooLarge is returned when a description holds more
	// entries, or longer strings, than its u16 length fields can carry.
	ErrDescriptionTooLarge = errors.New("controller: description too large")

	// ErrMalformedDescription is returned when a description or colour payload
	// cannot be parsed.
	ErrMalformedDescription = errors.New("controller: malformed description")
)
