package controller

// Controller is the capability set the ORGB server drives.
//
// Set* methods stage a change from a client payload; the matching Update*
// method pushes staged state to the device. Implementations need not be safe
// for concurrent use: the Registry serialises every call per controller.
type Controller interface {
	ResizeZone(zone, size int32) error

	SetColorDescription(desc []byte) error
	UpdateLEDs() error

	SetZoneColorDescription(desc []byte) error
	UpdateZoneLEDs(zone int32) error

	SetSingleLEDColorDescription(desc []byte) error
	UpdateSingleLED(led int32) error

	SetCustomMode() error

	SetModeDescription(desc []byte) error
	UpdateMode() error

	// DeviceDescription returns the self-describing blob. Its first four
	// bytes are the blob's total size, little-endian.
	DeviceDescription() []byte
}

// StateReporter is implemented by controllers that can report what their
// LEDs are currently showing, such as Virtual.
type StateReporter interface {
	State() VirtualState
}
