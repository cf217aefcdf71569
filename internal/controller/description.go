package controller

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

var byteOrder = binary.LittleEndian

// Blob limits. Counts and string lengths are u16 on the wire, and a string's
// length includes its NUL.
const (
	MaxListLen   = math.MaxUint16
	MaxStringLen = math.MaxUint16 - 1
)

// DeviceType classifies a controller. Values match existing ORGB clients.
type DeviceType int32

// Device types.
const (
	DeviceMotherboard DeviceType = iota
	DeviceDRAM
	DeviceGPU
	DeviceCooler
	DeviceLEDStrip
	DeviceKeyboard
	DeviceMouse
	DeviceMouseMat
	DeviceHeadset
	DeviceHeadsetStand
	DeviceGamepad
	DeviceLight
	DeviceSpeaker
	DeviceVirtual
	DeviceUnknown
)

var deviceTypeNames = []string{
	"motherboard", "dram", "gpu", "cooler", "ledstrip", "keyboard", "mouse",
	"mousemat", "headset", "headset_stand", "gamepad", "light", "speaker",
	"virtual", "unknown",
}

// String returns the lower-case name of the device type.
func (t DeviceType) String() string {
	if t >= 0 && int(t) < len(deviceTypeNames) {
		return deviceTypeNames[t]
	}
	return "unknown"
}

// ParseDeviceType maps a name such as "ledstrip" to its DeviceType.
func ParseDeviceType(name string) (DeviceType, error) {
	for i, n := range deviceTypeNames {
		if strings.EqualFold(n, name) {
			return DeviceType(i), nil //nolint:gosec // bounded by table size
		}
	}
	return DeviceUnknown, fmt.Errorf("%w: unknown device type %q", ErrMalformedDescription, name)
}

// Zone types.
const (
	ZoneSingle int32 = 0
	ZoneLinear int32 = 1
	ZoneMatrix int32 = 2
)

// Mode flags.
const (
	ModeFlagHasSpeed             uint32 = 1 << 0
	ModeFlagHasDirectionLR       uint32 = 1 << 1
	ModeFlagHasDirectionUD       uint32 = 1 << 2
	ModeFlagHasDirectionHV       uint32 = 1 << 3
	ModeFlagHasBrightness        uint32 = 1 << 4
	ModeFlagHasPerLEDColor       uint32 = 1 << 5
	ModeFlagHasModeSpecificColor uint32 = 1 << 6
	ModeFlagHasRandomColor       uint32 = 1 << 7
)

// Mode colour modes.
const (
	ColorModeNone         uint32 = 0
	ColorModePerLED       uint32 = 1
	ColorModeModeSpecific uint32 = 2
	ColorModeRandom       uint32 = 3
)

// Color is a colour as carried on the wire: 0x00BBGGRR.
type Color uint32

// RGB builds a Color from its components.
func RGB(r, g, b uint8) Color {
	return Color(uint32(r) | uint32(g)<<8 | uint32(b)<<16)
}

// R returns the red component.
func (c Color) R() uint8 { return uint8(c) }

// G returns the green component.
func (c Color) G() uint8 { return uint8(c >> 8) }

// B returns the blue component.
func (c Color) B() uint8 { return uint8(c >> 16) }

// String formats the colour as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R(), c.G(), c.B())
}

// Mode is one operating mode of a controller.
type Mode struct {
	Name      string  `json:"name"`
	Value     int32   `json:"value"`
	Flags     uint32  `json:"flags"`
	SpeedMin  uint32  `json:"speed_min"`
	SpeedMax  uint32  `json:"speed_max"`
	ColorsMin uint32  `json:"colors_min"`
	ColorsMax uint32  `json:"colors_max"`
	Speed     uint32  `json:"speed"`
	Direction uint32  `json:"direction"`
	ColorMode uint32  `json:"color_mode"`
	Colors    []Color `json:"colors,omitempty"`
}

// Zone is a contiguous run of LEDs.
type Zone struct {
	Name      string `json:"name"`
	Type      int32  `json:"type"`
	LEDsMin   uint32 `json:"leds_min"`
	LEDsMax   uint32 `json:"leds_max"`
	LEDsCount uint32 `json:"leds_count"`
}

// LED is a single addressable light.
type LED struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// Description is the decoded form of a controller's description blob.
type Description struct {
	Type        DeviceType `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	Serial      string     `json:"serial"`
	Location    string     `json:"location"`
	Modes       []Mode     `json:"modes"`
	ActiveMode  int32      `json:"active_mode"`
	Zones       []Zone     `json:"zones"`
	LEDs        []LED      `json:"leds"`
	Colors      []Color    `json:"colors"`
}

// CheckLimits returns ErrDescriptionTooLarge when a count or string in d does
// not fit its u16 length field.
func CheckLimits(d Description) error {
	for _, s := range []string{d.Name, d.Description, d.Version, d.Serial, d.Location} {
		if err := checkString("device string", s); err != nil {
			return err
		}
	}
	if err := checkCount("modes", len(d.Modes)); err != nil {
		return err
	}
	for _, m := range d.Modes {
		if err := checkString("mode name", m.Name); err != nil {
			return err
		}
		if err := checkCount("mode colours", len(m.Colors)); err != nil {
			return err
		}
	}
	if err := checkCount("zones", len(d.Zones)); err != nil {
		return err
	}
	for _, z := range d.Zones {
		if err := checkString("zone name", z.Name); err != nil {
			return err
		}
	}
	if err := checkCount("leds", len(d.LEDs)); err != nil {
		return err
	}
	for _, l := range d.LEDs {
		if err := checkString("led name", l.Name); err != nil {
			return err
		}
	}
	return checkCount("colours", len(d.Colors))
}

func checkCount(what string, n int) error {
	if n > MaxListLen {
		return fmt.Errorf("%w: %d %s, max %d", ErrDescriptionTooLarge, n, what, MaxListLen)
	}
	return nil
}

func checkString(what, s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: %s of %d bytes, max %d", ErrDescriptionTooLarge, what, len(s), MaxStringLen)
	}
	return nil
}

// EncodeDescription serialises d into the description blob layout:
//
//	data_size u32 | type i32 | name | description | version | serial | location |
//	num_modes u16 | active_mode i32 | modes | num_zones u16 | zones |
//	num_leds u16 | leds | num_colors u16 | colors
//
// Strings are a u16 length (NUL included), the bytes, then a NUL.
// Zones are written without matrix maps. d must pass CheckLimits.
func EncodeDescription(d Description) []byte {
	w := &wireWriter{}
	w.u32(0) // data_size, patched below
	w.i32(int32(d.Type))
	w.str(d.Name)
	w.str(d.Description)
	w.str(d.Version)
	w.str(d.Serial)
	w.str(d.Location)

	w.u16(len(d.Modes))
	w.i32(d.ActiveMode)
	for _, m := range d.Modes {
		w.mode(m)
	}

	w.u16(len(d.Zones))
	for _, z := range d.Zones {
		w.str(z.Name)
		w.i32(z.Type)
		w.u32(z.LEDsMin)
		w.u32(z.LEDsMax)
		w.u32(z.LEDsCount)
		w.u16(0) // matrix map length
	}

	w.u16(len(d.LEDs))
	for _, l := range d.LEDs {
		w.str(l.Name)
		w.u32(l.Value)
	}

	w.colors(d.Colors)

	byteOrder.PutUint32(w.buf[0:4], uint32(len(w.buf))) //nolint:gosec // descriptions are small
	return w.buf
}

// DecodeDescription parses a description blob. Zone matrix maps are skipped.
func DecodeDescription(blob []byte) (Description, error) {
	r := &wireReader{b: blob}
	size := r.u32()
	if r.err == nil && uint64(size) > uint64(len(blob)) {
		return Description{}, fmt.Errorf("%w: declares %d bytes, have %d", ErrMalformedDescription, size, len(blob))
	}
	if r.err == nil {
		r.b = blob[:size]
	}

	var d Description
	d.Type = DeviceType(r.i32())
	d.Name = r.str()
	d.Description = r.str()
	d.Version = r.str()
	d.Serial = r.str()
	d.Location = r.str()

	numModes := r.u16()
	d.ActiveMode = r.i32()
	for i := 0; i < numModes && r.err == nil; i++ {
		d.Modes = append(d.Modes, r.mode())
	}

	numZones := r.u16()
	for i := 0; i < numZones && r.err == nil; i++ {
		z := Zone{
			Name:      r.str(),
			Type:      r.i32(),
			LEDsMin:   r.u32(),
			LEDsMax:   r.u32(),
			LEDsCount: r.u32(),
		}
		if matrixLen := r.u16(); matrixLen > 0 {
			r.skip(matrixLen)
		}
		d.Zones = append(d.Zones, z)
	}

	numLEDs := r.u16()
	for i := 0; i < numLEDs && r.err == nil; i++ {
		d.LEDs = append(d.LEDs, LED{Name: r.str(), Value: r.u32()})
	}

	d.Colors = r.colors()

	if r.err != nil {
		return Description{}, r.err
	}
	return d, nil
}

// ParseColorDescription parses an UpdateLEDs payload:
// size u32 | count u16 | count colours.
func ParseColorDescription(payload []byte) ([]Color, error) {
	r := &wireReader{b: payload}
	r.u32()
	colors := r.colors()
	return colors, r.err
}

// ColorDescription builds an UpdateLEDs payload.
func ColorDescription(colors []Color) []byte {
	w := &wireWriter{}
	w.u32(0)
	w.colors(colors)
	byteOrder.PutUint32(w.buf[0:4], uint32(len(w.buf))) //nolint:gosec // payloads are small
	return w.buf
}

// ParseZoneColorDescription parses an UpdateZoneLEDs payload:
// size u32 | zone u32 | count u16 | count colours.
func ParseZoneColorDescription(payload []byte) (int32, []Color, error) {
	r := &wireReader{b: payload}
	r.u32()
	zone := r.i32()
	colors := r.colors()
	return zone, colors, r.err
}

// ZoneColorDescription builds an UpdateZoneLEDs payload.
func ZoneColorDescription(zone int32, colors []Color) []byte {
	w := &wireWriter{}
	w.u32(0)
	w.i32(zone)
	w.colors(colors)
	byteOrder.PutUint32(w.buf[0:4], uint32(len(w.buf))) //nolint:gosec // payloads are small
	return w.buf
}

// ParseSingleLEDDescription parses an UpdateSingleLED payload:
// led i32 | colour u32.
func ParseSingleLEDDescription(payload []byte) (int32, Color, error) {
	r := &wireReader{b: payload}
	led := r.i32()
	c := Color(r.u32())
	return led, c, r.err
}

// SingleLEDDescription builds an UpdateSingleLED payload.
func SingleLEDDescription(led int32, c Color) []byte {
	w := &wireWriter{}
	w.i32(led)
	w.u32(uint32(c))
	return w.buf
}

// ParseModeDescription parses an UpdateMode payload:
// size u32 | mode index i32 | mode.
func ParseModeDescription(payload []byte) (int32, Mode, error) {
	r := &wireReader{b: payload}
	r.u32()
	idx := r.i32()
	m := r.mode()
	return idx, m, r.err
}

// ModeDescription builds an UpdateMode payload.
func ModeDescription(index int32, m Mode) []byte {
	w := &wireWriter{}
	w.u32(0)
	w.i32(index)
	w.mode(m)
	byteOrder.PutUint32(w.buf[0:4], uint32(len(w.buf))) //nolint:gosec // payloads are small
	return w.buf
}

// wireWriter appends little-endian fields to a buffer.
type wireWriter struct {
	buf []byte
}

func (w *wireWriter) u16(v int) {
	w.buf = byteOrder.AppendUint16(w.buf, uint16(v)) //nolint:gosec // bounded by CheckLimits
}

func (w *wireWriter) u32(v uint32) {
	w.buf = byteOrder.AppendUint32(w.buf, v)
}

func (w *wireWriter) i32(v int32) {
	w.buf = byteOrder.AppendUint32(w.buf, uint32(v)) //nolint:gosec // two's complement
}

func (w *wireWriter) str(s string) {
	w.u16(len(s) + 1)
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *wireWriter) colors(cs []Color) {
	w.u16(len(cs))
	for _, c := range cs {
		w.u32(uint32(c))
	}
}

func (w *wireWriter) mode(m Mode) {
	w.str(m.Name)
	w.i32(m.Value)
	w.u32(m.Flags)
	w.u32(m.SpeedMin)
	w.u32(m.SpeedMax)
	w.u32(m.ColorsMin)
	w.u32(m.ColorsMax)
	w.u32(m.Speed)
	w.u32(m.Direction)
	w.u32(m.ColorMode)
	w.colors(m.Colors)
}

// wireReader consumes little-endian fields. The first short read sets err and
// every later read returns a zero value.
type wireReader struct {
	b   []byte
	off int
	err error
}

func (r *wireReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrMalformedDescription, n, r.off, len(r.b)-r.off)
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *wireReader) skip(n int) { r.take(n) }

func (r *wireReader) u16() int {
	if b := r.take(2); b != nil {
		return int(byteOrder.Uint16(b))
	}
	return 0
}

func (r *wireReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return byteOrder.Uint32(b)
	}
	return 0
}

func (r *wireReader) i32() int32 {
	return int32(r.u32()) //nolint:gosec // two's complement
}

func (r *wireReader) str() string {
	n := r.u16()
	b := r.take(n)
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func (r *wireReader) colors() []Color {
	n := r.u16()
	raw := r.take(n * 4)
	if r.err != nil || n == 0 {
		return nil
	}
	out := make([]Color, n)
	for i := range out {
		out[i] = Color(byteOrder.Uint32(raw[i*4:]))
	}
	return out
}

func (r *wireReader) mode() Mode {
	return Mode{
		Name:      r.str(),
		Value:     r.i32(),
		Flags:     r.u32(),
		SpeedMin:  r.u32(),
		SpeedMax:  r.u32(),
		ColorsMin: r.u32(),
		ColorsMax: r.u32(),
		Speed:     r.u32(),
		Direction: r.u32(),
		ColorMode: r.u32(),
		Colors:    r.colors(),
	}
}
