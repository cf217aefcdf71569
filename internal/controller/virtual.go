package controller

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// maxZoneNameLen leaves room for the " LED 65535" suffix of generated LED names.
const maxZoneNameLen = MaxStringLen - len(" LED 65535")

// customModeNames lists, in preference order, the modes SetCustomMode looks for.
var customModeNames = []string{"direct", "custom", "static"}

// Virtual is an in-memory controller.
//
// Staged colours and mode live in the description; Update* copies them to the
// applied state, which is what a physical device would be showing.
// Virtual is not safe for concurrent use; keep it behind a Registry.
type Virtual struct {
	desc        Description
	applied     []Color
	appliedMode int32
	updates     uint64
}

// VirtualState is a copy of a Virtual controller's runtime state.
type VirtualState struct {
	ActiveMode  int32   `json:"active_mode"`
	AppliedMode int32   `json:"applied_mode"`
	Colors      []Color `json:"colors"`
	Applied     []Color `json:"applied"`
	Updates     uint64  `json:"updates"`
}

var _ Controller = (*Virtual)(nil)

// NewVirtual builds a controller from d. The LED and colour lists are derived
// from the zones: zone LEDs are laid out back to back and named
// "<zone> LED <n>". Any LEDs or colours already in d are replaced.
func NewVirtual(d Description) (*Virtual, error) {
	total := 0
	for i, z := range d.Zones {
		if z.LEDsCount < z.LEDsMin || z.LEDsCount > z.LEDsMax {
			return nil, fmt.Errorf("%w: zone %d %q has %d LEDs, allowed %d..%d",
				ErrInvalidZoneSize, i, z.Name, z.LEDsCount, z.LEDsMin, z.LEDsMax)
		}
		if len(z.Name) > maxZoneNameLen {
			return nil, fmt.Errorf("%w: zone %d name of %d bytes, max %d",
				ErrDescriptionTooLarge, i, len(z.Name), maxZoneNameLen)
		}
		total += int(z.LEDsCount)
	}
	if total > MaxListLen {
		return nil, fmt.Errorf("%w: %d LEDs in total, max %d", ErrInvalidZoneSize, total, MaxListLen)
	}
	if len(d.Modes) > 0 && (d.ActiveMode < 0 || int(d.ActiveMode) >= len(d.Modes)) {
		return nil, fmt.Errorf("%w: active mode %d", ErrModeOutOfRange, d.ActiveMode)
	}

	v := &Virtual{desc: d, appliedMode: d.ActiveMode}
	v.desc.Modes = slices.Clone(d.Modes)
	v.desc.Zones = slices.Clone(d.Zones)
	v.rebuildLEDs(nil)
	if err := CheckLimits(v.desc); err != nil {
		return nil, err
	}
	return v, nil
}

// State returns a copy of the controller's runtime state.
func (v *Virtual) State() VirtualState {
	return VirtualState{
		ActiveMode:  v.desc.ActiveMode,
		AppliedMode: v.appliedMode,
		Colors:      slices.Clone(v.desc.Colors),
		Applied:     slices.Clone(v.applied),
		Updates:     v.updates,
	}
}

// ResizeZone sets the LED count of a zone. Existing colours are kept for LEDs
// that survive the resize; new LEDs start black.
func (v *Virtual) ResizeZone(zone, size int32) error {
	if err := v.checkZone(zone); err != nil {
		return err
	}
	z := &v.desc.Zones[zone]
	if size < 0 || uint32(size) < z.LEDsMin || uint32(size) > z.LEDsMax {
		return fmt.Errorf("%w: zone %d size %d, allowed %d..%d",
			ErrInvalidZoneSize, zone, size, z.LEDsMin, z.LEDsMax)
	}
	if total := len(v.desc.LEDs) - int(z.LEDsCount) + int(size); total > MaxListLen {
		return fmt.Errorf("%w: zone %d size %d gives %d LEDs in total, max %d",
			ErrInvalidZoneSize, zone, size, total, MaxListLen)
	}
	old := slices.Clone(v.desc.Zones)
	z.LEDsCount = uint32(size)
	v.rebuildLEDs(old)
	return nil
}

// SetColorDescription stages a colour for every LED.
func (v *Virtual) SetColorDescription(desc []byte) error {
	colors, err := ParseColorDescription(desc)
	if err != nil {
		return err
	}
	if len(colors) != len(v.desc.Colors) {
		return fmt.Errorf("%w: got %d colours for %d LEDs", ErrColorCount, len(colors), len(v.desc.Colors))
	}
	copy(v.desc.Colors, colors)
	return nil
}

// UpdateLEDs applies every staged colour.
func (v *Virtual) UpdateLEDs() error {
	copy(v.applied, v.desc.Colors)
	v.updates++
	return nil
}

// SetZoneColorDescription stages colours for one zone.
func (v *Virtual) SetZoneColorDescription(desc []byte) error {
	zone, colors, err := ParseZoneColorDescription(desc)
	if err != nil {
		return err
	}
	if err := v.checkZone(zone); err != nil {
		return err
	}
	start, count := v.zoneSpan(zone)
	if len(colors) != count {
		return fmt.Errorf("%w: got %d colours for zone %d with %d LEDs", ErrColorCount, len(colors), zone, count)
	}
	copy(v.desc.Colors[start:start+count], colors)
	return nil
}

// UpdateZoneLEDs applies the staged colours of one zone.
func (v *Virtual) UpdateZoneLEDs(zone int32) error {
	if err := v.checkZone(zone); err != nil {
		return err
	}
	start, count := v.zoneSpan(zone)
	copy(v.applied[start:start+count], v.desc.Colors[start:start+count])
	v.updates++
	return nil
}

// SetSingleLEDColorDescription stages the colour of one LED.
func (v *Virtual) SetSingleLEDColorDescription(desc []byte) error {
	led, c, err := ParseSingleLEDDescription(desc)
	if err != nil {
		return err
	}
	if err := v.checkLED(led); err != nil {
		return err
	}
	v.desc.Colors[led] = c
	return nil
}

// UpdateSingleLED applies the staged colour of one LED.
func (v *Virtual) UpdateSingleLED(led int32) error {
	if err := v.checkLED(led); err != nil {
		return err
	}
	v.applied[led] = v.desc.Colors[led]
	v.updates++
	return nil
}

// SetCustomMode activates the first mode named Direct, Custom or Static, in
// that order of preference, and applies it.
func (v *Virtual) SetCustomMode() error {
	for _, want := range customModeNames {
		for i, m := range v.desc.Modes {
			if strings.EqualFold(m.Name, want) {
				v.desc.ActiveMode = int32(i) //nolint:gosec // mode lists are small
				v.appliedMode = v.desc.ActiveMode
				v.updates++
				return nil
			}
		}
	}
	return ErrNoCustomMode
}

// SetModeDescription replaces a mode's settings and makes it the active mode.
func (v *Virtual) SetModeDescription(desc []byte) error {
	idx, m, err := ParseModeDescription(desc)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(v.desc.Modes) {
		return fmt.Errorf("%w: %d (have %d)", ErrModeOutOfRange, idx, len(v.desc.Modes))
	}
	v.desc.Modes[idx] = m
	v.desc.ActiveMode = idx
	return nil
}

// UpdateMode applies the active mode.
func (v *Virtual) UpdateMode() error {
	v.appliedMode = v.desc.ActiveMode
	v.updates++
	return nil
}

// DeviceDescription returns the encoded description.
func (v *Virtual) DeviceDescription() []byte {
	return EncodeDescription(v.desc)
}

func (v *Virtual) checkZone(zone int32) error {
	if zone < 0 || int(zone) >= len(v.desc.Zones) {
		return fmt.Errorf("%w: %d (have %d)", ErrZoneOutOfRange, zone, len(v.desc.Zones))
	}
	return nil
}

func (v *Virtual) checkLED(led int32) error {
	if led < 0 || int(led) >= len(v.desc.LEDs) {
		return fmt.Errorf("%w: %d (have %d)", ErrLEDOutOfRange, led, len(v.desc.LEDs))
	}
	return nil
}

// zoneSpan returns the first LED index and LED count of a zone.
func (v *Virtual) zoneSpan(zone int32) (start, count int) {
	for i := range zone {
		start += int(v.desc.Zones[i].LEDsCount)
	}
	return start, int(v.desc.Zones[zone].LEDsCount)
}

// rebuildLEDs regenerates the LED, colour and applied lists from the zones.
// When old is non-nil, colours are carried over zone by zone from the layout
// old describes.
func (v *Virtual) rebuildLEDs(old []Zone) {
	var (
		leds    []LED
		colors  []Color
		applied []Color
		oldBase int
	)
	for zi, z := range v.desc.Zones {
		keep := 0
		if old != nil {
			keep = min(int(old[zi].LEDsCount), int(z.LEDsCount))
		}
		for i := range int(z.LEDsCount) {
			leds = append(leds, LED{
				Name:  z.Name + " LED " + strconv.Itoa(i+1),
				Value: uint32(len(leds)), //nolint:gosec // LED counts are small
			})
			if i < keep {
				colors = append(colors, v.desc.Colors[oldBase+i])
				applied = append(applied, v.applied[oldBase+i])
			} else {
				colors = append(colors, 0)
				applied = append(applied, 0)
			}
		}
		if old != nil {
			oldBase += int(old[zi].LEDsCount)
		}
	}
	v.desc.LEDs = leds
	v.desc.Colors = colors
	v.applied = applied
}
