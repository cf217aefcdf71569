package main

import (
	"fmt"
	"strings"

	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/infrastructure/config"
)

var zoneTypes = map[string]int32{
	"single": controller.ZoneSingle,
	"linear": controller.ZoneLinear,
	"matrix": controller.ZoneMatrix,
}

var colorModes = map[string]uint32{
	"":              controller.ColorModeNone,
	"none":          controller.ColorModeNone,
	"per_led":       controller.ColorModePerLED,
	"mode_specific": controller.ColorModeModeSpecific,
	"random":        controller.ColorModeRandom,
}

// buildRegistry creates one virtual controller per configured device, in
// config order; a device's position in the list is its ORGB device index.
func buildRegistry(devices []config.DeviceConfig) (*controller.Registry, error) {
	ctrls := make([]controller.Controller, 0, len(devices))
	for i, d := range devices {
		desc, err := deviceDescription(d)
		if err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", i, d.Name, err)
		}
		v, err := controller.NewVirtual(desc)
		if err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", i, d.Name, err)
		}
		ctrls = append(ctrls, v)
	}
	return controller.NewRegistry(ctrls...), nil
}

// deviceDescription maps a device config onto a controller description.
// An empty type means a virtual device.
func deviceDescription(d config.DeviceConfig) (controller.Description, error) {
	desc := controller.Description{
		Type:        controller.DeviceVirtual,
		Name:        d.Name,
		Description: d.Description,
		Version:     d.Version,
		Serial:      d.Serial,
		Location:    d.Location,
		ActiveMode:  int32(d.ActiveMode), //nolint:gosec // validated against len(modes)
	}
	if d.Type != "" {
		t, err := controller.ParseDeviceType(d.Type)
		if err != nil {
			return desc, err
		}
		desc.Type = t
	}

	for _, m := range d.Modes {
		colorMode, ok := colorModes[strings.ToLower(m.ColorMode)]
		if !ok {
			return desc, fmt.Errorf("mode %q: unknown color_mode %q", m.Name, m.ColorMode)
		}
		//nolint:gosec // config values are small and non-negative
		desc.Modes = append(desc.Modes, controller.Mode{
			Name:      m.Name,
			Value:     int32(m.Value),
			Flags:     modeFlags(m, colorMode),
			SpeedMin:  uint32(m.SpeedMin),
			SpeedMax:  uint32(m.SpeedMax),
			ColorsMin: uint32(m.ColorsMin),
			ColorsMax: uint32(m.ColorsMax),
			Speed:     uint32(m.SpeedMin),
			ColorMode: colorMode,
		})
	}

	for _, z := range d.Zones {
		zt, ok := zoneTypes[strings.ToLower(z.Type)]
		if !ok {
			return desc, fmt.Errorf("zone %q: unknown type %q", z.Name, z.Type)
		}
		//nolint:gosec // validated non-negative
		desc.Zones = append(desc.Zones, controller.Zone{
			Name:      z.Name,
			Type:      zt,
			LEDsMin:   uint32(z.LEDsMin),
			LEDsMax:   uint32(z.LEDsMax),
			LEDsCount: uint32(z.LEDs),
		})
	}
	return desc, nil
}

func modeFlags(m config.ModeConfig, colorMode uint32) uint32 {
	var flags uint32
	if m.SpeedMax > m.SpeedMin {
		flags |= controller.ModeFlagHasSpeed
	}
	switch colorMode {
	case controller.ColorModePerLED:
		flags |= controller.ModeFlagHasPerLEDColor
	case controller.ColorModeModeSpecific:
		flags |= controller.ModeFlagHasModeSpecificColor
	case controller.ColorModeRandom:
		flags |= controller.ModeFlagHasRandomColor
	}
	return flags
}
