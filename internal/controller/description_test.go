package controller

import (
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleDescription() Description {
	return Description{
		Type:        DeviceLEDStrip,
		Name:        "Desk Strip",
		Description: "Virtual LED strip",
		Version:     "1.0",
		Serial:      "VS-0001",
		Location:    "virtual:0",
		Modes: []Mode{
			{Name: "Direct", Value: 0, Flags: ModeFlagHasPerLEDColor, ColorMode: ColorModePerLED},
			{
				Name: "Breathing", Value: 1, Flags: ModeFlagHasSpeed | ModeFlagHasModeSpecificColor,
				SpeedMin: 1, SpeedMax: 10, Speed: 5, ColorsMin: 1, ColorsMax: 2,
				ColorMode: ColorModeModeSpecific, Colors: []Color{RGB(255, 0, 0)},
			},
		},
		ActiveMode: 1,
		Zones: []Zone{
			{Name: "Top", Type: ZoneLinear, LEDsMin: 1, LEDsMax: 60, LEDsCount: 2},
		},
		LEDs:   []LED{{Name: "Top LED 1", Value: 0}, {Name: "Top LED 2", Value: 1}},
		Colors: []Color{RGB(1, 2, 3), RGB(4, 5, 6)},
	}
}

func TestDescriptionRoundTrip(t *testing.T) {
	d := sampleDescription()
	blob := EncodeDescription(d)

	if got := binary.LittleEndian.Uint32(blob[0:4]); got != uint32(len(blob)) {
		t.Errorf("data_size = %d, want %d", got, len(blob))
	}
	if got := binary.LittleEndian.Uint32(blob[4:8]); got != uint32(DeviceLEDStrip) {
		t.Errorf("type = %d, want %d", got, DeviceLEDStrip)
	}
	// name: u16 length including NUL, bytes, NUL
	if got := binary.LittleEndian.Uint16(blob[8:10]); got != uint16(len("Desk Strip")+1) {
		t.Errorf("name length = %d, want %d", got, len("Desk Strip")+1)
	}
	if got := string(blob[10:21]); got != "Desk Strip\x00" {
		t.Errorf("name bytes = %q, want %q", got, "Desk Strip\x00")
	}

	got, err := DecodeDescription(blob)
	if err != nil {
		t.Fatalf("DecodeDescription() error = %v", err)
	}
	if !reflect.DeepEqual(got, d) {
		t.Errorf("DecodeDescription() = %+v, want %+v", got, d)
	}
}

func TestDecodeDescriptionErrors(t *testing.T) {
	blob := EncodeDescription(sampleDescription())
	short := append([]byte{}, blob...)
	binary.LittleEndian.PutUint32(short[0:4], 20)

	tests := []struct {
		name string
		blob []byte
	}{
		{"truncated", blob[:len(blob)-3]},
		{"size lies short", short},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDescription(tt.blob); !errors.Is(err, ErrMalformedDescription) {
				t.Errorf("DecodeDescription() error = %v, want ErrMalformedDescription", err)
			}
		})
	}
}

func TestDecodeDescriptionSkipsMatrix(t *testing.T) {
	w := &wireWriter{}
	w.u32(0)
	w.i32(int32(DeviceKeyboard))
	for range 5 {
		w.str("")
	}
	w.u16(0) // modes
	w.i32(0) // active mode
	w.u16(1) // zones
	w.str("Keys")
	w.i32(ZoneMatrix)
	w.u32(4)
	w.u32(4)
	w.u32(4)
	w.u16(24) // height, width, 2x2 map
	for _, v := range []uint32{2, 2, 0, 1, 2, 3} {
		w.u32(v)
	}
	w.u16(0) // leds
	w.u16(0) // colors
	binary.LittleEndian.PutUint32(w.buf[0:4], uint32(len(w.buf)))

	d, err := DecodeDescription(w.buf)
	if err != nil {
		t.Fatalf("DecodeDescription() error = %v", err)
	}
	if len(d.Zones) != 1 {
		t.Fatalf("len(Zones) = %d, want 1", len(d.Zones))
	}
	if d.Zones[0].Name != "Keys" {
		t.Errorf("Zones[0].Name = %q, want Keys", d.Zones[0].Name)
	}
	if d.Zones[0].LEDsCount != 4 {
		t.Errorf("Zones[0].LEDsCount = %d, want 4", d.Zones[0].LEDsCount)
	}
}

func TestCheckLimits(t *testing.T) {
	long := strings.Repeat("x", MaxStringLen+1)

	tests := []struct {
		name    string
		mutate  func(*Description)
		wantErr bool
	}{
		{name: "sample fits", mutate: func(*Description) {}},
		{name: "longest string fits", mutate: func(d *Description) { d.Serial = long[:MaxStringLen] }},
		{name: "device string", mutate: func(d *Description) { d.Location = long }, wantErr: true},
		{name: "mode name", mutate: func(d *Description) { d.Modes[1].Name = long }, wantErr: true},
		{name: "mode colours", mutate: func(d *Description) { d.Modes[1].Colors = make([]Color, MaxListLen+1) }, wantErr: true},
		{name: "zone name", mutate: func(d *Description) { d.Zones[0].Name = long }, wantErr: true},
		{name: "led name", mutate: func(d *Description) { d.LEDs[1].Name = long }, wantErr: true},
		{name: "led count", mutate: func(d *Description) { d.LEDs = make([]LED, MaxListLen+1) }, wantErr: true},
		{name: "colour count", mutate: func(d *Description) { d.Colors = make([]Color, MaxListLen+1) }, wantErr: true},
		{name: "zone count", mutate: func(d *Description) { d.Zones = make([]Zone, MaxListLen+1) }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleDescription()
			tt.mutate(&d)
			err := CheckLimits(d)
			if tt.wantErr {
				if !errors.Is(err, ErrDescriptionTooLarge) {
					t.Errorf("CheckLimits() error = %v, want ErrDescriptionTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Errorf("CheckLimits() error = %v", err)
			}
		})
	}
}

func TestEncodeDescriptionAtListLimit(t *testing.T) {
	d := sampleDescription()
	d.LEDs = make([]LED, MaxListLen)
	d.Colors = make([]Color, MaxListLen)
	if err := CheckLimits(d); err != nil {
		t.Fatalf("CheckLimits() error = %v", err)
	}

	got, err := DecodeDescription(EncodeDescription(d))
	if err != nil {
		t.Fatalf("DecodeDescription() error = %v", err)
	}
	if len(got.LEDs) != MaxListLen {
		t.Errorf("len(LEDs) = %d, want %d", len(got.LEDs), MaxListLen)
	}
	if len(got.Colors) != MaxListLen {
		t.Errorf("len(Colors) = %d, want %d", len(got.Colors), MaxListLen)
	}
}

func TestColorDescriptions(t *testing.T) {
	colors := []Color{RGB(255, 0, 0), RGB(0, 255, 0), RGB(0, 0, 255)}

	got, err := ParseColorDescription(ColorDescription(colors))
	if err != nil {
		t.Fatalf("ParseColorDescription() error = %v", err)
	}
	if !reflect.DeepEqual(got, colors) {
		t.Errorf("ParseColorDescription() = %v, want %v", got, colors)
	}

	zone, zc, err := ParseZoneColorDescription(ZoneColorDescription(2, colors[:1]))
	if err != nil {
		t.Fatalf("ParseZoneColorDescription() error = %v", err)
	}
	if zone != 2 || !reflect.DeepEqual(zc, colors[:1]) {
		t.Errorf("ParseZoneColorDescription() = %d, %v, want 2, %v", zone, zc, colors[:1])
	}

	led, c, err := ParseSingleLEDDescription(SingleLEDDescription(9, RGB(1, 2, 3)))
	if err != nil {
		t.Fatalf("ParseSingleLEDDescription() error = %v", err)
	}
	if led != 9 || c != RGB(1, 2, 3) {
		t.Errorf("ParseSingleLEDDescription() = %d, %v, want 9, %v", led, c, RGB(1, 2, 3))
	}

	m := Mode{Name: "Static", Value: 3, ColorMode: ColorModeModeSpecific, Colors: colors}
	idx, gm, err := ParseModeDescription(ModeDescription(1, m))
	if err != nil {
		t.Fatalf("ParseModeDescription() error = %v", err)
	}
	if idx != 1 {
		t.Errorf("ParseModeDescription() index = %d, want 1", idx)
	}
	if !reflect.DeepEqual(gm, m) {
		t.Errorf("ParseModeDescription() mode = %+v, want %+v", gm, m)
	}
}

func TestColorDescriptionTruncated(t *testing.T) {
	payload := ColorDescription([]Color{1, 2, 3})
	if _, err := ParseColorDescription(payload[:len(payload)-1]); !errors.Is(err, ErrMalformedDescription) {
		t.Errorf("ParseColorDescription() error = %v, want ErrMalformedDescription", err)
	}
	if _, _, err := ParseSingleLEDDescription([]byte{1, 0, 0, 0}); !errors.Is(err, ErrMalformedDescription) {
		t.Errorf("ParseSingleLEDDescription() error = %v, want ErrMalformedDescription", err)
	}
}

func TestColor(t *testing.T) {
	c := RGB(0x12, 0x34, 0x56)
	if c != Color(0x00563412) {
		t.Errorf("RGB() = %#x, want 0x563412", uint32(c))
	}
	if got := c.String(); got != "#123456" {
		t.Errorf("String() = %q, want #123456", got)
	}
}

func TestParseDeviceType(t *testing.T) {
	dt, err := ParseDeviceType("LEDStrip")
	if err != nil {
		t.Fatalf("ParseDeviceType() error = %v", err)
	}
	if dt != DeviceLEDStrip {
		t.Errorf("ParseDeviceType() = %v, want %v", dt, DeviceLEDStrip)
	}
	if got := dt.String(); got != "ledstrip" {
		t.Errorf("String() = %q, want ledstrip", got)
	}

	if _, err := ParseDeviceType("toaster"); !errors.Is(err, ErrMalformedDescription) {
		t.Errorf("ParseDeviceType(toaster) error = %v, want ErrMalformedDescription", err)
	}
}
