package server

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/events"
	"github.com/nerrad567/orgbd/internal/orgb"
)

func le32(vs ...uint32) []byte {
	var out []byte
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return out
}

func newTestDispatcher(n int) (*Dispatcher, []*fakeController) {
	fakes := make([]*fakeController, n)
	ctrls := make([]controller.Controller, n)
	for i := range n {
		fakes[i] = newFakeController("dev")
		ctrls[i] = fakes[i]
	}
	return NewDispatcher(controller.NewRegistry(ctrls...)), fakes
}

// expectDrop checks that f was dropped for reason without a reply or any
// controller call.
func expectDrop(t *testing.T, d *Dispatcher, fakes []*fakeController, f orgb.Frame, reason string) Outcome {
	t.Helper()
	reply, outcome := d.Dispatch(f)
	if reply != nil {
		t.Errorf("Dispatch() reply = %+v, want nil", reply)
	}
	if got := outcome.DropReason(); got != reason {
		t.Errorf("DropReason() = %q, want %q", got, reason)
	}
	for i, fk := range fakes {
		if calls := fk.Calls(); len(calls) != 0 {
			t.Errorf("controller %d calls = %v, want none", i, calls)
		}
	}
	return outcome
}

func TestDispatchMutations(t *testing.T) {
	zonePayload := le32(16, 1, 0xAABBCC)
	ledPayload := le32(3, 0x00FF00)

	tests := []struct {
		name      string
		frame     orgb.Frame
		wantCalls []string
	}{
		{
			name:      "resize zone",
			frame:     orgb.NewFrame(0, orgb.ResizeZone, le32(2, 30)),
			wantCalls: []string{"ResizeZone(2,30)"},
		},
		{
			name:      "update leds passes payload verbatim",
			frame:     orgb.NewFrame(0, orgb.UpdateLEDs, []byte{0xde, 0xad}),
			wantCalls: []string{"SetColorDescription(dead)", "UpdateLEDs()"},
		},
		{
			name:      "update zone leds",
			frame:     orgb.NewFrame(0, orgb.UpdateZoneLEDs, zonePayload),
			wantCalls: []string{"SetZoneColorDescription(1000000001000000ccbbaa00)", "UpdateZoneLEDs(1)"},
		},
		{
			name:      "update single led",
			frame:     orgb.NewFrame(0, orgb.UpdateSingleLED, ledPayload),
			wantCalls: []string{"SetSingleLEDColorDescription(0300000000ff0000)", "UpdateSingleLED(3)"},
		},
		{
			name:      "update mode",
			frame:     orgb.NewFrame(0, orgb.UpdateMode, []byte{1, 2}),
			wantCalls: []string{"SetModeDescription(0102)", "UpdateMode()"},
		},
		{
			name:      "custom mode without payload",
			frame:     orgb.NewFrame(0, orgb.SetCustomMode, nil),
			wantCalls: []string{"SetCustomMode()"},
		},
		{
			name:      "custom mode ignores payload",
			frame:     orgb.NewFrame(0, orgb.SetCustomMode, []byte("ignored entirely")),
			wantCalls: []string{"SetCustomMode()"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, fakes := newTestDispatcher(1)

			reply, outcome := d.Dispatch(tt.frame)
			if reply != nil {
				t.Errorf("Dispatch() reply = %+v, want nil", reply)
			}
			if outcome.Status != events.OutcomeApplied {
				t.Errorf("Status = %q, want %q", outcome.Status, events.OutcomeApplied)
			}
			if outcome.Reason != nil {
				t.Errorf("Reason = %v, want nil", outcome.Reason)
			}
			if got := fakes[0].Calls(); !reflect.DeepEqual(got, tt.wantCalls) {
				t.Errorf("Calls() = %q, want %q", got, tt.wantCalls)
			}
		})
	}
}

func TestDispatchBounds(t *testing.T) {
	mutations := []orgb.Frame{
		orgb.NewFrame(2, orgb.RequestControllerData, nil),
		orgb.NewFrame(2, orgb.ResizeZone, le32(0, 1)),
		orgb.NewFrame(2, orgb.UpdateLEDs, le32(6, 0)),
		orgb.NewFrame(5, orgb.UpdateZoneLEDs, le32(10, 0)),
		orgb.NewFrame(2, orgb.UpdateSingleLED, le32(0, 0)),
		orgb.NewFrame(0xFFFFFFFF, orgb.SetCustomMode, nil),
		orgb.NewFrame(2, orgb.UpdateMode, nil),
	}

	for _, f := range mutations {
		t.Run(f.Header.PacketID.String(), func(t *testing.T) {
			d, fakes := newTestDispatcher(2)

			outcome := expectDrop(t, d, fakes, f, DropIndexOutOfRange)
			if !outcome.Dropped() {
				t.Fatal("Dropped() = false, want true")
			}
			if !errors.Is(outcome.Reason, controller.ErrIndexOutOfRange) {
				t.Errorf("Reason = %v, want ErrIndexOutOfRange", outcome.Reason)
			}
		})
	}
}

func TestDispatchResizeZonePayloadSize(t *testing.T) {
	for _, size := range []int{0, 4, 7, 9, 16} {
		d, fakes := newTestDispatcher(1)
		expectDrop(t, d, fakes, orgb.NewFrame(0, orgb.ResizeZone, make([]byte, size)), DropInvalidPayload)
	}
}

func TestDispatchShortPayloads(t *testing.T) {
	d, fakes := newTestDispatcher(1)

	expectDrop(t, d, fakes, orgb.NewFrame(0, orgb.UpdateZoneLEDs, make([]byte, 7)), DropInvalidPayload)
	expectDrop(t, d, fakes, orgb.NewFrame(0, orgb.UpdateSingleLED, make([]byte, 3)), DropInvalidPayload)
}

func TestDispatchControllerCount(t *testing.T) {
	d, _ := newTestDispatcher(3)

	reply, outcome := d.Dispatch(orgb.NewFrame(7, orgb.RequestControllerCount, []byte{1, 2, 3}))
	if reply == nil {
		t.Fatal("Dispatch() reply = nil")
	}
	if outcome.Status != events.OutcomeReplied {
		t.Errorf("Status = %q, want %q", outcome.Status, events.OutcomeReplied)
	}
	want := orgb.Header{DeviceIndex: 0, PacketID: orgb.RequestControllerCount, PayloadSize: 4}
	if reply.Header != want {
		t.Errorf("Header = %+v, want %+v", reply.Header, want)
	}
	if !bytes.Equal(reply.Payload, []byte{3, 0, 0, 0}) {
		t.Errorf("Payload = % x, want 03 00 00 00", reply.Payload)
	}
}

func TestDispatchControllerData(t *testing.T) {
	d, fakes := newTestDispatcher(2)

	reply, outcome := d.Dispatch(orgb.NewFrame(1, orgb.RequestControllerData, nil))
	if reply == nil {
		t.Fatal("Dispatch() reply = nil")
	}
	if outcome.Status != events.OutcomeReplied {
		t.Errorf("Status = %q, want %q", outcome.Status, events.OutcomeReplied)
	}
	want := orgb.Header{DeviceIndex: 1, PacketID: orgb.RequestControllerData, PayloadSize: uint32(len(fakes[1].desc))}
	if reply.Header != want {
		t.Errorf("Header = %+v, want %+v", reply.Header, want)
	}
	if !bytes.Equal(reply.Payload, fakes[1].desc) {
		t.Errorf("Payload = % x, want % x", reply.Payload, fakes[1].desc)
	}
}

func TestDispatchShortDescription(t *testing.T) {
	d, fakes := newTestDispatcher(1)
	fakes[0].desc = le32(100)

	reply, outcome := d.Dispatch(orgb.NewFrame(0, orgb.RequestControllerData, nil))
	if reply != nil {
		t.Errorf("Dispatch() reply = %+v, want nil", reply)
	}
	if got := outcome.DropReason(); got != DropReply {
		t.Errorf("DropReason() = %q, want %q", got, DropReply)
	}
}

func TestDispatchControllerError(t *testing.T) {
	d, fakes := newTestDispatcher(1)
	fakes[0].failSet = errors.New("device busy")

	reply, outcome := d.Dispatch(orgb.NewFrame(0, orgb.UpdateLEDs, []byte{1}))
	if reply != nil {
		t.Errorf("Dispatch() reply = %+v, want nil", reply)
	}
	if got := outcome.DropReason(); got != DropController {
		t.Errorf("DropReason() = %q, want %q", got, DropController)
	}
	// No update may follow a failed set.
	if got, want := fakes[0].Calls(), []string{"SetColorDescription(01)"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Calls() = %q, want %q", got, want)
	}
}

func TestDispatchUnknownPacket(t *testing.T) {
	d, fakes := newTestDispatcher(1)
	expectDrop(t, d, fakes, orgb.NewFrame(0, orgb.PacketID(1234), []byte{1, 2, 3}), DropUnknownPacket)
}

func TestOutcomeDropReasonNotDropped(t *testing.T) {
	if got := applied().DropReason(); got != "" {
		t.Errorf("applied().DropReason() = %q, want empty", got)
	}
	if got := replied().DropReason(); got != "" {
		t.Errorf("replied().DropReason() = %q, want empty", got)
	}
}
