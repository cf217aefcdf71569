package server

import (
	"errors"
	"fmt"

	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/events"
	"github.com/nerrad567/orgbd/internal/orgb"
)

// Drop reasons reported in metrics and events.
const (
	DropIndexOutOfRange = "index_out_of_range"
	DropInvalidPayload  = "invalid_payload"
	DropUnknownPacket   = "unknown_packet"
	DropController      = "controller_error"
	DropReply           = "reply_error"
)

// Outcome describes what happened to one dispatched frame.
type Outcome struct {
	// Status is events.OutcomeApplied, events.OutcomeReplied or
	// events.OutcomeDropped.
	Status string

	// Reason is set when Status is events.OutcomeDropped.
	Reason error
}

// Dropped reports whether the frame had no effect.
func (o Outcome) Dropped() bool {
	return o.Status == events.OutcomeDropped
}

// DropReason classifies Reason into one of the Drop* constants, or "" when
// the frame was not dropped.
func (o Outcome) DropReason() string {
	switch {
	case !o.Dropped():
		return ""
	case errors.Is(o.Reason, controller.ErrIndexOutOfRange):
		return DropIndexOutOfRange
	case errors.Is(o.Reason, orgb.ErrInvalidPayload):
		return DropInvalidPayload
	case errors.Is(o.Reason, orgb.ErrUnknownPacket):
		return DropUnknownPacket
	case errors.Is(o.Reason, orgb.ErrShortDescription):
		return DropReply
	default:
		return DropController
	}
}

func applied() Outcome { return Outcome{Status: events.OutcomeApplied} }

func replied() Outcome { return Outcome{Status: events.OutcomeReplied} }

func dropped(err error) Outcome { return Outcome{Status: events.OutcomeDropped, Reason: err} }

// Dispatcher validates requests and applies them to the registry.
//
// Dispatch is safe for concurrent use; serialisation per controller comes
// from the registry.
type Dispatcher struct {
	registry *controller.Registry
}

// NewDispatcher returns a dispatcher over registry.
func NewDispatcher(registry *controller.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch handles one complete frame.
//
// Parameters:
//   - f: frame as read by the decoder; its payload is not retained
//
// Returns:
//   - *orgb.Frame: reply to write, nil for mutations and drops
//   - Outcome: what happened, including the drop reason
func (d *Dispatcher) Dispatch(f orgb.Frame) (*orgb.Frame, Outcome) {
	cmd, err := orgb.DecodeCommand(f)
	if err != nil {
		return nil, dropped(err)
	}

	index := f.Header.DeviceIndex

	switch c := cmd.(type) {
	case orgb.RequestControllerCountCmd:
		reply := orgb.ControllerCountReply(uint32(d.registry.Len())) //nolint:gosec // registry sizes are small
		return &reply, replied()

	case orgb.RequestControllerDataCmd:
		var reply orgb.Frame
		err := d.registry.With(index, func(ctrl controller.Controller) error {
			var err error
			reply, err = orgb.ControllerDataReply(index, ctrl.DeviceDescription())
			return err
		})
		if err != nil {
			return nil, dropped(err)
		}
		return &reply, replied()

	default:
		err := d.registry.With(index, func(ctrl controller.Controller) error {
			return apply(ctrl, c)
		})
		if err != nil {
			return nil, dropped(err)
		}
		return nil, applied()
	}
}

// apply runs the controller calls for a mutation command. The caller holds
// the controller's registry lock.
func apply(ctrl controller.Controller, cmd orgb.Command) error {
	switch c := cmd.(type) {
	case orgb.ResizeZoneCmd:
		return ctrl.ResizeZone(c.Zone, c.NewSize)

	case orgb.UpdateLEDsCmd:
		if err := ctrl.SetColorDescription(c.Description); err != nil {
			return fmt.Errorf("set colour description: %w", err)
		}
		return ctrl.UpdateLEDs()

	case orgb.UpdateZoneLEDsCmd:
		if err := ctrl.SetZoneColorDescription(c.Description); err != nil {
			return fmt.Errorf("set zone colour description: %w", err)
		}
		return ctrl.UpdateZoneLEDs(c.Zone)

	case orgb.UpdateSingleLEDCmd:
		if err := ctrl.SetSingleLEDColorDescription(c.Description); err != nil {
			return fmt.Errorf("set single led colour description: %w", err)
		}
		return ctrl.UpdateSingleLED(c.LED)

	case orgb.SetCustomModeCmd:
		return ctrl.SetCustomMode()

	case orgb.UpdateModeCmd:
		if err := ctrl.SetModeDescription(c.Description); err != nil {
			return fmt.Errorf("set mode description: %w", err)
		}
		return ctrl.UpdateMode()
	}
	return fmt.Errorf("%w: %s", orgb.ErrUnknownPacket, cmd.PacketID())
}
