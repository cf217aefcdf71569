package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/events"
	"github.com/nerrad567/orgbd/internal/infrastructure/influxdb"
	"github.com/nerrad567/orgbd/internal/infrastructure/mqtt"
)

// jsonPublisher is the part of *mqtt.Client the state sink needs.
type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// deviceState is the retained payload of {prefix}/state/{index}.
type deviceState struct {
	Index      uint32   `json:"index"`
	Name       string   `json:"name"`
	Packet     string   `json:"packet"`
	ActiveMode int32    `json:"active_mode"`
	Colors     []string `json:"colors"`
	Updates    uint64   `json:"updates,omitempty"`
}

// mqttSink publishes applied device state and session lifecycle events.
type mqttSink struct {
	pub      jsonPublisher
	topics   mqtt.Topics
	registry *controller.Registry
}

func newMQTTSink(pub jsonPublisher, topics mqtt.Topics, registry *controller.Registry) *mqttSink {
	return &mqttSink{pub: pub, topics: topics, registry: registry}
}

// Handle implements events.Sink.
func (s *mqttSink) Handle(_ context.Context, ev events.Event) error {
	switch ev.Type {
	case events.RequestHandled:
		if ev.Outcome != events.OutcomeApplied {
			return nil
		}
		state, err := s.deviceState(ev.DeviceIndex)
		if err != nil {
			return err
		}
		state.Packet = ev.Packet
		return s.pub.PublishJSON(s.topics.DeviceState(ev.DeviceIndex), state, true)
	case events.SessionOpened, events.SessionClosed:
		return s.pub.PublishJSON(s.topics.SessionEvent(ev.SessionID), ev, false)
	case events.SessionRejected:
		return s.pub.PublishJSON(s.topics.SessionEvent("rejected"), ev, false)
	}
	return nil
}

// publishAll republishes the retained state of every controller, so a broker
// that lost its retained messages is brought back up to date on reconnect.
func (s *mqttSink) publishAll() error {
	var errs []error
	for i := range s.registry.Len() {
		index := uint32(i) //nolint:gosec // registry sizes are small
		state, err := s.deviceState(index)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.pub.PublishJSON(s.topics.DeviceState(index), state, true); err != nil {
			errs = append(errs, fmt.Errorf("publishing state of device %d: %w", index, err))
		}
	}
	return errors.Join(errs...)
}

// deviceState snapshots the controller under its registry lock. Controllers
// that cannot report applied state fall back to their description colours.
func (s *mqttSink) deviceState(index uint32) (deviceState, error) {
	state := deviceState{Index: index}
	var colors []controller.Color
	err := s.registry.With(index, func(c controller.Controller) error {
		d, err := controller.DecodeDescription(c.DeviceDescription())
		if err != nil {
			return err
		}
		state.Name = d.Name
		state.ActiveMode = d.ActiveMode
		colors = d.Colors
		if r, ok := c.(controller.StateReporter); ok {
			vs := r.State()
			state.ActiveMode = vs.AppliedMode
			state.Updates = vs.Updates
			colors = vs.Applied
		}
		return nil
	})
	if err != nil {
		return state, fmt.Errorf("reading state of device %d: %w", index, err)
	}

	state.Colors = make([]string, len(colors))
	for i, c := range colors {
		state.Colors[i] = c.String()
	}
	return state, nil
}

// seriesWriter is the part of *influxdb.Client the history sink needs.
type seriesWriter interface {
	WriteRequest(p influxdb.RequestPoint)
	WriteSession(p influxdb.SessionPoint)
}

// influxSink records every event as a time-series point.
type influxSink struct {
	w seriesWriter
}

// Handle implements events.Sink.
func (s influxSink) Handle(_ context.Context, ev events.Event) error {
	switch ev.Type {
	case events.RequestHandled:
		s.w.WriteRequest(influxdb.RequestPoint{
			DeviceIndex: ev.DeviceIndex,
			Packet:      ev.Packet,
			Outcome:     ev.Outcome,
			Reason:      ev.Reason,
			PayloadSize: ev.PayloadSize,
			Duration:    ev.Duration,
			Time:        ev.Time,
		})
	case events.SessionOpened, events.SessionClosed, events.SessionRejected:
		s.w.WriteSession(influxdb.SessionPoint{
			SessionID:  ev.SessionID,
			Event:      sessionEventName(ev.Type),
			Reason:     ev.Reason,
			RemoteAddr: ev.RemoteAddr,
			Frames:     ev.Frames,
			Duration:   ev.Duration,
			Time:       ev.Time,
		})
	}
	return nil
}

func sessionEventName(t events.Type) string {
	switch t {
	case events.SessionOpened:
		return "opened"
	case events.SessionRejected:
		return "rejected"
	default:
		return "closed"
	}
}
