package server

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/events"
)

// fakeController records every call it receives.
type fakeController struct {
	mu    sync.Mutex
	calls []string

	desc    []byte
	failSet error

	// busy/overlap detect calls that run concurrently on one controller.
	busy    atomic.Bool
	overlap atomic.Bool
}

var _ controller.Controller = (*fakeController)(nil)

func newFakeController(name string) *fakeController {
	body := []byte(name)
	desc := binary.LittleEndian.AppendUint32(nil, uint32(4+len(body)))
	return &fakeController{desc: append(desc, body...)}
}

func (f *fakeController) record(format string, args ...any) {
	if f.busy.Swap(true) {
		f.overlap.Store(true)
	}
	time.Sleep(10 * time.Microsecond)
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
	f.busy.Store(false)
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) ResizeZone(zone, size int32) error {
	f.record("ResizeZone(%d,%d)", zone, size)
	return nil
}

func (f *fakeController) SetColorDescription(desc []byte) error {
	f.record("SetColorDescription(%x)", desc)
	return f.failSet
}

func (f *fakeController) UpdateLEDs() error {
	f.record("UpdateLEDs()")
	return nil
}

func (f *fakeController) SetZoneColorDescription(desc []byte) error {
	f.record("SetZoneColorDescription(%x)", desc)
	return f.failSet
}

func (f *fakeController) UpdateZoneLEDs(zone int32) error {
	f.record("UpdateZoneLEDs(%d)", zone)
	return nil
}

func (f *fakeController) SetSingleLEDColorDescription(desc []byte) error {
	f.record("SetSingleLEDColorDescription(%x)", desc)
	return f.failSet
}

func (f *fakeController) UpdateSingleLED(led int32) error {
	f.record("UpdateSingleLED(%d)", led)
	return nil
}

func (f *fakeController) SetCustomMode() error {
	f.record("SetCustomMode()")
	return nil
}

func (f *fakeController) SetModeDescription(desc []byte) error {
	f.record("SetModeDescription(%x)", desc)
	return f.failSet
}

func (f *fakeController) UpdateMode() error {
	f.record("UpdateMode()")
	return nil
}

func (f *fakeController) DeviceDescription() []byte {
	return f.desc
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) bool {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return true
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
