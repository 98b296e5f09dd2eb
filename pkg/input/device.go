package input

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zurustar/keyfall/pkg/logger"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ErrNoInputPort is returned when no MIDI input port matches.
var ErrNoInputPort = errors.New("MIDI input port not found")

// Clock stamps device events with playback time.
type Clock interface {
	EffectiveTime() float64
	IsStarted() bool
	IsPaused() bool
}

// ListInPorts returns the names of the available MIDI input ports.
func ListInPorts() []string {
	var names []string
	for _, port := range gomidi.GetInPorts() {
		names = append(names, port.String())
	}
	return names
}

// FindInPort returns the first input port whose name contains name
// (case-insensitive). An empty name selects the first port.
func FindInPort(name string) (drivers.In, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, port := range gomidi.GetInPorts() {
		if want == "" || strings.Contains(strings.ToLower(port.String()), want) {
			return port, nil
		}
	}
	if want == "" {
		return nil, ErrNoInputPort
	}
	return nil, fmt.Errorf("%w: %q", ErrNoInputPort, name)
}

// Device listens to a hardware MIDI input and feeds the queue. The driver
// callback runs on its own goroutine; it never blocks on the consumer.
type Device struct {
	name  string
	queue *Queue
	clock Clock
	log   *slog.Logger

	stopOnce sync.Once
	stop     func()
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithDeviceLogger sets the logger.
func WithDeviceLogger(log *slog.Logger) DeviceOption {
	return func(d *Device) {
		d.log = log
	}
}

// newDevice builds a Device without opening a port.
func newDevice(name string, q *Queue, c Clock, opts ...DeviceOption) *Device {
	d := &Device{
		name:  name,
		queue: q,
		clock: c,
		log:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OpenDevice starts listening on port.
func OpenDevice(port drivers.In, q *Queue, c Clock, opts ...DeviceOption) (*Device, error) {
	d := newDevice(port.String(), q, c, opts...)

	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		d.handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", d.name, err)
	}
	d.stop = stop
	d.log.Info("MIDI input opened", "port", d.name)
	return d, nil
}

// Name returns the port name.
func (d *Device) Name() string {
	return d.name
}

// handle converts note messages to queue events. Events arriving before the
// clock starts or while it is paused are dropped.
func (d *Device) handle(msg gomidi.Message) {
	var ch, key, vel uint8
	var ev Event

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		ev = Event{Pitch: int(key), Velocity: int(vel), Channel: int(ch)}
	case msg.GetNoteEnd(&ch, &key):
		ev = Event{Pitch: int(key), Velocity: 0, Channel: int(ch)}
	default:
		return
	}

	if !d.clock.IsStarted() || d.clock.IsPaused() {
		return
	}
	ev.Time = d.clock.EffectiveTime()
	ev.Source = SourceMIDI

	if err := d.queue.Push(ev); err != nil {
		d.log.Debug("MIDI event rejected", "port", d.name, "pitch", ev.Pitch, "error", err)
	}
}

// Close stops listening. It is safe to call more than once.
func (d *Device) Close() {
	d.stopOnce.Do(func() {
		if d.stop != nil {
			d.stop()
		}
		d.log.Info("MIDI input closed", "port", d.name)
	})
}
