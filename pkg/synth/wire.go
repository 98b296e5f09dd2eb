package synth

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/zurustar/keyfall/pkg/logger"
	gomidi "gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
)

// DefaultBaudRate is the MIDI DIN baud rate.
const DefaultBaudRate = 31250

// ccAllNotesOff is the channel mode message that releases every note.
const ccAllNotesOff = 123

// SerialSink writes raw MIDI bytes to a serial device, such as a USB-to-DIN
// adapter or a microcontroller bridge.
type SerialSink struct {
	mu   sync.Mutex
	w    io.WriteCloser
	name string
	log  *slog.Logger
}

// OpenSerial opens the named serial device. A baud of 0 selects
// DefaultBaudRate.
func OpenSerial(name string, baud int, log *slog.Logger) (*SerialSink, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if log == nil {
		log = logger.GetLogger()
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	log.Info("Serial port opened", "device", name, "baud", baud)
	return newSerialSink(name, port, log), nil
}

func newSerialSink(name string, w io.WriteCloser, log *slog.Logger) *SerialSink {
	return &SerialSink{w: w, name: name, log: log}
}

func (s *SerialSink) write(msg gomidi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	if _, err := s.w.Write(msg); err != nil {
		s.log.Error("Serial write failed", "device", s.name, "err", err)
		return err
	}
	return nil
}

func (s *SerialSink) NoteOn(channel, key, velocity int) error {
	return s.write(gomidi.NoteOn(uint8(channel), uint8(key), uint8(velocity)))
}

func (s *SerialSink) NoteOff(channel, key int) error {
	return s.write(gomidi.NoteOff(uint8(channel), uint8(key)))
}

// AllNotesOff sends the all-notes-off controller on every channel.
func (s *SerialSink) AllNotesOff() error {
	for ch := range 16 {
		if err := s.write(gomidi.ControlChange(uint8(ch), ccAllNotesOff, 0)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	s.log.Info("Closing serial port", "device", s.name)
	err := s.w.Close()
	s.w = nil
	return err
}

// ListOutPorts returns the names of the available MIDI output ports.
func ListOutPorts() []string {
	var names []string
	for _, port := range gomidi.GetOutPorts() {
		names = append(names, port.String())
	}
	return names
}

// PortSink sends note decisions to a MIDI output port.
type PortSink struct {
	name string
	send func(gomidi.Message) error
	log  *slog.Logger
}

// OpenPort opens the first output port whose name matches exactly, or
// failing that, the first one containing name.
func OpenPort(name string, log *slog.Logger) (*PortSink, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	outs := gomidi.GetOutPorts()
	for pass := 0; pass < 2; pass++ {
		for _, port := range outs {
			match := port.String() == name
			if pass == 1 {
				match = containsFold(port.String(), name)
			}
			if !match {
				continue
			}
			send, err := gomidi.SendTo(port)
			if err != nil {
				return nil, fmt.Errorf("failed to open MIDI output %s: %w", port.String(), err)
			}
			log.Info("MIDI output opened", "port", port.String())
			return &PortSink{name: port.String(), send: send, log: log}, nil
		}
	}
	return nil, fmt.Errorf("MIDI output port not found: %q", name)
}

// Name returns the port name.
func (p *PortSink) Name() string {
	return p.name
}

func (p *PortSink) NoteOn(channel, key, velocity int) error {
	return p.send(gomidi.NoteOn(uint8(channel), uint8(key), uint8(velocity)))
}

func (p *PortSink) NoteOff(channel, key int) error {
	return p.send(gomidi.NoteOff(uint8(channel), uint8(key)))
}

func (p *PortSink) AllNotesOff() error {
	for ch := range 16 {
		if err := p.send(gomidi.ControlChange(uint8(ch), ccAllNotesOff, 0)); err != nil {
			return err
		}
	}
	return nil
}

// Close releases held notes. The driver owns the port itself.
func (p *PortSink) Close() error {
	return p.AllNotesOff()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}
