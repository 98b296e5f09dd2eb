package synth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

// SampleRate is the audio sample rate used for synthesis.
const SampleRate = 44100

// ErrNoSoundFont is returned when no SoundFont file is provided.
var ErrNoSoundFont = errors.New("SoundFont file is required for synthesis")

// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
var ErrSoundFontNotFound = errors.New("SoundFont file not found")

// synthStream implements io.Reader for Ebitengine/audio. Each Read renders
// the synthesizer into 16-bit interleaved stereo.
type synthStream struct {
	synth       *meltysynth.Synthesizer
	sampleCount int64
	stopped     bool
	mu          sync.Mutex
}

// Read renders len(p)/4 stereo frames, or silence once stopped.
func (s *synthStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.synth == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}

	left := make([]float32, samples)
	right := make([]float32, samples)
	s.synth.Render(left, right)
	s.sampleCount += int64(samples)

	for i := range samples {
		l := int16(clamp(left[i], -1, 1) * 32767)
		r := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}
	return len(p), nil
}

// with runs fn while the audio goroutine is excluded from the synthesizer.
func (s *synthStream) with(fn func(*meltysynth.Synthesizer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.synth == nil {
		return
	}
	fn(s.synth)
}

func (s *synthStream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MeltySink renders note decisions with a SoundFont through Ebitengine audio.
type MeltySink struct {
	stream *synthStream
	player *audio.Player
	once   sync.Once
}

// LoadSoundFont reads and parses an .sf2 file.
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
		}
		return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SoundFont: %w", err)
	}
	return sf, nil
}

// NewMeltySink loads the SoundFont at path and starts an audio player on
// audioCtx (created at SampleRate when nil).
func NewMeltySink(path string, audioCtx *audio.Context) (*MeltySink, error) {
	sf, err := LoadSoundFont(path)
	if err != nil {
		return nil, err
	}

	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synthesizer, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	if audioCtx == nil {
		audioCtx = audio.NewContext(SampleRate)
	}

	stream := &synthStream{synth: synthesizer}
	player, err := audioCtx.NewPlayer(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio player: %w", err)
	}
	player.Play()

	return &MeltySink{stream: stream, player: player}, nil
}

func (m *MeltySink) NoteOn(channel, key, velocity int) error {
	m.stream.with(func(s *meltysynth.Synthesizer) {
		s.NoteOn(int32(channel), int32(key), int32(velocity))
	})
	return nil
}

func (m *MeltySink) NoteOff(channel, key int) error {
	m.stream.with(func(s *meltysynth.Synthesizer) {
		s.NoteOff(int32(channel), int32(key))
	})
	return nil
}

func (m *MeltySink) AllNotesOff() error {
	m.stream.with(func(s *meltysynth.Synthesizer) {
		s.NoteOffAll(false)
	})
	return nil
}

// SetVolume sets the player volume in [0, 1].
func (m *MeltySink) SetVolume(v float64) {
	m.player.SetVolume(v)
}

// Close stops rendering and releases the player.
func (m *MeltySink) Close() error {
	var err error
	m.once.Do(func() {
		m.stream.stop()
		err = m.player.Close()
	})
	return err
}
