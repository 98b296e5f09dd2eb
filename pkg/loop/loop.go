// Package loop drives a session at a fixed rate when no window owns the
// frame loop, as in headless runs.
package loop

import (
	"sync"
	"time"
)

// DefaultInterval is one frame at 60 Hz.
const DefaultInterval = time.Second / 60

// Ticker calls a step function at a fixed interval on its own goroutine
// until the function reports completion or Stop is called.
type Ticker struct {
	// interval is the duration between steps.
	interval time.Duration

	// step runs once per tick; returning true ends the loop.
	step func() bool

	ticker *time.Ticker

	running bool

	// stopCh signals the goroutine to stop.
	stopCh chan struct{}

	// doneCh is closed when the goroutine has exited.
	doneCh chan struct{}

	// finished is closed once step reported completion.
	finished   chan struct{}
	finishOnce sync.Once

	mu sync.Mutex
}

// NewTicker creates a Ticker. A non-positive interval selects
// DefaultInterval.
func NewTicker(interval time.Duration, step func() bool) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{
		interval: interval,
		step:     step,
		finished: make(chan struct{}),
	}
}

// Start begins ticking. It does nothing when already running or finished.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running || t.isFinished() {
		return
	}

	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.ticker = time.NewTicker(t.interval)

	go t.run(t.stopCh, t.doneCh, t.ticker)
}

func (t *Ticker) run(stopCh, doneCh chan struct{}, ticker *time.Ticker) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if t.step() {
				t.mu.Lock()
				t.running = false
				ticker.Stop()
				t.mu.Unlock()
				t.finishOnce.Do(func() { close(t.finished) })
				return
			}
		}
	}
}

// Stop stops ticking and waits for the goroutine to exit. It does nothing
// when not running.
func (t *Ticker) Stop() {
	t.mu.Lock()

	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	doneCh := t.doneCh
	t.mu.Unlock()

	// Wait outside the lock; the goroutine takes it on completion.
	<-doneCh

	t.mu.Lock()
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	t.stopCh = nil
	t.doneCh = nil
	t.mu.Unlock()
}

// Done is closed once the step function reported completion.
func (t *Ticker) Done() <-chan struct{} {
	return t.finished
}

// isFinished must be called with mu held.
func (t *Ticker) isFinished() bool {
	select {
	case <-t.finished:
		return true
	default:
		return false
	}
}

// Interval returns the duration between steps.
func (t *Ticker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Ticker) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
