package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/saira-network/saira/internal/domain"
)

// AudioConfig controls the fake audio device.
type AudioConfig struct {
	// Interval between generated chunks. Zero disables the generator;
	// chunks are then pushed with Emit.
	Interval  time.Duration
	RenderErr error
}

// Audio is an in-memory domain.AudioDevice.
type Audio struct {
	cfg AudioConfig

	mu         sync.Mutex
	captures   map[int]*capture
	nextID     int
	stopCalls  int
	doubleStop int
	played     [][]int16
}

type capture struct {
	opts     domain.CaptureOptions
	onBuffer domain.BufferFunc
	quit     chan struct{}
	exited   chan struct{}
	stopped  bool
}

// NewAudio creates a fake device.
func NewAudio(cfg AudioConfig) *Audio {
	return &Audio{cfg: cfg, captures: make(map[int]*capture)}
}

// Devices lists one default input and one default output.
func (a *Audio) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []domain.DeviceInfo{
		{ID: "fake-in-0", Name: "Fake Microphone", Type: domain.DeviceInput, IsDefault: true},
		{ID: "fake-out-0", Name: "Fake Speaker", Type: domain.DeviceOutput, IsDefault: true},
	}, nil
}

// BeginCapture starts a capture stream.
func (a *Audio) BeginCapture(opts domain.CaptureOptions, onBuffer domain.BufferFunc) (domain.StopFunc, error) {
	if onBuffer == nil {
		return nil, errors.New("nil buffer callback")
	}
	c := &capture{
		opts:     opts,
		onBuffer: onBuffer,
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.captures[id] = c
	a.mu.Unlock()

	if a.cfg.Interval > 0 {
		go a.generate(c)
	} else {
		close(c.exited)
	}

	return func() { a.stop(id, c) }, nil
}

// generate emits 10 ms chunks of silence until stopped.
func (a *Audio) generate(c *capture) {
	defer close(c.exited)
	size := c.opts.SampleRate / 100 * c.opts.Channels * 2
	if size <= 0 {
		size = 320
	}
	tick := time.NewTicker(a.cfg.Interval)
	defer tick.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-tick.C:
			c.onBuffer(make([]byte, size))
		}
	}
}

func (a *Audio) stop(id int, c *capture) {
	a.mu.Lock()
	a.stopCalls++
	if c.stopped {
		a.doubleStop++
		a.mu.Unlock()
		return
	}
	c.stopped = true
	delete(a.captures, id)
	a.mu.Unlock()

	if a.cfg.Interval > 0 {
		close(c.quit)
	}
	<-c.exited
}

// Emit delivers chunk synchronously to every running capture.
func (a *Audio) Emit(chunk []byte) int {
	a.mu.Lock()
	cbs := make([]domain.BufferFunc, 0, len(a.captures))
	for _, c := range a.captures {
		cbs = append(cbs, c.onBuffer)
	}
	a.mu.Unlock()

	for _, cb := range cbs {
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		cb(buf)
	}
	return len(cbs)
}

// Render records the samples.
func (a *Audio) Render(samples []int16, _ domain.PlaybackOptions) error {
	if a.cfg.RenderErr != nil {
		return a.cfg.RenderErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, append([]int16(nil), samples...))
	return nil
}

// Active returns the number of running captures.
func (a *Audio) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.captures)
}

// StopCalls returns how many times any stop function ran, and how many of
// those hit an already stopped stream.
func (a *Audio) StopCalls() (total, double int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCalls, a.doubleStop
}

// Played returns every rendered buffer.
func (a *Audio) Played() [][]int16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]int16(nil), a.played...)
}
