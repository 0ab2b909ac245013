// Package audio manages live capture sessions and playback requests on top
// of a platform audio device.
//
// Capture sessions form a bounded active set. Each session has an
// idempotent Stop: the first call tears the device stream down and removes
// the session from the set, later calls return once that has happened.
// Playback is independent of capture and never waits on the session set.
package audio

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/observability"
)

// Config controls bridge behavior.
type Config struct {
	MaxSessions int // concurrent capture sessions (default: 4)
	Logger      zerolog.Logger
}

// DefaultConfig returns safe bridge defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions: 4,
		Logger:      zerolog.Nop(),
	}
}

// Bridge owns the active capture-session set.
type Bridge struct {
	device domain.AudioDevice
	config Config
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewBridge creates a bridge over device.
func NewBridge(device domain.AudioDevice, cfg Config) *Bridge {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	return &Bridge{
		device:   device,
		config:   cfg,
		log:      cfg.Logger.With().Str("component", "audio").Logger(),
		sessions: make(map[string]*Session),
	}
}

// ─── Capture ────────────────────────────────────────────────────────────────

// StartCapture opens a capture stream and registers it in the active set.
// onBuffer receives successive raw PCM chunks on a device goroutine and may
// stop its own session.
func (b *Bridge) StartCapture(opts domain.CaptureOptions, onBuffer domain.BufferFunc) (*Session, error) {
	if onBuffer == nil {
		return nil, fmt.Errorf("capture: nil buffer callback: %w", domain.ErrInvalidInput)
	}
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, domain.ErrAudioClosed
	}
	if len(b.sessions) >= b.config.MaxSessions {
		return nil, fmt.Errorf("capture: %d sessions active: %w", len(b.sessions), domain.ErrCaptureLimit)
	}

	s := &Session{
		id:        uuid.NewString(),
		opts:      opts,
		startedAt: time.Now(),
		bridge:    b,
		onBuffer:  onBuffer,
		done:      make(chan struct{}),
	}
	stop, err := b.device.BeginCapture(opts, s.deliver)
	if err != nil {
		return nil, fmt.Errorf("begin capture: %w", err)
	}
	s.stopDevice = stop
	b.sessions[s.id] = s
	observability.CaptureSessions.Set(float64(len(b.sessions)))

	b.log.Info().Str("session", s.id).Str("device", opts.DeviceID).
		Int("sample_rate", opts.SampleRate).Int("channels", opts.Channels).Msg("capture started")
	return s, nil
}

// StopCapture stops the session with the given ID. Unknown or already
// stopped sessions are a no-op.
func (b *Bridge) StopCapture(id string) {
	b.mu.Lock()
	s := b.sessions[id]
	b.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// StopAllCaptures stops every active session. When it returns, every
// session that was active on entry has been torn down and removed.
func (b *Bridge) StopAllCaptures() int {
	b.mu.Lock()
	active := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		active = append(active, s)
	}
	b.mu.Unlock()

	for _, s := range active {
		s.Stop()
		<-s.Done()
	}
	if len(active) > 0 {
		b.log.Info().Int("sessions", len(active)).Msg("all captures stopped")
	}
	return len(active)
}

// Close stops every session and refuses new captures and playback.
// Called on process termination. Safe to call more than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.StopAllCaptures()
}

func (b *Bridge) remove(id string) {
	b.mu.Lock()
	delete(b.sessions, id)
	observability.CaptureSessions.Set(float64(len(b.sessions)))
	b.mu.Unlock()
}

// SessionInfo is a snapshot of one capture session.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id,omitempty"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	StartedAt  time.Time `json:"started_at"`
	Chunks     int64     `json:"chunks"`
	Bytes      int64     `json:"bytes"`
}

// Sessions returns the active sessions, oldest first.
func (b *Bridge) Sessions() []SessionInfo {
	b.mu.Lock()
	active := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		active = append(active, s)
	}
	b.mu.Unlock()

	out := make([]SessionInfo, 0, len(active))
	for _, s := range active {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// ─── Playback & Devices ─────────────────────────────────────────────────────

// PlayAudio renders a signed 16-bit sample buffer. It returns once the
// device accepted the buffer, without waiting for playback to finish.
func (b *Bridge) PlayAudio(samples []int16, opts domain.PlaybackOptions) error {
	if len(samples) == 0 {
		return fmt.Errorf("playback: empty sample buffer: %w", domain.ErrInvalidInput)
	}
	opts = opts.WithDefaults()
	if opts.SampleRate <= 0 || opts.Channels <= 0 {
		return fmt.Errorf("playback format %d Hz x %d ch: %w", opts.SampleRate, opts.Channels, domain.ErrInvalidInput)
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return domain.ErrAudioClosed
	}

	if err := b.device.Render(samples, opts); err != nil {
		observability.Playbacks.WithLabelValues("error").Inc()
		return fmt.Errorf("render: %w", err)
	}
	observability.Playbacks.WithLabelValues("ok").Inc()
	b.log.Debug().Int("samples", len(samples)).Int("sample_rate", opts.SampleRate).Msg("playback started")
	return nil
}

// Devices lists input and output devices.
func (b *Bridge) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	return b.device.Devices(ctx)
}
