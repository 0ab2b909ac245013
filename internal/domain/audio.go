package domain

import "fmt"

// ─── Audio Types ────────────────────────────────────────────────────────────

// Default capture/playback format: 16 kHz mono signed 16-bit PCM.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// DeviceType tells input devices from output devices.
type DeviceType string

const (
	DeviceInput  DeviceType = "input"
	DeviceOutput DeviceType = "output"
)

// DeviceInfo describes one audio device.
type DeviceInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      DeviceType `json:"type"`
	IsDefault bool       `json:"is_default"`
}

// CaptureOptions configures an audio capture session.
type CaptureOptions struct {
	DeviceID   string `json:"device_id,omitempty"` // empty = system default
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// WithDefaults fills unset fields with the default capture format.
func (o CaptureOptions) WithDefaults() CaptureOptions {
	if o.SampleRate == 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Channels == 0 {
		o.Channels = DefaultChannels
	}
	return o
}

// Validate rejects negative format values.
func (o CaptureOptions) Validate() error {
	if o.SampleRate < 0 || o.Channels < 0 {
		return fmt.Errorf("capture format %d Hz x %d ch: %w", o.SampleRate, o.Channels, ErrInvalidInput)
	}
	return nil
}

// PlaybackOptions configures rendering of a sample buffer.
type PlaybackOptions struct {
	DeviceID   string `json:"device_id,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// WithDefaults fills unset fields with the default playback format.
func (o PlaybackOptions) WithDefaults() PlaybackOptions {
	if o.SampleRate == 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Channels == 0 {
		o.Channels = DefaultChannels
	}
	return o
}

// BufferFunc receives one chunk of raw captured audio. The slice is owned
// by the callee.
type BufferFunc func(chunk []byte)

// StopFunc stops a device-level capture stream.
type StopFunc func()
