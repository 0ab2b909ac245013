// Package miniaudio implements domain.AudioDevice on top of miniaudio via
// the malgo bindings. One malgo context is shared by every device the
// package opens.
package miniaudio

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/saira-network/saira/internal/domain"
)

// Device is the native audio layer.
type Device struct {
	ctx    *malgo.AllocatedContext
	logger zerolog.Logger

	setup gate

	mu        sync.Mutex
	playbacks map[*malgo.Device]struct{}
}

// Open initializes the platform audio context.
func Open(logger zerolog.Logger) (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug().Str("component", "miniaudio").Msg(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Device{
		ctx:       ctx,
		logger:    logger.With().Str("component", "miniaudio").Logger(),
		playbacks: make(map[*malgo.Device]struct{}),
	}, nil
}

// Devices lists capture devices followed by playback devices.
func (d *Device) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.DeviceInfo
	for _, kind := range []struct {
		mode malgo.DeviceType
		typ  domain.DeviceType
	}{
		{malgo.Capture, domain.DeviceInput},
		{malgo.Playback, domain.DeviceOutput},
	} {
		infos, err := d.ctx.Devices(kind.mode)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s devices: %w", kind.typ, err)
		}
		for _, info := range infos {
			out = append(out, domain.DeviceInfo{
				ID:        encodeDeviceID(info.ID[:]),
				Name:      info.Name(),
				Type:      kind.typ,
				IsDefault: info.IsDefault != 0,
			})
		}
	}
	return out, nil
}

// BeginCapture opens and starts a capture device delivering signed 16-bit PCM.
func (d *Device) BeginCapture(opts domain.CaptureOptions, onBuffer domain.BufferFunc) (domain.StopFunc, error) {
	if onBuffer == nil {
		return nil, errors.New("nil buffer callback")
	}
	leave, err := d.setup.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	opts = opts.WithDefaults()

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(opts.Channels)
	cfg.SampleRate = uint32(opts.SampleRate)
	if opts.DeviceID != "" {
		id, err := decodeDeviceID(opts.DeviceID)
		if err != nil {
			return nil, err
		}
		cfg.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// input is reused by miniaudio after the callback returns.
			chunk := make([]byte, len(input))
			copy(chunk, input)
			onBuffer(chunk)
		},
	}
	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Stop is synchronous: no data callback runs after it returns.
			if err := dev.Stop(); err != nil {
				d.logger.Warn().Err(err).Msg("stop capture device")
			}
			dev.Uninit()
		})
	}
	return stop, nil
}

// Render starts playback of samples on a fresh device and returns. The
// device is torn down once the buffer has been played out.
func (d *Device) Render(samples []int16, opts domain.PlaybackOptions) error {
	if len(samples) == 0 {
		return fmt.Errorf("empty sample buffer: %w", domain.ErrInvalidInput)
	}
	leave, err := d.setup.enter()
	if err != nil {
		return err
	}
	defer leave()
	opts = opts.WithDefaults()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(opts.Channels)
	cfg.SampleRate = uint32(opts.SampleRate)
	if opts.DeviceID != "" {
		id, err := decodeDeviceID(opts.DeviceID)
		if err != nil {
			return err
		}
		cfg.Playback.DeviceID = id.Pointer()
	}

	cur := newCursor(samplesToBytes(samples))
	dev, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{Data: cur.fill})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("start playback device: %w", err)
	}

	d.mu.Lock()
	d.playbacks[dev] = struct{}{}
	d.mu.Unlock()

	go func() {
		<-cur.done
		d.mu.Lock()
		_, live := d.playbacks[dev]
		delete(d.playbacks, dev)
		d.mu.Unlock()
		if !live {
			return // already torn down by Close
		}
		dev.Stop()
		dev.Uninit()
	}()
	return nil
}

// Close stops any playback still running and frees the audio context once
// every device setup in progress has finished. Capture sessions must be
// stopped by their owners first.
func (d *Device) Close() error {
	if !d.setup.shut() {
		return nil
	}

	d.mu.Lock()
	devs := make([]*malgo.Device, 0, len(d.playbacks))
	for dev := range d.playbacks {
		devs = append(devs, dev)
	}
	clear(d.playbacks)
	d.mu.Unlock()

	for _, dev := range devs {
		dev.Stop()
		dev.Uninit()
	}
	if err := d.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit audio context: %w", err)
	}
	d.ctx.Free()
	return nil
}

func encodeDeviceID(id []byte) string {
	return hex.EncodeToString(id)
}

func decodeDeviceID(s string) (malgo.DeviceID, error) {
	var id malgo.DeviceID
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) > len(id) {
		return id, fmt.Errorf("device id %q: %w", s, domain.ErrInvalidInput)
	}
	copy(id[:], raw)
	return id, nil
}
