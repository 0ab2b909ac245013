package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/fake"
)

func newTestBridge(t *testing.T, dev *fake.Audio, max int) *Bridge {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxSessions = max
	b := NewBridge(dev, cfg)
	t.Cleanup(b.Close)
	return b
}

// ─── Capture Tests ──────────────────────────────────────────────────────────

func TestStartCapture_Delivers(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{})
	b := newTestBridge(t, dev, 4)

	var got [][]byte
	s, err := b.StartCapture(domain.CaptureOptions{}, func(chunk []byte) { got = append(got, chunk) })
	if err != nil {
		t.Fatalf("StartCapture() error: %v", err)
	}
	if s.Options().SampleRate != 16000 || s.Options().Channels != 1 {
		t.Errorf("Options() = %+v, want 16 kHz mono", s.Options())
	}

	dev.Emit([]byte{1, 2, 3, 4})
	dev.Emit([]byte{5, 6})
	if len(got) != 2 {
		t.Fatalf("delivered %d chunks, want 2", len(got))
	}
	info := s.Info()
	if info.Chunks != 2 || info.Bytes != 6 {
		t.Errorf("Info() = %+v, want 2 chunks / 6 bytes", info)
	}
}

func TestStop_Idempotent(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{Interval: time.Millisecond})
	b := newTestBridge(t, dev, 4)

	s, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) {})
	if err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
	b.StopCapture(s.ID())
	<-s.Done()

	total, double := dev.StopCalls()
	if total != 1 || double != 0 {
		t.Errorf("device stop calls = %d (double %d), want exactly 1", total, double)
	}
	if !s.Stopped() {
		t.Error("Stopped() = false")
	}
	if len(b.Sessions()) != 0 {
		t.Errorf("Sessions() = %d, want 0", len(b.Sessions()))
	}
}

func TestStop_ConcurrentCallersSingleTeardown(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{})
	b := newTestBridge(t, dev, 4)
	s, _ := b.StartCapture(domain.CaptureOptions{}, func([]byte) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
			// Every caller returns only after teardown.
			select {
			case <-s.Done():
			default:
				t.Error("Stop returned before teardown finished")
			}
		}()
	}
	wg.Wait()

	if total, _ := dev.StopCalls(); total != 1 {
		t.Errorf("device stop calls = %d, want 1", total)
	}
}

func TestStop_NoBuffersAfterReturn(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{})
	b := newTestBridge(t, dev, 4)

	var got atomic.Int32
	s, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) { got.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	dev.Emit([]byte{1, 2})
	s.Stop()

	// Pushes after stop must be dropped.
	dev.Emit([]byte{3, 4})
	if got.Load() != 1 {
		t.Errorf("delivered %d buffers, want 1", got.Load())
	}
}

func TestStop_FromCallback(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{Interval: 100 * time.Microsecond})
	b := newTestBridge(t, dev, 4)

	var (
		session atomic.Pointer[Session]
		ready   = make(chan struct{})
		got     atomic.Int32
	)
	s, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) {
		select {
		case <-ready:
		default:
			return
		}
		if got.Add(1) == 3 {
			session.Load().Stop()
			session.Load().Stop()
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	session.Store(s)
	close(ready)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from the callback never finished teardown")
	}
	time.Sleep(5 * time.Millisecond)
	if got.Load() != 3 {
		t.Errorf("delivered %d buffers, want 3", got.Load())
	}
	if len(b.Sessions()) != 0 {
		t.Errorf("Sessions() = %d, want 0", len(b.Sessions()))
	}
	if total, double := dev.StopCalls(); total != 1 || double != 0 {
		t.Errorf("device stop calls = %d (double %d), want exactly 1", total, double)
	}
}

func TestStartCapture_Limit(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{})
	b := newTestBridge(t, dev, 2)

	s1, _ := b.StartCapture(domain.CaptureOptions{}, func([]byte) {})
	if _, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) {}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) {}); !errors.Is(err, domain.ErrCaptureLimit) {
		t.Errorf("third capture = %v, want ErrCaptureLimit", err)
	}
	s1.Stop()
	if _, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) {}); err != nil {
		t.Errorf("capture after stop = %v", err)
	}
}

func TestStartCapture_InvalidInput(t *testing.T) {
	b := newTestBridge(t, fake.NewAudio(fake.AudioConfig{}), 2)
	if _, err := b.StartCapture(domain.CaptureOptions{}, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("nil callback = %v, want ErrInvalidInput", err)
	}
	if _, err := b.StartCapture(domain.CaptureOptions{Channels: -1}, func([]byte) {}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("negative channels = %v, want ErrInvalidInput", err)
	}
}

func TestStopAllCaptures_EmptiesSet(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{Interval: time.Millisecond})
	b := newTestBridge(t, dev, 8)

	var sessions []*Session
	for i := 0; i < 5; i++ {
		s, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) {})
		if err != nil {
			t.Fatal(err)
		}
		sessions = append(sessions, s)
	}
	sessions[0].Stop()
	<-sessions[0].Done()

	if n := b.StopAllCaptures(); n != 4 {
		t.Errorf("StopAllCaptures() = %d, want 4", n)
	}
	if len(b.Sessions()) != 0 {
		t.Errorf("Sessions() = %d after StopAll, want 0", len(b.Sessions()))
	}
	if dev.Active() != 0 {
		t.Errorf("device captures = %d, want 0", dev.Active())
	}
	for _, s := range sessions {
		s.Stop() // no-op
	}
	if _, double := dev.StopCalls(); double != 0 {
		t.Errorf("double device stops = %d", double)
	}
}

func TestClose_RefusesNewWork(t *testing.T) {
	b := newTestBridge(t, fake.NewAudio(fake.AudioConfig{}), 2)
	b.StartCapture(domain.CaptureOptions{}, func([]byte) {})
	b.Close()

	if len(b.Sessions()) != 0 {
		t.Error("Close should stop every session")
	}
	if _, err := b.StartCapture(domain.CaptureOptions{}, func([]byte) {}); !errors.Is(err, domain.ErrAudioClosed) {
		t.Errorf("capture after close = %v, want ErrAudioClosed", err)
	}
	if err := b.PlayAudio([]int16{1}, domain.PlaybackOptions{}); !errors.Is(err, domain.ErrAudioClosed) {
		t.Errorf("playback after close = %v, want ErrAudioClosed", err)
	}
}

// ─── Playback Tests ─────────────────────────────────────────────────────────

func TestPlayAudio(t *testing.T) {
	dev := fake.NewAudio(fake.AudioConfig{})
	b := newTestBridge(t, dev, 2)

	// Playback is not serialized against an active capture.
	b.StartCapture(domain.CaptureOptions{}, func([]byte) {})

	tone := make([]int16, 1600)
	for i := range tone {
		tone[i] = int16(i % 100)
	}
	if err := b.PlayAudio(tone, domain.PlaybackOptions{}); err != nil {
		t.Fatalf("PlayAudio() error: %v", err)
	}
	if played := dev.Played(); len(played) != 1 || len(played[0]) != 1600 {
		t.Errorf("Played() = %d buffers", len(played))
	}

	tests := []struct {
		name    string
		samples []int16
		opts    domain.PlaybackOptions
	}{
		{"empty buffer", nil, domain.PlaybackOptions{}},
		{"negative rate", []int16{1}, domain.PlaybackOptions{SampleRate: -8000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.PlayAudio(tt.samples, tt.opts); !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("PlayAudio() = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestPlayAudio_DeviceError(t *testing.T) {
	boom := errors.New("no output device")
	b := newTestBridge(t, fake.NewAudio(fake.AudioConfig{RenderErr: boom}), 2)
	if err := b.PlayAudio([]int16{1, 2}, domain.PlaybackOptions{}); !errors.Is(err, boom) {
		t.Errorf("PlayAudio() = %v, want %v", err, boom)
	}
}

func TestDevices(t *testing.T) {
	b := newTestBridge(t, fake.NewAudio(fake.AudioConfig{}), 2)
	devs, err := b.Devices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var in, out int
	for _, d := range devs {
		switch d.Type {
		case domain.DeviceInput:
			in++
		case domain.DeviceOutput:
			out++
		}
	}
	if in != 1 || out != 1 {
		t.Errorf("devices: %d input, %d output, want 1 and 1", in, out)
	}
}
