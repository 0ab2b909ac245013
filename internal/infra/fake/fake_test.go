package fake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/provider"
)

func TestText_GenerateAndEmbed(t *testing.T) {
	b := NewBackends(DefaultConfig())
	tb, err := b.NewText(context.Background(), "/models/llama.gguf")
	if err != nil {
		t.Fatal(err)
	}

	got, err := tb.Generate(context.Background(), "hello", domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got != "Mock generated text for: hello" {
		t.Errorf("Generate() = %q", got)
	}

	v1, _ := tb.Embed(context.Background(), "same")
	v2, _ := tb.Embed(context.Background(), "same")
	if len(v1) != 4 {
		t.Fatalf("len(Embed()) = %d, want 4", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("Embed() not deterministic: %v vs %v", v1, v2)
		}
		if v1[i] < 0 || v1[i] >= 1 {
			t.Errorf("component %d = %v, want [0,1)", i, v1[i])
		}
	}
}

func TestText_DetectsOverlap(t *testing.T) {
	b := NewBackends(Config{EmbeddingDim: 4, Delay: 20 * time.Millisecond})
	tb, _ := b.NewText(context.Background(), "/m")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb.Generate(context.Background(), "x", domain.GenerateOptions{})
		}()
	}
	wg.Wait()

	if b.Texts()[0].Overlaps() == 0 {
		t.Error("concurrent calls on one instance should be counted as overlap")
	}
}

func TestText_CountsEveryOverlap(t *testing.T) {
	b := NewBackends(DefaultConfig())
	b.NewText(context.Background(), "/m")
	in := &b.Texts()[0].instance

	// The third call starts after the first finished but while the second
	// is still running, so it overlaps too.
	first, _ := in.enter(context.Background())
	second, _ := in.enter(context.Background())
	first()
	third, _ := in.enter(context.Background())
	second()
	third()

	if got := in.Overlaps(); got != 2 {
		t.Errorf("Overlaps() = %d, want 2", got)
	}
	fourth, _ := in.enter(context.Background())
	fourth()
	if got := in.Overlaps(); got != 2 {
		t.Errorf("Overlaps() after a solo call = %d, want 2", got)
	}
}

func TestRelease_Twice(t *testing.T) {
	b := NewBackends(DefaultConfig())
	sb, _ := b.NewSpeech(context.Background(), "/w")
	if err := sb.Release(); err != nil {
		t.Fatal(err)
	}
	if err := sb.Release(); !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("second Release() = %v, want ErrDoubleRelease", err)
	}
	if _, err := sb.Transcribe(context.Background(), []byte{1}, domain.TranscribeOptions{}); err == nil {
		t.Error("Transcribe after Release should fail")
	}
}

func TestRegister(t *testing.T) {
	reg := provider.New()
	b := NewBackends(DefaultConfig())
	b.Register(reg)

	backend, err := reg.Construct(context.Background(), domain.ModelASR, "/models/whisper.bin")
	if err != nil {
		t.Fatal(err)
	}
	text, _ := backend.(domain.SpeechBackend).Transcribe(context.Background(), []byte{1, 2, 3}, domain.TranscribeOptions{})
	if !strings.HasPrefix(text, "Mock transcription for audio from /models/whisper.bin") {
		t.Errorf("Transcribe() = %q", text)
	}
	if len(b.Speeches()) != 1 {
		t.Errorf("Speeches() = %d, want 1", len(b.Speeches()))
	}
}

func TestAudio_CaptureStop(t *testing.T) {
	a := NewAudio(AudioConfig{Interval: time.Millisecond})
	got := make(chan int, 64)
	stop, err := a.BeginCapture(domain.CaptureOptions{}.WithDefaults(), func(b []byte) {
		select {
		case got <- len(b):
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case n := <-got:
		if n != 320 {
			t.Errorf("chunk size = %d, want 320 (10 ms of 16 kHz mono s16)", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no chunk delivered")
	}

	stop()
	stop()
	total, double := a.StopCalls()
	if total != 2 || double != 1 {
		t.Errorf("StopCalls() = %d, %d, want 2, 1", total, double)
	}
	if a.Active() != 0 {
		t.Errorf("Active() = %d, want 0", a.Active())
	}
}
