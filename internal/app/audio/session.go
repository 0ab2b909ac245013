package audio

import (
	"sync"
	"time"

	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/observability"
)

// Session is one live capture stream.
type Session struct {
	id        string
	opts      domain.CaptureOptions
	startedAt time.Time
	bridge    *Bridge

	stopDevice domain.StopFunc
	done       chan struct{} // closed once teardown finished

	mu         sync.Mutex
	stopped    bool
	delivering int // callbacks currently running
	onBuffer   domain.BufferFunc
	chunks     int64
	bytes      int64
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Options returns the effective capture format.
func (s *Session) Options() domain.CaptureOptions { return s.opts }

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Info snapshots the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:         s.id,
		DeviceID:   s.opts.DeviceID,
		SampleRate: s.opts.SampleRate,
		Channels:   s.opts.Channels,
		StartedAt:  s.startedAt,
		Chunks:     s.chunks,
		Bytes:      s.bytes,
	}
}

// Stop ends the session. After Stop returns no new buffer reaches the
// callback and the session has left the active set. Only the first call
// tears the stream down.
//
// Stop may be called from inside the callback. A device cannot be stopped
// from its own callback, so while a delivery is running the device is
// released on a separate goroutine and Done is closed once that finishes.
func (s *Session) Stop() {
	s.mu.Lock()
	inFlight := s.delivering > 0
	if s.stopped {
		s.mu.Unlock()
		if !inFlight {
			<-s.done
		}
		return
	}
	s.stopped = true
	s.onBuffer = nil
	s.mu.Unlock()

	s.bridge.remove(s.id)
	if inFlight {
		go s.release()
		return
	}
	s.release()
}

func (s *Session) release() {
	s.stopDevice()
	close(s.done)

	s.mu.Lock()
	chunks := s.chunks
	s.mu.Unlock()
	s.bridge.log.Info().Str("session", s.id).Int64("chunks", chunks).Msg("capture stopped")
}

// deliver is the device callback. The callback runs without the session
// lock held.
func (s *Session) deliver(chunk []byte) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.delivering++
	s.chunks++
	s.bytes += int64(len(chunk))
	cb := s.onBuffer
	s.mu.Unlock()

	observability.CaptureBytes.Add(float64(len(chunk)))
	defer func() {
		s.mu.Lock()
		s.delivering--
		s.mu.Unlock()
	}()
	cb(chunk)
}
