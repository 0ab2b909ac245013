package miniaudio

import "sync"

// samplesToBytes encodes samples as little-endian signed 16-bit PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// cursor feeds a byte buffer to a playback callback, padding with silence
// once the buffer runs out. done is closed on the first silent callback.
type cursor struct {
	mu   sync.Mutex
	data []byte
	pos  int
	once sync.Once
	done chan struct{}
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data, done: make(chan struct{})}
}

func (c *cursor) fill(output, _ []byte, _ uint32) {
	c.mu.Lock()
	n := copy(output, c.data[c.pos:])
	c.pos += n
	finished := c.pos >= len(c.data) && n == 0
	c.mu.Unlock()

	clear(output[n:])
	if finished {
		c.once.Do(func() { close(c.done) })
	}
}
