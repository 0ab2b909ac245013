package miniaudio

import (
	"bytes"
	"errors"
	"testing"

	"github.com/saira-network/saira/internal/domain"
)

func TestSamplesToBytes(t *testing.T) {
	got := samplesToBytes([]int16{1, -1, 0x1234})
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x34, 0x12}
	if !bytes.Equal(got, want) {
		t.Errorf("samplesToBytes() = %x, want %x", got, want)
	}
}

func TestCursor_PadsAndFinishes(t *testing.T) {
	c := newCursor([]byte{1, 2, 3, 4, 5, 6})

	out := make([]byte, 4)
	c.fill(out, nil, 2)
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("first fill = %v", out)
	}

	out = []byte{9, 9, 9, 9}
	c.fill(out, nil, 2)
	if !bytes.Equal(out, []byte{5, 6, 0, 0}) {
		t.Fatalf("second fill = %v, want tail then silence", out)
	}
	select {
	case <-c.done:
		t.Fatal("done should wait for the first fully silent callback")
	default:
	}

	c.fill(out, nil, 2)
	if !bytes.Equal(out, []byte{0, 0, 0, 0}) {
		t.Errorf("third fill = %v, want silence", out)
	}
	select {
	case <-c.done:
	default:
		t.Fatal("done should be closed after the buffer drained")
	}
	c.fill(out, nil, 2) // must not panic on a second close
}

func TestDeviceID_RoundTrip(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	s := encodeDeviceID(raw)
	if s != "deadbeef" {
		t.Fatalf("encodeDeviceID() = %q", s)
	}
	id, err := decodeDeviceID(s)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(id[:4], raw) {
		t.Errorf("decoded prefix = %x", id[:4])
	}

	if _, err := decodeDeviceID("not-hex"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("decodeDeviceID(bad) = %v, want ErrInvalidInput", err)
	}
}
