package openaicompat

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/saira-network/saira/internal/domain"
)

// Speech implements domain.SpeechBackend with /audio/transcriptions.
type Speech struct {
	handle
}

// NewSpeechFactory returns a factory that builds Speech backends.
func NewSpeechFactory(cfg Config) domain.SpeechFactory {
	return func(ctx context.Context, path string) (domain.SpeechBackend, error) {
		client := newClient(cfg)
		if cfg.Verify {
			if err := verifyModel(ctx, client, path); err != nil {
				return nil, err
			}
		}
		return &Speech{handle: handle{client: client, model: path}}, nil
	}
}

// Transcribe uploads audio as a file. Raw PCM is wrapped in a WAV container
// first, since transcription servers only accept container formats.
func (s *Speech) Transcribe(ctx context.Context, audio []byte, opts domain.TranscribeOptions) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	data, name, contentType := audio, "audio.wav", "audio/wav"
	switch opts.Encoding {
	case domain.EncodingPCMS16LE:
		rate := opts.SampleRate
		if rate == 0 {
			rate = domain.DefaultSampleRate
		}
		data = pcmToWAV(audio, rate, domain.DefaultChannels)
	case domain.EncodingRaw:
		name, contentType = "audio", "application/octet-stream"
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(data), name, contentType),
		Model: openai.AudioModel(s.model),
	}
	if opts.Language != "" && opts.Language != "auto" {
		params.Language = openai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = openai.String(opts.Prompt)
	}

	resp, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}

// pcmToWAV prepends a 44-byte RIFF header to signed 16-bit LE PCM.
func pcmToWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := len(pcm)
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)                            // chunk size
	writeUint16LE(buf, 1)                             // PCM
	writeUint16LE(buf, uint16(channels))              // channels
	writeUint32LE(buf, uint32(sampleRate))            // sample rate
	writeUint32LE(buf, uint32(sampleRate*channels*2)) // byte rate
	writeUint16LE(buf, uint16(channels*2))            // block align
	writeUint16LE(buf, 16)                            // bits per sample

	// data chunk
	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataSize))
	buf.Write(pcm)
	return buf.Bytes()
}

func writeUint16LE(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}

func writeUint32LE(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}
