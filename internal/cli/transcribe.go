package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/daemon"
	"github.com/saira-network/saira/internal/domain"
)

func init() {
	rootCmd.AddCommand(transcribeCmd)
	transcribeCmd.Flags().StringP("model", "m", "", "model path or ID (default [asr].model)")
	transcribeCmd.Flags().StringP("language", "l", "", "spoken language, e.g. en (default auto)")
	transcribeCmd.Flags().Int("sample-rate", domain.DefaultSampleRate, "sample rate of raw PCM input")
	transcribeCmd.Flags().Bool("pcm", false, "treat the file as raw signed 16-bit little-endian PCM")
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe FILE",
	Short: "Transcribe an audio file with the configured ASR model",
	Long: `Transcribe a WAV file (or raw 16-bit PCM with --pcm). WAV input is sent
as-is; raw PCM is tagged so the backend can wrap it.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	var opts domain.TranscribeOptions
	opts.Language, _ = cmd.Flags().GetString("language")
	if raw, _ := cmd.Flags().GetBool("pcm"); raw {
		opts.Encoding = domain.EncodingPCMS16LE
		opts.SampleRate, _ = cmd.Flags().GetInt("sample-rate")
	} else {
		opts.Encoding = encodingOf(data)
	}

	return withModel(cmd, domain.ModelASR, func(ctx context.Context, d *daemon.Daemon) error {
		text, err := d.Engine.ASRTranscribe(ctx, data, opts)
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "%s\n", text)
		return nil
	})
}

// encodingOf sniffs a RIFF/WAVE header.
func encodingOf(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return domain.EncodingWAV
	}
	return domain.EncodingRaw
}
