package cli

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/daemon"
	"github.com/saira-network/saira/internal/domain"
)

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().StringP("model", "m", "", "model path or ID (default [asr].model)")
	listenCmd.Flags().StringP("language", "l", "", "spoken language, e.g. en (default auto)")
	listenCmd.Flags().Duration("duration", 5*time.Second, "how long to record")
	listenCmd.Flags().String("device", "", "input device ID (default system default)")
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Record from the microphone and transcribe it",
	Long: `Record 16 kHz mono audio from the input device for --duration, then
transcribe the recording with the configured ASR model.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func runListen(cmd *cobra.Command, args []string) error {
	dur, _ := cmd.Flags().GetDuration("duration")
	device, _ := cmd.Flags().GetString("device")
	language, _ := cmd.Flags().GetString("language")
	if dur <= 0 {
		return errors.New("--duration must be positive")
	}

	return withModelOptions(cmd, domain.ModelASR, daemon.Options{Journal: true, Audio: true},
		func(ctx context.Context, d *daemon.Daemon) error {
			if d.Bridge == nil {
				return domain.ErrAudioClosed
			}
			pcm, opts, err := record(ctx, d, domain.CaptureOptions{DeviceID: device}, dur)
			if err != nil {
				return err
			}
			if len(pcm) == 0 {
				return errors.New("no audio captured")
			}
			text, err := d.Engine.ASRTranscribe(ctx, pcm, domain.TranscribeOptions{
				Language:   language,
				Encoding:   domain.EncodingPCMS16LE,
				SampleRate: opts.SampleRate,
			})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", text)
			return nil
		})
}

// record captures for dur and returns the raw PCM with the effective format.
func record(ctx context.Context, d *daemon.Daemon, opts domain.CaptureOptions, dur time.Duration) ([]byte, domain.CaptureOptions, error) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	s, err := d.Bridge.StartCapture(opts, func(chunk []byte) {
		mu.Lock()
		buf.Write(chunk)
		mu.Unlock()
	})
	if err != nil {
		return nil, opts, err
	}

	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.Stop()
	<-s.Done()
	if err != nil {
		return nil, opts, err
	}

	mu.Lock()
	defer mu.Unlock()
	return buf.Bytes(), s.Options(), nil
}
