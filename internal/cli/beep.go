package cli

import (
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/daemon"
	"github.com/saira-network/saira/internal/domain"
)

func init() {
	rootCmd.AddCommand(beepCmd)
	beepCmd.Flags().Float64("freq", 440, "tone frequency in Hz")
	beepCmd.Flags().Duration("duration", 500*time.Millisecond, "tone length")
	beepCmd.Flags().String("device", "", "output device ID (default system default)")
}

var beepCmd = &cobra.Command{
	Use:   "beep",
	Short: "Play a test tone on the output device",
	Args:  cobra.NoArgs,
	RunE:  runBeep,
}

func runBeep(cmd *cobra.Command, args []string) error {
	freq, _ := cmd.Flags().GetFloat64("freq")
	dur, _ := cmd.Flags().GetDuration("duration")
	device, _ := cmd.Flags().GetString("device")

	d, err := openDaemon(cmd, daemon.Options{Audio: true})
	if err != nil {
		return err
	}
	defer d.Close(cmd.Context())
	if d.Bridge == nil {
		return domain.ErrAudioClosed
	}

	samples := sineTone(domain.DefaultSampleRate, freq, dur, 0.3)
	if err := d.Bridge.PlayAudio(samples, domain.PlaybackOptions{DeviceID: device}); err != nil {
		return err
	}
	// Render returns once playback started; keep the device open until the
	// tone has played out.
	select {
	case <-time.After(dur + 100*time.Millisecond):
	case <-cmd.Context().Done():
	}
	return nil
}

// sineTone returns a mono sine wave with a short fade in and out.
func sineTone(sampleRate int, freq float64, dur time.Duration, volume float64) []int16 {
	n := int(float64(sampleRate) * dur.Seconds())
	fade := sampleRate / 100 // 10 ms
	out := make([]int16, n)
	for i := range out {
		env := 1.0
		if i < fade {
			env = float64(i) / float64(fade)
		} else if n-i < fade {
			env = float64(n-i) / float64(fade)
		}
		t := float64(i) / float64(sampleRate)
		out[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * env)
	}
	return out
}
