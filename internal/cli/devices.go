package cli

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/daemon"
	"github.com/saira-network/saira/internal/domain"
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input and output devices",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd, daemon.Options{Audio: true})
	if err != nil {
		return err
	}
	defer d.Close(cmd.Context())
	if d.Bridge == nil {
		return domain.ErrAudioClosed
	}

	devices, err := d.Bridge.Devices(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, typ := range []domain.DeviceType{domain.DeviceInput, domain.DeviceOutput} {
		printf(w, "%s devices:\n", typ)
		n := 0
		for _, dev := range devices {
			if dev.Type != typ {
				continue
			}
			mark := " "
			if dev.IsDefault {
				mark = "*"
			}
			printf(w, "  %s\t%s\t%s\n", mark, dev.Name, dev.ID)
			n++
		}
		if n == 0 {
			printf(w, "  (none)\n")
		}
	}
	return w.Flush()
}
