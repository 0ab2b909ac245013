package cli

import (
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "number of operations to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently completed operations from the journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	db, err := sqlite.Open(home())
	if err != nil {
		return err
	}
	defer db.Close()

	ops, err := db.RecentOperations(limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	printf(w, "TIME\tKIND\tOP\tOUTCOME\tDURATION\tERROR\n")
	for _, op := range ops {
		printf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			op.CreatedAt.Local().Format(time.DateTime), op.Kind, op.Op, op.Outcome,
			op.Duration.Round(time.Millisecond), op.Error)
	}
	if len(ops) == 0 {
		printf(w, "(no operations recorded)\n")
	}

	counts, err := db.OperationCounts()
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		printf(w, "\nOPERATION\tCOUNT\n")
		for _, key := range slices.Sorted(maps.Keys(counts)) {
			printf(w, "%s\t%d\n", key, counts[key])
		}
	}
	return w.Flush()
}
