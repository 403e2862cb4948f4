package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakeforge-io/lakeforge/internal/lake"
	"github.com/lakeforge-io/lakeforge/internal/state"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past deployments, most recent first",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum number of records to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	records, err := state.NewStore(statePath).History()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No deployments recorded.")
		return nil
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tMODE\tRESULT\tRESOURCES")
	for _, rec := range records {
		mode := "deploy"
		if rec.DryRun {
			mode = "dry-run"
		}
		result := "ok"
		if !rec.Success {
			result = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.Timestamp.Format(time.RFC3339),
			mode,
			result,
			resourceCounts(rec.Resources))
	}
	w.Flush()
	return nil
}

func resourceCounts(resources map[lake.ResourceKind]lake.ResourceStatus) string {
	counts := map[lake.Action]int{}
	for _, status := range resources {
		counts[status.Action]++
	}
	out := ""
	for _, action := range []lake.Action{lake.ActionCreated, lake.ActionUpdated, lake.ActionSkipped, lake.ActionDryRun, lake.ActionFailed} {
		if n := counts[action]; n > 0 {
			if out != "" {
				out += " "
			}
			out += fmt.Sprintf("%d %s", n, action)
		}
	}
	return out
}
