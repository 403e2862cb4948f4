package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lakeforge-io/lakeforge/internal/config"
	"github.com/lakeforge-io/lakeforge/internal/state"
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Compare the configuration against the last deployed snapshot",
	Long: `Drift loads the configuration file and diffs it field by field
against the snapshot persisted by the last successful deployment.
Exit code 2 signals detected drift.`,
	RunE: runDrift,
}

func runDrift(cmd *cobra.Command, args []string) error {
	desired, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store := state.NewStore(statePath)
	current, err := store.Current()
	if err != nil {
		return err
	}

	report := state.Diff(current, desired)
	if len(report) == 0 {
		fmt.Println("No drift detected.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tDEPLOYED\tDECLARED")
	for _, diff := range report {
		fmt.Fprintf(w, "%s\t%s\t%s\n", diff.Path, orEmpty(diff.Previous), orEmpty(diff.Next))
	}
	w.Flush()

	os.Exit(2)
	return nil
}

func orEmpty(s string) string {
	if s == "" {
		return "<unset>"
	}
	return s
}
