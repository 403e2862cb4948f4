package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lakeforge-io/lakeforge/internal/config"
	"github.com/lakeforge-io/lakeforge/internal/engine"
	"github.com/lakeforge-io/lakeforge/internal/lake"
	"github.com/lakeforge-io/lakeforge/internal/state"
	"github.com/lakeforge-io/lakeforge/providers/aws"
)

var (
	deployDryRun     bool
	deployMaxRetries int
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Converge the lake toward the declared configuration",
	Long: `Deploy reconciles every declared resource in dependency order,
creating what is missing, updating what drifted, and skipping what
already matches. Re-running against a converged lake changes nothing.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Report planned actions without mutating anything")
	deployCmd.Flags().IntVar(&deployMaxRetries, "max-retries", engine.DefaultRetryMax, "Maximum retries per provider call on transient errors")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	desired, err := config.Load(configPath)
	if err != nil {
		return err
	}

	orch := engine.New(aws.NewFactory(desired.Region), state.NewStore(statePath))
	orch.DryRun = deployDryRun
	policy := engine.DefaultRetryPolicy()
	policy.MaxRetries = deployMaxRetries
	orch.Retry = policy

	summary, err := orch.Deploy(cmd.Context(), desired)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}
	if !summary.Success {
		return fmt.Errorf("deployment finished with failures")
	}
	return nil
}

func printSummary(summary *lake.DeploymentSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tNAME\tACTION")
	for _, kind := range lake.DeployOrder {
		status, ok := summary.Resources[kind]
		if !ok {
			continue
		}
		action := string(status.Action)
		if status.Action == lake.ActionDryRun {
			action = fmt.Sprintf("would be %s", status.Planned)
		}
		if status.Error != "" {
			action = fmt.Sprintf("%s (%s)", action, status.Error)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", kind, status.Name, action)
	}
	w.Flush()
}
