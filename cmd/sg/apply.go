package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/saga/internal/executor"
	"github.com/steveyegge/saga/internal/types"
)

type applyResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
	PlanOps int `json:"plan_ops"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Compute a merge plan and execute it",
	Long: `Compute the merge plan and run it against the target relation in plan
order. SKIP and ERROR operations are counted but never executed.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		ops, store, cleanup := runPlan(ctx)
		defer cleanup()

		eraName := planEra
		if eraName == "" {
			eraName = cfg.DefaultEra
		}
		era, err := store.GetEra(ctx, planTarget, eraName)
		if err != nil {
			fatalError("resolving era: %v", err)
		}

		res, err := executor.Apply(ctx, store, executor.Request{
			Table:           planTarget,
			Era:             era,
			IdentityColumns: planIdentity,
			Plan:            ops,
		})
		if err != nil {
			fatalError("applying plan: %v", err)
		}

		out := applyResult{
			Applied: res.Applied,
			Skipped: res.Skipped,
			Errors:  res.Errors,
			PlanOps: len(ops),
		}
		if jsonOutput {
			printJSON(out)
			return
		}
		fmt.Printf("Applied %d of %d plan ops (%d skipped, %d errors)\n",
			out.Applied, out.PlanOps, out.Skipped, out.Errors)
		if out.Errors > 0 {
			for _, op := range ops {
				if op.Operation == types.OpError {
					fmt.Printf("  row %s: %s\n", renderRowIDs(op.RowIDs), op.Feedback["error"])
				}
			}
		}
	},
}

func init() {
	addPlanFlags(applyCmd)
	rootCmd.AddCommand(applyCmd)
}
