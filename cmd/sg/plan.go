package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/saga/internal/interval"
	"github.com/steveyegge/saga/internal/planner"
	"github.com/steveyegge/saga/internal/storage"
	"github.com/steveyegge/saga/internal/storage/memory"
	"github.com/steveyegge/saga/internal/storage/mysqlstore"
	"github.com/steveyegge/saga/internal/types"
)

var (
	planTarget     string
	planSource     string
	planEra        string
	planMode       string
	planDeleteMode string
	planIdentity   []string
	planLookups    []string
	planFounding   string
	planEphemeral  []string
	planRowIDCol   string
	planFixture    string
	planTrace      bool
	planCheck      bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute a temporal merge plan",
	Long: `Compute the ordered operation sequence that merges a source batch into a
target history relation. The plan is printed, never applied; use "sg apply"
to execute it.`,
	Run: func(cmd *cobra.Command, args []string) {
		ops, _, cleanup := runPlan(cmd.Context())
		defer cleanup()
		if planCheck {
			checkDisjoint(ops)
		}
		if jsonOutput {
			printJSON(ops)
			return
		}
		printPlanTable(ops)
	},
}

func init() {
	addPlanFlags(planCmd)
	rootCmd.AddCommand(planCmd)
}

func addPlanFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&planTarget, "target", "", "target relation name")
	cmd.Flags().StringVar(&planSource, "source", "", "source relation name")
	cmd.Flags().StringVar(&planEra, "era", "", "era name (default from config)")
	cmd.Flags().StringVar(&planMode, "mode", string(types.MergeEntityPatch), "merge mode")
	cmd.Flags().StringVar(&planDeleteMode, "delete-mode", string(types.DeleteNone), "delete mode")
	cmd.Flags().StringSliceVar(&planIdentity, "id", nil, "identity column(s)")
	cmd.Flags().StringArrayVar(&planLookups, "lookup", nil, "lookup key set, comma-separated (repeatable)")
	cmd.Flags().StringVar(&planFounding, "founding-col", "", "founding-id column in source")
	cmd.Flags().StringSliceVar(&planEphemeral, "ephemeral", nil, "ephemeral column(s)")
	cmd.Flags().StringVar(&planRowIDCol, "row-id-col", "", "source row-id column (default from config)")
	cmd.Flags().StringVar(&planFixture, "fixture", "", "yaml fixture file instead of a database")
	cmd.Flags().BoolVar(&planTrace, "trace", false, "populate per-op trace detail")
	cmd.Flags().BoolVar(&planCheck, "check", false, "assert per-entity output intervals are disjoint")
}

// runPlan wires storage, builds the request, and plans. The returned cleanup
// closes the store; callers needing the store (apply) receive it too.
func runPlan(ctx context.Context) ([]types.PlanOp, storage.Store, func()) {
	if planTarget == "" || planSource == "" {
		fatalError("--target and --source are required")
	}
	store := openStore(ctx)
	cleanup := func() { _ = store.Close() }

	eraName := planEra
	if eraName == "" {
		eraName = cfg.DefaultEra
	}
	era, err := store.GetEra(ctx, planTarget, eraName)
	if err != nil {
		cleanup()
		fatalError("resolving era: %v", err)
	}

	rowIDCol := planRowIDCol
	if rowIDCol == "" {
		rowIDCol = cfg.RowIDColumn
	}

	sourceCols, err := store.Columns(ctx, planSource)
	if err != nil {
		cleanup()
		fatalError("reading source schema: %v", err)
	}
	targetCols, err := store.Columns(ctx, planTarget)
	if err != nil {
		cleanup()
		fatalError("reading target schema: %v", err)
	}
	sourceRows, err := store.ScanSource(ctx, planSource, rowIDCol)
	if err != nil {
		cleanup()
		fatalError("scanning source: %v", err)
	}

	req := types.PlanRequest{
		Era:              era,
		SourceColumns:    removeColumn(sourceCols, rowIDCol),
		TargetColumns:    targetCols,
		Source:           sourceRows,
		IdentityColumns:  planIdentity,
		LookupKeys:       parseLookupSets(planLookups),
		FoundingIDColumn: planFounding,
		EphemeralColumns: planEphemeral,
		Mode:             types.MergeMode(planMode),
		DeleteMode:       types.DeleteMode(planDeleteMode),
		Tracing:          planTrace,
	}

	filter := buildTargetFilter(req)
	targetRows, err := store.ScanTarget(ctx, planTarget, filter)
	if err != nil {
		cleanup()
		fatalError("scanning target: %v", err)
	}
	req.Target = targetRows
	debugf("planning: %d source rows, %d scoped target rows", len(req.Source), len(req.Target))

	ops, err := planner.Plan(ctx, req)
	if err != nil {
		cleanup()
		fatalError("planning: %v", err)
	}
	return ops, store, cleanup
}

func openStore(ctx context.Context) storage.Store {
	if planFixture != "" {
		store, err := memory.LoadFixture(planFixture)
		if err != nil {
			fatalError("loading fixture: %v", err)
		}
		return store
	}
	if cfg.DSN == "" {
		fatalError("no database configured: set dsn in .saga.yaml or pass --fixture")
	}
	store, err := mysqlstore.Open(ctx, mysqlstore.Config{DSN: cfg.DSN})
	if err != nil {
		fatalError("connecting: %v", err)
	}
	return store
}

// buildTargetFilter derives the storage-level scope from the source batch:
// one selector per complete identity or lookup key value. Entity-deleting
// modes force a full scan.
func buildTargetFilter(req types.PlanRequest) storage.TargetFilter {
	mode := req.Mode
	if mode.EntityScoped() && req.DeleteMode.DeletesEntities() {
		return storage.TargetFilter{FullScan: true}
	}
	var keys []types.ColumnMap
	seen := map[string]bool{}
	add := func(m types.ColumnMap) {
		if len(m) == 0 {
			return
		}
		j := m.CanonicalJSON()
		if !seen[j] {
			seen[j] = true
			keys = append(keys, m)
		}
	}
	for _, row := range req.Source {
		if len(req.IdentityColumns) > 0 {
			ident := row.Columns.Subset(req.IdentityColumns)
			if !anyNull(ident, req.IdentityColumns) {
				add(ident)
			}
		}
		for _, set := range req.LookupKeys {
			vals := row.Columns.Subset(set)
			if !anyNull(vals, set) {
				add(vals)
			}
		}
	}
	return storage.TargetFilter{Keys: keys}
}

func anyNull(vals types.ColumnMap, cols []string) bool {
	for _, c := range cols {
		if vals.Get(c).IsNull() {
			return true
		}
	}
	return false
}

// checkDisjoint asserts no entity's output intervals overlap.
func checkDisjoint(ops []types.PlanOp) {
	byEntity := map[string][]interval.Interval{}
	for _, op := range ops {
		if op.NewValidFrom == nil || !op.Operation.Mutates() {
			continue
		}
		key := op.GroupingKey
		iv := interval.New(*op.NewValidFrom, *op.NewValidUntil)
		for _, other := range byEntity[key] {
			if iv.Overlaps(other) {
				fatalError("coverage check failed: %s has overlapping output intervals %s and %s", key, iv, other)
			}
		}
		byEntity[key] = append(byEntity[key], iv)
	}
}

func parseLookupSets(raw []string) [][]string {
	var sets [][]string
	for _, r := range raw {
		var set []string
		for _, c := range strings.Split(r, ",") {
			if c = strings.TrimSpace(c); c != "" {
				set = append(set, c)
			}
		}
		if len(set) > 0 {
			sets = append(sets, set)
		}
	}
	return sets
}

func removeColumn(cols []string, name string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}
