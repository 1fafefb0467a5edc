package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/steveyegge/saga/internal/types"
)

// printJSON writes v as indented JSON on stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
	}
}

// fatalError prints an error and exits, as JSON when --json is set.
func fatalError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		printJSON(map[string]string{"error": msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

// debugf writes diagnostics to stderr when --debug is set.
func debugf(format string, args ...any) {
	if debugMode {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printPlanTable renders a plan as an aligned table.
func printPlanTable(ops []types.PlanOp) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tOP\tEFFECT\tENTITY\tOLD\tNEW\tROWS\tNOTE")
	for _, op := range ops {
		note := ""
		if op.Feedback != nil {
			parts := make([]string, 0, len(op.Feedback))
			for _, k := range sortedKeys(op.Feedback) {
				parts = append(parts, k+"="+op.Feedback[k])
			}
			note = strings.Join(parts, " ")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			op.Seq,
			op.Operation,
			string(op.UpdateEffect),
			op.EntityKeys.CanonicalJSON(),
			renderInterval(op.OldValidFrom, op.OldValidUntil),
			renderInterval(op.NewValidFrom, op.NewValidUntil),
			renderRowIDs(op.RowIDs),
			note,
		)
	}
	w.Flush()
}

func renderInterval(from, until *types.Datum) string {
	if from == nil && until == nil {
		return ""
	}
	f, u := "-infinity", "infinity"
	if from != nil && !from.IsNull() {
		f = from.String()
	}
	if until != nil && !until.IsNull() {
		u = until.String()
	}
	return "[" + f + ", " + u + ")"
}

func renderRowIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
