package planner

import (
	"strings"
	"testing"

	"github.com/steveyegge/saga/internal/types"
)

// mirrorEra declares the inclusive-end mirror column.
var mirrorEra = types.Era{
	Table:            "positions",
	Name:             "validity",
	ValidFromColumn:  "valid_from",
	ValidUntilColumn: "valid_until",
	ValidToColumn:    "valid_to",
	Subtype:          types.SubtypeDate,
}

// TestTemporalConsistency covers the valid_until/valid_to agreement rules:
// both present must satisfy until == to + 1 day; one NULL side is consistent
// by convention.
func TestTemporalConsistency(t *testing.T) {
	base := types.PlanRequest{
		Era:             mirrorEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "valid_to", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "valid_to", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.MergeEntityPatch,
	}

	t.Run("disagreement is a row error", func(t *testing.T) {
		req := base
		req.Source = []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{
				"id": types.Int64(1), "valid_from": dt("2020-01-01"),
				"valid_until": dt("2021-01-01"), "valid_to": dt("2021-06-30"),
				"name": types.String("x"),
			}},
		}
		ops := mustPlan(t, req)
		wantOps(t, ops, []types.Operation{types.OpError})
		if msg := ops[0].Feedback["error"]; !strings.Contains(msg, "temporal inconsistency") {
			t.Errorf("feedback = %q, want temporal inconsistency", msg)
		}
	})

	t.Run("mirror alone supplies the end", func(t *testing.T) {
		req := base
		req.Source = []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{
				"id": types.Int64(1), "valid_from": dt("2020-01-01"),
				"valid_until": types.Null(), "valid_to": dt("2020-12-31"),
				"name": types.String("x"),
			}},
		}
		ops := mustPlan(t, req)
		wantOps(t, ops, []types.Operation{types.OpInsert})
		if got := ops[0].NewValidUntil.String(); got != "2021-01-01" {
			t.Errorf("until = %s, want successor of mirror (2021-01-01)", got)
		}
		// The output payload's mirror is recomputed from the final interval.
		if got := ops[0].Data.Get("valid_to").String(); got != "2020-12-31" {
			t.Errorf("output valid_to = %s, want 2020-12-31", got)
		}
	})

	t.Run("agreeing sides pass", func(t *testing.T) {
		req := base
		req.Source = []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{
				"id": types.Int64(1), "valid_from": dt("2020-01-01"),
				"valid_until": dt("2021-01-01"), "valid_to": dt("2020-12-31"),
				"name": types.String("x"),
			}},
		}
		ops := mustPlan(t, req)
		wantOps(t, ops, []types.Operation{types.OpInsert})
	})

	t.Run("empty interval is a row error", func(t *testing.T) {
		req := base
		req.Source = []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{
				"id": types.Int64(1), "valid_from": dt("2021-01-01"),
				"valid_until": dt("2021-01-01"), "valid_to": types.Null(),
				"name": types.String("x"),
			}},
		}
		ops := mustPlan(t, req)
		wantOps(t, ops, []types.Operation{types.OpError})
	})
}

// TestUnidentifiableRow verifies a hybrid-constellation row with every key
// NULL errors out, while identity-only constellations treat it as founding.
func TestUnidentifiableRow(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "code", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "code", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		LookupKeys:      [][]string{{"code"}},
		Mode:            types.MergeEntityPatch,
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{
				"id": types.Null(), "code": types.Null(),
				"valid_from": dt("2020-01-01"), "valid_until": types.Null(),
				"name": types.String("ghost"),
			}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpError})
	if msg := ops[0].Feedback["error"]; !strings.Contains(msg, "unidentifiable") {
		t.Errorf("feedback = %q, want unidentifiable", msg)
	}

	// Identity-only: a NULL identity founds a new entity instead.
	req.LookupKeys = nil
	req.SourceColumns = []string{"id", "valid_from", "valid_until", "name"}
	req.TargetColumns = []string{"id", "valid_from", "valid_until", "name"}
	req.Source[0].Columns = req.Source[0].Columns.Without("code")
	ops = mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpInsert})
	if !ops[0].IsNewEntity {
		t.Error("identity-only NULL row did not found a new entity")
	}
}

// TestCanonicalNaturalKey verifies a partial lookup row joins the group of
// the fuller row whose key is a superset of its own.
func TestCanonicalNaturalKey(t *testing.T) {
	req := types.PlanRequest{
		Era:           dateEra,
		SourceColumns: []string{"email", "nick", "valid_from", "valid_until", "name"},
		TargetColumns: []string{"email", "nick", "valid_from", "valid_until", "name"},
		LookupKeys:    [][]string{{"email"}, {"email", "nick"}},
		Mode:          types.MergeEntityPatch,
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{
				"email": types.String("a@x"), "nick": types.String("ace"),
				"valid_from": dt("2020-01-01"), "valid_until": dt("2021-01-01"),
				"name": types.String("full"),
			}},
			{RowID: 2, Columns: types.ColumnMap{
				"email": types.String("a@x"), "nick": types.Null(),
				"valid_from": dt("2021-01-01"), "valid_until": dt("2022-01-01"),
				"name": types.String("partial"),
			}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpInsert, types.OpInsert})
	if ops[0].GroupingKey != ops[1].GroupingKey {
		t.Errorf("partial row grouped separately: %q vs %q", ops[0].GroupingKey, ops[1].GroupingKey)
	}
	if got := ops[0].LookupKeys.Get("nick").Str; got != "ace" {
		t.Errorf("canonical key lost nick: %s", opSummary(ops[0]))
	}
}

// TestFoundingIDGroupsRows verifies rows sharing a founding id form one new
// entity when no lookup key exists.
func TestFoundingIDGroupsRows(t *testing.T) {
	req := types.PlanRequest{
		Era:              dateEra,
		SourceColumns:    []string{"id", "batch", "valid_from", "valid_until", "name"},
		TargetColumns:    []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns:  []string{"id"},
		FoundingIDColumn: "batch",
		Mode:             types.MergeEntityPatch,
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{
				"id": types.Null(), "batch": types.String("f1"),
				"valid_from": dt("2020-01-01"), "valid_until": dt("2021-01-01"),
				"name": types.String("a"),
			}},
			{RowID: 2, Columns: types.ColumnMap{
				"id": types.Null(), "batch": types.String("f1"),
				"valid_from": dt("2021-01-01"), "valid_until": dt("2022-01-01"),
				"name": types.String("b"),
			}},
			{RowID: 3, Columns: types.ColumnMap{
				"id": types.Null(), "batch": types.String("f2"),
				"valid_from": dt("2020-01-01"), "valid_until": dt("2021-01-01"),
				"name": types.String("c"),
			}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpInsert, types.OpInsert, types.OpInsert})
	if ops[0].GroupingKey != ops[1].GroupingKey {
		t.Errorf("f1 rows split: %q vs %q", ops[0].GroupingKey, ops[1].GroupingKey)
	}
	if ops[2].GroupingKey == ops[0].GroupingKey {
		t.Errorf("f2 row joined f1 group: %q", ops[2].GroupingKey)
	}
	if ops[0].CausalID != "f1" || ops[2].CausalID != "f2" {
		t.Errorf("causal ids = %q/%q, want f1/f2", ops[0].CausalID, ops[2].CausalID)
	}
}
