package planner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/saga/internal/types"
)

// dateEra is the era most tests share: a date-subtype validity period.
var dateEra = types.Era{
	Table:            "positions",
	Name:             "validity",
	ValidFromColumn:  "valid_from",
	ValidUntilColumn: "valid_until",
	Subtype:          types.SubtypeDate,
}

func dt(s string) types.Datum {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return types.Time(t)
}

func mustPlan(t *testing.T, req types.PlanRequest) []types.PlanOp {
	t.Helper()
	ops, err := Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return ops
}

// opSummary renders an op compactly for failure messages.
func opSummary(op types.PlanOp) string {
	b, _ := json.Marshal(op)
	return string(b)
}

func wantOps(t *testing.T, ops []types.PlanOp, want []types.Operation) {
	t.Helper()
	if len(ops) != len(want) {
		t.Fatalf("got %d ops, want %d:\n%s", len(ops), len(want), dumpOps(ops))
	}
	for i, op := range ops {
		if op.Operation != want[i] {
			t.Errorf("op %d = %s, want %s\n%s", i, op.Operation, want[i], dumpOps(ops))
		}
	}
}

func dumpOps(ops []types.PlanOp) string {
	out := ""
	for _, op := range ops {
		out += opSummary(op) + "\n"
	}
	return out
}

// TestPatchSplit covers the classic portion patch: one source row splitting
// one target row into a shrunk head, a patched middle, and a restored tail.
func TestPatchSplit(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.PatchForPortionOf,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2022-01-01"), "valid_until": dt("2024-01-01"), "name": types.String("A")}},
		},
		Source: []types.SourceRow{
			{RowID: 10, Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2023-01-01"), "valid_until": dt("2023-06-01"), "name": types.String("B")}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpInsert, types.OpInsert, types.OpUpdate})

	// First insert: the patched middle.
	if got := ops[0].NewValidFrom.String(); got != "2023-01-01" {
		t.Errorf("insert 1 from = %s, want 2023-01-01", got)
	}
	if got := ops[0].Data.Get("name").Str; got != "B" {
		t.Errorf("insert 1 name = %q, want B", got)
	}
	if len(ops[0].RowIDs) != 1 || ops[0].RowIDs[0] != 10 {
		t.Errorf("insert 1 row ids = %v, want [10]", ops[0].RowIDs)
	}

	// Second insert: the restored tail keeps the target payload.
	if got := ops[1].NewValidFrom.String(); got != "2023-06-01" {
		t.Errorf("insert 2 from = %s, want 2023-06-01", got)
	}
	if got := ops[1].Data.Get("name").Str; got != "A" {
		t.Errorf("insert 2 name = %q, want A", got)
	}

	// The update preserves valid_from and shrinks.
	up := ops[2]
	if up.UpdateEffect != types.EffectShrink {
		t.Errorf("update effect = %s, want SHRINK", up.UpdateEffect)
	}
	if got := up.OldValidUntil.String(); got != "2024-01-01" {
		t.Errorf("update old until = %s, want 2024-01-01", got)
	}
	if got := up.NewValidUntil.String(); got != "2023-01-01" {
		t.Errorf("update new until = %s, want 2023-01-01", got)
	}
	if up.IsNewEntity {
		t.Error("update flagged as new entity")
	}
}

// TestNewEntityFounding verifies two rows sharing a natural key found one
// entity and produce two inserts in one grouping.
func TestNewEntityFounding(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "code", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "code", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		LookupKeys:      [][]string{{"code"}},
		Mode:            types.MergeEntityPatch,
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{"id": types.Null(), "code": types.String("E104"), "valid_from": dt("2020-01-01"), "valid_until": dt("2021-01-01"), "name": types.String("X")}},
			{RowID: 2, Columns: types.ColumnMap{"id": types.Null(), "code": types.String("E104"), "valid_from": dt("2021-01-01"), "valid_until": dt("2022-01-01"), "name": types.String("Y")}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpInsert, types.OpInsert})
	for i, op := range ops {
		if !op.IsNewEntity {
			t.Errorf("op %d not flagged as new entity", i)
		}
		if op.GroupingKey != ops[0].GroupingKey {
			t.Errorf("op %d grouping %q differs from %q", i, op.GroupingKey, ops[0].GroupingKey)
		}
		if got := op.LookupKeys.Get("code").Str; got != "E104" {
			t.Errorf("op %d lookup code = %q, want E104", i, got)
		}
	}
	if ops[0].GroupingKey[:len("new_entity__")] != "new_entity__" {
		t.Errorf("grouping key %q does not mark a new entity", ops[0].GroupingKey)
	}
}

// TestAmbiguousRow verifies a row matching two entities via different lookup
// keys becomes a single ERROR op naming both.
func TestAmbiguousRow(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "email", "employee_nr", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "email", "employee_nr", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		LookupKeys:      [][]string{{"email"}, {"employee_nr"}},
		Mode:            types.MergeEntityPatch,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(1), "email": types.String("x"), "employee_nr": types.Null(), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "name": types.String("one")}},
			{Columns: types.ColumnMap{"id": types.Int64(2), "email": types.Null(), "employee_nr": types.String("x"), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "name": types.String("two")}},
		},
		Source: []types.SourceRow{
			{RowID: 3, Columns: types.ColumnMap{"id": types.Null(), "email": types.String("x"), "employee_nr": types.String("x"), "valid_from": dt("2021-01-01"), "valid_until": types.Null(), "name": types.String("merged")}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpError})
	msg := ops[0].Feedback["error"]
	if msg == "" {
		t.Fatal("missing error feedback")
	}
	for _, frag := range []string{`"id":1`, `"id":2`} {
		if !strings.Contains(msg, frag) {
			t.Errorf("error message %q does not name %s", msg, frag)
		}
	}
}

// TestEclipse verifies a row fully covered by a later identical row is
// withdrawn with the minimal producing set.
func TestEclipse(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.MergeEntityReplace,
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{"id": types.Int64(7), "valid_from": dt("2024-01-01"), "valid_until": dt("2024-05-01"), "name": types.String("a")}},
			{RowID: 2, Columns: types.ColumnMap{"id": types.Int64(7), "valid_from": dt("2024-02-01"), "valid_until": dt("2024-07-01"), "name": types.String("b")}},
			{RowID: 3, Columns: types.ColumnMap{"id": types.Int64(7), "valid_from": dt("2024-01-01"), "valid_until": dt("2024-05-01"), "name": types.String("c")}},
		},
	}
	ops := mustPlan(t, req)
	var eclipsed *types.PlanOp
	for i := range ops {
		if ops[i].Operation == types.OpSkipEclipsed {
			if eclipsed != nil {
				t.Fatalf("multiple eclipsed ops:\n%s", dumpOps(ops))
			}
			eclipsed = &ops[i]
		}
	}
	if eclipsed == nil {
		t.Fatalf("no SKIP_ECLIPSED op:\n%s", dumpOps(ops))
	}
	if len(eclipsed.RowIDs) != 1 || eclipsed.RowIDs[0] != 1 {
		t.Errorf("eclipsed row ids = %v, want [1]", eclipsed.RowIDs)
	}
	if got := eclipsed.Feedback["eclipsed_by"]; got != "[3]" {
		t.Errorf("eclipsed_by = %q, want [3]", got)
	}
}

// TestDeleteForPortion verifies deleting a middle portion shrinks the head,
// restores the tail, and attributes the deleting row.
func TestDeleteForPortion(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "payload"},
		IdentityColumns: []string{"id"},
		Mode:            types.DeleteForPortionOf,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(9), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "payload": types.String("P")}},
		},
		Source: []types.SourceRow{
			{RowID: 50, Columns: types.ColumnMap{"id": types.Int64(9), "valid_from": dt("2022-01-01"), "valid_until": dt("2023-01-01")}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpInsert, types.OpUpdate})

	ins := ops[0]
	if got := ins.NewValidFrom.String(); got != "2023-01-01" {
		t.Errorf("insert from = %s, want 2023-01-01", got)
	}
	if !ins.NewValidUntil.IsNull() {
		t.Errorf("insert until = %s, want unbounded", ins.NewValidUntil)
	}
	if got := ins.Data.Get("payload").Str; got != "P" {
		t.Errorf("insert payload = %q, want P", got)
	}

	up := ops[1]
	if up.UpdateEffect != types.EffectShrink {
		t.Errorf("update effect = %s, want SHRINK", up.UpdateEffect)
	}
	if got := up.NewValidUntil.String(); got != "2022-01-01" {
		t.Errorf("update new until = %s, want 2022-01-01", got)
	}
	if len(up.RowIDs) != 1 || up.RowIDs[0] != 50 {
		t.Errorf("update row ids = %v, want [50]", up.RowIDs)
	}
}

// TestDestructiveTimeline verifies DELETE_MISSING_TIMELINE removes target
// segments outside source coverage.
func TestDestructiveTimeline(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.MergeEntityReplace,
		DeleteMode:      types.DeleteMissingTimeline,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(3), "valid_from": dt("2020-01-01"), "valid_until": dt("2023-01-01"), "name": types.String("P1")}},
			{Columns: types.ColumnMap{"id": types.Int64(3), "valid_from": dt("2023-01-01"), "valid_until": dt("2025-01-01"), "name": types.String("P2")}},
		},
		Source: []types.SourceRow{
			{RowID: 77, Columns: types.ColumnMap{"id": types.Int64(3), "valid_from": dt("2021-01-01"), "valid_until": dt("2024-01-01"), "name": types.String("P3")}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpUpdate, types.OpDelete})

	up := ops[0]
	if up.UpdateEffect != types.EffectMove {
		t.Errorf("update effect = %s, want MOVE", up.UpdateEffect)
	}
	if got := up.NewValidFrom.String(); got != "2021-01-01" {
		t.Errorf("update new from = %s, want 2021-01-01", got)
	}
	if got := up.NewValidUntil.String(); got != "2024-01-01" {
		t.Errorf("update new until = %s, want 2024-01-01", got)
	}
	if got := up.Data.Get("name").Str; got != "P3" {
		t.Errorf("update name = %q, want P3", got)
	}

	del := ops[1]
	if got := del.OldValidFrom.String(); got != "2023-01-01" {
		t.Errorf("delete old from = %s, want 2023-01-01", got)
	}
	if len(del.RowIDs) != 0 {
		t.Errorf("delete row ids = %v, want none", del.RowIDs)
	}
}

// TestDeterminism verifies byte-identical output across repeated calls.
func TestDeterminism(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "code", "valid_from", "valid_until", "name", "rank"},
		TargetColumns:   []string{"id", "code", "valid_from", "valid_until", "name", "rank"},
		IdentityColumns: []string{"id"},
		LookupKeys:      [][]string{{"code"}},
		Mode:            types.MergeEntityUpsert,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(1), "code": types.String("a"), "valid_from": dt("2020-01-01"), "valid_until": dt("2022-01-01"), "name": types.String("n1"), "rank": types.Int64(1)}},
			{Columns: types.ColumnMap{"id": types.Int64(2), "code": types.String("b"), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "name": types.String("n2"), "rank": types.Int64(2)}},
		},
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{"id": types.Int64(1), "code": types.Null(), "valid_from": dt("2021-01-01"), "valid_until": dt("2023-01-01"), "name": types.String("n1b"), "rank": types.Null()}},
			{RowID: 2, Columns: types.ColumnMap{"id": types.Null(), "code": types.String("b"), "valid_from": dt("2021-06-01"), "valid_until": dt("2021-09-01"), "name": types.Null(), "rank": types.Int64(9)}},
			{RowID: 3, Columns: types.ColumnMap{"id": types.Null(), "code": types.String("c"), "valid_from": dt("2024-01-01"), "valid_until": types.Null(), "name": types.String("new"), "rank": types.Null()}},
		},
	}
	a, _ := json.Marshal(mustPlan(t, req))
	b, _ := json.Marshal(mustPlan(t, req))
	if string(a) != string(b) {
		t.Errorf("plans differ:\n%s\n%s", a, b)
	}
}

// TestOrderingSafety verifies the per-entity INSERT < UPDATE < DELETE rank.
func TestOrderingSafety(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.MergeEntityReplace,
		DeleteMode:      types.DeleteMissingTimeline,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2019-01-01"), "valid_until": dt("2020-01-01"), "name": types.String("old")}},
			{Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2020-01-01"), "valid_until": dt("2021-01-01"), "name": types.String("mid")}},
		},
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2020-06-01"), "valid_until": dt("2022-01-01"), "name": types.String("new")}},
		},
	}
	ops := mustPlan(t, req)
	lastRank := 0
	for _, op := range ops {
		r := op.Operation.Rank()
		if r < lastRank {
			t.Fatalf("rank regressed at op %d:\n%s", op.Seq, dumpOps(ops))
		}
		lastRank = r
	}
}

// TestInsertNewEntitiesFilters verifies rows for existing entities are
// filtered while founding rows insert.
func TestInsertNewEntitiesFilters(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.InsertNewEntities,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "name": types.String("kept")}},
		},
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2021-01-01"), "valid_until": types.Null(), "name": types.String("ignored")}},
			{RowID: 2, Columns: types.ColumnMap{"id": types.Int64(5), "valid_from": dt("2021-01-01"), "valid_until": types.Null(), "name": types.String("fresh")}},
		},
	}
	ops := mustPlan(t, req)
	var kinds []types.Operation
	for _, op := range ops {
		kinds = append(kinds, op.Operation)
		if op.Operation == types.OpUpdate || op.Operation == types.OpDelete {
			t.Errorf("insert-only mode produced %s:\n%s", op.Operation, dumpOps(ops))
		}
	}
	if len(kinds) != 2 {
		t.Fatalf("got ops %v, want one INSERT and one SKIP_FILTERED", kinds)
	}
}

// TestPortionNoTarget verifies portion modes skip rows whose entity does not
// exist.
func TestPortionNoTarget(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.PatchForPortionOf,
		Source: []types.SourceRow{
			{RowID: 4, Columns: types.ColumnMap{"id": types.Int64(42), "valid_from": dt("2021-01-01"), "valid_until": types.Null(), "name": types.String("x")}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpSkipNoTarget})
}

// TestIdenticalPatchSkips verifies re-applying an already-applied patch only
// reports SKIP_IDENTICAL.
func TestIdenticalPatchSkips(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.MergeEntityPatch,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2020-01-01"), "valid_until": dt("2021-01-01"), "name": types.String("A")}},
		},
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2020-01-01"), "valid_until": dt("2021-01-01"), "name": types.String("A")}},
		},
	}
	ops := mustPlan(t, req)
	wantOps(t, ops, []types.Operation{types.OpSkipIdentical})
	if len(ops[0].RowIDs) != 1 || ops[0].RowIDs[0] != 1 {
		t.Errorf("skip row ids = %v, want [1]", ops[0].RowIDs)
	}
}

// TestDeleteMissingEntities verifies a full-scan delete of entities absent
// from the source.
func TestDeleteMissingEntities(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "valid_from", "valid_until", "name"},
		TargetColumns:   []string{"id", "valid_from", "valid_until", "name"},
		IdentityColumns: []string{"id"},
		Mode:            types.MergeEntityUpsert,
		DeleteMode:      types.DeleteMissingEntities,
		Target: []types.TargetRow{
			{Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "name": types.String("kept")}},
			{Columns: types.ColumnMap{"id": types.Int64(2), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "name": types.String("dropped")}},
		},
		Source: []types.SourceRow{
			{RowID: 1, Columns: types.ColumnMap{"id": types.Int64(1), "valid_from": dt("2020-01-01"), "valid_until": types.Null(), "name": types.String("kept")}},
		},
	}
	ops := mustPlan(t, req)
	var sawDelete, sawUpdateOrSkip bool
	for _, op := range ops {
		switch op.Operation {
		case types.OpDelete:
			sawDelete = true
			if got := op.EntityKeys.Get("id").Int; got != 2 {
				t.Errorf("delete entity id = %d, want 2", got)
			}
		case types.OpUpdate, types.OpSkipIdentical:
			sawUpdateOrSkip = true
			if got := op.EntityKeys.Get("id").Int; got != 1 {
				t.Errorf("surviving entity id = %d, want 1", got)
			}
		case types.OpInsert:
			t.Errorf("unexpected insert:\n%s", dumpOps(ops))
		}
	}
	if !sawDelete {
		t.Errorf("no delete for missing entity:\n%s", dumpOps(ops))
	}
	if !sawUpdateOrSkip {
		t.Errorf("entity 1 not accounted:\n%s", dumpOps(ops))
	}
}
