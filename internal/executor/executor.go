// Package executor applies a merge plan to a target relation: the ordered
// INSERT/UPDATE/DELETE sequence the planner produced, with identity
// back-fill for newly founded entities.
//
// The executor owns no transaction; callers wrap Apply in whatever isolation
// they need. SKIP and ERROR operations are never applied, only counted.
package executor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/saga/internal/storage"
	"github.com/steveyegge/saga/internal/types"
)

var execTracer = otel.Tracer("github.com/steveyegge/saga/executor")

var execMetrics struct {
	opsApplied metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/steveyegge/saga/executor")
	execMetrics.opsApplied, _ = m.Int64Counter("sg.apply.ops_applied",
		metric.WithDescription("Plan operations applied to the target"),
		metric.WithUnit("{op}"),
	)
}

// Request configures one apply run.
type Request struct {
	Table string
	Era   types.Era

	// IdentityColumns address existing segments together with valid_from.
	IdentityColumns []string

	Plan []types.PlanOp
}

// Result summarizes an apply run. GeneratedKeys maps grouping keys of newly
// founded entities to the identity the backend assigned.
type Result struct {
	Applied       int
	Skipped       int
	Errors        int
	GeneratedKeys map[string]types.ColumnMap
}

// Apply runs the plan in order against the writer. The plan's ordering
// invariants (inserts first, grow before shrink, deletes last) make each step
// safe under write-time coverage checks.
func Apply(ctx context.Context, w storage.RelationWriter, req Request) (Result, error) {
	ctx, span := execTracer.Start(ctx, "executor.apply",
		trace.WithAttributes(
			attribute.String("db.table", req.Table),
			attribute.Int("merge.plan_ops", len(req.Plan)),
		),
	)
	res := Result{GeneratedKeys: make(map[string]types.ColumnMap)}
	err := apply(ctx, w, req, &res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("merge.ops_applied", res.Applied))
	span.End()
	return res, err
}

func apply(ctx context.Context, w storage.RelationWriter, req Request, res *Result) error {
	for _, op := range req.Plan {
		switch op.Operation {
		case types.OpInsert:
			if err := applyInsert(ctx, w, req, res, op); err != nil {
				return fmt.Errorf("op %d: %w", op.Seq, err)
			}
		case types.OpUpdate:
			row := buildRow(req, op, op.NewValidFrom, op.NewValidUntil, res)
			if err := w.UpdateRow(ctx, req.Table, segmentKey(req, op, res), row); err != nil {
				return fmt.Errorf("op %d: %w", op.Seq, err)
			}
			res.Applied++
		case types.OpDelete:
			if err := w.DeleteRow(ctx, req.Table, segmentKey(req, op, res)); err != nil {
				return fmt.Errorf("op %d: %w", op.Seq, err)
			}
			res.Applied++
		case types.OpError:
			res.Errors++
			continue
		default:
			res.Skipped++
			continue
		}
		execMetrics.opsApplied.Add(ctx, 1, metric.WithAttributes(
			attribute.String("merge.op", string(op.Operation)),
		))
	}
	return nil
}

func applyInsert(ctx context.Context, w storage.RelationWriter, req Request, res *Result, op types.PlanOp) error {
	row := buildRow(req, op, op.NewValidFrom, op.NewValidUntil, res)
	stored, err := w.InsertRow(ctx, req.Table, row)
	if err != nil {
		return err
	}
	res.Applied++

	// Back-fill identity generated for a founded entity so later ops of the
	// same grouping address the stored rows.
	if op.IsNewEntity && len(req.IdentityColumns) > 0 {
		gen := stored.Subset(req.IdentityColumns).StripNulls()
		if len(gen) > 0 {
			if _, seen := res.GeneratedKeys[op.GroupingKey]; !seen {
				res.GeneratedKeys[op.GroupingKey] = gen
			}
		}
	}
	return nil
}

// buildRow composes the full relation row for an op: entity keys, temporal
// bounds, and the materialized payload (mirror column included).
func buildRow(req Request, op types.PlanOp, from, until *types.Datum, res *Result) types.ColumnMap {
	row := types.ColumnMap{}
	for k, v := range op.EntityKeys {
		row[k] = v
	}
	if gen, ok := res.GeneratedKeys[op.GroupingKey]; ok {
		for k, v := range gen {
			row[k] = v
		}
	}
	// Identity columns with no known value stay NULL so backends can
	// generate them.
	for _, c := range req.IdentityColumns {
		if !row.Has(c) {
			row[c] = types.Null()
		}
	}
	for k, v := range op.Data {
		row[k] = v
	}
	if from != nil {
		row[req.Era.ValidFromColumn] = *from
	}
	if until != nil {
		row[req.Era.ValidUntilColumn] = *until
	}
	return row
}

// segmentKey addresses the segment an UPDATE or DELETE replaces: the entity
// key plus the old valid_from.
func segmentKey(req Request, op types.PlanOp, res *Result) types.ColumnMap {
	key := types.ColumnMap{}
	if len(req.IdentityColumns) > 0 {
		for _, c := range req.IdentityColumns {
			key[c] = op.EntityKeys.Get(c)
		}
	} else {
		for k, v := range op.EntityKeys {
			key[k] = v
		}
	}
	if gen, ok := res.GeneratedKeys[op.GroupingKey]; ok {
		for k, v := range gen {
			key[k] = v
		}
	}
	if op.OldValidFrom != nil {
		key[req.Era.ValidFromColumn] = *op.OldValidFrom
	}
	return key
}
