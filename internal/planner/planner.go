// Package planner computes temporal merge plans: given a target history
// relation, a source batch, a merge mode, and identity metadata, it derives
// the minimal ordered set of DML operations that transforms the target into
// the correct post-merge history.
//
// Planning is a single-threaded, in-process computation over immutable
// snapshots. The planner never mutates storage, never retries, and treats
// non-key, non-temporal columns opaquely; every decision it takes surfaces as
// a PlanOp, including row-level errors and skips.
package planner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/saga/internal/types"
)

// planTracer is the OTel tracer for planning spans. It uses the global
// provider, which is a no-op until the embedding process installs one.
var planTracer = otel.Tracer("github.com/steveyegge/saga/planner")

// planMetrics holds OTel instruments, registered against the global
// delegating provider at init time.
var planMetrics struct {
	plans      metric.Int64Counter
	ops        metric.Int64Counter
	durationMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/steveyegge/saga/planner")
	planMetrics.plans, _ = m.Int64Counter("sg.plan.calls",
		metric.WithDescription("Planning calls"),
		metric.WithUnit("{call}"),
	)
	planMetrics.ops, _ = m.Int64Counter("sg.plan.ops",
		metric.WithDescription("Plan operations emitted"),
		metric.WithUnit("{op}"),
	)
	planMetrics.durationMs, _ = m.Float64Histogram("sg.plan.duration_ms",
		metric.WithDescription("Planning wall time"),
		metric.WithUnit("ms"),
	)
}

// Plan computes the merge plan for one request. The returned slice is totally
// ordered, dense in Seq, and byte-identical across calls with equal inputs.
func Plan(ctx context.Context, req types.PlanRequest) ([]types.PlanOp, error) {
	ctx, span := planTracer.Start(ctx, "planner.plan",
		trace.WithAttributes(
			attribute.String("merge.mode", string(req.Mode)),
			attribute.String("merge.delete_mode", string(req.DeleteMode)),
			attribute.Int("merge.source_rows", len(req.Source)),
			attribute.Int("merge.target_rows", len(req.Target)),
		),
	)
	start := time.Now()
	ops, err := plan(ctx, req)
	planMetrics.plans.Add(ctx, 1, metric.WithAttributes(attribute.String("merge.mode", string(req.Mode))))
	planMetrics.durationMs.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		planMetrics.ops.Add(ctx, int64(len(ops)))
		span.SetAttributes(attribute.Int("merge.plan_ops", len(ops)))
	}
	span.End()
	return ops, err
}

func plan(_ context.Context, req types.PlanRequest) ([]types.PlanOp, error) {
	pc, err := newPlanContext(req)
	if err != nil {
		return nil, err
	}
	rows, err := prepareSource(pc, req.Source)
	if err != nil {
		return nil, err
	}

	idx := buildTargetIndex(pc, req.Target)
	classifyIdentifiability(pc, rows)
	resolveEntities(pc, rows, idx)
	resolveCanonicalKeys(pc, rows)
	assignNewEntityGroups(pc, rows)
	detectEclipses(rows)
	applyModeFilters(pc, rows)

	scoped := scopeTargets(pc, idx, rows)
	groups := buildGroups(pc, rows, scoped)

	var ops []types.PlanOp
	for _, g := range groups {
		segs := sweep(g)
		resolved := resolvePayloads(pc, g, segs)
		// Source rows whose covered segments were tombstoned contribute to
		// the op that reshapes the covering target row.
		deleters := map[*targetRow][]int64{}
		for _, rs := range resolved {
			if rs.deleted && rs.target != nil {
				for _, sr := range rs.sources {
					deleters[rs.target] = appendRowID(deleters[rs.target], sr.id)
				}
			}
		}
		coalesced := coalesce(pc, resolved)
		ops = append(ops, diffGroup(pc, g, coalesced, deleters)...)
	}
	ops = append(ops, feedbackOps(pc, rows)...)
	ops = append(ops, accountLeftovers(pc, rows, ops)...)
	return orderPlan(ops), nil
}

// feedbackOps turns rows withdrawn during preparation (errors, eclipses,
// mode filters) into their terminal operations.
func feedbackOps(pc *planContext, rows []*sourceRow) []types.PlanOp {
	var ops []types.PlanOp
	for _, sr := range rows {
		if sr.status == "" {
			continue
		}
		op := types.PlanOp{
			Operation:    sr.status,
			RowIDs:       []int64{sr.id},
			Feedback:     sr.feedback,
			GroupingKey:  sr.grouping,
			CausalID:     sr.causal,
			IsNewEntity:  sr.isNew,
			IdentityKeys: sr.identity.StripNulls(),
			LookupKeys:   sr.lookups.StripNulls(),
		}
		op.EntityKeys = op.IdentityKeys.MergeRight(op.LookupKeys)
		ops = append(ops, op)
	}
	return ops
}

// accountLeftovers emits SKIP_FILTERED for live rows the plan never touched:
// every source row must appear in exactly one feedback entry or at least one
// operation's row set.
func accountLeftovers(pc *planContext, rows []*sourceRow, ops []types.PlanOp) []types.PlanOp {
	referenced := map[int64]bool{}
	for _, op := range ops {
		for _, id := range op.RowIDs {
			referenced[id] = true
		}
	}
	var extra []types.PlanOp
	for _, sr := range rows {
		if sr.status != "" || referenced[sr.id] {
			continue
		}
		op := types.PlanOp{
			Operation:   types.OpSkipFiltered,
			RowIDs:      []int64{sr.id},
			GroupingKey: sr.grouping,
			CausalID:    sr.causal,
			IsNewEntity: sr.isNew,
			Feedback: map[string]string{
				"info": "no effect within the existing timeline",
			},
			IdentityKeys: sr.identity.StripNulls(),
			LookupKeys:   sr.lookups.StripNulls(),
		}
		op.EntityKeys = op.IdentityKeys.MergeRight(op.LookupKeys)
		extra = append(extra, op)
	}
	return extra
}
