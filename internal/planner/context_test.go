package planner

import (
	"errors"
	"testing"

	"github.com/steveyegge/saga/internal/types"
)

func TestPlanContextValidation(t *testing.T) {
	base := func() types.PlanRequest {
		return types.PlanRequest{
			Era:             dateEra,
			SourceColumns:   []string{"id", "code", "valid_from", "valid_until", "name"},
			TargetColumns:   []string{"id", "code", "valid_from", "valid_until", "name"},
			IdentityColumns: []string{"id"},
			LookupKeys:      [][]string{{"code"}},
			Mode:            types.MergeEntityPatch,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*types.PlanRequest)
		wantErr error
	}{
		{
			name:    "valid request",
			mutate:  func(r *types.PlanRequest) {},
			wantErr: nil,
		},
		{
			name:    "missing era",
			mutate:  func(r *types.PlanRequest) { r.Era = types.Era{} },
			wantErr: ErrMissingEra,
		},
		{
			name:    "unknown merge mode",
			mutate:  func(r *types.PlanRequest) { r.Mode = "UPSERT_HARDER" },
			wantErr: ErrBadMode,
		},
		{
			name:    "unknown delete mode",
			mutate:  func(r *types.PlanRequest) { r.DeleteMode = "CASCADE" },
			wantErr: ErrBadMode,
		},
		{
			name:    "source lacks valid_from",
			mutate:  func(r *types.PlanRequest) { r.SourceColumns = []string{"id", "code", "valid_until", "name"} },
			wantErr: ErrNoSourceTemporal,
		},
		{
			name:    "source lacks any end column",
			mutate:  func(r *types.PlanRequest) { r.SourceColumns = []string{"id", "code", "valid_from", "name"} },
			wantErr: ErrNoSourceTemporal,
		},
		{
			name:    "identity column missing in target",
			mutate:  func(r *types.PlanRequest) { r.TargetColumns = []string{"code", "valid_from", "valid_until", "name"} },
			wantErr: ErrMissingColumn,
		},
		{
			name:    "lookup column missing in source",
			mutate:  func(r *types.PlanRequest) { r.LookupKeys = [][]string{{"badge"}} },
			wantErr: ErrMissingColumn,
		},
		{
			name:    "no identity information",
			mutate:  func(r *types.PlanRequest) { r.IdentityColumns = nil; r.LookupKeys = nil },
			wantErr: ErrNoIdentity,
		},
		{
			name:    "founding column missing",
			mutate:  func(r *types.PlanRequest) { r.FoundingIDColumn = "batch" },
			wantErr: ErrMissingColumn,
		},
		{
			name:    "founding column is a lookup column",
			mutate:  func(r *types.PlanRequest) { r.FoundingIDColumn = "code" },
			wantErr: ErrBadCausalColumn,
		},
		{
			name:    "temporal column listed as ephemeral",
			mutate:  func(r *types.PlanRequest) { r.EphemeralColumns = []string{"valid_from"} },
			wantErr: ErrBadEphemeral,
		},
		{
			name: "mirror column listed as ephemeral",
			mutate: func(r *types.PlanRequest) {
				r.Era.ValidToColumn = "valid_to"
				r.SourceColumns = append(r.SourceColumns, "valid_to")
				r.TargetColumns = append(r.TargetColumns, "valid_to")
				r.EphemeralColumns = []string{"valid_to"}
			},
			wantErr: ErrBadEphemeral,
		},
		{
			name: "mirror on continuous subtype",
			mutate: func(r *types.PlanRequest) {
				r.Era.Subtype = types.SubtypeTimestamp
				r.Era.ValidToColumn = "valid_to"
				r.SourceColumns = append(r.SourceColumns, "valid_to")
			},
			wantErr: ErrMissingEra, // era validation rejects the mirror itself
		},
		{
			name:    "unsupported subtype",
			mutate:  func(r *types.PlanRequest) { r.Era.Subtype = "tsrange" },
			wantErr: ErrMissingEra,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			_, err := newPlanContext(req)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("newPlanContext failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstellation(t *testing.T) {
	req := types.PlanRequest{
		Era:             dateEra,
		SourceColumns:   []string{"id", "code", "valid_from", "valid_until"},
		TargetColumns:   []string{"id", "code", "valid_from", "valid_until"},
		IdentityColumns: []string{"id"},
		LookupKeys:      [][]string{{"code"}},
		Mode:            types.MergeEntityPatch,
	}
	pc, err := newPlanContext(req)
	if err != nil {
		t.Fatalf("newPlanContext failed: %v", err)
	}
	if pc.constellation != ConstellationHybrid {
		t.Errorf("constellation = %s, want HYBRID", pc.constellation)
	}

	req.LookupKeys = nil
	pc, err = newPlanContext(req)
	if err != nil {
		t.Fatalf("newPlanContext failed: %v", err)
	}
	if pc.constellation != ConstellationIdentityOnly {
		t.Errorf("constellation = %s, want IDENTITY_ONLY", pc.constellation)
	}

	req.IdentityColumns = nil
	req.LookupKeys = [][]string{{"code"}}
	pc, err = newPlanContext(req)
	if err != nil {
		t.Fatalf("newPlanContext failed: %v", err)
	}
	if pc.constellation != ConstellationLookupOnly {
		t.Errorf("constellation = %s, want LOOKUP_ONLY", pc.constellation)
	}
}
