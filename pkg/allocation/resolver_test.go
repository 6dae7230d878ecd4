package allocation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

func proj(id string, budget int64) model.Project {
	return model.Project{ID: id, Name: id, Status: model.StatusActive, Budget: decimal.NewFromInt(budget)}
}

func sharedRec(amount string, method model.AllocationMethod, targets ...string) model.OperationalRecord {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	return model.OperationalRecord{
		ID:          "op-1",
		Amount:      amt,
		IsAllocated: true,
		Rule:        model.AllocationRule{Method: method, TargetProjects: targets},
	}
}

func sumShares(shares []Share) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Amount)
	}
	return total
}

func TestResolveConservation(t *testing.T) {
	projects := []model.Project{proj("a", 100000), proj("b", 0), proj("c", 300000), proj("d", 7)}
	amounts := []string{"1000", "0.01", "0.03", "999.99", "123.45", "1"}
	methods := []model.AllocationMethod{model.MethodEqual, model.MethodBudget, model.MethodDuration}

	for _, m := range methods {
		for _, amt := range amounts {
			rec := sharedRec(amt, m, "a", "b", "c", "d")
			shares := NewResolver().Resolve(rec, projects)
			if len(shares) != 4 {
				t.Fatalf("method %s amount %s: expected 4 shares, got %d", m, amt, len(shares))
			}
			if got := sumShares(shares); !got.Equal(rec.Amount) {
				t.Fatalf("method %s amount %s: shares sum to %s, want %s", m, amt, got, rec.Amount)
			}
		}
	}
}

func TestResolveEqualSplit(t *testing.T) {
	rec := sharedRec("1000", model.MethodEqual, "a", "b", "c")
	shares := NewResolver().Resolve(rec, []model.Project{proj("c", 0), proj("a", 0), proj("b", 0)})

	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}
	// 1000/3 floors to 333.33 each; the 0.01 residual goes to the lowest id.
	want := map[string]string{"a": "333.34", "b": "333.33", "c": "333.33"}
	for _, s := range shares {
		if s.Amount.String() != want[s.ProjectID] {
			t.Fatalf("project %s: got %s, want %s", s.ProjectID, s.Amount, want[s.ProjectID])
		}
	}
}

func TestResolveBudgetSplit(t *testing.T) {
	projects := []model.Project{proj("a", 100000), proj("b", 0), proj("c", 300000)}
	shares := NewResolver().Resolve(sharedRec("1000", model.MethodBudget, "a", "b", "c"), projects)

	want := map[string]string{"a": "250", "b": "0", "c": "750"}
	for _, s := range shares {
		if !s.Amount.Equal(decimal.RequireFromString(want[s.ProjectID])) {
			t.Fatalf("project %s: got %s, want %s", s.ProjectID, s.Amount, want[s.ProjectID])
		}
	}
}

func TestResolveZeroBudgetFallsBackToEqual(t *testing.T) {
	projects := []model.Project{proj("a", 0), proj("b", 0)}
	shares := NewResolver().Resolve(sharedRec("100", model.MethodBudget, "a", "b"), projects)

	for _, s := range shares {
		if !s.Amount.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("project %s: got %s, want 50", s.ProjectID, s.Amount)
		}
	}
}

func TestResolveDropsStaleTargets(t *testing.T) {
	projects := []model.Project{proj("a", 0)}
	shares := NewResolver().Resolve(sharedRec("100", model.MethodEqual, "a", "deleted-long-ago"), projects)

	if len(shares) != 1 || shares[0].ProjectID != "a" {
		t.Fatalf("expected single share for a, got %+v", shares)
	}
	if !shares[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected full amount for a, got %s", shares[0].Amount)
	}
}

func TestResolveUnallocatedRecords(t *testing.T) {
	projects := []model.Project{proj("a", 0)}

	rec := sharedRec("100", model.MethodEqual, "a")
	rec.IsAllocated = false
	if shares := NewResolver().Resolve(rec, projects); shares != nil {
		t.Fatalf("unallocated record produced shares: %+v", shares)
	}

	if shares := NewResolver().Resolve(sharedRec("100", model.MethodEqual), projects); shares != nil {
		t.Fatalf("empty target set produced shares: %+v", shares)
	}

	// All targets stale: treated as unallocated.
	if shares := NewResolver().Resolve(sharedRec("100", model.MethodEqual, "x", "y"), projects); shares != nil {
		t.Fatalf("all-stale target set produced shares: %+v", shares)
	}
}

func TestResolveDurationOverlap(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	// March 2026 record. a runs the whole month, b the first 10 days only.
	a := proj("a", 0)
	a.StartDate, a.EndDate = day(2026, time.January, 1), day(2026, time.December, 31)
	b := proj("b", 0)
	b.StartDate, b.EndDate = day(2026, time.February, 1), day(2026, time.March, 10)

	rec := sharedRec("410", model.MethodDuration, "a", "b")
	rec.OccurredOn = day(2026, time.March, 15)

	shares := NewResolver().Resolve(rec, []model.Project{a, b})
	want := map[string]string{"a": "310", "b": "100"} // 31 vs 10 overlap days
	for _, s := range shares {
		if !s.Amount.Equal(decimal.RequireFromString(want[s.ProjectID])) {
			t.Fatalf("project %s: got %s, want %s", s.ProjectID, s.Amount, want[s.ProjectID])
		}
	}
}

func TestResolveDurationNoDatesFallsBackToEqual(t *testing.T) {
	projects := []model.Project{proj("a", 0), proj("b", 0)}
	rec := sharedRec("10", model.MethodDuration, "a", "b")
	rec.OccurredOn = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	shares := NewResolver().Resolve(rec, projects)
	for _, s := range shares {
		if !s.Amount.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("project %s: got %s, want 5", s.ProjectID, s.Amount)
		}
	}
}

func TestAllocateCarriesStageBreakdown(t *testing.T) {
	params := BuiltinDefault()
	params.Stages = model.StageSplit{PreProduction: 60, PostProduction: 40}

	recs := NewResolver().Allocate(sharedRec("900", model.MethodEqual, "a"), []model.Project{proj("a", 0)}, params)
	if len(recs) != 1 {
		t.Fatalf("expected 1 allocation record, got %d", len(recs))
	}
	r := recs[0]
	if r.SourceRecordID != "op-1" || r.ProjectID != "a" {
		t.Fatalf("unexpected identities: %+v", r)
	}
	if !r.Stages.PreProduction.Equal(decimal.NewFromInt(540)) ||
		!r.Stages.Production.IsZero() ||
		!r.Stages.PostProduction.Equal(decimal.NewFromInt(360)) {
		t.Fatalf("unexpected stage breakdown: %+v", r.Stages)
	}
}
