package allocation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

// Share is one project's slice of a shared record's amount.
type Share struct {
	ProjectID string
	Amount    decimal.Decimal
}

// Resolver computes per-project shares of shared operational records.
// The zero value uses MonthOverlapWeigher for duration-based weights.
type Resolver struct {
	// Duration supplies the weight for MethodDuration. Swappable because the
	// intended time window (record period vs. whole project lifetime) is still
	// under discussion with product; see TotalDurationWeigher.
	Duration DurationWeigher
}

// NewResolver returns a Resolver with the default duration strategy.
func NewResolver() *Resolver {
	return &Resolver{Duration: MonthOverlapWeigher{}}
}

// Resolve splits rec.Amount across the rule's target projects. The shares sum
// to rec.Amount exactly for every method and any non-empty target set. An
// unallocated record, an empty target set, or targets that all vanished from
// candidates yield no shares: the amount stays unallocated overhead.
//
// Degenerate weights never fail: if every target's weight is zero (no budgets
// set, no usable dates), the split degrades to equal.
func (r *Resolver) Resolve(rec model.OperationalRecord, candidates []model.Project) []Share {
	if !rec.IsAllocated || len(rec.Rule.TargetProjects) == 0 {
		return nil
	}

	byID := make(map[string]model.Project, len(candidates))
	for _, p := range candidates {
		byID[p.ID] = p
	}

	// Drop target ids with no matching project: the project may have been
	// deleted after the rule was saved.
	targets := make([]model.Project, 0, len(rec.Rule.TargetProjects))
	seen := make(map[string]bool, len(rec.Rule.TargetProjects))
	for _, id := range rec.Rule.TargetProjects {
		p, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, p)
	}
	if len(targets) == 0 {
		return nil
	}

	// Ascending project id fixes the residual-unit tie-break.
	sort.Slice(targets, func(a, b int) bool { return targets[a].ID < targets[b].ID })

	weights := make([]decimal.Decimal, len(targets))
	for i, p := range targets {
		weights[i] = r.weight(rec, p)
	}

	amounts := apportion(rec.Amount, weights)
	shares := make([]Share, len(targets))
	for i, p := range targets {
		shares[i] = Share{ProjectID: p.ID, Amount: amounts[i]}
	}
	return shares
}

func (r *Resolver) weight(rec model.OperationalRecord, p model.Project) decimal.Decimal {
	switch rec.Rule.Method {
	case model.MethodBudget:
		if p.Budget.IsNegative() {
			return decimal.Zero
		}
		return p.Budget
	case model.MethodDuration:
		w := r.Duration
		if w == nil {
			w = MonthOverlapWeigher{}
		}
		start, end := recordPeriod(rec)
		return w.Weight(p, start, end)
	default:
		return decimal.New(1, 0)
	}
}

// Allocate resolves rec and splits each share across stages using params.
func (r *Resolver) Allocate(rec model.OperationalRecord, candidates []model.Project, params model.AllocationParams) []model.AllocationRecord {
	shares := r.Resolve(rec, candidates)
	if len(shares) == 0 {
		return nil
	}
	out := make([]model.AllocationRecord, len(shares))
	for i, s := range shares {
		out[i] = model.AllocationRecord{
			SourceRecordID: rec.ID,
			ProjectID:      s.ProjectID,
			Amount:         s.Amount,
			Stages:         SplitByStage(s.Amount, params),
		}
	}
	return out
}

// AllocateAll runs Allocate over every operational record.
func (r *Resolver) AllocateAll(recs []model.OperationalRecord, candidates []model.Project, params model.AllocationParams) []model.AllocationRecord {
	var out []model.AllocationRecord
	for _, rec := range recs {
		out = append(out, r.Allocate(rec, candidates, params)...)
	}
	return out
}
