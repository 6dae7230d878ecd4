// Package aggregate folds direct and allocated emission records into
// display-ready totals. Everything here is a pure function: safe to call on
// every read, identical output for identical input.
package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

// Summarize combines a project's direct records with its allocated shares.
// Records belonging to other projects are ignored, so callers can pass the
// full collections as-is.
func Summarize(projectID string, direct []model.EmissionRecord, allocated []model.AllocationRecord) model.ProjectSummary {
	s := model.ProjectSummary{
		ProjectID: projectID,
		Direct:    decimal.Zero,
		Allocated: decimal.Zero,
	}
	for _, r := range direct {
		if r.ProjectID != projectID {
			continue
		}
		s.Direct = s.Direct.Add(r.Amount)
		s.DirectCount++
	}
	for _, a := range allocated {
		if a.ProjectID != projectID {
			continue
		}
		s.Allocated = s.Allocated.Add(a.Amount)
		s.AllocatedCount++
	}
	s.Total = s.Direct.Add(s.Allocated)
	return s
}

// SummarizeAll returns one summary per project, in input order.
func SummarizeAll(projects []model.Project, direct []model.EmissionRecord, allocated []model.AllocationRecord) []model.ProjectSummary {
	out := make([]model.ProjectSummary, len(projects))
	for i, p := range projects {
		out[i] = Summarize(p.ID, direct, allocated)
	}
	return out
}

// UnallocatedTotal is the portfolio-wide operational emission that no project
// absorbs: all operational amounts minus everything handed out as shares.
func UnallocatedTotal(operational []model.OperationalRecord, allocated []model.AllocationRecord) decimal.Decimal {
	total := decimal.Zero
	for _, o := range operational {
		total = total.Add(o.Amount)
	}
	for _, a := range allocated {
		total = total.Sub(a.Amount)
	}
	return total
}
