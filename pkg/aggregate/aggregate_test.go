package aggregate

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleInputs() ([]model.EmissionRecord, []model.AllocationRecord) {
	direct := []model.EmissionRecord{
		{ID: "r1", ProjectID: "a", Amount: d("100.50")},
		{ID: "r2", ProjectID: "a", Amount: d("9.50")},
		{ID: "r3", ProjectID: "b", Amount: d("40")},
	}
	allocated := []model.AllocationRecord{
		{SourceRecordID: "op1", ProjectID: "a", Amount: d("25.25")},
		{SourceRecordID: "op1", ProjectID: "b", Amount: d("74.75")},
		{SourceRecordID: "op2", ProjectID: "b", Amount: d("10")},
	}
	return direct, allocated
}

func TestSummarize(t *testing.T) {
	direct, allocated := sampleInputs()
	s := Summarize("a", direct, allocated)

	if !s.Direct.Equal(d("110")) || s.DirectCount != 2 {
		t.Fatalf("direct: got %s (%d records)", s.Direct, s.DirectCount)
	}
	if !s.Allocated.Equal(d("25.25")) || s.AllocatedCount != 1 {
		t.Fatalf("allocated: got %s (%d records)", s.Allocated, s.AllocatedCount)
	}
	if !s.Total.Equal(d("135.25")) {
		t.Fatalf("total: got %s", s.Total)
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	direct, allocated := sampleInputs()
	first := Summarize("b", direct, allocated)
	second := Summarize("b", direct, allocated)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("summaries differ between calls: %+v vs %+v", first, second)
	}
}

func TestSummarizeUnknownProject(t *testing.T) {
	direct, allocated := sampleInputs()
	s := Summarize("nope", direct, allocated)
	if !s.Total.IsZero() || s.DirectCount != 0 || s.AllocatedCount != 0 {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}

func TestUnallocatedTotal(t *testing.T) {
	operational := []model.OperationalRecord{
		{ID: "op1", Amount: d("100")},
		{ID: "op2", Amount: d("10")},
		{ID: "op3", Amount: d("33.33")}, // never allocated
	}
	_, allocated := sampleInputs()

	if got := UnallocatedTotal(operational, allocated); !got.Equal(d("33.33")) {
		t.Fatalf("unallocated total: got %s, want 33.33", got)
	}
}
