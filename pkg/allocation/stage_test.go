package allocation

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

func paramsWith(pre, post float64) model.AllocationParams {
	p := BuiltinDefault()
	p.Stages = model.StageSplit{PreProduction: pre, PostProduction: post}
	return p
}

func TestSplitByStage(t *testing.T) {
	tests := []struct {
		name      string
		pre, post float64
		share     string
		wantPre   string
		wantPost  string
	}{
		{"sixty forty", 60, 40, "900", "540", "360"},
		{"all pre", 100, 0, "12.34", "12.34", "0"},
		{"all post", 0, 100, "12.34", "0", "12.34"},
		{"odd cent goes to larger remainder", 50, 50, "0.03", "0.02", "0.01"},
		{"uneven cents", 33.4, 66.6, "0.10", "0.03", "0.07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			share := decimal.RequireFromString(tt.share)
			got := SplitByStage(share, paramsWith(tt.pre, tt.post))

			if !got.Production.IsZero() {
				t.Fatalf("production share must be zero, got %s", got.Production)
			}
			if got.PreProduction.String() != tt.wantPre || got.PostProduction.String() != tt.wantPost {
				t.Fatalf("got pre=%s post=%s, want pre=%s post=%s",
					got.PreProduction, got.PostProduction, tt.wantPre, tt.wantPost)
			}
			if !got.PreProduction.Add(got.PostProduction).Equal(share) {
				t.Fatalf("stage amounts do not sum back to %s", share)
			}
		})
	}
}
