package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

// SplitByStage splits a project's allocated share into pre- and post-production
// amounts per the parameter percentages. PreProduction + PostProduction equals
// share exactly, with the same floor-and-distribute rounding as the resolver;
// the residual unit goes to the larger fractional remainder, pre-production on
// an exact tie.
//
// Production is always zero: shooting-day operational cost is assumed to be
// captured by direct records already.
func SplitByStage(share decimal.Decimal, params model.AllocationParams) model.StageAmounts {
	weights := []decimal.Decimal{
		decimal.NewFromFloat(params.Stages.PreProduction),
		decimal.NewFromFloat(params.Stages.PostProduction),
	}
	parts := apportion(share, weights)
	return model.StageAmounts{
		PreProduction:  parts[0],
		Production:     decimal.Zero,
		PostProduction: parts[1],
	}
}
