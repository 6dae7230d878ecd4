package allocation

import (
	"errors"
	"fmt"
	"math"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

// stageSumEpsilon tolerates float drift when checking that stage percentages
// sum to 100.
const stageSumEpsilon = 0.1

// BuiltinDefaultID identifies the undeletable fallback parameter set.
const BuiltinDefaultID = "builtin-default"

var (
	ErrNameRequired       = errors.New("allocation params: name is required")
	ErrNegativePercentage = errors.New("allocation params: stage percentages must not be negative")
	ErrStageSum           = errors.New("allocation params: pre- and post-production percentages must sum to 100")
	ErrProductionNonZero  = errors.New("allocation params: production percentage must be 0")
	ErrNegativeWeight     = errors.New("allocation params: scope weights must not be negative")
)

// ValidateParams checks a parameter set at the edit boundary. Invalid sets are
// rejected here so the resolver never sees them.
func ValidateParams(p model.AllocationParams) error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.Stages.PreProduction < 0 || p.Stages.PostProduction < 0 {
		return ErrNegativePercentage
	}
	if p.Stages.Production != 0 {
		return ErrProductionNonZero
	}
	if sum := p.Stages.PreProduction + p.Stages.PostProduction; math.Abs(sum-100) > stageSumEpsilon {
		return fmt.Errorf("%w (got %.1f)", ErrStageSum, sum)
	}
	if p.ScopeWeights.Scope1 < 0 || p.ScopeWeights.Scope2 < 0 || p.ScopeWeights.Scope3 < 0 {
		return ErrNegativeWeight
	}
	return nil
}

// BuiltinDefault is the parameter set used when no stored set is the default.
// It always resolves, even after the user deletes every custom set.
func BuiltinDefault() model.AllocationParams {
	return model.AllocationParams{
		ID:           BuiltinDefaultID,
		Name:         "Standard 50/50",
		Stages:       model.StageSplit{PreProduction: 50, PostProduction: 50},
		ScopeWeights: model.ScopeWeights{Scope1: 1, Scope2: 1, Scope3: 1},
		IsDefault:    true,
	}
}
