package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectStatus is the lifecycle state of a production project.
type ProjectStatus string

const (
	StatusPlanning  ProjectStatus = "planning"
	StatusActive    ProjectStatus = "active"
	StatusCompleted ProjectStatus = "completed"
)

// Stage is a phase of a production's lifecycle.
type Stage string

const (
	StagePreProduction  Stage = "pre-production"
	StageProduction     Stage = "production"
	StagePostProduction Stage = "post-production"
)

// AllocationMethod selects how a shared record is weighted across projects.
type AllocationMethod string

const (
	MethodEqual    AllocationMethod = "equal"
	MethodBudget   AllocationMethod = "budget"
	MethodDuration AllocationMethod = "duration"
)

// Project is a single film production tracked by the user.
type Project struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    ProjectStatus   `json:"status"`
	Budget    decimal.Decimal `json:"budget"`
	StartDate time.Time       `json:"startDate,omitempty"`
	EndDate   time.Time       `json:"endDate,omitempty"`
	// Optional per-stage carbon budget targets, kg CO2e.
	StageTargets map[Stage]decimal.Decimal `json:"stageTargets,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

// EmissionRecord is a direct emission entry attributed to one project.
type EmissionRecord struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	Stage      Stage           `json:"stage"`
	CategoryID string          `json:"categoryId"`
	SourceID   string          `json:"sourceId"`
	Amount     decimal.Decimal `json:"amount"` // kg CO2e
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
	OccurredOn time.Time       `json:"date"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// AllocationRule configures how a shared record is split across projects.
type AllocationRule struct {
	Method         AllocationMethod `json:"method"`
	TargetProjects []string         `json:"targetProjects"`
}

// OperationalRecord is a shared emission entry not tied to a single project
// (office electricity, shared travel, and so on). When IsAllocated is false,
// or the rule targets nothing, the full amount stays unallocated overhead.
type OperationalRecord struct {
	ID          string          `json:"id"`
	CategoryID  string          `json:"categoryId"`
	Amount      decimal.Decimal `json:"amount"` // kg CO2e
	Quantity    decimal.Decimal `json:"quantity"`
	OccurredOn  time.Time       `json:"date"`
	IsAllocated bool            `json:"isAllocated"`
	Rule        AllocationRule  `json:"allocation"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// StageSplit holds stage percentages for allocation parameters.
// Production is always 0: shooting-day overhead is captured by direct
// records and must not be double counted through allocation.
type StageSplit struct {
	PreProduction  float64 `json:"preProduction"`
	Production     float64 `json:"production"`
	PostProduction float64 `json:"postProduction"`
}

// ScopeWeights are per-scope multipliers on allocation parameters. They are
// stored and synced for forward compatibility; no computation consumes them yet.
type ScopeWeights struct {
	Scope1 float64 `json:"scope1"`
	Scope2 float64 `json:"scope2"`
	Scope3 float64 `json:"scope3"`
}

// AllocationParams is a named, user-editable set of allocation settings.
// Exactly one set is the system-wide default at any time.
type AllocationParams struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Stages       StageSplit   `json:"stageAllocations"`
	ScopeWeights ScopeWeights `json:"scopeWeights"`
	IsDefault    bool         `json:"isDefault"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// StageAmounts is a per-stage breakdown of an allocated amount.
type StageAmounts struct {
	PreProduction  decimal.Decimal `json:"preProduction"`
	Production     decimal.Decimal `json:"production"`
	PostProduction decimal.Decimal `json:"postProduction"`
}

// AllocationRecord is one project's share of a shared record. Derived data:
// recomputed from current records, never edited or persisted as authoritative.
type AllocationRecord struct {
	SourceRecordID string          `json:"sourceRecordId"`
	ProjectID      string          `json:"projectId"`
	Amount         decimal.Decimal `json:"allocatedAmount"`
	Stages         StageAmounts    `json:"stages"`
}

// ProjectSummary combines a project's direct and allocated emissions.
// Pure function of the current records; always recomputable.
type ProjectSummary struct {
	ProjectID      string          `json:"projectId"`
	Direct         decimal.Decimal `json:"directEmissions"`
	Allocated      decimal.Decimal `json:"allocatedEmissions"`
	Total          decimal.Decimal `json:"totalEmissions"`
	DirectCount    int             `json:"directRecordCount"`
	AllocatedCount int             `json:"allocatedRecordCount"`
}

// Snapshot bundles the three reconciled entity collections.
type Snapshot struct {
	Projects    []Project           `json:"projects"`
	Records     []EmissionRecord    `json:"records"`
	Operational []OperationalRecord `json:"operational"`
}
