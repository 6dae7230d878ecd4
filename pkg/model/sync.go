package model

import "time"

// ConflictPolicy decides which copy wins when an entity diverged between
// the local store and the server.
type ConflictPolicy string

const (
	// PolicyServer always keeps the remote copy.
	PolicyServer ConflictPolicy = "server"
	// PolicyLocal always keeps the local copy.
	PolicyLocal ConflictPolicy = "local"
	// PolicyManual keeps the strictly newer copy (last write wins);
	// equal timestamps resolve to the remote copy.
	PolicyManual ConflictPolicy = "manual"
)

// SyncStatus is the outcome state of one reconciliation attempt.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
	SyncOffline SyncStatus = "offline"
)

// SyncConfig is the process-wide reconciliation configuration.
type SyncConfig struct {
	AutoSync        bool           `mapstructure:"auto"`
	IntervalMinutes int            `mapstructure:"interval_minutes"`
	MaxRetries      int            `mapstructure:"max_retries"`
	Conflicts       ConflictPolicy `mapstructure:"conflict_resolution"`
}

// Interval returns the debounce/timer interval as a duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SyncCounts reports how many entities each part of a pass touched.
type SyncCounts struct {
	Projects    int `json:"projects"`
	Records     int `json:"records"`
	Operational int `json:"operational"`
	Uploaded    int `json:"uploaded"`
}

// SyncResult describes the outcome of one reconciliation attempt.
type SyncResult struct {
	Status    SyncStatus  `json:"status"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Counts    *SyncCounts `json:"counts,omitempty"`
}

// EntityID implementations let the reconciler merge collections generically.

func (p Project) EntityID() string           { return p.ID }
func (r EmissionRecord) EntityID() string    { return r.ID }
func (o OperationalRecord) EntityID() string { return o.ID }

// LastModified is the conflict-resolution timestamp: UpdatedAt when set,
// otherwise CreatedAt.

func (p Project) LastModified() time.Time           { return lastModified(p.UpdatedAt, p.CreatedAt) }
func (r EmissionRecord) LastModified() time.Time    { return lastModified(r.UpdatedAt, r.CreatedAt) }
func (o OperationalRecord) LastModified() time.Time { return lastModified(o.UpdatedAt, o.CreatedAt) }

func lastModified(updated, created time.Time) time.Time {
	if updated.IsZero() {
		return created
	}
	return updated
}
