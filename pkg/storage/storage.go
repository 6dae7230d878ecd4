// Package storage is the local snapshot store: every entity the UI edits and
// the reconciler merges lives in one SQLite file. Rows written by local edits
// carry a dirty mark until they have been pushed upstream; rows written by
// the reconciler are always clean.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS projects (
  id            TEXT PRIMARY KEY,
  name          TEXT NOT NULL,
  status        TEXT NOT NULL,
  budget        TEXT NOT NULL DEFAULT '0',
  start_date    TEXT,
  end_date      TEXT,
  stage_targets TEXT,
  created_at    TEXT,
  updated_at    TEXT,
  dirty         INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS emission_records (
  id          TEXT PRIMARY KEY,
  project_id  TEXT NOT NULL,
  stage       TEXT NOT NULL,
  category_id TEXT,
  source_id   TEXT,
  amount      TEXT NOT NULL,
  quantity    TEXT,
  unit        TEXT,
  occurred_on TEXT,
  created_at  TEXT,
  updated_at  TEXT,
  dirty       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_records_project ON emission_records(project_id);
CREATE TABLE IF NOT EXISTS operational_records (
  id            TEXT PRIMARY KEY,
  category_id   TEXT,
  amount        TEXT NOT NULL,
  quantity      TEXT,
  occurred_on   TEXT,
  is_allocated  INTEGER NOT NULL DEFAULT 0,
  alloc_method  TEXT,
  alloc_targets TEXT,
  created_at    TEXT,
  updated_at    TEXT,
  dirty         INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS allocation_params (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  pre_pct    REAL NOT NULL,
  post_pct   REAL NOT NULL,
  scope1     REAL NOT NULL DEFAULT 1,
  scope2     REAL NOT NULL DEFAULT 1,
  scope3     REAL NOT NULL DEFAULT 1,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at TEXT,
  updated_at TEXT
);
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
	`); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Kind names a synced entity table.
type Kind string

const (
	KindProject     Kind = "projects"
	KindRecord      Kind = "emission_records"
	KindOperational Kind = "operational_records"
)

// --- projects ---

// SaveProject upserts a locally edited project and marks it dirty.
func (d *DB) SaveProject(ctx context.Context, p model.Project) error {
	return d.writeProjects(ctx, []model.Project{p}, true)
}

// ApplyProjects upserts reconciled projects as clean rows.
func (d *DB) ApplyProjects(ctx context.Context, ps []model.Project) error {
	return d.writeProjects(ctx, ps, false)
}

func (d *DB) writeProjects(ctx context.Context, ps []model.Project, dirty bool) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range ps {
			targets, err := marshalStageTargets(p.StageTargets)
			if err != nil {
				return fmt.Errorf("project %s: %w", p.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO projects(id, name, status, budget, start_date, end_date, stage_targets, created_at, updated_at, dirty)
VALUES(?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name, status=excluded.status, budget=excluded.budget,
  start_date=excluded.start_date, end_date=excluded.end_date,
  stage_targets=excluded.stage_targets, created_at=excluded.created_at,
  updated_at=excluded.updated_at, dirty=excluded.dirty`,
				p.ID, p.Name, string(p.Status), p.Budget.String(),
				fmtTime(p.StartDate), fmtTime(p.EndDate), targets,
				fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt), boolToInt(dirty))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT id, name, status, budget, start_date, end_date, stage_targets, created_at, updated_at
FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var p model.Project
		var status, budget string
		var start, end, targets, created, updated sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &status, &budget, &start, &end, &targets, &created, &updated); err != nil {
			return nil, err
		}
		p.Status = model.ProjectStatus(status)
		if p.Budget, err = decimal.NewFromString(budget); err != nil {
			return nil, fmt.Errorf("project %s: bad budget %q", p.ID, budget)
		}
		p.StartDate = parseTime(start)
		p.EndDate = parseTime(end)
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		if p.StageTargets, err = unmarshalStageTargets(targets); err != nil {
			return nil, fmt.Errorf("project %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- direct emission records ---

func (d *DB) SaveRecord(ctx context.Context, r model.EmissionRecord) error {
	return d.writeRecords(ctx, []model.EmissionRecord{r}, true)
}

func (d *DB) ApplyRecords(ctx context.Context, rs []model.EmissionRecord) error {
	return d.writeRecords(ctx, rs, false)
}

func (d *DB) writeRecords(ctx context.Context, rs []model.EmissionRecord, dirty bool) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rs {
			_, err := tx.ExecContext(ctx, `
INSERT INTO emission_records(id, project_id, stage, category_id, source_id, amount, quantity, unit, occurred_on, created_at, updated_at, dirty)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  project_id=excluded.project_id, stage=excluded.stage,
  category_id=excluded.category_id, source_id=excluded.source_id,
  amount=excluded.amount, quantity=excluded.quantity, unit=excluded.unit,
  occurred_on=excluded.occurred_on, created_at=excluded.created_at,
  updated_at=excluded.updated_at, dirty=excluded.dirty`,
				r.ID, r.ProjectID, string(r.Stage), r.CategoryID, r.SourceID,
				r.Amount.String(), r.Quantity.String(), r.Unit,
				fmtTime(r.OccurredOn), fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt), boolToInt(dirty))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) ListRecords(ctx context.Context) ([]model.EmissionRecord, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT id, project_id, stage, category_id, source_id, amount, quantity, unit, occurred_on, created_at, updated_at
FROM emission_records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EmissionRecord
	for rows.Next() {
		var r model.EmissionRecord
		var stage, amount string
		var category, source, quantity, unit, occurred, created, updated sql.NullString
		if err := rows.Scan(&r.ID, &r.ProjectID, &stage, &category, &source, &amount, &quantity, &unit, &occurred, &created, &updated); err != nil {
			return nil, err
		}
		r.Stage = model.Stage(stage)
		r.CategoryID = category.String
		r.SourceID = source.String
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("record %s: bad amount %q", r.ID, amount)
		}
		r.Quantity = parseDecimal(quantity)
		r.Unit = unit.String
		r.OccurredOn = parseTime(occurred)
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- operational records ---

func (d *DB) SaveOperational(ctx context.Context, o model.OperationalRecord) error {
	return d.writeOperational(ctx, []model.OperationalRecord{o}, true)
}

func (d *DB) ApplyOperational(ctx context.Context, os []model.OperationalRecord) error {
	return d.writeOperational(ctx, os, false)
}

func (d *DB) writeOperational(ctx context.Context, os []model.OperationalRecord, dirty bool) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, o := range os {
			targets, err := json.Marshal(o.Rule.TargetProjects)
			if err != nil {
				return fmt.Errorf("operational record %s: %w", o.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO operational_records(id, category_id, amount, quantity, occurred_on, is_allocated, alloc_method, alloc_targets, created_at, updated_at, dirty)
VALUES(?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  category_id=excluded.category_id, amount=excluded.amount,
  quantity=excluded.quantity, occurred_on=excluded.occurred_on,
  is_allocated=excluded.is_allocated, alloc_method=excluded.alloc_method,
  alloc_targets=excluded.alloc_targets, created_at=excluded.created_at,
  updated_at=excluded.updated_at, dirty=excluded.dirty`,
				o.ID, o.CategoryID, o.Amount.String(), o.Quantity.String(),
				fmtTime(o.OccurredOn), boolToInt(o.IsAllocated),
				string(o.Rule.Method), string(targets),
				fmtTime(o.CreatedAt), fmtTime(o.UpdatedAt), boolToInt(dirty))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) ListOperational(ctx context.Context) ([]model.OperationalRecord, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT id, category_id, amount, quantity, occurred_on, is_allocated, alloc_method, alloc_targets, created_at, updated_at
FROM operational_records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperationalRecord
	for rows.Next() {
		var o model.OperationalRecord
		var amount string
		var allocated int
		var category, quantity, occurred, method, targets, created, updated sql.NullString
		if err := rows.Scan(&o.ID, &category, &amount, &quantity, &occurred, &allocated, &method, &targets, &created, &updated); err != nil {
			return nil, err
		}
		o.CategoryID = category.String
		if o.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("operational record %s: bad amount %q", o.ID, amount)
		}
		o.Quantity = parseDecimal(quantity)
		o.OccurredOn = parseTime(occurred)
		o.IsAllocated = allocated == 1
		o.Rule.Method = model.AllocationMethod(method.String)
		if targets.Valid && targets.String != "" {
			if err := json.Unmarshal([]byte(targets.String), &o.Rule.TargetProjects); err != nil {
				return nil, fmt.Errorf("operational record %s: %w", o.ID, err)
			}
		}
		o.CreatedAt = parseTime(created)
		o.UpdatedAt = parseTime(updated)
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- dirty tracking ---

// DirtyIDs returns the ids of locally edited rows awaiting upload.
func (d *DB) DirtyIDs(ctx context.Context, kind Kind) (map[string]bool, error) {
	rows, err := d.sql.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE dirty = 1", kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// MarkDirty flags rows as locally edited and awaiting upload.
func (d *DB) MarkDirty(ctx context.Context, kind Kind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET dirty = 1 WHERE id = ?", kind), id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearDirty unmarks rows after a successful upload.
func (d *DB) ClearDirty(ctx context.Context, kind Kind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET dirty = 0 WHERE id = ?", kind), id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes one entity row. No tombstone is kept: a row that still
// exists remotely comes back on the next reconciliation pass.
func (d *DB) Delete(ctx context.Context, kind Kind, id string) error {
	res, err := d.sql.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", kind), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no %s row with id %s", kind, id)
	}
	return nil
}

// TableStats is one row of the db stats report.
type TableStats struct {
	Kind  Kind
	Total int
	Dirty int
}

// GetStats returns row and pending-upload counts for each synced table.
func (d *DB) GetStats(ctx context.Context) ([]TableStats, error) {
	var out []TableStats
	for _, kind := range []Kind{KindProject, KindRecord, KindOperational} {
		var s TableStats
		s.Kind = kind
		err := d.sql.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(dirty), 0) FROM %s", kind)).Scan(&s.Total, &s.Dirty)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// --- meta ---

const metaLastSync = "last_sync_time"

func (d *DB) LastSyncTime(ctx context.Context) (time.Time, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaLastSync).Scan(&v)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s value %q: %w", metaLastSync, v, err)
	}
	return t, nil
}

func (d *DB) SetLastSyncTime(ctx context.Context, t time.Time) error {
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO meta(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaLastSync, t.UTC().Format(time.RFC3339Nano))
	return err
}

// --- helpers ---

func (d *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func fmtTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDecimal(s sql.NullString) decimal.Decimal {
	if !s.Valid || s.String == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func marshalStageTargets(m map[model.Stage]decimal.Decimal) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalStageTargets(s sql.NullString) (map[model.Stage]decimal.Decimal, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[model.Stage]decimal.Decimal
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
