package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slatecarbon/slatecarbon/pkg/allocation"
	"github.com/slatecarbon/slatecarbon/pkg/model"
)

var (
	ErrParamsNotFound      = errors.New("allocation params not found")
	ErrDeleteDefaultParams = errors.New("cannot delete the default allocation params; promote another set first")
	ErrDeleteBuiltinParams = errors.New("the built-in allocation params cannot be deleted")
)

// SaveParams validates and upserts a parameter set. Saving a set with
// IsDefault clears the flag on every other set in the same transaction, so at
// most one stored row is ever the default.
func (d *DB) SaveParams(ctx context.Context, p model.AllocationParams) error {
	if err := allocation.ValidateParams(p); err != nil {
		return err
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if p.IsDefault {
			if _, err := tx.ExecContext(ctx, "UPDATE allocation_params SET is_default = 0 WHERE id != ?", p.ID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO allocation_params(id, name, pre_pct, post_pct, scope1, scope2, scope3, is_default, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name, pre_pct=excluded.pre_pct, post_pct=excluded.post_pct,
  scope1=excluded.scope1, scope2=excluded.scope2, scope3=excluded.scope3,
  is_default=excluded.is_default, updated_at=excluded.updated_at`,
			p.ID, p.Name, p.Stages.PreProduction, p.Stages.PostProduction,
			p.ScopeWeights.Scope1, p.ScopeWeights.Scope2, p.ScopeWeights.Scope3,
			boolToInt(p.IsDefault), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
		return err
	})
}

// SetDefaultParams promotes one stored set to system-wide default, atomically
// demoting the previous one.
func (d *DB) SetDefaultParams(ctx context.Context, id string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE allocation_params SET is_default = 1 WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrParamsNotFound, id)
		}
		_, err = tx.ExecContext(ctx, "UPDATE allocation_params SET is_default = 0 WHERE id != ?", id)
		return err
	})
}

// DeleteParams removes a stored set. The current default and the built-in
// fallback are protected.
func (d *DB) DeleteParams(ctx context.Context, id string) error {
	if id == allocation.BuiltinDefaultID {
		return ErrDeleteBuiltinParams
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		var isDefault int
		err := tx.QueryRowContext(ctx, "SELECT is_default FROM allocation_params WHERE id = ?", id).Scan(&isDefault)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrParamsNotFound, id)
		}
		if err != nil {
			return err
		}
		if isDefault == 1 {
			return ErrDeleteDefaultParams
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM allocation_params WHERE id = ?", id)
		return err
	})
}

// DefaultParams resolves the current default set. When no stored set carries
// the flag (including the empty-table case) the built-in fallback is returned.
func (d *DB) DefaultParams(ctx context.Context) (model.AllocationParams, error) {
	row := d.sql.QueryRowContext(ctx, selectParams+" WHERE is_default = 1")
	p, err := scanParams(row)
	if err == sql.ErrNoRows {
		return allocation.BuiltinDefault(), nil
	}
	if err != nil {
		return model.AllocationParams{}, err
	}
	return p, nil
}

// ListParams returns all stored sets plus the built-in fallback when no
// stored set is the default.
func (d *DB) ListParams(ctx context.Context) ([]model.AllocationParams, error) {
	rows, err := d.sql.QueryContext(ctx, selectParams+" ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AllocationParams
	haveDefault := false
	for rows.Next() {
		p, err := scanParams(rows)
		if err != nil {
			return nil, err
		}
		haveDefault = haveDefault || p.IsDefault
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !haveDefault {
		out = append([]model.AllocationParams{allocation.BuiltinDefault()}, out...)
	}
	return out, nil
}

const selectParams = `
SELECT id, name, pre_pct, post_pct, scope1, scope2, scope3, is_default, created_at, updated_at
FROM allocation_params`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParams(row rowScanner) (model.AllocationParams, error) {
	var p model.AllocationParams
	var isDefault int
	var created, updated sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Stages.PreProduction, &p.Stages.PostProduction,
		&p.ScopeWeights.Scope1, &p.ScopeWeights.Scope2, &p.ScopeWeights.Scope3,
		&isDefault, &created, &updated)
	if err != nil {
		return model.AllocationParams{}, err
	}
	p.IsDefault = isDefault == 1
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}
