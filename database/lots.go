package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/taxlot"
	"github.com/shopspring/decimal"
)

const upsertLot = `INSERT INTO lots (asset, seq, original, remaining, unit_cost, cost_currency, acquired, acquired_ts, source, unknown_cost)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(asset, seq) DO UPDATE SET
		original = excluded.original,
		remaining = excluded.remaining,
		unit_cost = excluded.unit_cost,
		cost_currency = excluded.cost_currency,
		acquired = excluded.acquired,
		acquired_ts = excluded.acquired_ts,
		source = excluded.source,
		unknown_cost = excluded.unknown_cost`

func saveLots(ctx context.Context, tx *sql.Tx, lots []taxlot.Lot) error {
	stmt, err := tx.PrepareContext(ctx, upsertLot)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, l := range lots {
		_, err := stmt.ExecContext(ctx, l.Asset, l.Seq, l.Original.String(), l.Remaining.String(),
			l.UnitCost.Decimal().String(), l.UnitCost.Currency(),
			l.Acquired.Format(time.RFC3339Nano), l.Acquired.UnixNano(), l.Source, l.UnknownCost)
		if err != nil {
			return fmt.Errorf("saving lot %s#%d: %w", l.Asset, l.Seq, err)
		}
	}
	return nil
}

// SaveLots implements taxlot.LotStore.
func (d *DB) SaveLots(ctx context.Context, lots []taxlot.Lot) error {
	return d.tx(ctx, func(tx *sql.Tx) error { return saveLots(ctx, tx, lots) })
}

// ReplaceLots implements taxlot.LotStore, in a single transaction.
func (d *DB) ReplaceLots(ctx context.Context, lots []taxlot.Lot) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM lots`); err != nil {
			return err
		}
		return saveLots(ctx, tx, lots)
	})
}

// Lots implements taxlot.LotStore.
func (d *DB) Lots(ctx context.Context, f taxlot.LotFilter) ([]taxlot.Lot, error) {
	var where []string
	var args []any
	if f.Asset != "" {
		where = append(where, `asset = ?`)
		args = append(args, f.Asset)
	}
	if !f.Until.IsZero() {
		where = append(where, `acquired_ts <= ?`)
		args = append(args, f.Until.UnixNano())
	}
	query := `SELECT asset, seq, original, remaining, unit_cost, cost_currency, acquired, source, unknown_cost FROM lots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY asset, seq`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taxlot.Lot
	for rows.Next() {
		var l taxlot.Lot
		var original, remaining, cost, currency, acquired string
		if err := rows.Scan(&l.Asset, &l.Seq, &original, &remaining, &cost, &currency, &acquired, &l.Source, &l.UnknownCost); err != nil {
			return nil, err
		}
		if l.Original, err = taxlot.ParseQuantity(original); err != nil {
			return nil, fmt.Errorf("lot %s#%d: invalid original: %w", l.Asset, l.Seq, err)
		}
		if l.Remaining, err = taxlot.ParseQuantity(remaining); err != nil {
			return nil, fmt.Errorf("lot %s#%d: invalid remaining: %w", l.Asset, l.Seq, err)
		}
		c, err := decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("lot %s#%d: invalid unit cost: %w", l.Asset, l.Seq, err)
		}
		l.UnitCost = taxlot.M(c, currency)
		if l.Acquired, err = time.Parse(time.RFC3339Nano, acquired); err != nil {
			return nil, fmt.Errorf("lot %s#%d: invalid acquisition time: %w", l.Asset, l.Seq, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
