package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/date"
	"github.com/shopspring/decimal"
)

// PutQuote implements taxlot.QuoteStore. A quote of the same day is overwritten.
func (d *DB) PutQuote(ctx context.Context, q taxlot.PriceQuote) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO quotes (asset, day, price, source) VALUES (?, ?, ?, ?)
		ON CONFLICT(asset, day) DO UPDATE SET price = excluded.price, source = excluded.source`,
		q.Asset, q.Day.String(), q.Price.String(), q.Source)
	return err
}

func scanQuote(row interface{ Scan(...any) error }) (taxlot.PriceQuote, error) {
	var q taxlot.PriceQuote
	var day, price string
	if err := row.Scan(&q.Asset, &day, &price, &q.Source); err != nil {
		return q, err
	}
	var err error
	if q.Day, err = date.Parse(day); err != nil {
		return q, fmt.Errorf("quote %s: invalid day: %w", q.Asset, err)
	}
	if q.Price, err = decimal.NewFromString(price); err != nil {
		return q, fmt.Errorf("quote %s %s: invalid price: %w", q.Asset, day, err)
	}
	return q, nil
}

func (d *DB) quote(ctx context.Context, query string, args ...any) (taxlot.PriceQuote, bool, error) {
	q, err := scanQuote(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return taxlot.PriceQuote{}, false, nil
	}
	if err != nil {
		return taxlot.PriceQuote{}, false, err
	}
	return q, true, nil
}

// Quote implements taxlot.QuoteStore.
func (d *DB) Quote(ctx context.Context, asset string, day date.Date) (taxlot.PriceQuote, bool, error) {
	return d.quote(ctx, `SELECT asset, day, price, source FROM quotes WHERE asset = ? AND day = ?`, asset, day.String())
}

// LatestQuote implements taxlot.QuoteStore.
func (d *DB) LatestQuote(ctx context.Context, asset string, day date.Date) (taxlot.PriceQuote, bool, error) {
	return d.quote(ctx, `SELECT asset, day, price, source FROM quotes WHERE asset = ? AND day <= ? ORDER BY day DESC LIMIT 1`, asset, day.String())
}

// Quotes implements taxlot.QuoteStore.
func (d *DB) Quotes(ctx context.Context, asset string, r date.Range) ([]taxlot.PriceQuote, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT asset, day, price, source FROM quotes WHERE asset = ? AND day BETWEEN ? AND ? ORDER BY day`,
		asset, r.From.String(), r.To.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []taxlot.PriceQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
