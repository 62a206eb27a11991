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

const txColumns = `id, seq, time, class, reward, asset, amount, unit_price, price_currency, received, received_amount, provenance, native_type, note, review`

// AppendTransactions implements taxlot.TransactionStore. Known IDs are ignored.
func (d *DB) AppendTransactions(ctx context.Context, txs []taxlot.Transaction) (int, error) {
	added := 0
	err := d.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions (`+txColumns+`, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range txs {
			var price, currency, receivedQ string
			if t.HasPrice() {
				price, currency = t.UnitPrice.Decimal().String(), t.UnitPrice.Currency()
			}
			if t.Class == taxlot.Exchange {
				receivedQ = t.ReceivedQ.String()
			}
			res, err := stmt.ExecContext(ctx,
				t.ID, t.Seq, t.Time.Format(time.RFC3339Nano), t.Class.String(), t.Reward.String(),
				t.Asset, t.Amount.String(), price, currency, t.Received, receivedQ,
				t.Provenance, t.NativeType, t.Note, t.Review, t.Time.UnixNano())
			if err != nil {
				return fmt.Errorf("inserting transaction %s: %w", t.ID, err)
			}
			n, _ := res.RowsAffected()
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// HasTransaction implements taxlot.TransactionStore.
func (d *DB) HasTransaction(ctx context.Context, id string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// LastSeq implements taxlot.TransactionStore.
func (d *DB) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := d.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM transactions`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// Transactions implements taxlot.TransactionStore.
func (d *DB) Transactions(ctx context.Context, f taxlot.Filter) ([]taxlot.Transaction, error) {
	var where []string
	var args []any
	if f.Asset != "" {
		where = append(where, `(asset = ? OR received = ?)`)
		args = append(args, f.Asset, f.Asset)
	}
	if !f.From.IsZero() {
		where = append(where, `ts >= ?`)
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, `ts < ?`)
		args = append(args, f.To.UnixNano())
	}
	if len(f.Classes) > 0 {
		marks := make([]string, len(f.Classes))
		for i, c := range f.Classes {
			marks[i] = "?"
			args = append(args, c.String())
		}
		where = append(where, `class IN (`+strings.Join(marks, ", ")+`)`)
	}
	query := `SELECT ` + txColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY ts, seq`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taxlot.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (taxlot.Transaction, error) {
	var t taxlot.Transaction
	var at, class, reward, amount, price, currency, receivedQ string
	err := rows.Scan(&t.ID, &t.Seq, &at, &class, &reward, &t.Asset, &amount, &price, &currency,
		&t.Received, &receivedQ, &t.Provenance, &t.NativeType, &t.Note, &t.Review)
	if err != nil {
		return t, err
	}
	fail := func(field string, err error) (taxlot.Transaction, error) {
		return taxlot.Transaction{}, fmt.Errorf("transaction %s: invalid %s: %w", t.ID, field, err)
	}
	if t.Time, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return fail("time", err)
	}
	if t.Class, err = taxlot.ParseClassification(class); err != nil {
		return fail("class", err)
	}
	if t.Reward, err = taxlot.ParseRewardKind(reward); err != nil {
		return fail("reward", err)
	}
	if t.Amount, err = taxlot.ParseQuantity(amount); err != nil {
		return fail("amount", err)
	}
	if price != "" {
		p, err := decimal.NewFromString(price)
		if err != nil {
			return fail("unit price", err)
		}
		t.UnitPrice = taxlot.M(p, currency)
	}
	if receivedQ != "" {
		if t.ReceivedQ, err = taxlot.ParseQuantity(receivedQ); err != nil {
			return fail("received amount", err)
		}
	}
	return t, nil
}
