package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/court-booking/internal/model"
)

// PayoutRepo stores payouts in MySQL and computes the balance from the
// reservations and payouts tables.
type PayoutRepo struct {
	db *sql.DB
}

// NewPayoutRepo returns a PayoutRepo bound to db.
func NewPayoutRepo(db *sql.DB) *PayoutRepo { return &PayoutRepo{db: db} }

// ListPayouts returns payouts newest first.
func (r *PayoutRepo) ListPayouts(ctx context.Context) ([]model.Payout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, amount_cents, status, transfer_ref, created_at FROM payouts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payout{}
	for rows.Next() {
		var (
			p      model.Payout
			status string
		)
		if err := rows.Scan(&p.ID, &p.AmountCents, &status, &p.TransferRef, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Status = model.PayoutStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balance(ctx context.Context, q querier, lock bool) (model.Balance, error) {
	var b model.Balance
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(price_cents), 0) FROM reservations WHERE status = ?`,
		string(model.StatusConfirmed)).Scan(&b.RevenueCents)
	if err != nil {
		return b, err
	}
	paid := `SELECT COALESCE(SUM(amount_cents), 0) FROM payouts WHERE status <> ?`
	if lock {
		paid += ` FOR UPDATE`
	}
	if err := q.QueryRowContext(ctx, paid, string(model.PayoutFailed)).Scan(&b.PaidOutCents); err != nil {
		return b, err
	}
	b.AvailableCents = b.RevenueCents - b.PaidOutCents
	return b, nil
}

// Balance returns confirmed revenue against payouts that have not failed.
func (r *PayoutRepo) Balance(ctx context.Context) (model.Balance, error) {
	return balance(ctx, r.db, false)
}

// CreatePayout inserts p if guard accepts the balance. The payouts rows are
// locked while the balance is computed so two requests cannot both spend
// the same revenue.
func (r *PayoutRepo) CreatePayout(ctx context.Context, p *model.Payout, guard func(model.Balance) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := balance(ctx, tx, true)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(b); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payouts (id, amount_cents, status, transfer_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.AmountCents, string(p.Status), p.TransferRef, p.CreatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
