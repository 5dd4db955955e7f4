package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/court-booking/internal/model"
)

// bulkChunk caps the rows per INSERT statement in CreateBulk.
const bulkChunk = 200

const reservationColumns = "id, customer_name, email, phone, court_type, `date`, `time`, price_cents, status, " +
	"payment_ref, waiver_signed, waiver_name, waiver_signature, recurring_group_id, color, created_at, updated_at"

// ReservationRepo stores reservations in MySQL. Dates and time ranges are
// kept as the strings the API uses; timestamps are UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to db.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		res                            model.Reservation
		resource                       string
		status                         string
		paymentRef, signature, groupID sql.NullString
	)
	err := s.Scan(
		&res.ID, &res.CustomerName, &res.Email, &res.Phone, &resource, &res.Date, &res.Time,
		&res.PriceCents, &status, &paymentRef, &res.WaiverSigned, &res.WaiverName, &signature,
		&groupID, &res.Color, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Resource = model.Resource(resource)
	res.Status = model.Status(status)
	res.PaymentRef = paymentRef.String
	res.WaiverSignature = signature.String
	res.GroupID = groupID.String
	return res, nil
}

func queryReservations(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// buildListQuery renders the SELECT for a filter, newest first.
func buildListQuery(f model.ReservationFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.From != "" {
		where = append(where, "`date` >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "`date` <= ?")
		args = append(args, f.To)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.Resource != "" {
		where = append(where, "court_type = ?")
		args = append(args, string(f.Resource))
	}
	if f.GroupID != "" {
		where = append(where, "recurring_group_id = ?")
		args = append(args, f.GroupID)
	}
	q := "SELECT " + reservationColumns + " FROM reservations"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return q, args
}

// List returns reservations matching f, newest first.
func (r *ReservationRepo) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	q, args := buildListQuery(f)
	return queryReservations(ctx, r.db, q, args...)
}

// Get returns a reservation by id.
func (r *ReservationRepo) Get(ctx context.Context, id string) (model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, fmt.Errorf("reservation %s: %w", id, model.ErrNotFound)
	}
	return res, err
}

// ListGroup returns every member of a recurring group in date order.
func (r *ReservationRepo) ListGroup(ctx context.Context, groupID string) ([]model.Reservation, error) {
	return queryReservations(ctx, r.db,
		"SELECT "+reservationColumns+" FROM reservations WHERE recurring_group_id = ? ORDER BY `date`, `time`", groupID)
}

const insertReservation = "INSERT INTO reservations (id, customer_name, email, phone, court_type, `date`, `time`, " +
	"price_cents, status, payment_ref, waiver_signed, waiver_name, waiver_signature, recurring_group_id, color) VALUES "

const insertTuple = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

func insertArgs(res *model.Reservation) []any {
	return []any{
		res.ID, res.CustomerName, res.Email, res.Phone, string(res.Resource), res.Date, res.Time,
		res.PriceCents, string(res.Status), nullable(res.PaymentRef), res.WaiverSigned, res.WaiverName,
		nullable(res.WaiverSignature), nullable(res.GroupID), res.Color,
	}
}

// Create inserts res inside a transaction. When guard is set, every
// reservation on res.Date is read with SELECT ... FOR UPDATE first, which
// holds off concurrent writers for that date until commit.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation, guard func([]model.Reservation) error) error {
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

	if guard != nil {
		sameDay, err := queryReservations(ctx, tx,
			"SELECT "+reservationColumns+" FROM reservations WHERE `date` = ? FOR UPDATE", res.Date)
		if err != nil {
			return err
		}
		if err := guard(sameDay); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, insertReservation+insertTuple, insertArgs(res)...); err != nil {
		return mapWriteErr(err)
	}
	// read back defaults
	err = tx.QueryRowContext(ctx, "SELECT created_at, updated_at FROM reservations WHERE id = ?", res.ID).
		Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CreateBulk inserts rows in chunks within one transaction. Either every
// row is written or none is, so the returned count is len(rows) or 0.
func (r *ReservationRepo) CreateBulk(ctx context.Context, rows []model.Reservation) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(rows); start += bulkChunk {
		end := min(start+bulkChunk, len(rows))
		var b strings.Builder
		b.WriteString(insertReservation)
		args := make([]any, 0, (end-start)*15)
		for i := start; i < end; i++ {
			if i > start {
				b.WriteString(",")
			}
			b.WriteString(insertTuple)
			args = append(args, insertArgs(&rows[i])...)
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return 0, mapWriteErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return len(rows), nil
}

// UpdateStatus moves id from one status to another. A zero-row update means
// the reservation is missing or no longer in from.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id string, from, to model.Status) (model.Reservation, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET status = ? WHERE id = ? AND status = ?", string(to), id, string(from))
	if err != nil {
		return model.Reservation{}, mapWriteErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return model.Reservation{}, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if n == 0 {
		return cur, fmt.Errorf("reservation %s is %s: %w", id, cur.Status, model.ErrStale)
	}
	return cur, nil
}

// TransitionByPaymentRef moves the reservation holding ref out of from to
// the status next picks. The reservation's date is locked the same way
// Create locks it, so next sees every writer for that date that committed
// first and none that commits during the call.
func (r *ReservationRepo) TransitionByPaymentRef(ctx context.Context, ref string, from model.Status, next func(model.Reservation, []model.Reservation) model.Status) (model.Reservation, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reservation{}, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var date string
	err = tx.QueryRowContext(ctx, "SELECT `date` FROM reservations WHERE payment_ref = ?", ref).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, false, fmt.Errorf("payment %s: %w", ref, model.ErrNotFound)
	}
	if err != nil {
		return model.Reservation{}, false, err
	}
	// lock the whole date first, in the order Create does
	day, err := queryReservations(ctx, tx,
		"SELECT "+reservationColumns+" FROM reservations WHERE `date` = ? FOR UPDATE", date)
	if err != nil {
		return model.Reservation{}, false, err
	}
	var (
		res     model.Reservation
		found   bool
		sameDay = make([]model.Reservation, 0, len(day))
	)
	for _, d := range day {
		if d.PaymentRef == ref {
			res, found = d, true
			continue
		}
		sameDay = append(sameDay, d)
	}
	if !found {
		return model.Reservation{}, false, fmt.Errorf("payment %s: %w", ref, model.ErrNotFound)
	}
	if res.Status != from {
		return res, false, nil
	}

	to := next(res, sameDay)
	if _, err := tx.ExecContext(ctx, "UPDATE reservations SET status = ? WHERE id = ?", string(to), res.ID); err != nil {
		return model.Reservation{}, false, mapWriteErr(err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT updated_at FROM reservations WHERE id = ?", res.ID).Scan(&res.UpdatedAt); err != nil {
		return model.Reservation{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Reservation{}, false, err
	}
	committed = true
	res.Status = to
	return res, true, nil
}

// CancelMany cancels every id that is not already cancelled or refunded.
func (r *ReservationRepo) CancelMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+3)
	args = append(args, string(model.StatusCancelled))
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(model.StatusCancelled), string(model.StatusRefunded))
	result, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET status = ? WHERE id IN ("+placeholders(len(ids))+") AND status NOT IN (?, ?)", args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// buildFieldUpdate renders the UPDATE for a field patch.
func buildFieldUpdate(ids []string, patch model.FieldPatch, expected *time.Time) (string, []any) {
	var (
		set  []string
		args []any
	)
	if patch.Label != nil {
		set = append(set, "customer_name = ?")
		args = append(args, *patch.Label)
	}
	if patch.Color != nil {
		set = append(set, "color = ?")
		args = append(args, *patch.Color)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	q := "UPDATE reservations SET " + strings.Join(set, ", ") + " WHERE id IN (" + placeholders(len(ids)) + ")"
	if expected != nil {
		q += " AND updated_at = ?"
		args = append(args, expected.UTC())
	}
	return q, args
}

// UpdateFields applies patch to ids and returns the number of matched rows.
func (r *ReservationRepo) UpdateFields(ctx context.Context, ids []string, patch model.FieldPatch, expected *time.Time) (int64, error) {
	if len(ids) == 0 || patch.Empty() {
		return 0, nil
	}
	q, args := buildFieldUpdate(ids, patch, expected)
	result, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
