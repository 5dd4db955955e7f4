package service

import (
	"context"
	"time"

	"github.com/iliyamo/court-booking/internal/lifecycle"
	"github.com/iliyamo/court-booking/internal/model"
)

// ReservationStore persists reservations. Implementations return
// model.ErrNotFound for unknown ids and model.ErrStale when a conditional
// write finds the row in a different state than expected.
type ReservationStore interface {
	List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	ListGroup(ctx context.Context, groupID string) ([]model.Reservation, error)

	// Create inserts r. guard is called with every reservation on r.Date
	// while writers for that date are held off; a guard error aborts the
	// insert and is returned unchanged.
	Create(ctx context.Context, r *model.Reservation, guard func(sameDay []model.Reservation) error) error

	// CreateBulk inserts rs atomically and reports how many rows were
	// written.
	CreateBulk(ctx context.Context, rs []model.Reservation) (int, error)

	// UpdateStatus moves id from one status to another only if it is still
	// in from.
	UpdateStatus(ctx context.Context, id string, from, to model.Status) (model.Reservation, error)

	// TransitionByPaymentRef moves the reservation holding payment
	// reference ref out of from. next is called with that reservation and
	// the other reservations on its date while writers for that date are
	// held off, and returns the status to write. changed is false when the
	// reservation exists but was not in from.
	TransitionByPaymentRef(ctx context.Context, ref string, from model.Status, next func(r model.Reservation, sameDay []model.Reservation) model.Status) (r model.Reservation, changed bool, err error)

	// CancelMany cancels every non-terminal reservation among ids.
	CancelMany(ctx context.Context, ids []string) (int64, error)

	// UpdateFields applies patch to ids. When expected is set, rows whose
	// updated_at differs are left alone.
	UpdateFields(ctx context.Context, ids []string, patch model.FieldPatch, expected *time.Time) (int64, error)
}

// PayoutStore persists payouts and aggregates the balance.
type PayoutStore interface {
	ListPayouts(ctx context.Context) ([]model.Payout, error)
	Balance(ctx context.Context) (model.Balance, error)
	// CreatePayout inserts p after guard approves the balance at the time of
	// the write.
	CreatePayout(ctx context.Context, p *model.Payout, guard func(model.Balance) error) error
}

// Notifier tells people about reservation transitions.
type Notifier interface {
	Notify(ctx context.Context, event lifecycle.Event, r model.Reservation) error
}

// ChangeListener is told when reservations on the given dates change.
type ChangeListener interface {
	ReservationsChanged(ctx context.Context, dates ...string)
}
