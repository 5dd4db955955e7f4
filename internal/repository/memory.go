package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/court-booking/internal/model"
)

// MemoryStore keeps reservations and payouts in process memory. A single
// mutex serialises every call, which also makes Create's guard atomic with
// the insert.
type MemoryStore struct {
	mu           sync.Mutex
	reservations map[string]model.Reservation
	order        []string
	payouts      []model.Payout
	now          func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an empty store stamping rows with now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{reservations: map[string]model.Reservation{}, now: now}
}

func matches(r model.Reservation, f model.ReservationFilter) bool {
	if f.From != "" && r.Date < f.From {
		return false
	}
	if f.To != "" && r.Date > f.To {
		return false
	}
	if f.Resource != "" && r.Resource != f.Resource {
		return false
	}
	if f.GroupID != "" && r.GroupID != f.GroupID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// List returns reservations matching f, newest first.
func (m *MemoryStore) List(_ context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Reservation{}
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.reservations[m.order[i]]
		if !matches(r, f) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) get(id string) (model.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %s: %w", id, model.ErrNotFound)
	}
	return r, nil
}

// Get returns a reservation by id.
func (m *MemoryStore) Get(_ context.Context, id string) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

// ListGroup returns the members of a recurring group in date order.
func (m *MemoryStore) ListGroup(_ context.Context, groupID string) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, id := range m.order {
		if r := m.reservations[id]; r.GroupID == groupID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *MemoryStore) insert(r *model.Reservation) error {
	if _, dup := m.reservations[r.ID]; dup {
		return fmt.Errorf("%w: duplicate id %s", ErrConflict, r.ID)
	}
	if r.PaymentRef != "" {
		for _, other := range m.reservations {
			if other.PaymentRef == r.PaymentRef {
				return fmt.Errorf("%w: duplicate payment reference %s", ErrConflict, r.PaymentRef)
			}
		}
	}
	now := m.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.reservations[r.ID] = *r
	m.order = append(m.order, r.ID)
	return nil
}

// Create inserts r after guard approves the reservations on r.Date.
func (m *MemoryStore) Create(_ context.Context, r *model.Reservation, guard func([]model.Reservation) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if guard != nil {
		var sameDay []model.Reservation
		for _, other := range m.reservations {
			if other.Date == r.Date {
				sameDay = append(sameDay, other)
			}
		}
		if err := guard(sameDay); err != nil {
			return err
		}
	}
	return m.insert(r)
}

// CreateBulk inserts every row or none.
func (m *MemoryStore) CreateBulk(_ context.Context, rows []model.Reservation) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range rows {
		if _, dup := m.reservations[r.ID]; dup || seen[r.ID] {
			return 0, fmt.Errorf("%w: duplicate id %s", ErrConflict, r.ID)
		}
		seen[r.ID] = true
	}
	for i := range rows {
		r := rows[i]
		if err := m.insert(&r); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// UpdateStatus moves id from one status to another.
func (m *MemoryStore) UpdateStatus(_ context.Context, id string, from, to model.Status) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.get(id)
	if err != nil {
		return model.Reservation{}, err
	}
	if r.Status != from {
		return r, fmt.Errorf("reservation %s is %s: %w", id, r.Status, model.ErrStale)
	}
	r.Status = to
	r.UpdatedAt = m.now().UTC()
	m.reservations[id] = r
	return r, nil
}

// TransitionByPaymentRef moves the reservation holding ref out of from to
// the status next picks from the other reservations on its date.
func (m *MemoryStore) TransitionByPaymentRef(_ context.Context, ref string, from model.Status, next func(model.Reservation, []model.Reservation) model.Status) (model.Reservation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.reservations {
		if r.PaymentRef != ref {
			continue
		}
		if r.Status != from {
			return r, false, nil
		}
		var sameDay []model.Reservation
		for _, other := range m.reservations {
			if other.Date == r.Date && other.ID != id {
				sameDay = append(sameDay, other)
			}
		}
		r.Status = next(r, sameDay)
		r.UpdatedAt = m.now().UTC()
		m.reservations[id] = r
		return r, true, nil
	}
	return model.Reservation{}, false, fmt.Errorf("payment %s: %w", ref, model.ErrNotFound)
}

func (m *MemoryStore) CancelMany(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now().UTC()
	for _, id := range ids {
		r, ok := m.reservations[id]
		if !ok || r.Status.Terminal() {
			continue
		}
		r.Status = model.StatusCancelled
		r.UpdatedAt = now
		m.reservations[id] = r
		n++
	}
	return n, nil
}

// UpdateFields applies patch to ids, skipping rows modified after expected.
func (m *MemoryStore) UpdateFields(_ context.Context, ids []string, patch model.FieldPatch, expected *time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now().UTC()
	for _, id := range ids {
		r, ok := m.reservations[id]
		if !ok {
			continue
		}
		if expected != nil && !r.UpdatedAt.Equal(*expected) {
			continue
		}
		patch.Apply(&r)
		r.UpdatedAt = now
		m.reservations[id] = r
		n++
	}
	return n, nil
}

// ListPayouts returns payouts newest first.
func (m *MemoryStore) ListPayouts(_ context.Context) ([]model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Payout, 0, len(m.payouts))
	for i := len(m.payouts) - 1; i >= 0; i-- {
		out = append(out, m.payouts[i])
	}
	return out, nil
}

func (m *MemoryStore) balance() model.Balance {
	var b model.Balance
	for _, r := range m.reservations {
		if r.Status == model.StatusConfirmed {
			b.RevenueCents += r.PriceCents
		}
	}
	for _, p := range m.payouts {
		if p.Status != model.PayoutFailed {
			b.PaidOutCents += p.AmountCents
		}
	}
	b.AvailableCents = b.RevenueCents - b.PaidOutCents
	return b
}

// Balance returns confirmed revenue against payouts that have not failed.
func (m *MemoryStore) Balance(_ context.Context) (model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(), nil
}

// CreatePayout inserts p if guard accepts the current balance.
func (m *MemoryStore) CreatePayout(_ context.Context, p *model.Payout, guard func(model.Balance) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if guard != nil {
		if err := guard(m.balance()); err != nil {
			return err
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now().UTC()
	}
	m.payouts = append(m.payouts, *p)
	return nil
}
