package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/court-booking/internal/lifecycle"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/payment"
	"github.com/iliyamo/court-booking/internal/recurrence"
	"github.com/iliyamo/court-booking/internal/repository"
	"github.com/iliyamo/court-booking/internal/series"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, ev lifecycle.Event, r model.Reservation) error {
	return m.Called(ev, r.ID).Error(0)
}

type mockProvider struct{ mock.Mock }

func (m *mockProvider) CreatePayment(ctx context.Context, req payment.Request) (payment.Intent, error) {
	args := m.Called(req)
	return args.Get(0).(payment.Intent), args.Error(1)
}

type recordingListener struct{ dates []string }

func (l *recordingListener) ReservationsChanged(_ context.Context, dates ...string) {
	l.dates = append(l.dates, dates...)
}

type fixture struct {
	svc      *BookingService
	store    *repository.MemoryStore
	notifier *mockNotifier
	provider *mockProvider
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := fixture{store: repository.NewMemoryStore(), notifier: &mockNotifier{}, provider: &mockProvider{}}
	f.svc = NewBookingService(f.store, f.provider, f.notifier, Config{Location: time.UTC, BlockEmail: "admin@facility.local"}, log)
	n := 0
	f.svc.newID = func() string { n++; return fmt.Sprintf("id-%03d", n) }
	return f
}

func customerDraft(date, slots string) Draft {
	return Draft{
		CustomerName: "Jordan Lee",
		Email:        "jordan@example.com",
		Resource:     model.HalfCourt,
		Date:         date,
		Time:         slots,
		PriceCents:   7500,
		WaiverSigned: true,
		WaiverName:   "Jordan Lee",
	}
}

func (f fixture) expectPayment() {
	f.provider.On("CreatePayment", mock.AnythingOfType("payment.Request")).
		Return(payment.Intent{Token: "snap-token"}, nil)
}

func (f fixture) book(t *testing.T, d Draft) model.Reservation {
	t.Helper()
	created, err := f.svc.CreateReservation(context.Background(), d)
	require.NoError(t, err)
	return created.Reservation
}

func TestCreateReservation_Customer(t *testing.T) {
	f := newFixture(t)
	f.expectPayment()

	created, err := f.svc.CreateReservation(context.Background(), customerDraft("2025-06-02", "9:00 AM - 10:00 AM"))
	require.NoError(t, err)

	r := created.Reservation
	assert.Equal(t, model.StatusPendingPayment, r.Status)
	assert.Equal(t, "09:00 AM - 10:00 AM", r.Time)
	assert.True(t, strings.HasPrefix(r.PaymentRef, "bk_"))
	require.NotNil(t, created.Payment)
	assert.Equal(t, "snap-token", created.Payment.Token)

	req := f.provider.Calls[0].Arguments.Get(0).(payment.Request)
	assert.Equal(t, r.PaymentRef, req.Reference)
	assert.Equal(t, int64(7500), req.AmountCents)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestCreateReservation_RequiresWaiver(t *testing.T) {
	f := newFixture(t)
	d := customerDraft("2025-06-02", "09:00 AM")
	d.WaiverSigned = false

	_, err := f.svc.CreateReservation(context.Background(), d)
	assert.ErrorIs(t, err, model.ErrValidation)
	f.provider.AssertNotCalled(t, "CreatePayment", mock.Anything)
}

func TestCreateReservation_OutsideHours(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateReservation(context.Background(), customerDraft("2025-06-02", "07:30 AM - 08:30 AM"))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "time", verr.Field)
}

func TestCreateReservation_ConflictBeforePayment(t *testing.T) {
	f := newFixture(t)
	block := f.book(t, Draft{CustomerName: "League", Resource: model.FullCourt, Date: "2025-06-02", Time: "09:00 AM - 11:00 AM"})
	assert.Equal(t, model.StatusDeclined, block.Status)
	assert.Equal(t, "admin@facility.local", block.Email)

	_, err := f.svc.CreateReservation(context.Background(), customerDraft("2025-06-02", "10:30 AM - 11:30 AM"))
	require.ErrorIs(t, err, model.ErrSlotTaken)
	assert.Contains(t, err.Error(), "10:30 AM")
	f.provider.AssertNotCalled(t, "CreatePayment", mock.Anything)

	rs, err := f.svc.ListReservations(context.Background(), model.ReservationFilter{})
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestCreateReservation_HalfDoesNotBlockFull(t *testing.T) {
	f := newFixture(t)
	f.book(t, Draft{Resource: model.HalfCourt, Date: "2025-06-02", Time: "09:00 AM - 10:00 AM", Status: model.StatusConfirmed})
	f.expectPayment()

	d := customerDraft("2025-06-02", "09:00 AM - 10:00 AM")
	d.Resource = model.FullCourt
	d.PriceCents = 15000
	_, err := f.svc.CreateReservation(context.Background(), d)
	assert.NoError(t, err)
}

func TestCreateReservation_AdjacentRangesDoNotConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t, Draft{Resource: model.FullCourt, Date: "2025-06-02", Time: "08:00 PM - 10:00 PM", Status: model.StatusConfirmed})
	f.expectPayment()
	_, err := f.svc.CreateReservation(context.Background(), customerDraft("2025-06-02", "07:00 PM - 08:00 PM"))
	assert.NoError(t, err)
}

func TestCreateReservation_ProviderFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.provider.On("CreatePayment", mock.Anything).Return(payment.Intent{}, errors.New("connection reset"))

	_, err := f.svc.CreateReservation(context.Background(), customerDraft("2025-06-02", "09:00 AM"))
	require.ErrorIs(t, err, model.ErrPaymentProvider)

	rs, err := f.svc.ListReservations(context.Background(), model.ReservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestOnPaymentConfirmed_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.expectPayment()
	r := f.book(t, customerDraft("2025-06-02", "09:00 AM"))
	f.notifier.On("Notify", lifecycle.EventAdminNewRequest, r.ID).Return(nil).Once()
	f.notifier.On("Notify", lifecycle.EventRequestReceived, r.ID).Return(nil).Once()

	got, changed, err := f.svc.OnPaymentConfirmed(context.Background(), r.PaymentRef)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusPendingApproval, got.Status)

	for i := 0; i < 3; i++ {
		_, changed, err = f.svc.OnPaymentConfirmed(context.Background(), r.PaymentRef)
		require.NoError(t, err)
		assert.False(t, changed)
	}
	f.notifier.AssertExpectations(t)
	f.notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestOnPaymentConfirmed_UnknownReference(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.OnPaymentConfirmed(context.Background(), "bk_missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOnPaymentConfirmed_OverlapCancelsLaterPayment(t *testing.T) {
	f := newFixture(t)
	f.expectPayment()
	ctx := context.Background()

	// neither holds the slots while payment is open
	first := f.book(t, customerDraft("2025-01-01", "09:00 AM - 10:00 AM"))
	second := f.book(t, customerDraft("2025-01-01", "09:30 AM - 10:30 AM"))

	f.notifier.On("Notify", lifecycle.EventAdminNewRequest, first.ID).Return(nil).Once()
	f.notifier.On("Notify", lifecycle.EventRequestReceived, first.ID).Return(nil).Once()
	f.notifier.On("Notify", lifecycle.EventAdminPaymentConflict, second.ID).Return(nil).Once()
	f.notifier.On("Notify", lifecycle.EventSlotUnavailable, second.ID).Return(nil).Once()

	got, changed, err := f.svc.OnPaymentConfirmed(ctx, first.PaymentRef)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusPendingApproval, got.Status)

	got, changed, err = f.svc.OnPaymentConfirmed(ctx, second.PaymentRef)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusCancelled, got.Status)

	_, changed, err = f.svc.OnPaymentConfirmed(ctx, second.PaymentRef)
	require.NoError(t, err)
	assert.False(t, changed, "a redelivery does not notify again")

	occupying, err := f.svc.ListReservations(ctx, model.ReservationFilter{From: "2025-01-01", To: "2025-01-01", Statuses: model.OccupyingStatuses()})
	require.NoError(t, err)
	require.Len(t, occupying, 1)
	assert.Equal(t, first.ID, occupying[0].ID)
	f.notifier.AssertExpectations(t)
}

func TestOnPaymentConfirmed_NonOverlappingBothApproved(t *testing.T) {
	f := newFixture(t)
	f.expectPayment()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	a := f.book(t, customerDraft("2025-01-01", "09:00 AM - 10:00 AM"))
	b := f.book(t, customerDraft("2025-01-01", "10:00 AM - 11:00 AM"))
	for _, r := range []model.Reservation{a, b} {
		got, _, err := f.svc.OnPaymentConfirmed(context.Background(), r.PaymentRef)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPendingApproval, got.Status)
	}
}

// slotTakenOnce fails the first payment transition the way the MySQL
// occupancy key does.
type slotTakenOnce struct {
	*repository.MemoryStore
	tripped bool
}

func (s *slotTakenOnce) TransitionByPaymentRef(ctx context.Context, ref string, from model.Status, next func(model.Reservation, []model.Reservation) model.Status) (model.Reservation, bool, error) {
	if !s.tripped {
		s.tripped = true
		return model.Reservation{}, false, fmt.Errorf("%w: Duplicate entry for key 'uq_reservations_occupancy'", model.ErrSlotTaken)
	}
	return s.MemoryStore.TransitionByPaymentRef(ctx, ref, from, next)
}

func TestOnPaymentConfirmed_OccupancyKeyViolationCancels(t *testing.T) {
	f := newFixture(t)
	f.expectPayment()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	r := f.book(t, customerDraft("2025-01-01", "09:00 AM - 10:00 AM"))

	log, _ := test.NewNullLogger()
	svc := NewBookingService(&slotTakenOnce{MemoryStore: f.store}, f.provider, f.notifier, Config{Location: time.UTC}, log)
	got, changed, err := svc.OnPaymentConfirmed(context.Background(), r.PaymentRef)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusCancelled, got.Status)
	f.notifier.AssertCalled(t, "Notify", lifecycle.EventAdminPaymentConflict, r.ID)
}

func TestPaidReservationOccupiesAfterPayment(t *testing.T) {
	f := newFixture(t)
	f.expectPayment()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	r := f.book(t, customerDraft("2025-06-02", "09:00 AM"))
	slots, err := f.svc.Availability(context.Background(), "2025-06-02", model.HalfCourt)
	require.NoError(t, err)
	assert.True(t, slots[2].Available, "pending payment does not hold the slot")

	_, _, err = f.svc.OnPaymentConfirmed(context.Background(), r.PaymentRef)
	require.NoError(t, err)
	slots, err = f.svc.Availability(context.Background(), "2025-06-02", model.HalfCourt)
	require.NoError(t, err)
	assert.Equal(t, "09:00 AM", slots[2].Time)
	assert.False(t, slots[2].Available)
}

func TestTransitionStatus(t *testing.T) {
	f := newFixture(t)
	f.expectPayment()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	r := f.book(t, customerDraft("2025-06-02", "09:00 AM"))

	_, err := f.svc.TransitionStatus(context.Background(), r.ID, model.StatusPendingApproval)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "only a payment moves a booking to approval")

	_, _, err = f.svc.OnPaymentConfirmed(context.Background(), r.PaymentRef)
	require.NoError(t, err)

	got, err := f.svc.TransitionStatus(context.Background(), r.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	f.notifier.AssertCalled(t, "Notify", lifecycle.EventConfirmed, r.ID)

	_, err = f.svc.TransitionStatus(context.Background(), r.ID, model.StatusPendingApproval)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err = f.svc.TransitionStatus(context.Background(), r.ID, model.StatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, got.Status)

	_, err = f.svc.CancelSingle(context.Background(), r.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.svc.TransitionStatus(context.Background(), "nope", model.StatusConfirmed)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	r := f.book(t, Draft{CustomerName: "Walk-in", Resource: model.FullCourt, Date: "2025-06-02", Time: "09:00 AM", Status: model.StatusPendingApproval})

	got, err := f.svc.TransitionStatus(context.Background(), r.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestCancelBlockSendsNothing(t *testing.T) {
	f := newFixture(t)
	r := f.book(t, Draft{Resource: model.FullCourt, Date: "2025-06-02", Time: "09:00 AM"})

	got, err := f.svc.CancelSingle(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestUpdateReservationFields(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	log, _ := test.NewNullLogger()
	store := repository.NewMemoryStoreWithClock(func() time.Time { return now })
	svc := NewBookingService(store, payment.Fake{}, nil, Config{Location: time.UTC}, log)

	created, err := svc.CreateReservation(context.Background(), Draft{Resource: model.FullCourt, Date: "2025-06-02", Time: "09:00 AM"})
	require.NoError(t, err)
	r := created.Reservation

	label := "Team practice"
	stale := now.Add(-time.Hour)
	_, err = svc.UpdateReservationFields(context.Background(), r.ID, model.FieldPatch{Label: &label}, &stale)
	assert.ErrorIs(t, err, model.ErrStale)

	got, err := svc.UpdateReservationFields(context.Background(), r.ID, model.FieldPatch{Label: &label}, &r.UpdatedAt)
	require.NoError(t, err)
	assert.Equal(t, "Team practice", got.CustomerName)

	_, err = svc.UpdateReservationFields(context.Background(), r.ID, model.FieldPatch{}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func weeklySeries(t *testing.T, f fixture, seeds ...recurrence.Seed) BulkResult {
	t.Helper()
	res, err := f.svc.CreateRecurring(context.Background(), recurrence.Selection{
		Seeds:    seeds,
		Resource: model.FullCourt,
		Label:    "League night",
		Color:    "#3366ff",
		Rule:     recurrence.Weekly,
	})
	require.NoError(t, err)
	return res
}

func TestCreateRecurring_SharedGroup(t *testing.T) {
	f := newFixture(t)
	listener := &recordingListener{}
	f.svc.WithChangeListener(listener)

	res := weeklySeries(t, f,
		recurrence.Seed{Date: "2025-06-02", Time: "06:00 PM"},
		recurrence.Seed{Date: "2025-06-04", Time: "06:00 PM - 07:00 PM"},
	)
	assert.Equal(t, 104, res.Requested)
	assert.Equal(t, 104, res.Created)
	require.NotEmpty(t, res.GroupID)

	rs, err := f.svc.ListReservations(context.Background(), model.ReservationFilter{GroupID: res.GroupID})
	require.NoError(t, err)
	assert.Len(t, rs, 104)
	for _, r := range rs {
		assert.Equal(t, res.GroupID, r.GroupID)
		assert.Equal(t, model.StatusDeclined, r.Status)
		assert.Equal(t, "League night", r.CustomerName)
		assert.Zero(t, r.PriceCents)
	}
	assert.Len(t, listener.dates, 104)
}

func TestCreateRecurring_NoneHasNoGroup(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateRecurring(context.Background(), recurrence.Selection{
		Seeds:    []recurrence.Seed{{Date: "2025-06-02", Time: "09:00 AM"}, {Date: "2025-06-02", Time: "10:00 AM"}},
		Resource: model.HalfCourt,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.GroupID)
}

func TestCreateRecurring_BadSeedFailsWhole(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRecurring(context.Background(), recurrence.Selection{
		Seeds:    []recurrence.Seed{{Date: "2025-06-02", Time: "09:00 AM"}, {Date: "2025-02-30", Time: "09:00 AM"}},
		Resource: model.HalfCourt,
		Rule:     recurrence.Daily,
	})
	assert.ErrorIs(t, err, model.ErrValidation)
	rs, _ := f.svc.ListReservations(context.Background(), model.ReservationFilter{})
	assert.Empty(t, rs)
}

func TestUpdateSeries_Scopes(t *testing.T) {
	f := newFixture(t)
	res := weeklySeries(t, f, recurrence.Seed{Date: "2025-06-02", Time: "06:00 PM"})
	ctx := context.Background()
	color := "#ff0000"

	n, err := f.svc.UpdateSeries(ctx, res.GroupID, model.FieldPatch{Color: &color}, series.Following, series.Ref{Date: "2025-06-16"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)

	members, err := f.store.ListGroup(ctx, res.GroupID)
	require.NoError(t, err)
	assert.Equal(t, "#3366ff", members[0].Color)
	assert.Equal(t, "#3366ff", members[1].Color)
	assert.Equal(t, "#ff0000", members[2].Color)

	label := "Cup final"
	n, err = f.svc.UpdateSeries(ctx, res.GroupID, model.FieldPatch{Label: &label}, series.Single, series.Ref{ID: members[5].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.svc.UpdateSeries(ctx, res.GroupID, model.FieldPatch{Label: &label}, series.All, series.Ref{})
	require.NoError(t, err)
	assert.Equal(t, int64(52), n)

	_, err = f.svc.UpdateSeries(ctx, "missing-group", model.FieldPatch{Label: &label}, series.All, series.Ref{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteSeries(t *testing.T) {
	f := newFixture(t)
	res := weeklySeries(t, f, recurrence.Seed{Date: "2025-06-02", Time: "06:00 PM"})
	ctx := context.Background()
	members, err := f.store.ListGroup(ctx, res.GroupID)
	require.NoError(t, err)

	n, err := f.svc.DeleteSeries(ctx, res.GroupID, series.Single, series.Ref{ID: members[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.svc.DeleteSeries(ctx, res.GroupID, series.Following, series.Ref{ID: members[50].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.svc.DeleteSeries(ctx, res.GroupID, series.All, series.Ref{})
	require.NoError(t, err)
	assert.Equal(t, int64(49), n)

	n, err = f.svc.DeleteSeries(ctx, res.GroupID, series.All, series.Ref{})
	require.NoError(t, err)
	assert.Zero(t, n)

	rs, err := f.svc.ListReservations(ctx, model.ReservationFilter{GroupID: res.GroupID, Statuses: []model.Status{model.StatusCancelled}})
	require.NoError(t, err)
	assert.Len(t, rs, 52, "deletes are soft")
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestWeek(t *testing.T) {
	f := newFixture(t)
	f.book(t, Draft{Resource: model.FullCourt, Date: "2025-06-04", Time: "09:00 AM"})
	f.book(t, Draft{Resource: model.HalfCourt, Date: "2025-06-08", Time: "09:00 AM"})
	f.book(t, Draft{Resource: model.HalfCourt, Date: "2025-06-09", Time: "09:00 AM"})

	w, err := f.svc.Week(context.Background(), "2025-06-08", "")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", w.Start)
	require.Len(t, w.Days, 7)
	assert.Equal(t, "2025-06-08", w.Days[6].Date)
	assert.Len(t, w.Days[2].Reservations, 1)
	assert.Len(t, w.Days[6].Reservations, 1)
	assert.Empty(t, w.Days[0].Reservations)

	w, err = f.svc.Week(context.Background(), "2025-06-04", model.HalfCourt)
	require.NoError(t, err)
	assert.Empty(t, w.Days[2].Reservations)
	assert.Len(t, w.Days[6].Reservations, 1)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Quote(model.FullCourt, "09:00 AM - 10:30 AM")
	require.NoError(t, err)
	assert.Equal(t, 3, q.Slots)
	assert.Equal(t, int64(22500), q.PriceCents)

	_, err = f.svc.Quote(model.FullCourt, "10:30 AM - 09:00 AM")
	assert.ErrorIs(t, err, model.ErrValidation)
}
