// Package service implements the booking operations on top of the domain
// packages and the storage, payment and notification ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/availability"
	"github.com/iliyamo/court-booking/internal/lifecycle"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/payment"
	"github.com/iliyamo/court-booking/internal/pricing"
	"github.com/iliyamo/court-booking/internal/recurrence"
	"github.com/iliyamo/court-booking/internal/series"
	"github.com/iliyamo/court-booking/internal/slotgrid"
)

// Config holds the facility rules the service enforces.
type Config struct {
	Grid       slotgrid.Grid
	Policy     availability.Policy
	Rates      pricing.Rates
	Location   *time.Location
	BlockEmail string
}

// BookingService is the entry point for every reservation operation.
type BookingService struct {
	store    ReservationStore
	payments payment.Provider
	notifier Notifier
	changes  ChangeListener
	index    availability.Index
	rates    pricing.Rates
	loc      *time.Location
	blockTo  string
	log      logrus.FieldLogger
	newID    func() string
}

// NewBookingService wires a BookingService.
func NewBookingService(store ReservationStore, payments payment.Provider, notifier Notifier, cfg Config, log logrus.FieldLogger) *BookingService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Rates == (pricing.Rates{}) {
		cfg.Rates = pricing.DefaultRates
	}
	if cfg.Grid == (slotgrid.Grid{}) {
		cfg.Grid = slotgrid.Default
	}
	return &BookingService{
		store:    store,
		payments: payments,
		notifier: notifier,
		index:    availability.New(cfg.Grid, cfg.Policy),
		rates:    cfg.Rates,
		loc:      cfg.Location,
		blockTo:  cfg.BlockEmail,
		log:      log,
		newID:    uuid.NewString,
	}
}

// WithChangeListener registers l to hear about writes.
func (s *BookingService) WithChangeListener(l ChangeListener) *BookingService {
	s.changes = l
	return s
}

// Grid returns the operating window.
func (s *BookingService) Grid() slotgrid.Grid { return s.index.Grid }

// Today is the current date key in the facility's time zone.
func (s *BookingService) Today() string { return slotgrid.FormatDate(time.Now().In(s.loc)) }

// Draft is the input to CreateReservation. A positive price takes the
// customer path; a zero price is an admin entry whose Status is honoured.
type Draft struct {
	CustomerName    string
	Email           string
	Phone           string
	Resource        model.Resource
	Date            string
	Time            string
	PriceCents      int64
	Status          model.Status
	WaiverSigned    bool
	WaiverName      string
	WaiverSignature string
	Color           string
}

// Created is the result of CreateReservation. Payment is nil for admin
// entries.
type Created struct {
	Reservation model.Reservation `json:"reservation"`
	Payment     *payment.Intent   `json:"payment,omitempty"`
}

// Quote is the price of a slot range.
type Quote struct {
	CourtType  model.Resource `json:"court_type"`
	Time       string         `json:"time"`
	Slots      int            `json:"slots"`
	PriceCents int64          `json:"price_cents"`
}

// BulkResult reports a bulk insert.
type BulkResult struct {
	GroupID   string `json:"group_id,omitempty"`
	Requested int    `json:"requested"`
	Created   int    `json:"created"`
}

// BulkError is returned when a bulk insert fails part way. Created is the
// number of rows that were written before the failure.
type BulkError struct {
	BulkResult
	Err error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk create: %d of %d created: %v", e.Created, e.Requested, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// WeekDay is one column of the admin week view.
type WeekDay struct {
	Date         string              `json:"date"`
	Reservations []model.Reservation `json:"reservations"`
}

// Week is the admin week view starting on Monday.
type Week struct {
	Start string    `json:"start"`
	Days  []WeekDay `json:"days"`
}

func (s *BookingService) parseDate(field, v string) (time.Time, error) {
	d, err := slotgrid.ParseDate(v, s.loc)
	if err != nil {
		return time.Time{}, model.Invalid(field, "expected YYYY-MM-DD")
	}
	return d, nil
}

func (s *BookingService) parseSlots(v string) (slotgrid.Range, error) {
	rng, err := slotgrid.ParseRange(v)
	if err != nil {
		return slotgrid.Range{}, model.Invalid("time", err.Error())
	}
	if !s.index.Grid.Contains(rng) {
		return slotgrid.Range{}, model.Invalid("time", "outside operating hours")
	}
	return rng, nil
}

// ListReservations returns reservations newest first.
func (s *BookingService) ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	if f.From != "" {
		if _, err := s.parseDate("start", f.From); err != nil {
			return nil, err
		}
	}
	if f.To != "" {
		if _, err := s.parseDate("end", f.To); err != nil {
			return nil, err
		}
	}
	rs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return rs, nil
}

// Availability returns the slot grid for date as seen by resource.
func (s *BookingService) Availability(ctx context.Context, date string, resource model.Resource) ([]availability.SlotState, error) {
	if _, err := s.parseDate("date", date); err != nil {
		return nil, err
	}
	if _, err := model.ParseResource(string(resource)); err != nil {
		return nil, err
	}
	rs, err := s.store.List(ctx, model.ReservationFilter{From: date, To: date, Statuses: model.OccupyingStatuses()})
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	return s.index.Day(rs, date, resource), nil
}

// Quote prices a slot range for resource.
func (s *BookingService) Quote(resource model.Resource, timeRange string) (Quote, error) {
	rng, err := s.parseSlots(timeRange)
	if err != nil {
		return Quote{}, err
	}
	price, err := s.rates.Quote(resource, rng)
	if err != nil {
		return Quote{}, err
	}
	return Quote{CourtType: resource, Time: rng.String(), Slots: rng.Len(), PriceCents: price}, nil
}

// Week returns the reservations of the Monday-based week containing date.
// An empty resource returns both configurations.
func (s *BookingService) Week(ctx context.Context, date string, resource model.Resource) (Week, error) {
	ref, err := s.parseDate("date", date)
	if err != nil {
		return Week{}, err
	}
	start := slotgrid.WeekStart(ref)
	w := Week{Start: slotgrid.DateKey(start, 0), Days: make([]WeekDay, 7)}
	byDate := make(map[string]int, 7)
	for i := range w.Days {
		key := slotgrid.DateKey(start, i)
		w.Days[i] = WeekDay{Date: key, Reservations: []model.Reservation{}}
		byDate[key] = i
	}
	rs, err := s.store.List(ctx, model.ReservationFilter{From: w.Days[0].Date, To: w.Days[6].Date, Resource: resource})
	if err != nil {
		return Week{}, fmt.Errorf("week: %w", err)
	}
	for _, r := range rs {
		if i, ok := byDate[r.Date]; ok {
			w.Days[i].Reservations = append(w.Days[i].Reservations, r)
		}
	}
	return w, nil
}

// CreateReservation stores a single reservation. Customer drafts are
// checked for conflicts, charged through the payment provider and stored as
// Pending Payment; a conflict or provider failure leaves nothing behind.
func (s *BookingService) CreateReservation(ctx context.Context, d Draft) (Created, error) {
	if _, err := s.parseDate("date", d.Date); err != nil {
		return Created{}, err
	}
	resource, err := model.ParseResource(string(d.Resource))
	if err != nil {
		return Created{}, err
	}
	rng, err := s.parseSlots(d.Time)
	if err != nil {
		return Created{}, err
	}
	r := model.Reservation{
		ID:              s.newID(),
		CustomerName:    strings.TrimSpace(d.CustomerName),
		Email:           strings.TrimSpace(d.Email),
		Phone:           strings.TrimSpace(d.Phone),
		Resource:        resource,
		Date:            d.Date,
		Time:            rng.String(),
		PriceCents:      d.PriceCents,
		WaiverSigned:    d.WaiverSigned,
		WaiverName:      strings.TrimSpace(d.WaiverName),
		WaiverSignature: d.WaiverSignature,
		Color:           d.Color,
	}
	status, err := lifecycle.Initial(r, d.Status)
	if err != nil {
		return Created{}, err
	}
	r.Status = status

	log := s.log.WithFields(logrus.Fields{"reservation_id": r.ID, "date": r.Date, "time": r.Time, "court_type": r.Resource})

	if r.IsBlock() {
		if r.Email == "" {
			r.Email = s.blockTo
		}
		if err := s.store.Create(ctx, &r, nil); err != nil {
			return Created{}, fmt.Errorf("create reservation: %w", err)
		}
		log.WithField("status", r.Status).Info("admin reservation created")
		s.changed(ctx, r.Date)
		return Created{Reservation: r}, nil
	}

	if r.CustomerName == "" {
		return Created{}, model.Invalid("customer_name", "required")
	}
	if r.Email == "" {
		return Created{}, model.Invalid("email", "required")
	}

	guard := func(sameDay []model.Reservation) error {
		return s.index.Check(sameDay, r.Date, r.Resource, rng)
	}
	sameDay, err := s.store.List(ctx, model.ReservationFilter{From: r.Date, To: r.Date, Statuses: model.OccupyingStatuses()})
	if err != nil {
		return Created{}, fmt.Errorf("create reservation: %w", err)
	}
	if err := guard(sameDay); err != nil {
		return Created{}, err
	}

	r.PaymentRef = payment.NewReference()
	intent, err := s.payments.CreatePayment(ctx, payment.Request{
		Reference:    r.PaymentRef,
		AmountCents:  r.PriceCents,
		CustomerName: r.CustomerName,
		Email:        r.Email,
		Phone:        r.Phone,
		Description:  fmt.Sprintf("%s %s %s", r.Resource, r.Date, r.Time),
	})
	if err != nil {
		log.WithError(err).Warn("payment intent failed")
		if errors.Is(err, model.ErrPaymentProvider) || errors.Is(err, model.ErrValidation) {
			return Created{}, err
		}
		return Created{}, fmt.Errorf("%w: %v", model.ErrPaymentProvider, err)
	}

	if err := s.store.Create(ctx, &r, guard); err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			log.WithField("payment_ref", r.PaymentRef).Warn("slot taken while payment was being created")
			return Created{}, err
		}
		return Created{}, fmt.Errorf("create reservation: %w", err)
	}
	log.WithField("payment_ref", r.PaymentRef).Info("reservation awaiting payment")
	return Created{Reservation: r, Payment: &intent}, nil
}

// CreateReservationsBulk validates every draft and inserts them in one
// atomic write. Drafts are admin entries; customer bookings never go
// through here.
func (s *BookingService) CreateReservationsBulk(ctx context.Context, drafts []model.Reservation) (BulkResult, error) {
	res := BulkResult{Requested: len(drafts)}
	if len(drafts) == 0 {
		return res, model.Invalid("reservations", "at least one reservation is required")
	}
	rows := make([]model.Reservation, len(drafts))
	dates := map[string]struct{}{}
	for i, d := range drafts {
		if _, err := s.parseDate(fmt.Sprintf("reservations[%d].date", i), d.Date); err != nil {
			return res, err
		}
		if _, err := model.ParseResource(string(d.Resource)); err != nil {
			return res, err
		}
		rng, err := s.parseSlots(d.Time)
		if err != nil {
			return res, err
		}
		if d.PriceCents != 0 {
			return res, model.Invalid(fmt.Sprintf("reservations[%d].price", i), "bulk entries are admin blocks")
		}
		status, err := lifecycle.Initial(d, d.Status)
		if err != nil {
			return res, err
		}
		d.ID = s.newID()
		d.Time = rng.String()
		d.Status = status
		if d.Email == "" {
			d.Email = s.blockTo
		}
		rows[i] = d
		dates[d.Date] = struct{}{}
	}
	if g := rows[0].GroupID; g != "" {
		res.GroupID = g
	}

	n, err := s.store.CreateBulk(ctx, rows)
	res.Created = n
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"requested": res.Requested, "created": n}).Error("bulk create failed")
		return res, &BulkError{BulkResult: res, Err: err}
	}
	s.log.WithFields(logrus.Fields{"created": n, "group_id": res.GroupID}).Info("bulk reservations created")
	s.changed(ctx, keys(dates)...)
	return res, nil
}

// CreateRecurring expands sel and bulk-inserts the result.
func (s *BookingService) CreateRecurring(ctx context.Context, sel recurrence.Selection) (BulkResult, error) {
	if sel.Email == "" {
		sel.Email = s.blockTo
	}
	exp, err := recurrence.Expand(sel, s.index.Grid, s.loc, s.newID)
	if err != nil {
		return BulkResult{}, err
	}
	return s.CreateReservationsBulk(ctx, exp.Drafts)
}

// TransitionStatus applies an admin status change and sends the resulting
// notifications.
func (s *BookingService) TransitionStatus(ctx context.Context, id string, to model.Status) (model.Reservation, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	events, err := lifecycle.Transition(cur, to, lifecycle.Admin)
	if err != nil {
		return model.Reservation{}, err
	}
	updated, err := s.store.UpdateStatus(ctx, id, cur.Status, to)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("transition %s: %w", id, err)
	}
	s.log.WithFields(logrus.Fields{"reservation_id": id, "from": cur.Status, "to": to}).Info("reservation status changed")
	s.dispatch(ctx, events, updated)
	s.changed(ctx, updated.Date)
	return updated, nil
}

// CancelSingle soft-deletes one reservation.
func (s *BookingService) CancelSingle(ctx context.Context, id string) (model.Reservation, error) {
	return s.TransitionStatus(ctx, id, model.StatusCancelled)
}

// UpdateReservationFields renames or recolors one reservation. When
// expected is set the write only succeeds if the row was not modified
// since that time.
func (s *BookingService) UpdateReservationFields(ctx context.Context, id string, patch model.FieldPatch, expected *time.Time) (model.Reservation, error) {
	if patch.Empty() {
		return model.Reservation{}, model.Invalid("fields", "nothing to update")
	}
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	n, err := s.store.UpdateFields(ctx, []string{id}, patch, expected)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("update %s: %w", id, err)
	}
	if n == 0 && expected != nil {
		return model.Reservation{}, model.ErrStale
	}
	s.changed(ctx, cur.Date)
	return s.store.Get(ctx, id)
}

// UpdateSeries patches the members of groupID selected by scope and returns
// how many were written.
func (s *BookingService) UpdateSeries(ctx context.Context, groupID string, patch model.FieldPatch, scope series.Scope, ref series.Ref) (int64, error) {
	members, ref, err := s.seriesMembers(ctx, groupID, scope, ref)
	if err != nil {
		return 0, err
	}
	plan, err := series.Build(members, series.Mutation{Scope: scope, Ref: ref, Patch: patch})
	if err != nil {
		return 0, err
	}
	if len(plan.Targets) == 0 {
		return 0, nil
	}
	n, err := s.store.UpdateFields(ctx, plan.IDs(), plan.Patch, nil)
	if err != nil {
		return 0, fmt.Errorf("update series %s: %w", groupID, err)
	}
	s.log.WithFields(logrus.Fields{"group_id": groupID, "scope": scope, "updated": n}).Info("series updated")
	s.changed(ctx, dates(plan.Targets)...)
	return n, nil
}

// DeleteSeries cancels the members of groupID selected by scope. Members
// already cancelled or refunded are skipped.
func (s *BookingService) DeleteSeries(ctx context.Context, groupID string, scope series.Scope, ref series.Ref) (int64, error) {
	members, ref, err := s.seriesMembers(ctx, groupID, scope, ref)
	if err != nil {
		return 0, err
	}
	plan, err := series.Build(members, series.Mutation{Scope: scope, Ref: ref, Delete: true})
	if err != nil {
		return 0, err
	}
	if len(plan.Targets) == 0 {
		return 0, nil
	}
	n, err := s.store.CancelMany(ctx, plan.IDs())
	if err != nil {
		return 0, fmt.Errorf("delete series %s: %w", groupID, err)
	}
	for _, r := range plan.Targets {
		events, err := lifecycle.Transition(r, model.StatusCancelled, lifecycle.Admin)
		if err != nil || len(events) == 0 {
			continue
		}
		r.Status = model.StatusCancelled
		s.dispatch(ctx, events, r)
	}
	s.log.WithFields(logrus.Fields{"group_id": groupID, "scope": scope, "cancelled": n, "skipped": plan.Skipped}).Info("series cancelled")
	s.changed(ctx, dates(plan.Targets)...)
	return n, nil
}

// seriesMembers loads the reservations a series edit applies to and fills
// in the reference date from the reference reservation when only its id
// was given. Single scope targets the referenced reservation whether or not
// it belongs to groupID.
func (s *BookingService) seriesMembers(ctx context.Context, groupID string, scope series.Scope, ref series.Ref) ([]model.Reservation, series.Ref, error) {
	if scope == series.Single {
		if ref.ID == "" {
			return nil, ref, model.Invalid("reference_id", "required for single scope")
		}
		r, err := s.store.Get(ctx, ref.ID)
		if err != nil {
			return nil, ref, err
		}
		return []model.Reservation{r}, ref, nil
	}
	if groupID == "" {
		return nil, ref, model.Invalid("group_id", "required")
	}
	members, err := s.store.ListGroup(ctx, groupID)
	if err != nil {
		return nil, ref, fmt.Errorf("load series %s: %w", groupID, err)
	}
	if len(members) == 0 {
		return nil, ref, fmt.Errorf("series %s: %w", groupID, model.ErrNotFound)
	}
	if scope == series.Following {
		if ref.Date == "" && ref.ID != "" {
			r, err := s.store.Get(ctx, ref.ID)
			if err != nil {
				return nil, ref, err
			}
			ref.Date = r.Date
		}
		if _, err := s.parseDate("reference_date", ref.Date); err != nil {
			return nil, ref, err
		}
	}
	return members, ref, nil
}

// OnPaymentConfirmed reconciles a successful payment. The move out of
// Pending Payment is a conditional write, so only the first delivery for a
// reference changes anything and notifies anyone; repeats return
// changed == false.
//
// Pending Payment holds no slots, so another booking may have taken them
// while the payment was open. The slots are checked again under the store's
// date lock: when they are still free the reservation moves to Pending
// Approval, otherwise it is Cancelled and the admin is told to refund it.
// Both outcomes are successful reconciliations.
func (s *BookingService) OnPaymentConfirmed(ctx context.Context, ref string) (model.Reservation, bool, error) {
	if ref == "" {
		return model.Reservation{}, false, model.Invalid("payment_ref", "required")
	}
	r, changed, err := s.store.TransitionByPaymentRef(ctx, ref, model.StatusPendingPayment, s.settle)
	if errors.Is(err, model.ErrSlotTaken) {
		// the occupancy key caught an overlap the check did not
		r, changed, err = s.store.TransitionByPaymentRef(ctx, ref, model.StatusPendingPayment,
			func(model.Reservation, []model.Reservation) model.Status { return model.StatusCancelled })
	}
	if err != nil {
		return model.Reservation{}, false, fmt.Errorf("reconcile payment %s: %w", ref, err)
	}
	log := s.log.WithFields(logrus.Fields{"payment_ref": ref, "reservation_id": r.ID})
	if !changed {
		log.WithField("status", r.Status).Info("duplicate payment confirmation ignored")
		return r, false, nil
	}

	prev := r
	prev.Status = model.StatusPendingPayment
	events, err := lifecycle.Transition(prev, r.Status, lifecycle.Payment)
	if err != nil {
		return r, true, err
	}
	if r.Status == model.StatusCancelled {
		log.WithFields(logrus.Fields{"date": r.Date, "time": r.Time}).Warn("payment arrived for a taken slot, cancelled for refund")
	} else {
		log.Info("payment confirmed, awaiting approval")
	}
	s.dispatch(ctx, events, r)
	s.changed(ctx, r.Date)
	return r, true, nil
}

// settle picks the status a paid reservation moves to given the other
// reservations on its date.
func (s *BookingService) settle(r model.Reservation, sameDay []model.Reservation) model.Status {
	rng, err := slotgrid.ParseRange(r.Time)
	if err != nil {
		// stored ranges are validated on write; leave it to the admin
		return model.StatusPendingApproval
	}
	if err := s.index.Check(sameDay, r.Date, r.Resource, rng); err != nil {
		return model.StatusCancelled
	}
	return model.StatusPendingApproval
}

// dispatch sends events. Delivery failures are logged and never fail the
// operation that caused them.
func (s *BookingService) dispatch(ctx context.Context, events []lifecycle.Event, r model.Reservation) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		if err := s.notifier.Notify(ctx, ev, r); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"event": ev, "reservation_id": r.ID}).Warn("notification failed")
		}
	}
}

func (s *BookingService) changed(ctx context.Context, dates ...string) {
	if s.changes != nil && len(dates) > 0 {
		s.changes.ReservationsChanged(context.WithoutCancel(ctx), dates...)
	}
}

func dates(rs []model.Reservation) []string {
	seen := map[string]struct{}{}
	for _, r := range rs {
		seen[r.Date] = struct{}{}
	}
	return keys(seen)
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
