// Package lifecycle holds the reservation state machine: which status moves
// are legal, who may drive them and which notifications each move emits.
package lifecycle

import (
	"fmt"

	"github.com/iliyamo/court-booking/internal/model"
)

// Actor is the party requesting a transition.
type Actor int

const (
	Customer Actor = iota
	Admin
	Payment
)

func (a Actor) String() string {
	switch a {
	case Customer:
		return "customer"
	case Admin:
		return "admin"
	case Payment:
		return "payment"
	}
	return "unknown"
}

// Event names a notification produced by a transition.
type Event string

const (
	EventAdminNewRequest Event = "admin.new_request"
	EventRequestReceived Event = "customer.request_received"
	EventConfirmed       Event = "customer.confirmed"
	EventDeclined        Event = "customer.declined"
	EventRefunded        Event = "customer.refunded"
	EventCancelled       Event = "customer.cancelled"

	// A payment that lands after its slots were taken by another booking.
	EventAdminPaymentConflict Event = "admin.payment_conflict"
	EventSlotUnavailable      Event = "customer.slot_unavailable"
)

// TransitionError reports an illegal move. It matches
// model.ErrInvalidTransition under errors.Is.
type TransitionError struct {
	From  model.Status
	To    model.Status
	Actor Actor
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move reservation from %q to %q as %s", e.From, e.To, e.Actor)
}

func (e *TransitionError) Unwrap() error { return model.ErrInvalidTransition }

// Transition validates moving r to status to on behalf of actor and returns
// the notifications the move emits.
func Transition(r model.Reservation, to model.Status, actor Actor) ([]Event, error) {
	from := r.Status
	deny := &TransitionError{From: from, To: to, Actor: actor}
	if from == to || from.Terminal() {
		return nil, deny
	}

	switch to {
	case model.StatusPendingApproval:
		if from == model.StatusPendingPayment && actor == Payment {
			return []Event{EventAdminNewRequest, EventRequestReceived}, nil
		}
	case model.StatusConfirmed:
		if from == model.StatusPendingApproval && actor == Admin {
			return []Event{EventConfirmed}, nil
		}
	case model.StatusDeclined:
		if from == model.StatusPendingApproval && actor == Admin {
			return []Event{EventDeclined}, nil
		}
	case model.StatusRefunded:
		if actor != Admin {
			return nil, deny
		}
		if from == model.StatusConfirmed || (from == model.StatusDeclined && r.PriceCents > 0) {
			return []Event{EventRefunded}, nil
		}
	case model.StatusCancelled:
		if actor == Payment && from == model.StatusPendingPayment {
			return []Event{EventAdminPaymentConflict, EventSlotUnavailable}, nil
		}
		if actor != Admin {
			return nil, deny
		}
		if r.PriceCents > 0 && from != model.StatusPendingPayment {
			return []Event{EventCancelled}, nil
		}
		return nil, nil
	case model.StatusPendingPayment:
		// only ever an initial state
	default:
		return nil, model.Invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	return nil, deny
}

// CanCancel reports whether r may still be cancelled.
func CanCancel(r model.Reservation) bool {
	return !r.Status.Terminal()
}

// Initial decides the status a new reservation starts in. Paid reservations
// take the customer path and must carry a signed waiver; zero-price
// reservations are admin entries and take the requested status, defaulting
// to a Declined block.
func Initial(r model.Reservation, requested model.Status) (model.Status, error) {
	switch {
	case r.PriceCents < 0:
		return "", model.Invalid("price", "must not be negative")
	case r.PriceCents > 0:
		if !r.WaiverSigned {
			return "", model.Invalid("waiver_signed", "waiver must be signed")
		}
		if r.WaiverName == "" {
			return "", model.Invalid("waiver_name", "required")
		}
		if requested != "" && requested != model.StatusPendingPayment {
			return "", model.Invalid("status", "paid reservations start as Pending Payment")
		}
		return model.StatusPendingPayment, nil
	}

	switch requested {
	case "":
		return model.StatusDeclined, nil
	case model.StatusDeclined, model.StatusConfirmed, model.StatusPendingApproval:
		return requested, nil
	}
	return "", model.Invalid("status", fmt.Sprintf("admin entries cannot start as %q", requested))
}
