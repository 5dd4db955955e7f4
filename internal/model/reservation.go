package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a reservation. The string values are the
// ones stored in reservations.status and returned over the API.
type Status string

const (
	StatusPendingPayment  Status = "Pending Payment"
	StatusPendingApproval Status = "Pending Approval"
	StatusConfirmed       Status = "Confirmed"
	StatusDeclined        Status = "Declined"
	StatusRefunded        Status = "Refunded"
	StatusCancelled       Status = "Cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusPendingPayment,
	StatusPendingApproval,
	StatusConfirmed,
	StatusDeclined,
	StatusRefunded,
	StatusCancelled,
}

// ParseStatus maps a wire value onto a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", Invalid("status", fmt.Sprintf("unknown status %q", s))
}

// Occupying reports whether a reservation in this status holds its slots.
// Declined stays occupying because admin blocks are stored as Declined.
func (s Status) Occupying() bool {
	switch s {
	case StatusConfirmed, StatusPendingApproval, StatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// OccupyingStatuses returns the statuses that block availability.
func OccupyingStatuses() []Status {
	return []Status{StatusConfirmed, StatusPendingApproval, StatusDeclined}
}

// Resource is the court configuration a reservation is made for.
type Resource string

const (
	FullCourt Resource = "Full Court"
	HalfCourt Resource = "Half Court"
)

// ParseResource maps a wire value onto a Resource.
func ParseResource(s string) (Resource, error) {
	switch Resource(s) {
	case FullCourt, HalfCourt:
		return Resource(s), nil
	}
	return "", Invalid("court_type", fmt.Sprintf("unknown court type %q", s))
}

// Reservation is a booking of one court configuration for a contiguous
// range of slots on a single day. Admin blocks are reservations with a zero
// price; members of a recurring series share GroupID.
//
// Fields:
//
//	ID           – opaque identifier (UUID).
//	CustomerName – customer name, or the block label for admin blocks.
//	Email        – customer contact address.
//	Phone        – optional phone number.
//	Resource     – Full Court or Half Court.
//	Date         – local calendar date, YYYY-MM-DD.
//	Time         – "09:00 AM" or "09:00 AM - 10:30 AM" (end exclusive).
//	PriceCents   – amount charged; zero for admin blocks.
//	Status       – lifecycle state.
//	PaymentRef   – payment provider reference, set for customer bookings.
//	GroupID      – recurring series id, empty for one-off reservations.
//	Color        – display color for admin blocks.
type Reservation struct {
	ID              string    `json:"id"`                           // reservations.id
	CustomerName    string    `json:"customer_name"`                // reservations.customer_name
	Email           string    `json:"email"`                        // reservations.email
	Phone           string    `json:"phone,omitempty"`              // reservations.phone
	Resource        Resource  `json:"court_type"`                   // reservations.court_type
	Date            string    `json:"date"`                         // reservations.date
	Time            string    `json:"time"`                         // reservations.time
	PriceCents      int64     `json:"price_cents"`                  // reservations.price_cents
	Status          Status    `json:"status"`                       // reservations.status
	PaymentRef      string    `json:"payment_ref,omitempty"`        // reservations.payment_ref (nullable)
	WaiverSigned    bool      `json:"waiver_signed"`                // reservations.waiver_signed
	WaiverName      string    `json:"waiver_name,omitempty"`        // reservations.waiver_name
	WaiverSignature string    `json:"waiver_signature,omitempty"`   // reservations.waiver_signature
	GroupID         string    `json:"recurring_group_id,omitempty"` // reservations.recurring_group_id (nullable)
	Color           string    `json:"color,omitempty"`              // reservations.color
	CreatedAt       time.Time `json:"created_at"`                   // reservations.created_at
	UpdatedAt       time.Time `json:"updated_at"`                   // reservations.updated_at
}

// IsBlock reports whether the reservation is an admin block.
func (r Reservation) IsBlock() bool { return r.PriceCents == 0 }

// FieldPatch carries the editable display fields of a reservation. Nil
// pointers leave the column untouched.
type FieldPatch struct {
	Label *string `json:"label,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p FieldPatch) Empty() bool { return p.Label == nil && p.Color == nil }

// Apply copies the patched fields onto r.
func (p FieldPatch) Apply(r *Reservation) {
	if p.Label != nil {
		r.CustomerName = *p.Label
	}
	if p.Color != nil {
		r.Color = *p.Color
	}
}

// ReservationFilter narrows ListReservations. Zero values mean no filter.
// From and To are inclusive date keys.
type ReservationFilter struct {
	From     string
	To       string
	Statuses []Status
	Resource Resource
	GroupID  string
	Limit    int
}
