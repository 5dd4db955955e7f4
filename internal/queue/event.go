// Package queue carries reservation notifications over RabbitMQ.
package queue

import (
	"time"

	"github.com/iliyamo/court-booking/internal/model"
)

// NotificationQueue is the durable queue notifications are published to.
const NotificationQueue = "reservation.notifications"

// ReservationEvent is published whenever a reservation transition needs
// someone to be told about it. It carries enough of the reservation for the
// consumer to render a message without reading the database.
type ReservationEvent struct {
	Event         string `json:"event"`
	ReservationID string `json:"reservation_id"`
	CustomerName  string `json:"customer_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	CourtType     string `json:"court_type"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	PriceCents    int64  `json:"price_cents"`
	Status        string `json:"status"`
	PaymentRef    string `json:"payment_ref,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// NewReservationEvent snapshots r for event.
func NewReservationEvent(event string, r model.Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		Event:         event,
		ReservationID: r.ID,
		CustomerName:  r.CustomerName,
		Email:         r.Email,
		Phone:         r.Phone,
		CourtType:     string(r.Resource),
		Date:          r.Date,
		Time:          r.Time,
		PriceCents:    r.PriceCents,
		Status:        string(r.Status),
		PaymentRef:    r.PaymentRef,
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}
