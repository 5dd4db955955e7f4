package queue

import (
	"fmt"

	"github.com/iliyamo/court-booking/internal/lifecycle"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Renderer turns events into messages. Admin-facing events go to
// AdminEmail, everything else to the customer.
type Renderer struct {
	AdminEmail   string
	FacilityName string
}

// Render builds the message for ev.
func (r Renderer) Render(ev ReservationEvent) Message {
	name := r.FacilityName
	if name == "" {
		name = "the court"
	}
	when := fmt.Sprintf("%s on %s at %s", ev.CourtType, ev.Date, ev.Time)
	price := fmt.Sprintf("$%d.%02d", ev.PriceCents/100, ev.PriceCents%100)

	switch lifecycle.Event(ev.Event) {
	case lifecycle.EventAdminNewRequest:
		return Message{
			To:      r.AdminEmail,
			Subject: "New booking request: " + ev.CustomerName,
			Body:    fmt.Sprintf("%s (%s) paid %s for %s and is waiting for approval.", ev.CustomerName, ev.Email, price, when),
		}
	case lifecycle.EventRequestReceived:
		return Message{
			To:      ev.Email,
			Subject: "We received your booking request",
			Body:    fmt.Sprintf("Hi %s, your request for %s at %s is pending approval.", ev.CustomerName, when, name),
		}
	case lifecycle.EventConfirmed:
		return Message{
			To:      ev.Email,
			Subject: "Your booking is confirmed",
			Body:    fmt.Sprintf("Hi %s, your booking for %s at %s is confirmed.", ev.CustomerName, when, name),
		}
	case lifecycle.EventDeclined:
		return Message{
			To:      ev.Email,
			Subject: "Your booking request was declined",
			Body:    fmt.Sprintf("Hi %s, we could not accept your request for %s. A refund of %s will follow.", ev.CustomerName, when, price),
		}
	case lifecycle.EventRefunded:
		return Message{
			To:      ev.Email,
			Subject: "Your booking was refunded",
			Body:    fmt.Sprintf("Hi %s, %s has been refunded for %s.", ev.CustomerName, price, when),
		}
	case lifecycle.EventCancelled:
		return Message{
			To:      ev.Email,
			Subject: "Your booking was cancelled",
			Body:    fmt.Sprintf("Hi %s, your booking for %s has been cancelled.", ev.CustomerName, when),
		}
	case lifecycle.EventAdminPaymentConflict:
		return Message{
			To:      r.AdminEmail,
			Subject: "Payment for a taken slot: " + ev.CustomerName,
			Body: fmt.Sprintf("%s (%s) paid %s for %s after the slot was booked by someone else. The booking was cancelled; refund payment %s.",
				ev.CustomerName, ev.Email, price, when, ev.PaymentRef),
		}
	case lifecycle.EventSlotUnavailable:
		return Message{
			To:      ev.Email,
			Subject: "Your booking could not be completed",
			Body:    fmt.Sprintf("Hi %s, %s was booked by someone else before your payment arrived. A refund of %s will follow.", ev.CustomerName, when, price),
		}
	}
	return Message{To: r.AdminEmail, Subject: "Reservation update: " + ev.Event, Body: when}
}
