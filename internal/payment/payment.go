// Package payment talks to the payment provider. Reservations are written
// only after CreatePayment succeeds; confirmation arrives later through the
// provider's webhook and is reconciled by payment reference.
package payment

import (
	"context"

	"github.com/google/uuid"
)

// Request describes the charge for one reservation.
type Request struct {
	Reference    string
	AmountCents  int64
	CustomerName string
	Email        string
	Phone        string
	Description  string
}

// Intent is what the client needs to complete payment.
type Intent struct {
	Reference   string `json:"reference"`
	Token       string `json:"token,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Provider creates payment intents.
type Provider interface {
	CreatePayment(ctx context.Context, req Request) (Intent, error)
}

// NewReference returns a fresh payment reference.
func NewReference() string { return "bk_" + uuid.NewString() }

// Fake accepts every payment without contacting anyone. Confirmation has to
// be triggered through the webhook by hand.
type Fake struct{}

func (Fake) CreatePayment(_ context.Context, req Request) (Intent, error) {
	return Intent{Reference: req.Reference, Token: "fake_" + uuid.NewString()}, nil
}
