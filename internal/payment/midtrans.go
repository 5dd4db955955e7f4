package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/iliyamo/court-booking/internal/model"
)

// Midtrans creates Snap transactions. The order id is the reservation's
// payment reference so the webhook can find the reservation again.
type Midtrans struct {
	client    snap.Client
	serverKey string
}

// NewMidtrans builds a Snap client for the sandbox or production
// environment.
func NewMidtrans(serverKey string, production bool) *Midtrans {
	m := &Midtrans{serverKey: serverKey}
	if production {
		m.client.New(serverKey, midtrans.Production)
	} else {
		m.client.New(serverKey, midtrans.Sandbox)
	}
	return m
}

// CreatePayment opens a Snap transaction. Snap charges whole currency
// units, so amounts with a fractional part are refused rather than
// truncated.
func (m *Midtrans) CreatePayment(_ context.Context, req Request) (Intent, error) {
	if req.AmountCents <= 0 {
		return Intent{}, model.Invalid("price", "must be positive")
	}
	if req.AmountCents%100 != 0 {
		return Intent{}, model.Invalid("price", fmt.Sprintf("%d cents is not a whole amount", req.AmountCents))
	}
	sr := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: req.AmountCents / 100,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.Email,
			Phone: req.Phone,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.Reference,
			Price: req.AmountCents / 100,
			Qty:   1,
			Name:  truncate(req.Description, 50),
		}},
	}
	resp, merr := m.client.CreateTransaction(sr)
	if merr != nil {
		return Intent{}, fmt.Errorf("%w: midtrans: %s", model.ErrPaymentProvider, merr.Error())
	}
	return Intent{Reference: req.Reference, Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// Notification is the subset of the Midtrans HTTP notification body the
// webhook needs.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// Verify checks the notification signature,
// sha512(order_id + status_code + gross_amount + server_key).
func (m *Midtrans) Verify(n Notification) bool {
	return VerifySignature(n, m.serverKey)
}

// VerifySignature is Verify without a client.
func VerifySignature(n Notification, serverKey string) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(want), []byte(n.SignatureKey)) == 1
}

// Paid reports whether the notification settles the payment.
func (n Notification) Paid() bool {
	switch n.TransactionStatus {
	case "settlement":
		return true
	case "capture":
		return n.FraudStatus == "" || n.FraudStatus == "accept"
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
