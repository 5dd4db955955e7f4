package model

import "time"

// PayoutStatus tracks a transfer of collected revenue to the facility.
type PayoutStatus string

const (
	PayoutProcessing PayoutStatus = "Processing"
	PayoutCompleted  PayoutStatus = "Completed"
	PayoutFailed     PayoutStatus = "Failed"
)

// Payout is a request to move money out of the available balance.
type Payout struct {
	ID          string       `json:"id"`           // payouts.id
	AmountCents int64        `json:"amount_cents"` // payouts.amount_cents
	Status      PayoutStatus `json:"status"`       // payouts.status
	TransferRef string       `json:"transfer_ref"` // payouts.transfer_ref
	CreatedAt   time.Time    `json:"created_at"`   // payouts.created_at
}

// Balance summarises revenue against payouts.
type Balance struct {
	RevenueCents   int64 `json:"revenue_cents"`
	PaidOutCents   int64 `json:"paid_out_cents"`
	AvailableCents int64 `json:"available_cents"`
}
