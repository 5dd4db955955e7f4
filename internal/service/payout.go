package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/utils"
)

// PayoutService moves confirmed revenue out to the facility. The transfer
// itself is simulated: a payout is recorded as Processing with a generated
// transfer reference.
type PayoutService struct {
	store PayoutStore
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewPayoutService wires a PayoutService.
func NewPayoutService(store PayoutStore, log logrus.FieldLogger) *PayoutService {
	return &PayoutService{store: store, log: log, now: time.Now}
}

// List returns payouts newest first.
func (s *PayoutService) List(ctx context.Context) ([]model.Payout, error) {
	ps, err := s.store.ListPayouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return ps, nil
}

// Balance is confirmed revenue minus every payout that has not failed.
func (s *PayoutService) Balance(ctx context.Context) (model.Balance, error) {
	b, err := s.store.Balance(ctx)
	if err != nil {
		return model.Balance{}, fmt.Errorf("balance: %w", err)
	}
	return b, nil
}

// Request records a payout of amountCents if the balance covers it.
func (s *PayoutService) Request(ctx context.Context, amountCents int64) (model.Payout, error) {
	if amountCents <= 0 {
		return model.Payout{}, model.Invalid("amount", "must be positive")
	}
	ref, err := utils.RandomHex(12)
	if err != nil {
		return model.Payout{}, fmt.Errorf("transfer reference: %w", err)
	}
	p := model.Payout{
		ID:          uuid.NewString(),
		AmountCents: amountCents,
		Status:      model.PayoutProcessing,
		TransferRef: "tr_" + ref,
		CreatedAt:   s.now().UTC(),
	}
	guard := func(b model.Balance) error {
		if amountCents > b.AvailableCents {
			return fmt.Errorf("%w: requested %d, available %d", model.ErrInsufficientBalance, amountCents, b.AvailableCents)
		}
		return nil
	}
	if err := s.store.CreatePayout(ctx, &p, guard); err != nil {
		return model.Payout{}, fmt.Errorf("request payout: %w", err)
	}
	s.log.WithFields(logrus.Fields{"payout_id": p.ID, "amount_cents": p.AmountCents, "transfer_ref": p.TransferRef}).Info("payout requested")
	return p, nil
}
