package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/service"
)

// PayoutHandler exposes balance and payout requests to the admin.
type PayoutHandler struct {
	Payouts *service.PayoutService
	Log     logrus.FieldLogger
}

func NewPayoutHandler(p *service.PayoutService, log logrus.FieldLogger) *PayoutHandler {
	return &PayoutHandler{Payouts: p, Log: log}
}

// List handles GET /v1/admin/payouts.
func (h *PayoutHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ps, err := h.Payouts.List(ctx)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"payouts": ps})
}

// Balance handles GET /v1/admin/payouts/balance.
func (h *PayoutHandler) Balance(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Payouts.Balance(ctx)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

type payoutReq struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

// Request handles POST /v1/admin/payouts.
func (h *PayoutHandler) Request(c echo.Context) error {
	var req payoutReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Payouts.Request(ctx, req.AmountCents)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, p)
}
