package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/payment"
	"github.com/iliyamo/court-booking/internal/service"
)

// PaymentHandler receives payment provider notifications.
type PaymentHandler struct {
	Bookings  *service.BookingService
	ServerKey string
	Log       logrus.FieldLogger
}

// NewPaymentHandler builds a PaymentHandler that checks signatures with
// serverKey.
func NewPaymentHandler(b *service.BookingService, serverKey string, log logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{Bookings: b, ServerKey: serverKey, Log: log}
}

// MidtransNotify handles POST /v1/payments/midtrans/notify. Midtrans
// retries anything but a 2xx, so notifications that are valid but carry
// nothing to do (pending, expired, unknown order, repeats) are answered
// with 200. So is a payment for slots that were taken while it was open:
// the booking is cancelled for refund and a retry would change nothing.
func (h *PaymentHandler) MidtransNotify(c echo.Context) error {
	if h.ServerKey == "" {
		// an empty key makes every signature forgeable
		h.Log.Error("payment notification rejected: no server key configured")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "payment notifications are not configured"})
	}
	var n payment.Notification
	if err := c.Bind(&n); err != nil || n.OrderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid notification"})
	}
	log := h.Log.WithFields(logrus.Fields{
		"order_id":           n.OrderID,
		"transaction_status": n.TransactionStatus,
	})
	if !payment.VerifySignature(n, h.ServerKey) {
		log.Warn("notification signature mismatch")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid signature"})
	}
	if !n.Paid() {
		log.Info("notification ignored")
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	r, changed, err := h.Bookings.OnPaymentConfirmed(ctx, n.OrderID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		log.Warn("notification for unknown payment reference")
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	case err != nil:
		return respondError(c, log, err)
	case !changed:
		return c.JSON(http.StatusOK, echo.Map{"status": "duplicate", "reservation_status": r.Status})
	case r.Status == model.StatusCancelled:
		return c.JSON(http.StatusOK, echo.Map{"status": "conflict", "reservation_status": r.Status})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "reservation_status": r.Status})
}
