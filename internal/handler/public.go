package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/service"
)

// PublicHandler serves the customer-facing booking endpoints.
type PublicHandler struct {
	Bookings *service.BookingService
	Log      logrus.FieldLogger
}

// NewPublicHandler panics on a nil service.
func NewPublicHandler(b *service.BookingService, log logrus.FieldLogger) *PublicHandler {
	if b == nil {
		panic("nil booking service passed to NewPublicHandler")
	}
	return &PublicHandler{Bookings: b, Log: log}
}

func courtType(c echo.Context) (model.Resource, error) {
	v := strings.TrimSpace(c.QueryParam("court_type"))
	if v == "" {
		return model.FullCourt, nil
	}
	return model.ParseResource(v)
}

// Availability handles GET /v1/availability?date=YYYY-MM-DD&court_type=...
// and returns every slot of the day with its availability.
func (h *PublicHandler) Availability(c echo.Context) error {
	resource, err := courtType(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	date := c.QueryParam("date")
	if date == "" {
		return respondError(c, h.Log, model.Invalid("date", "required"))
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	slots, err := h.Bookings.Availability(ctx, date, resource)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":       date,
		"court_type": resource,
		"slots":      slots,
	})
}

// Quote handles GET /v1/quote?court_type=...&time=...
func (h *PublicHandler) Quote(c echo.Context) error {
	resource, err := courtType(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	q, err := h.Bookings.Quote(resource, c.QueryParam("time"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, q)
}

type createReservationReq struct {
	CustomerName    string `json:"customer_name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,max=40"`
	CourtType       string `json:"court_type" validate:"required"`
	Date            string `json:"date" validate:"required"`
	Time            string `json:"time" validate:"required"`
	WaiverSigned    bool   `json:"waiver_signed"`
	WaiverName      string `json:"waiver_name" validate:"required_if=WaiverSigned true"`
	WaiverSignature string `json:"waiver_signature"`
}

// CreateReservation handles POST /v1/reservations. The price is computed
// from the configured rates; any price sent by the client is ignored. On
// success the reservation is Pending Payment and the response carries the
// payment intent the client completes.
func (h *PublicHandler) CreateReservation(c echo.Context) error {
	var req createReservationReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	if !req.WaiverSigned {
		return respondError(c, h.Log, model.Invalid("waiver_signed", "the waiver must be signed"))
	}
	resource, err := model.ParseResource(req.CourtType)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	quote, err := h.Bookings.Quote(resource, req.Time)
	if err != nil {
		return respondError(c, h.Log, err)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	created, err := h.Bookings.CreateReservation(ctx, service.Draft{
		CustomerName:    req.CustomerName,
		Email:           strings.ToLower(req.Email),
		Phone:           req.Phone,
		Resource:        resource,
		Date:            req.Date,
		Time:            quote.Time,
		PriceCents:      quote.PriceCents,
		WaiverSigned:    req.WaiverSigned,
		WaiverName:      req.WaiverName,
		WaiverSignature: req.WaiverSignature,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, created)
}
