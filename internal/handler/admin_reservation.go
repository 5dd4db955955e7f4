package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/recurrence"
	"github.com/iliyamo/court-booking/internal/series"
	"github.com/iliyamo/court-booking/internal/service"
)

// AdminHandler serves the schedule management endpoints. Every route is
// behind JWTAuth and RequireRole(ADMIN).
type AdminHandler struct {
	Bookings *service.BookingService
	Log      logrus.FieldLogger
}

// NewAdminHandler panics on a nil service.
func NewAdminHandler(b *service.BookingService, log logrus.FieldLogger) *AdminHandler {
	if b == nil {
		panic("nil booking service passed to NewAdminHandler")
	}
	return &AdminHandler{Bookings: b, Log: log}
}

// ListReservations handles GET /v1/admin/reservations. Optional query
// parameters: start, end (inclusive dates), status (comma separated),
// court_type, group_id and limit.
func (h *AdminHandler) ListReservations(c echo.Context) error {
	f := model.ReservationFilter{
		From:    c.QueryParam("start"),
		To:      c.QueryParam("end"),
		GroupID: c.QueryParam("group_id"),
	}
	if v := c.QueryParam("court_type"); v != "" {
		r, err := model.ParseResource(v)
		if err != nil {
			return respondError(c, h.Log, err)
		}
		f.Resource = r
	}
	if v := c.QueryParam("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			st, err := model.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				return respondError(c, h.Log, err)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return respondError(c, h.Log, model.Invalid("limit", "must be a non-negative integer"))
		}
		f.Limit = n
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	rs, err := h.Bookings.ListReservations(ctx, f)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": rs, "count": len(rs)})
}

type adminCreateReq struct {
	Label     string `json:"label" validate:"max=120"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	CourtType string `json:"court_type" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Time      string `json:"time" validate:"required"`
	Status    string `json:"status"`
	Color     string `json:"color" validate:"omitempty,max=32"`
}

// CreateReservation handles POST /v1/admin/reservations: a one-off block
// or a manual booking with no payment. Status defaults to Declined, which
// blocks the time without showing as a booking.
func (h *AdminHandler) CreateReservation(c echo.Context) error {
	var req adminCreateReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	resource, err := model.ParseResource(req.CourtType)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var status model.Status
	if req.Status != "" {
		if status, err = model.ParseStatus(req.Status); err != nil {
			return respondError(c, h.Log, err)
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	created, err := h.Bookings.CreateReservation(ctx, service.Draft{
		CustomerName: req.Label,
		Email:        req.Email,
		Phone:        req.Phone,
		Resource:     resource,
		Date:         req.Date,
		Time:         req.Time,
		Status:       status,
		Color:        req.Color,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, created.Reservation)
}

type bulkReq struct {
	Seeds      []recurrence.Seed `json:"seeds" validate:"required,min=1,dive"`
	CourtType  string            `json:"court_type" validate:"required"`
	Label      string            `json:"label" validate:"max=120"`
	Color      string            `json:"color" validate:"omitempty,max=32"`
	Email      string            `json:"email" validate:"omitempty,email"`
	Status     string            `json:"status"`
	Recurrence string            `json:"recurrence"`
}

// CreateBulk handles POST /v1/admin/reservations/bulk. Every selected slot
// is expanded by the recurrence rule and the whole set is inserted at once.
func (h *AdminHandler) CreateBulk(c echo.Context) error {
	var req bulkReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	resource, err := model.ParseResource(req.CourtType)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	rule, err := recurrence.ParseRule(req.Recurrence)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var status model.Status
	if req.Status != "" {
		if status, err = model.ParseStatus(req.Status); err != nil {
			return respondError(c, h.Log, err)
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.CreateRecurring(ctx, recurrence.Selection{
		Seeds:    req.Seeds,
		Resource: resource,
		Label:    req.Label,
		Color:    req.Color,
		Email:    req.Email,
		Status:   status,
		Rule:     rule,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type patchReq struct {
	Label             *string    `json:"label" validate:"omitempty,max=120"`
	Color             *string    `json:"color" validate:"omitempty,max=32"`
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at"`
}

// UpdateReservation handles PATCH /v1/admin/reservations/:id. When
// expected_updated_at is sent the update is rejected with 409 if the
// reservation changed since.
func (h *AdminHandler) UpdateReservation(c echo.Context) error {
	var req patchReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Bookings.UpdateReservationFields(ctx, c.Param("id"),
		model.FieldPatch{Label: req.Label, Color: req.Color}, req.ExpectedUpdatedAt)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

type statusReq struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles POST /v1/admin/reservations/:id/status.
func (h *AdminHandler) UpdateStatus(c echo.Context) error {
	var req statusReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	to, err := model.ParseStatus(req.Status)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Bookings.TransitionStatus(ctx, c.Param("id"), to)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Cancel handles POST /v1/admin/reservations/:id/cancel.
func (h *AdminHandler) Cancel(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Bookings.CancelSingle(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

type seriesReq struct {
	Scope         string  `json:"scope"`
	ReferenceID   string  `json:"reference_id"`
	ReferenceDate string  `json:"reference_date"`
	Label         *string `json:"label" validate:"omitempty,max=120"`
	Color         *string `json:"color" validate:"omitempty,max=32"`
}

func (r seriesReq) target() (series.Scope, series.Ref, error) {
	scope, err := series.ParseScope(r.Scope)
	return scope, series.Ref{ID: r.ReferenceID, Date: r.ReferenceDate}, err
}

// UpdateSeries handles POST /v1/admin/series/:group_id.
func (h *AdminHandler) UpdateSeries(c echo.Context) error {
	var req seriesReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	scope, ref, err := req.target()
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Bookings.UpdateSeries(ctx, c.Param("group_id"), model.FieldPatch{Label: req.Label, Color: req.Color}, scope, ref)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": n})
}

// DeleteSeries handles POST /v1/admin/series/:group_id/delete. Members are
// cancelled, not removed.
func (h *AdminHandler) DeleteSeries(c echo.Context) error {
	var req seriesReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	scope, ref, err := req.target()
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Bookings.DeleteSeries(ctx, c.Param("group_id"), scope, ref)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}

// Week handles GET /v1/admin/week?date=...&court_type=... and returns the
// Monday-based week containing date (default today).
func (h *AdminHandler) Week(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		date = h.Bookings.Today()
	}
	var resource model.Resource
	if v := c.QueryParam("court_type"); v != "" {
		r, err := model.ParseResource(v)
		if err != nil {
			return respondError(c, h.Log, err)
		}
		resource = r
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	w, err := h.Bookings.Week(ctx, date, resource)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, w)
}
