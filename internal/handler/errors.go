// Package handler contains the echo HTTP handlers. Handlers bind and
// validate request DTOs, call the services and translate domain errors into
// JSON responses of the form {"error": "..."}.
package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/availability"
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/service"
)

const requestTimeout = 5 * time.Second

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator that reports fields by their json name.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return model.Invalid(jsonName(fe), fe.Tag())
		}
		return model.Invalid("body", err.Error())
	}
	return nil
}

// jsonName turns a namespace like "bulkReq.seeds[0].date" into
// "seeds[0].date".
func jsonName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// bind decodes and validates the body into dst.
func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return model.Invalid("body", "invalid request body")
	}
	return c.Validate(dst)
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// respondError maps a service error onto an HTTP status.
func respondError(c echo.Context, log logrus.FieldLogger, err error) error {
	var (
		verr     *model.ValidationError
		conflict *availability.ConflictError
		bulk     *service.BulkError
	)
	body := echo.Map{"error": err.Error()}
	if errors.As(err, &bulk) {
		body["requested"] = bulk.Requested
		body["created"] = bulk.Created
	}
	switch {
	case errors.As(err, &verr):
		body["field"] = verr.Field
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, model.ErrValidation):
		return c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &conflict):
		body["error"] = "time slot is no longer available"
		body["taken"] = conflict.Slots
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, model.ErrSlotTaken):
		body["error"] = "time slot is no longer available"
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrStale):
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, model.ErrInsufficientBalance):
		return c.JSON(http.StatusUnprocessableEntity, body)
	case errors.Is(err, model.ErrPaymentProvider):
		log.WithError(err).Warn("payment provider error")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}
	log.WithError(err).Error("request failed")
	resp := echo.Map{"error": "internal error"}
	if bulk != nil {
		resp["requested"] = bulk.Requested
		resp["created"] = bulk.Created
	}
	return c.JSON(http.StatusInternalServerError, resp)
}
