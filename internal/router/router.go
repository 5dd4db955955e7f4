// Package router registers the HTTP routes on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/config"
	"github.com/iliyamo/court-booking/internal/handler"
	"github.com/iliyamo/court-booking/internal/middleware"
)

// Deps is everything the routes need.
type Deps struct {
	Health  echo.HandlerFunc
	Public  *handler.PublicHandler
	Payment *handler.PaymentHandler
	Admin   *handler.AdminHandler
	Payouts *handler.PayoutHandler
	Auth    *handler.AuthHandler

	JWTSecret string
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Log       logrus.FieldLogger
}

// RegisterRoutes wires every route group.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health)
	RegisterPublic(e, d)
	RegisterAuth(e, d)
	RegisterAdmin(e, d)
}

// RegisterPublic registers the unauthenticated customer endpoints. Reads of
// the slot grid go through the Redis cache; booking creation is rate
// limited.
func RegisterPublic(e *echo.Echo, d Deps) {
	cache := middleware.NewRedisCache(d.Cache, d.Redis)
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)

	g := e.Group("/v1")
	g.GET("/availability", d.Public.Availability, cache)
	g.GET("/quote", d.Public.Quote, cache)
	g.POST("/reservations", d.Public.CreateReservation, limit)
	g.POST("/payments/midtrans/notify", d.Payment.MidtransNotify)
}

// RegisterAuth registers the admin login.
func RegisterAuth(e *echo.Echo, d Deps) {
	e.POST("/v1/admin/login", d.Auth.Login, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
}

// RegisterAdmin registers the schedule and payout endpoints behind the
// admin token.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin", middleware.JWTAuth(d.JWTSecret), middleware.RequireRole(middleware.RoleAdmin))

	g.GET("/reservations", d.Admin.ListReservations)
	g.POST("/reservations", d.Admin.CreateReservation)
	g.POST("/reservations/bulk", d.Admin.CreateBulk)
	g.PATCH("/reservations/:id", d.Admin.UpdateReservation)
	g.POST("/reservations/:id/status", d.Admin.UpdateStatus)
	g.POST("/reservations/:id/cancel", d.Admin.Cancel)

	g.POST("/series/:group_id", d.Admin.UpdateSeries)
	g.POST("/series/:group_id/delete", d.Admin.DeleteSeries)

	g.GET("/week", d.Admin.Week)

	g.GET("/payouts", d.Payouts.List)
	g.GET("/payouts/balance", d.Payouts.Balance)
	g.POST("/payouts", d.Payouts.Request)
}
