package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/availability"
	"github.com/iliyamo/court-booking/internal/config"
	"github.com/iliyamo/court-booking/internal/database"
	"github.com/iliyamo/court-booking/internal/handler"
	"github.com/iliyamo/court-booking/internal/logging"
	"github.com/iliyamo/court-booking/internal/middleware"
	"github.com/iliyamo/court-booking/internal/payment"
	"github.com/iliyamo/court-booking/internal/pricing"
	"github.com/iliyamo/court-booking/internal/queue"
	"github.com/iliyamo/court-booking/internal/repository"
	"github.com/iliyamo/court-booking/internal/router"
	"github.com/iliyamo/court-booking/internal/service"
	"github.com/iliyamo/court-booking/internal/slotgrid"
	"github.com/iliyamo/court-booking/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	grid, err := slotgrid.New(cfg.OpenHour, cfg.CloseHour)
	if err != nil {
		log.WithError(err).Fatal("operating hours")
	}
	policy, err := availability.ParsePolicy(cfg.ConflictPolicy)
	if err != nil {
		log.WithError(err).Fatal("conflict policy")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.WithError(err).Fatal("timezone")
	}

	var (
		db           *sql.DB
		reservations service.ReservationStore
		payouts      service.PayoutStore
	)
	switch cfg.Store {
	case "memory":
		mem := repository.NewMemoryStore()
		reservations, payouts = mem, mem
		log.Warn("using in-memory store; data is lost on restart")
	default:
		db, err = database.Open(database.Options{
			User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
			MaxOpen: cfg.DBMaxOpen, MaxIdle: cfg.DBMaxIdle, Lifetime: cfg.DBConnLifetime,
		})
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		defer db.Close()
		if cfg.DBMigrate {
			if err := database.Migrate(db); err != nil {
				log.WithError(err).Fatal("migrate")
			}
		}
		reservations = repository.NewReservationRepo(db)
		payouts = repository.NewPayoutRepo(db)
	}

	var provider payment.Provider = payment.Fake{}
	if cfg.PaymentProvider == "midtrans" {
		provider = payment.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransProduction)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := queue.Renderer{AdminEmail: cfg.AdminEmail, FacilityName: cfg.FacilityName}
	var notifier service.Notifier = queue.LogNotifier{Log: log, Renderer: renderer}
	if cfg.RabbitURL != "" {
		notifier = queue.NewPublisher(cfg.RabbitURL, log)
		consumer := &queue.Consumer{URL: cfg.RabbitURL, Renderer: renderer, Sink: queue.LogSink(log), Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("notification consumer stopped")
			}
		}()
	}

	bookings := service.NewBookingService(reservations, provider, notifier, service.Config{
		Grid:       grid,
		Policy:     policy,
		Rates:      pricing.Rates{FullCourtHourly: cfg.FullCourtRate, HalfCourtHourly: cfg.HalfCourtRate, RoundTo: cfg.PriceRoundTo},
		Location:   loc,
		BlockEmail: cfg.BlockEmail,
	}, log)

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		bookings.WithChangeListener(middleware.NewCacheInvalidator(rdb, cfg.Cache.Prefix, log))
	} else if cfg.Redis.Addr != "" {
		log.WithField("addr", cfg.Redis.Addr).Warn("redis unreachable; cache and rate limit disabled")
	}

	hash := cfg.AdminPasswordHash
	if hash == "" {
		if hash, err = utils.HashPassword(cfg.AdminPassword, cfg.BcryptCost); err != nil {
			log.WithError(err).Fatal("hash admin password")
		}
	}

	var health echo.HandlerFunc = handler.Health(nil)
	if db != nil {
		health = handler.Health(db)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	router.RegisterRoutes(e, router.Deps{
		Health:  health,
		Public:  handler.NewPublicHandler(bookings, log),
		Payment: handler.NewPaymentHandler(bookings, cfg.MidtransServerKey, log),
		Admin:   handler.NewAdminHandler(bookings, log),
		Payouts: handler.NewPayoutHandler(service.NewPayoutService(payouts, log), log),
		Auth: &handler.AuthHandler{
			AdminEmail:   cfg.AdminEmail,
			PasswordHash: hash,
			Secret:       cfg.JWTSecret,
			TTL:          cfg.AccessTTL,
			Log:          log,
		},
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		Cache:     cfg.Cache,
		RateLimit: cfg.RateLimit,
		Log:       log,
	})

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.Store}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("stopped")
}
