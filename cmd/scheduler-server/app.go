package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/config"
	"github.com/medappt/scheduler/internal/domain/availability"
	"github.com/medappt/scheduler/internal/domain/booking"
	"github.com/medappt/scheduler/internal/domain/visit"
	"github.com/medappt/scheduler/internal/platform/auth"
	"github.com/medappt/scheduler/internal/platform/db"
	"github.com/medappt/scheduler/internal/platform/middleware"
	"github.com/medappt/scheduler/internal/platform/notification"
	"github.com/medappt/scheduler/internal/platform/telemetry"
	"github.com/medappt/scheduler/internal/platform/websocket"
)

const version = "0.1.0"

// stores is one storage backend behind the domain interfaces.
type stores struct {
	doctors       availability.DoctorStore
	templates     availability.TemplateStore
	exceptions    availability.ExceptionStore
	ledger        booking.Ledger
	days          booking.DayLister
	sessions      visit.SessionStore
	docs          visit.DocumentationStore
	prescriptions visit.PrescriptionStore
	tx            visit.Transactor
	health        echo.HandlerFunc
	poolStats     func() *db.PoolStats
	close         func()
}

func memoryStores() *stores {
	avail := availability.NewMemoryStore()
	visits := visit.NewMemoryStore()
	ledger := booking.NewMemoryLedger()
	return &stores{
		doctors:       avail,
		templates:     avail,
		exceptions:    avail,
		ledger:        ledger,
		days:          ledger,
		sessions:      visits,
		docs:          visits,
		prescriptions: visits,
		tx:            db.NopTransactor{},
		health:        db.StaticHealthHandler(config.StorageMemory),
		close:         func() {},
	}
}

func postgresStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	avail := availability.NewPGStore(pool)
	visits := visit.NewPGStore(pool)
	ledger := booking.NewPGLedger(pool)
	return &stores{
		doctors:       avail,
		templates:     avail,
		exceptions:    avail,
		ledger:        ledger,
		days:          ledger,
		sessions:      visits,
		docs:          visits,
		prescriptions: visits,
		tx:            db.NewTransactor(pool),
		health:        db.HealthHandler(pool),
		poolStats:     func() *db.PoolStats { return db.GetPoolStats(pool) },
		close:         pool.Close,
	}, nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memoryStores(), nil
	case config.StoragePostgres:
		return postgresStores(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

type app struct {
	echo       *echo.Echo
	cron       *cron.Cron
	dispatcher *notification.Dispatcher
	stores     *stores
	closers    []func() error
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.JWTSigningKey),
	}
	if cfg.JWTSigningKey == "" {
		jwtCfg.SigningKey = nil
	}
	if cfg.IsDev() {
		if jwtCfg.SigningKey == nil && jwtCfg.JWKSURL == "" {
			return auth.DevAuthMiddleware(nil)
		}
		return auth.DevAuthMiddleware(&jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.ClinicLocation()
	if err != nil {
		return nil, err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.DoctorCacheSize > 0 {
		cached, err := availability.NewCachedDoctorStore(st.doctors, cfg.DoctorCacheSize)
		if err != nil {
			st.close()
			return nil, err
		}
		st.doctors = cached
	}

	metrics := telemetry.New()
	if st.poolStats != nil {
		metrics.WatchPool(st.poolStats)
	}

	// Notifications
	feed := websocket.NewHub(logger)
	senders := []notification.Sender{notification.LogSender{Logger: logger}, metrics, feed}
	if cfg.NotifyWebhookURL != "" {
		senders = append(senders, notification.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret))
	}
	var closers []func() error
	if cfg.NotifyAMQPURL != "" {
		amqpSender, err := notification.DialAMQP(cfg.NotifyAMQPURL, cfg.NotifyAMQPExchange)
		if err != nil {
			st.close()
			return nil, err
		}
		senders = append(senders, amqpSender)
		closers = append(closers, amqpSender.Close)
	}
	dispatchCfg := notification.DefaultDispatcherConfig()
	dispatchCfg.QueueSize = cfg.NotifyQueueSize
	dispatcher := notification.NewDispatcher(dispatchCfg, notification.NewTemplateEngine(), logger, senders...)

	// Domain
	resolver := availability.NewResolver(st.doctors, st.templates, st.exceptions, booking.Occupancy{Ledger: st.ledger}, loc)
	availSvc := availability.NewService(st.doctors, st.templates, st.exceptions, cfg.DefaultSlotMinutes, loc, logger)
	bookingSvc := booking.NewService(st.ledger, resolver, dispatcher, booking.CancelPolicy{
		PatientMayCancel: cfg.PatientMayCancel,
		DoctorMayCancel:  cfg.DoctorMayCancel,
	}, cfg.BookingTimeout, logger)
	jobs := cron.New(cron.WithLocation(loc))
	if cfg.ReminderSchedule != "" {
		if _, err := booking.NewReminder(st.days, dispatcher, loc, logger).Schedule(jobs, cfg.ReminderSchedule); err != nil {
			partial := &app{dispatcher: dispatcher, stores: st, closers: closers}
			_ = partial.release(ctx)
			return nil, fmt.Errorf("schedule reminders: %w", err)
		}
	}
	visitSvc := visit.NewService(st.ledger, st.sessions, st.docs, st.prescriptions, st.tx, dispatcher, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader,
			auth.DevUserHeader, auth.DevRoleHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", st.health)
	e.GET("/metrics", metrics.Handler())

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1 := e.Group("/api/v1",
		authMiddleware(cfg),
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(cfg.RequestTimeout),
		middleware.Audit(logger),
	)

	availability.NewHandler(availSvc, resolver).RegisterRoutes(apiV1)
	booking.NewHandler(bookingSvc).RegisterRoutes(apiV1)
	visit.NewHandler(visitSvc).RegisterRoutes(apiV1)

	// Live feed connections outlive the request timeout.
	events := e.Group("/api/v1/events", authMiddleware(cfg))
	websocket.NewHandler(feed, cfg.CORSOrigins).RegisterRoutes(events)

	jobs.Start()
	return &app{echo: e, cron: jobs, dispatcher: dispatcher, stores: st, closers: closers}, nil
}

// Shutdown stops accepting requests and scheduled jobs, drains queued
// notifications, then closes outbound channels and storage.
func (a *app) Shutdown(ctx context.Context) error {
	err := a.echo.Shutdown(ctx)
	select {
	case <-a.cron.Stop().Done():
	case <-ctx.Done():
	}
	if rerr := a.release(ctx); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// release drains the dispatcher, then closes outbound channels and storage.
// It returns the first error seen.
func (a *app) release(ctx context.Context) error {
	err := a.dispatcher.Close(ctx)
	for _, closeFn := range a.closers {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.stores.close()
	return err
}
