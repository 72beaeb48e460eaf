package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/kart-backoffice/internal/domain/cart"
	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/orderedit"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/events"
	"github.com/xenking/kart-backoffice/internal/handler"
	"github.com/xenking/kart-backoffice/internal/storage/postgres"
	"github.com/xenking/kart-backoffice/pkg/health"
	"github.com/xenking/kart-backoffice/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox
// relay, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := newHealth(cfg.Health, pool.Ping)

	outboxRepo := postgres.NewOutboxRepository(pool, cfg.Events.Topic)

	// Outbox relay.
	relayDone := make(chan struct{})
	if len(cfg.Events.Brokers) > 0 {
		writer := events.NewWriter(cfg.Events.Brokers)
		defer func() {
			if err := writer.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()

		relay := events.NewRelay(outboxRepo, postgres.NewTxManager(pool), writer, events.RelayConfig{
			Interval:  cfg.Events.Interval,
			BatchSize: cfg.Events.BatchSize,
		})
		healthSvc.AddLivenessCheck("outbox-relay", time.Second, health.HeartbeatCheck(relay.LastFlush, cfg.Events.StaleAfter))

		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil {
				lg.Error("Outbox relay stopped", zap.Error(err))
			}
		}()
		lg.Info("Outbox relay started",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic),
		)
	} else {
		close(relayDone)
		lg.Warn("No kafka brokers configured, events stay in the outbox")
	}

	healthSvc.Start(ctx, cfg.Health.Interval)
	healthSvc.SetReady(true)

	api, err := newHandler(ctx, cfg, pool, m, outboxRepo)
	if err != nil {
		return err
	}
	healthSvc.Routes(api.router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           api,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	<-relayDone
	return nil
}

// newHealth registers the runtime liveness checks and the database
// readiness check.
func newHealth(cfg HealthConfig, ping health.CheckFunc) *health.Health {
	h := health.New()
	h.AddReadinessCheck("postgres", 5*time.Second, ping)
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(cfg.MaxGoroutines))
	h.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(cfg.MaxGCPause))
	return h
}

// apiHandler is the middleware-wrapped API router. Routes added to router
// after construction are still served through the middleware stack.
type apiHandler struct {
	http.Handler
	router chi.Router
}

// newHandler wires the domain services over pool and returns the API
// behind the middleware stack.
func newHandler(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	tel httpmiddleware.Telemetry,
	publisher order.EventPublisher,
) (*apiHandler, error) {
	editCfg, err := cfg.Pricing.EditConfig()
	if err != nil {
		return nil, errors.Wrap(err, "pricing config")
	}

	// Repositories.
	txManager := postgres.NewTxManager(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	taxFactory := postgres.NewTaxFactory(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	editService, err := orderedit.NewService(editCfg, orderedit.Deps{
		Tx:             txManager,
		Orders:         orderRepo,
		Products:       productRepo,
		Stock:          postgres.NewStockRepository(pool),
		Carts:          cart.NewService(postgres.NewCartRepository(pool), taxFactory),
		Invoices:       invoiceRepo,
		Numbers:        invoice.NewNumberer(postgres.NewCounterRepository(pool), cfg.Invoice.Prefix),
		Rules:          postgres.NewDiscountRepository(pool),
		Taxes:          taxFactory,
		Amounts:        order.NewAmountUpdater(orderRepo, invoiceRepo),
		Events:         publisher,
		TracerProvider: tel.TracerProvider(),
		MeterProvider:  tel.MeterProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order edit service")
	}

	// HTTP handlers.
	h := handler.NewHandler(editService, product.NewDeleter(productRepo))
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))

	router := chi.NewRouter()
	h.Routes(router, securityHandler)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	return &apiHandler{
		router: router,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Rate:    cfg.RateLimit.Rate,
				Burst:   cfg.RateLimit.Burst,
				KeyFunc: rateLimitKey,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("kart-backoffice", routeFinder, tel),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}, nil
}

// rateLimitKey buckets authenticated callers by API key and anonymous ones
// by client IP.
func rateLimitKey(r *http.Request) string {
	if key := r.Header.Get(handler.HeaderAPIKey); key != "" {
		return "key:" + handler.HashKey(nil, key)
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
