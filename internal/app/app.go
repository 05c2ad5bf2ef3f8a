// Package app wires configuration, storage, domain services and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-promo/db"
	"github.com/xenking/kart-promo/internal/api"
	"github.com/xenking/kart-promo/internal/domain/auth"
	"github.com/xenking/kart-promo/internal/domain/checkout"
	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/product"
	"github.com/xenking/kart-promo/internal/domain/sale"
	"github.com/xenking/kart-promo/internal/storage/memory"
	"github.com/xenking/kart-promo/internal/storage/postgres"
	"github.com/xenking/kart-promo/pkg/health"
	"github.com/xenking/kart-promo/pkg/httpmiddleware"
)

// stores is one storage backend behind the domain interfaces.
type stores struct {
	products product.Repository
	sales    sale.Repository
	coupons  coupon.Repository
	ledger   coupon.Ledger
	apikeys  auth.Repository
	// pinger backs the readiness probe; nil for memory storage.
	pinger health.Pinger
	close  func()
}

func openPostgres(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	lg.Info("Using postgres storage")

	coupons := postgres.NewCouponRepository(pool)
	return &stores{
		products: postgres.NewProductRepository(pool),
		sales:    postgres.NewSaleRepository(pool),
		coupons:  coupons,
		ledger:   coupons,
		apikeys:  postgres.NewAPIKeyRepository(pool),
		pinger:   pool,
		close:    pool.Close,
	}, nil
}

// openMemory builds an in-process store seeded with the embedded catalog.
// State is lost on restart.
func openMemory(lg *zap.Logger, cfg *Config) (*stores, error) {
	products, err := db.ParseProducts(db.SeedProducts)
	if err != nil {
		return nil, errors.Wrap(err, "load seed catalog")
	}

	var keys []auth.APIKeyInfo
	if cfg.BootstrapAPIKey != "" {
		keys = append(keys, auth.APIKeyInfo{
			ID:      "bootstrap",
			Name:    "bootstrap",
			KeyHash: auth.HashKey([]byte(cfg.APIKeyPepper), cfg.BootstrapAPIKey),
			Scopes:  []string{auth.ScopeAdmin},
		})
	} else {
		lg.Warn("No bootstrap API key configured, every API call will be rejected")
	}
	lg.Info("Using in-memory storage", zap.Int("products", len(products)))

	coupons := memory.NewCouponRepository()
	return &stores{
		products: memory.NewProductRepository(products...),
		sales:    memory.NewSaleRepository(),
		coupons:  coupons,
		ledger:   coupons,
		apikeys:  memory.NewAPIKeyRepository(keys...),
		close:    func() {},
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("stacking", cfg.Stacking),
	)

	policy, err := checkout.ParseStacking(cfg.Stacking)
	if err != nil {
		return errors.Wrap(err, "stacking")
	}

	var st *stores
	if cfg.Storage == StorageMemory {
		st, err = openMemory(lg, cfg)
	} else {
		st, err = openPostgres(ctx, lg, cfg)
	}
	if err != nil {
		return err
	}
	defer st.close()

	// Health check service.
	healthSvc := health.New()
	if st.pinger != nil {
		healthSvc.Add(health.Readiness, "postgres", health.Options{Timeout: 5 * time.Second}, health.PingCheck(st.pinger))
	}
	healthSvc.Add(health.Liveness, "goroutines", health.Options{}, health.GoroutineCountCheck(10000))
	healthSvc.Start(zctx.Base(ctx, lg), 10*time.Second)

	// Domain services.
	saleSvc := sale.NewService(st.sales)
	resolver := sale.NewResolver(st.sales)
	couponSvc, err := coupon.NewService(st.coupons, st.ledger, coupon.ServiceConfig{
		RedeemTimeout:  cfg.RedeemTimeout,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create coupon service")
	}
	checkoutSvc := checkout.NewService(st.products, resolver, couponSvc, policy, m.TracerProvider())

	var couponLimiter *httpmiddleware.Limiter
	if cfg.CouponRateLimit.Max > 0 {
		couponLimiter = httpmiddleware.NewLimiter(cfg.CouponRateLimit.Max, cfg.CouponRateLimit.Window)
		couponLimiter.StartCleanup(ctx)
	}

	h := api.NewHandler(api.Config{
		APIKeyPepper:  []byte(cfg.APIKeyPepper),
		CouponLimiter: couponLimiter,
	}, api.Deps{
		Products: st.products,
		Sales:    saleSvc,
		Resolver: resolver,
		Coupons:  couponSvc,
		Checkout: checkoutSvc,
		APIKeys:  st.apikeys,
	})

	// Health endpoints and the API on one router.
	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.RouteContext(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("kart-promo", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", api.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		),
	}
	healthSvc.SetReady(true)

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
	return nil
}
