package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/payment"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/session"
	filestore "github.com/xenking/storefront/internal/storage/file"
	redisstore "github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// couponIndexRefresh is how often new coupon codes are pulled into the
// bloom index. A code inserted into the database by other means is rejected
// as invalid until the next refresh.
const couponIndexRefresh = 5 * time.Minute

// Telemetry provides the OpenTelemetry providers of the process.
// *app.Telemetry of go-faster/sdk implements it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt secret is required: set STOREFRONT_JWT_SECRET")
	}
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("cart_storage", cfg.CartStorage),
		zap.String("payment_provider", cfg.Payment.Provider),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	addressRepo := repository.NewAddressRepository(pool)

	// Coupons: unknown codes are rejected by the bloom index before any query.
	codes, err := couponRepo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "load coupon codes")
	}
	index := coupon.NewBloomIndex(uint(max(len(codes)*2, 1024)), 0.01)
	index.Add(codes...)
	couponValidator := coupon.NewRepoValidator(couponRepo, index)
	lg.Info("Coupon index loaded", zap.Int("codes", len(codes)))

	// Payments.
	var provider order.PaymentProvider = payment.Sandbox{}
	if cfg.Payment.Provider == "razorpay" {
		provider = payment.NewRazorpay(payment.RazorpayConfig{
			BaseURL:   cfg.Payment.BaseURL,
			KeyID:     cfg.Payment.KeyID,
			KeySecret: cfg.Payment.KeySecret,
			Timeout:   cfg.Payment.Timeout,
		}, m.TracerProvider())
	}
	verifier := payment.NewHMACVerifier(cfg.Payment.KeySecret)

	// Order events.
	var publisher order.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderEventsTopic)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = kp
	}

	// Domain services.
	orderService := order.NewService(productRepo, couponValidator, orderRepo, provider, verifier, publisher, order.Config{
		CODSurcharge: cfg.CODSurcharge(),
		Currency:     cfg.Checkout.Currency,
	})
	addressService := address.NewService(addressRepo)

	// Durable carts.
	var carts session.CartPersisters
	switch cfg.CartStorage {
	case "file":
		fs, err := filestore.NewCartStore(cfg.CartDir)
		if err != nil {
			return errors.Wrap(err, "open cart dir")
		}
		carts = fs
	default:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(client.Ping))
		carts = redisstore.NewCartStore(client, cfg.Redis.KeyPrefix, cfg.Redis.CartTTL)
	}

	// Checkout.
	orch, err := checkout.New(orderService, couponValidator, addressService, checkout.Config{
		CODSurcharge: cfg.CODSurcharge(),
		PaymentKeyID: cfg.Payment.KeyID,
		Meter:        m.MeterProvider().Meter("storefront"),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout")
	}
	sessions := session.NewManager(orch, carts, cfg.Session.Size, cfg.Session.TTL, lg.Named("session"))

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.New(sessions, orch, productRepo, orderService, couponValidator)
	tokens := httpmiddleware.NewTokenVerifier([]byte(cfg.JWTSecret))

	root := chi.NewRouter()
	root.Use(httpmiddleware.RouteLabel(), httpmiddleware.LogRequests())
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Route("/api", func(r chi.Router) {
		r.Use(
			httpmiddleware.Auth(tokens),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		)
		r.Mount("/", h.Routes())
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("storefront-api", m.TracerProvider(), m.MeterProvider()),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(couponIndexRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				codes, err := couponRepo.ListCodes(gCtx)
				if err != nil {
					lg.Warn("Refresh coupon index", zap.Error(err))
					continue
				}
				index.Add(codes...)
			}
		}
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Flush carts of live sessions.
		sessions.Close()
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
