package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"                        // .env loading for local runs
	"github.com/labstack/echo/v4"                     // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"   // Echo's stock middleware
	"github.com/redis/go-redis/v9"                    // Redis client for cache, limiter and lease
	"github.com/shopspring/decimal"                   // demo tier price

	"github.com/iliyamo/event-ticketing/internal/cache"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/logging"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/scheduler"
	"github.com/iliyamo/event-ticketing/internal/service"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine outside local development

	cfg := config.Load()
	log := logging.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ready, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		log.Warn("redis unavailable; tier cache, rate limit and sweep lease disabled", "err", err)
	} else {
		defer rdb.Close()
	}

	// Notifications go to the broker when one is configured and to the log
	// otherwise.  The dispatcher keeps delivery off the request path.
	var sink notify.Sink = notify.LogSink{Log: log}
	var publisher *notify.RabbitPublisher
	if cfg.RabbitURL != "" {
		publisher = notify.NewRabbitPublisher(cfg.RabbitURL, cfg.NotifyQueue, log)
		sink = publisher
	}
	dispatcher := notify.NewDispatcher(sink, log, cfg.NotifyBuffer, cfg.NotifyWorkers, 5*time.Second)

	if cfg.RabbitURL != "" && cfg.NotifyConsumer {
		consumer := &notify.Consumer{
			URL:   cfg.RabbitURL,
			Queue: cfg.NotifyQueue,
			Sink:  &notify.FileSink{Path: cfg.NotifyLogPath},
			Log:   log,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification consumer stopped", "err", err)
			}
		}()
	}

	deps := service.Deps{
		Store:    store,
		Notifier: dispatcher,
		Gateway:  newGateway(cfg),
		Log:      log,
		Options: service.Options{
			HoldTTL:     cfg.HoldTTL,
			LockTimeout: cfg.LockTimeout,
			SweepBatch:  cfg.SweepBatch,
		},
	}
	if cc := config.LoadCacheConfig(); cc.Enabled && rdb != nil {
		deps.Cache = cache.NewTierCache(rdb, cc.TTL, cc.Prefix)
	}

	booking := service.NewBookingService(deps)
	orders := service.NewOrderService(deps)
	payments := service.NewPaymentService(deps)
	reconciler := service.NewReconciler(deps)

	sched, err := scheduler.New(reconciler, newLease(rdb), scheduler.Options{
		Spec:     cfg.SweepSchedule,
		LeaseTTL: cfg.SweepLease,
	}, log)
	if err != nil {
		log.Error("scheduler init failed", "err", err)
		os.Exit(1)
	}
	sched.Start()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				log.Error("request", append(attrs, "err", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))

	orderH := handler.NewOrderHandler(booking, orders)
	paymentH := handler.NewPaymentHandler(orderH, payments)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)

	router.RegisterRoutes(e, ready)
	router.RegisterPublic(e, &handler.TierHandler{Booking: booking}, paymentH)
	router.RegisterCustomer(e, orderH, paymentH, cfg.JWTSecret, limiter)
	router.RegisterAdmin(e, handler.NewAdminHandler(orders, payments, reconciler), cfg.JWTSecret)
	if cfg.Gateway != "http" {
		router.RegisterMockGateway(e, paymentH, cfg.JWTSecret)
	}

	if cfg.DevTokenUserID > 0 && cfg.Env == "dev" {
		printDevTokens(cfg, log)
	}

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver, "gateway", cfg.Gateway)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler shutdown", "err", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("notification drain", "err", err)
	}
	if publisher != nil {
		_ = publisher.Close()
	}
}

// openStore builds the configured store.  The returned pinger backs the
// readiness probe and is nil for the in-memory store.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repository.Store, handler.Pinger, error) {
	if cfg.StoreDriver == config.StoreMemory {
		mem := repository.NewMemoryStore()
		seedDemo(mem, cfg)
		log.Warn("using in-memory store; data is lost on restart")
		return mem, nil, nil
	}
	db, err := database.Open(database.Options{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxConns,
		LockWaitTimeout: cfg.LockTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("schema migrated")
	}
	s := repository.NewMySQLStore(db)
	return s, s, nil
}

// seedDemo gives the in-memory store one buyer and one tier so the API can
// be exercised without a database.
func seedDemo(mem *repository.MemoryStore, cfg config.Config) {
	uid := cfg.DevTokenUserID
	if uid == 0 {
		uid = 1
	}
	mem.AddUser(uid)
	maxPer := 10
	mem.PutTier(model.TicketTier{
		ID:             1,
		EventID:        1,
		Name:           "Regular",
		Price:          decimal.NewFromInt(150000),
		RemainingStock: 100,
		InitialStock:   100,
		MaxPerOrder:    &maxPer,
		Status:         model.TierAvailable,
		EventName:      "Demo Concert",
		EventDate:      time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02"),
		VenueName:      "Main Hall",
	})
}

func newGateway(cfg config.Config) gateway.Gateway {
	if cfg.Gateway == "http" {
		return gateway.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKey, cfg.GatewayTimeout)
	}
	return gateway.Mock{BaseURL: cfg.PublicURL}
}

func newLease(rdb *redis.Client) scheduler.Lease {
	if rdb == nil {
		return nil
	}
	return scheduler.NewRedisLease(rdb, "lease:reconciler")
}

func printDevTokens(cfg config.Config, log *slog.Logger) {
	for _, role := range []string{model.RoleCustomer, model.RoleAdmin} {
		tok, err := utils.NewAccessToken(cfg.JWTSecret, cfg.DevTokenUserID, role, 24*time.Hour)
		if err != nil {
			log.Error("dev token", "role", role, "err", err)
			continue
		}
		log.Info("dev token", "role", role, "user_id", cfg.DevTokenUserID, "token", tok.Token, "expires", tok.Exp)
	}
}
