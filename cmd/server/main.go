package main // Entry point package

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
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/userdata-registry/internal/cache"
	"github.com/iliyamo/userdata-registry/internal/config" // Internal config loader
	"github.com/iliyamo/userdata-registry/internal/database"
	"github.com/iliyamo/userdata-registry/internal/handler"
	"github.com/iliyamo/userdata-registry/internal/logging"
	"github.com/iliyamo/userdata-registry/internal/metrics"
	"github.com/iliyamo/userdata-registry/internal/middleware"
	"github.com/iliyamo/userdata-registry/internal/queue"
	"github.com/iliyamo/userdata-registry/internal/repository"
	"github.com/iliyamo/userdata-registry/internal/router" // Internal router setup
	"github.com/iliyamo/userdata-registry/internal/service"
)

func main() {
	if err := run(); err != nil {
		logging.Logger().WithError(err).Fatal("server stopped")
	}
}

func run() error {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		return err
	}
	log, err := logging.Setup(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Redis is optional: without it the lookup cache and rate limiter are off.
	var rdb *redis.Client
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()
	if cacheCfg.Enabled || rateCfg.Enabled {
		rdb, err = config.NewRedisClient(ctx, config.LoadRedisConfig())
		if err != nil {
			log.WithError(err).Warn("redis unavailable; cache and rate limiting disabled")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	eventsCfg := config.LoadEventsConfig()
	if eventsCfg.Enabled && eventsCfg.ConsumerEnabled {
		go func() {
			if err := queue.StartAuditConsumer(ctx, eventsCfg, log.WithField("component", "audit-consumer")); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	}

	m := metrics.New()
	h := handler.NewUserDataHandler(
		store,
		cache.NewRecordCache(cacheCfg, rdb, log),
		service.NewPublisher(eventsCfg, log),
		m,
		log,
	)
	deps := router.Deps{UserData: h, Metrics: m, Logger: log}
	if rdb != nil && rateCfg.Enabled {
		deps.RateLimiter = middleware.NewTokenBucket(rateCfg, rdb, m, log)
	}
	if db != nil {
		deps.DB = db
	}
	e := router.New(deps, router.Options{OptionalTrailingSlash: cfg.OptionalTrailingSlash})

	return serve(ctx, e, ":"+cfg.Port, log)
}

// openStore selects the configured store.  The returned *sql.DB is nil for the memory store.
func openStore(ctx context.Context, cfg config.Config, log *logrus.Entry) (repository.UserDataStore, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return repository.NewMySQLStore(db), db, nil
}

// serve runs e until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, e *echo.Echo, addr string, log *logrus.Entry) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
