package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/slot-booking/internal/api"
	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/demo"
	"github.com/hackgods/slot-booking/internal/logging"
	redisclient "github.com/hackgods/slot-booking/internal/redis"
	"github.com/hackgods/slot-booking/internal/reservation"
	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/slotgen"
	"github.com/hackgods/slot-booking/internal/status"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Env, "api-server")
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.Storage).
		Bool("run_sweeper", cfg.RunSweeper).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store  slot.Store
		dir    slot.Directory
		pgPool *pgxpool.Pool
	)

	switch cfg.Storage {
	case config.StoragePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		store = slot.NewPgStore(pgPool)
		dir = slot.NewPgDirectory(pgPool)
	case config.StorageMemory:
		mem := slot.NewMemStore()
		data := demo.Generate(demo.Options{Providers: 5, Claimants: 50, From: time.Now().UTC()})
		data.LoadInto(mem)
		logger.Warn().
			Int("providers", len(data.Providers)).
			Int("claimants", len(data.Claimants)).
			Msg("using in-memory storage with demo data; nothing survives a restart")

		store = mem
		dir = mem
	}

	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	if cfg.RedisEnabled {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Msg("connected to Redis")
		locker = redisclient.NewRedisLocker(rdb)
	}

	handler := api.NewRouter(api.RouterConfig{
		Store:        store,
		Generator:    slotgen.NewGenerator(store, dir, cfg.DefaultSlotMinutes, logger),
		Reservations: reservation.NewManager(store, logger),
		Booking:      booking.NewEngine(store, dir, logger),
		Status:       status.NewAuthority(store, logger),
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var wg sync.WaitGroup
	if cfg.RunSweeper {
		sweeper := reservation.NewSweeper(store, locker, cfg.WorkerInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(rootCtx)
		}()
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	wg.Wait()
}
