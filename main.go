package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	logger.Info("starting chat server", zap.String("config", cfg.String()))

	db, err := NewDatabase(cfg.DBDriver, cfg.DBDSN, logger.Named("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	var sessions SessionStore
	var rdb *redis.Client
	switch cfg.SessionBackend {
	case SessionBackendRedis:
		rdb, err = ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessions = NewRedisSessionStore(rdb)
		logger.Info("redis session store connected", zap.String("addr", cfg.RedisAddr))
	default:
		sessions = NewSQLSessionStore(db)
	}

	hub := NewHub(logger)
	auth := NewAuthManager(db, sessions, logger)
	rooms := NewRoomService(db, auth, hub, logger)
	router := NewEventRouter(hub, auth, rooms, logger)
	server := NewServer(cfg, auth, rooms, hub, router, logger)

	jobs := NewJobs(hub, logger)
	if err := jobs.Start(cfg.HealthSchedule); err != nil {
		return err
	}

	e := server.Echo()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			jobs.Stop()
			return err
		}
	}

	jobs.Stop()
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
