package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/example/campus-fleet/internal/auth"
	"github.com/example/campus-fleet/internal/booking"
	"github.com/example/campus-fleet/internal/cache"
	"github.com/example/campus-fleet/internal/config"
	"github.com/example/campus-fleet/internal/fleet"
	httpapi "github.com/example/campus-fleet/internal/http"
	"github.com/example/campus-fleet/internal/ingest"
	"github.com/example/campus-fleet/internal/logging"
	"github.com/example/campus-fleet/internal/otp"
	"github.com/example/campus-fleet/internal/store"
	"github.com/example/campus-fleet/internal/telemetry"
	"github.com/example/campus-fleet/internal/trips"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var st store.Store
	if cfg.PGDSN != "" {
		ps, err := store.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		if cfg.RunMigrations {
			b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
			if err != nil {
				logger.Error("migration read failed", "error", err)
				os.Exit(1)
			}
			if err := ps.ApplyMigration(context.Background(), string(b)); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migration applied", "file", "001_init.sql")
		}
		st = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
	}

	var otpStore otp.Store
	if cfg.RedisAddr != "" {
		otpStore = otp.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory OTP store")
		otpStore = otp.NewMemoryStore()
	}
	ledger := otp.NewLedger(otpStore)
	ledger.TTL = cfg.OTPTTL
	ledger.Digits = cfg.OTPDigits

	locations := cache.NewVehicleLocations(rdb, cfg.LocationTTL)
	registry := fleet.NewRegistry(st, locations, logger)
	authSvc := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	bookings := booking.NewService(st, registry, ledger, nil, logger)
	tripSvc := trips.NewService(st, registry, logger)
	ingestor := telemetry.NewIngestor(st, registry, bookings, logger)

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	handler := httpapi.NewServer(httpapi.Deps{
		Store:    st,
		Auth:     authSvc,
		Registry: registry,
		Bookings: bookings,
		Trips:    tripSvc,
		Ingestor: ingestor,
		OTPs:     ledger,
		Kafka:    producer,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("campus-fleet listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
