package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-eventreg/internal/checkin"
	"ms-eventreg/internal/checkin/api"
	checkindb "ms-eventreg/internal/checkin/db"
	"ms-eventreg/internal/config"
	"ms-eventreg/internal/kafka"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/qr"
	"ms-eventreg/internal/ticketcache"
	"ms-eventreg/internal/ticketpdf"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger("checkin-service")
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "failed to connect to Postgres: "+err.Error())
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	// --- Redis ticket cache ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	var cache *ticketcache.Cache
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("DATABASE", "redis unavailable, ticket cache disabled: "+err.Error())
	} else {
		cache = ticketcache.New(redisClient, cfg.Redis.TicketCacheTTL)
	}

	// --- Kafka check-in event stream ---
	notifier := kafka.NewNotifier(cfg.Kafka, log)
	defer notifier.Close()

	// --- Services ---
	codec := qr.NewCodec(cfg.QR.Secret)
	service := checkin.NewService(&checkindb.DB{Bun: bunDB}, codec, cache, notifier, log)

	handler := &api.Handler{
		Checkins: service,
		QRImages: qr.NewImageRenderer(),
		PDF:      ticketpdf.NewGenerator(),
		Log:      log,
	}

	// --- Expiry sweep ---
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.Checkin.ExpirySweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Checkin.ExpirySweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					if _, err := service.ExpireOverdueTickets(sweepCtx); err != nil {
						log.Error("CHECKIN", "expiry sweep failed: "+err.Error())
					}
				}
			}
		}()
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkin", handler.CheckIn)
		r.Post("/checkin/validate", handler.Validate)
		r.Get("/tickets/{code}", handler.GetTicketByCode)
		r.Get("/tickets/{code}/qr", handler.TicketQRImage)
		r.Get("/tickets/{code}/document", handler.TicketDocument)
		r.Post("/tickets/{ticketID}/undo-checkin", handler.UndoCheckIn)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("API", "check-in service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API", "HTTP server error: "+err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopSweep()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("API", "check-in service shutdown complete")
}
