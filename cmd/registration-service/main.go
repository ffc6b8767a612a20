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
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-eventreg/internal/cancellation"
	"ms-eventreg/internal/config"
	"ms-eventreg/internal/database/migrations"
	"ms-eventreg/internal/inventory"
	"ms-eventreg/internal/kafka"
	"ms-eventreg/internal/logger"
	"ms-eventreg/internal/qr"
	"ms-eventreg/internal/registration"
	"ms-eventreg/internal/registration/api"
	regdb "ms-eventreg/internal/registration/db"
	"ms-eventreg/internal/userdir"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger("registration-service")
	defer log.Close()

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

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("DATABASE", "migrations failed: "+err.Error())
	}
	log.Info("DATABASE", "schema up to date")

	// --- Kafka notification channel ---
	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		topics := []string{
			cfg.Kafka.Topics.RegistrationConfirmations,
			cfg.Kafka.Topics.TicketEmails,
			cfg.Kafka.Topics.TicketCheckins,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("NOTIFY", "kafka topic bootstrap failed: "+err.Error())
		}
	}
	notifier := kafka.NewNotifier(cfg.Kafka, log)
	defer notifier.Close()

	// --- Services ---
	ledger := inventory.NewLedger(log)
	codec := qr.NewCodec(cfg.QR.Secret)
	regService := registration.NewService(
		&regdb.DB{Bun: bunDB},
		userdir.NewDirectory(),
		ledger,
		codec,
		notifier,
		log,
	)
	cancelService := cancellation.NewService(&cancellation.DB{Bun: bunDB}, ledger, log)

	handler := &api.Handler{
		Registrations: regService,
		Cancellations: cancelService,
		Log:           log,
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/registrations", handler.Register)
		r.Delete("/registrations/{registrationID}", handler.Cancel)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("API", "registration service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API", "HTTP server error: "+err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("API", "registration service shutdown complete")
}
