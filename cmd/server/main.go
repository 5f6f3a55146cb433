package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/Pd-Patel-dev/Waypool-sub000/api"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/config"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/middleware"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/migrations"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/notify"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/o11y"
	"github.com/Pd-Patel-dev/Waypool-sub000/internal/payments"
	"github.com/Pd-Patel-dev/Waypool-sub000/lifecycle"
	"github.com/Pd-Patel-dev/Waypool-sub000/outbox"
	"github.com/Pd-Patel-dev/Waypool-sub000/pickup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("unexpected error: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	obs, cleanup, err := o11y.Setup(ctx, o11y.Options{
		ServiceName:  "waypool",
		LogLevel:     cfg.Level(),
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRatio:  cfg.TraceRatio,
	})
	defer cleanup()
	if err != nil {
		return err
	}
	logger := obs.Logger

	if cfg.Migrate {
		if err := migrations.Up(cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	cipher, err := pickup.NewCipher([]byte(cfg.PINSecret))
	if err != nil {
		return err
	}

	svcOpts := []lifecycle.Option{
		lifecycle.WithPolicy(policy),
		lifecycle.WithLogger(logger),
	}
	var gateway outbox.Payments
	if cfg.StripeKey != "" {
		s := payments.NewStripe(cfg.StripeKey, cfg.StripeCurrency)
		svcOpts = append(svcOpts, lifecycle.WithPayments(s))
		gateway = s
	} else {
		logger.Warn("no stripe key configured, bookings are taken without payment")
	}

	var notifier outbox.Notifier = notify.NewLog(logger)
	if len(cfg.KafkaBrokers) > 0 {
		k := notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer k.Close()
		notifier = k
	}

	svc := lifecycle.New(lifecycle.NewPostgresStore(db), pickup.NewIssuer(cipher), svcOpts...)

	lifecycle.RegisterMetrics(obs.Registry)
	outbox.RegisterMetrics(obs.Registry)

	dispatcher := outbox.NewDispatcher(outbox.NewRepository(db), notifier, gateway,
		outbox.WithSettler(svc),
		outbox.WithLogger(logger),
		outbox.WithInterval(cfg.OutboxInterval),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	)
	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			logger.Error("outbox dispatcher stopped", "error", err)
		}
	}()

	if cfg.Auth0Domain == "" {
		return errors.New("auth0 domain is required")
	}
	auth, err := middleware.Auth(cfg.Auth0Domain, cfg.Audience)
	if err != nil {
		return err
	}

	a := api.New(svc, obs, auth, cfg.MetricsUsername, cfg.MetricsPassword)

	serv := http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	logger.Info("server started", "port", cfg.Port)

	<-ctx.Done()
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return serv.Shutdown(ctx)
}
