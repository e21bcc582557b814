package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jwalitptl/hospital-api/internal/config"
	"github.com/jwalitptl/hospital-api/internal/email"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	prometheusHandler "github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	"github.com/jwalitptl/hospital-api/internal/sms"
	internalWorker "github.com/jwalitptl/hospital-api/internal/worker"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
	"github.com/jwalitptl/hospital-api/pkg/worker"
)

func main() {
	var (
		configPath string
		healthPort int
	)

	rootCmd := &cobra.Command{
		Use:   "hospital-worker",
		Short: "Publishes outbox events and delivers appointment notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if configPath != "" {
				paths = append(paths, configPath)
			}
			cfg, err := config.Load(paths...)
			if err != nil {
				return err
			}
			l := logger.NewLogger(cfg.Logging.ToLoggerConfig("hospital-worker"))
			log.Logger = l.Zerolog()
			return run(cfg, l, healthPort)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Directory containing config.yml")
	rootCmd.Flags().IntVar(&healthPort, "health-port", 8081, "Port for health and metrics endpoints")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *logger.Logger, healthPort int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database.ToPostgresConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics("hospital", "worker", registry)

	broker, err := newBroker(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer broker.Close()

	zl, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create delivery logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	var smsSender notification.SMSSender
	if s := sms.NewService(cfg.Twilio.ToSMSConfig(), zl); s != nil {
		smsSender = s
	} else {
		l.Info("SMS delivery disabled; Twilio is not configured")
	}
	dispatcher := notification.NewDispatcher(email.NewService(cfg.SMTP.ToEmailConfig(), zl), smsSender, l, m)

	if err := messaging.Consume(ctx, broker, messaging.ChannelAppointmentEvents, dispatcher.HandleMessage, l.Zerolog()); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", messaging.ChannelAppointmentEvents, err)
	}

	outbox := postgres.NewRepositories(db).Outbox
	processor := worker.NewOutboxProcessor(outbox, broker, cfg.Outbox.ToWorkerConfig(), l.With("component", "outbox-processor"), m)
	cleanup := internalWorker.NewOutboxCleanupWorker(outbox, cfg.Outbox.RetentionDays, cfg.Outbox.CleanupInterval, l.With("component", "outbox-cleanup"))

	srv := healthServer(healthPort, db.PingContext, registry)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "Health server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	l.Info("Worker started", "channel", messaging.ChannelAppointmentEvents)
	<-ctx.Done()
	l.Info("Shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "Health server forced to shutdown")
	}
	wg.Wait()
	return nil
}

// newBroker uses Redis when configured and an in-process broker otherwise,
// which only works while the consumer runs in this same process.
func newBroker(ctx context.Context, cfg *config.Config, l *logger.Logger) (messaging.Broker, error) {
	if cfg.Redis.URL == "" {
		l.Warn(nil, "Redis URL not set; using in-process broker")
		return messaging.NewMemoryBroker(), nil
	}
	broker, err := redis.NewBroker(ctx, cfg.Redis.ToBrokerConfig(), l.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis broker: %w", err)
	}
	return broker, nil
}

func healthServer(port int, ping health.Check, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	metricsHandler := prometheusHandler.New("hospital_worker", registry)
	engine.GET("/metrics", metricsHandler.Handler())
	health.NewHandler(map[string]health.Check{"database": ping}).RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
}
