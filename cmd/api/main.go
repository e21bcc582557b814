package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-api/internal/app"
	"github.com/jwalitptl/hospital-api/internal/config"
	"github.com/jwalitptl/hospital-api/internal/handler/appointment"
	"github.com/jwalitptl/hospital-api/internal/handler/doctor"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	"github.com/jwalitptl/hospital-api/internal/handler/leave"
	"github.com/jwalitptl/hospital-api/internal/handler/patient"
	prometheusHandler "github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	"github.com/jwalitptl/hospital-api/internal/handler/schedule"
	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	"github.com/jwalitptl/hospital-api/internal/router"
	"github.com/jwalitptl/hospital-api/internal/worker"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "hospital-api",
		Short: "Hospital appointment scheduling API",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Directory containing config.yml")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(tokenCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, *logger.Logger, error) {
	var paths []string
	if path != "" {
		paths = append(paths, path)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, nil, err
	}

	l := logger.NewLogger(cfg.Logging.ToLoggerConfig("hospital-api"))
	log.Logger = l.Zerolog()
	return cfg, l, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the schedule generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, l)
		},
	}
}

func runServer(cfg *config.Config, l *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database.ToPostgresConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics("hospital", "", registry)

	services := app.NewServices(postgres.NewRepositories(db), app.Options{
		HorizonDays:      cfg.Scheduling.HorizonDays,
		Location:         cfg.Scheduling.Location(),
		VideoLinkBaseURL: cfg.Scheduling.VideoLinkBaseURL,
		DoctorCacheTTL:   cfg.Scheduling.DoctorCacheTTL,
	}, l, m)

	generator := worker.NewScheduleGenerationWorker(
		services.Doctors,
		services.Schedules,
		services.Leaves,
		cfg.Scheduling.HorizonDays,
		cfg.Scheduling.GenerationInterval,
		l.With("component", "schedule-generator"),
	)
	go generator.Start(ctx)

	gin.SetMode(cfg.Server.Mode)
	jwt := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwt),
		router.Handlers{
			Health:      health.NewHandler(map[string]health.Check{"database": databaseCheck(db)}),
			Doctor:      doctor.NewHandler(services.Doctors),
			Schedule:    schedule.NewHandler(services.Schedules),
			Patient:     patient.NewHandler(services.Patients, services.Medical),
			Appointment: appointment.NewHandler(services.Booking, services.Appointments),
			Leave:       leave.NewHandler(services.Leaves),
			Metrics:     prometheusHandler.New("hospital", registry),
		},
		routerConfig(cfg),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	l.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	l.Info("Server exited properly")
	return nil
}

func databaseCheck(db *sqlx.DB) health.Check {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

func routerConfig(cfg *config.Config) router.Config {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	if len(cfg.CORS.AllowedMethods) > 0 {
		cors.AllowMethods = cfg.CORS.AllowedMethods
	}
	if len(cfg.CORS.AllowedHeaders) > 0 {
		cors.AllowHeaders = cfg.CORS.AllowedHeaders
	}

	rc := router.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		MetricsPath:    cfg.Server.MetricsPath,
		CORSConfig:     cors,
	}
	if cfg.RateLimit.Enabled {
		rc.RateLimit = &middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		}
	}
	return rc
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := postgres.NewDB(ctx, cfg.Database.ToPostgresConfig())
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			for _, name := range applied {
				l.Info("Migration applied", "name", name)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", len(applied))
			return nil
		},
	}
}

// tokenCmd mints an access token for an existing user; account login lives
// outside this service.
func tokenCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userFlag, _ := cmd.Flags().GetString("user")
			roleFlag, _ := cmd.Flags().GetString("role")
			email, _ := cmd.Flags().GetString("email")

			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			role := auth.Role(roleFlag)
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", roleFlag)
			}

			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			jwt := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
			token, err := jwt.GenerateAccessToken(userID, role, email)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User ID (doctor, patient or staff)")
	cmd.Flags().String("role", string(auth.RoleAdmin), "Role to embed in the token")
	cmd.Flags().String("email", "", "Email claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
