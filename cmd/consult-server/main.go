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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/consult/consult/internal/config"
	"github.com/consult/consult/internal/domain/booking"
	"github.com/consult/consult/internal/domain/emaillink"
	"github.com/consult/consult/internal/domain/identity"
	"github.com/consult/consult/internal/domain/reservation"
	"github.com/consult/consult/internal/domain/session"
	"github.com/consult/consult/internal/domain/slot"
	"github.com/consult/consult/internal/platform/apiclient"
	"github.com/consult/consult/internal/platform/auth"
	"github.com/consult/consult/internal/platform/db"
	"github.com/consult/consult/internal/platform/middleware"
	"github.com/consult/consult/internal/platform/notification"
	"github.com/consult/consult/internal/platform/querycache"
	"github.com/consult/consult/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "consult-server",
		Short:        "Counseling reservation admin and booking apps",
		SilenceUsage: true,
	}
	root.AddCommand(adminCmd())
	root.AddCommand(bookingCmd())
	root.AddCommand(migrateCmd())
	return root
}

func adminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admin",
		Short: "Serve the admin app",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin()
		},
	}
}

func bookingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "booking",
		Short: "Serve the public booking app",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBooking()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the admin session database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := openMigrationPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := openMigrationPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd, statuses)
			return nil
		},
	})
	return cmd
}

func printStatuses(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func openMigrationPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required for migrations")
	}
	return db.NewPool(ctx, poolConfig(cfg, "consult-migrate"))
}

func poolConfig(cfg *config.Config, app string) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: app,
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return nil, logger, err
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func runAdmin() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = logger.With().Str("app", "admin").Logger()

	// Sessions are kept in memory unless a database is configured.
	var (
		pool      *pgxpool.Pool
		persister auth.Persister
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(context.Background(), poolConfig(cfg, "consult-admin"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		persister = auth.NewPGPersisterFromPool(pool)
		logger.Info().Msg("connected to session database")
	}

	registry := auth.NewRegistry(persister, cfg.SessionTTL, logger)
	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, logger)
	mailer := notification.NewManager(newMailSender(cfg, logger), nil, logger)
	e := newAdminServer(cfg, logger, client, registry, pool, mailer)

	janitor, err := auth.NewJanitor(registry, cfg.SessionSweepSpec, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule session sweep")
	}
	janitor.Start()
	defer func() { <-janitor.Stop().Done() }()

	return serve(e, cfg.AdminPort, logger)
}

func runBooking() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = logger.With().Str("app", "booking").Logger()

	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, logger)
	mailer := notification.NewManager(newMailSender(cfg, logger), nil, logger)

	e := newBookingServer(cfg, logger, client, mailer)
	return serve(e, cfg.BookingPort, logger)
}

func newEcho(cfg *config.Config, logger zerolog.Logger, credentials bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		AllowCredentials: credentials,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	return e
}

// newAdminServer wires the admin app. pool may be nil when sessions are
// kept in memory. Cached queries are scoped to the admin session and dropped
// when it ends.
func newAdminServer(cfg *config.Config, logger zerolog.Logger, client *apiclient.Client, registry *auth.Registry, pool *pgxpool.Pool, mailer *notification.Manager) *echo.Echo {
	e := newEcho(cfg, logger, true)
	e.GET("/health/db", db.HealthHandler(pool))

	cache := newQueryCache(cfg)
	registry.OnEnd(func(id string) { cache.DropScope(id) })

	slotSvc := slot.NewService(slot.NewAPIRepo(client), cache, logger)
	bookingSvc := booking.NewService(booking.NewAPIRepo(client), slotSvc, cache, logger)
	sessionSvc := session.NewService(session.NewAPIRepo(client), cache, logger)
	linkSvc := emaillink.NewService(emaillink.NewAPIRepo(client), cfg.PublicBookingURL, cfg.LinkExpiresHours, mailer, logger)
	identitySvc := identity.NewService(identity.NewAPIRepo(client), registry, logger)

	g := e.Group("", auth.RequireSession(registry, cfg.SessionCookie))
	identity.NewHandler(identitySvc, cfg.SessionCookie, cfg.IsProduction()).RegisterRoutes(g)
	slot.NewHandler(slotSvc).RegisterRoutes(g)
	booking.NewHandler(bookingSvc).RegisterRoutes(g)
	session.NewHandler(sessionSvc).RegisterRoutes(g)
	emaillink.NewHandler(linkSvc).RegisterRoutes(g)

	return e
}

// newBookingServer wires the public booking app.
func newBookingServer(cfg *config.Config, logger zerolog.Logger, client *apiclient.Client, mailer *notification.Manager) *echo.Echo {
	e := newEcho(cfg, logger, false)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	cache := newQueryCache(cfg)
	svc := reservation.NewService(reservation.NewAPIRepo(client, logger), cache, mailer, logger)

	public := e.Group("/public", middleware.RateLimit(rateLimitCfg))
	reservation.NewHandler(svc).RegisterRoutes(public)
	return e
}

func newQueryCache(cfg *config.Config) *querycache.Cache {
	cache := querycache.New(cfg.CacheTTL)
	if cfg.APITimeout > 0 {
		cache.SetFetchTimeout(cfg.APITimeout)
	}
	return cache
}

// newMailSender picks the configured mail transport.
func newMailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	switch cfg.MailTransport() {
	case "sendgrid":
		return notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom, "상담 예약")
	case "smtp":
		return notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
		})
	}
	logger.Warn().Msg("no mail transport configured, emails are logged only")
	return notification.LogSender{Logger: logger}
}

func serve(e *echo.Echo, port string, logger zerolog.Logger) error {
	addr := ":" + port
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
