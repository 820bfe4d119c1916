package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/domain/access"
	"github.com/carelink/carelink/internal/domain/aicontext"
	"github.com/carelink/carelink/internal/domain/connection"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/link"
	"github.com/carelink/carelink/internal/domain/medical"
	"github.com/carelink/carelink/internal/platform/ai"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/cache"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/internal/platform/hipaa"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/notification"
	"github.com/carelink/carelink/internal/platform/worker"
	"github.com/carelink/carelink/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carelink-server",
		Short: "CareLink care coordination API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openPool loads the config and connects to the database.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	cmd.AddCommand(createCmd)

	return cmd
}

// sweepCmd runs one expiry sweep outside the server, for cron-style use.
func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire temporary links whose expiry has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, _ := cmd.Flags().GetStringSlice("tenant")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if len(tenants) == 0 {
				tenants = cfg.SweepTenants
			}

			logger := newLogger(cfg.Env)
			links := link.NewService(link.NewRepoPG(pool), directory.NewService(directory.NewRepoPG(pool)), db.NewTxRunner(pool), logger)
			w := link.NewExpiryWorker(links, tenants, cfg.LinkSweepInterval, tenantScope(pool), logger)
			for _, tenant := range tenants {
				n, err := w.SweepTenant(ctx, tenant)
				if err != nil {
					return fmt.Errorf("sweep %s: %w", tenant, err)
				}
				fmt.Printf("%s: expired %d link(s)\n", tenant, n)
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("tenant", nil, "Tenant to sweep (repeatable, defaults to SWEEP_TENANTS)")
	return cmd
}

// tenantScope binds db.AcquireTenant to pool for background work that has
// no request to take the tenant from.
func tenantScope(pool *pgxpool.Pool) link.TenantScope {
	return func(ctx context.Context, tenantID string) (context.Context, func(), error) {
		return db.AcquireTenant(ctx, pool, tenantID)
	}
}

// unlessPublic skips mw for paths that bypass tenant resolution.
func unlessPublic(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := mw(next)
		return func(c echo.Context) error {
			if auth.IsPublicPath(c.Path()) {
				return next(c)
			}
			return wrapped(c)
		}
	}
}

// decodeSigningKey returns the hex-encoded HMAC key from AUTH_SIGNING_KEY,
// or nil when it is unset and tokens are verified against the JWKS.
func decodeSigningKey(envValue string) ([]byte, error) {
	if envValue == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(envValue)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(key))
	}
	return key, nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth is active: X-User-ID is trusted and requests without it run as admin")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis backs the sweep lock and, when selected, the pseudonym store.
	var locker *cache.Locker
	pseudonyms := hipaa.NewPseudonymizer(hipaa.NewMemoryPseudonymStore())
	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		locker = cache.NewLocker(rdb)
		if cfg.PseudonymStore == "redis" {
			pseudonyms = hipaa.NewPseudonymizer(cache.NewPseudonymStore(rdb))
		}
		logger.Info().Str("pseudonym_store", cfg.PseudonymStore).Msg("connected to redis")
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaLinkTopic)
		defer kp.Close()
		publisher = kp
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaLinkTopic).Msg("publishing link events")
	}

	// Notification channels. A nil sender disables its channel.
	var email notification.EmailSender
	if cfg.SMTPEnabled() {
		smtp, err := notification.NewSMTPSender(notification.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromName:  cfg.SMTPFromName,
			FromEmail: cfg.SMTPFromEmail,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid smtp config")
		}
		email = smtp
	}
	var push notification.PushSender
	if cfg.FirebaseCredentialsPath != "" {
		fcm, err := notification.NewFCMSender(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize firebase messaging")
		}
		push = fcm
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", "X-User-ID", "X-User-Roles"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		signingKey, err := decodeSigningKey(cfg.AuthSigningKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid auth config")
		}
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: signingKey,
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.Use(unlessPublic(db.TenantMiddleware(pool, cfg.DefaultTenant)))
	e.Use(middleware.Audit(logger, hipaa.NewAccessLog(pool)))

	apiV1 := e.Group("/api/v1")
	tx := db.NewTxRunner(pool)

	// Directory
	dirSvc := directory.NewService(directory.NewRepoPG(pool))
	dispatcher := notification.NewDispatcher(dirSvc, notification.NewTemplateEngine(), email, push, logger)

	// Links
	linkSvc := link.NewService(link.NewRepoPG(pool), dirSvc, tx, logger)
	linkSvc.SetNotifier(dispatcher)
	linkSvc.SetPublisher(publisher)
	link.NewHandler(linkSvc).RegisterRoutes(apiV1)

	// Access control
	accessSvc := access.NewService(dirSvc, linkSvc, logger)
	access.NewHandler(accessSvc).RegisterRoutes(apiV1)
	directory.NewHandler(dirSvc, accessSvc).RegisterRoutes(apiV1)

	// Connection requests
	connSvc := connection.NewService(connection.NewRepoPG(pool), dirSvc, linkSvc, tx, cfg.AppBaseURL, logger)
	connSvc.SetNotifier(dispatcher)
	connection.NewHandler(connSvc).RegisterRoutes(apiV1)

	// Medical records
	medicalRepo := medical.NewRepoPG(pool)
	medicalSvc := medical.NewService(medicalRepo, accessSvc, logger)
	medicalSvc.SetVitalAlerts(linkSvc, dirSvc, dispatcher)
	medical.NewHandler(medicalSvc).RegisterRoutes(apiV1)

	// AI context
	configSvc := aicontext.NewConfigService(aicontext.NewRepoPG(pool), accessSvc, tx, aicontext.DefaultSettings(cfg.AIModel), logger)
	assembler := aicontext.NewAssembler(medicalRepo, dirSvc, configSvc, logger)
	aiClient := ai.NewOpenAIClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, logger)
	pipeline := aicontext.NewPipeline(accessSvc, configSvc, assembler, hipaa.NewAnonymizer(pseudonyms), aiClient,
		hipaa.NewPGDisclosureStore(pool), logger)
	aicontext.NewHandler(configSvc, pipeline).RegisterRoutes(apiV1)

	// Background workers
	expiry := link.NewExpiryWorker(linkSvc, cfg.SweepTenants, cfg.LinkSweepInterval, tenantScope(pool), logger)
	if locker != nil {
		expiry.SetLocker(locker)
	}
	workers := worker.NewManager(logger)
	workers.Register(expiry)
	workers.Start(ctx)
	defer workers.Stop()
	logger.Info().Strs("workers", workers.Names()).Strs("tenants", cfg.SweepTenants).Msg("background workers started")

	// Operational endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
