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
	"golang.org/x/sync/errgroup"

	"github.com/bloodbank/bloodbank/internal/config"
	"github.com/bloodbank/bloodbank/internal/domain/declaration"
	"github.com/bloodbank/bloodbank/internal/domain/intake"
	"github.com/bloodbank/bloodbank/internal/domain/location"
	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/internal/platform/events"
	"github.com/bloodbank/bloodbank/internal/platform/metrics"
	"github.com/bloodbank/bloodbank/internal/platform/middleware"
	"github.com/bloodbank/bloodbank/internal/platform/websocket"
	"github.com/bloodbank/bloodbank/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodbank-server",
		Short: "Blood donation intake API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(locationsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
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
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS, schema).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to schema %s.\n", count, schema)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS, schema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				state := "pending"
				if s.Applied && s.AppliedAt != nil {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%03d  %-30s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func locationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage province, district and ward data",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert locations from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := location.ParseImport(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := location.NewService(location.NewRepoPG(pool))
			importer := location.NewImporter(svc, func(ctx context.Context, fn func(ctx context.Context) error) error {
				return db.WithTx(ctx, pool, fn)
			})
			stats, err := importer.Import(ctx, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d province(s), %d district(s), %d ward(s).\n",
				stats.Provinces, stats.Districts, stats.Wards)
			return nil
		},
	}
	importCmd.Flags().String("file", "", "Path to the YAML location file")
	_ = importCmd.MarkFlagRequired("file")
	cmd.AddCommand(importCmd)

	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// app holds everything the HTTP server routes to.
type app struct {
	locations    *location.Handler
	declarations *declaration.Handler
	intake       *intake.Handler
	ws           *websocket.Handler
	checks       []db.Check
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	checks := []db.Check{db.PoolCheck(pool)}

	// Events: the websocket hub always, NATS when configured
	hub := websocket.NewHub(logger)
	publishers := events.Fanout{hub}
	if cfg.NATSURL != "" {
		conn, err := events.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer conn.Drain()
		natsPub := events.NewNATSPublisher(conn, "bloodbank")
		publishers = append(publishers, natsPub)
		checks = append(checks, db.Check{Name: "nats", Ping: natsPub.Ping})
		logger.Info().Msg("publishing events to NATS")
	}

	// Sessions
	var store intake.Store
	if cfg.RedisURL != "" {
		client, err := intake.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		redisStore := intake.NewRedisStore(client, cfg.SessionTTL)
		store = redisStore
		checks = append(checks, db.Check{Name: "redis", Ping: redisStore.Ping})
	} else {
		logger.Warn().Msg("REDIS_URL not set, intake sessions are kept in memory")
		store = intake.NewMemoryStore(cfg.SessionTTL)
	}

	// Domain services
	locationSvc := location.NewService(location.NewRepoPG(pool))
	declSvc := declaration.NewService(declaration.NewRepoPG(pool), publishers, logger)
	intakeSvc := intake.NewService(store, locationSource(cfg, locationSvc), declSvc, logger)

	e := newServer(cfg, logger, app{
		locations:    location.NewHandler(locationSvc),
		declarations: declaration.NewHandler(declSvc),
		intake:       intake.NewHandler(intakeSvc),
		ws:           websocket.NewHandler(hub, cfg.CORSOrigins),
		checks:       checks,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// locationSource picks where selectors read provinces, districts and wards.
func locationSource(cfg *config.Config, local *location.Service) location.Source {
	if cfg.UsesRemoteLocations() {
		return location.NewRemoteSource(cfg.LocationAPIURL, cfg.LocationFetchTimeout)
	}
	return local
}

func newServer(cfg *config.Config, logger zerolog.Logger, a app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	// Unauthenticated endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/ready", db.HealthHandler(a.checks...))
	e.GET("/metrics", metrics.Handler())

	// Auth
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		key, _ := cfg.SigningKey()
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: key,
		})
	}

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	limit := middleware.RateLimit(rateLimitCfg)

	apiV1 := e.Group("/api/v1", limit, authMW)
	fhirGroup := e.Group("/fhir", limit, authMW)

	a.locations.RegisterRoutes(apiV1)
	a.declarations.RegisterRoutes(apiV1, fhirGroup)
	a.intake.RegisterRoutes(apiV1)
	a.ws.RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleStaff)))

	return e
}
