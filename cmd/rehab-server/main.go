package main

import (
	"context"
	"fmt"
	"io/fs"
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

	"github.com/rehab/rehab/internal/config"
	"github.com/rehab/rehab/internal/domain/account"
	"github.com/rehab/rehab/internal/domain/device"
	"github.com/rehab/rehab/internal/domain/exercise"
	"github.com/rehab/rehab/internal/domain/patient"
	"github.com/rehab/rehab/internal/domain/therapist"
	"github.com/rehab/rehab/internal/platform/blobstore"
	"github.com/rehab/rehab/internal/platform/db"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/internal/platform/middleware"
	"github.com/rehab/rehab/internal/platform/subjectlock"
	"github.com/rehab/rehab/internal/platform/telemetry"
	"github.com/rehab/rehab/migrations"
)

const rootMessage = "use '/docs' endpoint to find all the api related docs "

const requestTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "rehab-server",
		Short: "Rehab exercise tracking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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
		Short: "Run PostgreSQL document store migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, schema, err := migrationPool(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFiles(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema for migrations (default: DB_SCHEMA)")
	upCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded migrations)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, schema, err := migrationPool(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFiles(dir))
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
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
	statusCmd.Flags().String("schema", "", "Target schema for migrations (default: DB_SCHEMA)")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default: embedded migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// migrationPool connects with the configured search_path and resolves the
// target schema, defaulting to DB_SCHEMA.
func migrationPool(ctx context.Context, schema string) (*pgxpool.Pool, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	if cfg.DatabaseURL == "" {
		return nil, "", fmt.Errorf("DATABASE_URL is required for migrations")
	}
	if schema == "" {
		schema = cfg.DBSchema
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
	if err != nil {
		return nil, "", err
	}
	return pool, schema, nil
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// deps are the process-wide clients shared by every service. They are opened
// once in runServer and closed on shutdown.
type deps struct {
	store   docstore.Store
	backend string
	pool    *pgxpool.Pool
	blobs   blobstore.BlobStore
	locker  subjectlock.Locker
	metrics *telemetry.Metrics
	closers []func(context.Context) error
}

func (d *deps) close(ctx context.Context, logger zerolog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			logger.Error().Err(err).Msg("close dependency")
		}
	}
}

func openDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*deps, error) {
	d := &deps{backend: cfg.DocumentStore, metrics: telemetry.New()}

	switch cfg.DocumentStore {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		d.pool = pool
		d.store = docstore.NewPostgresStore(pool)
		logger.Info().Msg("connected to postgres document store")
	case config.StoreMongo:
		store, err := docstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoLicenseDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		d.store = store
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo document store")
	default:
		d.store = docstore.NewMemoryStore()
		logger.Warn().Msg("using in-memory document store; data is lost on restart")
	}
	d.closers = append(d.closers, d.store.Close)

	switch cfg.BlobStore {
	case config.BlobS3:
		s3Store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PathStyle:       cfg.S3PathStyle,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			d.close(ctx, logger)
			return nil, fmt.Errorf("configure s3 blob store: %w", err)
		}
		d.blobs = s3Store
	default:
		d.blobs = blobstore.NewInMemoryBlobStore(cfg.PublicBaseURL)
	}

	if cfg.RedisURL != "" {
		client, err := subjectlock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			d.close(ctx, logger)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error { return client.Close() })
		d.locker = subjectlock.NewRedisLocker(client, cfg.LockTTL, logger)
		logger.Info().Msg("using redis subject locks")
	} else {
		d.locker = subjectlock.NewMemoryLocker()
	}
	return d, nil
}

// newServer assembles the echo instance: middleware, operational routes and
// every domain's routes.
func newServer(cfg *config.Config, d *deps, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(d.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(middleware.BodyLimit("1M", "11M", "/upload-profile-photo"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"Message": rootMessage})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(d.store, d.backend, d.pool))
	e.GET("/metrics", d.metrics.Handler())

	if mem, ok := d.blobs.(*blobstore.InMemoryBlobStore); ok {
		blobstore.NewHandler(mem).RegisterRoutes(e)
	}

	builder := fhir.NewBuilder(fhir.LoadLocation(cfg.Timezone))

	accountSvc := account.NewService(account.NewUserRepoDoc(d.store), cfg.DefaultPassword, logger)
	patientSvc := patient.NewService(d.store, builder, logger)
	therapistSvc := therapist.NewService(d.store, accountSvc, d.blobs, cfg.ProfileImagePrefix, builder, logger)
	exerciseSvc := exercise.NewService(d.store, patientSvc, d.locker, builder, d.metrics, logger)
	deviceSvc := device.NewService(device.NewDeviceRepoDoc(d.store), device.NewActivityRepoDoc(d.store), logger)

	api := e.Group("")
	account.NewHandler(accountSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	therapist.NewHandler(therapistSvc).RegisterRoutes(api)
	exercise.NewHandler(exerciseSvc).RegisterRoutes(api)
	device.NewHandler(deviceSvc).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	d, err := openDeps(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise dependencies")
	}

	e := newServer(cfg, d, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.DocumentStore).Str("blobs", cfg.BlobStore).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	d.close(shutdownCtx, logger)
	logger.Info().Msg("server stopped")
	return nil
}
