package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/readstack/readstack/internal/api/handlers"
	"github.com/readstack/readstack/internal/config"
	"github.com/readstack/readstack/internal/embedcache"
	"github.com/readstack/readstack/internal/jobs"
	"github.com/readstack/readstack/internal/metrics"
	"github.com/readstack/readstack/internal/openai"
	"github.com/readstack/readstack/internal/repository"
	"github.com/readstack/readstack/internal/server"
	"github.com/readstack/readstack/internal/service"
	"github.com/readstack/readstack/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the readstack API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if cfg.HasSentry() {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	cfg.Port = resolvePort(cmd, cfg.Port)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	storeRepo := repository.NewStoreRepository(pool)
	modelRepo := repository.NewModelRepository(pool)
	auditRepo := repository.NewAuditLogRepository(pool)

	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	openaiClient := openai.NewClientWithConfig(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	})

	var embeddingClient service.EmbeddingClient = openaiClient
	if cfg.HasRedis() {
		cacheStore, err := embedcache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cacheStore.Close()

		if err := cacheStore.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}

		embeddingClient = embedcache.New(openaiClient, cacheStore, cfg.EmbeddingCacheTTL, metrics.ObserveEmbeddingCache)
		log.Println("embedding cache enabled")
	}

	genClient := &GenerationAdapter{client: openaiClient}

	searchSvc := service.NewSearchService(storeRepo, embeddingClient, modelRepo)
	answerSvc := service.NewAnswerService(storeRepo, embeddingClient, modelRepo, genClient)
	askSvc := service.NewAskService(storeRepo, embeddingClient, modelRepo, genClient)

	pruner := jobs.NewWorker(auditRepo, cfg.AuditRetention, cfg.AuditPruneInterval)
	go pruner.Start(ctx)

	routerCfg := server.RouterConfig{
		SearchHandler: handlers.NewSearchHandler(searchSvc, auditRepo),
		AskHandler:    handlers.NewAskHandler(askSvc, answerSvc, auditRepo),
		ModelsHandler: handlers.NewModelsHandler(modelRepo),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	pruner.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// resolvePort picks the listen port: an explicit --port wins over the
// env-configured port, even when it matches the flag default.
func resolvePort(cmd *cobra.Command, configured string) string {
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetString("port")
		return port
	}
	return configured
}

// GenerationAdapter adapts the OpenAI client to the two-message generation
// contract the services expect.
type GenerationAdapter struct {
	client *openai.Client
}

func (a *GenerationAdapter) Generate(ctx context.Context, model, system, prompt string, maxTokens int) (string, error) {
	messages := []openai.Message{
		{Role: openai.RoleSystem, Content: system},
		{Role: openai.RoleUser, Content: prompt},
	}
	return a.client.Generate(ctx, model, messages, maxTokens)
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
