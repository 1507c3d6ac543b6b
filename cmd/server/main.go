package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"imagechat-backend/cmd"
	"imagechat-backend/internal/api"
	"imagechat-backend/internal/archive"
	"imagechat-backend/internal/chat"
	"imagechat-backend/internal/database"
	"imagechat-backend/internal/llm"
	"imagechat-backend/internal/orchestrator"
	"imagechat-backend/internal/storage"
)

type Config struct {
	Port int    `env:"API_PORT" envDefault:"8000"`
	Root string `env:"ROOT" envDefault:"./imagechat"`

	StorageBackend    string `env:"STORAGE_BACKEND" envDefault:"local"`
	StorageQuotaBytes int64  `env:"STORAGE_QUOTA_BYTES" envDefault:"0"`

	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	StorageBucket     string `env:"STORAGE_BUCKET" envDefault:"imagechat"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIAPIBase string `env:"OPENAI_API_BASE" envDefault:""`
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "imagechat.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createBackend(cfg Config, db *gorm.DB) storage.Store {
	switch cfg.StorageBackend {
	case "local":
		backend, err := storage.NewLocalStore(filepath.Join(cfg.Root, "storage"))
		if err != nil {
			log.Fatalf("Failed to create local storage: %v", err)
		}
		return backend
	case "sqlite":
		return storage.NewDBStore(db)
	case "s3":
		backend, err := storage.NewS3Store(context.Background(), &storage.S3StoreConfig{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
			Bucket:            cfg.StorageBucket,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 storage: %v", err)
		}
		return backend
	default:
		log.Fatalf("Invalid storage backend: %s. Must be 'local', 'sqlite' or 's3'", cfg.StorageBackend)
		return nil
	}
}

func createServer(store *chat.Store, orch *orchestrator.Orchestrator, port int) *http.Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},                                       // Allow all origins (TODO: make this an env var)
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, // Allow all HTTP methods
		AllowedHeaders:   []string{"*"},                                       // Allow all headers
		ExposedHeaders:   []string{"*"},                                       // Expose all headers
		AllowCredentials: true,                                                // Allow cookies/auth headers
		MaxAge:           300,                                                 // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)                     // Log requests
	r.Use(middleware.Recoverer)                  // Recover from panics
	r.Use(middleware.Timeout(120 * time.Second)) // Image generation can take a while

	chatHandler := api.NewChatService(store, orch)

	r.Route("/api/v1", func(r chi.Router) {
		chatHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "storage_backend", cfg.StorageBackend)

	db := createDatabase(cfg.Root)

	backend := createBackend(cfg, db)

	snapshotBackend := backend
	if cfg.StorageQuotaBytes > 0 {
		snapshotBackend = storage.NewQuotaStore(backend, cfg.StorageQuotaBytes)
	}

	persister := chat.NewStatePersister(snapshotBackend)

	store := chat.NewStore(persister)
	store.Restore(persister.Load(context.Background()))

	// Env credentials only seed a fresh deployment; settings saved through
	// the API win on restart.
	if store.APIKey() == "" && cfg.OpenAIAPIKey != "" {
		store.SetAPIKey(cfg.OpenAIAPIKey)
	}
	if store.APIBase() == "" && cfg.OpenAIAPIBase != "" {
		store.SetAPIBase(cfg.OpenAIAPIBase)
	}

	archiver := archive.NewArchiver(backend, db)

	orch := orchestrator.New(store, llm.NewOpenAIChatClient(), llm.NewRestyImageClient(), archiver)

	server := createServer(store, orch, cfg.Port)

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
