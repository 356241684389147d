package main

// docvault-core is the self-custody document vault service. It stores
// document content in Walrus, records ownership on Sui via client-signed
// transactions, and answers questions over the indexed documents.
//
// Run modes: api (HTTP server only), worker (task processing only),
// all (both, the default).

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/docvault-core/internal/adapters/driven/ai"
	"github.com/custodia-labs/docvault-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/docvault-core/internal/adapters/driven/blobmem"
	"github.com/custodia-labs/docvault-core/internal/adapters/driven/chromem"
	"github.com/custodia-labs/docvault-core/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/docvault-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/docvault-core/internal/adapters/driven/sui"
	"github.com/custodia-labs/docvault-core/internal/adapters/driven/walrus"
	"github.com/custodia-labs/docvault-core/internal/adapters/driving/http"
	"github.com/custodia-labs/docvault-core/internal/config"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driving"
	"github.com/custodia-labs/docvault-core/internal/core/services"
	"github.com/custodia-labs/docvault-core/internal/extractors"
	"github.com/custodia-labs/docvault-core/internal/postprocessors"
	"github.com/custodia-labs/docvault-core/internal/worker"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Run mode from config (RUN_MODE) or command line arg
	mode := cfg.Mode
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	log.Printf("docvault-core %s starting in %s mode", version, mode)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Initialize PostgreSQL =====
	log.Println("Connecting to PostgreSQL...")
	dbConfig := postgres.DefaultConfig(cfg.Database.URL)
	if cfg.Database.MaxOpenConns > 0 {
		dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		dbConfig.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	db, err := postgres.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize schema (idempotent)
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	log.Println("PostgreSQL connected and schema initialized")

	// ===== Initialize Redis (optional) =====
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Blob store (Walrus, or in-memory when unconfigured) =====
	var blobStore driven.BlobStore
	if cfg.Walrus.PublisherURL != "" {
		blobStore, err = walrus.NewClient(walrus.ClientConfig{
			PublisherURL:  cfg.Walrus.PublisherURL,
			AggregatorURL: cfg.Walrus.AggregatorURL,
			Epochs:        cfg.Walrus.Epochs,
		})
		if err != nil {
			log.Fatalf("Failed to create Walrus client: %v", err)
		}
	} else {
		log.Println("Warning: no Walrus publisher configured, blobs are held in memory only")
		blobStore = blobmem.NewStore()
	}

	// ===== Sui ledger client =====
	var signer sui.SignerFunc
	if cfg.Sui.SignerURL != "" {
		signer = sui.NewHTTPSigner(cfg.Sui.SignerURL, 0)
		log.Printf("Using external transaction signer at %s", cfg.Sui.SignerURL)
	} else {
		log.Println("Warning: no transaction signer configured, visibility and transfer updates are unavailable")
	}
	ledger, err := sui.NewClient(sui.ClientConfig{
		RPCURL:     cfg.Sui.RPCURL,
		PackageID:  cfg.Sui.PackageID,
		ModuleName: cfg.Sui.Module,
		GasBudget:  cfg.Sui.GasBudget,
		Signer:     signer,
	})
	if err != nil {
		log.Fatalf("Failed to create Sui client: %v", err)
	}

	// ===== AI services =====
	embedder, err := ai.NewEmbeddingService(ai.EmbeddingConfig{
		Provider:          cfg.AI.Embedding.Provider,
		APIKey:            cfg.AI.Embedding.APIKey,
		Model:             cfg.AI.Embedding.Model,
		BaseURL:           cfg.AI.Embedding.BaseURL,
		RequestsPerSecond: cfg.AI.Embedding.RequestsPerSecond,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}
	generator, err := ai.NewGenerationService(ai.GenerationConfig{
		Provider:          cfg.AI.Generation.Provider,
		APIKey:            cfg.AI.Generation.APIKey,
		Model:             cfg.AI.Generation.Model,
		BaseURL:           cfg.AI.Generation.BaseURL,
		RequestsPerSecond: cfg.AI.Generation.RequestsPerSecond,
	})
	if err != nil {
		log.Fatalf("Failed to create generation service: %v", err)
	}
	log.Printf("AI providers: embedding=%s, generation=%s",
		cfg.AI.Embedding.Provider, cfg.AI.Generation.Provider)

	// ===== Vector index =====
	var chunkIndex *chromem.Index
	switch dir := getEnv("INDEX_DIR", "data/index"); dir {
	case ":memory:":
		chunkIndex, err = chromem.NewIndex()
	default:
		chunkIndex, err = chromem.NewPersistentIndex(dir)
	}
	if err != nil {
		log.Fatalf("Failed to create vector index: %v", err)
	}

	// ===== Driven adapters =====
	tokens := auth.NewAdapter(cfg.Auth.TokenSecret)
	documentStore := postgres.NewDocumentStore(db)
	chunkStore := postgres.NewChunkStore(db)

	// ===== Task Queue (Redis if available, otherwise PostgreSQL) =====
	var taskQueue driven.TaskQueue
	if redisClient != nil {
		taskQueue, err = redisadapter.NewQueue(redisClient, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			log.Fatalf("Failed to create task queue: %v", err)
		}
		log.Println("Using Redis task queue")
	} else {
		taskQueue = postgres.NewTaskQueue(db)
		log.Println("Using PostgreSQL task queue")
	}

	// ===== Distributed Lock (Redis if available, otherwise advisory locks) =====
	var distributedLock driven.DistributedLock
	if redisClient != nil {
		distributedLock = redisadapter.NewLock(redisClient)
		log.Println("Using Redis distributed lock")
	} else {
		distributedLock = postgres.NewAdvisoryLock(db)
		log.Println("Using PostgreSQL advisory lock")
	}

	// Extraction and chunking (shared across all modes)
	extractorRegistry := extractors.DefaultRegistry()
	pipeline := postprocessors.DefaultPipeline()

	// ===== Services (core business logic) =====
	queryService := services.NewQueryService(services.QueryConfig{
		ChunkStore: chunkStore,
		ChunkIndex: chunkIndex,
		Embedder:   embedder,
		Generator:  generator,
		Pipeline:   pipeline,
		Logger:     slog.Default(),
	})
	ingestionService := services.NewIngestionService(services.IngestionConfig{
		DocumentStore: documentStore,
		ChunkStore:    chunkStore,
		ChunkIndex:    chunkIndex,
		BlobStore:     blobStore,
		Ledger:        ledger,
		Lock:          distributedLock,
		Extractors:    extractorRegistry,
		Query:         queryService,
		Logger:        slog.Default(),
	})
	documentService := services.NewDocumentService(documentStore, chunkStore, chunkIndex, blobStore, ledger, slog.Default())

	// Janitor fails documents stuck awaiting a signature
	janitor := services.NewSignatureJanitor(services.JanitorConfig{
		DocumentStore: documentStore,
		Lock:          distributedLock,
		Logger:        slog.Default(),
		SignatureTTL:  cfg.Worker.SignatureTTL,
		SweepInterval: cfg.Worker.SweepInterval,
	})

	serverConfig := http.Config{
		Host:     "0.0.0.0",
		Port:     cfg.Server.Port,
		Version:  version,
		TokenTTL: cfg.Auth.TokenTTL,
	}

	var redisPing http.Pinger
	if redisClient != nil {
		redisPing = redisPinger{client: redisClient}
	}

	workerConfig := worker.Config{
		TaskQueue:      taskQueue,
		Ingestion:      ingestionService,
		Janitor:        janitor,
		Logger:         slog.Default(),
		Concurrency:    cfg.Worker.Concurrency,
		DequeueTimeout: cfg.Worker.DequeueTimeout,
	}

	switch mode {
	case "api":
		runAPI(serverConfig, ingestionService, queryService, documentService, tokens, taskQueue, db, redisPing)

	case "worker":
		runWorkerMode(ctx, workerConfig)

	case "all":
		// Start worker in background, API in foreground (blocks)
		go runWorkerMode(ctx, workerConfig)
		runAPI(serverConfig, ingestionService, queryService, documentService, tokens, taskQueue, db, redisPing)

	default:
		log.Fatalf("Unknown mode: %s (use: api, worker, or all)", mode)
	}
}

func runAPI(
	cfg http.Config,
	ingestionService driving.IngestionService,
	queryService driving.QueryService,
	documentService driving.DocumentService,
	tokens driven.IdentityTokens,
	taskQueue driven.TaskQueue,
	db http.Pinger,
	redisPing http.Pinger,
) {
	server := http.NewServer(cfg, ingestionService, queryService, documentService, tokens, taskQueue, db, redisPing)

	log.Printf("API server listening on port %d", cfg.Port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func runWorkerMode(ctx context.Context, cfg worker.Config) {
	w := worker.New(cfg)

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	log.Println("Worker started, processing tasks...")
	log.Println("Worker handles:")
	log.Println("  - index_document: Chunk, embed, and index a registered document")
	log.Println("  - reindex_document: Rebuild a document's chunks and index entries")

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	log.Println("Stopping worker...")
	w.Stop()
	log.Println("Worker stopped")
}

// redisPinger adapts the Redis client to the readiness check.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
