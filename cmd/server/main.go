package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"maritime-tutor/internal/api"
	"maritime-tutor/internal/blobstore"
	"maritime-tutor/internal/chatturn"
	"maritime-tutor/internal/config"
	"maritime-tutor/internal/crag"
	"maritime-tutor/internal/db"
	"maritime-tutor/internal/embedding"
	"maritime-tutor/internal/graph"
	"maritime-tutor/internal/ingestion"
	"maritime-tutor/internal/insight"
	"maritime-tutor/internal/llm"
	"maritime-tutor/internal/memory"
	"maritime-tutor/internal/pgpool"
	redisdb "maritime-tutor/internal/redis"
	"maritime-tutor/internal/sparseindex"
	"maritime-tutor/internal/tools"
	"maritime-tutor/internal/vectorstore"
)

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := db.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pgPool, err := pgpool.Open(ctx, pgpool.Config{DSN: cfg.Postgres.DSN})
	if err != nil {
		log.Fatalf("[Main] pgpool open error: %v", err)
	}
	defer pgPool.Close()
	if err := pgpool.Migrate(ctx, pgPool); err != nil {
		log.Fatalf("[Main] pgpool migrate error: %v", err)
	}
	log.Printf("[Main] ✓ pgvector pool ready (semantic_memories, knowledge_embeddings)")

	rdb := redisdb.NewClient(cfg)

	breaker := tools.NewCircuitBreaker(3, 5*time.Minute)

	llmPool := llm.NewPool(llm.PoolConfig{
		GenerativeURL:   cfg.Generative.URL,
		GenerativeModel: cfg.Generative.Name,
	}, breaker)
	defer llmPool.Stop()
	log.Printf("[Main] ✓ LLM pool initialized (model: %s)", cfg.Generative.Name)

	embed := embedding.NewService(cfg.Embedding.URL, cfg.Embedding.Name)

	dense := vectorstore.NewStore(pgPool)
	sparse := sparseindex.NewIndex(pgPool)
	memories := memory.NewRepository(pgPool)

	learning, err := graph.NewClient(graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		log.Printf("[Main] WARNING: learning graph unavailable: %v", err)
		learning = nil
	} else {
		defer learning.Close(ctx)
		log.Printf("[Main] ✓ learning graph connected (%s)", cfg.Neo4j.URI)
	}

	blobs, err := blobstore.NewStore(blobstore.Config{
		Endpoint:        cfg.Minio.Endpoint,
		AccessKeyID:     cfg.Minio.AccessKeyID,
		SecretAccessKey: cfg.Minio.SecretAccessKey,
		BucketName:      cfg.Minio.Bucket,
		UseSSL:          cfg.Minio.UseSSL,
	})
	if err != nil {
		log.Printf("[Main] WARNING: blob store unavailable: %v", err)
		blobs = nil
	} else {
		log.Printf("[Main] ✓ blob store connected (bucket: %s)", cfg.Minio.Bucket)
	}

	insightEngine := insight.NewEngine(llmPool, embed, memories)

	cragOrchestrator := crag.NewOrchestrator(llmPool, embed, dense, sparse)

	pipeline := ingestion.NewPipeline(llmPool, embed, dense, sparse, blobs, ingestion.Config{
		EnrichmentEnabled: cfg.Ingestion.EnrichmentEnabled,
		ForceVision:       cfg.Ingestion.ForceVision,
	})

	turns := chatturn.NewOrchestrator(chatturn.Config{
		CRAG:                        cragOrchestrator,
		Insights:                    insightEngine,
		Memories:                    memories,
		Learning:                    learning,
		Embed:                       embed,
		Summarizer:                  chatturn.NewLLMSummarizer(llmPool),
		SummarizationTokenThreshold: cfg.Summarization.TokenThreshold,
	})
	log.Printf("[Main] ✓ chat orchestrator wired (summarization threshold: %d tokens)",
		cfg.Summarization.TokenThreshold)

	r := api.SetupRouter(cfg, rdb, turns, pipeline)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Starting server on %s%s\n", addr, cfg.Server.Subpath)
	if err := r.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
