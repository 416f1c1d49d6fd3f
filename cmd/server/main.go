package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"tieredmemory/internal/api"
	"tieredmemory/internal/config"
	"tieredmemory/internal/db"
	"tieredmemory/internal/llm"
	"tieredmemory/internal/memory"
	redisdb "tieredmemory/internal/redis"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := db.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}

	rdb := redisdb.NewClient(cfg)

	// One queue fronts every upstream model call: the embedding
	// provider on the retrieval hot path and any generative endpoint
	// behind it share the same concurrency bound and circuit breaker.
	modelQueue := llm.NewManager(llm.DefaultConfig(), llm.NewCircuitBreaker(5, 30*time.Second))
	defer modelQueue.Stop()
	embedClient := llm.NewClient(modelQueue, llm.KindEmbedding,
		time.Duration(cfg.Memory.General.EmbedderTimeoutSeconds)*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	memSvc, lifecycleMgr, err := buildMemoryEngine(ctx, cfg, embedClient)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Memory engine init error: %v\n", err)
		os.Exit(1)
	}
	api.InitMemory(memSvc, lifecycleMgr)

	stopLifecycle := startLifecycleLoop(lifecycleMgr, cfg)
	defer close(stopLifecycle)
	go logLifecycleErrors(lifecycleMgr)

	r := api.SetupRouter(cfg, rdb)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("[Main] listening on %s", addr)
	if err := r.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// buildMemoryEngine wires the Vector Gateway, Tier Cache, Compression
// Codec, Scorer, Tier Policy, Consolidator, Evolver and Memory Service
// into a Lifecycle Manager, using the validated memory-engine document
// published by config.LoadConfig. Embedding calls route through the
// shared model queue.
func buildMemoryEngine(ctx context.Context, cfg *config.Config, embedClient *llm.Client) (*memory.Service, *memory.LifecycleManager, error) {
	mcfg := cfg.Memory

	codec := memory.NewCodec(
		mcfg.Compression.MinSize,
		mcfg.Tiers.Core.CompressionRatio,
		mcfg.Tiers.Active.CompressionRatio,
		mcfg.Tiers.Background.CompressionRatio,
	)

	gateway, err := memory.NewGateway(ctx, mcfg.Qdrant.URL, mcfg.Qdrant.APIKey, mcfg.General.EmbeddingDimension, codec)
	if err != nil {
		return nil, nil, err
	}

	cache := memory.NewCache(memory.CacheConfig{
		CoreCapacity:       mcfg.Tiers.Core.Capacity,
		ActiveCapacity:     mcfg.Tiers.Active.Capacity,
		BackgroundCapacity: mcfg.Tiers.Background.Capacity,
		ActiveTTL:          time.Duration(mcfg.Tiers.Active.TTLSeconds) * time.Second,
		BackgroundTTL:      time.Duration(mcfg.Tiers.Background.TTLSeconds) * time.Second,
	})

	scorer := memory.NewScorer(mcfg.Evolution.RecencyDecayDays, mcfg.Evolution.MaxAccessCount)

	policy := memory.NewPolicy(
		memory.TierRule{
			MinImportance:      mcfg.Tiers.Core.ImportanceThreshold,
			Capacity:           mcfg.Tiers.Core.Capacity,
			RetentionDays:      mcfg.Tiers.Core.RetentionDays,
			PromotionThreshold: mcfg.Tiers.Core.PromotionThreshold,
			DemotionThreshold:  mcfg.Tiers.Core.DemotionThreshold,
			DecayRate:          mcfg.Evolution.AgingRate,
		},
		memory.TierRule{
			MinImportance:       mcfg.Tiers.Active.ImportanceThreshold,
			Capacity:            mcfg.Tiers.Active.Capacity,
			RetentionDays:       mcfg.Tiers.Active.RetentionDays,
			PromotionThreshold:  mcfg.Tiers.Active.PromotionThreshold,
			DemotionThreshold:   mcfg.Tiers.Active.DemotionThreshold,
			MinAccessCount:      1,
			MinFrequency:        0.01,
			MaxInactivityMillis: int64(mcfg.Tiers.Active.RetentionDays) * 24 * 3600 * 1000,
			DecayRate:           mcfg.Evolution.AgingRate,
		},
		memory.TierRule{
			MinImportance:       mcfg.Tiers.Background.ImportanceThreshold,
			Capacity:            mcfg.Tiers.Background.Capacity,
			RetentionDays:       mcfg.Tiers.Background.RetentionDays,
			PromotionThreshold:  mcfg.Tiers.Background.PromotionThreshold,
			MaxInactivityMillis: int64(mcfg.Tiers.Background.RetentionDays) * 24 * 3600 * 1000,
			DecayRate:           mcfg.Evolution.AgingRate,
		},
	)

	consolidator := memory.NewConsolidator(mcfg.Consolidation.Threshold, mcfg.Consolidation.MaxAccessCount, mcfg.Evolution.RecencyDecayDays)

	evolver := memory.NewEvolver(memory.EvolutionConfig{
		AgingTauDays:           mcfg.Evolution.RecencyDecayDays,
		MaxAccessCount:         mcfg.Evolution.MaxAccessCount,
		ReinforcementThreshold: mcfg.Evolution.ReinforcementThreshold,
		MaxAgeDays:             float64(mcfg.Evolution.MaxAgeDays),
		ArchivalThreshold:      mcfg.Evolution.DemotionThreshold,
		ImportanceChangeRate:   mcfg.Evolution.ImportanceDecayRate,
	}, scorer)

	embedder := memory.NewQueuedEmbedder(mcfg.EmbeddingModel.URL, embedClient)

	svc := memory.NewService(gateway, cache, scorer, policy, embedder, mcfg.General.EmbeddingDimension)

	lifecycleMgr := memory.NewLifecycleManager(svc, consolidator, evolver, policy, cache, memory.LifecycleConfig{
		MemoryThreshold:     mcfg.Consolidation.MemoryThreshold,
		TimeThresholdMillis: int64(mcfg.Consolidation.TimeThresholdSeconds) * 1000,
		MaxTotalMemories:    mcfg.General.MaxTotalMemories,
	})

	return svc, lifecycleMgr, nil
}

// startLifecycleLoop runs the Lifecycle Manager on the configured
// cleanup interval until the returned channel is closed.
func startLifecycleLoop(lm *memory.LifecycleManager, cfg *config.Config) chan struct{} {
	stop := make(chan struct{})
	interval := time.Duration(cfg.Memory.General.CleanupIntervalSeconds) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if _, err := lm.Run(ctx); err != nil {
					log.Printf("[Main] lifecycle pass failed: %v", err)
				}
				cancel()
			case <-stop:
				return
			}
		}
	}()
	return stop
}

func logLifecycleErrors(lm *memory.LifecycleManager) {
	for err := range lm.Errors() {
		log.Printf("[Main] lifecycle manager reported: %v", err)
	}
}
