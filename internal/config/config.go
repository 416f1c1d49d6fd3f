package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// LLMConfig describes one configured generative-model endpoint (the
// out-of-scope "generative model" collaborator of the engine).
type LLMConfig struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContextSize int    `json:"context_size"`
}

// TierSettings holds the per-tier knobs from the Tier Policy component.
type TierSettings struct {
	Capacity            int     `json:"capacity"`
	TTLSeconds          int     `json:"ttl_seconds"` // 0 = unbounded (core)
	ImportanceThreshold float64 `json:"importance_threshold"`
	CompressionRatio    float64 `json:"compression_ratio"`
	BackupFrequency     int     `json:"backup_frequency_seconds"`
	RetentionDays       int     `json:"retention_days"` // 0 = unbounded
	PromotionThreshold  float64 `json:"promotion_threshold"`
	DemotionThreshold   float64 `json:"demotion_threshold"`
}

// ConsolidationConfig controls the Consolidator (4.F).
type ConsolidationConfig struct {
	Threshold               float64 `json:"threshold"`
	MaxClusterSize          int     `json:"max_cluster_size"`
	MinSimilarity           float64 `json:"min_similarity"`
	RecencyDecayRate        float64 `json:"recency_decay_rate"`
	ImportanceChangeRate    float64 `json:"importance_change_rate"`
	MaxAccessCount          int     `json:"max_access_count"`
	ScheduleIntervalSeconds int     `json:"schedule_interval_seconds"`
	MemoryThreshold         int     `json:"memory_threshold"`
	TimeThresholdSeconds    int     `json:"time_threshold_seconds"`
}

// CompressionConfig controls the Compression Codec (4.C).
type CompressionConfig struct {
	Enabled     bool    `json:"enabled"`
	Method      string  `json:"method"` // "lossless" or "lossy"
	Quality     float64 `json:"quality"`
	MinSize     int     `json:"min_size"`
	TargetRatio float64 `json:"target_ratio"`
}

// EvolutionConfig controls the Evolver (4.G).
type EvolutionConfig struct {
	AgingRate              float64 `json:"aging_rate"`
	ReinforcementThreshold float64 `json:"reinforcement_threshold"`
	MaxAgeDays             int     `json:"max_age_days"`
	ImportanceDecayRate    float64 `json:"importance_decay_rate"`
	PromotionThreshold     float64 `json:"promotion_threshold"`
	DemotionThreshold      float64 `json:"demotion_threshold"`
	RecencyDecayDays       float64 `json:"recency_decay_days"`
	MaxAccessCount         int     `json:"max_access_count"`
}

// GeneralMemoryConfig controls engine-wide bounds (used by the
// Lifecycle Manager's cleanup step and by the Memory Service).
type GeneralMemoryConfig struct {
	MaxTotalMemories       int    `json:"max_total_memories"`
	BackupIntervalSeconds  int    `json:"backup_interval_seconds"`
	CleanupIntervalSeconds int    `json:"cleanup_interval_seconds"`
	DefaultTier            string `json:"default_tier"`
	EmbeddingDimension     int    `json:"embedding_dimension"`
	GatewayTimeoutSeconds  int    `json:"gateway_timeout_seconds"`
	EmbedderTimeoutSeconds int    `json:"embedder_timeout_seconds"`
}

// MemoryEngineConfig is the single validated configuration document
// covering the Tiered Memory Engine.
type MemoryEngineConfig struct {
	Qdrant struct {
		URL        string `json:"url"`
		Collection string `json:"collection"`
		APIKey     string `json:"api_key"`
	} `json:"qdrant"`
	EmbeddingModel struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"embedding_model"`

	Tiers struct {
		Core       TierSettings `json:"core"`
		Active     TierSettings `json:"active"`
		Background TierSettings `json:"background"`
	} `json:"tiers"`

	Consolidation ConsolidationConfig `json:"consolidation"`
	Compression   CompressionConfig   `json:"compression"`
	Evolution     EvolutionConfig     `json:"evolution"`
	General       GeneralMemoryConfig `json:"general"`
}

// Config is the top-level application configuration document.
type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Subpath   string `json:"subpath"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	LLMs   []LLMConfig        `json:"llms"`
	Memory MemoryEngineConfig `json:"memory"`
}

var (
	once      sync.Once
	cfgErr    error
	published atomic.Pointer[Config]
)

// LoadConfig reads the config file from disk exactly once (singleton),
// applies defaults, validates it, and publishes it for GetConfig/
// Update to hand out.
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		if c.Server.JWTSecret == "" {
			cfgErr = errors.New("jwtSecret must be set in config")
			return
		}
		applyMemoryDefaults(&c.Memory)
		if err := validateMemoryConfig(&c.Memory); err != nil {
			cfgErr = err
			return
		}
		published.Store(&c)
	})
	return published.Load(), cfgErr
}

// Update validates a new memory-engine document and atomically
// publishes it; readers pick up the new value on their next GetConfig.
// The rest of Config (server/postgres/redis/llms) is carried over
// unchanged from the currently published value.
func Update(next MemoryEngineConfig) error {
	if err := validateMemoryConfig(&next); err != nil {
		return err
	}
	cur := published.Load()
	if cur == nil {
		return errors.New("config not loaded")
	}
	updated := *cur
	updated.Memory = next
	published.Store(&updated)
	return nil
}

// applyMemoryDefaults fills in zero-valued fields with the built-in
// defaults.
func applyMemoryDefaults(m *MemoryEngineConfig) {
	if m.Tiers.Core.Capacity == 0 {
		m.Tiers.Core.Capacity = 1000
	}
	if m.Tiers.Core.ImportanceThreshold == 0 {
		m.Tiers.Core.ImportanceThreshold = 0.8
	}
	if m.Tiers.Core.CompressionRatio == 0 {
		m.Tiers.Core.CompressionRatio = 0.8
	}
	if m.Tiers.Core.PromotionThreshold == 0 {
		m.Tiers.Core.PromotionThreshold = 0.9
	}
	if m.Tiers.Core.DemotionThreshold == 0 {
		m.Tiers.Core.DemotionThreshold = 0.7
	}

	if m.Tiers.Active.Capacity == 0 {
		m.Tiers.Active.Capacity = 5000
	}
	if m.Tiers.Active.TTLSeconds == 0 {
		m.Tiers.Active.TTLSeconds = 24 * 3600
	}
	if m.Tiers.Active.ImportanceThreshold == 0 {
		m.Tiers.Active.ImportanceThreshold = 0.4
	}
	if m.Tiers.Active.CompressionRatio == 0 {
		m.Tiers.Active.CompressionRatio = 0.6
	}
	if m.Tiers.Active.RetentionDays == 0 {
		m.Tiers.Active.RetentionDays = 30
	}
	if m.Tiers.Active.PromotionThreshold == 0 {
		m.Tiers.Active.PromotionThreshold = 0.8
	}
	if m.Tiers.Active.DemotionThreshold == 0 {
		m.Tiers.Active.DemotionThreshold = 0.3
	}

	if m.Tiers.Background.Capacity == 0 {
		m.Tiers.Background.Capacity = 10000
	}
	if m.Tiers.Background.TTLSeconds == 0 {
		m.Tiers.Background.TTLSeconds = 6 * 3600
	}
	if m.Tiers.Background.CompressionRatio == 0 {
		m.Tiers.Background.CompressionRatio = 0.4
	}
	if m.Tiers.Background.RetentionDays == 0 {
		m.Tiers.Background.RetentionDays = 90
	}
	if m.Tiers.Background.PromotionThreshold == 0 {
		m.Tiers.Background.PromotionThreshold = 0.4
	}

	if m.Consolidation.Threshold == 0 {
		m.Consolidation.Threshold = 0.7
	}
	if m.Consolidation.MaxClusterSize == 0 {
		m.Consolidation.MaxClusterSize = 50
	}
	if m.Consolidation.MinSimilarity == 0 {
		m.Consolidation.MinSimilarity = 0.7
	}
	if m.Consolidation.RecencyDecayRate == 0 {
		m.Consolidation.RecencyDecayRate = 0.02
	}
	if m.Consolidation.ImportanceChangeRate == 0 {
		m.Consolidation.ImportanceChangeRate = 0.1
	}
	if m.Consolidation.MaxAccessCount == 0 {
		m.Consolidation.MaxAccessCount = 100
	}
	if m.Consolidation.ScheduleIntervalSeconds == 0 {
		m.Consolidation.ScheduleIntervalSeconds = 3600
	}
	if m.Consolidation.MemoryThreshold == 0 {
		m.Consolidation.MemoryThreshold = 1000
	}
	if m.Consolidation.TimeThresholdSeconds == 0 {
		m.Consolidation.TimeThresholdSeconds = 6 * 3600
	}

	if m.Compression.Method == "" {
		m.Compression.Method = "lossless"
	}
	if m.Compression.Quality == 0 {
		m.Compression.Quality = 0.6
	}
	if m.Compression.MinSize == 0 {
		m.Compression.MinSize = 1024
	}
	if m.Compression.TargetRatio == 0 {
		m.Compression.TargetRatio = 0.6
	}

	if m.Evolution.AgingRate == 0 {
		m.Evolution.AgingRate = 0.02
	}
	if m.Evolution.ReinforcementThreshold == 0 {
		m.Evolution.ReinforcementThreshold = 0.6
	}
	if m.Evolution.MaxAgeDays == 0 {
		m.Evolution.MaxAgeDays = 180
	}
	if m.Evolution.ImportanceDecayRate == 0 {
		m.Evolution.ImportanceDecayRate = 0.1
	}
	if m.Evolution.PromotionThreshold == 0 {
		m.Evolution.PromotionThreshold = 0.8
	}
	if m.Evolution.DemotionThreshold == 0 {
		m.Evolution.DemotionThreshold = 0.8
	}
	if m.Evolution.RecencyDecayDays == 0 {
		m.Evolution.RecencyDecayDays = 30
	}
	if m.Evolution.MaxAccessCount == 0 {
		m.Evolution.MaxAccessCount = 100
	}

	if m.General.MaxTotalMemories == 0 {
		m.General.MaxTotalMemories = 16000
	}
	if m.General.BackupIntervalSeconds == 0 {
		m.General.BackupIntervalSeconds = 24 * 3600
	}
	if m.General.CleanupIntervalSeconds == 0 {
		m.General.CleanupIntervalSeconds = 3600
	}
	if m.General.DefaultTier == "" {
		m.General.DefaultTier = "active"
	}
	if m.General.EmbeddingDimension == 0 {
		m.General.EmbeddingDimension = 1536
	}
	if m.General.GatewayTimeoutSeconds == 0 {
		m.General.GatewayTimeoutSeconds = 5
	}
	if m.General.EmbedderTimeoutSeconds == 0 {
		m.General.EmbedderTimeoutSeconds = 10
	}
}

// validateMemoryConfig enforces the document's validation rules: all
// capacities positive, all ratios in [0,1], all intervals positive,
// defaultTier one of the three known tiers.
func validateMemoryConfig(m *MemoryEngineConfig) error {
	capacities := []int{m.Tiers.Core.Capacity, m.Tiers.Active.Capacity, m.Tiers.Background.Capacity}
	for _, c := range capacities {
		if c <= 0 {
			return errors.New("tier capacities must be positive")
		}
	}
	ratios := []float64{
		m.Tiers.Core.CompressionRatio, m.Tiers.Active.CompressionRatio, m.Tiers.Background.CompressionRatio,
		m.Consolidation.Threshold, m.Consolidation.MinSimilarity,
		m.Compression.TargetRatio, m.Compression.Quality,
	}
	for _, r := range ratios {
		if r < 0 || r > 1 {
			return fmt.Errorf("ratio/threshold values must be in [0,1], got %v", r)
		}
	}
	intervals := []int{
		m.Consolidation.ScheduleIntervalSeconds, m.Consolidation.TimeThresholdSeconds,
		m.General.BackupIntervalSeconds, m.General.CleanupIntervalSeconds,
	}
	for _, i := range intervals {
		if i <= 0 {
			return errors.New("intervals must be positive")
		}
	}
	switch m.General.DefaultTier {
	case "core", "active", "background":
	default:
		return fmt.Errorf("defaultTier must be one of core/active/background, got %q", m.General.DefaultTier)
	}
	return nil
}

// GetConfig returns the currently published configuration (must call
// LoadConfig first).
func GetConfig() *Config {
	return published.Load()
}

// ResetConfigForTest resets the singleton state (for testing only).
func ResetConfigForTest() {
	once = sync.Once{}
	cfgErr = nil
	published.Store(nil)
}
