// internal/memory/lifecycle.go
package memory

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// LifecycleConfig carries the Lifecycle Manager's tunable knobs,
// mirrored from config.ConsolidationConfig/GeneralMemoryConfig so the
// memory package stays independent of the config package's types.
type LifecycleConfig struct {
	MemoryThreshold     int
	TimeThresholdMillis int64
	MaxTotalMemories    int
	BatchSize           int
	BackoffAttempts     int
	BackoffInitialDelay time.Duration
}

// DefaultLifecycleConfig returns the built-in orchestrator defaults.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		MemoryThreshold:     1000,
		TimeThresholdMillis: 6 * 3600 * 1000,
		MaxTotalMemories:    16000,
		BatchSize:           100,
		BackoffAttempts:     3,
		BackoffInitialDelay: time.Second,
	}
}

// PassStats summarises one Lifecycle Manager pass. Run returns it
// whether or not the pass succeeds; a pass that ultimately fails
// carries SuccessRate 0, and its error is also sent on the error
// channel.
type PassStats struct {
	TotalMemories      int64
	ConsolidationFired bool
	ConsolidationStats ConsolidationStats
	EvolutionChanged   int64
	TierTransitions    int
	Deleted            int
	SuccessRate        float64
}

// LifecycleManager is the periodic orchestrator: each pass refreshes
// stats, fires consolidation when due, runs the evolution pass,
// re-evaluates tier membership, and cleans up stale and over-capacity
// memories.
type LifecycleManager struct {
	svc          *Service
	consolidator *Consolidator
	evolver      *Evolver
	policy       *Policy
	cache        *Cache
	cfg          LifecycleConfig

	group singleflight.Group

	mu                    sync.Mutex
	lastConsolidationTime int64
	errCh                 chan error
}

// NewLifecycleManager builds a LifecycleManager from its collaborators.
func NewLifecycleManager(svc *Service, consolidator *Consolidator, evolver *Evolver, policy *Policy, cache *Cache, cfg LifecycleConfig) *LifecycleManager {
	d := DefaultLifecycleConfig()
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = d.MemoryThreshold
	}
	if cfg.TimeThresholdMillis <= 0 {
		cfg.TimeThresholdMillis = d.TimeThresholdMillis
	}
	if cfg.MaxTotalMemories <= 0 {
		cfg.MaxTotalMemories = d.MaxTotalMemories
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.BackoffAttempts <= 0 {
		cfg.BackoffAttempts = d.BackoffAttempts
	}
	if cfg.BackoffInitialDelay <= 0 {
		cfg.BackoffInitialDelay = d.BackoffInitialDelay
	}
	return &LifecycleManager{
		svc:          svc,
		consolidator: consolidator,
		evolver:      evolver,
		policy:       policy,
		cache:        cache,
		cfg:          cfg,
		errCh:        make(chan error, 8),
	}
}

// Errors returns the channel the manager reports final pass failures
// on, after retries are exhausted.
func (l *LifecycleManager) Errors() <-chan error {
	return l.errCh
}

// Run executes one guarded pass: overlapping calls collapse onto the
// in-flight pass via a single-flight guard, so passes never overlap.
// The whole pass is retried with exponential backoff on failure.
func (l *LifecycleManager) Run(ctx context.Context) (PassStats, error) {
	v, err, _ := l.group.Do("pass", func() (interface{}, error) {
		return l.runWithBackoff(ctx)
	})
	if err != nil {
		stats, _ := v.(PassStats)
		stats.SuccessRate = 0
		return stats, err
	}
	return v.(PassStats), nil
}

func (l *LifecycleManager) runWithBackoff(ctx context.Context) (interface{}, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.BackoffInitialDelay
	bounded := backoff.WithMaxRetries(b, uint64(l.cfg.BackoffAttempts-1))

	var stats PassStats
	operation := func() error {
		s, err := l.runOnce(ctx)
		stats = s
		return err
	}
	err := backoff.Retry(operation, backoff.WithContext(bounded, ctx))
	if err != nil {
		l.reportFailure(ctx, err, stats)
		return stats, err
	}
	return stats, nil
}

func (l *LifecycleManager) reportFailure(ctx context.Context, err error, stats PassStats) {
	if verr := l.svc.gateway.Compact(ctx, TierCore); verr != nil {
		log.Printf("[LifecycleManager] integrity verify failed after pass failure: %v", verr)
	}
	stats.SuccessRate = 0
	select {
	case l.errCh <- err:
	default:
		log.Printf("[LifecycleManager] error channel full, dropping: %v", err)
	}
}

// runOnce performs the five-step pass once, without retry.
func (l *LifecycleManager) runOnce(ctx context.Context) (PassStats, error) {
	var stats PassStats

	// Step 1: refresh stats.
	all, err := l.svc.GetAll(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalMemories = int64(len(all))

	now := nowMillis()
	l.mu.Lock()
	sinceLast := now - l.lastConsolidationTime
	l.mu.Unlock()

	// Step 2: consolidation trigger.
	if len(all) > l.cfg.MemoryThreshold || sinceLast > l.cfg.TimeThresholdMillis {
		cstats, err := l.consolidate(ctx, all, now)
		if err != nil {
			return stats, err
		}
		stats.ConsolidationFired = true
		stats.ConsolidationStats = cstats
		all, err = l.svc.GetAll(ctx)
		if err != nil {
			return stats, err
		}
	}

	// Step 3: evolution pass. Importance changes are persisted at the
	// memory's current tier; the evolver's tier recommendation is
	// realised by step 4's predicates, except archival, which demotes
	// one step toward background immediately.
	transitioned := make(map[string]bool)
	for _, m := range all {
		evolved, changed, archived := l.evolver.Evolve(m, now)
		if !changed {
			continue
		}
		evolved.Tier = m.Tier
		if err := l.svc.Update(ctx, evolved); err != nil {
			log.Printf("[LifecycleManager] evolution update failed for %s: %v", m.ID, err)
			continue
		}
		stats.EvolutionChanged++
		if archived && evolved.Tier != TierBackground {
			if err := l.svc.TransitionTier(ctx, evolved, nextTierDown(evolved.Tier)); err == nil {
				transitioned[m.ID] = true
				stats.TierTransitions++
			}
		}
	}

	// Step 4: tier management, one transition per memory per pass.
	// Membership is re-evaluated against the current-score formula, not
	// the stored importance; a memory that moves carries the re-scored
	// importance with it.
	for _, t := range []Tier{TierCore, TierActive, TierBackground} {
		members, err := l.svc.GetByTier(ctx, t, uint32(l.policy.Capacity(t)))
		if err != nil {
			return stats, err
		}
		for _, m := range members {
			if transitioned[m.ID] {
				continue
			}
			current := l.evolver.scorer.CurrentScore(m.Importance, m.CreatedAt, now, m.AccessCount, m.Metadata.ContextRelevance)
			accessFreq := l.evolver.scorer.AccessFrequency(m.AccessCount)
			inactivity := now - m.LastAccessedAt
			switch {
			case l.policy.ShouldPromote(t, current, m.AccessCount, accessFreq):
				if next := nextTierUp(t); next != t {
					m.Importance = current
					if err := l.svc.TransitionTier(ctx, m, next); err == nil {
						transitioned[m.ID] = true
						stats.TierTransitions++
					}
				}
			case l.policy.ShouldDemote(t, current, inactivity):
				if next := nextTierDown(t); next != t {
					m.Importance = current
					if err := l.svc.TransitionTier(ctx, m, next); err == nil {
						transitioned[m.ID] = true
						stats.TierTransitions++
					}
				}
			}
		}
	}

	// Step 5: cleanup.
	if err := l.cleanup(ctx, now, &stats); err != nil {
		return stats, err
	}

	l.cache.PurgeStale()
	l.cache.Retune()

	stats.SuccessRate = 1.0
	return stats, nil
}

func (l *LifecycleManager) consolidate(ctx context.Context, all []*Memory, now int64) (ConsolidationStats, error) {
	result, superseded, cstats := l.consolidator.Consolidate(all, now)
	for _, m := range result {
		// Pass-through singletons are already durable at their current
		// tier; re-inserting them is a harmless idempotent overwrite.
		if err := l.svc.gateway.Insert(ctx, m.Tier, m); err != nil {
			return cstats, err
		}
	}
	for _, id := range superseded {
		for _, t := range []Tier{TierCore, TierActive, TierBackground} {
			if _, err := l.svc.gateway.DeleteByID(ctx, t, id); err != nil {
				log.Printf("[LifecycleManager] failed deleting superseded %s from %s: %v", id, t, err)
			}
		}
		l.cache.Invalidate(id, "")
	}
	l.mu.Lock()
	l.lastConsolidationTime = now
	l.mu.Unlock()
	l.svc.markConsolidated()
	return cstats, nil
}

func (l *LifecycleManager) cleanup(ctx context.Context, now int64, stats *PassStats) error {
	rule := l.policy.Rule(TierBackground)
	maxAgeMillis := int64(rule.RetentionDays) * 24 * 3600 * 1000

	for {
		cutoff := now - maxAgeMillis
		stale, err := l.svc.GetStale(ctx, TierBackground, cutoff, uint32(l.cfg.BatchSize))
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			break
		}
		deletedAny := false
		for _, m := range stale {
			if m.Importance >= rule.DemotionThreshold {
				continue
			}
			if err := l.svc.Delete(ctx, m.ID, TierBackground); err == nil {
				stats.Deleted++
				deletedAny = true
			}
		}
		if len(stale) < l.cfg.BatchSize || !deletedAny {
			break
		}
	}

	all, err := l.svc.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(all) > l.cfg.MaxTotalMemories {
		sortByImportanceDesc(all)
		overflow := all[l.cfg.MaxTotalMemories:]
		for _, m := range overflow {
			if err := l.svc.Delete(ctx, m.ID, m.Tier); err == nil {
				stats.Deleted++
			}
		}
	}
	return nil
}

// ForceConsolidation is the on-demand entry point: it runs only the
// consolidation step, skipping the rest of the pass.
func (l *LifecycleManager) ForceConsolidation(ctx context.Context) (ConsolidationStats, error) {
	v, err, _ := l.group.Do("force-consolidate", func() (interface{}, error) {
		all, err := l.svc.GetAll(ctx)
		if err != nil {
			return ConsolidationStats{}, err
		}
		return l.consolidate(ctx, all, nowMillis())
	})
	if err != nil {
		return ConsolidationStats{}, err
	}
	return v.(ConsolidationStats), nil
}
