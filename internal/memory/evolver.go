package memory

import "math"

// EvolutionConfig holds the Evolver's tunable constants.
type EvolutionConfig struct {
	AgingTauDays           float64
	MaxAccessCount         int
	ReinforcementThreshold float64
	MaxAgeDays             float64
	ArchivalThreshold      float64
	ImportanceChangeRate   float64
}

// DefaultEvolutionConfig returns the built-in evolution defaults.
func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		AgingTauDays:           60,
		MaxAccessCount:         100,
		ReinforcementThreshold: 0.6,
		MaxAgeDays:             365,
		ArchivalThreshold:      0.7,
		ImportanceChangeRate:   0.2,
	}
}

// EvolveStats are the per-cycle counters the Evolver accumulates for
// the Lifecycle Manager's reporting.
type EvolveStats struct {
	Evaluated  int64
	Changed    int64
	Reinforced int64
	Archived   int64
}

// Evolver computes an aging factor, a reinforcement score and an
// archival probability per memory per cycle, and derives a new
// importance and tier recommendation from them. Important and
// frequently accessed memories age slower.
type Evolver struct {
	cfg    EvolutionConfig
	scorer *Scorer
	stats  EvolveStats
}

// NewEvolver builds an Evolver against cfg (falling back to defaults
// for non-positive fields) and the given Scorer's recency constants.
func NewEvolver(cfg EvolutionConfig, scorer *Scorer) *Evolver {
	d := DefaultEvolutionConfig()
	if cfg.AgingTauDays <= 0 {
		cfg.AgingTauDays = d.AgingTauDays
	}
	if cfg.MaxAccessCount <= 0 {
		cfg.MaxAccessCount = d.MaxAccessCount
	}
	if cfg.ReinforcementThreshold <= 0 {
		cfg.ReinforcementThreshold = d.ReinforcementThreshold
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = d.MaxAgeDays
	}
	if cfg.ArchivalThreshold <= 0 {
		cfg.ArchivalThreshold = d.ArchivalThreshold
	}
	if cfg.ImportanceChangeRate <= 0 {
		cfg.ImportanceChangeRate = d.ImportanceChangeRate
	}
	return &Evolver{cfg: cfg, scorer: scorer}
}

// Evolve runs one cycle against m and returns the evolved memory (a
// clone; the original is left untouched), whether anything changed,
// and whether the memory was marked for archival. When nothing
// changed, callers should skip persisting.
func (e *Evolver) Evolve(m *Memory, now int64) (evolved *Memory, changed, archived bool) {
	e.stats.Evaluated++

	ageMillis := now - m.CreatedAt
	if ageMillis < 0 {
		ageMillis = 0
	}
	tauMillis := e.cfg.AgingTauDays * 24 * 3600 * 1000

	accessModifier := clamp01(float64(m.AccessCount) / float64(e.cfg.MaxAccessCount))

	alpha := math.Exp(-float64(ageMillis)/tauMillis) * (1 + 0.5*m.Importance + accessModifier)

	recencyOfAccess := e.scorer.Recency(m.LastAccessedAt, now)
	r := 0.4*recencyOfAccess + 0.3*clamp01(m.Metadata.EmotionalValue) + 0.3*clamp01(m.Metadata.ContextRelevance)
	if r > e.cfg.ReinforcementThreshold {
		e.stats.Reinforced++
	}

	maxAgeMillis := e.cfg.MaxAgeDays * 24 * 3600 * 1000
	ageRatio := 1.0
	if maxAgeMillis > 0 {
		ageRatio = clamp01(float64(ageMillis) / maxAgeMillis)
	}
	p := 0.4*ageRatio + 0.3*(1-m.Importance) + 0.3*(1-accessModifier)
	archived = p > e.cfg.ArchivalThreshold
	if archived {
		e.stats.Archived++
	}

	delta := (r - (1 - alpha)) * e.cfg.ImportanceChangeRate
	newImportance := clamp01(m.Importance + delta)

	var newTier Tier
	if archived {
		newTier = TierBackground
	} else {
		newTier = CandidateTier(newImportance)
	}

	changed = newImportance != m.Importance || newTier != m.Tier
	if !changed {
		return m, false, archived
	}

	next := m.Clone()
	next.Importance = newImportance
	next.Tier = newTier
	next.Metadata.AppendEvolution(EvolutionEvent{
		Timestamp: now,
		Aging:     alpha,
		Reinforce: r,
		Delta:     delta,
	})
	e.stats.Changed++
	return &next, true, archived
}

// Stats returns a snapshot of the Evolver's cumulative counters.
func (e *Evolver) Stats() EvolveStats {
	return e.stats
}
