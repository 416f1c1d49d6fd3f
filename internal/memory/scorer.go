package memory

import "math"

// Scorer computes importance by combining recency, access frequency,
// emotional value and context relevance. It holds no state beyond its
// two configured constants and never performs I/O; both scoring modes
// are deterministic given their inputs, and every output is clamped to
// [0, 1].
type Scorer struct {
	// RecencyDecayDays is τ_r, the configured recency decay constant
	// (default 30 days).
	RecencyDecayDays float64
	// MaxAccessCount is the configured saturation point for access
	// frequency (default 100).
	MaxAccessCount int
}

// NewScorer builds a Scorer with the given constants, falling back to
// the defaults for non-positive values.
func NewScorer(recencyDecayDays float64, maxAccessCount int) *Scorer {
	if recencyDecayDays <= 0 {
		recencyDecayDays = 30
	}
	if maxAccessCount <= 0 {
		maxAccessCount = 100
	}
	return &Scorer{RecencyDecayDays: recencyDecayDays, MaxAccessCount: maxAccessCount}
}

// Recency computes exp(-(now-t)/τ_r) where t and now are ms-since-
// epoch and τ_r is expressed in the same unit after conversion.
func (s *Scorer) Recency(createdAtMillis, nowMillis int64) float64 {
	tauMillis := s.RecencyDecayDays * 24 * 3600 * 1000
	if tauMillis <= 0 {
		return 0
	}
	age := float64(nowMillis - createdAtMillis)
	if age < 0 {
		age = 0
	}
	return clamp01(math.Exp(-age / tauMillis))
}

// AccessFrequency computes min(n/maxAccessCount, 1).
func (s *Scorer) AccessFrequency(accessCount int64) float64 {
	if s.MaxAccessCount <= 0 {
		return 0
	}
	f := float64(accessCount) / float64(s.MaxAccessCount)
	return clamp01(f)
}

// IngestionScore is the ingestion-time formula:
//
//	importance = 0.3*recency(createdAt) + 0.3*emotionalValue
//	           + 0.2*contextRelevance + 0.2*accessFrequency(accessCount)
//
// It weights emotional value highly because that signal is only
// available once, from upstream, at store time. accessCount is always
// 0 at ingestion, but the formula accepts it
// explicitly so callers don't need a second code path for re-scoring
// a freshly-created record.
func (s *Scorer) IngestionScore(createdAtMillis, nowMillis int64, emotionalValue, contextRelevance float64, accessCount int64) float64 {
	score := 0.3*s.Recency(createdAtMillis, nowMillis) +
		0.3*clamp01(emotionalValue) +
		0.2*clamp01(contextRelevance) +
		0.2*s.AccessFrequency(accessCount)
	return clamp01(score)
}

// CurrentScore is the ongoing-scoring formula used by the Evolver and
// tier re-evaluation; it emphasises the persistent base importance and
// accumulated usage over the one-shot ingestion signals:
//
//	importance' = 0.4*baseImportance + 0.3*recency(createdAt)
//	            + 0.2*accessFrequency(accessCount) + 0.1*contextRelevance
func (s *Scorer) CurrentScore(baseImportance float64, createdAtMillis, nowMillis int64, accessCount int64, contextRelevance float64) float64 {
	score := 0.4*clamp01(baseImportance) +
		0.3*s.Recency(createdAtMillis, nowMillis) +
		0.2*s.AccessFrequency(accessCount) +
		0.1*clamp01(contextRelevance)
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
