package memory

// TierRule holds one tier's knobs: capacity/retention bounds plus the
// promotion and demotion thresholds.
type TierRule struct {
	MinImportance       float64
	Capacity            int
	RetentionDays       int // 0 = infinite retention (core)
	PromotionThreshold  float64
	DemotionThreshold   float64
	MinAccessCount      int64
	MinFrequency        float64
	MaxInactivityMillis int64
	DecayRate           float64
}

// Policy is the tier table plus its promotion/demotion predicates.
type Policy struct {
	rules map[Tier]TierRule
}

// DefaultPolicy returns the built-in tier table.
func DefaultPolicy() *Policy {
	const day = int64(24 * 3600 * 1000)
	return &Policy{rules: map[Tier]TierRule{
		TierCore: {
			MinImportance:      0.8,
			Capacity:           1000,
			RetentionDays:      0,
			PromotionThreshold: 0.9,
			DemotionThreshold:  0.7,
			MinAccessCount:     0,
			MinFrequency:       0,
			DecayRate:          0.05,
		},
		TierActive: {
			MinImportance:       0.4,
			Capacity:            5000,
			RetentionDays:       30,
			PromotionThreshold:  0.8,
			DemotionThreshold:   0.3,
			MinAccessCount:      1,
			MinFrequency:        0.01,
			MaxInactivityMillis: 30 * day,
			DecayRate:           0.1,
		},
		TierBackground: {
			MinImportance:       0.0,
			Capacity:            10000,
			RetentionDays:       90,
			PromotionThreshold:  0.4,
			DemotionThreshold:   0.0,
			MaxInactivityMillis: 90 * day,
			DecayRate:           0.15,
		},
	}}
}

// NewPolicy builds a Policy from externally configured rules (one per
// tier). Each rule is used as given; no default rule is substituted.
func NewPolicy(core, active, background TierRule) *Policy {
	return &Policy{rules: map[Tier]TierRule{
		TierCore:       core,
		TierActive:     active,
		TierBackground: background,
	}}
}

// Rule returns the configured rule for t.
func (p *Policy) Rule(t Tier) TierRule {
	return p.rules[t]
}

// Capacity returns the configured capacity for t.
func (p *Policy) Capacity(t Tier) int {
	return p.rules[t].Capacity
}

// MinImportance returns the configured minimum importance for t, used
// by transitionTier's validation in the Memory Service.
func (p *Policy) MinImportance(t Tier) float64 {
	return p.rules[t].MinImportance
}

// ShouldPromote reports whether a memory in tier t clears every
// promotion gate: importance at or above the promotion threshold, and
// access count and frequency at or above the tier's minimums.
func (p *Policy) ShouldPromote(t Tier, importance float64, accessCount int64, accessFrequency float64) bool {
	r := p.rules[t]
	return importance >= r.PromotionThreshold &&
		accessCount >= r.MinAccessCount &&
		accessFrequency >= r.MinFrequency
}

// ShouldDemote reports whether a memory in tier t should drop a tier:
// either its inactivity period exceeds the tier's maximum, or its
// decayed importance falls below the demotion threshold.
func (p *Policy) ShouldDemote(t Tier, importance float64, inactivityMillis int64) bool {
	r := p.rules[t]
	if r.MaxInactivityMillis > 0 && inactivityMillis > r.MaxInactivityMillis {
		return true
	}
	return importance*(1-r.DecayRate) < r.DemotionThreshold
}

// nextTierUp and nextTierDown encode the one-step-at-a-time transition
// ordering: background <-> active <-> core. A direct background->core
// jump is never produced within a single cycle.
func nextTierUp(t Tier) Tier {
	switch t {
	case TierBackground:
		return TierActive
	case TierActive:
		return TierCore
	default:
		return TierCore
	}
}

func nextTierDown(t Tier) Tier {
	switch t {
	case TierCore:
		return TierActive
	case TierActive:
		return TierBackground
	default:
		return TierBackground
	}
}
