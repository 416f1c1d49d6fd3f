package memory

import "testing"

func TestCandidateTier(t *testing.T) {
	cases := []struct {
		importance float64
		want       Tier
	}{
		{0.95, TierCore},
		{0.8, TierCore},
		{0.79, TierActive},
		{0.4, TierActive},
		{0.39, TierBackground},
		{0, TierBackground},
	}
	for _, tc := range cases {
		if got := CandidateTier(tc.importance); got != tc.want {
			t.Errorf("CandidateTier(%v) = %v, want %v", tc.importance, got, tc.want)
		}
	}
}

func TestPolicy_ShouldPromote(t *testing.T) {
	p := DefaultPolicy()

	if !p.ShouldPromote(TierActive, 0.85, 5, 0.05) {
		t.Error("expected promotion from active when all thresholds cleared")
	}
	if p.ShouldPromote(TierActive, 0.5, 5, 0.05) {
		t.Error("did not expect promotion below importance threshold")
	}
	if p.ShouldPromote(TierActive, 0.85, 0, 0.05) {
		t.Error("did not expect promotion below minAccessCount")
	}
	if p.ShouldPromote(TierActive, 0.85, 5, 0.0) {
		t.Error("did not expect promotion below minFrequency")
	}
}

func TestPolicy_ShouldDemote(t *testing.T) {
	p := DefaultPolicy()
	day := int64(24 * 3600 * 1000)

	if !p.ShouldDemote(TierActive, 0.35, 31*day) {
		t.Error("expected demotion once inactivity exceeds maxInactivity")
	}
	if p.ShouldDemote(TierActive, 0.9, 1*day) {
		t.Error("did not expect demotion for a fresh, high-importance memory")
	}
	// importance*(1-decayRate) < demotionThreshold path, independent of inactivity.
	if !p.ShouldDemote(TierActive, 0.31, 0) {
		t.Error("expected demotion when decayed importance falls below threshold")
	}
}

func TestNextTier(t *testing.T) {
	if got := nextTierUp(TierBackground); got != TierActive {
		t.Errorf("nextTierUp(background) = %v, want active", got)
	}
	if got := nextTierUp(TierActive); got != TierCore {
		t.Errorf("nextTierUp(active) = %v, want core", got)
	}
	if got := nextTierUp(TierCore); got != TierCore {
		t.Errorf("nextTierUp(core) = %v, want core (no-op)", got)
	}
	if got := nextTierDown(TierCore); got != TierActive {
		t.Errorf("nextTierDown(core) = %v, want active", got)
	}
	if got := nextTierDown(TierActive); got != TierBackground {
		t.Errorf("nextTierDown(active) = %v, want background", got)
	}
	if got := nextTierDown(TierBackground); got != TierBackground {
		t.Errorf("nextTierDown(background) = %v, want background (no-op)", got)
	}
}

func TestNewPolicy_PerTierRules(t *testing.T) {
	core := TierRule{MinImportance: 0.9, Capacity: 10}
	active := TierRule{MinImportance: 0.5, Capacity: 20}
	background := TierRule{MinImportance: 0.1, Capacity: 30}
	p := NewPolicy(core, active, background)

	if got := p.MinImportance(TierCore); got != 0.9 {
		t.Errorf("MinImportance(core) = %v, want 0.9", got)
	}
	if got := p.Capacity(TierBackground); got != 30 {
		t.Errorf("Capacity(background) = %v, want 30", got)
	}
}
