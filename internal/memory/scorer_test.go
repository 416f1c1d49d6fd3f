package memory

import (
	"math"
	"testing"
)

func TestScorer_Recency(t *testing.T) {
	s := NewScorer(30, 100)
	now := int64(1000 * 24 * 3600 * 1000)

	if got := s.Recency(now, now); got != 1.0 {
		t.Errorf("Recency at age 0 = %v, want 1.0", got)
	}

	old := now - 60*24*3600*1000
	if got := s.Recency(old, now); got <= 0 || got >= 1 {
		t.Errorf("Recency at 60 days = %v, want in (0,1)", got)
	}

	future := now + 1000
	if got := s.Recency(future, now); got != 1.0 {
		t.Errorf("Recency with createdAt in the future = %v, want 1.0 (age clamped to 0)", got)
	}
}

func TestScorer_AccessFrequency(t *testing.T) {
	s := NewScorer(30, 100)

	cases := []struct {
		count int64
		want  float64
	}{
		{0, 0},
		{50, 0.5},
		{100, 1.0},
		{200, 1.0},
	}
	for _, tc := range cases {
		if got := s.AccessFrequency(tc.count); got != tc.want {
			t.Errorf("AccessFrequency(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}

func TestScorer_IngestionScore_Weights(t *testing.T) {
	s := NewScorer(30, 100)
	now := int64(1000 * 24 * 3600 * 1000)

	// All inputs maxed should saturate at 1.0.
	got := s.IngestionScore(now, now, 1, 1, 100)
	if got != 1.0 {
		t.Errorf("IngestionScore with saturated inputs = %v, want 1.0", got)
	}

	// All inputs zeroed (except recency, which is 1 at age 0) should equal
	// the recency weight alone.
	got = s.IngestionScore(now, now, 0, 0, 0)
	if want := 0.3; got != want {
		t.Errorf("IngestionScore with only recency = %v, want %v", got, want)
	}
}

func TestScorer_CurrentScore_Weights(t *testing.T) {
	s := NewScorer(30, 100)
	now := int64(1000 * 24 * 3600 * 1000)

	// The weights sum to 1; float64 rounding leaves the sum one ulp
	// below 1.0.
	got := s.CurrentScore(1, now, now, 100, 1)
	if math.Abs(got-1.0) > 1e-12 {
		t.Errorf("CurrentScore with saturated inputs = %v, want 1.0", got)
	}

	got = s.CurrentScore(0, now, now, 0, 0)
	if want := 0.3; got != want {
		t.Errorf("CurrentScore with only recency = %v, want %v", got, want)
	}
}

func TestScorer_Defaults(t *testing.T) {
	s := NewScorer(0, 0)
	if s.RecencyDecayDays != 30 {
		t.Errorf("default RecencyDecayDays = %v, want 30", s.RecencyDecayDays)
	}
	if s.MaxAccessCount != 100 {
		t.Errorf("default MaxAccessCount = %v, want 100", s.MaxAccessCount)
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0: 0, 0.5: 0.5, 1: 1, 2: 1}
	for in, want := range cases {
		if got := clamp01(in); got != want {
			t.Errorf("clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}
