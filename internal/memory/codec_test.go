package memory

import (
	"strings"
	"testing"
)

func TestCodec_SmallPayloadStaysUncompressed(t *testing.T) {
	c := NewCodec(1024, 0.8, 0.6, 0.4)
	m := &Memory{ID: "m1", Content: "short", Tier: TierCore}

	payload, compressed := c.Encode(m)
	if compressed {
		t.Error("expected a payload under minCompressSize to stay uncompressed")
	}
	if len(payload) == 0 {
		t.Error("expected a non-empty payload")
	}
}

func TestCodec_LargePayloadCompresses(t *testing.T) {
	c := NewCodec(64, 0.8, 0.6, 0.4)
	m := &Memory{
		ID:      "m1",
		Tier:    TierBackground,
		Content: strings.Repeat("the quick brown fox jumps over the lazy dog ", 50),
	}

	payload, compressed := c.Encode(m)
	if !compressed {
		t.Fatal("expected a large, repetitive payload to compress")
	}
	if len(payload) == 0 {
		t.Error("expected a non-empty compressed payload")
	}
}

func TestCodec_EncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec(64, 0.8, 0.6, 0.4)
	m := &Memory{
		ID:      "m1",
		OwnerID: "u1",
		Tier:    TierBackground,
		Content: strings.Repeat("round trip content ", 100),
		Metadata: Metadata{
			Tags: []string{"a", "b"},
		},
	}

	payload, compressed := c.Encode(m)
	rec, err := c.Decode(payload, compressed)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rec.Content != m.Content {
		t.Errorf("round-tripped content mismatch: got %d bytes, want %d", len(rec.Content), len(m.Content))
	}
	if rec.ID != m.ID {
		t.Errorf("round-tripped ID = %q, want %q", rec.ID, m.ID)
	}
}

func TestCodec_DecodeUncompressedIsIdempotent(t *testing.T) {
	c := NewCodec(1024, 0.8, 0.6, 0.4)
	m := &Memory{ID: "m1", Content: "short", Tier: TierCore}

	payload, compressed := c.Encode(m)
	rec, err := c.Decode(payload, compressed)
	if err != nil {
		t.Fatalf("Decode of uncompressed payload failed: %v", err)
	}
	if rec.Content != "short" {
		t.Errorf("Content = %q, want %q", rec.Content, "short")
	}
}

func TestCodec_StatsAccumulate(t *testing.T) {
	c := NewCodec(1024, 0.8, 0.6, 0.4)
	m := &Memory{ID: "m1", Content: "short", Tier: TierCore}
	c.Encode(m)
	c.Encode(m)

	stats := c.Stats(TierCore)
	if stats.Count != 2 {
		t.Errorf("Count = %d, want 2", stats.Count)
	}
}

func TestEffortFor(t *testing.T) {
	if got := effortFor(0.8); got != 1 {
		t.Errorf("effortFor(0.8) = %d, want 1", got)
	}
	if got := effortFor(0.0); got > 9 {
		t.Errorf("effortFor(0.0) = %d, want <= 9", got)
	}
}
