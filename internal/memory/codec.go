package memory

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/klauspost/compress/flate"
)

// stableRecord is the subset of a Memory that gets serialized for
// compression: everything except the live embedding, which is kept
// uncompressed alongside the record by the Vector Gateway.
type stableRecord struct {
	ID         string   `json:"id"`
	OwnerID    string   `json:"ownerId"`
	Content    string   `json:"content"`
	Tier       Tier     `json:"tier"`
	Importance float64  `json:"importance"`
	CreatedAt  int64    `json:"createdAt"`
	Metadata   Metadata `json:"metadata"`
}

// CodecStats are the aggregate statistics the codec maintains per
// tier.
type CodecStats struct {
	CumulativeOriginal   int64
	CumulativeCompressed int64
	Count                int64
	EMARatio             float64 // exponential moving ratio
}

// Codec serializes a memory's stable fields, compresses at a
// tier-specific target ratio against a deflate-family algorithm, and
// decompresses on read. Compression failure never fails the parent
// write; it degrades to the uncompressed form.
type Codec struct {
	mu              sync.Mutex
	minCompressSize int
	tierRatio       map[Tier]float64
	stats           map[Tier]*CodecStats
	emaAlpha        float64
}

// NewCodec builds a Codec, defaulting minCompressSize to 1 KiB and the
// core/active/background target ratios to 0.8/0.6/0.4.
func NewCodec(minCompressSize int, coreRatio, activeRatio, backgroundRatio float64) *Codec {
	if minCompressSize <= 0 {
		minCompressSize = 1024
	}
	ratio := func(v, def float64) float64 {
		if v <= 0 || v > 1 {
			return def
		}
		return v
	}
	return &Codec{
		minCompressSize: minCompressSize,
		tierRatio: map[Tier]float64{
			TierCore:       ratio(coreRatio, 0.8),
			TierActive:     ratio(activeRatio, 0.6),
			TierBackground: ratio(backgroundRatio, 0.4),
		},
		stats: map[Tier]*CodecStats{
			TierCore:       {},
			TierActive:     {},
			TierBackground: {},
		},
		emaAlpha: 0.2,
	}
}

// effortFor maps a target ratio to a deflate effort level:
// floor((1 - targetRatio) * 9), clamped to the valid range.
func effortFor(targetRatio float64) int {
	effort := int((1 - targetRatio) * 9)
	if effort < flate.NoCompression {
		effort = flate.NoCompression
	}
	if effort > flate.BestCompression {
		effort = flate.BestCompression
	}
	return effort
}

// Encode serializes and conditionally compresses a memory for the
// given tier, returning the bytes to persist and whether the result
// is compressed. On any encoding error it returns the uncompressed
// serialization and false, matching the "never fails the parent
// write" rule.
func (c *Codec) Encode(m *Memory) (payload []byte, compressed bool) {
	rec := stableRecord{
		ID: m.ID, OwnerID: m.OwnerID, Content: m.Content,
		Tier: m.Tier, Importance: m.Importance, CreatedAt: m.CreatedAt,
		Metadata: m.Metadata,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return []byte(m.Content), false
	}

	c.mu.Lock()
	ratio := c.tierRatio[m.Tier]
	c.mu.Unlock()
	if ratio == 0 {
		ratio = 0.6
	}

	if len(raw) < c.minCompressSize {
		c.recordStats(m.Tier, len(raw), len(raw))
		return raw, false
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, effortFor(ratio))
	if err != nil {
		c.recordStats(m.Tier, len(raw), len(raw))
		return raw, false
	}
	if _, err := w.Write(raw); err != nil {
		c.recordStats(m.Tier, len(raw), len(raw))
		return raw, false
	}
	if err := w.Close(); err != nil {
		c.recordStats(m.Tier, len(raw), len(raw))
		return raw, false
	}

	compressedBytes := buf.Bytes()
	if len(compressedBytes) >= len(raw) {
		// Compression didn't help; store uncompressed.
		c.recordStats(m.Tier, len(raw), len(raw))
		return raw, false
	}
	c.recordStats(m.Tier, len(raw), len(compressedBytes))
	return compressedBytes, true
}

// Decode reverses Encode. It is idempotent on uncompressed input: if
// flate decompression fails, the input is assumed already-uncompressed
// JSON and returned as-is.
func (c *Codec) Decode(payload []byte, compressed bool) (stableRecord, error) {
	raw := payload
	if compressed {
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			// Degrade: assume payload was actually uncompressed.
			raw = payload
		} else {
			raw = buf.Bytes()
		}
	}
	var rec stableRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return stableRecord{}, err
	}
	return rec, nil
}

func (c *Codec) recordStats(tier Tier, originalSize, compressedSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats[tier]
	if st == nil {
		st = &CodecStats{}
		c.stats[tier] = st
	}
	st.CumulativeOriginal += int64(originalSize)
	st.CumulativeCompressed += int64(compressedSize)
	st.Count++
	ratio := 1.0
	if originalSize > 0 {
		ratio = float64(compressedSize) / float64(originalSize)
	}
	if st.Count == 1 {
		st.EMARatio = ratio
	} else {
		st.EMARatio = c.emaAlpha*ratio + (1-c.emaAlpha)*st.EMARatio
	}
}

// Stats returns a snapshot of the codec's aggregate statistics for a
// tier.
func (c *Codec) Stats(tier Tier) CodecStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.stats[tier]; st != nil {
		return *st
	}
	return CodecStats{}
}
