package memory

import (
	"log"
	"math"
	"sort"

	"github.com/google/uuid"
)

// cluster is a growing leader/canopy cluster: a centroid (importance-
// weighted mean of member embeddings) plus the members attached to it.
type cluster struct {
	centroid []float64
	members  []*Memory
}

// ConsolidationStats are the aggregate numbers published after a
// consolidation pass.
type ConsolidationStats struct {
	ClustersBuilt     int
	MembersMerged     int
	AverageImportance float64
	ProcessingMillis  int64
	SuccessRate       float64
}

// Consolidator clusters similar memories by cosine similarity
// (leader/canopy, not k-means) and merges each multi-member cluster
// into a single representative.
type Consolidator struct {
	Threshold        float64 // similarity and merge-acceptance threshold, default 0.7
	MaxAccessCount   int
	RecencyDecayDays float64
	scorer           *Scorer
}

// NewConsolidator builds a Consolidator, defaulting the threshold to
// 0.7 when cfgThreshold is non-positive.
func NewConsolidator(cfgThreshold float64, maxAccessCount int, recencyDecayDays float64) *Consolidator {
	if cfgThreshold <= 0 {
		cfgThreshold = 0.7
	}
	return &Consolidator{
		Threshold:        cfgThreshold,
		MaxAccessCount:   maxAccessCount,
		RecencyDecayDays: recencyDecayDays,
		scorer:           NewScorer(recencyDecayDays, maxAccessCount),
	}
}

// Consolidate runs the leader/canopy clustering algorithm over
// memories in the slice's given order, then merges each cluster with
// two or more members. It returns the resulting memories (merged
// representatives plus untouched singletons) and the superseded
// member ids that the caller must delete.
func (c *Consolidator) Consolidate(memories []*Memory, now int64) (result []*Memory, superseded []string, stats ConsolidationStats) {
	start := now
	clusters := c.buildClusters(memories)
	stats.ClustersBuilt = len(clusters)

	var totalImportance float64
	accepted := 0
	for _, cl := range clusters {
		if len(cl.members) == 1 {
			result = append(result, cl.members[0])
			totalImportance += cl.members[0].Importance
			accepted++
			continue
		}
		merged := c.merge(cl.members, now)
		if merged.Importance < c.Threshold {
			// Rejected merge: keep the members instead.
			result = append(result, cl.members...)
			for _, m := range cl.members {
				totalImportance += m.Importance
			}
			accepted += len(cl.members)
			continue
		}
		result = append(result, merged)
		for _, m := range cl.members {
			superseded = append(superseded, m.ID)
		}
		stats.MembersMerged += len(cl.members)
		totalImportance += merged.Importance
		accepted++
	}

	if accepted > 0 {
		stats.AverageImportance = totalImportance / float64(accepted)
	}
	stats.ProcessingMillis = nowMillis() - start
	if len(memories) > 0 {
		stats.SuccessRate = 1.0
	}
	log.Printf("[Consolidator] built %d clusters, merged %d members, avg importance %.3f",
		stats.ClustersBuilt, stats.MembersMerged, stats.AverageImportance)
	return result, superseded, stats
}

// buildClusters iterates memories in order; for each, it scans
// existing clusters in creation order and attaches to the first one
// whose centroid has cosine similarity >= Threshold, otherwise it
// starts a new cluster.
func (c *Consolidator) buildClusters(memories []*Memory) []*cluster {
	var clusters []*cluster
	for _, m := range memories {
		attached := false
		for _, cl := range clusters {
			if cosineSimilarityF64(m.Embedding, cl.centroid) >= c.Threshold {
				cl.members = append(cl.members, m)
				cl.centroid = weightedCentroid(cl.members)
				attached = true
				break
			}
		}
		if !attached {
			clusters = append(clusters, &cluster{
				centroid: toFloat64(m.Embedding),
				members:  []*Memory{m},
			})
		}
	}
	return clusters
}

// weightedCentroid recomputes a cluster's centroid as the importance-
// weighted mean of its members' embeddings (re-normalization is not
// required since cosine similarity is scale-invariant).
func weightedCentroid(members []*Memory) []float64 {
	if len(members) == 0 {
		return nil
	}
	dim := len(members[0].Embedding)
	sum := make([]float64, dim)
	var totalWeight float64
	for _, m := range members {
		w := m.Importance
		if w <= 0 {
			w = 0.001 // avoid an all-zero centroid when every member has 0 importance
		}
		totalWeight += w
		for i := 0; i < dim && i < len(m.Embedding); i++ {
			sum[i] += w * float64(m.Embedding[i])
		}
	}
	if totalWeight == 0 {
		totalWeight = 1
	}
	for i := range sum {
		sum[i] /= totalWeight
	}
	return sum
}

// merge builds the single representative for a cluster with two or
// more members: content joined in importance-times-recency order,
// importance-weighted average embedding, summed access count, and a
// key-wise metadata merge that averages numeric extras.
func (c *Consolidator) merge(members []*Memory, now int64) *Memory {
	sorted := append([]*Memory(nil), members...)
	sort.Slice(sorted, func(i, j int) bool {
		si := sorted[i].Importance * c.scorer.Recency(sorted[i].CreatedAt, now)
		sj := sorted[j].Importance * c.scorer.Recency(sorted[j].CreatedAt, now)
		return si > sj
	})

	contents := make([]string, len(sorted))
	for i, m := range sorted {
		contents[i] = m.Content
	}
	content := contents[0]
	for _, s := range contents[1:] {
		content += "\n\n" + s
	}

	embedding := toFloat32(weightedCentroid(members))

	var importanceSum float64
	var accessSum int64
	metadata := Metadata{Extra: map[string]any{}}
	numericSums := map[string]float64{}
	numericCounts := map[string]int{}
	for _, m := range members {
		accessWeight := c.scorer.AccessFrequency(m.AccessCount)
		recency := c.scorer.Recency(m.CreatedAt, now)
		importanceSum += m.Importance * recency * accessWeight
		accessSum += m.AccessCount

		metadata.EmotionalValue += m.Metadata.EmotionalValue
		metadata.ContextRelevance += m.Metadata.ContextRelevance
		if m.Metadata.Source != "" {
			metadata.Source = m.Metadata.Source
		}
		metadata.Tags = append(metadata.Tags, m.Metadata.Tags...)
		metadata.ConnectedMemories = append(metadata.ConnectedMemories, m.ID)
		for k, v := range m.Metadata.Extra {
			if f, ok := v.(float64); ok {
				numericSums[k] += f
				numericCounts[k]++
			} else {
				metadata.Extra[k] = v
			}
		}
	}
	metadata.EmotionalValue = clamp01(metadata.EmotionalValue / float64(len(members)))
	metadata.ContextRelevance = clamp01(metadata.ContextRelevance / float64(len(members)))
	for k, sum := range numericSums {
		metadata.Extra[k] = sum / float64(numericCounts[k])
	}

	importance := clamp01(importanceSum / float64(len(members)))

	merged := &Memory{
		ID:             uuid.NewString(),
		OwnerID:        sorted[0].OwnerID,
		Content:        content,
		Embedding:      embedding,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    accessSum,
		Metadata:       metadata,
	}
	merged.Tier = CandidateTier(merged.Importance)
	return merged
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// cosineSimilarityF64 compares a float32 embedding against a float64
// centroid.
func cosineSimilarityF64(a []float32, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		dot += av * b[i]
		normA += av * av
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineSimilarity compares two float32 embeddings directly; used by
// tests and by callers that already hold plain vectors.
func cosineSimilarity(a, b []float32) float64 {
	return cosineSimilarityF64(a, toFloat64(b))
}
