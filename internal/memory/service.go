// internal/memory/service.go
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
)

// gatewayAPI is the narrow surface of the Vector Gateway the Memory
// Service (and, through it, the Lifecycle Manager) depends on. The
// concrete *Gateway satisfies this trivially; tests substitute an
// in-memory fake so Service/LifecycleManager logic can be exercised
// without a live qdrant.
type gatewayAPI interface {
	Insert(ctx context.Context, t Tier, m *Memory) error
	DeleteByID(ctx context.Context, t Tier, id string) (bool, error)
	QueryByFilter(ctx context.Context, t Tier, f FilterRange) ([]*Memory, error)
	SearchByVector(ctx context.Context, t Tier, queryVector []float32, k uint64, ownerID string) ([]*Memory, error)
	Compact(ctx context.Context, t Tier) error
}

// Service is the authoritative entry point, coordinating the Scorer,
// Cache, Codec and Vector Gateway behind a per-id lock.
type Service struct {
	gateway   gatewayAPI
	cache     *Cache
	scorer    *Scorer
	policy    *Policy
	embedder  *Embedder
	locks     *idLocks
	dimension int

	consolidations atomic.Int64
}

// NewService wires the collaborators built elsewhere in the package
// into the Memory Service.
func NewService(gateway gatewayAPI, cache *Cache, scorer *Scorer, policy *Policy, embedder *Embedder, dimension int) *Service {
	return &Service{
		gateway:   gateway,
		cache:     cache,
		scorer:    scorer,
		policy:    policy,
		embedder:  embedder,
		locks:     newIDLocks(),
		dimension: dimension,
	}
}

// Draft is the Store input: a not-yet-classified memory.
type Draft struct {
	OwnerID   string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// Store computes ingestion importance and candidate tier, assigns a
// fresh id, and durably inserts the memory. The write is at-most-once
// on id since the id is generated here.
func (s *Service) Store(ctx context.Context, d Draft) (string, error) {
	if d.Content == "" {
		return "", newErr("Store", KindInvalidInput, fmt.Errorf("empty content"))
	}
	if len(d.Embedding) != s.dimension {
		return "", newErr("Store", KindInvalidInput, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(d.Embedding), s.dimension))
	}

	now := nowMillis()
	importance := s.scorer.IngestionScore(now, now, d.Metadata.EmotionalValue, d.Metadata.ContextRelevance, 0)
	tier := CandidateTier(importance)

	m := &Memory{
		ID:             uuid.NewString(),
		OwnerID:        d.OwnerID,
		Content:        d.Content,
		Embedding:      d.Embedding,
		Tier:           tier,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    0,
		Metadata:       d.Metadata,
	}

	var insertErr error
	s.locks.WithLock(m.ID, func() {
		insertErr = s.gateway.Insert(ctx, tier, m)
	})
	if insertErr != nil {
		return "", newErr("Store", KindStorageFailed, insertErr)
	}

	if tier == TierCore {
		s.cache.Put(m.ID, m, TierCore)
	}
	log.Printf("[MemoryService] stored %s in %s (importance=%.3f)", m.ID, tier, importance)
	return m.ID, nil
}

// Retrieve runs the cascading tier search: core first, then active,
// then background, stopping once k results are filled. A textual
// query is embedded through the external provider; an embedding query
// is used as-is.
func (s *Service) Retrieve(ctx context.Context, ownerID string, queryText string, queryEmbedding []float32, k int) ([]*Memory, error) {
	if k <= 0 {
		k = 5
	}
	vector := queryEmbedding
	if len(vector) == 0 {
		if queryText == "" {
			return nil, newErr("Retrieve", KindInvalidInput, fmt.Errorf("query text or embedding required"))
		}
		v, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			return nil, err
		}
		vector = v
	}

	var out []*Memory
	for _, t := range []Tier{TierCore, TierActive, TierBackground} {
		remaining := k - len(out)
		if remaining <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		found, err := s.gateway.SearchByVector(ctx, t, vector, uint64(remaining), ownerID)
		if err != nil {
			if IsTransient(err) {
				// Tolerate a disappearing tier mid-search; keep what we have.
				continue
			}
			return out, err
		}
		out = append(out, found...)
	}

	now := nowMillis()
	touched := make([]*Memory, 0, len(out))
	for _, m := range out {
		if m.OwnerID != ownerID {
			continue
		}
		m.LastAccessedAt = now
		m.AccessCount++
		touched = append(touched, m)
	}
	if len(touched) > 0 {
		s.UpdateAccess(ctx, touched)
	}
	return touched, nil
}

// UpdateAccess persists the lastAccessedAt/accessCount bump for a
// batch of memories, locking every affected id in lexicographic
// order.
func (s *Service) UpdateAccess(ctx context.Context, memories []*Memory) {
	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	byID := make(map[string]*Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}
	s.locks.WithLocks(ids, func() {
		for _, id := range ids {
			m := byID[id]
			if err := s.gateway.Insert(ctx, m.Tier, m); err != nil {
				log.Printf("[MemoryService] updateAccess failed for %s: %v", id, err)
			}
			if m.Tier == TierCore {
				s.cache.Put(id, m, TierCore)
			}
		}
	})
}

// TransitionTier performs a logical move: validate against the
// policy's minimum importance for the destination, then delete from
// the source collection and re-insert into the destination.
func (s *Service) TransitionTier(ctx context.Context, m *Memory, newTier Tier) error {
	if !newTier.Valid() {
		return newErr("TransitionTier", KindInvalidInput, fmt.Errorf("unknown tier %q", newTier))
	}
	if m.Importance < s.policy.MinImportance(newTier) {
		return newErr("TransitionTier", KindInvalidTransition, fmt.Errorf("importance %.3f below minimum for %s", m.Importance, newTier))
	}

	var opErr error
	s.locks.WithLock(m.ID, func() {
		oldTier := m.Tier
		existed, err := s.gateway.DeleteByID(ctx, oldTier, m.ID)
		if err != nil {
			opErr = newErr("TransitionTier", KindStorageFailed, err)
			return
		}
		if !existed {
			opErr = newErr("TransitionTier", KindNotFound, fmt.Errorf("memory %s not found in %s", m.ID, oldTier))
			return
		}
		moved := m.Clone()
		moved.Tier = newTier
		if err := s.gateway.Insert(ctx, newTier, &moved); err != nil {
			opErr = newErr("TransitionTier", KindStorageFailed, err)
			return
		}
		*m = moved
		s.cache.Invalidate(m.ID, oldTier)
		if newTier == TierCore {
			s.cache.Put(m.ID, m, TierCore)
		}
	})
	return opErr
}

// Update persists a caller-supplied full Memory record in place. The
// record must already exist in its tier's collection.
func (s *Service) Update(ctx context.Context, m *Memory) error {
	var opErr error
	s.locks.WithLock(m.ID, func() {
		existing, err := s.gateway.QueryByFilter(ctx, m.Tier, FilterRange{ID: m.ID, Limit: 1})
		if err != nil {
			opErr = newErr("Update", KindStorageFailed, err)
			return
		}
		if len(existing) == 0 {
			opErr = newErr("Update", KindNotFound, fmt.Errorf("memory %s not found", m.ID))
			return
		}
		if err := s.gateway.Insert(ctx, m.Tier, m); err != nil {
			opErr = newErr("Update", KindStorageFailed, err)
			return
		}
		if m.Tier == TierCore {
			s.cache.Put(m.ID, m, TierCore)
		} else {
			s.cache.Invalidate(m.ID, "")
		}
	})
	return opErr
}

// Delete removes a memory by id from whichever tier currently holds
// it.
func (s *Service) Delete(ctx context.Context, id string, tier Tier) error {
	var opErr error
	s.locks.WithLock(id, func() {
		if _, err := s.gateway.DeleteByID(ctx, tier, id); err != nil {
			opErr = newErr("Delete", KindStorageFailed, err)
			return
		}
		s.cache.Invalidate(id, "")
	})
	return opErr
}

// DeleteByOwner removes every memory filed under ownerID across all
// tiers, reporting how many were deleted. Used when the owning user
// account is removed, so the vector store can't retain memories no
// user can ever retrieve again.
func (s *Service) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, newErr("DeleteByOwner", KindInvalidInput, fmt.Errorf("empty owner id"))
	}
	deleted := 0
	for _, t := range []Tier{TierCore, TierActive, TierBackground} {
		owned, err := s.gateway.QueryByFilter(ctx, t, FilterRange{OwnerID: ownerID, Limit: 100000})
		if err != nil {
			return deleted, err
		}
		for _, m := range owned {
			if err := s.Delete(ctx, m.ID, t); err != nil {
				log.Printf("[MemoryService] deleteByOwner failed for %s: %v", m.ID, err)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// GetByTier fetches up to limit memories from a tier, used by the
// Lifecycle Manager's tier-management and cleanup passes.
func (s *Service) GetByTier(ctx context.Context, t Tier, limit uint32) ([]*Memory, error) {
	return s.gateway.QueryByFilter(ctx, t, FilterRange{Limit: limit})
}

// GetStale returns memories of tier t older than cutoffMillis, used by
// the Lifecycle Manager's cleanup pass on the background tier.
func (s *Service) GetStale(ctx context.Context, t Tier, cutoffMillis int64, limit uint32) ([]*Memory, error) {
	return s.gateway.QueryByFilter(ctx, t, FilterRange{ToMillis: cutoffMillis, Limit: limit})
}

// GetByID scans all three tiers for id, used by HTTP callers that only
// hold an id (e.g. the transitionTier and delete endpoints) and don't
// already know which tier currently holds the memory.
func (s *Service) GetByID(ctx context.Context, id string) (*Memory, error) {
	for _, t := range []Tier{TierCore, TierActive, TierBackground} {
		found, err := s.gateway.QueryByFilter(ctx, t, FilterRange{ID: id, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return found[0], nil
		}
	}
	return nil, newErr("GetByID", KindNotFound, fmt.Errorf("memory %s not found", id))
}

// GetAll fetches every memory across all three tiers, used by the
// Lifecycle Manager's pass and ForceConsolidation, and by GetStats.
func (s *Service) GetAll(ctx context.Context) ([]*Memory, error) {
	var all []*Memory
	for _, t := range []Tier{TierCore, TierActive, TierBackground} {
		found, err := s.gateway.QueryByFilter(ctx, t, FilterRange{Limit: 100000})
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return all, nil
}

// GetStats computes the aggregate per-tier view of the store.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{PerTierCount: map[Tier]int64{}}
	var sum float64
	for _, m := range all {
		stats.TotalMemories++
		stats.PerTierCount[m.Tier]++
		sum += m.Importance
	}
	if stats.TotalMemories > 0 {
		stats.AverageImportance = sum / float64(stats.TotalMemories)
	}
	stats.ConsolidationCount = s.consolidations.Load()
	return stats, nil
}

// markConsolidated lets the Lifecycle Manager record that a
// consolidation pass ran.
func (s *Service) markConsolidated() {
	s.consolidations.Add(1)
}

// sortByImportanceDesc is a small shared helper used by cleanup's
// over-capacity optimisation.
func sortByImportanceDesc(memories []*Memory) {
	sort.Slice(memories, func(i, j int) bool {
		return memories[i].Importance > memories[j].Importance
	})
}
