package memory

import (
	"context"
	"sync"
)

// fakeGateway is an in-memory stand-in for the Vector Gateway,
// satisfying gatewayAPI so Service/LifecycleManager/Consolidator
// integration can be exercised without a live qdrant instance.
type fakeGateway struct {
	mu   sync.Mutex
	rows map[Tier]map[string]*Memory
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		rows: map[Tier]map[string]*Memory{
			TierCore:       {},
			TierActive:     {},
			TierBackground: {},
		},
	}
}

func (f *fakeGateway) Insert(_ context.Context, t Tier, m *Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[t][m.ID] = m.Clone().withPointer()
	return nil
}

func (f *fakeGateway) DeleteByID(_ context.Context, t Tier, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[t][id]; !ok {
		return false, nil
	}
	delete(f.rows[t], id)
	return true, nil
}

func (f *fakeGateway) QueryByFilter(_ context.Context, t Tier, flt FilterRange) ([]*Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Memory
	for _, m := range f.rows[t] {
		if flt.ID != "" && m.ID != flt.ID {
			continue
		}
		if flt.OwnerID != "" && m.OwnerID != flt.OwnerID {
			continue
		}
		if flt.FromMillis > 0 && m.CreatedAt < flt.FromMillis {
			continue
		}
		if flt.ToMillis > 0 && m.CreatedAt > flt.ToMillis {
			continue
		}
		out = append(out, m.Clone().withPointer())
		if flt.Limit > 0 && uint32(len(out)) >= flt.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeGateway) SearchByVector(_ context.Context, t Tier, query []float32, k uint64, ownerID string) ([]*Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type scored struct {
		m   *Memory
		sim float64
	}
	var all []scored
	for _, m := range f.rows[t] {
		if ownerID != "" && m.OwnerID != ownerID {
			continue
		}
		all = append(all, scored{m: m, sim: cosineSimilarity(query, m.Embedding)})
	}
	// simple selection sort for the top-k, good enough for small test fixtures.
	out := make([]*Memory, 0, k)
	for i := 0; i < len(all) && uint64(len(out)) < k; i++ {
		best := i
		for j := i + 1; j < len(all); j++ {
			if all[j].sim > all[best].sim {
				best = j
			}
		}
		all[i], all[best] = all[best], all[i]
		out = append(out, all[i].m.Clone().withPointer())
	}
	return out, nil
}

func (f *fakeGateway) Compact(_ context.Context, t Tier) error {
	return nil
}

func (f *fakeGateway) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tier := range f.rows {
		n += len(tier)
	}
	return n
}

// withPointer is a small helper so Clone() (which returns a value)
// can be stored/returned as a *Memory without an extra named local at
// every call site above.
func (m Memory) withPointer() *Memory {
	return &m
}
