// internal/memory/gateway.go
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// Gateway is a thin, strongly-typed facade over the external vector
// store with one logical collection per tier (memory_<tier>). It is
// stateless apart from the held client handle.
type Gateway struct {
	Client    *qdrant.Client
	Prefix    string // collection name prefix, default "memory"
	Codec     *Codec
	Dimension int // configured embedding dimension, enforced on every insert
}

// NewGateway connects to qdrant (strips the URL scheme, forces the
// gRPC port) and ensures the three per-tier collections and their
// payload field indexes exist. The supplied codec is used internally
// to compress on insert and transparently decompress on every read
// path, so callers always see plain Memory.Content.
func NewGateway(ctx context.Context, qdrantURL, apiKey string, dimension int, codec *Codec) (*Gateway, error) {
	qdrantURL = strings.TrimPrefix(qdrantURL, "http://")
	qdrantURL = strings.TrimPrefix(qdrantURL, "https://")
	host := qdrantURL
	if idx := strings.Index(qdrantURL, ":"); idx != -1 {
		host = qdrantURL[:idx]
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   6334,
		APIKey: apiKey,
		UseTLS: false,
	})
	if err != nil {
		return nil, newErr("NewGateway", KindStorageFailed, fmt.Errorf("failed to create qdrant client: %w", err))
	}

	g := &Gateway{Client: client, Prefix: "memory", Codec: codec, Dimension: dimension}
	for _, t := range []Tier{TierCore, TierActive, TierBackground} {
		if err := g.ensureCollection(ctx, t, dimension); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Gateway) collectionName(t Tier) string {
	return g.Prefix + "_" + string(t)
}

// checkTier rejects operations addressed at a tier no collection was
// ever created for.
func (g *Gateway) checkTier(op string, t Tier) error {
	if !t.Valid() {
		return newErr(op, KindStorageFailed, fmt.Errorf("%w: no collection for tier %q", ErrCollectionMissing, string(t)))
	}
	return nil
}

func (g *Gateway) ensureCollection(ctx context.Context, t Tier, dimension int) error {
	name := g.collectionName(t)
	exists, err := g.Client.CollectionExists(ctx, name)
	if err != nil {
		return newErr("ensureCollection", KindTransient, fmt.Errorf("check collection %s: %w", name, err))
	}
	if !exists {
		if err := g.Client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return newErr("ensureCollection", KindStorageFailed, fmt.Errorf("create collection %s: %w", name, err))
		}
	}

	indexes := []struct {
		field string
		typ   qdrant.PayloadSchemaType
	}{
		{"owner_id", qdrant.PayloadSchemaType_Keyword},
		{"tier", qdrant.PayloadSchemaType_Keyword},
		{"created_at", qdrant.PayloadSchemaType_Integer},
		{"importance", qdrant.PayloadSchemaType_Float},
	}
	for _, idx := range indexes {
		fieldType := qdrant.FieldType(idx.typ)
		if _, err := g.Client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      idx.field,
			FieldType:      &fieldType,
			Wait:           boolPtr(true),
		}); err != nil {
			log.Printf("[Gateway] warning: failed to create index %s on %s (may already exist): %v", idx.field, name, err)
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// toPayload converts a Memory (already compressed by the Codec, if
// applicable) into the qdrant payload map. content_blob holds either
// the raw content or a compressed blob; the compressed flag
// distinguishes the two for the read path.
func toPayload(m *Memory, storedContent []byte, compressed bool) map[string]*qdrant.Value {
	tagValues := make([]*qdrant.Value, len(m.Metadata.Tags))
	for i, tag := range m.Metadata.Tags {
		tagValues[i] = qdrant.NewValueString(tag)
	}
	connValues := make([]*qdrant.Value, len(m.Metadata.ConnectedMemories))
	for i, id := range m.Metadata.ConnectedMemories {
		connValues[i] = qdrant.NewValueString(id)
	}

	return map[string]*qdrant.Value{
		"memory_id":         qdrant.NewValueString(m.ID),
		"owner_id":          qdrant.NewValueString(m.OwnerID),
		"content_blob":      qdrant.NewValueBytes(storedContent),
		"compressed":        qdrant.NewValueBool(compressed),
		"tier":              qdrant.NewValueString(string(m.Tier)),
		"importance":        qdrant.NewValueDouble(m.Importance),
		"created_at":        qdrant.NewValueInt(m.CreatedAt),
		"last_accessed_at":  qdrant.NewValueInt(m.LastAccessedAt),
		"access_count":      qdrant.NewValueInt(m.AccessCount),
		"emotional_value":   qdrant.NewValueDouble(m.Metadata.EmotionalValue),
		"context_relevance": qdrant.NewValueDouble(m.Metadata.ContextRelevance),
		"source":            qdrant.NewValueString(m.Metadata.Source),
		"tags":              &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: tagValues}}},
		"connected":         &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: connValues}}},
		"original_size":     qdrant.NewValueInt(int64(m.OriginalSize)),
		"compressed_size":   qdrant.NewValueInt(int64(m.CompressedSize)),
	}
}

// Insert appends a memory (already tier-classified) to the tier's
// collection; re-insertion on the same id replaces it (idempotent).
// The content is compressed through the gateway's codec before it is
// written; a compression failure degrades to storing the memory
// uncompressed rather than failing the write.
func (g *Gateway) Insert(ctx context.Context, t Tier, m *Memory) error {
	if err := g.checkTier("Insert", t); err != nil {
		return err
	}
	if len(m.Embedding) == 0 {
		return newErr("Insert", KindInvalidInput, fmt.Errorf("memory %s has no embedding", m.ID))
	}
	if g.Dimension > 0 && len(m.Embedding) != g.Dimension {
		return newErr("Insert", KindInvalidInput, fmt.Errorf("%w: memory %s has dimension %d, collection expects %d",
			ErrDimensionMismatch, m.ID, len(m.Embedding), g.Dimension))
	}
	storedContent, compressed := g.Codec.Encode(m)
	m.OriginalSize = len(m.Content)
	m.CompressedSize = len(storedContent)
	if m.OriginalSize > 0 {
		m.CompressionRatio = float64(m.CompressedSize) / float64(m.OriginalSize)
	}
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(m.ID),
		Vectors: qdrant.NewVectors(m.Embedding...),
		Payload: toPayload(m, storedContent, compressed),
	}
	_, err := g.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: g.collectionName(t),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return newErr("Insert", KindTransient, err)
	}
	return nil
}

// DeleteByID removes id from tier t's collection, reporting whether a
// row was actually removed.
func (g *Gateway) DeleteByID(ctx context.Context, t Tier, id string) (bool, error) {
	if err := g.checkTier("DeleteByID", t); err != nil {
		return false, err
	}
	existing, err := g.fetchByID(ctx, t, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	_, err = g.Client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: g.collectionName(t),
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewIDUUID(id)}),
	})
	if err != nil {
		return false, newErr("DeleteByID", KindTransient, err)
	}
	return true, nil
}

// FilterRange expresses the gateway's limited predicate language:
// equality on id/owner/tier, range on the creation timestamp.
type FilterRange struct {
	ID         string // exact match, optional
	Tier       Tier   // exact match, optional
	OwnerID    string // exact match, optional
	FromMillis int64  // inclusive, 0 = unbounded
	ToMillis   int64  // inclusive, 0 = unbounded
	Limit      uint32
}

// QueryByFilter scans tier t's collection for rows matching f.
func (g *Gateway) QueryByFilter(ctx context.Context, t Tier, f FilterRange) ([]*Memory, error) {
	if err := g.checkTier("QueryByFilter", t); err != nil {
		return nil, err
	}
	must := []*qdrant.Condition{}
	if f.ID != "" {
		must = append(must, qdrant.NewMatchKeyword("memory_id", f.ID))
	}
	if f.OwnerID != "" {
		must = append(must, qdrant.NewMatchKeyword("owner_id", f.OwnerID))
	}
	must = append(must, qdrant.NewMatchKeyword("tier", string(t)))
	if f.FromMillis > 0 || f.ToMillis > 0 {
		r := &qdrant.Range{}
		if f.FromMillis > 0 {
			v := float64(f.FromMillis)
			r.Gte = &v
		}
		if f.ToMillis > 0 {
			v := float64(f.ToMillis)
			r.Lte = &v
		}
		must = append(must, qdrant.NewRange("created_at", r))
	}

	limit := f.Limit
	if limit == 0 {
		limit = 1000
	}

	points, err := g.Client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: g.collectionName(t),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &limit,
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, newErr("QueryByFilter", KindTransient, err)
	}

	out := make([]*Memory, 0, len(points))
	for _, p := range points {
		out = append(out, g.fromScrolledPoint(t, p))
	}
	return out, nil
}

func (g *Gateway) fetchByID(ctx context.Context, t Tier, id string) (*Memory, error) {
	results, err := g.QueryByFilter(ctx, t, FilterRange{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// SearchByVector returns up to k nearest neighbours from tier t's
// collection by cosine distance, optionally filtered by owner.
func (g *Gateway) SearchByVector(ctx context.Context, t Tier, queryVector []float32, k uint64, ownerID string) ([]*Memory, error) {
	if err := g.checkTier("SearchByVector", t); err != nil {
		return nil, err
	}
	if g.Dimension > 0 && len(queryVector) != g.Dimension {
		return nil, newErr("SearchByVector", KindInvalidInput, fmt.Errorf("%w: query has dimension %d, collection expects %d",
			ErrDimensionMismatch, len(queryVector), g.Dimension))
	}
	var filter *qdrant.Filter
	if ownerID != "" {
		filter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatchKeyword("owner_id", ownerID)}}
	}

	result, err := g.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: g.collectionName(t),
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         filter,
		Limit:          &k,
		WithVectors:    qdrant.NewWithVectors(true),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, newErr("SearchByVector", KindTransient, err)
	}

	out := make([]*Memory, 0, len(result))
	for _, p := range result {
		out = append(out, g.fromScoredPoint(t, p))
	}
	return out, nil
}

// Compact is a best-effort optimization hook; qdrant does not expose a
// direct "compact now" RPC over this client, so this degrades to
// touching the collection info, which is enough to surface
// connectivity failures without blocking the caller.
func (g *Gateway) Compact(ctx context.Context, t Tier) error {
	_, err := g.Client.GetCollectionInfo(ctx, g.collectionName(t))
	if err != nil {
		return newErr("Compact", KindTransient, err)
	}
	return nil
}

// decodeContent reverses the codec transform applied at Insert time.
// A decode failure degrades to treating the blob as plain content,
// matching the "compression never fails the parent operation" rule.
func (g *Gateway) decodeContent(payload map[string]*qdrant.Value) string {
	blob := getBytes(payload, "content_blob")
	compressed := getBool(payload, "compressed")
	if g.Codec == nil {
		return string(blob)
	}
	rec, err := g.Codec.Decode(blob, compressed)
	if err != nil {
		return string(blob)
	}
	return rec.Content
}

func (g *Gateway) fromScrolledPoint(t Tier, p *qdrant.RetrievedPoint) *Memory {
	m := &Memory{Tier: t}
	payload := p.GetPayload()
	m.ID = getString(payload, "memory_id")
	m.OwnerID = getString(payload, "owner_id")
	m.Content = g.decodeContent(payload)
	m.Importance = getFloat(payload, "importance")
	m.CreatedAt = getInt(payload, "created_at")
	m.LastAccessedAt = getInt(payload, "last_accessed_at")
	m.AccessCount = getInt(payload, "access_count")
	m.Metadata.EmotionalValue = getFloat(payload, "emotional_value")
	m.Metadata.ContextRelevance = getFloat(payload, "context_relevance")
	m.Metadata.Source = getString(payload, "source")
	m.Metadata.Tags = getStringSlice(payload, "tags")
	m.Metadata.ConnectedMemories = getStringSlice(payload, "connected")
	m.OriginalSize = int(getInt(payload, "original_size"))
	m.CompressedSize = int(getInt(payload, "compressed_size"))
	if vecs := p.GetVectors(); vecs != nil {
		if dense := vecs.GetVector(); dense != nil {
			m.Embedding = dense.GetData()
		}
	}
	return m
}

func (g *Gateway) fromScoredPoint(t Tier, p *qdrant.ScoredPoint) *Memory {
	m := &Memory{Tier: t}
	payload := p.GetPayload()
	m.ID = getString(payload, "memory_id")
	m.OwnerID = getString(payload, "owner_id")
	m.Content = g.decodeContent(payload)
	m.Importance = getFloat(payload, "importance")
	m.CreatedAt = getInt(payload, "created_at")
	m.LastAccessedAt = getInt(payload, "last_accessed_at")
	m.AccessCount = getInt(payload, "access_count")
	m.Metadata.EmotionalValue = getFloat(payload, "emotional_value")
	m.Metadata.ContextRelevance = getFloat(payload, "context_relevance")
	m.Metadata.Source = getString(payload, "source")
	m.Metadata.Tags = getStringSlice(payload, "tags")
	m.Metadata.ConnectedMemories = getStringSlice(payload, "connected")
	m.OriginalSize = int(getInt(payload, "original_size"))
	m.CompressedSize = int(getInt(payload, "compressed_size"))
	if vecs := p.GetVectors(); vecs != nil {
		if dense := vecs.GetVector(); dense != nil {
			m.Embedding = dense.GetData()
		}
	}
	return m
}

// --- payload extraction helpers ---

func getString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getBytes(payload map[string]*qdrant.Value, key string) []byte {
	if v, ok := payload[key]; ok {
		return v.GetBytesValue()
	}
	return nil
}

func getBool(payload map[string]*qdrant.Value, key string) bool {
	if v, ok := payload[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func getInt(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func getFloat(payload map[string]*qdrant.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}

func getStringSlice(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}
