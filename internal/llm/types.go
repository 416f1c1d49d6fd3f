package llm

import (
	"context"
	"time"
)

// Kind routes a request to its queue. Embedding calls sit on the
// memory-retrieval hot path and are always served first; generation
// calls ride the background queue.
type Kind int

const (
	KindEmbedding Kind = iota
	KindGeneration
)

func (k Kind) String() string {
	if k == KindEmbedding {
		return "embedding"
	}
	return "generation"
}

// Request is one queued call to an upstream model endpoint.
type Request struct {
	ID      string
	Kind    Kind
	Context context.Context

	URL     string
	Payload map[string]interface{}

	// Response handling
	ResponseCh chan<- *Response
	ErrorCh    chan<- error

	SubmitTime time.Time
	Timeout    time.Duration
}

// Response is the upstream endpoint's reply, body fully read.
type Response struct {
	StatusCode int
	Body       []byte
}

// Metrics tracks queue performance per kind.
type Metrics struct {
	EmbeddingEnqueued   int64
	EmbeddingProcessed  int64
	EmbeddingDropped    int64
	GenerationEnqueued  int64
	GenerationProcessed int64
	GenerationDropped   int64
	CurrentQueueDepth   map[Kind]int
}
