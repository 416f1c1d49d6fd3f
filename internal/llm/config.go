package llm

import "time"

// Config controls the upstream-model queue.
type Config struct {
	// MaxConcurrent bounds in-flight upstream calls across both queues.
	MaxConcurrent int

	// Queue sizes. The embedding queue is kept small on purpose: a
	// retrieval that can't get an embedding slot promptly should fail
	// fast rather than pile up behind generation work.
	EmbeddingQueueSize  int
	GenerationQueueSize int

	// Per-kind default timeouts, applied when a request carries none.
	EmbeddingTimeout  time.Duration
	GenerationTimeout time.Duration
}

// DefaultConfig returns the queue defaults: two concurrent upstream
// calls, a short embedding buffer, a larger generation buffer.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:       2,
		EmbeddingQueueSize:  20,
		GenerationQueueSize: 100,
		EmbeddingTimeout:    10 * time.Second,
		GenerationTimeout:   360 * time.Second,
	}
}
