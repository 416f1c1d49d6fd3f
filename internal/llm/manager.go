package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// CircuitBreaker is a minimal failure-counting breaker: after
// consecutiveFailureLimit failures in a row it opens and rejects calls
// until resetAfter has elapsed since the last failure.
type CircuitBreaker = circuitBreaker

// NewCircuitBreaker builds a CircuitBreaker for use with NewManager.
func NewCircuitBreaker(limit int, resetAfter time.Duration) *CircuitBreaker {
	return newCircuitBreaker(limit, resetAfter)
}

type circuitBreaker struct {
	mu                      sync.Mutex
	consecutiveFailures     int
	consecutiveFailureLimit int
	resetAfter              time.Duration
	openedAt                time.Time
}

func newCircuitBreaker(limit int, resetAfter time.Duration) *circuitBreaker {
	return &circuitBreaker{consecutiveFailureLimit: limit, resetAfter: resetAfter}
}

func (b *circuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consecutiveFailures < b.consecutiveFailureLimit {
		return false
	}
	if time.Since(b.openedAt) > b.resetAfter {
		b.consecutiveFailures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Call(fn func() error) {
	err := fn()
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.consecutiveFailures++
		if b.consecutiveFailures == b.consecutiveFailureLimit {
			b.openedAt = time.Now()
		}
		return
	}
	b.consecutiveFailures = 0
}

// Manager coordinates every call to the upstream model endpoints: the
// embedding provider feeding the memory engine's retrieval path, and
// the generative model the engine hands retrieved memories to. One
// semaphore bounds both, so a burst of generation work can never
// starve the store/retrieve hot path of upstream slots.
type Manager struct {
	embeddingQueue  chan *Request
	generationQueue chan *Request

	maxConcurrent int
	semaphore     chan struct{} // bounds in-flight upstream calls

	circuitBreaker *circuitBreaker

	mu      sync.RWMutex
	metrics Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup

	config *Config
}

// NewManager creates a new queue manager. Pass a nil breaker to get a
// default one (5 consecutive failures trips it, 30s cooldown).
func NewManager(config *Config, breaker *circuitBreaker) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if breaker == nil {
		breaker = newCircuitBreaker(5, 30*time.Second)
	}
	m := &Manager{
		embeddingQueue:  make(chan *Request, config.EmbeddingQueueSize),
		generationQueue: make(chan *Request, config.GenerationQueueSize),
		maxConcurrent:   config.MaxConcurrent,
		semaphore:       make(chan struct{}, config.MaxConcurrent),
		circuitBreaker:  breaker,
		metrics: Metrics{
			CurrentQueueDepth: map[Kind]int{
				KindEmbedding:  0,
				KindGeneration: 0,
			},
		},
		stopCh: make(chan struct{}),
		config: config,
	}

	m.wg.Add(1)
	go m.dispatcher()

	log.Printf("[Model Queue] Started with %d concurrent slots", config.MaxConcurrent)
	return m
}

// Submit adds a request to its kind's queue, dropping it when the
// queue is full rather than blocking the caller.
func (m *Manager) Submit(req *Request) error {
	queue := m.embeddingQueue
	if req.Kind == KindGeneration {
		queue = m.generationQueue
	}
	if req.Timeout <= 0 {
		if req.Kind == KindEmbedding {
			req.Timeout = m.config.EmbeddingTimeout
		} else {
			req.Timeout = m.config.GenerationTimeout
		}
	}

	m.mu.Lock()
	if req.Kind == KindEmbedding {
		m.metrics.EmbeddingEnqueued++
	} else {
		m.metrics.GenerationEnqueued++
	}
	m.mu.Unlock()

	select {
	case queue <- req:
		m.mu.Lock()
		m.metrics.CurrentQueueDepth[req.Kind] = len(queue)
		m.mu.Unlock()
		return nil

	default:
		m.mu.Lock()
		if req.Kind == KindEmbedding {
			m.metrics.EmbeddingDropped++
		} else {
			m.metrics.GenerationDropped++
		}
		m.mu.Unlock()

		log.Printf("[Model Queue] WARNING: %s queue full, dropping request %s", req.Kind, req.ID)
		return fmt.Errorf("%s queue full", req.Kind)
	}
}

// dispatcher drains embedding work first; generation only runs when no
// embedding request is waiting.
func (m *Manager) dispatcher() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return

		case req := <-m.embeddingQueue:
			m.semaphore <- struct{}{}
			m.wg.Add(1)
			go m.processRequest(req)

		case req := <-m.generationQueue:
			select {
			case embedReq := <-m.embeddingQueue:
				// An embedding request arrived; it goes first.
				m.generationQueue <- req
				m.semaphore <- struct{}{}
				m.wg.Add(1)
				go m.processRequest(embedReq)
			default:
				m.semaphore <- struct{}{}
				m.wg.Add(1)
				go m.processRequest(req)
			}
		}
	}
}

// processRequest executes the upstream call and delivers the outcome.
func (m *Manager) processRequest(req *Request) {
	defer func() {
		<-m.semaphore
		m.wg.Done()

		m.mu.Lock()
		if req.Kind == KindEmbedding {
			m.metrics.EmbeddingProcessed++
		} else {
			m.metrics.GenerationProcessed++
		}
		m.mu.Unlock()
	}()

	startTime := time.Now()

	if req.Context.Err() != nil {
		req.ErrorCh <- req.Context.Err()
		return
	}

	ctx, cancel := context.WithTimeout(req.Context, req.Timeout)
	defer cancel()

	resp, err := m.executeHTTPRequest(ctx, req)
	if err != nil {
		log.Printf("[Model Queue] Request %s failed after %s: %v",
			req.ID, time.Since(startTime), err)
		req.ErrorCh <- err
		return
	}

	select {
	case req.ResponseCh <- resp:
	case <-ctx.Done():
		log.Printf("[Model Queue] Request %s timeout after %s",
			req.ID, time.Since(startTime))
		req.ErrorCh <- ctx.Err()
	}
}

// executeHTTPRequest performs the actual HTTP call.
func (m *Manager) executeHTTPRequest(ctx context.Context, req *Request) (*Response, error) {
	if m.circuitBreaker != nil && m.circuitBreaker.IsOpen() {
		return nil, fmt.Errorf("circuit breaker open")
	}

	jsonData, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", req.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: req.Timeout,
		Transport: &http.Transport{
			ResponseHeaderTimeout: req.Timeout,
			IdleConnTimeout:       req.Timeout,
			MaxIdleConns:          10,
			DisableKeepAlives:     false,
		},
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if m.circuitBreaker != nil {
			m.circuitBreaker.Call(func() error { return err })
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	if m.circuitBreaker != nil {
		m.circuitBreaker.Call(func() error { return nil })
	}

	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
	}, nil
}

// GetMetrics returns current queue statistics.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := m.metrics
	metrics.CurrentQueueDepth = map[Kind]int{
		KindEmbedding:  len(m.embeddingQueue),
		KindGeneration: len(m.generationQueue),
	}
	return metrics
}

// Stop gracefully shuts down the queue.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	log.Printf("[Model Queue] Stopped")
}
