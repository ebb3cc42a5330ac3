package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
)

// SinkPipeline sits between the batch orchestrator and a slow or flaky
// downstream sink. A failed write is parked in a bounded buffer and retried
// in the background with exponential backoff; when the buffer is full the
// result is dropped and counted.
type SinkPipeline struct {
	next       domrepo.VerdictSink
	metrics    domrepo.Metrics
	bufCh      chan models.Result
	stopCh     chan struct{}
	done       chan struct{}
	mu         sync.Mutex
	wmu        sync.Mutex
	started    bool
	backoffMin time.Duration
	backoffMax time.Duration
	dropped    int
}

type PipelineOption func(*SinkPipeline)

// WithBufferSize sets how many failed results may wait for a retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *SinkPipeline) {
		if n > 0 {
			p.bufCh = make(chan models.Result, n)
		}
	}
}

// WithBackoff sets the retry backoff range.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *SinkPipeline) {
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

func NewSinkPipeline(next domrepo.VerdictSink, metrics domrepo.Metrics, opts ...PipelineOption) *SinkPipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &SinkPipeline{
		next:       next,
		metrics:    metrics,
		bufCh:      make(chan models.Result, 256),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SinkPipeline) Name() string { return p.next.Name() }

// Start launches the retry loop.
func (p *SinkPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		backoff := p.backoffMin
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case r := <-p.bufCh:
				if err := p.forward(ctx, r); err != nil {
					p.metrics.RecordSinkWrite(p.Name()+"_retry", false)
					if backoff < p.backoffMax {
						backoff *= 2
						if backoff > p.backoffMax {
							backoff = p.backoffMax
						}
					}
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						p.requeue(r)
						return
					}
					p.requeue(r)
					continue
				}
				p.metrics.RecordSinkWrite(p.Name()+"_retry", true)
				backoff = p.backoffMin
			}
		}
	}()
}

// Write forwards r. On failure r is buffered for retry and the error is
// still reported, so the caller can count it.
func (p *SinkPipeline) Write(ctx context.Context, r models.Result) error {
	if r.A == "" && r.B == "" && r.Verdict == nil {
		return fmt.Errorf("empty result")
	}
	start := time.Now()
	err := p.forward(ctx, r)
	if err != nil {
		p.requeue(r)
		return fmt.Errorf("%s downstream: %w", p.Name(), err)
	}
	p.metrics.RecordLatency("sink_"+p.Name(), time.Since(start).Seconds())
	return nil
}

// forward serialises calls into the downstream sink, which is shared by the
// caller and the retry loop.
func (p *SinkPipeline) forward(ctx context.Context, r models.Result) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.next.Write(ctx, r)
}

func (p *SinkPipeline) requeue(r models.Result) {
	select {
	case p.bufCh <- r:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.metrics.RecordError("sink_buffer_full")
	}
}

// Pending is the number of results waiting for a retry.
func (p *SinkPipeline) Pending() int { return len(p.bufCh) }

// Dropped is the number of results lost to a full buffer.
func (p *SinkPipeline) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops the retry loop, makes one last attempt at whatever is still
// buffered and closes the downstream sink.
func (p *SinkPipeline) Close() error {
	p.mu.Lock()
	started := p.started
	p.started = false
	p.mu.Unlock()
	if started {
		close(p.stopCh)
		<-p.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var lost int
	for n := len(p.bufCh); n > 0; n-- {
		if err := p.forward(ctx, <-p.bufCh); err != nil {
			lost++
		}
	}
	err := p.next.Close()
	if lost > 0 && err == nil {
		err = fmt.Errorf("%s: %d results not delivered", p.Name(), lost)
	}
	return err
}
