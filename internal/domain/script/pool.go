package script

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
)

// Pool manages a pool of reusable runtimes
type Pool struct {
	config   Config
	runtimes chan *Runtime
	size     int
	mu       sync.RWMutex
	closed   bool
}

// NewPool creates a runtime pool
func NewPool(config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:   config,
		runtimes: make(chan *Runtime, size),
		size:     size,
	}

	// Pre-create runtimes
	for i := 0; i < size; i++ {
		rt, err := New(config)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.runtimes <- rt
	}

	return pool, nil
}

// Acquire gets a runtime from the pool, waiting up to AcquireTimeout
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	wait := p.config.AcquireTimeout
	if wait <= 0 {
		wait = DefaultConfig().AcquireTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case rt := <-p.runtimes:
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Release resets a runtime and returns it to the pool
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		// Keep the pool at full size
		if fresh, newErr := New(p.config); newErr == nil {
			p.runtimes <- fresh
		}
		return err
	}

	select {
	case p.runtimes <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// Execute runs a script on a pooled runtime
func (p *Pool) Execute(ctx context.Context, src string, s *surface.Surface) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Execute(ctx, src, s)
}

// Close closes the pool and all idle runtimes
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.runtimes)

	for rt := range p.runtimes {
		rt.Close()
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	available := len(p.runtimes)
	return PoolStats{
		Size:      p.size,
		Available: available,
		InUse:     p.size - available,
		Closed:    p.closed,
	}
}
