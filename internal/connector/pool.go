package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("connector pool closed")

// Pool hands out Connectors for the duration of one query.
//
// At most size Connectors are created. Acquire blocks until one is free or
// ctx is done.
type Pool struct {
	dial func() (Connector, error)

	mu     sync.Mutex
	idle   []Connector
	open   int
	size   int
	closed bool
	free   chan struct{}
}

// NewPool creates a pool of at most size connectors created by dial.
func NewPool(size int, dial func() (Connector, error)) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		dial: dial,
		size: size,
		free: make(chan struct{}, size),
	}
}

// Acquire returns a connector and the function that returns it to the pool.
// The release function is idempotent.
func (p *Pool) Acquire(ctx context.Context) (Connector, func(), error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, nil, ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return c, p.releaser(c), nil
		}
		if p.open < p.size {
			p.open++
			p.mu.Unlock()
			c, err := p.dial()
			if err != nil {
				p.mu.Lock()
				p.open--
				p.mu.Unlock()
				return nil, nil, fmt.Errorf("dial connector: %w", err)
			}
			return c, p.releaser(c), nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-p.free:
		}
	}
}

func (p *Pool) releaser(c Connector) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if !p.closed {
				p.idle = append(p.idle, c)
			}
			p.mu.Unlock()
			select {
			case p.free <- struct{}{}:
			default:
			}
		})
	}
}

// With acquires a connector, runs fn, and releases the connector on every
// exit path.
func (p *Pool) With(ctx context.Context, fn func(Connector) error) error {
	c, release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(c)
}

// Stats reports open and idle connector counts.
func (p *Pool) Stats() (open, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open, len(p.idle)
}

// Close stops handing out connectors. Connectors in use stay valid until
// released.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.idle = nil
	p.mu.Unlock()
}
