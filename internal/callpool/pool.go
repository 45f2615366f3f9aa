// Package callpool bounds the number of provider calls in flight across
// every crew execution in the process.
package callpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool is a weighted semaphore shared by all executions. A nil Pool does not
// limit anything.
type Pool struct {
	sem      *semaphore.Weighted
	limit    int
	inFlight atomic.Int64
}

// New creates a Pool admitting at most limit concurrent calls. Limits below
// one are raised to one.
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Do waits for a slot and runs fn with it held. It returns ctx.Err() without
// calling fn when ctx ends first.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if p == nil || p.sem == nil {
		return fn(ctx)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.sem.Release(1)
	}()
	return fn(ctx)
}

// InFlight is the number of calls currently holding a slot.
func (p *Pool) InFlight() int {
	if p == nil {
		return 0
	}
	return int(p.inFlight.Load())
}

// Limit is the configured slot count.
func (p *Pool) Limit() int {
	if p == nil {
		return 0
	}
	return p.limit
}
