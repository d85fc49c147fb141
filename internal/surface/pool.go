package surface

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrEmptyPool is returned when a pool is built without surfaces.
var ErrEmptyPool = errors.New("surface pool has no members")

// Pool hands out exclusive leases on a fixed set of surfaces. A pool of one
// reproduces the single-device behaviour: every goal runs strictly in turn.
type Pool struct {
	sem  *semaphore.Weighted
	mu   sync.Mutex
	free []Surface
	size int
}

// NewPool builds a pool over members.
func NewPool(members ...Surface) (*Pool, error) {
	live := make([]Surface, 0, len(members))
	for _, m := range members {
		if m != nil {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		return nil, ErrEmptyPool
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(len(live))),
		free: live,
		size: len(live),
	}, nil
}

// Size returns the number of surfaces in the pool.
func (p *Pool) Size() int { return p.size }

// Lease is exclusive use of one surface until Release.
type Lease struct {
	pool    *Pool
	surface Surface
	once    sync.Once
}

// Acquire blocks until a surface is free or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mu.Lock()
	s := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.mu.Unlock()
	return &Lease{pool: p, surface: s}, nil
}

// Surface returns the leased surface.
func (l *Lease) Surface() Surface { return l.surface }

// RunGoal runs goal on the leased surface.
func (l *Lease) RunGoal(ctx context.Context, goal Goal) (string, error) {
	return l.surface.RunGoal(ctx, goal)
}

// Reset returns the leased surface to its home screen.
func (l *Lease) Reset(ctx context.Context) error {
	return GoHome(ctx, l.surface)
}

// Release returns the surface to the pool. Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.mu.Lock()
		l.pool.free = append(l.pool.free, l.surface)
		l.pool.mu.Unlock()
		l.pool.sem.Release(1)
	})
}

// RunGoal acquires a surface for a single goal. The pool itself is a Surface.
func (p *Pool) RunGoal(ctx context.Context, goal Goal) (string, error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer lease.Release()
	return lease.RunGoal(ctx, goal)
}

// Run is an alias of RunGoal.
func (p *Pool) Run(ctx context.Context, goal Goal) (string, error) {
	return p.RunGoal(ctx, goal)
}
