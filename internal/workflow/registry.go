package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"tryon/internal/domain"
	"tryon/internal/metrics"
)

// Registry owns one Controller per browser session. Sessions that stay idle
// for longer than the TTL are evicted and closed.
type Registry struct {
	ctx   context.Context
	synth Synthesizer
	opts  Options
	items *cache.Cache
}

// NewRegistry creates a registry whose controllers share synth and the
// Timeout, Logger and OnResult settings of opts.
func NewRegistry(ctx context.Context, synth Synthesizer, ttl time.Duration, opts Options) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	r := &Registry{
		ctx:   ctx,
		synth: synth,
		opts:  opts,
		items: cache.New(ttl, cleanup),
	}
	r.items.OnEvicted(func(id string, v any) {
		if c, ok := v.(*Controller); ok {
			c.Close()
		}
		metrics.ActiveSessions.Set(float64(r.items.ItemCount()))
	})
	return r
}

// Create starts a new session.
func (r *Registry) Create() *Controller {
	opts := r.opts
	opts.ID = uuid.NewString()
	c := New(r.ctx, r.synth, opts)
	r.items.SetDefault(opts.ID, c)
	metrics.ActiveSessions.Set(float64(r.items.ItemCount()))
	return c
}

// Get returns the session and refreshes its idle deadline.
func (r *Registry) Get(id string) (*Controller, error) {
	v, ok := r.items.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	c, ok := v.(*Controller)
	if !ok {
		return nil, domain.ErrNotFound
	}
	r.items.SetDefault(id, c)
	return c, nil
}

// Delete closes and forgets the session. Unknown IDs are ignored.
func (r *Registry) Delete(id string) {
	r.items.Delete(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.items.ItemCount()
}

// Close closes every session and waits for their synthesis calls to return.
func (r *Registry) Close() {
	items := r.items.Items()
	r.items.Flush()
	for _, item := range items {
		if c, ok := item.Object.(*Controller); ok {
			c.Close()
			c.Wait()
		}
	}
	metrics.ActiveSessions.Set(0)
}
