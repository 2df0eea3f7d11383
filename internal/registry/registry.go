// Package registry implements the generic object-lifecycle store shared
// by the road user, road hazard and road sensor trackers: a keyed entity
// map guarded by a single mutex, a periodic expiry sweep and
// created/updated/expired notifications.
package registry

import (
	"log"
	"sync"
	"time"
)

// SweepPeriod is the cadence of the expiry sweep.
const SweepPeriod = time.Second

// Entity is a tracked object with an identity and an age-based lifetime.
type Entity interface {
	Key() string
	LastRefresh() time.Time
	Lifetime() time.Duration
}

// Callbacks are the application-facing lifecycle notifications. Nil
// callbacks are skipped. They are invoked outside the registry lock, in
// the goroutine that triggered the transition.
type Callbacks[E Entity] struct {
	Created func(E)
	Updated func(E)
	Expired func(E)
	// Swept runs for every surviving entity after each sweep tick,
	// letting owners age out nested children with the same policy.
	Swept func(E, time.Time)
}

// Registry tracks entities of one kind. All state is guarded by one
// mutex; ingest (Upsert) and the sweep goroutine go through the same
// access point.
type Registry[E Entity] struct {
	logger *log.Logger
	cb     Callbacks[E]
	now    func() time.Time

	mu       sync.Mutex
	entities map[string]E

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates a stopped registry. Call Start to launch the sweep.
func New[E Entity](logger *log.Logger, cb Callbacks[E]) *Registry[E] {
	return &Registry[E]{
		logger:   logger,
		cb:       cb,
		now:      time.Now,
		entities: make(map[string]E),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic expiry sweep. Repeated calls are no-ops;
// the sweep runs once per registry.
func (r *Registry[E]) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Stop halts the sweep. Safe to call repeatedly and concurrently with an
// in-flight tick; returns once the sweep goroutine has exited.
func (r *Registry[E]) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.startOnce.Do(func() { close(r.done) }) // never started: unblock Stop
	<-r.done
}

func (r *Registry[E]) run() {
	defer close(r.done)
	ticker := time.NewTicker(SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep(r.now())
		case <-r.stop:
			return
		}
	}
}

// Upsert inserts or refreshes the entity under key. create builds a new
// entity on first sight; update mutates an existing one in place. The
// returned flag is true when the entity was created. Created/Updated
// callbacks fire after the lock is released.
func (r *Registry[E]) Upsert(key string, create func() E, update func(E)) (E, bool) {
	r.mu.Lock()
	e, ok := r.entities[key]
	if ok {
		update(e)
	} else {
		e = create()
		r.entities[key] = e
	}
	r.mu.Unlock()

	if ok {
		if r.cb.Updated != nil {
			r.cb.Updated(e)
		}
	} else if r.cb.Created != nil {
		r.cb.Created(e)
	}
	return e, !ok
}

// Get returns the entity under key, if tracked.
func (r *Registry[E]) Get(key string) (E, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[key]
	return e, ok
}

// Len returns the number of tracked entities.
func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}

// Snapshot returns the currently tracked entities in no particular
// order.
func (r *Registry[E]) Snapshot() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]E, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	return out
}

// sweep evicts every entity whose age reached its lifetime and fires the
// Expired callback per eviction, then the Swept hook for survivors.
func (r *Registry[E]) sweep(now time.Time) {
	var expired, alive []E

	r.mu.Lock()
	for key, e := range r.entities {
		if now.Sub(e.LastRefresh()) >= e.Lifetime() {
			delete(r.entities, key)
			expired = append(expired, e)
		} else if r.cb.Swept != nil {
			alive = append(alive, e)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		if r.logger != nil {
			r.logger.Printf("expired %s after %s", e.Key(), e.Lifetime())
		}
		if r.cb.Expired != nil {
			r.cb.Expired(e)
		}
	}
	for _, e := range alive {
		r.cb.Swept(e, now)
	}
}
