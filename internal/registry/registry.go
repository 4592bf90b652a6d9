// Package registry holds the live flow controllers of every browser session.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/authflow"
	"github.com/vtranslate/storefront/internal/checkout"
)

// Flows are the controllers owned by one session.
type Flows struct {
	Auth     *authflow.Controller
	Checkout *checkout.Controller
}

func (f *Flows) Close() {
	if f.Auth != nil {
		f.Auth.Close()
	}
	if f.Checkout != nil {
		f.Checkout.Close()
	}
}

// Factory builds the flows for a session seen for the first time.
type Factory func(ctx context.Context, sessionID string) *Flows

type entry struct {
	flows    *Flows
	lastSeen time.Time
}

type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
	idleTTL time.Duration
	logger  *logrus.Logger
	nowF    func() time.Time
}

func New(factory Factory, idleTTL time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger,
		nowF:    time.Now,
	}
}

// Get returns the flows of sessionID, creating them on first use.
func (r *Registry) Get(ctx context.Context, sessionID string) *Flows {
	r.mu.Lock()
	if e, ok := r.entries[sessionID]; ok {
		e.lastSeen = r.nowF()
		r.mu.Unlock()
		return e.flows
	}
	r.mu.Unlock()

	flows := r.factory(ctx, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sessionID]; ok {
		// Lost a race with a concurrent request of the same session.
		flows.Close()
		e.lastSeen = r.nowF()
		return e.flows
	}
	r.entries[sessionID] = &entry{flows: flows, lastSeen: r.nowF()}
	return flows
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes and removes flows idle for longer than the idle TTL.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.nowF()
	var idle []*Flows
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.idleTTL {
			idle = append(idle, e.flows)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, f := range idle {
		f.Close()
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done, then closes all flows.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.WithFields(logrus.Fields{
					"evicted": n,
					"active":  r.Len(),
				}).Debug("Evicted idle session flows")
			}
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.flows.Close()
	}
}
