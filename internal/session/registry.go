// Package session tracks the live evaluator of each NPC.
package session

import (
	"slices"
	"strings"
	"sync"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/evaluator"
)

// Registry maps NPC ids to live evaluators. At most one evaluator exists
// per id.
type Registry struct {
	mu    sync.RWMutex
	live  map[string]*evaluator.Evaluator
	inits map[string]*pending
}

// pending is an in-flight GetOrCreate factory call.
type pending struct {
	done    chan struct{}
	ev      *evaluator.Evaluator
	err     error
	dropped bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		live:  make(map[string]*evaluator.Evaluator),
		inits: make(map[string]*pending),
	}
}

// Create registers ev under id. An id that is already live fails with
// AlreadyExists and leaves the existing evaluator in place.
func (r *Registry) Create(id string, ev *evaluator.Evaluator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; ok {
		return apperr.Errorf(apperr.AlreadyExists, "create session", "npc %q already has a live session", id)
	}
	r.live[id] = ev
	return nil
}

// Get returns the live evaluator for id.
func (r *Registry) Get(id string) (*evaluator.Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.live[id]
	return ev, ok
}

// With calls fn with id's evaluator. The registry lock is not held while
// fn runs; evaluators guard their own state.
func (r *Registry) With(id string, fn func(*evaluator.Evaluator) error) error {
	ev, ok := r.Get(id)
	if !ok {
		return apperr.Errorf(apperr.NotFound, "session", "no live session for npc %q", id)
	}
	return fn(ev)
}

// GetOrCreate returns id's evaluator, building it with factory when absent.
// Concurrent callers for the same id share one factory call; a failed call
// registers nothing.
func (r *Registry) GetOrCreate(id string, factory func() (*evaluator.Evaluator, error)) (*evaluator.Evaluator, error) {
	if ev, ok := r.Get(id); ok {
		return ev, nil
	}

	r.mu.Lock()
	if ev, ok := r.live[id]; ok {
		r.mu.Unlock()
		return ev, nil
	}
	if p, ok := r.inits[id]; ok {
		r.mu.Unlock()
		<-p.done
		return p.ev, p.err
	}
	p := &pending{done: make(chan struct{})}
	r.inits[id] = p
	r.mu.Unlock()

	p.ev, p.err = factory()

	r.mu.Lock()
	delete(r.inits, id)
	if p.err == nil && p.dropped {
		p.ev.Close()
		p.ev = nil
		p.err = apperr.Errorf(apperr.NotFound, "session", "npc %q was removed", id)
	} else if p.err == nil {
		if existing, ok := r.live[id]; ok {
			// Create won the race while the factory ran
			p.ev = existing
		} else {
			r.live[id] = p.ev
		}
	}
	r.mu.Unlock()
	close(p.done)
	return p.ev, p.err
}

// Remove drops id's evaluator. Persisted memory is not touched.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; !ok {
		return apperr.Errorf(apperr.NotFound, "remove session", "no live session for npc %q", id)
	}
	delete(r.live, id)
	return nil
}

// Take removes id's evaluator and returns it. A GetOrCreate still running
// for id registers nothing and fails with NotFound.
func (r *Registry) Take(id string) (*evaluator.Evaluator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.inits[id]; ok {
		p.dropped = true
	}
	ev, ok := r.live[id]
	if !ok {
		return nil, apperr.Errorf(apperr.NotFound, "take session", "no live session for npc %q", id)
	}
	delete(r.live, id)
	return ev, nil
}

// List returns a snapshot of every live evaluator, sorted by NPC id.
func (r *Registry) List() []evaluator.Snapshot {
	r.mu.RLock()
	out := make([]evaluator.Snapshot, 0, len(r.live))
	for _, ev := range r.live {
		out = append(out, ev.Snapshot())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b evaluator.Snapshot) int { return strings.Compare(a.NpcID, b.NpcID) })
	return out
}

// Len returns the number of live evaluators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
