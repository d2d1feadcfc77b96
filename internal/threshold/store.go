package threshold

import (
	"sync/atomic"

	"github.com/pulsewatch/pulsewatch/internal/metric"
)

// Threshold is one configured limit. An empty Subject means the threshold is
// global; a non-empty Subject overrides the global limit for that subject
// only.
type Threshold struct {
	Kind    metric.Kind
	Limit   float64
	Subject string
}

// Ruleset is an immutable view of all configured thresholds. At most one
// global and one per-subject threshold exist per kind.
type Ruleset struct {
	global  map[metric.Kind]float64
	subject map[string]map[metric.Kind]float64
}

// Resolve returns the effective limit for kind as seen by subject. A
// per-subject threshold takes precedence over the global one; ok is false
// when neither exists.
func (r *Ruleset) Resolve(kind metric.Kind, subject string) (limit float64, ok bool) {
	if subject != "" {
		if overrides, found := r.subject[subject]; found {
			if limit, found = overrides[kind]; found {
				return limit, true
			}
		}
	}
	limit, ok = r.global[kind]
	return limit, ok
}

// Globals returns a copy of the global thresholds.
func (r *Ruleset) Globals() map[metric.Kind]float64 {
	out := make(map[metric.Kind]float64, len(r.global))
	for k, v := range r.global {
		out[k] = v
	}
	return out
}

// Store holds the current Ruleset. Reads are lock-free snapshot loads;
// writes build a fresh Ruleset and swap it in atomically (copy-on-write).
//
// Store is safe for concurrent use.
type Store struct {
	current atomic.Pointer[Ruleset]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Ruleset{
		global:  map[metric.Kind]float64{},
		subject: map[string]map[metric.Kind]float64{},
	})
	return s
}

// Snapshot returns the current Ruleset. The returned value is immutable and
// remains consistent for the caller's lifetime regardless of concurrent
// replaces.
func (s *Store) Snapshot() *Ruleset {
	return s.current.Load()
}

// Set replaces the threshold described by t. Replace-on-write: any existing
// threshold for the same kind and scope is overwritten, never duplicated.
func (s *Store) Set(t Threshold) {
	for {
		old := s.current.Load()
		next := clone(old)
		if t.Subject == "" {
			next.global[t.Kind] = t.Limit
		} else {
			if next.subject[t.Subject] == nil {
				next.subject[t.Subject] = map[metric.Kind]float64{}
			}
			next.subject[t.Subject][t.Kind] = t.Limit
		}
		if s.current.CompareAndSwap(old, next) {
			return
		}
	}
}

// Delete removes the threshold for kind in the given scope. Removing a
// threshold that does not exist is a no-op.
func (s *Store) Delete(kind metric.Kind, subject string) {
	for {
		old := s.current.Load()
		next := clone(old)
		if subject == "" {
			delete(next.global, kind)
		} else if overrides, ok := next.subject[subject]; ok {
			delete(overrides, kind)
			if len(overrides) == 0 {
				delete(next.subject, subject)
			}
		}
		if s.current.CompareAndSwap(old, next) {
			return
		}
	}
}

func clone(r *Ruleset) *Ruleset {
	next := &Ruleset{
		global:  make(map[metric.Kind]float64, len(r.global)),
		subject: make(map[string]map[metric.Kind]float64, len(r.subject)),
	}
	for k, v := range r.global {
		next.global[k] = v
	}
	for subj, overrides := range r.subject {
		m := make(map[metric.Kind]float64, len(overrides))
		for k, v := range overrides {
			m[k] = v
		}
		next.subject[subj] = m
	}
	return next
}
