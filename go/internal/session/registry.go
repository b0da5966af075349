package session

import (
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry owns every live session. Lookups take a read lock only; creation
// of a given code is deduplicated so concurrent first joins build it once.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// CreateOrGet returns the session for code, calling create at most once
// across concurrent callers when it does not exist yet.
func (r *Registry) CreateOrGet(code string, create func() (*Session, error)) (*Session, error) {
	if s, ok := r.Get(code); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(code, func() (any, error) {
		if s, ok := r.Get(code); ok {
			return s, nil
		}
		s, err := create()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.sessions[code] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Remove deletes code only while it still maps to s.
func (r *Registry) Remove(code string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[code]; ok && cur == s {
		delete(r.sessions, code)
		return true
	}
	return false
}

func (r *Registry) Has(code string) bool {
	_, ok := r.Get(code)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns the live sessions ordered by code.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out
}
