package callback

import (
	"sort"
	"sync"
)

// Set owns one Registry per event name for a single host object. Registries
// are created on first use and live as long as the Set.
type Set struct {
	classify Classifier

	mu         sync.Mutex
	registries map[string]*Registry
}

// NewSet returns an empty Set. A nil classify uses Classify.
func NewSet(classify Classifier) *Set {
	return &Set{classify: classify, registries: map[string]*Registry{}}
}

// Registry returns the registry for name, creating it if needed. Short and
// option names address the same registry.
func (s *Set) Registry(name string) *Registry {
	key := OptionName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registries[key]
	if !ok {
		r = New(key, s.classify)
		s.registries[key] = r
	}
	return r
}

// On registers h for name.
func (s *Set) On(name string, h Handler) *Handle {
	return s.Registry(name).Add(h)
}

// Off removes the registration h from name.
func (s *Set) Off(name string, h *Handle) {
	s.Registry(name).Remove(h)
}

// Dispatch returns the stable dispatch function for name.
func (s *Set) Dispatch(name string) DispatchFunc {
	return s.Registry(name).Dispatch()
}

// Names returns the option names of every registry created so far, sorted.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.registries))
	for name := range s.registries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
