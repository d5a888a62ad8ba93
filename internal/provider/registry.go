package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Registry acquires tool providers through a Launcher. It holds no per-request
// state; every Acquire returns an independent Scope.
type Registry struct {
	launcher Launcher
}

// NewRegistry creates a registry that starts providers with the given launcher.
func NewRegistry(launcher Launcher) *Registry {
	return &Registry{launcher: launcher}
}

// Acquire launches every provider in specs and returns a scope exposing their
// capabilities. If any provider fails to become ready, the ones already
// launched are terminated before the error is returned.
func (r *Registry) Acquire(ctx context.Context, specs []Spec) (*Scope, error) {
	scope := newScope(r.launcher)
	if err := scope.Ensure(ctx, specs...); err != nil {
		if rerr := scope.Release(); rerr != nil {
			log.Printf("[registry] warning: release after failed acquire: %v", rerr)
		}
		return nil, err
	}
	return scope, nil
}

// With acquires a scope, runs fn, and releases the scope on every exit path,
// including panics inside fn.
func With(ctx context.Context, r *Registry, specs []Spec, fn func(*Scope) error) error {
	scope, err := r.Acquire(ctx, specs)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := scope.Release(); rerr != nil {
			log.Printf("[registry] warning: release providers: %v", rerr)
		}
	}()
	return fn(scope)
}

// Scope is the set of providers and capabilities acquired for one request.
type Scope struct {
	launcher Launcher

	mu        sync.Mutex
	providers map[string]*Provider
	order     []string
	caps      map[string]*Capability
	launches  int
	released  bool
}

func newScope(launcher Launcher) *Scope {
	return &Scope{
		launcher:  launcher,
		providers: make(map[string]*Provider),
		caps:      make(map[string]*Capability),
	}
}

// Ensure launches the given providers unless this scope already holds them.
// Providers are identified by Spec.Name, so requesting the same set twice
// results in a single launch per provider.
func (s *Scope) Ensure(ctx context.Context, specs ...Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return errors.New("scope already released")
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("provider spec for %q has no name", spec.Command)
		}
		if _, ok := s.providers[spec.Name]; ok {
			continue
		}
		if err := s.launchLocked(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scope) launchLocked(ctx context.Context, spec Spec) error {
	p := &Provider{spec: spec, state: StateLaunching}
	s.providers[spec.Name] = p
	s.order = append(s.order, spec.Name)
	s.launches++

	conn, err := s.launcher.Launch(ctx, spec)
	if err != nil {
		p.state = StateTerminated
		return &UnavailableError{Provider: spec.Name, Err: fmt.Errorf("launch: %w", err)}
	}

	tools, err := conn.Tools(ctx)
	if err != nil {
		p.conn = conn
		if cerr := p.terminate(); cerr != nil {
			log.Printf("[registry] warning: close provider %s: %v", spec.Name, cerr)
		}
		return &UnavailableError{Provider: spec.Name, Err: fmt.Errorf("list tools: %w", err)}
	}

	p.mu.Lock()
	p.conn = conn
	p.state = StateReady
	p.mu.Unlock()

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		if existing, ok := s.caps[tool.Name]; ok {
			log.Printf("[registry] capability %s from %s shadowed by %s", tool.Name, spec.Name, existing.ProviderName())
			continue
		}
		s.caps[tool.Name] = &Capability{info: tool, provider: p}
		names = append(names, tool.Name)
	}
	log.Printf("[registry] provider %s ready, capabilities: %v", spec.Name, names)
	return nil
}

// Lookup returns the capability with the given name.
func (s *Scope) Lookup(name string) (*Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caps[name]
	if !ok || s.released || !c.Ready() {
		return nil, &UnavailableError{Names: []string{name}}
	}
	return c, nil
}

// Bind resolves all names or none. The returned slice preserves the order of
// names.
func (s *Scope) Bind(names ...string) ([]*Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if missing := s.missingLocked(names); len(missing) > 0 {
		return nil, &UnavailableError{Names: missing}
	}
	bound := make([]*Capability, len(names))
	for i, name := range names {
		bound[i] = s.caps[name]
	}
	return bound, nil
}

// Require checks that every name is currently available.
func (s *Scope) Require(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if missing := s.missingLocked(names); len(missing) > 0 {
		return &UnavailableError{Names: missing}
	}
	return nil
}

func (s *Scope) missingLocked(names []string) []string {
	var missing []string
	for _, name := range names {
		c, ok := s.caps[name]
		if !ok || s.released || !c.Ready() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Names returns the sorted names of all available capabilities.
func (s *Scope) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	names := make([]string, 0, len(s.caps))
	for name, c := range s.caps {
		if c.Ready() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Launches returns how many provider launches this scope has performed.
func (s *Scope) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

// Providers returns the scope's providers in launch order.
func (s *Scope) Providers() []*Provider {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Provider, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.providers[name])
	}
	return out
}

// Release terminates every provider in reverse launch order. It is safe to
// call more than once; only the first call has an effect.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	var errs []error
	for i := len(s.order) - 1; i >= 0; i-- {
		p := s.providers[s.order[i]]
		if err := p.terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate %s: %w", p.spec.Name, err))
		}
	}
	s.caps = make(map[string]*Capability)
	log.Printf("[registry] released %d provider(s)", len(s.order))
	return errors.Join(errs...)
}
