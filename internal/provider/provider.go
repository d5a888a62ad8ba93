// Package provider manages out-of-process tool providers and the capabilities
// they expose. A Registry launches providers into a Scope; capabilities are
// only valid while the Scope holds their provider in the ready state, and
// every provider is terminated when the Scope is released.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrCapabilityUnavailable is returned when a capability name is not exposed
// by any ready provider in the current scope.
var ErrCapabilityUnavailable = errors.New("capability unavailable")

// UnavailableError lists the capability names that could not be resolved,
// or names the provider that never became ready. Err holds the launch or
// handshake failure in the latter case.
type UnavailableError struct {
	Names    []string
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("capability unavailable: provider %s not ready: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("capability unavailable: %v", e.Names)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCapabilityUnavailable) match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCapabilityUnavailable
}

// Spec is a provider launch descriptor.
type Spec struct {
	// Name identifies the provider within a scope (e.g. "neo4j-cypher").
	Name string `mapstructure:"name"`
	// Command is the executable to launch.
	Command string `mapstructure:"command"`
	// Args are the command arguments.
	Args []string `mapstructure:"args"`
	// Env holds extra environment variables for the subprocess.
	Env map[string]string `mapstructure:"env"`
}

// State is a provider's lifecycle state.
type State int32

const (
	StateLaunching State = iota
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Schema is a JSON-schema style description of a tool's input object.
type Schema struct {
	Properties map[string]any
	Required   []string
}

// ToolInfo describes one tool reported by a provider during discovery.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema Schema
}

// Conn is a live connection to a launched provider.
type Conn interface {
	// Tools lists the tools the provider exposes.
	Tools(ctx context.Context) ([]ToolInfo, error)
	// Call invokes a tool and returns its textual result.
	Call(ctx context.Context, name string, args map[string]any) (string, error)
	// Close terminates the provider.
	Close() error
}

// Launcher starts a provider and completes its readiness handshake.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Conn, error)
}

// Provider is a launched tool provider tracked by a Scope.
type Provider struct {
	spec Spec

	mu    sync.RWMutex
	state State
	conn  Conn
}

// Spec returns the provider's launch descriptor.
func (p *Provider) Spec() Spec {
	return p.spec
}

// State returns the provider's current lifecycle state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// call invokes a tool if the provider is still ready.
func (p *Provider) call(ctx context.Context, name string, args map[string]any) (string, error) {
	p.mu.RLock()
	state, conn := p.state, p.conn
	p.mu.RUnlock()

	if state != StateReady || conn == nil {
		return "", &UnavailableError{Names: []string{name}}
	}
	return conn.Call(ctx, name, args)
}

// terminate closes the provider connection exactly once.
func (p *Provider) terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateTerminated {
		return nil
	}
	p.state = StateTerminated
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// Capability is a named operation exposed by a ready provider.
type Capability struct {
	info     ToolInfo
	provider *Provider
}

// Name returns the capability name.
func (c *Capability) Name() string {
	return c.info.Name
}

// Description returns the provider's description of the capability.
func (c *Capability) Description() string {
	return c.info.Description
}

// InputSchema returns the capability's input schema.
func (c *Capability) InputSchema() Schema {
	return c.info.InputSchema
}

// ProviderName returns the name of the owning provider.
func (c *Capability) ProviderName() string {
	return c.provider.spec.Name
}

// Ready reports whether the owning provider is still ready.
func (c *Capability) Ready() bool {
	return c.provider.State() == StateReady
}

// Invoke calls the capability with a JSON object of arguments.
// It fails with ErrCapabilityUnavailable once the owning provider has been
// terminated.
func (c *Capability) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	args := map[string]any{}
	if len(input) > 0 && string(input) != "null" {
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("decode arguments for %s: %w", c.info.Name, err)
		}
	}
	return c.provider.call(ctx, c.info.Name, args)
}
