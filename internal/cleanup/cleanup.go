// Package cleanup removes isolated nodes from the Neo4j data store after
// data-generation runs. It talks to the database directly and does not use
// tool providers.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrCleanup is matched by every cleanup failure.
var ErrCleanup = errors.New("cleanup failed")

// IsolatedNodesQuery deletes every node with no relationships.
const IsolatedNodesQuery = "MATCH (n) WHERE NOT (n)--() DELETE n"

// Config is the explicit connection descriptor for the data store.
type Config struct {
	URI      string
	Username string
	Password string
	// Database selects a database; empty means the server default.
	Database string
}

// Validate checks that the config can be used to connect.
func (c Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("%w: neo4j uri is not configured", ErrCleanup)
	}
	return nil
}

// Summary reports what a cleanup run removed.
type Summary struct {
	Removed int
}

// Cleaner deletes isolated nodes. Implementations must be idempotent: a
// second call on an unchanged store removes nothing.
type Cleaner interface {
	DeleteIsolatedNodes(ctx context.Context) (Summary, error)
}

// Executor runs a write query and returns the number of deleted nodes.
type Executor func(ctx context.Context, cfg Config, query string) (int, error)

// Service is the Cleaner used in production.
type Service struct {
	cfg  Config
	exec Executor
}

// Option configures a Service.
type Option func(*Service)

// WithExecutor replaces the Neo4j executor, mainly for tests.
func WithExecutor(exec Executor) Option {
	return func(s *Service) { s.exec = exec }
}

// New creates a Service for cfg.
func New(cfg Config, opts ...Option) *Service {
	s := &Service{cfg: cfg, exec: executeNeo4j}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeleteIsolatedNodes removes every node without relationships.
func (s *Service) DeleteIsolatedNodes(ctx context.Context) (Summary, error) {
	if err := s.cfg.Validate(); err != nil {
		return Summary{}, err
	}

	start := time.Now()
	removed, err := s.exec(ctx, s.cfg, IsolatedNodesQuery)
	if err != nil {
		log.Printf("[cleanup] error after %.2fs: %v", time.Since(start).Seconds(), err)
		return Summary{}, fmt.Errorf("%w: delete isolated nodes: %w", ErrCleanup, err)
	}
	log.Printf("[cleanup] removed %d isolated node(s) in %.2fs", removed, time.Since(start).Seconds())
	return Summary{Removed: removed}, nil
}

var _ Cleaner = (*Service)(nil)
