package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/laudoscribe/laudoscribe/pkg/provider/embeddings"
)

// ErrNotFound is returned when a requested catalog entity does not exist.
var ErrNotFound = errors.New("catalog: not found")

// ErrSearchDisabled is returned by [Store.SearchTemplates] and
// [Store.IndexTemplate] when the store was created without an embeddings
// provider.
var ErrSearchDisabled = errors.New("catalog: semantic search disabled (no embeddings provider)")

// Store is the PostgreSQL-backed template catalog and rule store. It holds a
// single [pgxpool.Pool] shared by all operations.
//
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider // nil when semantic search is disabled
	dims     int                 // vector width override; 0 means ask the provider
}

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithEmbeddings enables semantic template search backed by the given
// embeddings provider. The provider's Dimensions() value determines the vector
// column width at migration time.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(s *Store) {
		s.embedder = p
	}
}

// WithEmbeddingDimensions overrides the vector column width used at migration
// time. Needed when the provider cannot report its output dimensions up
// front. Ignored without [WithEmbeddings].
func WithEmbeddingDimensions(dims int) Option {
	return func(s *Store) {
		s.dims = dims
	}
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection
// when semantic search is enabled, and runs [Migrate] to ensure all required
// tables exist.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		o(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog store: parse dsn: %w", err)
	}

	if s.embedder != nil {
		// Register pgvector types on every new connection so that vector
		// columns can be scanned into and inserted from pgvector.Vector values.
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog store: ping: %w", err)
	}

	dims := 0
	if s.embedder != nil {
		dims = s.dims
		if dims <= 0 {
			dims = s.embedder.Dimensions()
		}
		if dims <= 0 {
			pool.Close()
			return nil, fmt.Errorf("catalog store: embeddings provider %q reports no dimensions", s.embedder.ModelID())
		}
	}

	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog store: migrate: %w", err)
	}

	s.pool = pool
	return s, nil
}

// SearchEnabled reports whether semantic template search is available.
func (s *Store) SearchEnabled() bool { return s.embedder != nil }

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
