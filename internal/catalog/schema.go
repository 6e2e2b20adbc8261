// Package catalog provides the PostgreSQL-backed template catalog and rule store.
//
// The catalog holds the modality → region → template hierarchy a clinician
// navigates to start a report, the per-template auto-texts and keyword
// replacements, and the global replacement rules applied by the dictation
// pipeline. An optional pgvector index over the templates enables semantic
// search ("find the template for a knee MRI") when an embeddings provider is
// configured; [Migrate] installs the vector extension automatically via
// CREATE EXTENSION IF NOT EXISTS when search is enabled.
//
// Usage:
//
//	store, err := catalog.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	modalities, _ := store.Modalities(ctx)
//	rules, _ := store.Rules(ctx)
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Catalog DDL — modality / region / template hierarchy
// ─────────────────────────────────────────────────────────────────────────────

const ddlCatalog = `
CREATE TABLE IF NOT EXISTS modalities (
    id        TEXT  PRIMARY KEY,
    name      TEXT  NOT NULL,
    position  INT   NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS regions (
    id           TEXT  PRIMARY KEY,
    modality_id  TEXT  NOT NULL REFERENCES modalities (id) ON DELETE CASCADE,
    name         TEXT  NOT NULL,
    position     INT   NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_regions_modality_id
    ON regions (modality_id);

CREATE TABLE IF NOT EXISTS templates (
    id         TEXT  PRIMARY KEY,
    region_id  TEXT  NOT NULL REFERENCES regions (id) ON DELETE CASCADE,
    name       TEXT  NOT NULL,
    base_text  TEXT  NOT NULL,
    position   INT   NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_templates_region_id
    ON templates (region_id);

CREATE TABLE IF NOT EXISTS template_autotexts (
    template_id  TEXT  NOT NULL REFERENCES templates (id) ON DELETE CASCADE,
    position     INT   NOT NULL,
    keyword      TEXT  NOT NULL,
    text         TEXT  NOT NULL,
    PRIMARY KEY (template_id, position)
);

CREATE TABLE IF NOT EXISTS template_keywords (
    template_id  TEXT  NOT NULL REFERENCES templates (id) ON DELETE CASCADE,
    position     INT   NOT NULL,
    from_text    TEXT  NOT NULL,
    to_text      TEXT  NOT NULL,
    PRIMARY KEY (template_id, position)
);
`

// ─────────────────────────────────────────────────────────────────────────────
// Rules DDL — ordered global replacement rules
// ─────────────────────────────────────────────────────────────────────────────

const ddlRules = `
CREATE TABLE IF NOT EXISTS replacement_rules (
    id          TEXT  PRIMARY KEY,
    position    INT   NOT NULL DEFAULT 0,
    from_text   TEXT  NOT NULL,
    to_text     TEXT  NOT NULL,
    auto_apply  BOOL  NOT NULL DEFAULT true
);

CREATE INDEX IF NOT EXISTS idx_replacement_rules_position
    ON replacement_rules (position);
`

// ddlSearch returns the semantic-search DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlSearch(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS template_embeddings (
    template_id  TEXT  PRIMARY KEY REFERENCES templates (id) ON DELETE CASCADE,
    model_id     TEXT  NOT NULL DEFAULT '',
    embedding    vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_template_embeddings_embedding
    ON template_embeddings USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and safe
// to call on every application start.
//
// embeddingDimensions enables the semantic-search schema when greater than
// zero; it must match the output dimension of the configured embeddings model
// (e.g., 1536 for OpenAI text-embedding-3-small, 768 for nomic-embed-text).
// Changing this value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlCatalog,
		ddlRules,
	}
	if embeddingDimensions > 0 {
		statements = append(statements, ddlSearch(embeddingDimensions))
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("catalog migrate: %w", err)
		}
	}
	return nil
}
