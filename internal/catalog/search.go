package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/laudoscribe/laudoscribe/internal/report"
)

// TemplateMatch is one semantic search result: a template and its cosine
// distance to the query (lower is more similar).
type TemplateMatch struct {
	Template report.Template
	Distance float64
}

// IndexTemplate embeds the template's name and base text and upserts the
// vector into the search index. Returns [ErrSearchDisabled] when the store has
// no embeddings provider.
func (s *Store) IndexTemplate(ctx context.Context, tpl report.Template) error {
	if s.embedder == nil {
		return ErrSearchDisabled
	}

	vec, err := s.embedder.Embed(ctx, embeddingText(tpl))
	if err != nil {
		return fmt.Errorf("catalog: index template %q: embed: %w", tpl.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO template_embeddings (template_id, model_id, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (template_id) DO UPDATE SET
		    model_id  = EXCLUDED.model_id,
		    embedding = EXCLUDED.embedding`,
		tpl.ID, s.embedder.ModelID(), pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("catalog: index template %q: %w", tpl.ID, err)
	}
	return nil
}

// SearchTemplates finds the topK templates whose embeddings are closest
// (cosine distance) to the embedding of query. Results are ordered by
// ascending distance (most similar first). Templates that were never indexed
// do not appear in the results.
//
// Returns [ErrSearchDisabled] when the store has no embeddings provider.
func (s *Store) SearchTemplates(ctx context.Context, query string, topK int) ([]TemplateMatch, error) {
	if s.embedder == nil {
		return nil, ErrSearchDisabled
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: search templates: embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.base_text,
		       e.embedding <=> $1 AS distance
		FROM   template_embeddings e
		JOIN   templates t ON t.id = e.template_id
		ORDER  BY distance
		LIMIT  $2`, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("catalog: search templates: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TemplateMatch, error) {
		var m TemplateMatch
		if err := row.Scan(
			&m.Template.ID,
			&m.Template.Name,
			&m.Template.BaseText,
			&m.Distance,
		); err != nil {
			return TemplateMatch{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: search templates: scan rows: %w", err)
	}

	// Load auto-texts and keyword replacements so a matched template can be
	// used directly by the session.
	for i := range matches {
		if err := s.loadTemplateDetails(ctx, &matches[i].Template); err != nil {
			return nil, err
		}
	}
	if matches == nil {
		matches = []TemplateMatch{}
	}
	return matches, nil
}

// embeddingText builds the text that represents a template in the vector
// space. Name and base text together carry both what the clinician calls the
// exam and the anatomical vocabulary of its findings.
func embeddingText(tpl report.Template) string {
	return strings.TrimSpace(tpl.Name + "\n\n" + tpl.BaseText)
}
