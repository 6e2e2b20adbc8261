package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/laudoscribe/laudoscribe/internal/report"
)

// ─────────────────────────────────────────────────────────────────────────────
// Read API — modality tree and rules
// ─────────────────────────────────────────────────────────────────────────────

// Modalities returns the full modality → region → template tree, ordered by
// each level's position column. Auto-texts and keyword replacements are loaded
// for every template.
func (s *Store) Modalities(ctx context.Context) ([]report.Modality, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name FROM modalities ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list modalities: %w", err)
	}
	type modRow struct {
		ID   string
		Name string
	}
	mods, err := pgx.CollectRows(rows, pgx.RowToStructByPos[modRow])
	if err != nil {
		return nil, fmt.Errorf("catalog: scan modalities: %w", err)
	}

	result := make([]report.Modality, 0, len(mods))
	for _, m := range mods {
		regions, err := s.regionsForModality(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, report.Modality{
			ID:      m.ID,
			Name:    m.Name,
			Regions: regions,
		})
	}
	return result, nil
}

// regionsForModality loads the regions of one modality with their templates.
func (s *Store) regionsForModality(ctx context.Context, modalityID string) ([]report.Region, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name FROM regions
		WHERE  modality_id = $1
		ORDER  BY position, id`, modalityID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list regions: %w", err)
	}
	type regRow struct {
		ID   string
		Name string
	}
	regs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[regRow])
	if err != nil {
		return nil, fmt.Errorf("catalog: scan regions: %w", err)
	}

	result := make([]report.Region, 0, len(regs))
	for _, r := range regs {
		tpls, err := s.templatesForRegion(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, report.Region{
			ID:        r.ID,
			Name:      r.Name,
			Templates: tpls,
		})
	}
	return result, nil
}

// templatesForRegion loads the templates of one region including their
// auto-texts and keyword replacements.
func (s *Store) templatesForRegion(ctx context.Context, regionID string) ([]report.Template, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, base_text FROM templates
		WHERE  region_id = $1
		ORDER  BY position, id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list templates: %w", err)
	}
	type tplRow struct {
		ID       string
		Name     string
		BaseText string
	}
	tpls, err := pgx.CollectRows(rows, pgx.RowToStructByPos[tplRow])
	if err != nil {
		return nil, fmt.Errorf("catalog: scan templates: %w", err)
	}

	result := make([]report.Template, 0, len(tpls))
	for _, t := range tpls {
		tpl := report.Template{ID: t.ID, Name: t.Name, BaseText: t.BaseText}
		if err := s.loadTemplateDetails(ctx, &tpl); err != nil {
			return nil, err
		}
		result = append(result, tpl)
	}
	return result, nil
}

// Template returns a single template by ID, including its auto-texts and
// keyword replacements. Returns [ErrNotFound] if no such template exists.
func (s *Store) Template(ctx context.Context, id string) (report.Template, error) {
	var tpl report.Template
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, base_text FROM templates WHERE id = $1`, id).
		Scan(&tpl.ID, &tpl.Name, &tpl.BaseText)
	if errors.Is(err, pgx.ErrNoRows) {
		return report.Template{}, fmt.Errorf("catalog: template %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return report.Template{}, fmt.Errorf("catalog: get template: %w", err)
	}
	if err := s.loadTemplateDetails(ctx, &tpl); err != nil {
		return report.Template{}, err
	}
	return tpl, nil
}

// loadTemplateDetails populates the auto-texts and keyword replacements of tpl.
func (s *Store) loadTemplateDetails(ctx context.Context, tpl *report.Template) error {
	atRows, err := s.pool.Query(ctx, `
		SELECT keyword, text FROM template_autotexts
		WHERE  template_id = $1
		ORDER  BY position`, tpl.ID)
	if err != nil {
		return fmt.Errorf("catalog: list auto-texts: %w", err)
	}
	tpl.AutoTexts, err = pgx.CollectRows(atRows, pgx.RowToStructByPos[report.AutoText])
	if err != nil {
		return fmt.Errorf("catalog: scan auto-texts: %w", err)
	}

	kwRows, err := s.pool.Query(ctx, `
		SELECT from_text, to_text FROM template_keywords
		WHERE  template_id = $1
		ORDER  BY position`, tpl.ID)
	if err != nil {
		return fmt.Errorf("catalog: list keyword replacements: %w", err)
	}
	tpl.KeywordReplacements, err = pgx.CollectRows(kwRows, pgx.RowToStructByPos[report.KeywordReplacement])
	if err != nil {
		return fmt.Errorf("catalog: scan keyword replacements: %w", err)
	}
	return nil
}

// Rules returns all replacement rules ordered by position. The order is the
// application order of the rule substitution engine.
func (s *Store) Rules(ctx context.Context) ([]report.ReplacementRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_text, to_text, auto_apply FROM replacement_rules
		ORDER  BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, pgx.RowToStructByPos[report.ReplacementRule])
	if err != nil {
		return nil, fmt.Errorf("catalog: scan rules: %w", err)
	}
	return rules, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Write API — catalog CRUD
// ─────────────────────────────────────────────────────────────────────────────

// UpsertModality creates or updates a modality.
func (s *Store) UpsertModality(ctx context.Context, m report.Modality, position int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO modalities (id, name, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
		    name     = EXCLUDED.name,
		    position = EXCLUDED.position`,
		m.ID, m.Name, position)
	if err != nil {
		return fmt.Errorf("catalog: upsert modality: %w", err)
	}
	return nil
}

// UpsertRegion creates or updates a region under the given modality.
func (s *Store) UpsertRegion(ctx context.Context, modalityID string, r report.Region, position int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO regions (id, modality_id, name, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    modality_id = EXCLUDED.modality_id,
		    name        = EXCLUDED.name,
		    position    = EXCLUDED.position`,
		r.ID, modalityID, r.Name, position)
	if err != nil {
		return fmt.Errorf("catalog: upsert region: %w", err)
	}
	return nil
}

// UpsertTemplate creates or updates a template under the given region,
// replacing its auto-texts and keyword replacements wholesale. The whole
// operation runs in a single transaction.
//
// When semantic search is enabled the template is re-indexed after the
// transaction commits; an indexing failure is returned but leaves the stored
// template intact.
func (s *Store) UpsertTemplate(ctx context.Context, regionID string, tpl report.Template, position int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog: upsert template: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO templates (id, region_id, name, base_text, position)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    region_id = EXCLUDED.region_id,
		    name      = EXCLUDED.name,
		    base_text = EXCLUDED.base_text,
		    position  = EXCLUDED.position`,
		tpl.ID, regionID, tpl.Name, tpl.BaseText, position)
	if err != nil {
		return fmt.Errorf("catalog: upsert template: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM template_autotexts WHERE template_id = $1`, tpl.ID); err != nil {
		return fmt.Errorf("catalog: upsert template: clear auto-texts: %w", err)
	}
	for i, at := range tpl.AutoTexts {
		_, err := tx.Exec(ctx, `
			INSERT INTO template_autotexts (template_id, position, keyword, text)
			VALUES ($1, $2, $3, $4)`,
			tpl.ID, i, at.Keyword, at.Text)
		if err != nil {
			return fmt.Errorf("catalog: upsert template: auto-text %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM template_keywords WHERE template_id = $1`, tpl.ID); err != nil {
		return fmt.Errorf("catalog: upsert template: clear keyword replacements: %w", err)
	}
	for i, kw := range tpl.KeywordReplacements {
		_, err := tx.Exec(ctx, `
			INSERT INTO template_keywords (template_id, position, from_text, to_text)
			VALUES ($1, $2, $3, $4)`,
			tpl.ID, i, kw.From, kw.To)
		if err != nil {
			return fmt.Errorf("catalog: upsert template: keyword replacement %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("catalog: upsert template: commit: %w", err)
	}

	if s.embedder != nil {
		if err := s.IndexTemplate(ctx, tpl); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTemplate removes a template. Its auto-texts, keyword replacements and
// embedding are removed by cascade. Returns [ErrNotFound] if no row was deleted.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: template %q: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertRule creates or updates a replacement rule at the given position in
// the global rule order.
func (s *Store) UpsertRule(ctx context.Context, rule report.ReplacementRule, position int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replacement_rules (id, position, from_text, to_text, auto_apply)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    position   = EXCLUDED.position,
		    from_text  = EXCLUDED.from_text,
		    to_text    = EXCLUDED.to_text,
		    auto_apply = EXCLUDED.auto_apply`,
		rule.ID, position, rule.From, rule.To, rule.AutoApply)
	if err != nil {
		return fmt.Errorf("catalog: upsert rule: %w", err)
	}
	return nil
}

// DeleteRule removes a replacement rule. Returns [ErrNotFound] if no row was
// deleted.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM replacement_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: rule %q: %w", id, ErrNotFound)
	}
	return nil
}
