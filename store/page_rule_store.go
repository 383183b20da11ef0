package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"sitepulse/api/models"
)

// PageRuleStore reads the per-site page classification rules.
type PageRuleStore struct {
	db *sql.DB
}

func NewPageRuleStore(db *sql.DB) *PageRuleStore {
	return &PageRuleStore{db: db}
}

// PageRules returns the rules of every site in siteIDs, oldest first.
func (s *PageRuleStore) PageRules(ctx context.Context, siteIDs []string) ([]models.PageRule, error) {
	if len(siteIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, site_id, path, page_type, created_at
		FROM site_pages
		WHERE site_id = ANY($1)
		ORDER BY created_at ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(siteIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query page rules: %w", err)
	}
	defer rows.Close()

	var rules []models.PageRule
	for rows.Next() {
		var rule models.PageRule
		if err := rows.Scan(&rule.ID, &rule.SiteID, &rule.Path, &rule.PageType, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating page rules: %w", err)
	}
	return rules, nil
}
