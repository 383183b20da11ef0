package ingest

import (
	"context"

	"sitepulse/api/models"
)

// PageRuleDirectory is the persisted set of per-site path classifications.
type PageRuleDirectory interface {
	PageRules(ctx context.Context, siteIDs []string) ([]models.PageRule, error)
}

// Classifier assigns content types from a snapshot of page rules.
type Classifier struct {
	rules map[string]map[string]string // site id -> path -> page type
}

// NewClassifier indexes rules by site and normalized path. When two rules
// collide on (site, path) the later one wins.
func NewClassifier(rules []models.PageRule) *Classifier {
	c := &Classifier{rules: make(map[string]map[string]string)}
	for _, rule := range rules {
		if rule.PageType == "" {
			continue
		}
		paths, ok := c.rules[rule.SiteID]
		if !ok {
			paths = make(map[string]string)
			c.rules[rule.SiteID] = paths
		}
		paths[PathOf(rule.Path)] = rule.PageType
	}
	return c
}

// Classify returns the content type for an event already resolved to siteID.
// Commerce tables are always sales pages; pageviews take a matching page rule
// and otherwise keep the event's own content_type, defaulting to article.
func (c *Classifier) Classify(table models.Table, siteID string, evt models.Event) string {
	label := evt.String("content_type")
	if label == "" {
		label = models.ContentTypeArticle
	}
	if table.Commerce() {
		return models.ContentTypeSalesPage
	}
	if table != models.TablePageviews {
		return label
	}

	source := evt.String("url_path")
	if source == "" {
		source = evt.String("url_full")
	}
	if source == "" {
		return label
	}
	if pageType, ok := c.rules[siteID][PathOf(source)]; ok {
		return pageType
	}
	return label
}
