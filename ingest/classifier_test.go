package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sitepulse/api/models"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier([]models.PageRule{
		{SiteID: "site-1", Path: "/oferta", PageType: models.ContentTypeSalesPage},
		{SiteID: "site-1", Path: "/blog/", PageType: "normal_page"},
		{SiteID: "site-2", Path: "/checkout", PageType: "normal_page"},
		{SiteID: "site-1", Path: "/", PageType: "normal_page"},
	})

	tests := []struct {
		name   string
		table  models.Table
		siteID string
		evt    models.Event
		want   string
	}{
		{"purchase ignores rules", models.TablePurchases, "site-2", models.Event{"url_full": "https://x.com/checkout"}, models.ContentTypeSalesPage},
		{"checkout ignores explicit type", models.TableInitiateCheckouts, "site-1", models.Event{"content_type": "article"}, models.ContentTypeSalesPage},
		{"pageview rule by full url", models.TablePageviews, "site-1", models.Event{"url_full": "https://x.com/oferta?utm_source=fb"}, models.ContentTypeSalesPage},
		{"pageview rule by bare path", models.TablePageviews, "site-1", models.Event{"url_path": "/oferta/"}, models.ContentTypeSalesPage},
		{"schemeless path is not the root", models.TablePageviews, "site-1", models.Event{"url_path": "oferta"}, models.ContentTypeSalesPage},
		{"rule path normalized", models.TablePageviews, "site-1", models.Event{"url_full": "https://x.com/blog"}, "normal_page"},
		{"rule overrides explicit type", models.TablePageviews, "site-1", models.Event{"url_path": "/oferta", "content_type": "video"}, models.ContentTypeSalesPage},
		{"rules are per site", models.TablePageviews, "site-2", models.Event{"url_full": "https://x.com/oferta"}, models.ContentTypeArticle},
		{"unmatched defaults to article", models.TablePageviews, "site-1", models.Event{"url_full": "https://x.com/about"}, models.ContentTypeArticle},
		{"unmatched keeps explicit type", models.TablePageviews, "site-1", models.Event{"url_full": "https://x.com/about", "content_type": "video"}, "video"},
		{"no url", models.TablePageviews, "site-1", models.Event{}, models.ContentTypeArticle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.table, tt.siteID, tt.evt))
		})
	}
}
