package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRuleStore_PageRules(t *testing.T) {
	t.Run("loads rules for all sites in one query", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPageRuleStore(db)
		now := time.Now()

		rows := sqlmock.NewRows([]string{"id", "site_id", "path", "page_type", "created_at"}).
			AddRow("r1", "site-1", "/offer", "sales_page", now).
			AddRow("r2", "site-2", "/", "article", now)
		mock.ExpectQuery(`SELECT id, site_id, path, page_type, created_at\s+FROM site_pages\s+WHERE site_id = ANY\(\$1\)`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(rows)

		rules, err := store.PageRules(context.Background(), []string{"site-1", "site-2"})
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, "/offer", rules[0].Path)
		assert.Equal(t, "sales_page", rules[0].PageType)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no sites skips the query", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPageRuleStore(db)

		rules, err := store.PageRules(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, rules)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPageRuleStore(db)

		mock.ExpectQuery(`FROM site_pages`).WillReturnError(errors.New("timeout"))

		_, err := store.PageRules(context.Background(), []string{"site-1"})
		require.Error(t, err)
	})
}
