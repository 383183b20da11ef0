package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitepulse/api/models"
)

func newTestAnalyticsStore(send func(ctx context.Context, rows []trackingRow) error) *AnalyticsStore {
	s := NewAnalyticsStore(nil, zap.NewNop())
	s.send = send
	return s
}

func TestToTrackingRow(t *testing.T) {
	t.Run("maps purchase fields", func(t *testing.T) {
		row, err := toTrackingRow(models.TablePurchases, purchaseEvent("a"))
		require.NoError(t, err)

		assert.Equal(t, "a", row.EventID)
		assert.Equal(t, "purchases", row.EventKind)
		assert.Equal(t, "site-1", row.SiteID)
		assert.Equal(t, testOwner, row.UserID)
		assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), row.Timestamp)
		require.NotNil(t, row.PriceValue)
		assert.InDelta(t, 97.5, *row.PriceValue, 0.0001)
		assert.Contains(t, row.EventData, `"coupon":"SPRING"`)
	})

	t.Run("missing price stays null", func(t *testing.T) {
		row, err := toTrackingRow(models.TablePageviews, models.Event{
			"id":        "p1",
			"timestamp": "2025-03-01T12:00:00.250Z",
			"url_path":  "/blog",
		})
		require.NoError(t, err)
		assert.Nil(t, row.PriceValue)
		assert.Equal(t, "/blog", row.URLPath)
		assert.Equal(t, 250*time.Millisecond, time.Duration(row.Timestamp.Nanosecond()))
	})

	t.Run("unparseable timestamp falls back to now", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		row, err := toTrackingRow(models.TablePageviews, models.Event{"id": "p1", "timestamp": "yesterday"})
		require.NoError(t, err)
		assert.True(t, row.Timestamp.After(before))
	})

	t.Run("numbers keep their precision", func(t *testing.T) {
		row, err := toTrackingRow(models.TablePurchases, models.Event{"id": "x", "price_value": json.Number("19.99")})
		require.NoError(t, err)
		assert.Contains(t, row.EventData, `"price_value":19.99`)
	})
}

func TestAnalyticsStore_MirrorEvents(t *testing.T) {
	t.Run("sends one batch", func(t *testing.T) {
		var sent []trackingRow
		s := newTestAnalyticsStore(func(_ context.Context, rows []trackingRow) error {
			sent = append(sent, rows...)
			return nil
		})

		err := s.MirrorEvents(context.Background(), models.TablePurchases,
			[]models.Event{purchaseEvent("a"), purchaseEvent("b")})
		require.NoError(t, err)
		assert.Len(t, sent, 2)
	})

	t.Run("empty input does not touch clickhouse", func(t *testing.T) {
		s := newTestAnalyticsStore(func(context.Context, []trackingRow) error {
			t.Fatal("send must not be called")
			return nil
		})
		assert.NoError(t, s.MirrorEvents(context.Background(), models.TablePageviews, nil))
	})

	t.Run("circuit opens after repeated failures", func(t *testing.T) {
		calls := 0
		s := newTestAnalyticsStore(func(context.Context, []trackingRow) error {
			calls++
			return errors.New("connection refused")
		})
		events := []models.Event{purchaseEvent("a")}

		for i := 0; i < 5; i++ {
			err := s.MirrorEvents(context.Background(), models.TablePurchases, events)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrMirrorUnavailable)
		}

		err := s.MirrorEvents(context.Background(), models.TablePurchases, events)
		assert.ErrorIs(t, err, ErrMirrorUnavailable)
		assert.Equal(t, 5, calls)
	})
}
