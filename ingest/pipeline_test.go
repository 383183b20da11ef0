package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/api/config"
	"sitepulse/api/models"
)

type pipelineFixture struct {
	sites  *memSites
	rules  *memRules
	events *memEvents
	mirror *memMirror
}

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		sites: newMemSites(owner).add(
			models.Site{ID: "site-1", UserID: owner, Name: "Example", URL: "https://example.com"},
		),
		rules: &memRules{rules: []models.PageRule{
			{SiteID: "site-1", Path: "/oferta", PageType: models.ContentTypeSalesPage},
		}},
		events: newMemEvents(),
		mirror: &memMirror{},
	}
}

func (f *pipelineFixture) pipeline(policy, mode string) *Pipeline {
	return New(f.sites, f.rules, f.events, f.mirror, Options{
		OwnerID: owner,
		Policy:  policy,
		Mode:    mode,
		Now:     func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}, nil)
}

func TestPipeline_OwnerIsolation(t *testing.T) {
	f := newFixture()
	body := `{"table":"pageviews","events":[{"id":"evt-1","url":"https://example.com/a","user_id":"intruder","userId":"intruder","site_id":"site-1"}]}`

	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).Process(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)

	row := f.events.rows[models.TablePageviews]["evt-1"]
	require.NotNil(t, row)
	assert.Equal(t, owner, row["user_id"])
	assert.NotContains(t, row, "userId")
}

func TestPipeline_Idempotent(t *testing.T) {
	f := newFixture()
	p := f.pipeline(config.PolicyAutoRegister, config.ModeBatch)
	body := []byte(`{"eventType":"PAGEVIEW","id":"evt-1","url":"https://example.com/a","visitor_id":"v1"}`)

	for i := 0; i < 2; i++ {
		resp, err := p.Process(context.Background(), body)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Count)
	}
	assert.Len(t, f.events.all(models.TablePageviews), 1)
	assert.Equal(t, 2, f.events.calls)
}

func TestPipeline_Classification(t *testing.T) {
	f := newFixture()
	body := `{"events":[
		{"eventType":"PAGEVIEW","id":"pv-offer","url":"https://example.com/oferta"},
		{"eventType":"PAGEVIEW","id":"pv-post","url":"https://example.com/post"},
		{"eventType":"PURCHASE","id":"buy-1","url":"https://example.com/oferta","content_type":"article"}
	]}`

	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).Process(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, 1, f.rules.calls, "page rules are read once per request")

	assert.Equal(t, models.ContentTypeSalesPage, f.events.rows[models.TablePageviews]["pv-offer"]["content_type"])
	assert.Equal(t, models.ContentTypeArticle, f.events.rows[models.TablePageviews]["pv-post"]["content_type"])
	assert.Equal(t, models.ContentTypeSalesPage, f.events.rows[models.TablePurchases]["buy-1"]["content_type"])
	assert.Equal(t, models.ContentTypeSalesPage, resp.Results[2].ContentType)
}

func TestPipeline_StrictDropsUnmatched(t *testing.T) {
	f := newFixture()
	body := `{"table":"pageviews","events":[
		{"id":"a","url":"https://www.example.com/"},
		{"id":"b","url":"https://unknown.io/","site_id":"site-1"},
		{"id":"c","url":"https://notexample.com/"}
	]}`

	resp, err := f.pipeline(config.PolicyStrict, config.ModeBatch).Process(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, models.StatusStored, resp.Results[0].Status)
	assert.Equal(t, models.StatusDropped, resp.Results[1].Status)
	assert.Equal(t, models.StatusDropped, resp.Results[2].Status)
	assert.Empty(t, resp.Results[1].Error)
	assert.Empty(t, f.sites.upserts)
}

func TestPipeline_StrictAllDroppedStillSucceeds(t *testing.T) {
	f := newFixture()
	resp, err := f.pipeline(config.PolicyStrict, config.ModeBatch).
		Process(context.Background(), []byte(`{"eventType":"PAGEVIEW","url":"https://nowhere.io"}`))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Zero(t, resp.Count)
	assert.Zero(t, f.events.calls)
	assert.Zero(t, f.rules.calls)
}

func TestPipeline_AutoRegistersUnknownSite(t *testing.T) {
	f := newFixture()
	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).
		Process(context.Background(), []byte(`{"eventType":"PAGEVIEW","id":"e","url":"https://fresh.io/x"}`))
	require.NoError(t, err)
	require.Len(t, f.sites.upserts, 1)

	site := f.sites.upserts[0]
	assert.Equal(t, site.ID, resp.Results[0].SiteID)
	assert.Equal(t, site.ID, f.events.rows[models.TablePageviews]["e"]["site_id"])
}

func TestPipeline_RejectsDisallowedTable(t *testing.T) {
	f := newFixture()
	_, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).
		Process(context.Background(), []byte(`{"table":"public.users","events":[{"id":"x"}]}`))
	assert.ErrorIs(t, err, ErrInvalidTable)
	assert.Zero(t, f.events.calls)
}

func TestPipeline_PartialRejections(t *testing.T) {
	f := newFixture()
	body := `[{"eventType":"PAGEVIEW","id":"ok","url":"https://example.com"},{"table":"users","id":"bad"}]`

	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).Process(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, models.StatusRejected, resp.Results[1].Status)
	assert.Contains(t, resp.Results[1].Error, "users")
}

func TestPipeline_FillsIDAndTimestamp(t *testing.T) {
	f := newFixture()
	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).
		Process(context.Background(), []byte(`{"eventType":"PAGEVIEW","url":"https://example.com"}`))
	require.NoError(t, err)

	id := resp.Results[0].ID
	require.NotEmpty(t, id)
	row := f.events.rows[models.TablePageviews][id]
	assert.Equal(t, "2025-03-01T12:00:00Z", row["timestamp"])
}

func TestPipeline_DuplicateIDsCollapse(t *testing.T) {
	f := newFixture()
	body := `{"table":"pageviews","events":[
		{"id":"dup","url":"https://example.com/first"},
		{"id":"dup","url":"https://example.com/second"}
	]}`

	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).Process(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, models.StatusSuperseded, resp.Results[0].Status)
	assert.Equal(t, models.StatusStored, resp.Results[1].Status)
	assert.Equal(t, 1, f.events.calls)
	assert.Len(t, f.events.rows[models.TablePageviews], 1)
	assert.Equal(t, "https://example.com/second", f.events.rows[models.TablePageviews]["dup"]["url_full"])
}

func TestPipeline_DuplicateIDsCollapsePerEvent(t *testing.T) {
	f := newFixture()
	body := `{"table":"pageviews","events":[
		{"id":"dup","url":"https://example.com/first"},
		{"id":"other","url":"https://example.com/"},
		{"id":"dup","url":"https://example.com/second"}
	]}`

	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModePerEvent).Process(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, models.StatusSuperseded, resp.Results[0].Status)
	assert.Equal(t, 2, f.events.calls)
	assert.Equal(t, "https://example.com/second", f.events.rows[models.TablePageviews]["dup"]["url_full"])
}

func TestPipeline_BatchPersistenceFailure(t *testing.T) {
	f := newFixture()
	f.events.failOn = "boom"
	_, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).Process(context.Background(),
		[]byte(`{"table":"purchases","events":[{"id":"fine","url":"https://example.com"},{"id":"boom","url":"https://example.com"}]}`))

	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "not-null constraint")
}

func TestPipeline_PerEventReportsEachOutcome(t *testing.T) {
	f := newFixture()
	f.events.failOn = "boom"
	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModePerEvent).Process(context.Background(),
		[]byte(`{"table":"purchases","events":[{"id":"fine","url":"https://example.com"},{"id":"boom","url":"https://example.com"}]}`))

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, models.StatusStored, resp.Results[0].Status)
	assert.Equal(t, models.StatusFailed, resp.Results[1].Status)
	assert.Contains(t, resp.Results[1].Error, "not-null constraint")
	assert.Equal(t, 2, f.events.calls)
}

func TestPipeline_MirrorIsBestEffort(t *testing.T) {
	f := newFixture()
	f.mirror.err = errors.New("clickhouse unavailable")

	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).Process(context.Background(),
		[]byte(`[{"eventType":"PAGEVIEW","url":"https://example.com"},{"eventType":"PURCHASE","url":"https://example.com"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.ElementsMatch(t, []models.Table{models.TablePageviews, models.TablePurchases}, f.mirror.tables)
	assert.Equal(t, 2, f.mirror.events)
}

func TestPipeline_ConfigurationAndDirectoryErrors(t *testing.T) {
	f := newFixture()
	p := New(f.sites, f.rules, f.events, nil, Options{Policy: config.PolicyAutoRegister}, nil)
	_, err := p.Process(context.Background(), []byte(`{"eventType":"PAGEVIEW"}`))
	assert.ErrorIs(t, err, ErrConfiguration)

	f.rules.err = errors.New("relation \"site_pages\" does not exist")
	_, err = f.pipeline(config.PolicyAutoRegister, config.ModeBatch).
		Process(context.Background(), []byte(`{"eventType":"PAGEVIEW","url":"https://example.com"}`))
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestPipeline_EmptyBatch(t *testing.T) {
	f := newFixture()
	resp, err := f.pipeline(config.PolicyAutoRegister, config.ModeBatch).Process(context.Background(), []byte(`{"events":[]}`))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Results)
}
