package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemEngine(t *testing.T) Engine {
	t.Helper()
	e, err := New(Config{DefaultSearchFields: []string{"message"}}, BuildIndexMapping(""))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func recordDoc(id, msg, severity, kind string, ts float64) Doc {
	return Doc{ID: id, Type: DocTypeRecord, Fields: map[string]any{
		"message":   msg,
		"severity":  severity,
		"kind":      kind,
		"timestamp": ts,
	}}
}

func TestSearchKeywordAndTerms(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	require.NoError(t, e.IndexBatch(ctx, []Doc{
		recordDoc("1", "Trapped under collapsed building", "critical", "sos", 100),
		recordDoc("2", "Need drinking water for family", "low", "message", 200),
		recordDoc("3", "Water rising near the bridge", "high", "sos", 300),
	}))

	n, err := e.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	res, err := e.Search(ctx, SearchRequest{Keyword: "water"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Total)

	res, err = e.Search(ctx, SearchRequest{Keyword: "water", MustTerms: map[string][]string{"severity": {"high"}}})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "3", res.Hits[0].ID)

	min := 150.0
	res, err = e.Search(ctx, SearchRequest{NumericRanges: []NumericRangeFilter{{Field: "timestamp", GTE: &min}}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Total)
}

func TestSearchKeywordWithQuerySyntaxCharacters(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Index(ctx, recordDoc("1", "status: trapped (two people)", "critical", "sos", 1)))

	res, err := e.Search(ctx, SearchRequest{Keyword: "status: (trapped"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Total)
}

func TestFacetsAndDelete(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Index(ctx, recordDoc("1", "a", "critical", "sos", 1)))
	require.NoError(t, e.Index(ctx, recordDoc("2", "b", "critical", "message", 2)))

	res, err := e.Search(ctx, SearchRequest{Facets: []FacetRequest{{Name: "sev", Field: "severity"}}})
	require.NoError(t, err)
	require.Contains(t, res.Facets, "sev")
	require.Len(t, res.Facets["sev"].Terms, 1)
	assert.Equal(t, 2, res.Facets["sev"].Terms[0].Count)

	require.NoError(t, e.Delete(ctx, "1"))
	n, err := e.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestSuggest(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Index(ctx, recordDoc("1", "medical help", "high", "sos", 1)))
	require.NoError(t, e.Index(ctx, recordDoc("2", "medicine needed", "high", "sos", 2)))

	got, err := e.Suggest(ctx, "message", "medic", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"medical help", "medicine needed"}, got)
}

func TestClosedEngine(t *testing.T) {
	e, err := New(Config{IndexPath: filepath.Join(t.TempDir(), "idx.bleve")}, BuildIndexMapping(""))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Search(context.Background(), SearchRequest{Keyword: "x"})
	assert.ErrorIs(t, err, ErrClosed)
}
