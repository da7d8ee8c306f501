package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/router/router/catalog"
)

type fakeSource struct {
	entries []catalog.Entry
	results []catalog.SearchResult
	err     error
}

func (f fakeSource) ListEntries(context.Context) ([]catalog.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f fakeSource) Search(context.Context, string) ([]catalog.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestManagerListEntriesTagsOrigin(t *testing.T) {
	mgr := catalog.NewManager()
	mgr.AddSource("peer-a", fakeSource{entries: []catalog.Entry{{AbsolutePath: "/a"}}}, 0)

	entries, err := mgr.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "peer-a", entries[0].Origin)
}

func TestManagerListEntriesFailsOnlyWhenAllSourcesFail(t *testing.T) {
	mgr := catalog.NewManager()
	mgr.AddSource("ok", fakeSource{entries: []catalog.Entry{{AbsolutePath: "/ok"}}}, 0)
	mgr.AddSource("down", fakeSource{err: errors.New("unreachable")}, 0)

	entries, err := mgr.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	mgr2 := catalog.NewManager()
	mgr2.AddSource("down", fakeSource{err: errors.New("unreachable")}, 0)
	_, err = mgr2.ListEntries(context.Background())
	assert.Error(t, err)
}

func TestManagerSearchMergesAndRanksByRelevance(t *testing.T) {
	mgr := catalog.NewManager()
	mgr.AddSource("a", fakeSource{results: []catalog.SearchResult{
		{ID: "low", Name: "unrelated"},
	}}, 0)
	mgr.AddSource("b", fakeSource{results: []catalog.SearchResult{
		{ID: "high", Name: "deploy service", Description: "deploy a service to prod"},
	}}, 0)

	results, err := mgr.Search(context.Background(), "deploy", catalog.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "high", results[0].ID)
}

// TestMemoryCacheExpiresAfterTTLProperty mirrors runtime/registry's
// cache-expiry property test: for any positive TTL, a Get performed
// strictly after the TTL has elapsed must miss.
func TestMemoryCacheExpiresAfterTTLProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("cache entries miss strictly after their TTL", prop.ForAll(
		func(ttlMillis int) bool {
			cache := catalog.NewMemoryCache()
			ttl := time.Duration(ttlMillis) * time.Millisecond
			ctx := context.Background()
			cache.Set(ctx, "k", []catalog.Entry{{AbsolutePath: "/x"}}, ttl)

			if _, ok := cache.Get(ctx, "k"); !ok {
				return false
			}
			time.Sleep(ttl + 5*time.Millisecond)
			_, ok := cache.Get(ctx, "k")
			return !ok
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
