// Package catalog federates Router.Registry() output across multiple
// router processes (SPEC_FULL.md's "Router Catalog federation"), adapted
// from the teacher's runtime/registry package: a TTL cache in front of one
// or more catalog sources, plus keyword search merged across sources and
// tagged with origin. A single-process deployment never needs this package;
// it exists for the multi-process case where a local Router's registry()
// only sees a slice of the full tool catalog.
package catalog

import (
	"context"
	"time"

	"github.com/agentmesh/router/router"
)

// Entry is one row of a catalog: a tool reachable at an absolute path,
// tagged with the process that owns it.
type Entry struct {
	AbsolutePath router.Path
	Descriptor   router.ToolDescriptor
	// Origin names the source this entry came from ("" for the local
	// router, otherwise the name a remote source was registered under).
	Origin string
}

// SearchResult is one ranked hit from Manager.Search.
type SearchResult struct {
	ID             string
	Name           string
	Description    string
	RelevanceScore float64
	Tags           []string
	Origin         string
}

// Source is a catalog contributor: the local router, or a federation/grpc
// client fronting a remote router process's catalog.
type Source interface {
	// ListEntries returns every tool the source currently exposes.
	ListEntries(ctx context.Context) ([]Entry, error)
	// Search performs a keyword search local to this source.
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// LocalSource adapts a *router.Router into a Source by calling Registry().
type LocalSource struct {
	Router *router.Router
}

// ListEntries implements Source over router.Router.Registry.
func (s LocalSource) ListEntries(_ context.Context) ([]Entry, error) {
	rows, err := s.Router.Registry()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = Entry{AbsolutePath: row.AbsolutePath, Descriptor: row.Descriptor}
	}
	return entries, nil
}

// Search implements Source by returning every registry entry, each scored
// by ComputeKeywordRelevance (name, falling back to id, and description).
// Entries are not filtered here: one that does not match scores 0.
func (s LocalSource) Search(ctx context.Context, query string) ([]SearchResult, error) {
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		r := SearchResult{
			ID:          e.Descriptor.ID,
			Name:        e.Descriptor.Name,
			Description: e.Descriptor.Description,
		}
		if r.Name == "" {
			r.Name = r.ID
		}
		r.RelevanceScore = ComputeKeywordRelevance(query, r)
		results = append(results, r)
	}
	return results, nil
}

// cacheEntryTTL is the default TTL applied when a Manager's entries are
// cached without an explicit one (mirrors runtime/registry's 1h default).
const cacheEntryTTL = time.Hour
