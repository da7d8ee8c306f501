package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmesh/router/telemetry"
)

// Manager federates one or more Sources behind a shared Cache, merging
// ListEntries/Search results and tagging each with its source's name.
// Adapted from runtime/registry's Manager, generalized from toolset
// discovery to the Router's flatter Entry/SearchResult shape.
type Manager struct {
	mu      sync.RWMutex
	sources map[string]sourceEntry

	cache   Cache
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

type sourceEntry struct {
	source Source
	ttl    time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache overrides the default MemoryCache.
func WithCache(c Cache) Option { return func(m *Manager) { m.cache = c } }

// WithLogger sets the Manager's logger.
func WithLogger(l telemetry.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMetrics sets the Manager's metrics recorder.
func WithMetrics(met telemetry.Metrics) Option { return func(m *Manager) { m.metrics = met } }

// WithTracer sets the Manager's tracer.
func WithTracer(t telemetry.Tracer) Option { return func(m *Manager) { m.tracer = t } }

// NewManager constructs a Manager. The local router should be registered
// with AddSource(name, catalog.LocalSource{Router: rtr}, ...) under an empty
// or process-identifying name.
func NewManager(opts ...Option) *Manager {
	m := &Manager{sources: make(map[string]sourceEntry)}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewMemoryCache()
	}
	if m.logger == nil {
		m.logger = telemetry.NewNopLogger()
	}
	if m.metrics == nil {
		m.metrics = telemetry.NewNopMetrics()
	}
	if m.tracer == nil {
		m.tracer = telemetry.NewNopTracer()
	}
	return m
}

// AddSource registers source under name with the given cache TTL (0 uses
// the package default of one hour).
func (m *Manager) AddSource(name string, source Source, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[name] = sourceEntry{source: source, ttl: ttl}
}

// RemoveSource drops a previously registered source (e.g. a federated peer
// that dropped out of health tracking).
func (m *Manager) RemoveSource(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, name)
	m.cache.Delete(context.Background(), name)
}

// ListEntries returns the merged, origin-tagged catalog from every
// registered source, serving from cache when fresh.
func (m *Manager) ListEntries(ctx context.Context) ([]Entry, error) {
	ctx, span := m.tracer.Start(ctx, "catalog.list")
	defer span.End()

	m.mu.RLock()
	entries := make(map[string]sourceEntry, len(m.sources))
	for name, e := range m.sources {
		entries[name] = e
	}
	m.mu.RUnlock()

	var merged []Entry
	var errs []error
	for name, entry := range entries {
		list, err := m.listOne(ctx, name, entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", name, err))
			continue
		}
		merged = append(merged, list...)
	}
	if len(errs) == len(entries) && len(errs) > 0 {
		span.RecordError(errs[0])
		return nil, fmt.Errorf("catalog: all sources failed: %v", errs)
	}
	return merged, nil
}

func (m *Manager) listOne(ctx context.Context, name string, entry sourceEntry) ([]Entry, error) {
	if cached, ok := m.cache.Get(ctx, name); ok {
		m.metrics.IncCounter("catalog.cache.hit", 1, "source", name)
		return cached, nil
	}
	m.metrics.IncCounter("catalog.cache.miss", 1, "source", name)

	start := time.Now()
	list, err := entry.source.ListEntries(ctx)
	m.metrics.RecordTimer("catalog.list.duration", time.Since(start), "source", name)
	if err != nil {
		m.logger.Warn(ctx, "catalog source list failed", "source", name, "error", err)
		return nil, err
	}
	for i := range list {
		if list[i].Origin == "" {
			list[i].Origin = name
		}
	}
	m.cache.Set(ctx, name, list, entry.ttl)
	return list, nil
}

// Search performs a keyword search across every matching registered
// source concurrently, merges, filters and ranks the results.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := m.tracer.Start(ctx, "catalog.search", trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	m.mu.RLock()
	entries := make(map[string]sourceEntry, len(m.sources))
	for name, e := range m.sources {
		if len(opts.Sources) == 0 || containsString(opts.Sources, name) {
			entries[name] = e
		}
	}
	m.mu.RUnlock()

	if len(entries) == 0 {
		return nil, nil
	}

	type out struct {
		name    string
		results []SearchResult
		err     error
	}
	ch := make(chan out, len(entries))
	var wg sync.WaitGroup
	for name, entry := range entries {
		wg.Add(1)
		go func(name string, entry sourceEntry) {
			defer wg.Done()
			results, err := entry.source.Search(ctx, query)
			if err == nil {
				for i := range results {
					if results[i].Origin == "" {
						results[i].Origin = name
					}
					if results[i].RelevanceScore == 0 {
						results[i].RelevanceScore = ComputeKeywordRelevance(query, results[i])
					}
				}
			}
			ch <- out{name: name, results: results, err: err}
		}(name, entry)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	var merged []SearchResult
	var errs []error
	for o := range ch {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", o.name, o.err))
			m.logger.Warn(ctx, "catalog source search failed", "source", o.name, "error", o.err)
			continue
		}
		merged = append(merged, o.results...)
	}
	if len(errs) == len(entries) && len(errs) > 0 {
		return nil, fmt.Errorf("catalog: all sources failed: %v", errs)
	}
	return filterAndRank(merged, opts), nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
