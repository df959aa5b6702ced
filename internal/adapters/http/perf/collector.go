// Package perf keeps a bounded in-process record of request and query
// timings for the owner perf view.
package perf

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes request vs query entries.
type EntryKind uint8

const (
	KindRequest EntryKind = iota
	KindQuery
)

// Entry is a single timing record.
type Entry struct {
	Kind       EntryKind
	Path       string // "METHOD /path" or a query label such as "select record"
	StatusCode int    // HTTP status (0 for queries)
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring of timing entries.
// INVARIANT: when full, Record overwrites the oldest entry
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	total   atomic.Int64
}

// NewCollector creates a collector holding at most size entries.
// A non-positive size falls back to DefaultRingSize.
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{entries: make([]Entry, size)}
}

// Record stores e, evicting the oldest entry when the ring is full.
func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	c.entries[c.next] = e
	c.next = (c.next + 1) % len(c.entries)
	c.mu.Unlock()
	c.total.Add(1)
}

// TotalRecorded returns how many entries were ever recorded, evicted ones included.
func (c *Collector) TotalRecorded() int64 {
	return c.total.Load()
}

// Snapshot is the owner-facing aggregate of one time window.
type Snapshot struct {
	TotalRequests  int64          `json:"totalRecorded"`
	WindowRequests int            `json:"windowRequests"`
	RequestP50Ms   float64        `json:"requestP50Ms"`
	RequestP95Ms   float64        `json:"requestP95Ms"`
	RequestP99Ms   float64        `json:"requestP99Ms"`
	QueryP95Ms     float64        `json:"queryP95Ms"`
	StatusClasses  map[string]int `json:"statusClasses"` // "2xx", "4xx", ...
	SlowestPaths   []PathStat     `json:"slowestPaths"`
	SlowestQueries []PathStat     `json:"slowestQueries"`
}

// PathStat aggregates timing for a single route or query label.
type PathStat struct {
	Path    string  `json:"path"`
	AvgMs   float64 `json:"avgMs"`
	MaxMs   float64 `json:"maxMs"`
	Count   int     `json:"count"`
	TotalMs float64 `json:"totalMs"`
}

func (s *PathStat) add(ms float64) {
	s.Count++
	s.TotalMs += ms
	s.MaxMs = max(s.MaxMs, ms)
}

// window accumulates one entry kind.
type window struct {
	durations []float64
	byPath    map[string]*PathStat
}

func newWindow() *window { return &window{byPath: map[string]*PathStat{}} }

func (w *window) add(e Entry) {
	w.durations = append(w.durations, e.DurationMs)
	s, ok := w.byPath[e.Path]
	if !ok {
		s = &PathStat{Path: e.Path}
		w.byPath[e.Path] = s
	}
	s.add(e.DurationMs)
}

// slowest returns the n paths with the highest average duration.
func (w *window) slowest(n int) []PathStat {
	list := make([]PathStat, 0, len(w.byPath))
	for _, s := range w.byPath {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	slices.SortFunc(list, func(a, b PathStat) int {
		if c := cmp.Compare(b.AvgMs, a.AvgMs); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	if n >= 0 && len(list) > n {
		list = list[:n]
	}
	return list
}

// Snapshot aggregates entries recorded at or after since, keeping the topN
// slowest routes and queries. Only the owner perf endpoint calls this.
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := slices.Clone(c.entries)
	c.mu.Unlock()

	requests, queries := newWindow(), newWindow()
	classes := map[string]int{}
	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		switch e.Kind {
		case KindRequest:
			requests.add(e)
			classes[statusClass(e.StatusCode)]++
		case KindQuery:
			queries.add(e)
		}
	}

	slices.Sort(requests.durations)
	slices.Sort(queries.durations)
	return Snapshot{
		TotalRequests:  c.TotalRecorded(),
		WindowRequests: len(requests.durations),
		RequestP50Ms:   percentile(requests.durations, 50),
		RequestP95Ms:   percentile(requests.durations, 95),
		RequestP99Ms:   percentile(requests.durations, 99),
		QueryP95Ms:     percentile(queries.durations, 95),
		StatusClasses:  classes,
		SlowestPaths:   requests.slowest(topN),
		SlowestQueries: queries.slowest(topN),
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return string(rune('0'+code/100)) + "xx"
}

// percentile interpolates the p-th percentile of a sorted slice; 0 when empty.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower, upper := int(math.Floor(idx)), int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
