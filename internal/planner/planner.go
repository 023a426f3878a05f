// Package planner splits a request's URLs into sequentially executed batches.
package planner

import (
	"net/url"
	"strconv"
	"strings"
)

// Entry is one URL tagged with its position in the request.
type Entry struct {
	Index int
	URL   string
}

// Batch is a group of entries that run concurrently.
type Batch []Entry

// URLs returns the batch's URLs in order.
func (b Batch) URLs() []string {
	out := make([]string, len(b))
	for i, e := range b {
		out[i] = e.URL
	}
	return out
}

// Default widths used when configuration leaves them unset.
const (
	DefaultSameOriginWidth  = 2
	DefaultCrossOriginWidth = 8
)

// Planner holds the driver-configured batch widths for default mode.
type Planner struct {
	sameOriginWidth  int
	crossOriginWidth int
}

// New builds a Planner. Non-positive widths fall back to defaults, and the
// same-origin width never exceeds the cross-origin width.
func New(sameOriginWidth, crossOriginWidth int) *Planner {
	if sameOriginWidth <= 0 {
		sameOriginWidth = DefaultSameOriginWidth
	}
	if crossOriginWidth <= 0 {
		crossOriginWidth = DefaultCrossOriginWidth
	}
	if sameOriginWidth > crossOriginWidth {
		sameOriginWidth = crossOriginWidth
	}
	return &Planner{sameOriginWidth: sameOriginWidth, crossOriginWidth: crossOriginWidth}
}

// Plan returns the ordered batches for urls.
//
// Sequential (one URL or batching disabled): one URL per batch. Real-browser
// mode: fixed-width batches of maxParallel in input order. Default mode: URLs
// grouped by origin, each group chunked by the same-origin width, and chunks
// from different groups packed round-robin into batches no wider than the
// cross-origin width.
func (p *Planner) Plan(urls []string, enableBatch bool, maxParallel int, realBrowser bool) []Batch {
	entries := make([]Entry, len(urls))
	for i, u := range urls {
		entries[i] = Entry{Index: i, URL: u}
	}
	switch {
	case len(entries) == 0:
		return nil
	case len(entries) == 1 || !enableBatch:
		return chunk(entries, 1)
	case realBrowser:
		if maxParallel <= 0 {
			maxParallel = 1
		}
		return chunk(entries, maxParallel)
	default:
		return p.byOrigin(entries)
	}
}

func (p *Planner) byOrigin(entries []Entry) []Batch {
	var order []string
	groups := make(map[string][]Batch)
	members := make(map[string][]Entry)
	for _, e := range entries {
		key := OriginKey(e.URL, e.Index)
		if _, seen := members[key]; !seen {
			order = append(order, key)
		}
		members[key] = append(members[key], e)
	}
	remaining := 0
	for _, key := range order {
		groups[key] = chunk(members[key], p.sameOriginWidth)
		remaining += len(groups[key])
	}

	var batches []Batch
	for remaining > 0 {
		var batch Batch
		for _, key := range order {
			pending := groups[key]
			if len(pending) == 0 {
				continue
			}
			next := pending[0]
			if len(batch) > 0 && len(batch)+len(next) > p.crossOriginWidth {
				continue
			}
			batch = append(batch, next...)
			groups[key] = pending[1:]
			remaining--
			if len(batch) == p.crossOriginWidth {
				break
			}
		}
		batches = append(batches, batch)
	}
	return batches
}

// OriginKey returns the grouping key for raw: lowercased scheme and host plus
// the effective port. Unparseable URLs get a singleton key built from the raw
// text and its index.
func OriginKey(raw string, index int) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "raw:" + strconv.Itoa(index) + ":" + raw
	}
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return scheme + "://" + strings.ToLower(u.Hostname()) + ":" + port
}

func chunk(entries []Entry, size int) []Batch {
	batches := make([]Batch, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		batches = append(batches, append(Batch(nil), entries[start:end]...))
	}
	return batches
}
