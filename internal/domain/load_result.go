package domain

import (
	"strings"
	"sync"
)

// LoadResult accumulates non-fatal load errors. Nested results are added
// under their parent's name with every line indented by two spaces.
type LoadResult struct {
	mu      sync.Mutex
	entries []string
}

func NewLoadResult() *LoadResult {
	return &LoadResult{}
}

func (r *LoadResult) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, strings.TrimRight(msg, "\n"))
}

// AddNested records child's errors as a single entry headed by parentName.
// A child without errors is ignored.
func (r *LoadResult) AddNested(parentName string, child *LoadResult) {
	if child == nil || !child.HasErrors() {
		return
	}
	var b strings.Builder
	b.WriteString(parentName)
	for _, line := range strings.Split(strings.TrimRight(child.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	r.AddError(b.String())
}

// Merge appends child's entries at this level.
func (r *LoadResult) Merge(child *LoadResult) {
	if child == nil || child == r {
		return
	}
	entries := child.Entries()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
}

func (r *LoadResult) HasErrors() bool {
	return r.Len() > 0
}

// Len is the number of top-level entries.
func (r *LoadResult) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *LoadResult) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

func (r *LoadResult) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, e := range r.entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}
