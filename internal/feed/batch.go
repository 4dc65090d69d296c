package feed

import (
	"sort"
	"strings"
	"sync"
)

// Batch tracks which tracked symbols have a fresh value in the current pass.
// A pass completes when every symbol has been marked at least once; the
// seen-set is then cleared for the next pass.
type Batch struct {
	mu      sync.Mutex
	symbols []string
	want    map[string]struct{}
	seen    map[string]struct{}
	passes  uint64
}

// NewBatch creates a tracker for symbols.
func NewBatch(symbols []string) *Batch {
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	list := make([]string, 0, len(want))
	for s := range want {
		list = append(list, s)
	}
	sort.Strings(list)
	return &Batch{
		symbols: list,
		want:    want,
		seen:    make(map[string]struct{}, len(want)),
	}
}

// Mark records a fresh value for symbol and reports whether it completed the
// pass. Untracked symbols are ignored.
func (b *Batch) Mark(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.want[symbol]; !ok {
		return false
	}
	b.seen[symbol] = struct{}{}
	if len(b.seen) < len(b.want) {
		return false
	}
	clear(b.seen)
	b.passes++
	return true
}

// Reset discards the partial pass.
func (b *Batch) Reset() {
	b.mu.Lock()
	clear(b.seen)
	b.mu.Unlock()
}

// Pending returns the number of symbols still missing from the current pass.
func (b *Batch) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.want) - len(b.seen)
}

// Passes returns the number of completed passes.
func (b *Batch) Passes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.passes
}

// Symbols returns the tracked symbols, sorted.
func (b *Batch) Symbols() []string {
	return append([]string(nil), b.symbols...)
}
