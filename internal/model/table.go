package model

import "sync"

// ResultTable holds one slot per input record. Workers write disjoint
// indices, so row order always matches input order.
type ResultTable struct {
	mu     sync.RWMutex
	rows   []ContactResult
	filled []bool
	done   int
}

// NewResultTable allocates a table for n records.
func NewResultTable(n int) *ResultTable {
	return &ResultTable{
		rows:   make([]ContactResult, n),
		filled: make([]bool, n),
	}
}

// Len is the number of slots.
func (t *ResultTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Set stores the result for slot i. Out-of-range indices are ignored.
func (t *ResultTable) Set(i int, r ContactResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.rows) {
		return
	}
	if !t.filled[i] {
		t.done++
	}
	t.rows[i] = r
	t.filled[i] = true
}

// Get returns slot i and whether it has been filled.
func (t *ResultTable) Get(i int) (ContactResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.rows) {
		return ContactResult{}, false
	}
	return t.rows[i], t.filled[i]
}

// Completed is the number of filled slots.
func (t *ResultTable) Completed() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done
}

// Snapshot copies the filled rows in input order.
func (t *ResultTable) Snapshot() []ContactResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ContactResult, 0, t.done)
	for i, r := range t.rows {
		if t.filled[i] {
			out = append(out, r)
		}
	}
	return out
}

// Counts tallies filled rows per status.
func (t *ResultTable) Counts() map[Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[Status]int, len(AllStatuses))
	for i, r := range t.rows {
		if t.filled[i] {
			counts[r.Status]++
		}
	}
	return counts
}
