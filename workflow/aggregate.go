package workflow

import "sync"

// AggregateState is the run-wide map of document records. Each document has
// exactly one writer, so Merge is last-write-wins per key.
type AggregateState struct {
	mu        sync.Mutex
	records   map[string]DocumentRecord
	order     []string
	processed int
}

// NewAggregateState returns an empty aggregate.
func NewAggregateState() *AggregateState {
	return &AggregateState{records: make(map[string]DocumentRecord)}
}

// Merge stores rec under its ID and returns the number of processed
// documents. A stale non-terminal snapshot never replaces a terminal one,
// and merging the same snapshot twice is a no-op.
func (a *AggregateState) Merge(rec DocumentRecord) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	old, seen := a.records[rec.ID]
	if !seen {
		a.order = append(a.order, rec.ID)
	}
	if seen && old.Processed && !rec.Processed {
		return a.processed
	}
	if rec.Processed && (!seen || !old.Processed) {
		a.processed++
	}
	a.records[rec.ID] = rec.Clone()
	return a.processed
}

// Get returns the current record for id.
func (a *AggregateState) Get(id string) (DocumentRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[id]
	if !ok {
		return DocumentRecord{}, false
	}
	return rec.Clone(), true
}

// Records returns copies of every record in first-arrival order.
func (a *AggregateState) Records() []DocumentRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]DocumentRecord, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.records[id].Clone())
	}
	return out
}

// Processed returns the number of terminal records.
func (a *AggregateState) Processed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed
}

// Len returns the number of distinct documents seen.
func (a *AggregateState) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}
