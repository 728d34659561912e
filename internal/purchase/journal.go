// Package purchase turns a machine-held lease into a booking under a real
// person's name. The finalizer claims the lease, waits out the current
// upstream hold, re-books with the operator's profile, and records the
// outcome in an append-only journal the console can read and clear.
package purchase

import (
	"sync"

	"holdfast/pkg/model"
)

// Journal holds purchase records in memory. Records outlive the lease that
// spawned them and are only dropped on an explicit Clear.
type Journal struct {
	mu      sync.RWMutex
	records []model.PurchaseRecord
	byID    map[string]int
}

func NewJournal() *Journal {
	return &Journal{byID: make(map[string]int)}
}

func (j *Journal) Append(rec model.PurchaseRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.byID[rec.ID] = len(j.records)
	j.records = append(j.records, rec)
}

// Update applies fn to the record with the given id, if it still exists.
func (j *Journal) Update(id string, fn func(*model.PurchaseRecord)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if idx, ok := j.byID[id]; ok {
		fn(&j.records[idx])
	}
}

func (j *Journal) Get(id string) (model.PurchaseRecord, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if idx, ok := j.byID[id]; ok {
		return j.records[idx], true
	}
	return model.PurchaseRecord{}, false
}

// List returns the records newest first.
func (j *Journal) List() []model.PurchaseRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]model.PurchaseRecord, len(j.records))
	for i, rec := range j.records {
		out[len(j.records)-1-i] = rec
	}
	return out
}

// Clear empties the journal and reports how many records were dropped.
func (j *Journal) Clear() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := len(j.records)
	j.records = nil
	j.byID = make(map[string]int)
	return n
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}
