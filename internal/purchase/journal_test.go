package purchase

import (
	"fmt"
	"sync"
	"testing"

	"holdfast/pkg/model"
)

func TestJournal_AppendListClear(t *testing.T) {
	j := NewJournal()

	for i := 0; i < 3; i++ {
		j.Append(model.PurchaseRecord{
			ID:     fmt.Sprintf("rec-%d", i),
			Status: model.PurchaseQueued,
		})
	}

	list := j.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].ID != "rec-2" {
		t.Errorf("first listed = %s, want newest first", list[0].ID)
	}

	if n := j.Clear(); n != 3 {
		t.Errorf("Clear = %d, want 3", n)
	}
	if j.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", j.Len())
	}

	// The journal keeps working after a clear.
	j.Append(model.PurchaseRecord{ID: "rec-9", Status: model.PurchaseQueued})
	if got, ok := j.Get("rec-9"); !ok || got.ID != "rec-9" {
		t.Errorf("Get after clear = %+v ok=%v", got, ok)
	}
}

func TestJournal_Update(t *testing.T) {
	j := NewJournal()
	j.Append(model.PurchaseRecord{ID: "rec-1", Status: model.PurchaseQueued})

	j.Update("rec-1", func(r *model.PurchaseRecord) {
		r.Status = model.PurchaseFound
		r.BookingID = 42
	})
	j.Update("missing", func(r *model.PurchaseRecord) {
		t.Error("update callback ran for a missing record")
	})

	got, ok := j.Get("rec-1")
	if !ok || got.Status != model.PurchaseFound || got.BookingID != 42 {
		t.Errorf("record = %+v ok=%v", got, ok)
	}
}

func TestJournal_ConcurrentAppend(t *testing.T) {
	j := NewJournal()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j.Append(model.PurchaseRecord{ID: fmt.Sprintf("rec-%d", i)})
		}(i)
	}
	wg.Wait()

	if j.Len() != 50 {
		t.Errorf("len = %d, want 50", j.Len())
	}
}
