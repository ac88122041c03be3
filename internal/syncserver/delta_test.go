package syncserver

import (
	"testing"
	"time"

	"github.com/fyuneru/boxnet/internal/model"
)

func ts(seconds int) time.Time {
	return time.Unix(int64(seconds), 0).UTC()
}

func TestMergeDeltaOrdersAndTagsOps(t *testing.T) {
	live := []Row{{ID: 1, UUID: "a", LastUpdate: ts(10)}, {ID: 2, UUID: "b", LastUpdate: ts(30)}}
	del := []Row{{ID: 3, UUID: "c", LastUpdate: ts(20)}}

	out := MergeDelta(live, del, 10)
	if len(out) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].LastUpdate.Before(out[i-1].LastUpdate) {
			t.Fatalf("rows not ascending by last_update: %+v", out)
		}
	}
	if out[0].UUID != "a" || out[0].Op != model.DeltaModify {
		t.Fatalf("expected first row to be modify(a), got %+v", out[0])
	}
	if out[1].UUID != "c" || out[1].Op != model.DeltaDelete {
		t.Fatalf("expected second row to be delete(c), got %+v", out[1])
	}
}

// TestMergeDeltaTruncateAfterMerge is the property from spec §8: given any
// union of live and del batches of size <= L each, the returned list has
// size <= L and its final row's last_update <= any non-returned row's.
func TestMergeDeltaTruncateAfterMerge(t *testing.T) {
	const limit = 100
	live := make([]Row, limit)
	del := make([]Row, limit)
	for i := 0; i < limit; i++ {
		// interleave timestamps: live rows land on even seconds, del on odd.
		live[i] = Row{ID: int64(i), UUID: "live", LastUpdate: ts(i * 2)}
		del[i] = Row{ID: int64(i), UUID: "del", LastUpdate: ts(i*2 + 1)}
	}

	out := MergeDelta(live, del, limit)
	if len(out) != limit {
		t.Fatalf("expected exactly %d rows, got %d", limit, len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].LastUpdate.Before(out[i-1].LastUpdate) {
			t.Fatalf("returned rows not ascending at index %d: %+v", i, out)
		}
	}

	// Every row dropped by truncation must have a last_update >= the final
	// returned row's, so the cursor never skips an entry.
	final := out[len(out)-1].LastUpdate
	type key struct {
		id  int64
		src string
	}
	returned := make(map[key]bool, len(out))
	for _, r := range out {
		src := "live"
		if r.Op == model.DeltaDelete {
			src = "del"
		}
		returned[key{id: r.ID, src: src}] = true
	}
	for _, r := range live {
		if returned[key{id: r.ID, src: "live"}] {
			continue
		}
		if r.LastUpdate.Before(final) {
			t.Fatalf("dropped live row %+v has last_update before the final returned row %v", r, final)
		}
	}
	for _, r := range del {
		if returned[key{id: r.ID, src: "del"}] {
			continue
		}
		if r.LastUpdate.Before(final) {
			t.Fatalf("dropped del row %+v has last_update before the final returned row %v", r, final)
		}
	}
}

func TestMergeDeltaEmptyInputs(t *testing.T) {
	out := MergeDelta(nil, nil, 10)
	if len(out) != 0 {
		t.Fatalf("expected no rows, got %d", len(out))
	}
}
