// Package syncserver implements the server side of the fleet sync
// protocol (spec C8): it answers paginated GET /db_sync, /camera_sync,
// /person_sync requests by merging a live table and its "_del" twin into
// a single time-ordered delta stream. It does not consume the log/status
// messages that boxes publish over the broker.
package syncserver

import (
	"sort"
	"time"

	"github.com/fyuneru/boxnet/internal/model"
)

// Row is one candidate delta entry before it is tagged with an operation
// and assembled into a model.DeltaRow.
type Row struct {
	ID         int64
	UUID       string
	LastUpdate time.Time
	Payload    any
}

// MergeDelta implements the union-then-sort-then-truncate core of spec
// §4.8: live rows become op=modify, del rows become op=delete, the
// concatenation is sorted ascending and stably by LastUpdate, and the
// result is truncated to limit. The final returned row's LastUpdate is
// always <= any non-returned row's, so a client resuming from it never
// skips an entry (spec §8's truncate-after-merge property).
func MergeDelta(live, del []Row, limit int) []model.DeltaRow {
	out := make([]model.DeltaRow, 0, len(live)+len(del))
	for _, r := range live {
		out = append(out, model.DeltaRow{ID: r.ID, UUID: r.UUID, Op: model.DeltaModify, LastUpdate: r.LastUpdate, Payload: r.Payload})
	}
	for _, r := range del {
		out = append(out, model.DeltaRow{ID: r.ID, UUID: r.UUID, Op: model.DeltaDelete, LastUpdate: r.LastUpdate, Payload: r.Payload})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdate.Before(out[j].LastUpdate)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
