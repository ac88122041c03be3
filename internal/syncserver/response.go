package syncserver

import (
	"time"

	"github.com/fyuneru/boxnet/internal/model"
)

// Response status codes, per spec §6: "status=0 success."
const (
	StatusOK           = 0
	StatusInvalidParas = 1
	StatusDeviceError  = 2
)

// syncResponse is the wire shape every /xxx_sync endpoint returns.
type syncResponse struct {
	Status  int              `json:"status"`
	Message string           `json:"message,omitempty"`
	Ts      string           `json:"ts"`
	Data    []wireDeltaRow   `json:"data,omitempty"`
}

// wireDeltaRow mirrors model.DeltaRow with a wire-formatted timestamp.
type wireDeltaRow struct {
	ID         int64  `json:"id"`
	UUID       string `json:"uuid"`
	Op         int    `json:"op"`
	LastUpdate string `json:"last_update"`
	Payload    any    `json:"payload,omitempty"`
}

func toWireRows(rows []model.DeltaRow, fmtTs func(t time.Time) string) []wireDeltaRow {
	out := make([]wireDeltaRow, len(rows))
	for i, r := range rows {
		out[i] = wireDeltaRow{
			ID:         r.ID,
			UUID:       r.UUID,
			Op:         int(r.Op),
			LastUpdate: fmtTs(r.LastUpdate),
			Payload:    r.Payload,
		}
	}
	return out
}
