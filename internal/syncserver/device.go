package syncserver

import (
	"context"
	"database/sql"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/model"
)

// Device is the subset of base_box a sync request is authorized against.
type Device struct {
	HWID      string
	SyncFlag  int
	HasDB     int
	HasCamera int
}

// ErrDeviceNotFound means the requesting hw_id has no base_box row: spec
// §4.8 step 1 maps this to a biz-error response.
var ErrDeviceNotFound = errors.New("device not found")

// lookupDevice fetches the requesting device's sync flags by hw_id.
func lookupDevice(ctx context.Context, db *sql.DB, hwID string) (*Device, error) {
	var d Device
	row := db.QueryRowContext(ctx,
		`SELECT hw_id, sync_flag, has_db, has_camera FROM base_box WHERE hw_id = ?`, hwID)
	if err := row.Scan(&d.HWID, &d.SyncFlag, &d.HasDB, &d.HasCamera); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, errors.Wrap(err, "lookup device")
	}
	return &d, nil
}

// authorize reports whether the device may read kind's delta stream at
// all, per spec §4.8 step 1: sync_flag=0 or the relevant has_* flag=0
// means "success, but empty" rather than an error.
func (d *Device) authorize(kind model.SyncKind) bool {
	if d.SyncFlag == 0 {
		return false
	}
	switch kind {
	case model.SyncKindDB, model.SyncKindPerson:
		return d.HasDB != 0
	case model.SyncKindCamera:
		return d.HasCamera != 0
	default:
		return false
	}
}
