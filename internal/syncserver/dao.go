package syncserver

import (
	"context"
	"database/sql"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/timeconv"
)

// cameraPayload is the Payload of a camera DeltaRow.
type cameraPayload struct {
	Name   string `json:"name"`
	CType  int    `json:"c_type"`
	URL    string `json:"url"`
	Config string `json:"config"`
}

// dbPayload is the Payload of a db DeltaRow.
type dbPayload struct {
	Capacity int `json:"capacity"`
	Uses     int `json:"uses"`
}

func fetchCameraDeltas(ctx context.Context, db *sql.DB, conv *timeconv.Converter, after string, limit int) (live, del []Row, err error) {
	live, err = queryRows(ctx, db,
		`SELECT id, uuid, modify_time, name, c_type, url, config
		 FROM base_camera WHERE modify_time > ? ORDER BY modify_time ASC, id ASC LIMIT ?`,
		conv, after, limit,
		func(scan func(...any) error) (int64, string, string, any, error) {
			var id int64
			var uuid, modifyTime, name, url, config string
			var cType int
			if err := scan(&id, &uuid, &modifyTime, &name, &cType, &url, &config); err != nil {
				return 0, "", "", nil, err
			}
			return id, uuid, modifyTime, cameraPayload{Name: name, CType: cType, URL: url, Config: config}, nil
		})
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch camera live deltas")
	}

	del, err = queryRows(ctx, db,
		`SELECT id, uuid, modify_time, name, c_type, url, config
		 FROM base_camera_del WHERE modify_time > ? ORDER BY modify_time ASC, id ASC LIMIT ?`,
		conv, after, limit,
		func(scan func(...any) error) (int64, string, string, any, error) {
			var id int64
			var uuid, modifyTime, name, url, config string
			var cType int
			if err := scan(&id, &uuid, &modifyTime, &name, &cType, &url, &config); err != nil {
				return 0, "", "", nil, err
			}
			return id, uuid, modifyTime, cameraPayload{Name: name, CType: cType, URL: url, Config: config}, nil
		})
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch camera del deltas")
	}
	return live, del, nil
}

func fetchDBDeltas(ctx context.Context, db *sql.DB, conv *timeconv.Converter, after string, limit int) (live, del []Row, err error) {
	live, err = queryRows(ctx, db,
		`SELECT id, uuid, modify_time, capacity, uses
		 FROM base_db WHERE modify_time > ? ORDER BY modify_time ASC, id ASC LIMIT ?`,
		conv, after, limit,
		func(scan func(...any) error) (int64, string, string, any, error) {
			var id int64
			var uuid, modifyTime string
			var capacity, uses int
			if err := scan(&id, &uuid, &modifyTime, &capacity, &uses); err != nil {
				return 0, "", "", nil, err
			}
			return id, uuid, modifyTime, dbPayload{Capacity: capacity, Uses: uses}, nil
		})
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch db live deltas")
	}

	del, err = queryRows(ctx, db,
		`SELECT id, uuid, modify_time, capacity, uses
		 FROM base_db_del WHERE modify_time > ? ORDER BY modify_time ASC, id ASC LIMIT ?`,
		conv, after, limit,
		func(scan func(...any) error) (int64, string, string, any, error) {
			var id int64
			var uuid, modifyTime string
			var capacity, uses int
			if err := scan(&id, &uuid, &modifyTime, &capacity, &uses); err != nil {
				return 0, "", "", nil, err
			}
			return id, uuid, modifyTime, dbPayload{Capacity: capacity, Uses: uses}, nil
		})
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch db del deltas")
	}
	return live, del, nil
}

// fetchPersonDeltas assembles person rows by grouping base_fea_map face
// rows under their owning base_fea aggregate row, per spec §4.8's person
// assembly: "{person_uuid, db_id, faces: [...]} preserving modify_time
// from the parent." Deletions come from base_fea_del, which carries no
// per-face rows of its own (the map rows are removed alongside it).
func fetchPersonDeltas(ctx context.Context, db *sql.DB, conv *timeconv.Converter, after string, limit int) (live, del []Row, err error) {
	live, err = queryRows(ctx, db,
		`SELECT id, uuid, modify_time, db_uuid FROM base_fea WHERE modify_time > ? ORDER BY modify_time ASC, id ASC LIMIT ?`,
		conv, after, limit,
		func(scan func(...any) error) (int64, string, string, any, error) {
			var id int64
			var uuid, modifyTime, dbUUID string
			if err := scan(&id, &uuid, &modifyTime, &dbUUID); err != nil {
				return 0, "", "", nil, err
			}
			return id, uuid, modifyTime, dbUUID, nil
		})
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch person live rows")
	}

	for i, r := range live {
		faces, err := fetchPersonFaces(ctx, db, r.UUID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "fetch faces for person %s", r.UUID)
		}
		live[i].Payload = personPayloadJSON(r.UUID, r.Payload.(string), faces)
	}

	del, err = queryRows(ctx, db,
		`SELECT id, uuid, modify_time, db_uuid FROM base_fea_del WHERE modify_time > ? ORDER BY modify_time ASC, id ASC LIMIT ?`,
		conv, after, limit,
		func(scan func(...any) error) (int64, string, string, any, error) {
			var id int64
			var uuid, modifyTime, dbUUID string
			if err := scan(&id, &uuid, &modifyTime, &dbUUID); err != nil {
				return 0, "", "", nil, err
			}
			return id, uuid, modifyTime, dbUUID, nil
		})
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch person del rows")
	}
	for i, r := range del {
		del[i].Payload = personPayloadJSON(r.UUID, r.Payload.(string), nil)
	}

	return live, del, nil
}

func fetchPersonFaces(ctx context.Context, db *sql.DB, personUUID string) ([]personFaceJSON, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT face_id, feature, quality FROM base_fea_map WHERE uuid = ? ORDER BY id ASC`, personUUID)
	if err != nil {
		return nil, errors.Wrap(err, "query base_fea_map")
	}
	defer rows.Close()

	var out []personFaceJSON
	for rows.Next() {
		var f personFaceJSON
		if err := rows.Scan(&f.ID, &f.Feature, &f.Quality); err != nil {
			return nil, errors.Wrap(err, "scan base_fea_map row")
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type personFaceJSON struct {
	ID      string  `json:"id"`
	Feature string  `json:"feature"`
	Quality float64 `json:"quality"`
}

type personPayload struct {
	PersonUUID string           `json:"person_uuid"`
	DBID       string           `json:"db_id"`
	Faces      []personFaceJSON `json:"faces"`
}

func personPayloadJSON(uuid, dbID string, faces []personFaceJSON) personPayload {
	return personPayload{PersonUUID: uuid, DBID: dbID, Faces: faces}
}

// queryRows runs query and scans each row through scan, converting the
// naive modify_time string into a time.Time via conv.
func queryRows(
	ctx context.Context, db *sql.DB,
	query string, conv *timeconv.Converter, after string, limit int,
	scan func(scan func(...any) error) (id int64, uuid, modifyTime string, payload any, err error),
) ([]Row, error) {
	rows, err := db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query rows")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		id, uuid, modifyTime, payload, err := scan(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		ts, err := conv.ParseDateTime(modifyTime)
		if err != nil {
			return nil, errors.Wrapf(err, "parse modify_time %q", modifyTime)
		}
		out = append(out, Row{ID: id, UUID: uuid, LastUpdate: ts, Payload: payload})
	}
	return out, rows.Err()
}
