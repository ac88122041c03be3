package syncserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyuneru/boxnet/db"
	"github.com/fyuneru/boxnet/internal/timeconv"
)

func TestFetchDBDeltasOrdersAndSeparatesLiveFromDel(t *testing.T) {
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer conn.Close()

	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO base_db (uuid, capacity, uses, modify_time) VALUES
		('db1', 10, 1, '2024-01-01 00:00:00'),
		('db2', 20, 2, '2024-01-02 00:00:00')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO base_db_del (origin_id, uuid, capacity, uses, create_time, modify_time) VALUES
		(1, 'db3', 5, 0, '2023-12-31 00:00:00', '2024-01-01 12:00:00')`)
	require.NoError(t, err)

	live, del, err := fetchDBDeltas(context.Background(), conn, conv, "2023-01-01 00:00:00", 100)
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Len(t, del, 1)

	require.Equal(t, "db1", live[0].UUID)
	require.Equal(t, "db2", live[1].UUID)
	require.Equal(t, "db3", del[0].UUID)

	payload, ok := live[0].Payload.(dbPayload)
	require.True(t, ok)
	require.Equal(t, 10, payload.Capacity)
}

func TestFetchDBDeltasRespectsCursor(t *testing.T) {
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer conn.Close()

	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO base_db (uuid, capacity, uses, modify_time) VALUES
		('old', 1, 0, '2024-01-01 00:00:00'),
		('new', 2, 0, '2024-02-01 00:00:00')`)
	require.NoError(t, err)

	live, _, err := fetchDBDeltas(context.Background(), conn, conv, "2024-01-15 00:00:00", 100)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, "new", live[0].UUID)
}

func TestFetchPersonDeltasAssemblesFaceRows(t *testing.T) {
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer conn.Close()

	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO base_fea (uuid, db_uuid, modify_time) VALUES ('person1', 'dbA', '2024-01-01 00:00:00')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO base_fea_map (uuid, face_id, feature, quality) VALUES
		('person1', 'f1', 'feat1', 0.9),
		('person1', 'f2', 'feat2', 0.8)`)
	require.NoError(t, err)

	live, del, err := fetchPersonDeltas(context.Background(), conn, conv, "2023-01-01 00:00:00", 100)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Len(t, del, 0)

	payload, ok := live[0].Payload.(personPayload)
	require.True(t, ok)
	require.Equal(t, "person1", payload.PersonUUID)
	require.Equal(t, "dbA", payload.DBID)
	require.Len(t, payload.Faces, 2)
	require.Equal(t, "f1", payload.Faces[0].ID)

	// Round-trips as JSON the way the response layer emits it.
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"person_uuid":"person1"`)
}
