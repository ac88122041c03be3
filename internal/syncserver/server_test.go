package syncserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyuneru/boxnet/db"
	"github.com/fyuneru/boxnet/internal/timeconv"
)

type wireResponse struct {
	Status int    `json:"status"`
	Ts     string `json:"ts"`
	Data   []struct {
		ID         int64  `json:"id"`
		UUID       string `json:"uuid"`
		Op         int    `json:"op"`
		LastUpdate string `json:"last_update"`
	} `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *timeconv.Converter) {
	t.Helper()
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO base_box (hw_id, device_id, sync_flag, has_db, has_camera) VALUES
		('box1', 'dev1', 1, 1, 1),
		('box2', 'dev2', 0, 1, 1)`)
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO base_db (uuid, capacity, uses, modify_time) VALUES
		('db1', 1, 0, '2024-01-01 00:00:00'),
		('db2', 2, 0, '2024-01-02 00:00:00')`)
	require.NoError(t, err)

	srv := New(conn, conv, 50, zaptest.NewLogger(t).Sugar())
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return httptest.NewServer(mux), conv
}

func TestServerDBSyncReturnsAuthorizedDeltas(t *testing.T) {
	ts, conv := newTestServer(t)
	defer ts.Close()

	q := url.Values{}
	q.Set("hw_id", "box1")
	q.Set("last_update", conv.FormatLong(timeMustParse(t, "2023-01-01 00:00:00")))
	resp, err := http.Get(ts.URL + "/db_sync?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	var wire wireResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wire))
	require.Equal(t, StatusOK, wire.Status)
	require.Len(t, wire.Data, 2)
	require.Equal(t, "db1", wire.Data[0].UUID)
}

func TestServerDBSyncUnauthorizedDeviceReturnsEmpty(t *testing.T) {
	ts, conv := newTestServer(t)
	defer ts.Close()

	q := url.Values{}
	q.Set("hw_id", "box2") // sync_flag = 0
	q.Set("last_update", conv.FormatLong(timeMustParse(t, "2023-01-01 00:00:00")))
	resp, err := http.Get(ts.URL + "/db_sync?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	var wire wireResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wire))
	require.Equal(t, StatusOK, wire.Status)
	require.Empty(t, wire.Data)
}

func TestServerDBSyncUnknownDeviceIsBizError(t *testing.T) {
	ts, conv := newTestServer(t)
	defer ts.Close()

	q := url.Values{}
	q.Set("hw_id", "ghost")
	q.Set("last_update", conv.FormatLong(timeMustParse(t, "2023-01-01 00:00:00")))
	resp, err := http.Get(ts.URL + "/db_sync?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	var wire wireResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wire))
	require.Equal(t, StatusDeviceError, wire.Status)
}

func timeMustParse(t *testing.T, s string) time.Time {
	t.Helper()
	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)
	parsed, err := conv.ParseLong(s + ".000")
	require.NoError(t, err)
	return parsed
}
