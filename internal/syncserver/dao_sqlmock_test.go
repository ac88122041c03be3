package syncserver

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fyuneru/boxnet/internal/timeconv"
)

var errDriverGone = errors.New("driver: connection lost")

// These exercise queryRows' error-wrapping paths against an injected driver
// failure, a scenario that's awkward to provoke reliably against a real
// SQLite file but trivial to script against a mock driver.
func TestFetchDBDeltasWrapsQueryError(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, uuid, modify_time, capacity, uses\\s+FROM base_db").
		WillReturnError(errDriverGone)

	_, _, err = fetchDBDeltas(context.Background(), conn, conv, "2023-01-01 00:00:00", 100)
	require.Error(t, err)
	require.ErrorContains(t, err, "fetch db live deltas")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDBDeltasWrapsScanError(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)

	// Missing the "uses" column makes Scan fail on the fifth destination.
	rows := sqlmock.NewRows([]string{"id", "uuid", "modify_time", "capacity"}).
		AddRow(1, "db1", "2024-01-01 00:00:00", 10)
	mock.ExpectQuery("SELECT id, uuid, modify_time, capacity, uses\\s+FROM base_db ").
		WillReturnRows(rows)

	_, _, err = fetchDBDeltas(context.Background(), conn, conv, "2023-01-01 00:00:00", 100)
	require.Error(t, err)
	require.ErrorContains(t, err, "scan row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDBDeltasWrapsMalformedModifyTime(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	conv, err := timeconv.NewConverter("UTC")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "uuid", "modify_time", "capacity", "uses"}).
		AddRow(1, "db1", "not-a-timestamp", 10, 0)
	mock.ExpectQuery("SELECT id, uuid, modify_time, capacity, uses\\s+FROM base_db ").
		WillReturnRows(rows)

	_, _, err = fetchDBDeltas(context.Background(), conn, conv, "2023-01-01 00:00:00", 100)
	require.Error(t, err)
	require.ErrorContains(t, err, "parse modify_time")
	require.NoError(t, mock.ExpectationsWereMet())
}
