// Package syncclient implements the fleet-sync worker (spec C7): it
// consumes TaskItems (sync ticks, inbound commands), reconciles camera /
// db / person deltas against the local analyzer and recognizer services in
// a fixed order, answers heartbeat requests with local inventory status,
// and persists its sync cursor after every stage.
package syncclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/internal/timeconv"
)

// DeltaClient pulls paginated delta batches from the sync server's REST
// endpoints (spec §6: GET /db_sync, /camera_sync, /person_sync).
type DeltaClient struct {
	httpClient *http.Client
	baseURL    string
	conv       *timeconv.Converter
}

// NewDeltaClient builds a DeltaClient against baseURL, bounding every
// request by connectTimeout (spec §5: 10s for sync).
func NewDeltaClient(baseURL string, connectTimeout time.Duration, conv *timeconv.Converter) *DeltaClient {
	return &DeltaClient{
		httpClient: &http.Client{Timeout: connectTimeout},
		baseURL:    baseURL,
		conv:       conv,
	}
}

type syncWireResponse struct {
	Status  int              `json:"status"`
	Message string           `json:"message"`
	Ts      string           `json:"ts"`
	Data    []wireDeltaEntry `json:"data"`
}

type wireDeltaEntry struct {
	ID         int64           `json:"id"`
	UUID       string          `json:"uuid"`
	Op         int             `json:"op"`
	LastUpdate string          `json:"last_update"`
	Payload    json.RawMessage `json:"payload"`
}

var endpointByKind = map[model.SyncKind]string{
	model.SyncKindDB:     "/db_sync",
	model.SyncKindCamera: "/camera_sync",
	model.SyncKindPerson: "/person_sync",
}

// Fetch pulls one page of deltas for kind newer than the cursor, per spec
// §4.7: up to the server's page limit, ordered ascending by last_update. An empty
// response means the stage is caught up.
func (c *DeltaClient) Fetch(ctx context.Context, kind model.SyncKind, hwID string, cursor model.Cursor) ([]model.DeltaRow, error) {
	path, ok := endpointByKind[kind]
	if !ok {
		return nil, errors.Newf("unknown sync kind %s", kind.String())
	}

	q := url.Values{}
	q.Set("hw_id", hwID)
	q.Set("last_update", c.conv.FormatLong(cursor.LastModifyTs))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build sync request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s deltas", kind.String())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read sync response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("sync request failed: http %d: %s", resp.StatusCode, string(raw))
	}

	var wire syncWireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.Wrap(err, "decode sync response")
	}
	if wire.Status != 0 {
		return nil, errors.Newf("sync request rejected: status %d: %s", wire.Status, wire.Message)
	}

	rows := make([]model.DeltaRow, len(wire.Data))
	for i, e := range wire.Data {
		ts, err := c.conv.ParseLong(e.LastUpdate)
		if err != nil {
			return nil, errors.Wrapf(err, "parse last_update %q", e.LastUpdate)
		}
		rows[i] = model.DeltaRow{
			ID:         e.ID,
			UUID:       e.UUID,
			Op:         model.DeltaOp(e.Op),
			LastUpdate: ts,
			Payload:    e.Payload,
		}
	}
	return rows, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, "decode delta payload")
	}
	return nil
}
