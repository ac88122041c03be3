// Package rpcclient is the shared JSON-RPC 2.0 over HTTP POST transport
// used by internal/analyzerapi and internal/recognizerapi (spec §6). It
// borrows sourcegraph/jsonrpc2's wire-format types (Request/Response/
// Error/ID) for envelope shape and correct id/params marshaling, without
// pulling in that package's stream-multiplexing Conn: every call here is a
// single request/response round trip over a plain http.Client, which is
// all the analyzer and recognizer contracts need.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/fyuneru/boxnet/errors"
)

// Client issues JSON-RPC 2.0 calls against a single HTTP endpoint. The
// source's static jsonrpc-id counter becomes a per-client atomic, per
// spec §9's design note on eliminating global state.
type Client struct {
	httpClient *http.Client
	endpoint   string
	nextID     atomic.Uint64
}

// New builds a Client against endpoint, with connectTimeout bounding the
// whole request (spec §5: 3s for analyzer/recognizer, applied by callers).
func New(endpoint string, connectTimeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: connectTimeout},
		endpoint:   endpoint,
	}
}

// RPCError wraps a JSON-RPC-level error response (as opposed to a
// transport-level failure, which is returned unwrapped).
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return errors.Newf("jsonrpc error %d: %s", e.Code, e.Message).Error()
}

// Call marshals params, posts a JSON-RPC 2.0 request to method, and
// unmarshals the response's result into out (which may be nil if the
// caller doesn't need the result). A non-nil JSON-RPC error in the
// response is returned as *RPCError; anything else (network, status code,
// malformed envelope) is returned as a wrapped transport error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	req := &jsonrpc2.Request{
		Method: method,
		ID:     jsonrpc2.ID{Num: c.nextID.Add(1)},
	}
	if params != nil {
		if err := req.SetParams(params); err != nil {
			return errors.Wrapf(err, "encode params for %s", method)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "marshal jsonrpc request for %s", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build http request for %s", method)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "post jsonrpc request for %s", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response body for %s", method)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("jsonrpc transport error for %s: http %d: %s", method, resp.StatusCode, string(raw))
	}

	var rpcResp jsonrpc2.Response
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return errors.Wrapf(err, "decode jsonrpc response for %s", method)
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if out == nil || rpcResp.Result == nil {
		return nil
	}
	if err := json.Unmarshal(*rpcResp.Result, out); err != nil {
		return errors.Wrapf(err, "decode jsonrpc result for %s", method)
	}
	return nil
}
