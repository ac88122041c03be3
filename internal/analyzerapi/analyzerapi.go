// Package analyzerapi is the JSON-RPC 2.0 client for the camera-analytics
// engine's source-management RPC (spec §6): create_source, update_source,
// delete_source, get_sources, get_source_info. Every response envelope is
// {code, msg, ...}; code=0 is success, anything else is a biz error that
// spec §7 treats as "log, treat as empty result, continue" rather than a
// transport failure.
package analyzerapi

import (
	"context"
	"time"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/rpcclient"
)

// SourceConfig is the embedded per-camera config an analyzer source is
// created or updated with. EnableFace/EnableVehicle are toggled from the
// sync row's c_type (1, 2, or 3) per spec §4.7's camera apply rule;
// UploadURL is overridden by local box config when set, never by the
// value synced from the server.
type SourceConfig struct {
	UUID          string `json:"uuid"`
	URL           string `json:"url"`
	EnableFace    bool   `json:"enable_face"`
	EnableVehicle bool   `json:"enable_vehicle"`
	UploadURL     string `json:"upload_url"`
}

// SourceInfo is one entry returned by get_sources / get_source_info.
type SourceInfo struct {
	UUID          string `json:"uuid"`
	URL           string `json:"url"`
	EnableFace    bool   `json:"enable_face"`
	EnableVehicle bool   `json:"enable_vehicle"`
	Running       bool   `json:"running"`
}

type bizEnvelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

// BizError is returned when a call succeeds at the transport level but the
// analyzer reports a non-zero business code (resource-not-found and
// similar conditions per spec §7).
type BizError struct {
	Code int
	Msg  string
}

func (e *BizError) Error() string {
	return errors.Newf("analyzer biz error %d: %s", e.Code, e.Msg).Error()
}

// Client wraps rpcclient.Client with the analyzer's typed method set.
type Client struct {
	rpc *rpcclient.Client
}

// New builds a Client against baseURL, bounding every call by
// connectTimeout (spec §5: 3s by default for analyzer/recognizer).
func New(baseURL string, connectTimeout time.Duration) *Client {
	return &Client{rpc: rpcclient.New(baseURL, connectTimeout)}
}

func call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var env bizEnvelope[T]
	var zero T
	if err := c.rpc.Call(ctx, method, params, &env); err != nil {
		return zero, err
	}
	if env.Code != 0 {
		return zero, &BizError{Code: env.Code, Msg: env.Msg}
	}
	return env.Data, nil
}

// CreateSource provisions a new camera source on the analyzer.
func (c *Client) CreateSource(ctx context.Context, cfg SourceConfig) error {
	_, err := call[struct{}](ctx, c, "create_source", cfg)
	return err
}

// UpdateSource updates an existing camera source's config in place.
func (c *Client) UpdateSource(ctx context.Context, cfg SourceConfig) error {
	_, err := call[struct{}](ctx, c, "update_source", cfg)
	return err
}

// DeleteSource removes a camera source by uuid.
func (c *Client) DeleteSource(ctx context.Context, uuid string) error {
	_, err := call[struct{}](ctx, c, "delete_source", map[string]string{"uuid": uuid})
	return err
}

// GetSources lists every camera source currently running on the analyzer.
func (c *Client) GetSources(ctx context.Context) ([]SourceInfo, error) {
	return call[[]SourceInfo](ctx, c, "get_sources", nil)
}

// GetSourceInfo fetches the current state of a single source by uuid.
func (c *Client) GetSourceInfo(ctx context.Context, uuid string) (SourceInfo, error) {
	return call[SourceInfo](ctx, c, "get_source_info", map[string]string{"uuid": uuid})
}
