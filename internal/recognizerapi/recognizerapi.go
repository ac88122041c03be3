// Package recognizerapi is the JSON-RPC 2.0 client for the external face
// recognizer (spec §6): search, get_dbs, get_db_info, create_db,
// delete_db, create_persons, delete_person. Client implements
// internal/search.Recognizer, so the search batcher (C4) can depend on the
// narrow interface it actually needs while this package owns the full
// wire contract, including the db/person reconciliation methods C7 needs.
package recognizerapi

import (
	"context"
	"time"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/rpcclient"
	"github.com/fyuneru/boxnet/internal/search"
)

// DBInfo describes one feature database's capacity and usage.
type DBInfo struct {
	UUID     string `json:"uuid"`
	Capacity int    `json:"capacity"`
	Uses     int    `json:"uses"`
}

// BizError mirrors analyzerapi.BizError for the recognizer's own
// {code, msg} envelope.
type BizError struct {
	Code int
	Msg  string
}

func (e *BizError) Error() string {
	return errors.Newf("recognizer biz error %d: %s", e.Code, e.Msg).Error()
}

type bizEnvelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

// Client wraps rpcclient.Client with the recognizer's typed method set.
type Client struct {
	rpc *rpcclient.Client
}

// New builds a Client against baseURL, bounding every call by
// connectTimeout.
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

// GetDBs lists every feature database the recognizer currently serves.
// Satisfies search.Recognizer.
func (c *Client) GetDBs(ctx context.Context) ([]string, error) {
	return call[[]string](ctx, c, "get_dbs", nil)
}

// GetDBInfo fetches capacity/usage for a single feature database.
func (c *Client) GetDBInfo(ctx context.Context, uuid string) (DBInfo, error) {
	return call[DBInfo](ctx, c, "get_db_info", map[string]string{"uuid": uuid})
}

// CreateDB provisions a new feature database with the given capacity.
func (c *Client) CreateDB(ctx context.Context, uuid string, capacity int) error {
	_, err := call[struct{}](ctx, c, "create_db", map[string]any{"uuid": uuid, "capacity": capacity})
	return err
}

// DeleteDB removes a feature database by uuid.
func (c *Client) DeleteDB(ctx context.Context, uuid string) error {
	_, err := call[struct{}](ctx, c, "delete_db", map[string]string{"uuid": uuid})
	return err
}

// personFeature is one feature-quality pair in a create_persons request,
// per spec §4.7's person apply rule.
type personFeature struct {
	FeatureBase64 string  `json:"feature"`
	Quality       float64 `json:"quality"`
}

// CreatePersons registers one person's features in a feature database.
func (c *Client) CreatePersons(ctx context.Context, dbID, personUUID string, features []PersonFeature) error {
	wire := make([]personFeature, len(features))
	for i, f := range features {
		wire[i] = personFeature{FeatureBase64: f.FeatureBase64, Quality: f.Quality}
	}
	_, err := call[struct{}](ctx, c, "create_persons", map[string]any{
		"db":   dbID,
		"uuid": personUUID,
		"features": wire,
	})
	return err
}

// PersonFeature is one face feature contributing to a person's enrollment.
type PersonFeature struct {
	FeatureBase64 string
	Quality       float64
}

// DeletePerson removes a person from a feature database.
func (c *Client) DeletePerson(ctx context.Context, dbID, personUUID string) error {
	_, err := call[struct{}](ctx, c, "delete_person", map[string]string{"db": dbID, "uuid": personUUID})
	return err
}

// searchRequest is the wire shape spec §6 gives verbatim: top and
// threshold are carried as single-element arrays rather than scalars.
type searchRequest struct {
	Features  [][]searchFeature `json:"features"`
	Top       []int             `json:"top"`
	Threshold []int             `json:"threshold"`
	DB        []string          `json:"db"`
}

type searchFeature struct {
	Feature string  `json:"feature"`
	Quality float64 `json:"quality"`
}

type searchHit struct {
	ID    string  `json:"id"`
	DB    string  `json:"db"`
	Score float64 `json:"score"`
}

// Search queries the recognizer for the top matches of each candidate
// list in persons, against dbs. Satisfies search.Recognizer. A nil or
// mismatched-length response is the caller's responsibility to detect
// (spec §4.4 step 4); Search itself just decodes whatever came back.
func (c *Client) Search(ctx context.Context, dbs []string, top, threshold int, persons [][]search.Candidate) ([][]search.SearchResult, error) {
	req := searchRequest{
		Features:  make([][]searchFeature, len(persons)),
		Top:       []int{top},
		Threshold: []int{threshold},
		DB:        dbs,
	}
	for i, candidates := range persons {
		row := make([]searchFeature, len(candidates))
		for j, cand := range candidates {
			row[j] = searchFeature{Feature: cand.FeatureBase64, Quality: cand.Quality}
		}
		req.Features[i] = row
	}

	var raw struct {
		Persons [][]searchHit `json:"persons"`
	}
	if err := c.rpc.Call(ctx, "search", req, &raw); err != nil {
		return nil, err
	}

	out := make([][]search.SearchResult, len(raw.Persons))
	for i, hits := range raw.Persons {
		row := make([]search.SearchResult, len(hits))
		for j, h := range hits {
			row[j] = search.SearchResult{DB: h.DB, ID: h.ID, Score: h.Score}
		}
		out[i] = row
	}
	return out, nil
}
