package recognizerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyuneru/boxnet/internal/search"
)

func TestSearchMapsHitsPerTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		params := req["params"].(map[string]any)
		if params["db"] == nil {
			t.Fatal("expected db list in request params")
		}
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"persons":[
			[{"id":"p1","db":"dbA","score":0.9}],
			[]
		]}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	results, err := c.Search(context.Background(), []string{"dbA"}, 1, 80, [][]search.Candidate{
		{{FeatureBase64: "f1", Quality: 0.9}},
		{{FeatureBase64: "f2", Quality: 0.8}},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 result rows (one per track), got %d", len(results))
	}
	if len(results[0]) != 1 || results[0][0].ID != "p1" {
		t.Fatalf("unexpected first row: %+v", results[0])
	}
	if len(results[1]) != 0 {
		t.Fatalf("expected empty hit list for second track, got %+v", results[1])
	}
}

func TestGetDBInfoDecodesCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"code":0,"msg":"","data":{"uuid":"db1","capacity":100,"uses":5}}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	info, err := c.GetDBInfo(context.Background(), "db1")
	if err != nil {
		t.Fatalf("GetDBInfo: %v", err)
	}
	if info.Capacity != 100 || info.Uses != 5 {
		t.Fatalf("unexpected db info: %+v", info)
	}
}

func TestDeletePersonBizError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"code":1,"msg":"nope","data":null}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if err := c.DeletePerson(context.Background(), "db1", "p1"); err == nil {
		t.Fatal("expected a biz error")
	}
}
