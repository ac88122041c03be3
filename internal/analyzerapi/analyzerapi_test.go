package analyzerapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetSourcesDecodesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"code":0,"msg":"ok","data":[
			{"uuid":"cam1","url":"rtsp://x","enable_face":true,"enable_vehicle":false,"running":true}
		]}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	sources, err := c.GetSources(context.Background())
	if err != nil {
		t.Fatalf("GetSources: %v", err)
	}
	if len(sources) != 1 || sources[0].UUID != "cam1" || !sources[0].EnableFace {
		t.Fatalf("unexpected sources: %+v", sources)
	}
}

func TestDeleteSourceBizErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"code":404,"msg":"not found","data":null}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.DeleteSource(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected a biz error")
	}
	bizErr, ok := err.(*BizError)
	if !ok {
		t.Fatalf("expected *BizError, got %T", err)
	}
	if bizErr.Code != 404 {
		t.Fatalf("unexpected code: %d", bizErr.Code)
	}
}
