package search

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/internal/model"
)

type fakeRecognizer struct {
	dbs      []string
	dbsErr   error
	results  [][]SearchResult
	searched bool
}

func (f *fakeRecognizer) GetDBs(ctx context.Context) ([]string, error) {
	return f.dbs, f.dbsErr
}

func (f *fakeRecognizer) Search(ctx context.Context, dbs []string, top, threshold int, persons [][]Candidate) ([][]SearchResult, error) {
	f.searched = true
	return f.results, nil
}

func trackWithFeature(uuid string) *model.Track {
	return &model.Track{
		UUID: uuid,
		Kind: model.KindFace,
		Faces: []model.FaceRecord{
			{Quality: 0.9, Feature: []byte("f")},
		},
	}
}

func trackWithoutFeature(uuid string) *model.Track {
	return &model.Track{
		UUID: uuid,
		Kind: model.KindFace,
		Faces: []model.FaceRecord{
			{Quality: 0.9},
		},
	}
}

func TestSkipsSearchWhenAnyTrackLacksFeature(t *testing.T) {
	rec := &fakeRecognizer{dbs: []string{"db1"}}
	b := New(Config{BatchSize: 2, CacheTTL: time.Minute, TopN: 1, Threshold: 80}, rec, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.In <- trackWithFeature("a")
	b.In <- trackWithoutFeature("b")

	for i := 0; i < 2; i++ {
		select {
		case <-b.Out:
		case <-time.After(time.Second):
			t.Fatal("expected every track to still be forwarded")
		}
	}
	if rec.searched {
		t.Fatal("expected search to be skipped for a batch with any featureless track")
	}
}

func TestMismatchedResponseLengthLeavesTracksUnannotated(t *testing.T) {
	rec := &fakeRecognizer{dbs: []string{"db1"}, results: [][]SearchResult{{{DB: "db1", ID: "p1", Score: 0.9}}}}
	b := New(Config{BatchSize: 2, CacheTTL: time.Minute, TopN: 1, Threshold: 80}, rec, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.In <- trackWithFeature("a")
	b.In <- trackWithFeature("b")

	for i := 0; i < 2; i++ {
		select {
		case tr := <-b.Out:
			if tr.Matches != nil {
				t.Fatalf("expected no matches on length mismatch, got %+v", tr.Matches)
			}
		case <-time.After(time.Second):
			t.Fatal("expected every track to still be forwarded")
		}
	}
}
