// Package search implements the face search batcher (spec C4): it groups
// ready face tracks into small batches, resolves a TTL-cached list of
// active feature databases, queries an external recognizer, and annotates
// each track with its top-N matches before forwarding every track
// (annotated or not) to the uplink queue.
package search

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/logger"
)

// Candidate is one face's search input: its feature blob (base64-encoded,
// per the recognizer wire contract) and quality score.
type Candidate struct {
	FeatureBase64 string
	Quality       float64
}

// SearchResult is one hit returned by the recognizer for one track.
type SearchResult struct {
	DB    string
	ID    string
	Score float64
}

// Recognizer is the external search dependency, satisfied by
// internal/recognizerapi.Client.
type Recognizer interface {
	GetDBs(ctx context.Context) ([]string, error)
	Search(ctx context.Context, dbs []string, top, threshold int, persons [][]Candidate) ([][]SearchResult, error)
}

// Config bundles the batcher's tunables, sourced from config.SearchConfig.
type Config struct {
	BatchSize       int
	CacheTTL        time.Duration
	TopN            int
	Threshold       int
	SkipSearch      bool
	IgnoreDBs       map[string]struct{}
}

// Batcher pulls ready face tracks from In and forwards every one (with or
// without matches) to Out.
type Batcher struct {
	cfg  Config
	rec  Recognizer
	log  *zap.SugaredLogger

	In  chan *model.Track
	Out chan *model.Track

	cacheMu    sync.Mutex
	cachedDBs  []string
	cachedAt   time.Time
}

// New builds a Batcher. Call Run in its own goroutine.
func New(cfg Config, rec Recognizer, log *zap.SugaredLogger) *Batcher {
	return &Batcher{
		cfg: cfg,
		rec: rec,
		log: log.With(logger.FieldComponent, "search"),
		In:  make(chan *model.Track, 256),
		Out: make(chan *model.Track, 256),
	}
}

// Run drains In in bursts of up to BatchSize and processes each burst,
// until ctx is cancelled.
func (b *Batcher) Run(ctx context.Context) {
	batch := make([]*model.Track, 0, b.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.processBatch(ctx, batch)
		batch = batch[:0]
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case t := <-b.In:
			batch = append(batch, t)
			if len(batch) >= b.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (b *Batcher) processBatch(ctx context.Context, batch []*model.Track) {
	skip := b.cfg.SkipSearch || b.anyLacksFeature(batch)
	if !skip {
		dbs := b.resolveDBs(ctx)
		skip = len(dbs) == 0
		if !skip {
			b.annotate(ctx, dbs, batch)
		}
	}
	for _, t := range batch {
		select {
		case b.Out <- t:
		case <-ctx.Done():
			return
		}
	}
}

// anyLacksFeature implements spec §4.4 step 1 / Open Question #3,
// preserved as-is: a single track without a feature blob skips search for
// the whole batch.
func (b *Batcher) anyLacksFeature(batch []*model.Track) bool {
	for _, t := range batch {
		if !anyFaceHasFeature(t) {
			return true
		}
	}
	return false
}

func anyFaceHasFeature(t *model.Track) bool {
	for _, f := range t.Faces {
		if f.HasFeature() {
			return true
		}
	}
	return false
}

func (b *Batcher) resolveDBs(ctx context.Context) []string {
	b.cacheMu.Lock()
	if !b.cachedAt.IsZero() && time.Since(b.cachedAt) < b.cfg.CacheTTL {
		dbs := b.cachedDBs
		b.cacheMu.Unlock()
		return dbs
	}
	b.cacheMu.Unlock()

	dbs, err := b.rec.GetDBs(ctx)
	if err != nil {
		b.log.Warnw("get_dbs failed, search skipped for this batch", "error", err)
		return nil
	}

	filtered := dbs[:0:0]
	for _, db := range dbs {
		if _, ignore := b.cfg.IgnoreDBs[db]; !ignore {
			filtered = append(filtered, db)
		}
	}

	b.cacheMu.Lock()
	b.cachedDBs = filtered
	b.cachedAt = time.Now()
	b.cacheMu.Unlock()

	return filtered
}

func (b *Batcher) annotate(ctx context.Context, dbs []string, batch []*model.Track) {
	persons := make([][]Candidate, len(batch))
	for i, t := range batch {
		persons[i] = candidatesFor(t)
	}

	results, err := b.rec.Search(ctx, dbs, b.cfg.TopN, b.cfg.Threshold, persons)
	if err != nil {
		b.log.Warnw("search failed, tracks forwarded unannotated", "error", err)
		return
	}
	if len(results) != len(batch) {
		b.log.Warnw("search response length mismatch, tracks forwarded unannotated",
			"want", len(batch), "got", len(results))
		return
	}

	for i, t := range batch {
		hits := results[i]
		if len(hits) == 0 {
			continue
		}
		matches := make([]model.Match, len(hits))
		for j, h := range hits {
			matches[j] = model.Match{DBID: h.DB, PersonUUID: h.ID, Score: h.Score}
		}
		t.Matches = matches
	}
}

func candidatesFor(t *model.Track) []Candidate {
	var out []Candidate
	for _, f := range t.Faces {
		if !f.HasFeature() {
			continue
		}
		out = append(out, Candidate{
			FeatureBase64: base64.StdEncoding.EncodeToString(f.Feature),
			Quality:       f.Quality,
		})
	}
	return out
}
