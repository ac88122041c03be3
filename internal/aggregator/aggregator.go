// Package aggregator implements the per-kind track aggregation state
// machine (spec C3): it merges partial notifications sharing a uuid into a
// single consolidated Track under two concurrent delay timers, and emits
// the consolidated Track exactly once.
//
// One Aggregator instance exists per entity kind (face, vehicle); the
// readiness predicate is supplied by the caller, while merging and the
// face egress ordering switch on the track's Kind inside this package, so
// the two variants share this one implementation, per spec §9's
// instruction to parameterize over kind rather than duplicate.
package aggregator

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/internal/delayqueue"
	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/internal/serialpool"
	"github.com/fyuneru/boxnet/logger"
)

// Readiness decides whether a freshly-merged track is ready to forward.
type Readiness func(t *model.Track) bool

// Config bundles the per-kind behavior and delay durations an Aggregator
// needs.
type Config struct {
	Kind         model.Kind
	Readiness    Readiness
	ReadyDelay   durationSeconds
	CleanDelay   durationSeconds
	QueueBuffer  int
}

// durationSeconds avoids importing time into every call site that only
// has an integer config value; Aggregator converts internally.
type durationSeconds = int

// Aggregator runs one event loop over ingress notifications, the two
// delay queues, and the serial pool's forward signal.
type Aggregator struct {
	cfg Config
	log *zap.SugaredLogger

	ready *delayqueue.Queue
	clean *delayqueue.Queue
	pool  *serialpool.Pool[string, model.TrackEvent]

	ingress       chan *model.Notification
	forwardSignal chan *model.Track // holder workers -> event loop
	out           chan *model.Track // event loop -> consumers
	Forwarded     <-chan *model.Track

	mu     sync.Mutex
	active map[string]*model.Track
	seen   map[string]struct{}
}

// New builds an Aggregator. Call Run in its own goroutine to start the
// event loop; send notifications to Ingress(); read forwarded tracks from
// Forwarded.
func New(cfg Config, log *zap.SugaredLogger) *Aggregator {
	buf := cfg.QueueBuffer
	if buf <= 0 {
		buf = 256
	}
	out := make(chan *model.Track, buf)
	a := &Aggregator{
		cfg:           cfg,
		log:           log.With(logger.FieldComponent, "aggregator", "kind", cfg.Kind.String()),
		ready:         delayqueue.New(buf),
		clean:         delayqueue.New(buf),
		ingress:       make(chan *model.Notification, buf),
		forwardSignal: make(chan *model.Track, buf),
		out:           out,
		Forwarded:     out,
		active:        make(map[string]*model.Track),
		seen:          make(map[string]struct{}),
	}
	a.pool = serialpool.New(a.handleBatch)
	return a
}

// Ingress returns the channel notifications for this aggregator's kind
// should be sent on.
func (a *Aggregator) Ingress() chan<- *model.Notification {
	return a.ingress
}

// Run drives the event loop until ctx is cancelled. It is the sole
// mutator of active/seen membership; holder workers only ever request
// mutation via the forward channel.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.ready.Stop()
			a.clean.Stop()
			return

		case n := <-a.ingress:
			a.onNotification(n)

		case uuid := <-a.ready.Expired():
			a.onReadyExpired(uuid)

		case uuid := <-a.clean.Expired():
			a.onCleanExpired(uuid)

		case t := <-a.forwardSignal:
			a.onForward(t)
		}
	}
}

func (a *Aggregator) onNotification(n *model.Notification) {
	a.mu.Lock()
	_, isActive := a.active[n.UUID]
	_, wasSeen := a.seen[n.UUID]

	if !isActive && wasSeen {
		a.mu.Unlock()
		a.log.Debugw("dropping notification for already-forwarded track", logger.FieldUUID, n.UUID)
		return
	}

	if isActive {
		a.mu.Unlock()
		a.pool.Dispatch(n.UUID, model.AppendEvent(n))
		return
	}

	t := &model.Track{
		UUID:     n.UUID,
		Ts:       n.Ts,
		Kind:     n.Kind,
		CameraID: n.CameraID,
	}

	// Merge n into t exactly once, here, before t is visible to the pool:
	// the NewEvent dispatched below then sees the birth frame already
	// merged, so a track that is ready at birth is never forwarded empty.
	// Later notifications for this uuid arrive as AppendEvents.
	readyAtBirth := a.cfg.Readiness(mergeNew(t, n))
	t.ReadyFlag = readyAtBirth
	a.active[n.UUID] = t
	a.seen[n.UUID] = struct{}{}
	a.mu.Unlock()

	a.pool.Dispatch(n.UUID, model.NewEvent())

	a.clean.Schedule(n.UUID, secondsToDuration(a.cfg.CleanDelay))
	if !readyAtBirth {
		a.ready.Schedule(n.UUID, secondsToDuration(a.cfg.ReadyDelay))
	}
}

func (a *Aggregator) onReadyExpired(uuid string) {
	a.mu.Lock()
	_, isActive := a.active[uuid]
	a.mu.Unlock()
	if !isActive {
		return
	}
	a.pool.Dispatch(uuid, model.DelayEvent(uuid))
}

func (a *Aggregator) onCleanExpired(uuid string) {
	a.mu.Lock()
	delete(a.seen, uuid)
	a.mu.Unlock()
	a.pool.Forget(uuid)
}

func (a *Aggregator) onForward(t *model.Track) {
	a.mu.Lock()
	delete(a.active, t.UUID)
	a.mu.Unlock()

	if t.Kind == model.KindFace {
		sortFaces(t)
	}

	a.out <- t
}

// handleBatch is the serial pool's handler: it runs under the guarantee
// that no other goroutine is handling uuid's events concurrently, and
// sees them in dispatch order.
func (a *Aggregator) handleBatch(uuid string, events []model.TrackEvent) {
	a.mu.Lock()
	t, ok := a.active[uuid]
	a.mu.Unlock()
	if !ok {
		return
	}

	var newed, readyOld, readyNew bool
	readyOld = t.ReadyFlag

	for _, ev := range events {
		switch ev.Tag {
		case model.EventNew:
			newed = true
		case model.EventAppend:
			mergeAppend(t, ev.Notification)
		case model.EventDelay:
			t.ReadyFlag = true
		}
	}
	readyNew = a.cfg.Readiness(t) || t.ReadyFlag
	t.ReadyFlag = readyNew

	shouldForward := (newed && readyOld) || (!readyOld && readyNew)
	if shouldForward {
		a.forwardSignal <- t
	}
}

func mergeNew(t *model.Track, n *model.Notification) *model.Track {
	mergeAppend(t, n)
	return t
}

func mergeAppend(t *model.Track, n *model.Notification) {
	if n == nil {
		return
	}
	t.Background = n.Background

	switch t.Kind {
	case model.KindFace:
		t.Faces = append(t.Faces, n.Faces...)
	case model.KindVehicle:
		t.VehicleImages = append(t.VehicleImages, n.VehicleImages...)
		if n.Plate != nil {
			t.Plate = n.Plate
		}
		if n.Props != nil {
			t.Props = n.Props
		}
	}
}

// sortFaces applies spec §4.3's egress ordering: faces with a feature
// blob first, ascending by frame number within each group; then assigns
// the canonical 1-based file names.
func sortFaces(t *model.Track) {
	faces := t.Faces
	sort.SliceStable(faces, func(i, j int) bool {
		hi, hj := faces[i].HasFeature(), faces[j].HasFeature()
		if hi != hj {
			return hi
		}
		return faces[i].FrameNum < faces[j].FrameNum
	})
	for i := range faces {
		n := i + 1
		faces[i].AlignedFile = faceFileName("align", n, "bmp")
		faces[i].DisplayFile = faceFileName("display", n, "bmp")
		faces[i].FeatureFile = faceFileName("feature", n, "data")
	}
	t.Faces = faces
}

func faceFileName(prefix string, i int, ext string) string {
	return prefix + "_" + strconv.Itoa(i) + "." + ext
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
