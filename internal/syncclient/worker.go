package syncclient

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/analyzerapi"
	"github.com/fyuneru/boxnet/internal/broker"
	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/internal/recognizerapi"
	"github.com/fyuneru/boxnet/logger"
)

// Worker drains broker.TaskItems and runs the C7 reconciliation logic
// described in spec §4.7: ordered camera/db/person sync, heartbeat status
// collection, remote reset, and reboot.
type Worker struct {
	hwID       string
	delta      *DeltaClient
	cursors    *Cursors
	cursorPath string

	analyzer   *analyzerapi.Client
	recognizer *recognizerapi.Client
	producer   *broker.Producer

	uploadURL      string
	maxIterations  int
	iterationSleep time.Duration

	log *zap.SugaredLogger
}

// Config bundles Worker's construction parameters.
type Config struct {
	HWID           string
	CursorPath     string
	UploadURL      string
	MaxIterations  int
	IterationSleep time.Duration
}

// New builds a Worker. delta and cursors must already be initialized;
// producer is used only for the heartbeat status envelope.
func New(cfg Config, delta *DeltaClient, cursors *Cursors, analyzer *analyzerapi.Client, recognizer *recognizerapi.Client, producer *broker.Producer, log *zap.SugaredLogger) *Worker {
	return &Worker{
		hwID:           cfg.HWID,
		delta:          delta,
		cursors:        cursors,
		cursorPath:     cfg.CursorPath,
		analyzer:       analyzer,
		recognizer:     recognizer,
		producer:       producer,
		uploadURL:      cfg.UploadURL,
		maxIterations:  cfg.MaxIterations,
		iterationSleep: cfg.IterationSleep,
		log:            log.With(logger.FieldComponent, "sync-worker"),
	}
}

// Run drains tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, tasks <-chan broker.TaskItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-tasks:
			w.handle(ctx, task)
		}
	}
}

func (w *Worker) handle(ctx context.Context, task broker.TaskItem) {
	switch task.Kind {
	case broker.TaskSync:
		w.runSync(ctx)
	case broker.TaskReset:
		w.handleReset(ctx, task.Payload)
	case broker.TaskReboot:
		w.handleReboot(ctx)
	case broker.TaskHeartbeat:
		w.handleHeartbeat(ctx)
	default:
		w.log.Warnw("dropping task of unknown kind", "kind", task.Kind)
	}
}

// runSync runs the three sync stages in the fixed order spec §4.7 requires,
// saving cursors between stages and bailing out early on shutdown.
func (w *Worker) runSync(ctx context.Context) {
	w.runStage(ctx, model.SyncKindCamera, w.applyCameraDelta)
	w.saveCursors()
	if ctx.Err() != nil {
		return
	}

	w.runStage(ctx, model.SyncKindDB, w.applyDBDelta)
	w.saveCursors()
	if ctx.Err() != nil {
		return
	}

	w.runStage(ctx, model.SyncKindPerson, w.applyPersonDelta)
	w.saveCursors()
}

// runStage paginates one sync kind: repeatedly fetch up to batch_size
// deltas newer than the cursor, apply each, and advance the cursor after
// every entry (not only after the batch) so a mid-batch apply failure
// never causes re-application of rows already applied. Stops when the
// server returns an empty page, an iteration ceiling is hit, or shutdown
// is signalled.
func (w *Worker) runStage(ctx context.Context, kind model.SyncKind, apply func(ctx context.Context, row model.DeltaRow) error) {
	for i := 0; i < w.maxIterations; i++ {
		if ctx.Err() != nil {
			return
		}

		cursor := w.cursors.Get(kind)
		rows, err := w.delta.Fetch(ctx, kind, w.hwID, cursor)
		if err != nil {
			w.log.Errorw("sync stage fetch failed", "kind", kind.String(), "error", err)
			return
		}
		if len(rows) == 0 {
			return
		}

		for _, row := range rows {
			if err := apply(ctx, row); err != nil {
				w.log.Errorw("sync apply failed, advancing cursor past entry", "kind", kind.String(), "uuid", row.UUID, "error", err)
			}
			w.cursors.Advance(kind, row)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.iterationSleep):
		}
	}
	w.log.Warnw("sync stage hit iteration ceiling", "kind", kind.String(), "max_iterations", w.maxIterations)
}

func (w *Worker) saveCursors() {
	if err := w.cursors.Save(w.cursorPath); err != nil {
		w.log.Errorw("failed to persist sync cursors", "error", err)
	}
}

type cameraApplyPayload struct {
	Name   string `json:"name"`
	CType  int    `json:"c_type"`
	URL    string `json:"url"`
	Config string `json:"config"`
}

// applyCameraDelta implements spec §4.7's camera apply rule: delete-then-
// create on modify, with c_type toggling enable_face/enable_vehicle and the
// local upload URL overriding whatever the server carried.
func (w *Worker) applyCameraDelta(ctx context.Context, row model.DeltaRow) error {
	if row.Op == model.DeltaDelete {
		return w.analyzer.DeleteSource(ctx, row.UUID)
	}

	var payload cameraApplyPayload
	if err := decodeRowPayload(row.Payload, &payload); err != nil {
		return err
	}

	if err := w.analyzer.DeleteSource(ctx, row.UUID); err != nil {
		w.log.Debugw("delete-before-create: source did not exist", "uuid", row.UUID, "error", err)
	}

	uploadURL := payload.Config
	if w.uploadURL != "" {
		uploadURL = w.uploadURL
	}

	cfg := analyzerapi.SourceConfig{
		UUID:          row.UUID,
		URL:           payload.URL,
		EnableFace:    payload.CType == 1 || payload.CType == 3,
		EnableVehicle: payload.CType == 2 || payload.CType == 3,
		UploadURL:     uploadURL,
	}
	return w.analyzer.CreateSource(ctx, cfg)
}

type dbApplyPayload struct {
	Capacity int `json:"capacity"`
	Uses     int `json:"uses"`
}

// applyDBDelta implements spec §4.7's db apply rule: capacity changes on an
// existing remote db are never propagated; a db only gets created when it
// doesn't exist yet remotely.
func (w *Worker) applyDBDelta(ctx context.Context, row model.DeltaRow) error {
	if row.Op == model.DeltaDelete {
		return w.recognizer.DeleteDB(ctx, row.UUID)
	}

	var payload dbApplyPayload
	if err := decodeRowPayload(row.Payload, &payload); err != nil {
		return err
	}

	if _, err := w.recognizer.GetDBInfo(ctx, row.UUID); err == nil {
		return nil
	}
	return w.recognizer.CreateDB(ctx, row.UUID, payload.Capacity)
}

type personFaceApplyPayload struct {
	ID      string  `json:"id"`
	Feature string  `json:"feature"`
	Quality float64 `json:"quality"`
}

type personApplyPayload struct {
	PersonUUID string                   `json:"person_uuid"`
	DBID       string                   `json:"db_id"`
	Faces      []personFaceApplyPayload `json:"faces"`
}

// applyPersonDelta implements spec §4.7's person apply rule: delete-then-
// create on modify, re-enrolling every face in the row set.
func (w *Worker) applyPersonDelta(ctx context.Context, row model.DeltaRow) error {
	var payload personApplyPayload
	if err := decodeRowPayload(row.Payload, &payload); err != nil {
		return err
	}
	personUUID := payload.PersonUUID
	if personUUID == "" {
		personUUID = row.UUID
	}

	if row.Op == model.DeltaDelete {
		return w.recognizer.DeletePerson(ctx, payload.DBID, personUUID)
	}

	if err := w.recognizer.DeletePerson(ctx, payload.DBID, personUUID); err != nil {
		w.log.Debugw("delete-before-create: person did not exist", "uuid", personUUID, "error", err)
	}

	features := make([]recognizerapi.PersonFeature, len(payload.Faces))
	for i, f := range payload.Faces {
		features[i] = recognizerapi.PersonFeature{FeatureBase64: f.Feature, Quality: f.Quality}
	}
	return w.recognizer.CreatePersons(ctx, payload.DBID, personUUID, features)
}

func decodeRowPayload(raw any, v any) error {
	switch p := raw.(type) {
	case json.RawMessage:
		return decodePayload(p, v)
	case []byte:
		return decodePayload(p, v)
	default:
		return errors.Newf("unexpected delta payload type %T", raw)
	}
}

type resetPayload struct {
	DB     bool `json:"db"`
	Camera bool `json:"camera"`
}

// handleReset implements spec §4.7's ServerCmd/reset: wipe and re-zero the
// requested cursor(s). Cursors are always saved afterward regardless of
// which flags were set.
func (w *Worker) handleReset(ctx context.Context, raw json.RawMessage) {
	var payload resetPayload
	if err := decodePayload(raw, &payload); err != nil {
		w.log.Errorw("malformed reset command payload", "error", err)
		return
	}

	if payload.Camera {
		sources, err := w.analyzer.GetSources(ctx)
		if err != nil {
			w.log.Errorw("reset: list sources failed", "error", err)
		}
		for _, s := range sources {
			if err := w.analyzer.DeleteSource(ctx, s.UUID); err != nil {
				w.log.Errorw("reset: delete source failed", "uuid", s.UUID, "error", err)
			}
		}
		w.cursors.Reset(model.SyncKindCamera)
	}

	if payload.DB {
		dbs, err := w.recognizer.GetDBs(ctx)
		if err != nil {
			w.log.Errorw("reset: list dbs failed", "error", err)
		}
		for _, uuid := range dbs {
			if err := w.recognizer.DeleteDB(ctx, uuid); err != nil {
				w.log.Errorw("reset: delete db failed", "uuid", uuid, "error", err)
			}
		}
		w.cursors.Reset(model.SyncKindDB)
	}

	w.saveCursors()
}

// handleReboot invokes the host's shutdown command per spec §4.7. Failure
// is only logged: there is no recovery action once a reboot is requested.
func (w *Worker) handleReboot(ctx context.Context) {
	w.log.Warnw("reboot command received, invoking host shutdown")
	cmd := exec.CommandContext(ctx, "shutdown", "-r", "now")
	if err := cmd.Run(); err != nil {
		w.log.Errorw("host shutdown command failed", "error", err)
	}
}

type heartbeatCamera struct {
	UUID          string `json:"uuid"`
	URL           string `json:"url"`
	EnableFace    bool   `json:"enable_face"`
	EnableVehicle bool   `json:"enable_vehicle"`
	Running       bool   `json:"running"`
}

type heartbeatDB struct {
	UUID     string `json:"uuid"`
	Capacity int    `json:"capacity"`
	Uses     int    `json:"uses"`
}

type heartbeatEnvelope struct {
	HWID    string            `json:"hw_id"`
	Ts      int64             `json:"ts"`
	Cameras []heartbeatCamera `json:"cameras"`
	DBs     []heartbeatDB     `json:"dbs"`
}

// handleHeartbeat implements spec §4.7's HeartBeat action: collect local
// camera and db inventory status and publish it on the outbound broker
// queue.
func (w *Worker) handleHeartbeat(ctx context.Context) {
	sources, err := w.analyzer.GetSources(ctx)
	if err != nil {
		w.log.Errorw("heartbeat: list sources failed", "error", err)
	}
	cameras := make([]heartbeatCamera, len(sources))
	for i, s := range sources {
		cameras[i] = heartbeatCamera{UUID: s.UUID, URL: s.URL, EnableFace: s.EnableFace, EnableVehicle: s.EnableVehicle, Running: s.Running}
	}

	uuids, err := w.recognizer.GetDBs(ctx)
	if err != nil {
		w.log.Errorw("heartbeat: list dbs failed", "error", err)
	}
	dbs := make([]heartbeatDB, 0, len(uuids))
	for _, uuid := range uuids {
		info, err := w.recognizer.GetDBInfo(ctx, uuid)
		if err != nil {
			w.log.Errorw("heartbeat: get db info failed", "uuid", uuid, "error", err)
			continue
		}
		dbs = append(dbs, heartbeatDB{UUID: info.UUID, Capacity: info.Capacity, Uses: info.Uses})
	}

	envelope := heartbeatEnvelope{HWID: w.hwID, Ts: time.Now().Unix(), Cameras: cameras, DBs: dbs}
	if err := w.producer.Publish(ctx, "heartbeat", envelope); err != nil {
		w.log.Errorw("heartbeat: publish failed", "error", err)
	}
}
