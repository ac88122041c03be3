package syncserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/internal/timeconv"
	"github.com/fyuneru/boxnet/logger"
)

// fetchFunc is the per-kind delta fetcher dao.go provides.
type fetchFunc func(ctx context.Context, db *sql.DB, conv *timeconv.Converter, after string, limit int) (live, del []Row, err error)

// Server answers the three delta-sync REST endpoints (spec §6): GET
// /db_sync, /camera_sync, /person_sync, each parameterized by hw_id and
// last_update.
type Server struct {
	db    *sql.DB
	conv  *timeconv.Converter
	limit int
	log   *zap.SugaredLogger
}

// New builds a Server reading from db, interpreting naive timestamps
// through conv, and truncating every response to limit rows.
func New(db *sql.DB, conv *timeconv.Converter, limit int, log *zap.SugaredLogger) *Server {
	return &Server{db: db, conv: conv, limit: limit, log: log.With(logger.FieldComponent, "syncserver")}
}

// RegisterRoutes wires the three sync endpoints onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/db_sync", s.handle(model.SyncKindDB, fetchDBDeltas))
	mux.HandleFunc("/camera_sync", s.handle(model.SyncKindCamera, fetchCameraDeltas))
	mux.HandleFunc("/person_sync", s.handle(model.SyncKindPerson, fetchPersonDeltas))
}

func (s *Server) handle(kind model.SyncKind, fetch fetchFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		hwID := r.URL.Query().Get("hw_id")
		lastUpdate := r.URL.Query().Get("last_update")

		if hwID == "" || lastUpdate == "" {
			s.writeJSON(w, syncResponse{Status: StatusInvalidParas, Message: "invalid hw_id or last_update", Ts: s.conv.FormatLong(s.conv.Now())})
			return
		}

		after, err := s.conv.ParseLong(lastUpdate)
		if err != nil {
			s.writeJSON(w, syncResponse{Status: StatusInvalidParas, Message: "invalid last_update", Ts: s.conv.FormatLong(s.conv.Now())})
			return
		}

		device, err := lookupDevice(ctx, s.db, hwID)
		if err != nil {
			s.log.Warnw("sync request for unknown device", logger.FieldHWID, hwID, "error", err)
			s.writeJSON(w, syncResponse{Status: StatusDeviceError, Message: "device not found", Ts: s.conv.FormatLong(s.conv.Now())})
			return
		}
		if !device.authorize(kind) {
			s.writeJSON(w, syncResponse{Status: StatusOK, Ts: s.conv.FormatLong(s.conv.Now())})
			return
		}

		live, del, err := fetch(ctx, s.db, s.conv, s.conv.FormatDateTime(after), s.limit)
		if err != nil {
			s.log.Errorw("sync fetch failed", "kind", kind.String(), "error", err)
			s.writeJSON(w, syncResponse{Status: StatusDeviceError, Message: "internal error", Ts: s.conv.FormatLong(s.conv.Now())})
			return
		}

		merged := MergeDelta(live, del, s.limit)
		s.writeJSON(w, syncResponse{
			Status: StatusOK,
			Ts:     s.conv.FormatLong(s.conv.Now()),
			Data:   toWireRows(merged, s.conv.FormatLong),
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, resp syncResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Errorw("failed to write sync response", "error", err)
	}
}
