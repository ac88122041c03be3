package ingest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/internal/model"
)

func testLog() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func writeField(t *testing.T, w *multipart.Writer, field, content string) {
	t.Helper()
	if err := w.WriteField(field, content); err != nil {
		t.Fatalf("write field %s: %v", field, err)
	}
}

func writeFile(t *testing.T, w *multipart.Writer, field string, content []byte) {
	t.Helper()
	part, err := w.CreateFormFile(field, field)
	if err != nil {
		t.Fatalf("create form file %s: %v", field, err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file %s: %v", field, err)
	}
}

func TestHandlerFaceTrackRoutesNotification(t *testing.T) {
	faceIn := make(chan *model.Notification, 1)
	vehicleIn := make(chan *model.Notification, 1)
	h := New(10<<20, faceIn, vehicleIn, testLog())

	env := faceNotifyWire{
		ID:     "u1",
		Index:  1,
		Source: "cam1",
		Background: backgroundWire{
			ImageFile: "bg",
		},
		Faces: []faceWire{
			{AlignedFile: "aligned_1", DisplayFile: "display_1", Quality: 0.9, FrameNum: 1},
		},
	}
	body, mimeType := buildFaceMultipart(t, env, map[string][]byte{
		"bg":         []byte("not-a-bmp"),
		"aligned_1":  []byte("not-a-bmp"),
		"display_1":  []byte("not-a-bmp"),
	})

	req := httptest.NewRequest(http.MethodPost, "/trackupload", body)
	req.Header.Set("Content-Type", mimeType)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != 0 {
		t.Fatalf("expected status 0, got %d (%s)", resp.Status, resp.Message)
	}

	select {
	case n := <-faceIn:
		if n.UUID != "u1" || n.CameraID != "cam1" || len(n.Faces) != 1 {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a notification on the face ingress channel")
	}
}

func TestHandlerUnknownTypeRejected(t *testing.T) {
	faceIn := make(chan *model.Notification, 1)
	vehicleIn := make(chan *model.Notification, 1)
	h := New(10<<20, faceIn, vehicleIn, testLog())

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	writeField(t, w, "type", "unknown")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/trackupload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status == 0 {
		t.Fatal("expected a non-zero status for an unknown track type")
	}
}

func buildFaceMultipart(t *testing.T, env faceNotifyWire, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	writeField(t, w, "type", "facetrack")

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	writeField(t, w, "json", string(raw))

	for field, content := range files {
		writeFile(t, w, field, content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}
