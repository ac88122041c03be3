package ingest

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/logger"
)

// Handler serves POST /trackupload: it parses the multipart envelope,
// transcodes every referenced BMP file part to JPEG, builds a
// model.Notification, and routes it to the matching aggregator's ingress
// channel.
type Handler struct {
	maxContentLength int64
	faceIngress      chan<- *model.Notification
	vehicleIngress   chan<- *model.Notification
	log              *zap.SugaredLogger
}

// New builds a Handler. faceIngress/vehicleIngress are the aggregator
// ingress channels for each kind (see internal/aggregator.Aggregator.Ingress).
func New(maxContentLength int64, faceIngress, vehicleIngress chan<- *model.Notification, log *zap.SugaredLogger) *Handler {
	return &Handler{
		maxContentLength: maxContentLength,
		faceIngress:      faceIngress,
		vehicleIngress:   vehicleIngress,
		log:              log.With(logger.FieldComponent, "ingest"),
	}
}

// ServeHTTP implements the POST /trackupload contract of spec §6.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxContentLength)

	if err := r.ParseMultipartForm(h.maxContentLength); err != nil {
		h.writeResponse(w, errResponse("request too large or malformed multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	trackType := formValue(r.MultipartForm, "type")
	switch trackType {
	case "facetrack":
		h.handleFace(w, r.MultipartForm)
	case "vehicletrack":
		h.handleVehicle(w, r.MultipartForm)
	default:
		h.log.Warnw("unknown track type", "type", trackType)
		h.writeResponse(w, errResponse("unknown type: "+trackType))
	}
}

func (h *Handler) handleFace(w http.ResponseWriter, form *multipart.Form) {
	jsonStr := formValue(form, "json")
	if jsonStr == "" {
		h.writeResponse(w, errResponse("field json not found"))
		return
	}

	var wire faceNotifyWire
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		h.log.Warnw("malformed facetrack json", "error", err)
		h.writeResponse(w, errResponse("json parse failed"))
		return
	}

	bg, err := readJPEGField(form, wire.Background.ImageFile)
	if err != nil {
		h.writeResponse(w, errResponse(err.Error()))
		return
	}

	faces := make([]model.FaceRecord, len(wire.Faces))
	for i, fw := range wire.Faces {
		aligned, err := readJPEGField(form, fw.AlignedFile)
		if err != nil {
			h.writeResponse(w, errResponse(err.Error()))
			return
		}
		display, err := readJPEGField(form, fw.DisplayFile)
		if err != nil {
			h.writeResponse(w, errResponse(err.Error()))
			return
		}

		var feature []byte
		if fw.FeatureFile != nil && *fw.FeatureFile != "" {
			feature, err = readField(form, *fw.FeatureFile)
			if err != nil {
				h.writeResponse(w, errResponse(err.Error()))
				return
			}
		}

		faces[i] = model.FaceRecord{
			Quality:      fw.Quality,
			Feature:      feature,
			AlignedImage: aligned,
			DisplayImage: display,
			Angles:       [3]float64{fw.Angles.Yaw, fw.Angles.Pitch, fw.Angles.Roll},
			FrameNum:     int(fw.FrameNum),
		}
	}

	n := &model.Notification{
		UUID:       wire.ID,
		CameraID:   wire.Source,
		Index:      wire.Index,
		Ts:         time.Now(),
		Kind:       model.KindFace,
		Background: bg,
		Faces:      faces,
	}

	h.log.Debugw("recv facetrack notification", logger.FieldUUID, n.UUID, "index", n.Index)
	h.faceIngress <- n
	h.writeResponse(w, okResponse())
}

func (h *Handler) handleVehicle(w http.ResponseWriter, form *multipart.Form) {
	jsonStr := formValue(form, "json")
	if jsonStr == "" {
		h.writeResponse(w, errResponse("field json not found"))
		return
	}

	var wire carNotifyWire
	if err := json.Unmarshal([]byte(jsonStr), &wire); err != nil {
		h.log.Warnw("malformed vehicletrack json", "error", err)
		h.writeResponse(w, errResponse("json parse failed"))
		return
	}

	bg, err := readJPEGField(form, wire.Background.ImageFile)
	if err != nil {
		h.writeResponse(w, errResponse(err.Error()))
		return
	}

	images := make([]model.VehicleImage, len(wire.Vehicles))
	for i, vw := range wire.Vehicles {
		img, err := readJPEGField(form, vw.ImageFile)
		if err != nil {
			h.writeResponse(w, errResponse(err.Error()))
			return
		}
		images[i] = model.VehicleImage{Image: img, FrameNum: int(vw.FrameNum)}
	}

	plate, err := buildPlateInfo(form, wire.PlateInfo)
	if err != nil {
		h.writeResponse(w, errResponse(err.Error()))
		return
	}

	n := &model.Notification{
		UUID:          wire.ID,
		CameraID:      wire.Source,
		Index:         wire.Index,
		Ts:            time.Now(),
		Kind:          model.KindVehicle,
		Background:    bg,
		VehicleImages: images,
		Plate:         plate,
		Props:         buildProps(wire.Props),
	}

	h.log.Debugw("recv vehicletrack notification", logger.FieldUUID, n.UUID, "index", n.Index)
	h.vehicleIngress <- n
	h.writeResponse(w, okResponse())
}

// buildPlateInfo resolves the optional plate payload's image/binary file
// fields, per box_agent::service::web::handle's has_plate_info /
// has_plate_binary checks (Open Question #2: text-presence and
// image-presence are handled as separate, independent conditions here).
func buildPlateInfo(form *multipart.Form, w *plateInfoWire) (*model.PlateInfo, error) {
	if w == nil {
		return nil, nil
	}

	p := &model.PlateInfo{}
	if w.Text != nil {
		p.Text = *w.Text
	}
	if w.Type != nil {
		p.Type = *w.Type
	}
	for _, row := range w.Bits {
		var candidates []model.PlateBitCandidate
		for _, b := range row {
			candidates = append(candidates, model.PlateBitCandidate{Value: b.Value, Conf: b.Conf})
		}
		p.Bits = append(p.Bits, candidates)
	}

	if w.ImageFile != nil && *w.ImageFile != "" {
		img, err := readJPEGField(form, *w.ImageFile)
		if err != nil {
			return nil, err
		}
		p.Image = img
	}
	if w.BinaryFile != nil && *w.BinaryFile != "" {
		bin, err := readJPEGField(form, *w.BinaryFile)
		if err != nil {
			return nil, err
		}
		p.Binary = bin
	}

	return p, nil
}

func buildProps(w *propsWire) *model.VehicleProps {
	if w == nil {
		return nil
	}
	p := &model.VehicleProps{}
	if w.MoveDirection != nil {
		p.MoveDirect = int(*w.MoveDirection)
	}
	if w.Direction != nil {
		p.CarDirect = *w.Direction
	}
	if w.Color != nil {
		p.Color = *w.Color
	}
	if w.Brand != nil {
		p.Brand = *w.Brand
	}
	if w.TopSeries != nil {
		p.TopSeries = *w.TopSeries
	}
	if w.Series != nil {
		p.Series = *w.Series
	}
	if w.TopType != nil {
		p.TopType = *w.TopType
	}
	if w.MidType != nil {
		p.MidType = *w.MidType
	}
	return p
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp uploadResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Errorw("failed to write upload response", "error", err)
	}
}

func formValue(form *multipart.Form, name string) string {
	if vs, ok := form.Value[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func readField(form *multipart.Form, name string) ([]byte, error) {
	fhs, ok := form.File[name]
	if !ok || len(fhs) == 0 {
		return nil, errors.Newf("can't find field: %s", name)
	}
	f, err := fhs[0].Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open field %s", name)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read field %s", name)
	}
	return data, nil
}

// readJPEGField reads a file part and transcodes it to JPEG if it is a
// BMP, per spec §6.
func readJPEGField(form *multipart.Form, name string) ([]byte, error) {
	raw, err := readField(form, name)
	if err != nil {
		return nil, err
	}
	transcoded, err := escapeBMP(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "transcode field %s", name)
	}
	return transcoded, nil
}
