// Package uplink implements the egress half of spec C5: it takes a
// forwarded (and, for faces, searched) Track, uploads every image and
// feature blob it carries to the object store, and publishes a compact
// key-referencing envelope onto the broker's log exchange instead of
// putting raw image bytes on the wire.
package uplink

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/internal/broker"
	"github.com/fyuneru/boxnet/internal/model"
	"github.com/fyuneru/boxnet/internal/objectstore"
	"github.com/fyuneru/boxnet/internal/timeconv"
	"github.com/fyuneru/boxnet/logger"
)

// Publisher drains forwarded tracks and egresses them.
type Publisher struct {
	store    *objectstore.Store
	producer *broker.Producer
	conv     *timeconv.Converter
	log      *zap.SugaredLogger
}

// New builds a Publisher.
func New(store *objectstore.Store, producer *broker.Producer, conv *timeconv.Converter, log *zap.SugaredLogger) *Publisher {
	return &Publisher{store: store, producer: producer, conv: conv, log: log.With(logger.FieldComponent, "uplink")}
}

type matchWire struct {
	DBID       string  `json:"db_id"`
	PersonUUID string  `json:"person_uuid"`
	Score      float64 `json:"score"`
}

type faceWire struct {
	Quality    float64 `json:"quality"`
	AlignedKey string  `json:"aligned_key"`
	DisplayKey string  `json:"display_key"`
	FeatureKey string  `json:"feature_key,omitempty"`
}

type faceEnvelope struct {
	UUID          string      `json:"uuid"`
	CameraID      string      `json:"camera_id"`
	Ts            string      `json:"ts"`
	BackgroundKey string      `json:"background_key"`
	Faces         []faceWire  `json:"faces"`
	Matches       []matchWire `json:"matches,omitempty"`
}

// PublishFace uploads t's images/features and publishes its envelope.
// Object-store failures abort the publish (a partially-uploaded track is
// not egressed); the caller decides whether to retry or drop.
func (p *Publisher) PublishFace(ctx context.Context, t *model.Track) error {
	if err := p.store.PutFaceBackground(ctx, t.Ts, t.UUID, t.Background); err != nil {
		return err
	}

	env := faceEnvelope{
		UUID:          t.UUID,
		CameraID:      t.CameraID,
		Ts:            p.conv.FormatLong(t.Ts),
		BackgroundKey: faceKey(t.UUID, "bg"),
	}

	for i, f := range t.Faces {
		idx := i + 1
		if err := p.store.PutFaceSmall(ctx, t.Ts, t.UUID, idx, f.AlignedImage); err != nil {
			return err
		}
		if err := p.store.PutFaceLarge(ctx, t.Ts, t.UUID, idx, f.DisplayImage); err != nil {
			return err
		}
		fw := faceWire{
			Quality:    f.Quality,
			AlignedKey: faceIndexedKey(t.UUID, idx, "s"),
			DisplayKey: faceIndexedKey(t.UUID, idx, "l"),
		}
		if f.HasFeature() {
			if err := p.store.PutFaceFeature(ctx, t.Ts, t.UUID, idx, f.Feature); err != nil {
				return err
			}
			fw.FeatureKey = faceIndexedKey(t.UUID, idx, "fea")
		}
		env.Faces = append(env.Faces, fw)
	}

	for _, m := range t.Matches {
		env.Matches = append(env.Matches, matchWire{DBID: m.DBID, PersonUUID: m.PersonUUID, Score: m.Score})
	}

	return p.producer.Publish(ctx, "facetrack", env)
}

type vehicleWire struct {
	Key      string `json:"key"`
	FrameNum int    `json:"frame_num"`
}

type vehicleEnvelope struct {
	UUID          string         `json:"uuid"`
	CameraID      string         `json:"camera_id"`
	Ts            string         `json:"ts"`
	BackgroundKey string         `json:"background_key"`
	Vehicles      []vehicleWire  `json:"vehicles"`
	PlateKey      string         `json:"plate_key,omitempty"`
	PlateText     string         `json:"plate_text,omitempty"`
	Props         *model.VehicleProps `json:"props,omitempty"`
}

// PublishVehicle uploads t's images and publishes its envelope.
func (p *Publisher) PublishVehicle(ctx context.Context, t *model.Track) error {
	if err := p.store.PutCarBackground(ctx, t.Ts, t.UUID, t.Background); err != nil {
		return err
	}

	env := vehicleEnvelope{
		UUID:          t.UUID,
		CameraID:      t.CameraID,
		Ts:            p.conv.FormatLong(t.Ts),
		BackgroundKey: faceKey(t.UUID, "bg"),
		Props:         t.Props,
	}

	for i, img := range t.VehicleImages {
		idx := i + 1
		if err := p.store.PutCarVehicle(ctx, t.Ts, t.UUID, idx, img.Image); err != nil {
			return err
		}
		env.Vehicles = append(env.Vehicles, vehicleWire{Key: carIndexedKey(t.UUID, idx), FrameNum: img.FrameNum})
	}

	if t.Plate != nil {
		env.PlateText = t.Plate.Text
		if len(t.Plate.Image) > 0 {
			if err := p.store.PutCarPlate(ctx, t.Ts, t.UUID, t.Plate.Image); err != nil {
				return err
			}
			env.PlateKey = carPlateKey(t.UUID)
		}
	}

	return p.producer.Publish(ctx, "vehicletrack", env)
}

// These mirror objectstore's key templates so the envelope can reference a
// blob without re-deriving the date prefix (unknown at this layer without
// reusing Store's private helper).
func faceKey(uuid, suffix string) string { return uuid + "_" + suffix + ".jpg" }
func faceIndexedKey(uuid string, i int, suffix string) string {
	ext := "jpg"
	if suffix == "fea" {
		ext = "txt"
	}
	return uuid + "_" + strconv.Itoa(i) + "_" + suffix + "." + ext
}
func carIndexedKey(uuid string, i int) string { return uuid + "_" + strconv.Itoa(i) + ".jpg" }
func carPlateKey(uuid string) string          { return uuid + "_plate.jpg" }
