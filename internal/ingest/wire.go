// Package ingest implements the POST /trackupload multipart handler (spec
// §6): parses the `type` and `json` form fields, resolves every image/
// feature field the envelope references by name against the multipart
// form's file parts, transcodes BMP file parts to JPEG, and pushes the
// resulting notification onto the matching aggregator's ingress channel.
package ingest

// backgroundWire is the background-image envelope shared by face and
// vehicle notifications, grounded on fy_base::api::bm_api::NotifyBackground.
type backgroundWire struct {
	ImageFile string `json:"image_file"`
}

// faceWire is one face entry in a face-track notification envelope,
// grounded on NotifyFace.
type faceWire struct {
	AlignedFile string    `json:"aligned_file"`
	DisplayFile string    `json:"display_file"`
	FeatureFile *string   `json:"feature_file"`
	Angles      apiAngles `json:"angles"`
	FrameNum    int64     `json:"frame_num"`
	Quality     float64   `json:"quality"`
}

type apiAngles struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// faceNotifyWire is the `json` field of a facetrack multipart upload,
// grounded on FaceNotifyParams.
type faceNotifyWire struct {
	ID         string         `json:"id"`
	Index      int64          `json:"index"`
	Source     string         `json:"source"`
	Background backgroundWire `json:"background"`
	Faces      []faceWire     `json:"faces"`
}

// vehicleWire is one vehicle image entry, grounded on NotifyCar.
type vehicleWire struct {
	ImageFile string `json:"image_file"`
	FrameNum  int64  `json:"frame_num"`
}

// plateBitWire is one OCR candidate for a plate character cell, grounded
// on ApiCarPlateBit.
type plateBitWire struct {
	Value string  `json:"value"`
	Conf  float64 `json:"conf"`
}

// plateInfoWire is the optional plate payload, grounded on
// ApiCarPlateInfo.
type plateInfoWire struct {
	Text       *string          `json:"text"`
	ImageFile  *string          `json:"image_file"`
	BinaryFile *string          `json:"binary_file"`
	Type       *string          `json:"type"`
	Bits       [][]plateBitWire `json:"bits"`
}

// propsWire is the optional vehicle-attributes payload, grounded on
// ApiCarProps (top-scoring value only; the source's score lists collapse
// to their top entry here, matching what the aggregator's merge and
// egress actually consume).
type propsWire struct {
	MoveDirection *int64  `json:"move_direction"`
	Direction     *string `json:"direction"`
	Color         *string `json:"color"`
	Brand         *string `json:"brand"`
	TopSeries     *string `json:"top_series"`
	Series        *string `json:"series"`
	TopType       *string `json:"top_type"`
	MidType       *string `json:"mid_type"`
}

// carNotifyWire is the `json` field of a vehicletrack multipart upload,
// grounded on CarNotifyParams.
type carNotifyWire struct {
	ID         string         `json:"id"`
	Index      int64          `json:"index"`
	Source     string         `json:"source"`
	Background backgroundWire `json:"background"`
	Vehicles   []vehicleWire  `json:"vehicles"`
	PlateInfo  *plateInfoWire `json:"plate_info"`
	Props      *propsWire     `json:"props"`
}

// uploadResponse is the wire response shape spec §6 defines: {status,
// message?}; status=0 is success.
type uploadResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

func okResponse() uploadResponse { return uploadResponse{Status: 0} }

func errResponse(msg string) uploadResponse { return uploadResponse{Status: 1, Message: msg} }
