package model

// UplinkItem is the tagged union enqueued for egress once a track has been
// forwarded (and, for face tracks, searched).
type UplinkItem struct {
	Kind  Kind
	Face  *Track // set iff Kind == KindFace
	Vehicle *Track // set iff Kind == KindVehicle
}

// FaceUplink wraps a forwarded face track for egress.
func FaceUplink(t *Track) UplinkItem {
	return UplinkItem{Kind: KindFace, Face: t}
}

// VehicleUplink wraps a forwarded vehicle track for egress.
func VehicleUplink(t *Track) UplinkItem {
	return UplinkItem{Kind: KindVehicle, Vehicle: t}
}

// Track returns the underlying track regardless of kind.
func (u UplinkItem) Track() *Track {
	if u.Kind == KindFace {
		return u.Face
	}
	return u.Vehicle
}
