package uplink

import "testing"

func TestFaceKeyTemplates(t *testing.T) {
	if got := faceKey("uuid1", "bg"); got != "uuid1_bg.jpg" {
		t.Errorf("faceKey: got %q", got)
	}
	if got := faceIndexedKey("uuid1", 2, "s"); got != "uuid1_2_s.jpg" {
		t.Errorf("faceIndexedKey small: got %q", got)
	}
	if got := faceIndexedKey("uuid1", 2, "fea"); got != "uuid1_2_fea.txt" {
		t.Errorf("faceIndexedKey feature should use .txt extension: got %q", got)
	}
}

func TestCarKeyTemplates(t *testing.T) {
	if got := carIndexedKey("uuid2", 3); got != "uuid2_3.jpg" {
		t.Errorf("carIndexedKey: got %q", got)
	}
	if got := carPlateKey("uuid2"); got != "uuid2_plate.jpg" {
		t.Errorf("carPlateKey: got %q", got)
	}
}
