package ingest

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/bmp"
)

func encodeBMP(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("encode bmp fixture: %v", err)
	}
	return buf.Bytes()
}

func TestEscapeBMPTranscodesValidBMP(t *testing.T) {
	raw := encodeBMP(t, 4, 4)

	out, err := escapeBMP(raw)
	if err != nil {
		t.Fatalf("escapeBMP: %v", err)
	}
	if bytes.Equal(out, raw) {
		t.Fatal("expected transcoded bytes to differ from the original BMP")
	}
	if _, err := jpegSniff(out); err != nil {
		t.Fatalf("expected valid jpeg output: %v", err)
	}
}

func TestEscapeBMPPassesThroughNonBMP(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0} // jpeg magic, not bmp
	out, err := escapeBMP(raw)
	if err != nil {
		t.Fatalf("escapeBMP: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatal("expected non-BMP content to pass through unchanged")
	}
}

func TestEscapeBMPInvalidBodyReturnsParseError(t *testing.T) {
	raw := []byte{0x42, 0x4d, 0x00, 0x01} // BMP magic, truncated/garbage body
	if _, err := escapeBMP(raw); err == nil {
		t.Fatal("expected a parse error for invalid BMP content")
	}
}

func TestIsBMPShortInput(t *testing.T) {
	if isBMP(nil) {
		t.Fatal("nil input must not be detected as BMP")
	}
	if isBMP([]byte{0x42}) {
		t.Fatal("single-byte input must not be detected as BMP")
	}
}

func jpegSniff(b []byte) (image.Config, error) {
	return image.DecodeConfig(bytes.NewReader(b))
}
