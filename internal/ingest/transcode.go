package ingest

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "golang.org/x/image/bmp" // registers the "bmp" format with image.Decode

	"github.com/fyuneru/boxnet/errors"
)

// jpegQuality is the fixed transcode quality spec §6 names.
const jpegQuality = 85

// bmpMagic is the two-byte "BM" signature every BMP file starts with.
var bmpMagic = [2]byte{0x42, 0x4d}

// isBMP reports whether content carries the BMP magic bytes, per
// fy_base::util::image::check_bmp_magic.
func isBMP(content []byte) bool {
	return len(content) >= 2 && content[0] == bmpMagic[0] && content[1] == bmpMagic[1]
}

// escapeBMP transcodes content to JPEG at jpegQuality if it is a BMP file;
// otherwise it is returned unchanged (spec §6: "BMP bytes without valid
// BMP magic pass through unchanged; invalid BMP returns parse error"),
// grounded on fy_base::util::image::escape_bmp.
func escapeBMP(content []byte) ([]byte, error) {
	if !isBMP(content) {
		return content, nil
	}

	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrap(err, "decode bmp")
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	return out.Bytes(), nil
}
