package imagecodec

import (
	"bytes"
	"encoding/base64"

	"github.com/disintegration/imaging"
)

// EncodeJPEG compresses the buffer, e.g. to forward a frame to a remote model.
func EncodeJPEG(img *Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img.ToNRGBA(), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL builds the payload form Decode accepts.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
