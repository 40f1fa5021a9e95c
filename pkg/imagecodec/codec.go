// Package imagecodec turns the textual frame payloads sent by stream clients into
// decoded RGB pixel buffers.
//
// A payload is "<header>,<base64>": everything up to the first comma (usually a
// data URL prefix such as "data:image/jpeg;base64") is discarded without being
// inspected, the rest is base64 text holding a compressed image container.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	ReasonMissingSeparator = "missing separator"
	ReasonInvalidBase64    = "invalid base64"
	ReasonEmptyData        = "empty image data"
	ReasonUnknownContainer = "unrecognized image container"
	ReasonImageTooLarge    = "image too large"
)

// DefaultMaxPixels bounds the declared width*height of a frame, 4096x4096.
const DefaultMaxPixels = 4096 * 4096

// Image is a row-major, 8-bit, 3-channel (R, G, B) pixel buffer.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// DecodeError reports why a payload could not be turned into an Image.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses payload into an Image, refusing frames larger than
// DefaultMaxPixels. It never panics on malformed input; every failure is a
// *DecodeError.
func Decode(payload string) (*Image, error) {
	return DecodeLimited(payload, DefaultMaxPixels)
}

// DecodeLimited is Decode with an explicit pixel bound. The container header is
// read first, so an oversized frame is rejected before any pixel is allocated.
// maxPixels <= 0 means DefaultMaxPixels.
func DecodeLimited(payload string, maxPixels int) (*Image, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	idx := strings.IndexByte(payload, ',')
	if idx < 0 {
		return nil, &DecodeError{Reason: ReasonMissingSeparator}
	}

	data, err := decodeBase64(payload[idx+1:])
	if err != nil {
		return nil, &DecodeError{Reason: ReasonInvalidBase64, Err: err}
	}
	if len(data) == 0 {
		return nil, &DecodeError{Reason: ReasonEmptyData}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: ReasonUnknownContainer, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &DecodeError{
			Reason: ReasonImageTooLarge,
			Err:    fmt.Errorf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels),
		}
	}

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: ReasonUnknownContainer, Err: err}
	}

	return FromImage(src), nil
}

// decodeBase64 accepts padded and unpadded standard base64 and ignores line breaks,
// which some clients insert into long data URLs.
func decodeBase64(text string) ([]byte, error) {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', ' ', '\t':
			return -1
		}
		return r
	}, text)

	data, err := base64.StdEncoding.DecodeString(text)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(text); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// FromImage copies any image.Image into an RGB buffer. Alpha is dropped.
func FromImage(src image.Image) *Image {
	nrgba := imaging.Clone(src)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()

	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			pix[o] = row[x*4]
			pix[o+1] = row[x*4+1]
			pix[o+2] = row[x*4+2]
		}
	}

	return &Image{Width: w, Height: h, Pix: pix}
}

// ToNRGBA rebuilds an opaque image.Image view of the buffer.
func (img *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i, j := 0, 0; i+2 < len(img.Pix); i, j = i+3, j+4 {
		out.Pix[j] = img.Pix[i]
		out.Pix[j+1] = img.Pix[i+1]
		out.Pix[j+2] = img.Pix[i+2]
		out.Pix[j+3] = 0xff
	}
	return out
}

// At returns the R, G, B values of the pixel at (x, y).
func (img *Image) At(x, y int) (r, g, b uint8) {
	o := (y*img.Width + x) * 3
	return img.Pix[o], img.Pix[o+1], img.Pix[o+2]
}
