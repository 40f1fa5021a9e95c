package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestDecodePNGKeepsDimensionsAndChannels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 7, 5))
	src.Set(1, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	src.Set(6, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	img, err := Decode(DataURL("image/png", encodePNG(t, src)))
	require.NoError(t, err)
	require.Equal(t, 7, img.Width)
	require.Equal(t, 5, img.Height)
	require.Len(t, img.Pix, 7*5*3)

	r, g, b := img.At(1, 2)
	require.Equal(t, []uint8{10, 20, 30}, []uint8{r, g, b})
	r, g, b = img.At(6, 4)
	require.Equal(t, []uint8{200, 100, 50}, []uint8{r, g, b})
}

func TestDecodeJPEGKeepsDimensions(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}

	img, err := Decode(DataURL("image/jpeg", encodeJPEG(t, src)))
	require.NoError(t, err)
	require.Equal(t, 32, img.Width)
	require.Equal(t, 24, img.Height)
}

func TestDecodeDiscardsHeader(t *testing.T) {
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 3, 3)))
	encoded := base64.StdEncoding.EncodeToString(data)

	for _, header := range []string{"", "anything at all", "data:text/plain;charset=utf-8"} {
		img, err := Decode(header + "," + encoded)
		require.NoError(t, err, header)
		require.Equal(t, 3, img.Width)
	}
}

func TestDecodeOnlySplitsOnFirstComma(t *testing.T) {
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 2, 2)))
	_, err := Decode("data:image/png;base64," + base64.StdEncoding.EncodeToString(data) + ",trailing")

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, ReasonInvalidBase64, decodeErr.Reason)
}

func TestDecodeToleratesLineBreaksAndMissingPadding(t *testing.T) {
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 4, 1)))
	raw := base64.RawStdEncoding.EncodeToString(data)
	wrapped := raw[:10] + "\r\n" + raw[10:]

	img, err := Decode("data:image/png;base64," + wrapped)
	require.NoError(t, err)
	require.Equal(t, 4, img.Width)
	require.Equal(t, 1, img.Height)
}

func TestDecodeFailures(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		reason  string
	}{
		{name: "no comma", payload: "not-a-valid-payload", reason: ReasonMissingSeparator},
		{name: "empty payload", payload: "", reason: ReasonMissingSeparator},
		{name: "garbage base64", payload: "data:image/jpeg;base64,!!!not base64!!!", reason: ReasonInvalidBase64},
		{name: "nothing after comma", payload: "data:image/jpeg;base64,", reason: ReasonEmptyData},
		{name: "not an image", payload: DataURL("image/jpeg", []byte("definitely not a jpeg")), reason: ReasonUnknownContainer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := Decode(tc.payload)
			require.Nil(t, img)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			require.Equal(t, tc.reason, decodeErr.Reason)
			require.Contains(t, err.Error(), tc.reason)
		})
	}
}

func TestEncodeJPEGRoundTrip(t *testing.T) {
	img := &Image{Width: 16, Height: 8, Pix: bytes.Repeat([]byte{90, 160, 220}, 16*8)}

	data, err := EncodeJPEG(img, 90)
	require.NoError(t, err)

	decoded, err := Decode(DataURL("image/jpeg", data))
	require.NoError(t, err)
	require.Equal(t, 16, decoded.Width)
	require.Equal(t, 8, decoded.Height)
}

func TestDecodeRejectsOversizedFrameBeforeDecoding(t *testing.T) {
	// A blank PNG compresses to a few KB however large it claims to be.
	blank := image.NewGray(image.Rect(0, 0, 4200, 4200))
	payload := DataURL("image/png", encodePNG(t, blank))
	require.Less(t, len(payload), 1<<20)

	img, err := Decode(payload)
	require.Nil(t, img)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Equal(t, ReasonImageTooLarge, decodeErr.Reason)
	require.Contains(t, err.Error(), "4200x4200")
}

func TestDecodeLimited(t *testing.T) {
	payload := DataURL("image/png", encodePNG(t, image.NewRGBA(image.Rect(0, 0, 10, 10))))

	img, err := DecodeLimited(payload, 100)
	require.NoError(t, err)
	require.Equal(t, 10, img.Width)

	_, err = DecodeLimited(payload, 99)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Equal(t, ReasonImageTooLarge, decodeErr.Reason)

	img, err = DecodeLimited(payload, 0)
	require.NoError(t, err)
	require.Equal(t, 10, img.Height)
}
