package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestPreprocessorDecodesSupportedFormats(t *testing.T) {
	p := NewPreprocessor(0, 0)

	frame, err := p.Decode(encodePNG(t, 320, 240))
	require.NoError(t, err)
	assert.Equal(t, 320, frame.Width)
	assert.Equal(t, 240, frame.Height)
	assert.Equal(t, "png", frame.Format)

	frame, err = p.Decode(encodeJPEG(t, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", frame.Format)
}

func TestPreprocessorRejectsMalformedInput(t *testing.T) {
	p := NewPreprocessor(0, 0)

	_, err := p.Decode(nil)
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = p.Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUndecodable)

	// Truncated header bytes must not panic.
	_, err = p.Decode([]byte{0xFF, 0xD8})
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestPreprocessorRejectsTinyFrames(t *testing.T) {
	p := NewPreprocessor(0, 48)
	_, err := p.Decode(encodePNG(t, 20, 20))
	assert.ErrorIs(t, err, ErrFrameTooSmall)
}

func TestPreprocessorRejectsOversizedPayload(t *testing.T) {
	p := NewPreprocessor(1024, 0)
	_, err := p.Decode(encodePNG(t, 600, 600))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
