package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func encodeWebP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, webp.Encode(&buf, img, &webp.Options{Lossless: true}))
	return buf.Bytes()
}

func webpSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestProcessProducesAllVariants(t *testing.T) {
	src := gradient(1600, 1200)
	inputs := map[string][]byte{
		"png":  encodePNG(t, src),
		"jpeg": encodeJPEG(t, src),
		"webp": encodeWebP(t, src),
	}

	tr := NewTranscoder(nil, NewWebPEncoder(Options{Quality: 70}))
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			res, err := tr.Process(context.Background(), bytes.NewReader(data), "id-"+name)
			require.NoError(t, err)
			require.NotNil(t, res.Metadata)
			require.Len(t, res.Variants, 3)

			w, h := webpSize(t, res.Original)
			assert.Equal(t, 1600, w)
			assert.Equal(t, 1200, h)

			for _, target := range Targets {
				out, ok := res.Variants[target.Name]
				require.True(t, ok, target.Name)
				gotW, gotH := webpSize(t, out)
				wantW, wantH := Fit(1600, 1200, target.Width, target.Height)
				assert.Equal(t, wantW, gotW, target.Name)
				assert.Equal(t, wantH, gotH, target.Name)
			}
		})
	}
}

func TestProcessDoesNotUpscaleSmallImages(t *testing.T) {
	data := encodePNG(t, gradient(120, 80))

	res, err := NewTranscoder(nil, nil).Process(context.Background(), bytes.NewReader(data), "small")
	require.NoError(t, err)
	for name, out := range res.Variants {
		w, h := webpSize(t, out)
		assert.Equal(t, 120, w, name)
		assert.Equal(t, 80, h, name)
	}
}

func TestProcessRejectsUndecodableInput(t *testing.T) {
	_, err := NewTranscoder(nil, nil).Process(context.Background(), strings.NewReader("definitely not an image"), "bad")

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Error(t, decodeErr.Unwrap())
}

type failingEncoder struct {
	calls  atomic.Int32
	failAt int32
}

func (f *failingEncoder) Encode(w io.Writer, img image.Image) error {
	if f.calls.Add(1) == f.failAt {
		return errors.New("encoder exploded")
	}
	_, err := w.Write([]byte("ok"))
	return err
}

func TestProcessFailsWholeOnEncodeError(t *testing.T) {
	data := encodePNG(t, gradient(50, 50))

	for failAt := int32(1); failAt <= 4; failAt++ {
		enc := &failingEncoder{failAt: failAt}
		res, err := NewTranscoder(nil, enc).Process(context.Background(), bytes.NewReader(data), "x")
		assert.Error(t, err, "failure on call %d", failAt)
		assert.Nil(t, res)
	}
}

func TestProcessHonoursCancelledContext(t *testing.T) {
	data := encodePNG(t, gradient(50, 50))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTranscoder(nil, &failingEncoder{}).Process(ctx, bytes.NewReader(data), "x")
	assert.ErrorIs(t, err, context.Canceled)
}

// pngWithHeader returns a 1x1 PNG whose IHDR claims w x h. Only the header is
// consistent; the pixel data is not.
func pngWithHeader(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(data[16:], w)
	binary.BigEndian.PutUint32(data[20:], h)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestProcessRejectsOversizedDimensions(t *testing.T) {
	tr := NewTranscoder(nil, nil)
	for name, dims := range map[string][2]uint32{
		"wide":         {MaxDimension + 1, 1},
		"tall":         {1, MaxDimension + 1},
		"pixel budget": {8000, 8000},
		"huge":         {16000, 16000},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := tr.Process(context.Background(), bytes.NewReader(pngWithHeader(t, dims[0], dims[1])), "big")
			assert.Nil(t, res)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.ErrorIs(t, err, ErrImageTooLarge)
		})
	}
}

func TestProcessAllowsDimensionsWithinLimits(t *testing.T) {
	// The header passes the size check; decoding then fails on the pixel data.
	_, err := NewTranscoder(nil, nil).Process(context.Background(), bytes.NewReader(pngWithHeader(t, MaxDimension, 1)), "edge")
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.NotErrorIs(t, err, ErrImageTooLarge)
}
