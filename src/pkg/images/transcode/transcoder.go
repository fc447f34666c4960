package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"

	"github.com/chai2010/webp"
	"github.com/q-controller/imaged/src/pkg/images/metadata"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

const (
	// MediaType is the canonical format every artifact is stored in.
	MediaType = "image/webp"
	// Extension is the file extension of MediaType.
	Extension = ".webp"

	defaultQuality = 80

	// MaxDimension is the largest width or height the canonical format can hold.
	MaxDimension = 16383
	// MaxPixels bounds the decoded size of one upload.
	MaxPixels = 40_000_000
)

// ErrImageTooLarge is wrapped in a DecodeError for images whose header
// declares dimensions beyond MaxDimension or MaxPixels.
var ErrImageTooLarge = errors.New("image dimensions exceed the supported maximum")

// DecodeError reports input that is not a decodable image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Result is the in-memory output of one Process call.
type Result struct {
	Original []byte
	Variants map[string][]byte
	Metadata *metadata.ImageMetadata
}

type Options struct {
	// Quality is the lossy quality in [1, 100]; zero selects the default of 80.
	// Ignored when Lossless is set.
	Quality  int
	Lossless bool
}

// Encoder writes img in the canonical format.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
}

type webpEncoder struct {
	opts *webp.Options
}

func (e *webpEncoder) Encode(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, e.opts)
}

func NewWebPEncoder(opts Options) Encoder {
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	return &webpEncoder{opts: &webp.Options{
		Lossless: opts.Lossless,
		Quality:  float32(quality),
	}}
}

type Transcoder struct {
	extractor *metadata.Extractor
	encoder   Encoder
}

func NewTranscoder(extractor *metadata.Extractor, encoder Encoder) *Transcoder {
	if extractor == nil {
		extractor = metadata.NewExtractor()
	}
	if encoder == nil {
		encoder = NewWebPEncoder(Options{})
	}
	return &Transcoder{
		extractor: extractor,
		encoder:   encoder,
	}
}

// Process decodes r, extracts its metadata and re-encodes the original plus
// one variant per Target. id only correlates log lines.
func (t *Transcoder) Process(ctx context.Context, r io.Reader, id string) (*Result, error) {
	data, readErr := io.ReadAll(r)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", id, readErr)
	}

	cfg, _, configErr := image.DecodeConfig(bytes.NewReader(data))
	if configErr != nil {
		slog.Warn("Failed to decode image header", "image_id", id, "error", configErr)
		return nil, &DecodeError{Err: configErr}
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension || cfg.Width*cfg.Height > MaxPixels {
		slog.Warn("Image too large", "image_id", id, "width", cfg.Width, "height", cfg.Height)
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)}
	}

	img, format, decodeErr := image.Decode(bytes.NewReader(data))
	if decodeErr != nil {
		slog.Warn("Failed to decode image", "image_id", id, "error", decodeErr)
		return nil, &DecodeError{Err: decodeErr}
	}
	bounds := img.Bounds()
	slog.Debug("Decoded image", "image_id", id, "format", format, "width", bounds.Dx(), "height", bounds.Dy())

	md := t.extractor.Extract(data)

	original, encodeErr := t.encode(img)
	if encodeErr != nil {
		return nil, fmt.Errorf("failed to encode original of %s: %w", id, encodeErr)
	}

	encoded := make([][]byte, len(Targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range Targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := t.encode(resize(img, target))
			if err != nil {
				return fmt.Errorf("failed to encode %s variant of %s: %w", target.Name, id, err)
			}
			encoded[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	variants := make(map[string][]byte, len(Targets))
	for i, target := range Targets {
		variants[target.Name] = encoded[i]
	}

	return &Result{
		Original: original,
		Variants: variants,
		Metadata: md,
	}, nil
}

func (t *Transcoder) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
