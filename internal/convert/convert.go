package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"runtime"
	"time"

	// Decoders register themselves with image.Decode. JPEG is the format the
	// form accepts; PNG and GIF cover files whose suffix lies about them.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/addiskers/webp/internal/model"
)

const (
	// DefaultQuality is the lossy WebP quality factor (0-100).
	DefaultQuality = 95

	// archiveTimeLayout is the strftime "%Y%m%d-%H%M%S" pattern in Go layout form.
	archiveTimeLayout = "20060102-150405"
)

// Options controls how images are encoded.
type Options struct {
	// Quality is the lossy quality factor (0-100). Ignored when Lossless is set.
	Quality float32

	// Lossless switches the encoder to lossless mode.
	Lossless bool

	// Workers bounds the number of concurrent conversions.
	// Zero or negative means runtime.GOMAXPROCS(0).
	Workers int
}

// DefaultOptions returns the encoder settings used by the web form:
// lossy, quality 95.
func DefaultOptions() Options {
	return Options{Quality: DefaultQuality}
}

// Upload is a single file handed to ConvertBatch.
type Upload struct {
	// Name is the client-supplied filename, before sanitizing.
	Name string

	// Open returns a fresh reader for the file contents. It is called at
	// most once per upload, from a worker goroutine.
	Open func() (io.ReadCloser, error)
}

// Result is the outcome of a batch conversion.
type Result struct {
	model.ConversionSummary

	// Archive holds the finished ZIP file. It is valid even when there
	// are no successes (an empty archive).
	Archive *bytes.Buffer
}

// FilterEmpty drops uploads that carry no filename. Browsers submit one
// empty part when the file input is left untouched.
func FilterEmpty(uploads []Upload) []Upload {
	kept := make([]Upload, 0, len(uploads))
	for _, u := range uploads {
		if u.Name != "" {
			kept = append(kept, u)
		}
	}
	return kept
}

// ArchiveName returns the download name for an archive created at t.
// The timestamp is always rendered in UTC.
//
//	ArchiveName(2025-03-04 05:06:07 UTC) → "webp-conversion-20250304-050607.zip"
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("webp-conversion-%s.zip", t.UTC().Format(archiveTimeLayout))
}

// MaxPixels caps width*height of an input image. Decoders allocate the
// whole canvas from the header before reading pixel data, so a forged
// header would otherwise cost gigabytes per upload.
const MaxPixels = 178_956_970

// ErrImageTooLarge is returned for images whose header exceeds MaxPixels.
var ErrImageTooLarge = errors.New("image too large")

// ConvertSingle decodes an image from r, flattens it to opaque RGB and
// encodes it as WebP. Images larger than MaxPixels are rejected with
// ErrImageTooLarge before any pixel buffer is allocated.
func ConvertSingle(r io.Reader, opts Options) ([]byte, error) {
	// The header bytes read by DecodeConfig are replayed for Decode.
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, err
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, ErrImageTooLarge
	}

	src, _, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, flattenRGB(src), &webp.Options{
		Lossless: opts.Lossless,
		Quality:  opts.Quality,
	}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// flattenRGB copies src into an NRGBA image and forces every pixel opaque.
// Colour values of translucent pixels are kept as-is rather than being
// composited onto a background, which is what an "RGB" conversion does.
func flattenRGB(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if n, ok := src.(*image.NRGBA); ok {
		// Copy rows directly: going through draw would premultiply and
		// lose the colour of fully transparent pixels.
		rowLen := bounds.Dx() * 4
		for y := 0; y < bounds.Dy(); y++ {
			off := n.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowLen], n.Pix[off:off+rowLen])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// itemResult holds the per-upload outcome while the batch is in flight.
type itemResult struct {
	name    string
	data    []byte
	failure string
}

// ConvertBatch converts every upload and writes the successful ones into a
// ZIP archive.
//
// Each upload is handled independently: an unsupported suffix or a decode
// failure is recorded in Failures and the batch continues. Conversions run
// on up to opts.Workers goroutines, but archive entries, Successes and
// Failures are always in upload order.
//
// The returned error is non-nil only when ctx is cancelled or the archive
// itself cannot be written.
func ConvertBatch(ctx context.Context, uploads []Upload, opts Options) (*Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]itemResult, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, upload := range uploads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = convertUpload(upload, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		ConversionSummary: model.ConversionSummary{
			Successes: []string{},
			Failures:  []string{},
		},
		Archive: &bytes.Buffer{},
	}

	zw := zip.NewWriter(res.Archive)
	for _, r := range results {
		if r.failure != "" {
			res.Failures = append(res.Failures, r.failure)
			continue
		}

		w, err := zw.Create(r.name)
		if err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", r.name, err)
		}
		if _, err := w.Write(r.data); err != nil {
			return nil, fmt.Errorf("write %s to archive: %w", r.name, err)
		}
		res.Successes = append(res.Successes, r.name)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	return res, nil
}

// convertUpload runs the suffix check and conversion for a single upload.
func convertUpload(upload Upload, opts Options) itemResult {
	name := SecureFilename(upload.Name)
	if !IsAllowed(name) {
		return itemResult{failure: fmt.Sprintf("%s: unsupported file type", displayName(name))}
	}

	rc, err := upload.Open()
	if err != nil {
		return itemResult{failure: fmt.Sprintf("%s: %v", displayName(name), err)}
	}
	defer func() { _ = rc.Close() }()

	data, err := ConvertSingle(rc, opts)
	if err != nil {
		return itemResult{failure: fmt.Sprintf("%s: %v", displayName(name), err)}
	}
	return itemResult{name: WebPName(name), data: data}
}

// BytesUpload wraps in-memory contents as an Upload.
func BytesUpload(name string, data []byte) Upload {
	return Upload{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
