// Package imaging implements the derivative pipeline: one output per
// (format × size) combination of a source image.
package imaging

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	"github.com/hseguard/syncd/internal/model"
)

// Pipeline fetches a source image and produces derivatives on disk.
type Pipeline struct {
	httpClient *http.Client
	outputDir  string
	logger     *slog.Logger
}

// NewPipeline creates a pipeline writing derivatives under outputDir.
func NewPipeline(outputDir string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		outputDir:  outputDir,
		logger:     logger,
	}
}

// Transform produces one derivative per (format × size) pair, or one per
// format at original dimensions when no sizes are given. Resizing fits
// inside the requested box and never enlarges beyond the source. An
// unreadable source or unsupported format is returned as an error so the
// worker can surface it as a retryable job failure.
func (p *Pipeline) Transform(ctx context.Context, payload *model.ImageTransformPayload) ([]model.Derivative, error) {
	src, err := p.load(ctx, payload.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load source image: %w", err)
	}

	quality := payload.Quality
	if quality <= 0 {
		quality = model.DefaultQuality
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	sizes := payload.Sizes
	if len(sizes) == 0 {
		sizes = []model.ImageSize{{Suffix: "original"}}
	}

	var derivatives []model.Derivative
	for _, format := range payload.Formats {
		for _, size := range sizes {
			img := resize(src, size)
			bounds := img.Bounds()

			name := fmt.Sprintf("%s_%s.%s", payload.ImageID, size.Suffix, extension(format))
			path := filepath.Join(p.outputDir, name)

			if err := encode(img, format, path, quality); err != nil {
				return nil, fmt.Errorf("failed to encode %s/%s: %w", format, size.Suffix, err)
			}

			derivatives = append(derivatives, model.Derivative{
				Format:    format,
				SizeLabel: size.Suffix,
				Width:     bounds.Dx(),
				Height:    bounds.Dy(),
				Path:      path,
			})
		}
	}

	p.logger.Debug("image transformed",
		"image_id", payload.ImageID,
		"derivatives", len(derivatives),
	)
	return derivatives, nil
}

// load reads the source from a URL or local path and decodes it.
func (p *Pipeline) load(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("fetch returned status %d: %s", resp.StatusCode, string(body))
		}
		return imaging.Decode(resp.Body, imaging.AutoOrientation(true))
	}

	return imaging.Open(source, imaging.AutoOrientation(true))
}

// resize fits the image inside the requested box without enlargement.
func resize(src image.Image, size model.ImageSize) image.Image {
	if size.Width <= 0 {
		return src
	}

	bounds := src.Bounds()
	if size.Height > 0 {
		if bounds.Dx() <= size.Width && bounds.Dy() <= size.Height {
			return src
		}
		return imaging.Fit(src, size.Width, size.Height, imaging.Lanczos)
	}

	if bounds.Dx() <= size.Width {
		return src
	}
	return imaging.Resize(src, size.Width, 0, imaging.Lanczos)
}

func extension(format model.ImageFormat) string {
	switch format {
	case model.FormatJPEG:
		return "jpg"
	default:
		return string(format)
	}
}

func encode(img image.Image, format model.ImageFormat, path string, quality int) error {
	switch format {
	case model.FormatJPEG:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	case model.FormatPNG:
		return imaging.Save(img, path)
	case model.FormatWebP:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, webp.Options{Quality: quality})
	case model.FormatAVIF:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return avif.Encode(f, img, avif.Options{Quality: quality})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
