package model

// ImageFormat is an output encoding for the transform pipeline.
type ImageFormat string

const (
	FormatWebP ImageFormat = "webp"
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatAVIF ImageFormat = "avif"
)

// DefaultQuality is used when a transform payload leaves quality unset.
const DefaultQuality = 80

// Derivative is one produced output of the image pipeline.
type Derivative struct {
	Format    ImageFormat `json:"format"`
	SizeLabel string      `json:"sizeLabel"`
	Width     int         `json:"width,omitempty"`
	Height    int         `json:"height,omitempty"`
	Path      string      `json:"path"`
	URL       string      `json:"url,omitempty"`
}
