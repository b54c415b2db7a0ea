package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Registered decoders for the encodings the capture layer sends.
	_ "image/jpeg"
	_ "image/png"
)

var (
	// ErrUndecodable means the payload is not a decodable image. Reported to
	// the caller as a rejected request, never a fatal fault.
	ErrUndecodable = errors.New("undecodable image")
	// ErrFrameTooLarge means the payload exceeds the configured byte limit.
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	// ErrFrameTooSmall means the decoded image is too small to hold a usable face.
	ErrFrameTooSmall = errors.New("frame below minimum dimensions")
)

// Preprocessor defaults.
const (
	DefaultMaxFrameBytes = 4 << 20 // webcam stills at ~1s cadence stay well under this
	DefaultMinDimension  = 48
)

// Frame is a decoded, validated still image ready for inference.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// Preprocessor validates and decodes incoming frames. It is a pure transform:
// no side effects, no per-session state, safe for concurrent use.
type Preprocessor struct {
	maxBytes int
	minDim   int
}

// NewPreprocessor creates a preprocessor with the given limits; zero values
// fall back to the defaults.
func NewPreprocessor(maxBytes, minDim int) *Preprocessor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	if minDim <= 0 {
		minDim = DefaultMinDimension
	}
	return &Preprocessor{maxBytes: maxBytes, minDim: minDim}
}

// Decode validates raw image bytes and returns the frame, or a typed error
// for malformed input. Only the header is decoded; pixel data is forwarded
// to the model service untouched.
func (p *Preprocessor) Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUndecodable)
	}
	if len(data) > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(data), p.maxBytes)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width < p.minDim || cfg.Height < p.minDim {
		return nil, fmt.Errorf("%w: %dx%d, minimum %d", ErrFrameTooSmall, cfg.Width, cfg.Height, p.minDim)
	}
	return &Frame{Data: data, Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}
