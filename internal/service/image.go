package service

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"snapfeed/internal/domain"
)

const (
	// maxUploadBytes is the per-file size ceiling for uploads.
	maxUploadBytes = 1_000_000
	// imageDimension is the side length every stored image is resized to.
	imageDimension = 250
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ImageProcessor normalizes uploaded images for storage: it validates the
// filename extension and size, decodes the payload, resizes it to a fixed
// 250x250 square (cropping to fill, like the usual thumbnail fit), and
// re-encodes it as PNG.
//
// It is purely functional and knows nothing about where the result is
// stored; callers push the returned buffer into the relevant repository.
type ImageProcessor struct{}

// NewImageProcessor creates a new ImageProcessor.
func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{}
}

// Process validates and converts one uploaded file. The extension check
// runs before any decoding, so disallowed files are rejected cheaply.
func (p *ImageProcessor) Process(filename string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: file must be a jpg, jpeg, or png image", domain.ErrInvalidInput)
	}

	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, maxUploadBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode image", domain.ErrInvalidInput)
	}

	resized := imaging.Fill(img, imageDimension, imageDimension, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return buf.Bytes(), nil
}

// ProcessAll converts a batch of uploads in order. The first failure aborts
// the whole batch so callers never persist a partially processed set.
func (p *ImageProcessor) ProcessAll(files []Upload) ([][]byte, error) {
	buffers := make([][]byte, 0, len(files))
	for _, f := range files {
		buf, err := p.Process(f.Filename, f.Data)
		if err != nil {
			return nil, err
		}
		buffers = append(buffers, buf)
	}
	return buffers, nil
}

// Upload is one uploaded file: the client-supplied filename and raw bytes.
type Upload struct {
	Filename string
	Data     []byte
}
