package handler

import (
	"fmt"
	"io"
	"net/http"

	"snapfeed/internal/domain"
	"snapfeed/internal/service"
)

// maxMultipartMemory bounds in-memory multipart parsing; larger parts
// spill to temp files.
const maxMultipartMemory = 12 << 20

// readUploads parses the multipart form and returns every file sent under
// the given field, capped at max files per request.
func readUploads(r *http.Request, field string, max int) ([]service.Upload, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form", domain.ErrInvalidInput)
	}

	headers := r.MultipartForm.File[field]
	if len(headers) > max {
		return nil, fmt.Errorf("%w: at most %d files per request", domain.ErrInvalidInput, max)
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		uploads = append(uploads, service.Upload{Filename: h.Filename, Data: data})
	}
	return uploads, nil
}

// readSingleUpload returns the one file sent under the given field, or an
// ErrInvalidInput error if it is missing.
func readSingleUpload(r *http.Request, field string) (service.Upload, error) {
	uploads, err := readUploads(r, field, 1)
	if err != nil {
		return service.Upload{}, err
	}
	if len(uploads) == 0 {
		return service.Upload{}, fmt.Errorf("%w: no file provided", domain.ErrInvalidInput)
	}
	return uploads[0], nil
}
