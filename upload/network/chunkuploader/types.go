// Package chunkuploader drives a resumable, sequential chunk upload of a single file.
// It reads the file in fixed-size windows, hands every window to a ChunkSender and
// re-synchronizes to the server-declared offset when the server rejects a range.
package chunkuploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingUploadID is returned when a chunk response does not carry an upload_id.
var ErrMissingUploadID = errors.New("response does not contain upload_id")

// ChunkRange is the half-open byte range [Start, End) of a chunk together with the
// declared total size of the file.
type ChunkRange struct {
	Start uint64
	End   uint64
	Total uint64
}

// Validate checks 0 <= Start < End <= Total.
func (r ChunkRange) Validate() error {
	if r.Start >= r.End || r.End > r.Total {
		return fmt.Errorf("invalid chunk range %s", r)
	}
	return nil
}

// Size returns the number of bytes covered by the range.
func (r ChunkRange) Size() uint64 {
	return r.End - r.Start
}

// String renders the range the way it is sent in the Content-Range header.
func (r ChunkRange) String() string {
	return fmt.Sprintf("%d-%d/%d", r.Start, r.End, r.Total)
}

// ChunkSender sends one chunk of a file and returns the upload session identifier.
// An empty uploadID starts a new session.
type ChunkSender interface {
	SendChunk(ctx context.Context, fileName string, chunk []byte, r ChunkRange, uploadID string) (string, error)
}

// UploadError is the typed failure of a chunk send.
// StatusCode is 0 when no HTTP response was received or the response was malformed.
type UploadError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload failed (HTTP %d): %s", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload failed: %s", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IsRangeMismatch reports whether the server rejected the chunk range.
func (e *UploadError) IsRangeMismatch() bool {
	return e.StatusCode == http.StatusRequestedRangeNotSatisfiable
}

// ProgressFunc is called with the number of bytes the server has acknowledged.
type ProgressFunc func(sent, total int64)
