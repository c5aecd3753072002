package chunkuploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

type stateKind int

const (
	statePositioned stateKind = iota
	stateResync
	stateDone
	stateFailed
)

func (k stateKind) String() string {
	switch k {
	case statePositioned:
		return "positioned"
	case stateResync:
		return "resync"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// state is one node of the upload state machine.
// offset is set for positioned and resync, uploadID for done, err for failed.
// r is the range the state was reached from, zero for the initial state.
type state struct {
	kind     stateKind
	offset   uint64
	uploadID string
	err      error
	r        ChunkRange
}

// Uploader sends a file chunk by chunk to a ChunkSender.
type Uploader struct {
	config Config
	sender ChunkSender
	logger log.Logger
}

// New creates a new Uploader with the given configuration.
func New(config Config, sender ChunkSender, logger log.Logger) *Uploader {
	return &Uploader{
		config: config.withDefaults(),
		sender: sender,
		logger: logger,
	}
}

// Upload sends total bytes read from provider and returns the upload session identifier
// once the last chunk has been acknowledged. The returned error is terminal for the file.
func (u *Uploader) Upload(ctx context.Context, provider ChunkProvider, fileName string, total uint64) (string, error) {
	if total == 0 {
		return "", fmt.Errorf("multipart upload of %s: file is empty", fileName)
	}

	u.logger.Infof("Starting multipart upload for file %s (%s in chunks of %s)", fileName,
		units.BytesSize(float64(total)), units.BytesSize(float64(u.config.ChunkSize)))

	stats := NewStats()
	uploadID := ""
	var furthest uint64
	resyncs := 0

	current := state{kind: statePositioned}
	for {
		switch current.kind {
		case statePositioned:
			if err := ctx.Err(); err != nil {
				current = state{kind: stateFailed, err: err}
				continue
			}

			r := u.chunkRange(current.offset, total)
			chunk, err := provider.ReadChunk(r)
			if err != nil {
				u.logger.Errorf("File read error during multipart upload: file=%s range=%s error=%s", fileName, r, err)
				return "", err
			}

			u.logger.Debugf("Uploading chunk %s for file %s", r, fileName)
			start := time.Now()
			id, err := u.sender.SendChunk(ctx, fileName, chunk, r, uploadID)
			if err == nil {
				uploadID = id
				stats.Update(time.Since(start), r.Size())
				if r.End > furthest {
					furthest = r.End
					resyncs = 0
				}
				u.reportProgress(r.End, total)
			}
			current = nextState(r, uploadID, err)
			if err != nil && current.kind == stateDone {
				u.logger.Warnf("Server already holds all of %s, treating rejected range %s as acknowledged", fileName, r)
				u.reportProgress(total, total)
			}

		case stateResync:
			stats.Resynced()
			resyncs++
			if resyncs > u.config.MaxResyncs {
				current = state{
					kind: stateFailed,
					err:  fmt.Errorf("giving up after %d consecutive range resyncs", resyncs-1),
					r:    current.r,
				}
				continue
			}
			u.logger.Warnf("Server rejected range %s for file %s, resuming from offset %d", current.r, fileName, current.offset)
			u.reportProgress(current.offset, total)
			current = state{kind: statePositioned, offset: current.offset}

		case stateDone:
			u.logger.Donef("Multipart upload of %s finished in %s: %d chunks (%s sent), %d resyncs, avg %s per chunk",
				fileName, stats.TotalDuration().Round(time.Millisecond), stats.FinishedCount(),
				units.BytesSize(float64(stats.SentBytes())), stats.ResyncCount(), stats.Average().Round(time.Millisecond))
			return current.uploadID, nil

		case stateFailed:
			u.logger.Errorf("Failed to upload local file: file=%s range=%s error=%s", fileName, current.r, current.err)
			return "", current.err

		default:
			return "", fmt.Errorf("unexpected upload state: %s", current.kind)
		}
	}
}

// ChunkSize returns the configured chunk size, defaults applied.
func (u *Uploader) ChunkSize() uint64 {
	return u.config.ChunkSize
}

func (u *Uploader) chunkRange(start, total uint64) ChunkRange {
	end := start + u.config.ChunkSize
	if end > total {
		end = total
	}
	return ChunkRange{Start: start, End: end, Total: total}
}

func (u *Uploader) reportProgress(sent, total uint64) {
	if u.config.Progress != nil {
		u.config.Progress(int64(sent), int64(total))
	}
}

// nextState returns the state that follows sending r, given the result of the send.
func nextState(r ChunkRange, uploadID string, sendErr error) state {
	if sendErr == nil {
		if r.End == r.Total {
			return state{kind: stateDone, uploadID: uploadID, r: r}
		}
		return state{kind: statePositioned, offset: r.End, r: r}
	}

	var uploadErr *UploadError
	if !errors.As(sendErr, &uploadErr) || !uploadErr.IsRangeMismatch() {
		return state{kind: stateFailed, err: sendErr, r: r}
	}

	offset, err := serverOffset(uploadErr.Body)
	if err != nil {
		return state{kind: stateFailed, err: fmt.Errorf("%s: %w", sendErr, err), r: r}
	}
	if offset == r.Total && uploadID != "" {
		// the last chunk landed but its acknowledgement was lost
		return state{kind: stateDone, uploadID: uploadID, r: r}
	}
	if offset >= r.Total {
		return state{kind: stateFailed, err: fmt.Errorf("%s: server offset %d is outside of the file", sendErr, offset), r: r}
	}
	return state{kind: stateResync, offset: offset, r: r}
}

type rangeMismatchResponse struct {
	Offset *int64 `json:"offset"`
}

// serverOffset reads the offset the server expects the next chunk to start at.
func serverOffset(body []byte) (uint64, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return 0, errors.New("range mismatch response has no body")
	}

	var resp rangeMismatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode range mismatch response: %w", err)
	}
	if resp.Offset == nil {
		return 0, errors.New("range mismatch response has no offset")
	}
	if *resp.Offset < 0 {
		return 0, fmt.Errorf("negative server offset %d", *resp.Offset)
	}
	return uint64(*resp.Offset), nil
}
