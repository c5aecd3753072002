package chunkuploader

import (
	"time"
)

// Stats tracks per-file upload metrics for logging and reporting.
type Stats struct {
	sum            time.Duration
	finishedChunks int64
	sentBytes      uint64
	resyncs        int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful chunk upload.
func (s *Stats) Update(d time.Duration, size uint64) {
	s.sum += d
	s.finishedChunks++
	s.sentBytes += size
}

// Resynced records a server range resync.
func (s *Stats) Resynced() {
	s.resyncs++
}

// Average returns the average upload duration for completed chunks.
func (s *Stats) Average() time.Duration {
	if s.finishedChunks == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedChunks)
}

// FinishedCount returns the number of completed chunk uploads.
func (s *Stats) FinishedCount() int64 {
	return s.finishedChunks
}

// SentBytes returns the number of bytes sent in acknowledged chunks, including re-sent ones.
func (s *Stats) SentBytes() uint64 {
	return s.sentBytes
}

// ResyncCount returns the number of range resyncs.
func (s *Stats) ResyncCount() int64 {
	return s.resyncs
}

// TotalDuration returns the sum of all upload durations.
func (s *Stats) TotalDuration() time.Duration {
	return s.sum
}
