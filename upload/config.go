package upload

import (
	"context"

	"github.com/saphetor/vc-file-upload/upload/network"
	"github.com/saphetor/vc-file-upload/upload/network/chunkuploader"
)

const (
	// DefaultBaseURL is the clinical service the files are sent to.
	DefaultBaseURL = "https://ch.clinical.varsome.com"
	// DefaultSingleUploadThreshold is the largest file sent in a single request.
	DefaultSingleUploadThreshold = 100 * 1024 * 1024
)

// SizeFunc reports the size of the file at locator.
type SizeFunc func(ctx context.Context, locator string) (int64, error)

// ProgressFunc receives the number of bytes of a multipart upload acknowledged so far.
type ProgressFunc func(locator string, sent, total int64)

// Config ...
type Config struct {
	BaseURL string
	// SingleUploadThreshold is inclusive: a file of exactly this size is sent in one request.
	SingleUploadThreshold int64
	ChunkSize             uint64
	MaxResyncs            int
	Session               network.SessionConfig
	// Size overrides the stat of local files, for example with a storage adapter.
	Size SizeFunc
	// Progress is optional.
	Progress ProgressFunc
}

// DefaultConfig returns the production defaults for the given API token.
func DefaultConfig(token string) Config {
	return Config{
		BaseURL:               DefaultBaseURL,
		SingleUploadThreshold: DefaultSingleUploadThreshold,
		ChunkSize:             chunkuploader.DefaultChunkSizeBytes,
		MaxResyncs:            chunkuploader.DefaultMaxResyncs,
		Session:               network.DefaultSessionConfig(token),
	}
}

func (c Config) chunkConfig(locator string) chunkuploader.Config {
	config := chunkuploader.Config{
		ChunkSize:  c.ChunkSize,
		MaxResyncs: c.MaxResyncs,
	}
	if c.Progress != nil {
		progress := c.Progress
		config.Progress = func(sent, total int64) {
			progress(locator, sent, total)
		}
	}
	return config
}
