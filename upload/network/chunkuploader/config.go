package chunkuploader

// DefaultChunkSizeBytes is the size of every chunk except the last one.
const DefaultChunkSizeBytes = 20 * 1024 * 1024

// DefaultMaxResyncs is the number of consecutive range resyncs tolerated without progress.
const DefaultMaxResyncs = 10

// Config holds configuration for the chunk uploader.
type Config struct {
	// ChunkSize is the size of the file window sent per request.
	// Default: 20 MiB
	ChunkSize uint64

	// MaxResyncs is the maximum number of consecutive 416 resyncs that do not move the
	// upload past the furthest acknowledged offset.
	// Default: 10
	MaxResyncs int

	// Progress is called after every acknowledged chunk and after every resync.
	// Optional.
	Progress ProgressFunc
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  DefaultChunkSizeBytes,
		MaxResyncs: DefaultMaxResyncs,
	}
}

func (c Config) withDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSizeBytes
	}
	if c.MaxResyncs <= 0 {
		c.MaxResyncs = DefaultMaxResyncs
	}
	return c
}
