// Package storage discovers data files on the local disk or in a cloud bucket and
// produces pre-signed download URLs for the bucket backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Backend names a storage provider.
type Backend string

// Supported backends.
const (
	Local Backend = "LOCAL"
	AWS   Backend = "AWS"
	GCP   Backend = "GCP"
	OCI   Backend = "OCI"
	Azure Backend = "AZURE"

	DefaultBackend = Local
)

// Backends lists every supported backend.
var Backends = []Backend{Local, AWS, GCP, OCI, Azure}

var (
	// ErrUnknownBackend is returned for a backend name that is not one of Backends.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrSigningNotSupported is returned by Sign on backends without signed URLs.
	ErrSigningNotSupported = errors.New("signed URLs are not supported by this backend")
)

// StorageError is a failure of a storage provider call.
type StorageError struct {
	Backend Backend
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage: %s: %s", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseBackend resolves a backend name, ignoring case.
func ParseBackend(name string) (Backend, error) {
	for _, backend := range Backends {
		if strings.EqualFold(name, string(backend)) {
			return backend, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownBackend, name)
}

// IsBucket reports whether files of the backend are handed over as signed URLs.
func (b Backend) IsBucket() bool {
	return b != Local
}

// Storage is the minimal view of a file store the uploader needs.
// Locators are absolute paths for the local backend and object keys for buckets.
type Storage interface {
	// Glob returns the locators matching pattern, relative to the storage root, sorted.
	Glob(ctx context.Context, pattern string) ([]string, error)
	// Sign returns a URL that allows downloading locator until expiration elapses.
	Sign(ctx context.Context, locator string, expiration time.Duration) (string, error)
	// Size returns the size of locator in bytes.
	Size(ctx context.Context, locator string) (int64, error)
	Close() error
}

// New opens the storage of backend rooted at root.
// For LOCAL root is a directory, for AWS, GCP and AZURE it is bucket[/prefix],
// for OCI it is bucket@namespace[/prefix].
func New(ctx context.Context, backend Backend, root string, config Config, logger log.Logger) (Storage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}

	logger.Debugf("Opening %s storage at %s", backend, root)
	switch backend {
	case Local:
		return newLocalStorage(root, logger)
	case AWS:
		return newS3Storage(ctx, root, config.AWS, logger)
	case OCI:
		return newOCIStorage(ctx, root, config.OCI, logger)
	case GCP:
		return newGCSStorage(ctx, root, config.GCP, logger)
	case Azure:
		return newAzureStorage(ctx, root, config.Azure, logger)
	default:
		logger.Errorf("Unknown storage backend requested: %s", backend)
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// splitBucketRoot splits bucket[/prefix] into the bucket name and the key prefix
// without surrounding slashes. A leading scheme such as s3:// is ignored.
func splitBucketRoot(root string) (string, string) {
	if i := strings.Index(root, "://"); i >= 0 {
		root = root[i+3:]
	}
	root = strings.Trim(root, "/")
	bucket, prefix, _ := strings.Cut(root, "/")
	return bucket, strings.Trim(prefix, "/")
}

// joinKey joins key segments with slashes, skipping empty ones.
func joinKey(parts ...string) string {
	var nonEmpty []string
	for _, part := range parts {
		if part = strings.Trim(part, "/"); part != "" && part != "." {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// relativeKey strips prefix from key. ok is false when key is not below prefix.
func relativeKey(key, prefix string) (string, bool) {
	if prefix == "" {
		return key, true
	}
	if !strings.HasPrefix(key, prefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(key, prefix+"/"), true
}
