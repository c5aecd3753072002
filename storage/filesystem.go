package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultSignedURLExpiration is how long signed URLs handed to the service stay valid.
const DefaultSignedURLExpiration = 86400 * time.Second

// AllowedExtensions are the data file extensions the service accepts.
var AllowedExtensions = []string{"vcf", "vcf.gz", "fastq.gz", "bam"}

// ParseExtensions parses a comma separated extension list. Entries are trimmed,
// lowercased and stripped of leading dots; entries that are not allowed are dropped.
func ParseExtensions(list string) []string {
	seen := map[string]bool{}
	var extensions []string
	for _, entry := range strings.Split(list, ",") {
		ext := strings.TrimLeft(strings.ToLower(strings.TrimSpace(entry)), ".")
		if ext == "" || seen[ext] || !isAllowedExtension(ext) {
			continue
		}
		seen[ext] = true
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}

func isAllowedExtension(ext string) bool {
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FileSystem finds the data files below the root of a Storage.
type FileSystem struct {
	storage    Storage
	backend    Backend
	extensions []string
	expiration time.Duration
	logger     log.Logger
}

// NewFileSystem ... A zero expiration means DefaultSignedURLExpiration.
func NewFileSystem(storage Storage, backend Backend, extensions []string, expiration time.Duration, logger log.Logger) (*FileSystem, error) {
	if len(extensions) == 0 {
		return nil, fmt.Errorf("accepted file extensions cannot be empty")
	}
	for _, ext := range extensions {
		if !isAllowedExtension(ext) {
			return nil, fmt.Errorf("accepted file extension '%s' is not supported", ext)
		}
	}
	if expiration <= 0 {
		expiration = DefaultSignedURLExpiration
	}

	return &FileSystem{
		storage:    storage,
		backend:    backend,
		extensions: extensions,
		expiration: expiration,
		logger:     logger,
	}, nil
}

// FindFiles returns the locators of every file with an accepted extension, sorted and
// without duplicates.
func (f *FileSystem) FindFiles(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, ext := range f.extensions {
		pattern := fmt.Sprintf("**/*.%s", ext)
		matches, err := f.storage.Glob(ctx, pattern)
		if err != nil {
			f.logger.Errorf("File search failed: pattern=%s error=%s", pattern, err)
			return nil, fmt.Errorf("failed to find files matching pattern '%s': %w", pattern, err)
		}
		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				files = append(files, match)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// FilesWithNames maps every found file to its base name. Local files are keyed by
// path, bucket objects by a signed URL. It returns nil when nothing is found.
func (f *FileSystem) FilesWithNames(ctx context.Context) (map[string]string, error) {
	files, err := f.FindFiles(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	result := make(map[string]string, len(files))
	for _, file := range files {
		if !f.backend.IsBucket() {
			result[file] = filepath.Base(file)
			continue
		}

		signedURL, err := f.storage.Sign(ctx, file, f.expiration)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s: %w", file, err)
		}
		result[signedURL] = path.Base(file)
	}
	return result, nil
}
