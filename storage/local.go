package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/saphetor/vc-file-upload/internal"
)

type localStorage struct {
	root    string
	osProxy internal.OsProxy
	logger  log.Logger
}

var _ Storage = (*localStorage)(nil)

func newLocalStorage(root string, logger log.Logger) (*localStorage, error) {
	return newLocalStorageWithProxy(root, pathutil.NewPathModifier(), pathutil.NewPathChecker(), internal.RealOS{}, logger)
}

func newLocalStorageWithProxy(
	root string,
	pathModifier pathutil.PathModifier,
	pathChecker pathutil.PathChecker,
	osProxy internal.OsProxy,
	logger log.Logger,
) (*localStorage, error) {
	absRoot, err := pathModifier.AbsPath(root) // resolves ~/ and expands any envs
	if err != nil {
		return nil, &StorageError{Backend: Local, Op: "resolve root", Err: err}
	}

	exists, err := pathChecker.IsDirExists(absRoot)
	if err != nil {
		return nil, &StorageError{Backend: Local, Op: "check root", Err: err}
	}
	if !exists {
		return nil, &StorageError{Backend: Local, Op: "check root", Err: fmt.Errorf("directory does not exist: %s", absRoot)}
	}

	return &localStorage{
		root:    absRoot,
		osProxy: osProxy,
		logger:  logger,
	}, nil
}

func (s *localStorage) Glob(_ context.Context, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(s.osProxy.DirFS(s.root), pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, &StorageError{Backend: Local, Op: fmt.Sprintf("glob %s", pattern), Err: err}
	}

	paths := make([]string, 0, len(matches))
	for _, match := range matches {
		paths = append(paths, filepath.Join(s.root, filepath.FromSlash(match)))
	}
	sort.Strings(paths)
	s.logger.Debugf("%d files match %s under %s", len(paths), pattern, s.root)
	return paths, nil
}

func (s *localStorage) Sign(context.Context, string, time.Duration) (string, error) {
	return "", ErrSigningNotSupported
}

func (s *localStorage) Size(_ context.Context, locator string) (int64, error) {
	info, err := s.osProxy.Stat(locator)
	if err != nil {
		return 0, &StorageError{Backend: Local, Op: "stat", Err: err}
	}
	if info.IsDir() {
		return 0, &StorageError{Backend: Local, Op: "stat", Err: fmt.Errorf("%s is a directory", locator)}
	}
	return info.Size(), nil
}

func (s *localStorage) Close() error {
	return nil
}
