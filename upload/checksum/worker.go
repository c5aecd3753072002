// Package checksum computes whole-file digests in the background while a file is being
// uploaded.
package checksum

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

// BlockSize is the size of the reads fed into the digest.
const BlockSize = 8192

// Opener opens the content to hash.
type Opener func() (io.ReadCloser, error)

// FileOpener returns an Opener for a local file.
func FileOpener(path string) Opener {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// Result is either the hex digest or the error that stopped the computation.
type Result struct {
	Digest string
	Err    error
}

// Worker computes an MD5 digest on its own goroutine.
type Worker struct {
	result chan Result
	once   sync.Once
	final  Result
}

// Start launches a worker hashing the content returned by open.
// Cancelling ctx stops the worker between two reads.
func Start(ctx context.Context, open Opener) *Worker {
	w := &Worker{result: make(chan Result, 1)}
	go func() {
		digest, err := md5Of(ctx, open)
		w.result <- Result{Digest: digest, Err: err}
	}()
	return w
}

// Wait blocks until the worker finished and returns its result.
// It is safe to call Wait more than once.
func (w *Worker) Wait() Result {
	w.once.Do(func() {
		w.final = <-w.result
	})
	return w.final
}

func md5Of(ctx context.Context, open Opener) (string, error) {
	reader, err := open()
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer reader.Close() //nolint:errcheck

	hash := md5.New()
	buf := make([]byte, BlockSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := reader.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
