package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/fileblob"
)

func newTestBlobStorage(t *testing.T, prefix string, signer fileblob.URLSigner, objects map[string]string) *blobStorage {
	t.Helper()
	bucket, err := fileblob.OpenBucket(t.TempDir(), &fileblob.Options{URLSigner: signer})
	require.NoError(t, err)

	for key, content := range objects {
		require.NoError(t, bucket.WriteAll(context.Background(), key, []byte(content), nil))
	}

	s := newBlobStorage(GCP, bucket, "gs://samples", prefix, log.NewLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBlobStorage_Glob(t *testing.T) {
	s := newTestBlobStorage(t, "data", nil, map[string]string{
		"data/a.vcf":            "a",
		"data/run-1/b.vcf":      "bb",
		"data/run-1/b.vcf.gz":   "bbb",
		"data/run-2/r.fastq.gz": "r",
		"database/c.vcf":        "c",
		"d.vcf":                 "d",
	})

	got, err := s.Glob(context.Background(), "**/*.vcf")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/a.vcf", "data/run-1/b.vcf"}, got)

	got, err = s.Glob(context.Background(), "**/*.fastq.gz")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/run-2/r.fastq.gz"}, got)
}

func TestBlobStorage_GlobWithoutPrefix(t *testing.T) {
	s := newTestBlobStorage(t, "", nil, map[string]string{
		"a.bam":       "a",
		"deep/b.bam":  "b",
		"deep/b.bai":  "i",
		"other/c.vcf": "c",
	})

	got, err := s.Glob(context.Background(), "**/*.bam")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.bam", "deep/b.bam"}, got)
}

func TestBlobStorage_Size(t *testing.T) {
	s := newTestBlobStorage(t, "", nil, map[string]string{"a.vcf": "Hello, World!\n"})

	size, err := s.Size(context.Background(), "a.vcf")
	require.NoError(t, err)
	assert.Equal(t, int64(14), size)

	_, err = s.Size(context.Background(), "missing.vcf")
	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestBlobStorage_Sign(t *testing.T) {
	signer := fileblob.NewURLSignerHMAC(&url.URL{Scheme: "https", Host: "files.example.com", Path: "/signed"}, []byte("secret"))
	s := newTestBlobStorage(t, "", signer, map[string]string{"a.vcf": "a"})

	signed, err := s.Sign(context.Background(), "a.vcf", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "files.example.com", u.Host)
	assert.Equal(t, "/signed", u.Path)
	assert.Equal(t, "a.vcf", u.Query().Get("obj"))
	assert.NotEmpty(t, u.Query().Get("signature"))
}

func TestBlobStorage_SignWithoutSigner(t *testing.T) {
	s := newTestBlobStorage(t, "", nil, map[string]string{"a.vcf": "a"})

	_, err := s.Sign(context.Background(), "a.vcf", time.Hour)

	assert.ErrorIs(t, err, ErrSigningNotSupported)
}
