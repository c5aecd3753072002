//go:build integration
// +build integration

package integration

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/saphetor/vc-file-upload/upload"
)

var (
	logger  = log.NewLogger()
	envRepo = env.NewRepository()
)

// uploadConfig reads the live service settings, skipping the test when they are missing.
func uploadConfig(t *testing.T) upload.Config {
	t.Helper()
	token := envRepo.Get("VCLIN_API_TOKEN")
	if token == "" {
		t.Skip("VCLIN_API_TOKEN is not set")
	}
	config := upload.DefaultConfig(token)
	if baseURL := envRepo.Get("VCLIN_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}
	return config
}

func newUploader(config upload.Config) *upload.Uploader {
	return upload.New(config, logger)
}

// writeVCF writes a minimal VCF padded with header lines to at least size bytes.
func writeVCF(t *testing.T, name string, size int) string {
	t.Helper()
	var content bytes.Buffer
	content.WriteString("##fileformat=VCFv4.2\n")
	for content.Len() < size {
		content.WriteString("##comment=generated by the vc-file-upload integration suite\n")
	}
	content.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n")

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
