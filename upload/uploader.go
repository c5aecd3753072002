// Package upload transfers batches of genomic data files to the clinical service.
// Every file of a batch is either uploaded from the local disk or registered by URL.
// A file that fails is reported as absent in the Outcome and never stops the batch.
package upload

import (
	"context"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/saphetor/vc-file-upload/internal"
	"github.com/saphetor/vc-file-upload/upload/checksum"
	"github.com/saphetor/vc-file-upload/upload/network"
)

// Uploader runs upload and retrieval batches.
type Uploader struct {
	config  Config
	logger  log.Logger
	osProxy internal.OsProxy
	// checksumOpener opens the file hashed alongside a multipart upload.
	checksumOpener func(path string) checksum.Opener
}

// New creates an Uploader.
func New(config Config, logger log.Logger) *Uploader {
	return newUploader(config, logger, internal.RealOS{})
}

func newUploader(config Config, logger log.Logger, osProxy internal.OsProxy) *Uploader {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.SingleUploadThreshold <= 0 {
		config.SingleUploadThreshold = DefaultSingleUploadThreshold
	}
	u := &Uploader{
		config:  config,
		logger:  logger,
		osProxy: osProxy,
	}
	u.checksumOpener = u.opener
	return u
}

// UploadLocalFiles uploads every local file of files (path -> display name).
// Files up to the single upload threshold go in one request, larger ones in chunks.
func (u *Uploader) UploadLocalFiles(ctx context.Context, files map[string]string) Outcome {
	return u.runBatch(ctx, "upload", files, u.uploadFile)
}

// RetrieveExternalFiles asks the service to fetch every file of files (URL -> display name).
func (u *Uploader) RetrieveExternalFiles(ctx context.Context, files map[string]string) Outcome {
	return u.runBatch(ctx, "retrieval", files, u.retrieveFile)
}

type fileHandler func(ctx context.Context, client *network.APIClient, target Target) Record

func (u *Uploader) runBatch(ctx context.Context, kind string, files map[string]string, handle fileHandler) Outcome {
	outcome := make(Outcome, len(files))
	targets := Targets(files)
	for _, target := range targets {
		outcome[target.Locator] = nil
	}
	if len(targets) == 0 {
		return outcome
	}

	session := network.NewSession(u.config.Session, u.logger)
	defer session.Close()

	client, err := network.NewAPIClient(session, u.config.BaseURL, u.logger)
	if err != nil {
		u.logger.Errorf("Cannot start %s of %d files: %s", kind, len(targets), err)
		return outcome
	}

	startTime := time.Now()
	for _, target := range targets {
		outcome[target.Locator] = handle(ctx, client, target)
	}

	u.logger.Println()
	u.logger.Donef("Finished %s of %d files in %s: %d succeeded, %d failed", kind, len(targets),
		time.Since(startTime).Round(time.Second), outcome.Succeeded(), len(targets)-outcome.Succeeded())
	return outcome
}

func (u *Uploader) retrieveFile(ctx context.Context, client *network.APIClient, target Target) Record {
	u.logger.Infof("Requesting retrieval of %s", target.Name)
	u.logger.Debugf("Source URL: %s", target.Locator)

	record, err := client.RegisterExternalFile(ctx, target.Locator, target.Name)
	if err != nil {
		u.logger.Errorf("Failed to request retrieval of %s: %s", target.Name, err)
		return nil
	}
	u.logger.Donef("Retrieval of %s requested", target.Name)
	return record
}
