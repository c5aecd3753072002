package upload

import (
	"context"
	"io"

	"github.com/docker/go-units"
	"github.com/saphetor/vc-file-upload/upload/checksum"
	"github.com/saphetor/vc-file-upload/upload/network"
	"github.com/saphetor/vc-file-upload/upload/network/chunkuploader"
)

func (u *Uploader) uploadFile(ctx context.Context, client *network.APIClient, target Target) Record {
	size := u.fileSize(ctx, target.Locator)
	if size == UnknownSize {
		u.logger.Errorf("Skipping %s: its size could not be determined", target.Locator)
		return nil
	}

	if size <= u.config.SingleUploadThreshold {
		return u.singleUpload(ctx, client, target, size)
	}
	return u.multipartUpload(ctx, client, target, size)
}

func (u *Uploader) fileSize(ctx context.Context, path string) int64 {
	if u.config.Size != nil {
		size, err := u.config.Size(ctx, path)
		if err != nil {
			u.logger.Warnf("Failed to get the size of %s: %s", path, err)
			return UnknownSize
		}
		return size
	}

	info, err := u.osProxy.Stat(path)
	if err != nil {
		u.logger.Warnf("Failed to stat %s: %s", path, err)
		return UnknownSize
	}
	if info.IsDir() {
		u.logger.Warnf("%s is a directory", path)
		return UnknownSize
	}
	return info.Size()
}

func (u *Uploader) singleUpload(ctx context.Context, client *network.APIClient, target Target, size int64) Record {
	u.logger.Infof("Uploading %s (%s)", target.Name, units.BytesSize(float64(size)))

	file, err := u.osProxy.Open(target.Locator)
	if err != nil {
		u.logger.Errorf("Failed to open %s: %s", target.Locator, err)
		return nil
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Warnf("Failed to close %s: %s", target.Locator, err)
		}
	}()

	record, err := client.UploadFile(ctx, target.Name, file, size)
	if err != nil {
		u.logger.Errorf("Failed to upload %s: %s", target.Name, err)
		return nil
	}
	u.logger.Donef("Uploaded %s", target.Name)
	return record
}

func (u *Uploader) multipartUpload(ctx context.Context, client *network.APIClient, target Target, size int64) Record {
	checksumCtx, cancelChecksum := context.WithCancel(ctx)
	defer cancelChecksum()
	worker := checksum.Start(checksumCtx, u.checksumOpener(target.Locator))

	uploadID, err := u.sendChunks(ctx, client, target, size)
	if err != nil {
		cancelChecksum()
		worker.Wait()
		return nil
	}

	result := worker.Wait()
	if result.Err != nil {
		u.logger.Errorf("Failed to compute the md5 checksum of %s: %s", target.Locator, result.Err)
		return nil
	}
	u.logger.Debugf("md5 of %s: %s", target.Name, result.Digest)

	record, err := client.CompleteMultipartUpload(ctx, uploadID, result.Digest)
	if err != nil {
		u.logger.Errorf("Failed to complete the upload of %s: %s", target.Name, err)
		return nil
	}
	u.logger.Donef("Uploaded %s", target.Name)
	return record
}

func (u *Uploader) sendChunks(ctx context.Context, client *network.APIClient, target Target, size int64) (string, error) {
	file, err := u.osProxy.Open(target.Locator)
	if err != nil {
		u.logger.Errorf("Failed to open %s: %s", target.Locator, err)
		return "", err
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Warnf("Failed to close %s: %s", target.Locator, err)
		}
	}()

	config := u.config.chunkConfig(target.Locator)
	uploader := chunkuploader.New(config, client, u.logger)
	provider := chunkuploader.NewReaderAtChunkProvider(file, uploader.ChunkSize())

	return uploader.Upload(ctx, provider, target.Name, uint64(size))
}

func (u *Uploader) opener(path string) checksum.Opener {
	return func() (io.ReadCloser, error) {
		return u.osProxy.Open(path)
	}
}
