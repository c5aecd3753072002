package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/gcp"
	"golang.org/x/oauth2/google"
)

const gcsReadOnlyScope = "https://www.googleapis.com/auth/devstorage.read_only"

// blobStorage serves the backends driven through Go CDK buckets.
type blobStorage struct {
	backend Backend
	bucket  *blob.Bucket
	name    string
	prefix  string
	logger  log.Logger
}

var _ Storage = (*blobStorage)(nil)

func newBlobStorage(backend Backend, bucket *blob.Bucket, name, prefix string, logger log.Logger) *blobStorage {
	return &blobStorage{
		backend: backend,
		bucket:  bucket,
		name:    name,
		prefix:  prefix,
		logger:  logger,
	}
}

func newGCSStorage(ctx context.Context, root string, cfg GCPConfig, logger log.Logger) (*blobStorage, error) {
	bucketName, prefix := splitBucketRoot(root)
	if bucketName == "" {
		return nil, &StorageError{Backend: GCP, Op: "open", Err: fmt.Errorf("bucket must not be empty")}
	}

	var creds *google.Credentials
	opts := &gcsblob.Options{}
	if cfg.CredentialsFile != "" {
		keyJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, &StorageError{Backend: GCP, Op: "read credentials", Err: err}
		}
		creds, err = google.CredentialsFromJSON(ctx, keyJSON, gcsReadOnlyScope)
		if err != nil {
			return nil, &StorageError{Backend: GCP, Op: "parse credentials", Err: err}
		}

		// Signing needs the service account key.
		if jwtConfig, err := google.JWTConfigFromJSON(keyJSON, gcsReadOnlyScope); err == nil {
			opts.GoogleAccessID = jwtConfig.Email
			opts.PrivateKey = jwtConfig.PrivateKey
		} else {
			logger.Warnf("GCP credentials are not a service account key, signed URLs will not be available: %s", err)
		}
	} else {
		var err error
		creds, err = gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, &StorageError{Backend: GCP, Op: "default credentials", Err: err}
		}
		logger.Warnf("GCP_CREDENTIALS_FILE is not set, using application default credentials")
	}

	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, &StorageError{Backend: GCP, Op: "create client", Err: err}
	}
	bucket, err := gcsblob.OpenBucket(ctx, client, bucketName, opts)
	if err != nil {
		return nil, &StorageError{Backend: GCP, Op: "open bucket", Err: err}
	}
	return newBlobStorage(GCP, bucket, "gs://"+bucketName, prefix, logger), nil
}

func newAzureStorage(ctx context.Context, root string, cfg AzureConfig, logger log.Logger) (*blobStorage, error) {
	containerName, prefix := splitBucketRoot(root)
	if containerName == "" {
		return nil, &StorageError{Backend: Azure, Op: "open", Err: fmt.Errorf("container must not be empty")}
	}
	if cfg.AccountName == "" {
		return nil, &StorageError{Backend: Azure, Op: "open", Err: fmt.Errorf("AZURE_ACCOUNT_NAME is not set")}
	}

	containerURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s", cfg.AccountName, containerName)

	var client *container.Client
	if cfg.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, &StorageError{Backend: Azure, Op: "parse credentials", Err: err}
		}
		client, err = container.NewClientWithSharedKeyCredential(containerURL, cred, nil)
		if err != nil {
			return nil, &StorageError{Backend: Azure, Op: "create client", Err: err}
		}
	} else {
		logger.Warnf("AZURE_ACCOUNT_KEY is not set, signed URLs will not be available")
		var err error
		client, err = container.NewClientWithNoCredential(containerURL, nil)
		if err != nil {
			return nil, &StorageError{Backend: Azure, Op: "create client", Err: err}
		}
	}

	bucket, err := azureblob.OpenBucket(ctx, client, nil)
	if err != nil {
		return nil, &StorageError{Backend: Azure, Op: "open container", Err: err}
	}
	return newBlobStorage(Azure, bucket, "azblob://"+containerName, prefix, logger), nil
}

func (s *blobStorage) Glob(ctx context.Context, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, &StorageError{Backend: s.backend, Op: fmt.Sprintf("glob %s", pattern), Err: doublestar.ErrBadPattern}
	}
	base, _ := doublestar.SplitPattern(pattern)
	listPrefix := joinKey(s.prefix, base)
	if listPrefix != "" {
		listPrefix += "/"
	}

	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: listPrefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &StorageError{Backend: s.backend, Op: fmt.Sprintf("list %s/%s", s.name, listPrefix), Err: err}
		}
		if obj.IsDir || strings.HasSuffix(obj.Key, "/") {
			continue
		}

		rel, ok := relativeKey(obj.Key, s.prefix)
		if !ok {
			continue
		}
		if match, _ := doublestar.Match(pattern, rel); match {
			keys = append(keys, obj.Key)
		}
	}

	sort.Strings(keys)
	s.logger.Debugf("%d objects match %s under %s/%s", len(keys), pattern, s.name, s.prefix)
	return keys, nil
}

func (s *blobStorage) Sign(ctx context.Context, locator string, expiration time.Duration) (string, error) {
	signedURL, err := s.bucket.SignedURL(ctx, locator, &blob.SignedURLOptions{
		Expiry: expiration,
		Method: http.MethodGet,
	})
	if err != nil {
		if gcerrors.Code(err) == gcerrors.Unimplemented {
			err = fmt.Errorf("%w: %s", ErrSigningNotSupported, err)
		}
		return "", &StorageError{Backend: s.backend, Op: fmt.Sprintf("sign %s", locator), Err: err}
	}
	return signedURL, nil
}

func (s *blobStorage) Size(ctx context.Context, locator string) (int64, error) {
	attrs, err := s.bucket.Attributes(ctx, locator)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			err = fmt.Errorf("object not found: %w", err)
		}
		return 0, &StorageError{Backend: s.backend, Op: fmt.Sprintf("attributes of %s", locator), Err: err}
	}
	return attrs.Size, nil
}

func (s *blobStorage) Close() error {
	return s.bucket.Close()
}
