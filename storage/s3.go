package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
)

const (
	defaultListRetries  = 3
	defaultListWaitTime = 5 * time.Second
)

type s3Storage struct {
	backend Backend
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	logger  log.Logger

	listRetries  uint
	listWaitTime time.Duration
}

var _ Storage = (*s3Storage)(nil)

func newS3Storage(ctx context.Context, root string, creds S3Credentials, logger log.Logger) (*s3Storage, error) {
	bucket, prefix := splitBucketRoot(root)
	if bucket == "" {
		return nil, &StorageError{Backend: AWS, Op: "open", Err: fmt.Errorf("bucket must not be empty")}
	}

	cfg, err := loadAWSConfig(ctx, creds.Region, creds.AccessKeyID, creds.SecretAccessKey, logger)
	if err != nil {
		return nil, &StorageError{Backend: AWS, Op: "load aws config", Err: err}
	}
	return newS3StorageFromConfig(AWS, cfg, creds.EndpointURL, bucket, prefix, logger), nil
}

// newOCIStorage talks to OCI Object Storage through its S3 compatibility API.
// root is bucket@namespace[/prefix].
func newOCIStorage(ctx context.Context, root string, creds S3Credentials, logger log.Logger) (*s3Storage, error) {
	bucketAndNamespace, prefix := splitBucketRoot(root)
	bucket, namespace, found := strings.Cut(bucketAndNamespace, "@")
	if !found || bucket == "" || namespace == "" {
		return nil, &StorageError{Backend: OCI, Op: "open", Err: fmt.Errorf("root must look like bucket@namespace/prefix, got %s", root)}
	}
	if creds.Region == "" {
		return nil, &StorageError{Backend: OCI, Op: "open", Err: fmt.Errorf("region must not be empty")}
	}

	cfg, err := loadAWSConfig(ctx, creds.Region, creds.AccessKeyID, creds.SecretAccessKey, logger)
	if err != nil {
		return nil, &StorageError{Backend: OCI, Op: "load config", Err: err}
	}

	endpoint := creds.EndpointURL
	if endpoint == "" {
		endpoint = ociCompatEndpoint(namespace, creds.Region)
	}
	return newS3StorageFromConfig(OCI, cfg, endpoint, bucket, prefix, logger), nil
}

func ociCompatEndpoint(namespace, region string) string {
	return fmt.Sprintf("https://%s.compat.objectstorage.%s.oraclecloud.com", namespace, region)
}

func newS3StorageFromConfig(backend Backend, cfg *aws.Config, endpoint, bucket, prefix string, logger log.Logger) *s3Storage {
	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Storage{
		backend:      backend,
		client:       client,
		presign:      s3.NewPresignClient(client),
		bucket:       bucket,
		prefix:       prefix,
		logger:       logger,
		listRetries:  defaultListRetries,
		listWaitTime: defaultListWaitTime,
	}
}

func loadAWSConfig(ctx context.Context, region, accessKeyID, secretKey string, logger log.Logger) (*aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}

func (s *s3Storage) Glob(ctx context.Context, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, &StorageError{Backend: s.backend, Op: fmt.Sprintf("glob %s", pattern), Err: doublestar.ErrBadPattern}
	}
	base, _ := doublestar.SplitPattern(pattern)
	listPrefix := joinKey(s.prefix, base)
	if listPrefix != "" {
		listPrefix += "/"
	}

	var keys []string
	err := retry.Times(s.listRetries).Wait(s.listWaitTime).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			s.logger.Debugf("Retrying listing of s3://%s/%s (attempt %d)", s.bucket, listPrefix, attempt)
		}

		var err error
		keys, err = s.listMatching(ctx, listPrefix, pattern)
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) || ctx.Err() != nil {
				return err, true
			}
			return err, false
		}
		return nil, true
	})
	if err != nil {
		return nil, &StorageError{Backend: s.backend, Op: fmt.Sprintf("list s3://%s/%s", s.bucket, listPrefix), Err: err}
	}

	sort.Strings(keys)
	s.logger.Debugf("%d objects match %s under s3://%s/%s", len(keys), pattern, s.bucket, s.prefix)
	return keys, nil
}

func (s *s3Storage) listMatching(ctx context.Context, listPrefix, pattern string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if listPrefix != "" {
		input.Prefix = aws.String(listPrefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			rel, ok := relativeKey(key, s.prefix)
			if !ok {
				continue
			}
			if match, _ := doublestar.Match(pattern, rel); match {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func (s *s3Storage) Sign(ctx context.Context, locator string, expiration time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", &StorageError{Backend: s.backend, Op: fmt.Sprintf("presign %s", locator), Err: err}
	}
	return req.URL, nil
}

func (s *s3Storage) Size(ctx context.Context, locator string) (int64, error) {
	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, &StorageError{Backend: s.backend, Op: fmt.Sprintf("head %s", locator), Err: fmt.Errorf("object not found: %w", err)}
		}
		return 0, &StorageError{Backend: s.backend, Op: fmt.Sprintf("head %s", locator), Err: err}
	}
	return aws.ToInt64(output.ContentLength), nil
}

func (s *s3Storage) Close() error {
	return nil
}
