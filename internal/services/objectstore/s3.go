// Package objectstore uploads finalized recordings to an S3-compatible
// bucket such as Supabase Storage.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"

	"github.com/zynkhq/zynk/internal/config"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/services"
)

// ArtifactExt is the only file extension accepted for upload.
const ArtifactExt = ".mp4"

// Store implements services.StorageService on the S3 API.
type Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
	uploadTimeout time.Duration
	logger        hclog.Logger
}

var _ services.StorageService = (*Store)(nil)

// New creates a store. An unconfigured store is returned without error and
// fails every call with ErrStorageNotConfigured.
func New(ctx context.Context, cfg config.StorageConfig, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("objectstore")

	st := &Store{
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		uploadTimeout: cfg.UploadTimeout,
		logger:        logger,
	}
	if !cfg.Configured() {
		logger.Warn("object storage not configured, recordings will not be uploaded")
		return st, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	st.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	if st.publicBaseURL == "" {
		st.publicBaseURL = defaultPublicBaseURL(cfg.Endpoint)
	}

	logger.Info("object storage configured", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return st, nil
}

// Configured reports whether uploads can be attempted.
func (s *Store) Configured() bool {
	return s.client != nil
}

// ObjectKey names a session recording: <owner>/session_<sid>_<YYYYmmdd_HHMMSS>.mp4.
func ObjectKey(ownerID, sessionID string, at time.Time) string {
	return fmt.Sprintf("%s/session_%s_%s%s", ownerID, sessionID, at.Format("20060102_150405"), ArtifactExt)
}

// Upload stores filePath at storagePath and returns the public URL.
func (s *Store) Upload(ctx context.Context, filePath, storagePath, contentType string) (string, error) {
	if !strings.EqualFold(filepath.Ext(filePath), ArtifactExt) {
		return "", sErrors.UploadError("upload", sErrors.ErrUnsupportedFileType).
			WithDetail("file", filepath.Base(filePath))
	}
	if s.client == nil {
		return "", sErrors.UploadError("upload", sErrors.ErrStorageNotConfigured)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", sErrors.StorageError("upload", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", sErrors.StorageError("upload", err)
	}

	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	start := time.Now()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(storagePath),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("max-age=3600"),
	})
	if err != nil {
		return "", sErrors.UploadError("upload", err).WithDetail("key", storagePath)
	}

	url := s.PublicURL(storagePath)
	s.logger.Info("recording uploaded",
		"key", storagePath,
		"bytes", info.Size(),
		"duration", time.Since(start))
	return url, nil
}

// List returns the objects stored under ownerPrefix.
func (s *Store) List(ctx context.Context, ownerPrefix string) ([]services.ObjectInfo, error) {
	if s.client == nil {
		return nil, sErrors.UploadError("list", sErrors.ErrStorageNotConfigured)
	}

	prefix := strings.Trim(ownerPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	var objects []services.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, sErrors.UploadError("list", err).WithDetail("prefix", prefix)
		}
		for _, obj := range page.Contents {
			modified := aws.ToTime(obj.LastModified)
			objects = append(objects, services.ObjectInfo{
				Name:      path.Base(aws.ToString(obj.Key)),
				CreatedAt: modified,
				UpdatedAt: modified,
				Size:      aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// PublicURL returns the public address of an object key.
func (s *Store) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
}

// defaultPublicBaseURL maps a Supabase S3 endpoint
// (https://<ref>.supabase.co/storage/v1/s3) to its public object prefix.
func defaultPublicBaseURL(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	if trimmed, ok := strings.CutSuffix(base, "/s3"); ok {
		return trimmed + "/object/public"
	}
	return base
}
