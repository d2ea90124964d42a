package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"placement-credit-sync/internal/config"
	"placement-credit-sync/pkg/errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// objectAPI is the slice of the S3 client the store calls.
type objectAPI interface {
	GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(aws.Context, *s3.PutObjectInput, ...request.Option) (*s3.PutObjectOutput, error)
	HeadObjectWithContext(aws.Context, *s3.HeadObjectInput, ...request.Option) (*s3.HeadObjectOutput, error)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type S3Storage struct {
	api    objectAPI
	bucket string
}

// NewS3Storage works against AWS or, when an endpoint is set, an
// S3-compatible store such as MinIO.
func NewS3Storage(cfg *config.Config) (*S3Storage, error) {
	s3cfg := cfg.Storage.S3
	awsCfg := aws.NewConfig().
		WithRegion(s3cfg.Region).
		WithCredentials(credentials.NewStaticCredentials(s3cfg.AccessKey, s3cfg.SecretKey, "")).
		WithDisableSSL(!s3cfg.UseSSL).
		WithS3ForcePathStyle(true)
	if s3cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(s3cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return newS3Storage(s3.New(sess), s3cfg.Bucket), nil
}

func newS3Storage(api objectAPI, bucket string) *S3Storage {
	return &S3Storage{api: api, bucket: bucket}
}

func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, errors.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

// Upload buffers non-seekable readers since the SDK signs the body.
func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader) error {
	body, seekable := data.(io.ReadSeeker)
	if !seekable {
		raw, err := io.ReadAll(data)
		if err != nil {
			return fmt.Errorf("failed to buffer upload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	if _, err := s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(xlsxContentType),
	}); err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isMissing(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to head s3://%s/%s: %w", s.bucket, key, err)
	}
}

// HEAD responses carry no body, so a missing key surfaces as "NotFound"
// rather than NoSuchKey.
func isMissing(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
}
