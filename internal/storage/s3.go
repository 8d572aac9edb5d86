package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// API is the subset of s3.Client the stager needs.
type API interface {
	manager.UploadAPIClient
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Stager holds documents in a scratch bucket for the duration of a single
// analysis call. Objects are removed as soon as the caller is done with them.
type S3Stager struct {
	client     API
	uploader   *manager.Uploader
	bucketName string
}

// NewS3Stager creates a stager for bucketName using the given AWS config.
func NewS3Stager(cfg aws.Config, bucketName string) (*S3Stager, error) {
	return NewS3StagerWith(s3.NewFromConfig(cfg), bucketName)
}

// NewS3StagerWith wraps an existing client; tests pass a fake.
func NewS3StagerWith(client API, bucketName string) (*S3Stager, error) {
	if bucketName == "" {
		return nil, errors.New("s3 stager: bucket name is required")
	}
	return &S3Stager{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucketName: bucketName,
	}, nil
}

// Bucket returns the staging bucket name.
func (s *S3Stager) Bucket() string { return s.bucketName }

// Stage uploads data under key and returns the bucket it was written to.
func (s *S3Stager) Stage(ctx context.Context, key string, data []byte) (string, error) {
	if key == "" {
		return "", errors.New("stage: empty key")
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("staging upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("bucket", s.bucketName).Str("key", key).Int("size", len(data)).Msg("staged document")
	return s.bucketName, nil
}

// Remove deletes a staged object.
func (s *S3Stager) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object failed: %w", err)
	}
	log.Debug().Str("bucket", s.bucketName).Str("key", key).Msg("removed staged document")
	return nil
}

// Ping checks that the bucket exists and is reachable.
func (s *S3Stager) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucketName, err)
	}
	return nil
}
