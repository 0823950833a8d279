// Package storage uploads user files to the backend's S3-compatible object
// storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of *s3.Client the store uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Options struct {
	// Endpoint is the S3 endpoint, e.g. http://127.0.0.1:54321/storage/v1/s3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicBaseURL is the backend root used to build public object URLs.
	PublicBaseURL string
}

// S3Store puts objects into one public bucket.
type S3Store struct {
	api        PutObjectAPI
	bucket     string
	publicBase string
}

// NewS3Store builds a path-style S3 client with static credentials.
func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("storage endpoint is not configured")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true
	})
	return NewS3StoreWithAPI(client, opts.Bucket, opts.PublicBaseURL), nil
}

func NewS3StoreWithAPI(api PutObjectAPI, bucket, publicBase string) *S3Store {
	return &S3Store{api: api, bucket: bucket, publicBase: strings.TrimRight(publicBase, "/")}
}

// Put uploads r under key and returns the object's public URL.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", s.bucket, key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL is where a public-bucket object is served from.
func (s *S3Store) PublicURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.publicBase, url.PathEscape(s.bucket), strings.Join(parts, "/"))
}
