// Package objstore provides backend.ObjectStorage implementations: S3 (or
// any S3-compatible endpoint) for shared deployments and a local directory
// for development.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/matheus3301/layover/internal/backend"
)

var _ backend.ObjectStorage = (*S3)(nil)

// S3 stores every logical bucket as a key prefix inside one S3 bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
	endpoint string
}

// S3Options configures NewS3. Endpoint is only set for S3-compatible
// servers such as MinIO; path-style addressing is used then.
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string
}

// NewS3 loads the default AWS credential chain and builds the client.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
		region:   opts.Region,
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
	}, nil
}

// Upload writes data and returns its public URL.
func (s *S3) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	key := objectKey(bucket, path)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.PublicURL(bucket, path), nil
}

// PublicURL returns the URL an object is served from.
func (s *S3) PublicURL(bucket, path string) string {
	return publicURL(s.endpoint, s.bucket, s.region, objectKey(bucket, path))
}

// Remove deletes an object. Removing a missing object succeeds.
func (s *S3) Remove(ctx context.Context, bucket, path string) error {
	key := objectKey(bucket, path)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func objectKey(bucket, path string) string {
	return bucket + "/" + strings.TrimPrefix(path, "/")
}

func publicURL(endpoint, bucket, region, key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", endpoint, bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, escaped)
}

// PathFromURL recovers the object path inside bucket from a URL produced by
// PublicURL. It reports false when the URL does not point into bucket.
func PathFromURL(rawURL, bucket string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	marker := "/" + bucket + "/"
	i := strings.LastIndex(u.Path, marker)
	if i < 0 {
		return "", false
	}
	path := u.Path[i+len(marker):]
	return path, path != ""
}
