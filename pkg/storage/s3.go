package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store removes attachments stored in one bucket. References are either
// s3://bucket/key or the bucket's virtual-hosted URL.
type S3Store struct {
	client s3API
	bucket string
	region string
}

// NewS3Store loads AWS credentials from the default chain
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, region: region}, nil
}

func (s *S3Store) key(ref string) (string, bool) {
	if strings.HasPrefix(ref, "s3://") {
		rest := strings.TrimPrefix(ref, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket != s.bucket || key == "" {
			return "", false
		}
		return key, true
	}

	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "https" {
		return "", false
	}
	host := fmt.Sprintf("%s.s3.%s.amazonaws.com", s.bucket, s.region)
	if u.Host != host {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/"))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// IsManaged reports whether ref names an object of the bucket
func (s *S3Store) IsManaged(ref string) bool {
	_, ok := s.key(ref)
	return ok
}

// Remove deletes the object behind ref
func (s *S3Store) Remove(ctx context.Context, ref string) error {
	key, ok := s.key(ref)
	if !ok {
		return fmt.Errorf("not a managed object: %q", ref)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object %s: %w", key, err)
	}
	return nil
}
