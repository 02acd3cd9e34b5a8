package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"inbound-backend/internal/shared/storage/object"
)

const defaultUploadTimeout = 2 * time.Minute

// Options configures the S3 store.
type Options struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
	KMSKeyID        string
	UploadTimeout   time.Duration
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store implements ObjectStore using Amazon S3 or an S3-compatible endpoint.
type Store struct {
	client        s3API
	region        string
	bucket        string
	kmsKeyID      string
	uploadTimeout time.Duration
}

// New creates a new S3-backed object store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(opts.EndpointURL)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newWithClient(client, cfg.Region, opts), nil
}

func newWithClient(client s3API, region string, opts Options) *Store {
	timeout := opts.UploadTimeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	return &Store{
		client:        client,
		region:        region,
		bucket:        strings.TrimSpace(opts.Bucket),
		kmsKeyID:      strings.TrimSpace(opts.KMSKeyID),
		uploadTimeout: timeout,
	}
}

// Put uploads body under key. Re-uploading the same key replaces the object.
func (s *Store) Put(ctx context.Context, key string, contentType string, body []byte) (object.Location, error) {
	if err := ctx.Err(); err != nil {
		return object.Location{}, err
	}
	objectKey := strings.TrimLeft(key, "/")
	if objectKey == "" {
		return object.Location{}, fmt.Errorf("s3 object key is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	putCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()
	if _, err := s.client.PutObject(putCtx, input); err != nil {
		return object.Location{}, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}

	return object.Location{Region: s.region, Bucket: s.bucket, Key: objectKey}, nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objectKey := strings.TrimLeft(key, "/")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return out.Body, nil
}

var _ object.ObjectStore = (*Store)(nil)
