package uploadstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CatalogFox/internal/pkg/config"
)

// S3Store stages uploads in an S3-compatible bucket so multiple app nodes
// share the same blob namespace. Save spools to a temp file first because
// PutObject needs a known content length, and the size cap has to be
// enforced before anything reaches the bucket anyway.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates the S3 client and verifies the bucket is reachable.
func NewS3Store(cfg config.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 storage driver requires S3_BUCKET")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO/Ceph style services need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	store := &S3Store{client: client, bucket: cfg.Bucket}

	if _, err := client.HeadBucket(context.TODO(), &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.Bucket, err)
	}

	log.Infof("[UploadStore] Using S3 bucket %s for staged uploads", cfg.Bucket)
	return store, nil
}

// Save spools the capped stream to a temp file, then uploads it.
func (s *S3Store) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp("", "catalogfox-upload-*")
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	written, err := copyCapped(tmp, r)
	if err != nil {
		return written, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return written, fmt.Errorf("seek spool file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(written),
	})
	if err != nil {
		return written, fmt.Errorf("failed to upload to S3: %w", err)
	}
	return written, nil
}

// Stage downloads the blob to a temp file; cleanup removes it.
func (s *S3Store) Stage(ctx context.Context, key string) (string, func(), error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	tmp, err := os.CreateTemp("", "catalogfox-stage-*.csv")
	if err != nil {
		return "", nil, fmt.Errorf("create staging file: %w", err)
	}

	if _, err := io.Copy(tmp, result.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("download staged upload %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("close staging file: %w", err)
	}

	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnf("[UploadStore] Failed to remove staging copy %s: %v", path, err)
		}
	}
	return path, cleanup, nil
}

// Remove deletes the blob from the bucket. S3 deletes are idempotent, so an
// already-gone key is not an error.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}
