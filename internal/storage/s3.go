package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Publisher uploads archives and reports to an S3 bucket
type S3Publisher struct {
	client     *s3.Client
	bucketName string
	prefix     string
}

// NewS3Publisher creates a publisher using the default AWS credential chain
func NewS3Publisher(ctx context.Context, bucketName, prefix string) (*S3Publisher, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &S3Publisher{
		client:     s3.NewFromConfig(cfg),
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Name implements Publisher
func (s *S3Publisher) Name() string {
	return "s3"
}

// Publish uploads the archive and its report under <prefix>/<base name>/
func (s *S3Publisher) Publish(ctx context.Context, stored *StoredArchive) (string, error) {
	archiveKey := s.key(stored.BaseName, filepath.Base(stored.ArchivePath))
	if err := s.putFile(ctx, stored.ArchivePath, archiveKey, "application/zip"); err != nil {
		return "", err
	}

	if stored.ReportPath != "" {
		reportKey := s.key(stored.BaseName, filepath.Base(stored.ReportPath))
		if err := s.putFile(ctx, stored.ReportPath, reportKey, "application/json"); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("s3://%s/%s", s.bucketName, archiveKey), nil
}

func (s *S3Publisher) key(baseName, filename string) string {
	return objectKey(s.prefix, baseName, filename)
}

func (s *S3Publisher) putFile(ctx context.Context, localPath, key, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func objectKey(prefix, baseName, filename string) string {
	if prefix == "" {
		return path.Join(baseName, filename)
	}
	return path.Join(prefix, baseName, filename)
}
