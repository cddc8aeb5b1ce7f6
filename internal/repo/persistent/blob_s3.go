package persistent

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/agrovision/leaf-diagnosis/pkg/s3client"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobRepo keeps raw leaf images in S3. Storage failures are marked transient
// so the caller can distinguish them from validation and state errors.
type BlobRepo struct {
	*s3client.S3Client
	bucket string
}

func NewBlobRepo(s3c *s3client.S3Client, bucket string) *BlobRepo {
	return &BlobRepo{s3c, bucket}
}

func (r *BlobRepo) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return errs.MarkTransient(fmt.Errorf("BlobRepo - UploadBytes - r.Client.PutObject: %w", err))
	}

	return nil
}

func (r *BlobRepo) DownloadBytes(ctx context.Context, key string) ([]byte, error) {
	result, err := r.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errs.MarkTransient(fmt.Errorf("BlobRepo - DownloadBytes - r.Client.GetObject: %w", err))
	}
	defer result.Body.Close()

	b, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errs.MarkTransient(fmt.Errorf("BlobRepo - DownloadBytes - io.ReadAll: %w", err))
	}

	return b, nil
}

func (r *BlobRepo) Delete(ctx context.Context, key string) error {
	_, err := r.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.MarkTransient(fmt.Errorf("BlobRepo - Delete - r.Client.DeleteObject: %w", err))
	}

	return nil
}
