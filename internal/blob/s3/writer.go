package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// multipartThreshold switches uploads to the multipart path. Monthly archive
// files rarely reach it, but a hot season can.
const multipartThreshold = 8 * 1024 * 1024

// minPartSize is S3's floor for multipart upload parts (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Uploader writes archive objects to the client's bucket, picking the single
// or multipart path by payload size.
type Uploader struct {
	client *s3.Client
	bucket string
}

// NewUploader creates an uploader bound to the client's configured bucket.
func NewUploader(c *Client) *Uploader {
	return &Uploader{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Upload writes one archive object. Payloads past the multipart threshold go
// through the upload manager so one request does not stay open for minutes.
func (u *Uploader) Upload(ctx context.Context, key string, payload []byte, contentType string) error {
	if len(payload) > multipartThreshold {
		return u.multipart(ctx, key, payload)
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

func (u *Uploader) multipart(ctx context.Context, key string, payload []byte) error {
	up := manager.NewUploader(u.client, func(m *manager.Uploader) {
		m.PartSize = minPartSize
	})
	_, err := up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
	}
	return nil
}
