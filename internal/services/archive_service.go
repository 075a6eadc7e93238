// internal/services/archive_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/javajoker/idea-market/internal/config"
)

// WebhookArchive keeps the raw bytes of authenticated webhooks for reconciliation.
type WebhookArchive interface {
	Archive(ctx context.Context, gateway, eventID string, payload []byte) error
}

type objectPutter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

type S3WebhookArchive struct {
	s3Client objectPutter
	bucket   string
	now      func() time.Time
}

func NewS3WebhookArchive(cfg config.AWSConfig) (*S3WebhookArchive, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3WebhookArchive{
		s3Client: s3.New(sess),
		bucket:   cfg.WebhookArchiveBucket,
		now:      time.Now,
	}, nil
}

func (a *S3WebhookArchive) Archive(ctx context.Context, gateway, eventID string, payload []byte) error {
	key := a.objectKey(gateway, eventID)
	_, err := a.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(payload),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return fmt.Errorf("failed to archive webhook %s: %w", key, err)
	}
	return nil
}

func (a *S3WebhookArchive) objectKey(gateway, eventID string) string {
	return fmt.Sprintf("webhooks/%s/%s/%s.json", gateway, a.now().UTC().Format("2006/01/02"), eventID)
}

type noopArchive struct{}

func (noopArchive) Archive(context.Context, string, string, []byte) error { return nil }
