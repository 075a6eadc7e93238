package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (p *recordingPutter) PutObjectWithContext(_ aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	p.inputs = append(p.inputs, input)
	p.bodies = append(p.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3WebhookArchive(t *testing.T) {
	putter := &recordingPutter{}
	archive := &S3WebhookArchive{
		s3Client: putter,
		bucket:   "idea-market-webhooks",
		now:      func() time.Time { return time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC) },
	}

	payload := []byte(`{"id":"evt_1"}`)
	require.NoError(t, archive.Archive(context.Background(), "card", "evt_1", payload))

	require.Len(t, putter.inputs, 1)
	input := putter.inputs[0]
	assert.Equal(t, "idea-market-webhooks", aws.StringValue(input.Bucket))
	assert.Equal(t, "webhooks/card/2024/03/01/evt_1.json", aws.StringValue(input.Key))
	assert.Equal(t, s3.ServerSideEncryptionAes256, aws.StringValue(input.ServerSideEncryption))
	assert.Equal(t, payload, putter.bodies[0])
}

func TestS3WebhookArchiveError(t *testing.T) {
	archive := &S3WebhookArchive{
		s3Client: &recordingPutter{err: errors.New("access denied")},
		bucket:   "b",
		now:      time.Now,
	}
	assert.Error(t, archive.Archive(context.Background(), "redirect", "order-1:DONE", []byte(`{}`)))
}
