package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// objectPutter is the part of the S3 API the archive needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client stores raw webhook payloads in an S3 bucket.
type Client struct {
	s3     objectPutter
	config *Config
}

// NewClient creates an S3-backed archive client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("webhook archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible stores (MinIO, B2) expect path-style URLs
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] Webhook payloads archived to s3://%s/%s", cfg.BucketName, cfg.Prefix)
	return &Client{s3: s3Client, config: cfg}, nil
}

// Archive uploads one raw payload. The bucket key is derived from the event id,
// so redeliveries overwrite the same object.
func (c *Client) Archive(ctx context.Context, eventID, eventType string, payload []byte, receivedAt time.Time) error {
	key := c.config.ObjectKey(eventID, receivedAt)
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-type":  eventType,
			"received-at": receivedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("archive event %s to %s: %w", eventID, key, err)
	}
	log.Debugf("[Archive] Stored %s as s3://%s/%s", eventID, c.config.BucketName, key)
	return nil
}
