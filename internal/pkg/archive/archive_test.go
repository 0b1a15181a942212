package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/photovault/photovault/internal/pkg/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	cfg := &Config{Prefix: "webhooks/stripe"}
	at := time.Date(2025, 3, 4, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "webhooks/stripe/2025/03/04/evt_1.json", cfg.ObjectKey("evt_1", at))

	assert.Equal(t, "webhooks/stripe/2025/03/04/evt_1.json", (&Config{}).ObjectKey("evt_1", at))
}

func TestLoadConfig(t *testing.T) {
	env.Env = map[string]string{"S3_ARCHIVE_ENABLED": "true", "S3_ACCESS_KEY_ID": "key"}
	defer func() { env.Env = nil }()
	t.Setenv("S3_SECRET_ACCESS_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)

	env.Env["S3_SECRET_ACCESS_KEY"] = "secret"
	env.Env["S3_BUCKET_NAME"] = "pv-archive"
	env.Env["S3_ARCHIVE_PREFIX"] = "/raw/stripe/"
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "raw/stripe", cfg.Prefix)

	env.Env = map[string]string{}
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
}

func TestArchive(t *testing.T) {
	putter := &fakePutter{}
	c := &Client{s3: putter, config: &Config{BucketName: "pv-archive", Prefix: "webhooks/stripe"}}
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, c.Archive(context.Background(), "evt_9", "invoice.paid", []byte(`{"id":"evt_9"}`), at))
	assert.Equal(t, "pv-archive", *putter.input.Bucket)
	assert.Equal(t, "webhooks/stripe/2025/01/02/evt_9.json", *putter.input.Key)
	assert.Equal(t, "invoice.paid", putter.input.Metadata["event-type"])
	assert.Equal(t, `{"id":"evt_9"}`, string(putter.body))

	putter.err = errors.New("access denied")
	assert.ErrorContains(t, c.Archive(context.Background(), "evt_9", "invoice.paid", nil, at), "access denied")
}

func TestNewClientDisabled(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{})
	assert.Error(t, err)
}
