package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/erp/agreementclone/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestNewS3Mirror_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3Mirror(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3Mirror(ctx, &config.StorageConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("half a key pair returns error", func(t *testing.T) {
		_, err := NewS3Mirror(ctx, &config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("static credentials and custom endpoint", func(t *testing.T) {
		m, err := NewS3Mirror(ctx, &config.StorageConfig{
			Bucket:       "clones",
			Endpoint:     "localhost:9000",
			AccessKey:    "k",
			SecretKey:    "s",
			UsePathStyle: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "clones", m.Bucket())
	})
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "", endpointURL("", true))
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", endpointURL("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", endpointURL("http://minio:9000", true))
}

func TestS3MirrorPut(t *testing.T) {
	ctx := context.Background()

	t.Run("prefixes keys", func(t *testing.T) {
		fake := &fakeS3{}
		m, err := NewS3Mirror(ctx, &config.StorageConfig{Bucket: "clones", Prefix: "/runs/"},
			WithClient(fake), WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)

		require.NoError(t, m.Put(ctx, "AGR-1/agreement_object.json", []byte(`{"id":"AGR-1"}`), "application/json"))
		require.Len(t, fake.inputs, 1)
		assert.Equal(t, "clones", aws.ToString(fake.inputs[0].Bucket))
		assert.Equal(t, "runs/AGR-1/agreement_object.json", aws.ToString(fake.inputs[0].Key))
		assert.Equal(t, "application/json", aws.ToString(fake.inputs[0].ContentType))
		assert.Equal(t, `{"id":"AGR-1"}`, fake.bodies[0])
	})

	t.Run("no prefix", func(t *testing.T) {
		m, err := NewS3Mirror(ctx, &config.StorageConfig{Bucket: "clones"}, WithClient(&fakeS3{}))
		require.NoError(t, err)
		assert.Equal(t, "AGR-1/x.json", m.Key("AGR-1/x.json"))
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		cause := errors.New("access denied")
		m, err := NewS3Mirror(ctx, &config.StorageConfig{Bucket: "clones"}, WithClient(&fakeS3{err: cause}))
		require.NoError(t, err)
		err = m.Put(ctx, "AGR-1/x.json", nil, "application/json")
		assert.ErrorIs(t, err, cause)
		assert.Error(t, m.Put(ctx, "", nil, ""))
	})
}
