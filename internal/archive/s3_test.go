package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecowatch.org/internal/domain"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestPutImageUploadsUnderSensorPrefix(t *testing.T) {
	fake := &fakeS3{}
	store := &Images{client: fake, bucket: "eco-images"}
	ts := time.Date(2026, 4, 1, 10, 0, 0, 123000, time.UTC)

	key, err := store.PutImage(context.Background(), "s1", ts, []byte{0xff, 0xd8}, "")
	require.NoError(t, err)
	assert.Equal(t, "images/s1/20260401T100000.000123Z.jpg", key)
	assert.Equal(t, "eco-images", aws.ToString(fake.in.Bucket))
	assert.Equal(t, key, aws.ToString(fake.in.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(fake.in.ContentType))
	assert.Equal(t, []byte{0xff, 0xd8}, fake.body)
	assert.Equal(t, "s1", fake.in.Metadata["sensor-id"])
}

func TestImageKeyExtension(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	assert.Equal(t, "images/s9/20260102T020405.000000Z.png", ImageKey("s9", ts, "image/png"))
	assert.Equal(t, "images/s9/20260102T020405.000000Z.jpg", ImageKey("s9", ts, "application/octet-stream"))
}

func TestPutImageFailureIsUnavailable(t *testing.T) {
	store := &Images{client: &fakeS3{err: errors.New("connection reset")}, bucket: "b"}
	_, err := store.PutImage(context.Background(), "s1", time.Now(), []byte("x"), "image/png")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
