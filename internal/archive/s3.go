package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ecowatch.org/internal/domain"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Images stores image sensor payloads in an S3 bucket.
type Images struct {
	client putObjectAPI
	bucket string
}

// NewImages loads the default AWS credential chain for region. A non-empty
// endpoint selects an S3-compatible server with path-style addressing.
func NewImages(ctx context.Context, bucket, region, endpoint string) (*Images, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Images{client: client, bucket: bucket}, nil
}

// ImageKey is the object key for an image taken by sensorID at ts.
func ImageKey(sensorID string, ts time.Time, contentType string) string {
	return fmt.Sprintf("images/%s/%s%s", sensorID, ts.UTC().Format("20060102T150405.000000Z"), extension(contentType))
}

func extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// PutImage uploads data and returns its key.
func (s *Images) PutImage(ctx context.Context, sensorID string, ts time.Time, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := ImageKey(sensorID, ts, contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"sensor-id":   sensorID,
			"captured-at": ts.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: upload image: %v", domain.ErrStoreUnavailable, err)
	}
	return key, nil
}
