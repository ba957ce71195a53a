package cdn

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ObjectPutter is the subset of *s3.Client the S3 backend needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client stores images in a bucket served by a CDN at publicBaseURL.
type S3Client struct {
	client        ObjectPutter
	bucket        string
	publicBaseURL string
	httpClient    *http.Client
	maxFetchBytes int64
}

// NewS3Client creates an S3 backend. publicBaseURL is the CDN origin that
// serves the bucket, for example a CloudFront distribution.
func NewS3Client(client ObjectPutter, bucket, publicBaseURL string) *S3Client {
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Client{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		httpClient:    newFetchClient(),
		maxFetchBytes: DefaultMaxFetchBytes,
	}
}

func (c *S3Client) Name() string { return "s3" }

// Upload writes src under the deterministic key folder/fileName. URL sources
// are downloaded first since S3 cannot pull remote objects.
func (c *S3Client) Upload(ctx context.Context, src Source, opts Options) (*Result, error) {
	var data []byte
	contentType := src.MIMEType

	switch src.Kind() {
	case "bytes":
		data = src.Bytes
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(src.Base64)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		data = decoded
	case "url":
		fetched, ct, err := fetchURL(ctx, c.httpClient, src.URL, c.maxFetchBytes)
		if err != nil {
			return nil, err
		}
		data = fetched
		if contentType == "" {
			contentType = ct
		}
	default:
		return nil, fmt.Errorf("s3 upload: empty source")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := opts.Key()
	if opts.UseUniqueFileName {
		key = uniqueKey(key)
	}
	input := &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=86400"),
	}
	if !opts.Overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	out, err := c.client.PutObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("S3 PutObject %s: %w", key, err)
	}

	fileID := key
	if out != nil && out.ETag != nil {
		fileID = key + "@" + strings.Trim(*out.ETag, `"`)
	}
	log.Debug().
		Str("bucket", c.bucket).
		Str("key", key).
		Str("source", src.Kind()).
		Int("bytes", len(data)).
		Msg("Uploaded to S3")

	return &Result{
		URL:       c.publicBaseURL + "/" + key,
		FileID:    fileID,
		SizeBytes: int64(len(data)),
	}, nil
}

func uniqueKey(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + "_" + uuid.NewString()[:8] + ext
}
