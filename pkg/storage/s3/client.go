package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/angelmondragon/cloudgallery/pkg/config"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/angelmondragon/cloudgallery/pkg/storage"
)

const (
	pingTimeout     = 5 * time.Second
	unsignedPayload = "UNSIGNED-PAYLOAD"
)

// Client is the S3 (or S3-compatible) blob store adapter.
type Client struct {
	api       *s3.Client
	creds     aws.CredentialsProvider
	signer    *v4.Signer
	region    string
	endpoint  *url.URL
	pathStyle bool
	bucket    string
}

// NewClient builds an S3 client. Static credentials are used when both keys
// are configured, otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg config.S3Config, blob config.BlobConfig, logg *logger.Logger) (*Client, error) {
	if blob.Bucket == "" {
		return nil, errors.New("s3 bucket name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var endpoint *url.URL
	if cfg.Endpoint != "" {
		endpoint, err = url.Parse(cfg.Endpoint)
		if err != nil || endpoint.Host == "" {
			return nil, fmt.Errorf("invalid s3 endpoint %q", cfg.Endpoint)
		}
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", blob.Bucket), "s3 client initialized")
	}

	return &Client{
		api:   api,
		creds: awsCfg.Credentials,
		signer: v4.NewSigner(func(o *v4.SignerOptions) {
			o.DisableURIPathEscaping = true
		}),
		region:    awsCfg.Region,
		endpoint:  endpoint,
		pathStyle: cfg.UsePathStyle,
		bucket:    blob.Bucket,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// SignUpload returns a presigned PUT URL for key. A non-empty contentType is
// a signed header, so the upload must send exactly that Content-Type.
func (c *Client) SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}
	if ttl <= 0 {
		return "", errors.New("expiry must be positive")
	}
	if c.creds == nil {
		return "", errors.New("no aws credentials configured")
	}

	target := c.objectURL(key)
	q := target.Query()
	q.Set("X-Amz-Expires", strconv.FormatInt(int64(ttl/time.Second), 10))
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieving aws credentials: %w", err)
	}
	signed, _, err := c.signer.PresignHTTP(ctx, creds, req, unsignedPayload, "s3", c.region, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("presigning put: %w", err)
	}
	return signed, nil
}

// objectURL addresses key in the bucket, honoring a custom endpoint and
// path-style addressing.
func (c *Client) objectURL(key string) *url.URL {
	scheme, host := "https", "s3."+c.region+".amazonaws.com"
	if c.endpoint != nil {
		scheme, host = c.endpoint.Scheme, c.endpoint.Host
	}
	path := "/" + strings.TrimPrefix(key, "/")
	if c.pathStyle {
		path = "/" + c.bucket + path
	} else {
		host = c.bucket + "." + host
	}
	return &url.URL{Scheme: scheme, Host: host, Path: path}
}

func (c *Client) GetObject(ctx context.Context, key string) (*storage.Object, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
		}
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()

	body, err := storage.ReadBody(out.Body, key, storage.MaxObjectBytes)
	if err != nil {
		return nil, err
	}
	return &storage.Object{Body: body, ContentType: aws.ToString(out.ContentType)}, nil
}

func (c *Client) PutObject(ctx context.Context, key string, body []byte, opts storage.PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	_, err := c.api.PutObject(ctx, input)
	return err
}

// Ping checks that the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	return err
}
