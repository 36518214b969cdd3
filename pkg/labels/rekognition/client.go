package rekognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/angelmondragon/cloudgallery/pkg/config"
	"github.com/angelmondragon/cloudgallery/pkg/labels"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
)

// Client calls Amazon Rekognition DetectLabels.
type Client struct {
	api *rekognition.Client
}

// NewClient shares region and credentials with the S3 settings; the labels
// endpoint override is for local emulators.
func NewClient(ctx context.Context, cfg config.LabelsConfig, awsCfg config.S3Config, logg *logger.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.AccessKeyID != "" && awsCfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, ""),
		))
	}
	loaded, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	api := rekognition.NewFromConfig(loaded, func(o *rekognition.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	if logg != nil {
		logg.Info(ctx, "rekognition client initialized")
	}
	return &Client{api: api}, nil
}

func (c *Client) DetectLabels(ctx context.Context, image []byte, maxLabels int) ([]string, error) {
	if len(image) == 0 {
		return nil, errors.New("image bytes are required")
	}
	input := &rekognition.DetectLabelsInput{
		Image: &types.Image{Bytes: image},
	}
	if maxLabels > 0 {
		input.MaxLabels = aws.Int32(int32(maxLabels))
	}

	out, err := c.api.DetectLabels(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("rekognition detect labels: %w", err)
	}

	names := make([]string, 0, len(out.Labels))
	for _, label := range out.Labels {
		names = append(names, aws.ToString(label.Name))
	}
	return labels.Collect(names, maxLabels), nil
}
