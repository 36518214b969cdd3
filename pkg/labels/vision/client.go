package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"github.com/angelmondragon/cloudgallery/pkg/config"
	"github.com/angelmondragon/cloudgallery/pkg/labels"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
)

const featureLabelDetection = "LABEL_DETECTION"

// Client calls Cloud Vision label detection.
type Client struct {
	svc *visionapi.Service
}

func NewClient(ctx context.Context, cfg config.LabelsConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	opts := []option.ClientOption{}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	if gcp.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(gcp.ProjectID))
	}

	svc, err := visionapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision service: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "vision client initialized")
	}
	return &Client{svc: svc}, nil
}

// NewWithService wraps an existing service handle.
func NewWithService(svc *visionapi.Service) *Client {
	return &Client{svc: svc}
}

// DetectLabels returns up to maxLabels label descriptions in the service's ranked
// order.
func (c *Client) DetectLabels(ctx context.Context, image []byte, maxLabels int) ([]string, error) {
	if len(image) == 0 {
		return nil, errors.New("image bytes are required")
	}

	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image:    &visionapi.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*visionapi.Feature{{Type: featureLabelDetection, MaxResults: int64(maxLabels)}},
		}},
	}

	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return []string{}, nil
	}

	first := resp.Responses[0]
	if first.Error != nil && first.Error.Code != 0 {
		return nil, fmt.Errorf("vision annotate: code %d: %s", first.Error.Code, first.Error.Message)
	}

	names := make([]string, 0, len(first.LabelAnnotations))
	for _, annotation := range first.LabelAnnotations {
		names = append(names, annotation.Description)
	}
	return labels.Collect(names, maxLabels), nil
}
