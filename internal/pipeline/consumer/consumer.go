package consumer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/cloudgallery/internal/pipeline"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
)

const (
	objectFinalizeEvent  = "OBJECT_FINALIZE"
	payloadFormatJSONAPI = "JSON_API_V1"
)

type dispatcher interface {
	Dispatch(ctx context.Context, notes []pipeline.Notification) pipeline.BatchResult
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer feeds GCS OBJECT_FINALIZE notifications from Pub/Sub into the
// dispatcher, one message per batch.
type Consumer struct {
	dispatcher   dispatcher
	subscription receiver
	logg         *logger.Logger
}

func NewConsumer(d dispatcher, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("image subscription is required")
	}
	return newConsumer(d, subscription, logg)
}

func newConsumer(d dispatcher, subscription receiver, logg *logger.Logger) (*Consumer, error) {
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if subscription == nil {
		return nil, errors.New("image subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		dispatcher:   d,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack     bool
	nack    bool
	outcome pipeline.Outcome
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	attrs := parseAttributes(msg.Attributes)
	fields := c.buildLogFields(msg.ID, attrs, nil)
	logCtx := c.logg.WithFields(ctx, fields)
	if attrs.EventType != objectFinalizeEvent {
		c.logg.Debug(logCtx, "skipping non-finalize event")
		return processResult{ack: true, outcome: pipeline.OutcomeIgnored}
	}
	if attrs.PayloadFormat != payloadFormatJSONAPI {
		c.logg.Warn(logCtx, "unsupported payload format")
		return processResult{ack: true, outcome: pipeline.OutcomeIgnored}
	}

	payload, err := decodePayload(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true, outcome: pipeline.OutcomeIgnored}
	}

	var gcs gcsPayload
	if err := json.Unmarshal(payload, &gcs); err != nil {
		fields["payload_preview"] = previewBytes(payload, 800)
		fields["payload_len"] = len(payload)
		c.logg.Error(c.logg.WithFields(ctx, fields), "failed to unmarshal payload", err)
		return processResult{ack: true, outcome: pipeline.OutcomeIgnored}
	}

	fields = c.buildLogFields(msg.ID, attrs, &gcs)
	logCtx = c.logg.WithFields(ctx, fields)

	name := firstNonEmpty(gcs.Name, attrs.ObjectID)
	if strings.TrimSpace(name) == "" {
		c.logg.Error(logCtx, "payload missing object name", fmt.Errorf("empty name"))
		return processResult{ack: true, outcome: pipeline.OutcomeIgnored}
	}
	if attrs.ObjectID != "" && gcs.Name != "" && attrs.ObjectID != gcs.Name {
		c.logg.Warn(logCtx, "attribute objectId differs from payload name")
	}

	batch := c.dispatcher.Dispatch(logCtx, []pipeline.Notification{{
		Bucket:   firstNonEmpty(gcs.Bucket, attrs.BucketID),
		Key:      name,
		Metadata: gcs.Metadata,
	}})
	if len(batch.Results) == 0 {
		return processResult{ack: true}
	}
	outcome := batch.Results[0].Outcome
	if batch.Retryable() {
		c.logg.Warn(logCtx, "nacking message for redelivery")
		return processResult{nack: true, outcome: outcome}
	}
	return processResult{ack: true, outcome: outcome}
}

func (c *Consumer) buildLogFields(messageID string, attrs gcsAttributes, payload *gcsPayload) map[string]any {
	fields := map[string]any{
		"message_id": messageID,
		"event_type": attrs.EventType,
		"bucket":     firstNonEmpty(attrs.BucketID, gcsBucket(payload)),
	}
	if payload != nil {
		fields["object_key"] = payload.Name
		fields["generation"] = payload.Generation
	}
	return fields
}

func gcsBucket(p *gcsPayload) string {
	if p == nil {
		return ""
	}
	return p.Bucket
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseAttributes(attrs map[string]string) gcsAttributes {
	return gcsAttributes{
		EventType:     attrs["eventType"],
		BucketID:      attrs["bucketId"],
		ObjectID:      attrs["objectId"],
		PayloadFormat: attrs["payloadFormat"],
	}
}

type gcsAttributes struct {
	EventType     string
	BucketID      string
	ObjectID      string
	PayloadFormat string
}

type gcsPayload struct {
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	Generation  string            `json:"generation"`
	ContentType string            `json:"contentType"`
	Size        string            `json:"size"`
	Metadata    map[string]string `json:"metadata"`
}

// decodePayload accepts both the raw JSON body and a base64 wrapped one.
func decodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("payload empty")
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		return decoded, nil
	}
	return data, nil
}

func previewBytes(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "...(truncated)"
}
