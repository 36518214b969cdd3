package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/cloudgallery/api/responses"
	"github.com/angelmondragon/cloudgallery/api/validators"
	"github.com/angelmondragon/cloudgallery/internal/pipeline"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
)

// Dispatcher is the pipeline entry point used by the webhook transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, notes []pipeline.Notification) pipeline.BatchResult
}

type s3Event struct {
	Records []s3Record `json:"Records"`
}

type s3Record struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key          string            `json:"key"`
			UserMetadata map[string]string `json:"userMetadata"`
		} `json:"object"`
	} `json:"s3"`
}

// S3Events accepts S3 or MinIO bucket notifications. It answers 503 when any
// record should be redelivered; records that already finished become no-ops
// on the next delivery.
func S3Events(d Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event s3Event
		if err := validators.DecodeOptionalJSONBody(r, &event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results := make([]pipeline.Result, len(event.Records))
		notes := make([]pipeline.Notification, 0, len(event.Records))
		positions := make([]int, 0, len(event.Records))
		for i, rec := range event.Records {
			key := decodeObjectKey(rec.S3.Object.Key)
			if !isObjectCreated(rec.EventName) {
				results[i] = pipeline.Result{Key: key, Outcome: pipeline.OutcomeIgnored}
				continue
			}
			notes = append(notes, pipeline.Notification{
				Bucket:   rec.S3.Bucket.Name,
				Key:      key,
				Metadata: userMetadata(rec.S3.Object.UserMetadata),
			})
			positions = append(positions, i)
		}

		batch := d.Dispatch(r.Context(), notes)
		for j, res := range batch.Results {
			results[positions[j]] = res
		}
		out := pipeline.BatchResult{Results: results}

		status := http.StatusOK
		if out.Retryable() {
			status = http.StatusServiceUnavailable
			if logg != nil {
				logg.Error(r.Context(), "event batch needs redelivery", out.Err())
			}
		}
		responses.WriteJSON(w, status, out)
	}
}

// S3 form-encodes keys in notifications.
func decodeObjectKey(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func isObjectCreated(eventName string) bool {
	if eventName == "" {
		return true
	}
	name := strings.TrimPrefix(eventName, "s3:")
	return strings.HasPrefix(name, "ObjectCreated:")
}

// userMetadata strips the x-amz-meta- prefix MinIO keeps on metadata keys.
func userMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		lower := strings.ToLower(k)
		out[strings.TrimPrefix(lower, "x-amz-meta-")] = v
	}
	return out
}
