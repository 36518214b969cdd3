package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := visionapi.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc)
}

func TestDetectLabelsKeepsRankedOrderAndCap(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "images:annotate") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req visionapi.BatchAnnotateImagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Requests) != 1 {
			t.Errorf("expected one request, got %d", len(req.Requests))
		} else {
			got := req.Requests[0]
			decoded, _ := base64.StdEncoding.DecodeString(got.Image.Content)
			if string(decoded) != "jpeg-bytes" {
				t.Errorf("unexpected image content %q", decoded)
			}
			if got.Features[0].Type != "LABEL_DETECTION" || got.Features[0].MaxResults != 5 {
				t.Errorf("unexpected feature %+v", got.Features[0])
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responses":[{"labelAnnotations":[
			{"description":"Cat","score":0.98},
			{"description":"Whiskers","score":0.91},
			{"description":"Pet","score":0.90},
			{"description":"Fur","score":0.80},
			{"description":"Mammal","score":0.75},
			{"description":"Carnivore","score":0.70}
		]}]}`))
	})

	got, err := client.DetectLabels(context.Background(), []byte("jpeg-bytes"), 5)
	if err != nil {
		t.Fatalf("DetectLabels: %v", err)
	}
	want := []string{"Cat", "Whiskers", "Pet", "Fur", "Mammal"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDetectLabelsNoAnnotations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responses":[{}]}`))
	})

	got, err := client.DetectLabels(context.Background(), []byte("x"), 5)
	if err != nil {
		t.Fatalf("DetectLabels: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil labels, got %#v", got)
	}
}

func TestDetectLabelsErrors(t *testing.T) {
	perImage := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`))
	})
	if _, err := perImage.DetectLabels(context.Background(), []byte("x"), 5); err == nil || !strings.Contains(err.Error(), "Bad image data") {
		t.Fatalf("expected per-image error, got %v", err)
	}

	transport := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"unavailable"}}`, http.StatusServiceUnavailable)
	})
	if _, err := transport.DetectLabels(context.Background(), []byte("x"), 5); err == nil {
		t.Fatal("expected transport error")
	}

	if _, err := transport.DetectLabels(context.Background(), nil, 5); err == nil {
		t.Fatal("expected empty image error")
	}
}
