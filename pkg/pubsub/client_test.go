package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/cloudgallery/pkg/config"
)

func TestSubscriptionResourceName(t *testing.T) {
	c := &Client{projectID: "proj"}

	cases := map[string]string{
		"":                                      "",
		"  ":                                    "",
		"image-finalize":                        "projects/proj/subscriptions/image-finalize",
		" image-finalize ":                      "projects/proj/subscriptions/image-finalize",
		"projects/other/subscriptions/uploaded": "projects/other/subscriptions/uploaded",
	}
	for in, want := range cases {
		if got := c.subscriptionResourceName(in); got != want {
			t.Fatalf("subscriptionResourceName(%q) = %q, want %q", in, got, want)
		}
	}

	noProject := &Client{}
	if got := noProject.subscriptionResourceName("image-finalize"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Subscription("x") != nil {
		t.Fatal("expected nil subscriber from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error from nil client")
	}
}

func TestNewClient_RequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{ImageSubscription: "s"}, nil)
	if err != errProjectIDRequired {
		t.Fatalf("expected errProjectIDRequired, got %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	if got := clientOptions(config.GCPConfig{}); len(got) != 0 {
		t.Fatalf("expected no options, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}); len(got) != 1 {
		t.Fatalf("expected one option for inline credentials, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds.json"}); len(got) != 1 {
		t.Fatalf("expected one option for credentials file, got %d", len(got))
	}
}
