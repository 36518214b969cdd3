package images

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestKeySchemeBuildsKeys(t *testing.T) {
	id := uuid.MustParse("0b8e4b5c-8f7e-4a3c-9a41-0c4f1b2a6d10")
	keys := NewKeyScheme("thumb")

	if got := keys.RawKey(id); got != "0b8e4b5c-8f7e-4a3c-9a41-0c4f1b2a6d10.jpg" {
		t.Fatalf("unexpected raw key %q", got)
	}
	if got := keys.DerivativeKey(id); got != "thumb/0b8e4b5c-8f7e-4a3c-9a41-0c4f1b2a6d10.jpg" {
		t.Fatalf("unexpected derivative key %q", got)
	}
	if NewKeyScheme("").DerivativePrefix() != DefaultDerivativePrefix {
		t.Fatal("empty prefix should fall back to the default")
	}
}

func TestKeySchemeParse(t *testing.T) {
	keys := NewKeyScheme("thumb/")
	id := uuid.New()

	tests := []struct {
		name       string
		key        string
		wantErr    bool
		derivative bool
		wantID     uuid.UUID
	}{
		{name: "raw", key: id.String() + ".jpg", wantID: id},
		{name: "derivative", key: "thumb/" + id.String() + ".jpg", derivative: true, wantID: id},
		{name: "derivative with odd name", key: "thumb/whatever.png", derivative: true, wantID: uuid.Nil},
		{name: "wrong extension", key: id.String() + ".png", wantErr: true},
		{name: "nested raw", key: "uploads/" + id.String() + ".jpg", wantErr: true},
		{name: "not a uuid", key: "cat.jpg", wantErr: true},
		{name: "braced uuid", key: "{" + id.String() + "}.jpg", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keys.Parse(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrUnrecognizedKey) {
					t.Fatalf("expected ErrUnrecognizedKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.IsDerivative() != tt.derivative {
				t.Fatalf("expected derivative=%v, got kind %s", tt.derivative, got.Kind)
			}
			if got.ImageID != tt.wantID {
				t.Fatalf("expected id %s, got %s", tt.wantID, got.ImageID)
			}
		})
	}
}

func TestIsDerivativeMetadata(t *testing.T) {
	if !IsDerivativeMetadata(DerivativeMetadata()) {
		t.Fatal("derivative metadata must be recognized")
	}
	if !IsDerivativeMetadata(map[string]string{"Gallery-Derivative": "TRUE"}) {
		t.Fatal("metadata match should be case-insensitive")
	}
	if IsDerivativeMetadata(map[string]string{"gallery-derivative": "false"}) {
		t.Fatal("false flag must not match")
	}
	if IsDerivativeMetadata(nil) {
		t.Fatal("nil metadata must not match")
	}
}
