package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestReadBodyWithinLimit(t *testing.T) {
	body, err := ReadBody(strings.NewReader("abcd"), "k", 4)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if string(body) != "abcd" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestReadBodyRejectsOversizedObject(t *testing.T) {
	_, err := ReadBody(strings.NewReader("abcde"), "raw/big.jpg", 4)
	if !errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("expected ErrObjectTooLarge, got %v", err)
	}
	if errors.Is(err, ErrObjectNotFound) {
		t.Fatal("oversized object must not look like a missing one")
	}
	if !strings.Contains(err.Error(), "raw/big.jpg") {
		t.Fatalf("error should name the key: %v", err)
	}
}
