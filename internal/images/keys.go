package images

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// ObjectExtension is appended to every raw and derivative key.
	ObjectExtension = ".jpg"

	DefaultDerivativePrefix = "thumb/"

	// DerivativeMetadataKey tags every derivative written by the pipeline.
	DerivativeMetadataKey   = "gallery-derivative"
	DerivativeMetadataValue = "true"

	DerivativeContentType = "image/jpeg"
)

// ErrUnrecognizedKey is returned for object keys outside the naming scheme.
var ErrUnrecognizedKey = errors.New("object key does not belong to an image")

type KeyKind int

const (
	KeyKindRaw KeyKind = iota + 1
	KeyKindDerivative
)

func (k KeyKind) String() string {
	switch k {
	case KeyKindRaw:
		return "raw"
	case KeyKindDerivative:
		return "derivative"
	default:
		return "unknown"
	}
}

// ObjectKey is a parsed blob key. ImageID may be uuid.Nil for derivative keys
// whose suffix does not parse.
type ObjectKey struct {
	Key     string
	Kind    KeyKind
	ImageID uuid.UUID
}

func (k ObjectKey) IsDerivative() bool {
	return k.Kind == KeyKindDerivative
}

// KeyScheme maps image ids to raw and derivative object keys.
type KeyScheme struct {
	derivativePrefix string
}

func NewKeyScheme(derivativePrefix string) KeyScheme {
	prefix := strings.TrimLeft(strings.TrimSpace(derivativePrefix), "/")
	if prefix == "" {
		prefix = DefaultDerivativePrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return KeyScheme{derivativePrefix: prefix}
}

func (s KeyScheme) DerivativePrefix() string {
	return s.derivativePrefix
}

func (s KeyScheme) RawKey(id uuid.UUID) string {
	return id.String() + ObjectExtension
}

func (s KeyScheme) DerivativeKey(id uuid.UUID) string {
	return s.derivativePrefix + id.String() + ObjectExtension
}

// Parse classifies key. Derivative keys are always recognized; raw keys must
// be exactly "<uuid>.jpg".
func (s KeyScheme) Parse(key string) (ObjectKey, error) {
	if strings.HasPrefix(key, s.derivativePrefix) {
		out := ObjectKey{Key: key, Kind: KeyKindDerivative}
		if id, err := idFromName(strings.TrimPrefix(key, s.derivativePrefix)); err == nil {
			out.ImageID = id
		}
		return out, nil
	}

	id, err := idFromName(key)
	if err != nil {
		return ObjectKey{}, fmt.Errorf("%w: %q", ErrUnrecognizedKey, key)
	}
	return ObjectKey{Key: key, Kind: KeyKindRaw, ImageID: id}, nil
}

// IsDerivativeMetadata reports whether object metadata carries the
// derivative tag.
func IsDerivativeMetadata(metadata map[string]string) bool {
	for k, v := range metadata {
		if strings.EqualFold(k, DerivativeMetadataKey) && strings.EqualFold(v, DerivativeMetadataValue) {
			return true
		}
	}
	return false
}

// DerivativeMetadata returns the metadata attached to derivative writes.
func DerivativeMetadata() map[string]string {
	return map[string]string{DerivativeMetadataKey: DerivativeMetadataValue}
}

func idFromName(name string) (uuid.UUID, error) {
	if strings.Contains(name, "/") || !strings.HasSuffix(name, ObjectExtension) {
		return uuid.Nil, ErrUnrecognizedKey
	}
	raw := strings.TrimSuffix(name, ObjectExtension)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, err
	}
	// uuid.Parse accepts urn and braced forms; keys only use the canonical one.
	if id.String() != strings.ToLower(raw) {
		return uuid.Nil, ErrUnrecognizedKey
	}
	return id, nil
}
