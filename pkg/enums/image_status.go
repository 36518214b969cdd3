package enums

import "fmt"

// ImageStatus describes the lifecycle state of an image record.
type ImageStatus string

const (
	ImageStatusUploading ImageStatus = "UPLOADING"
	ImageStatusReady     ImageStatus = "READY"
	ImageStatusFailed    ImageStatus = "FAILED"
)

var validImageStatuses = []ImageStatus{
	ImageStatusUploading,
	ImageStatusReady,
	ImageStatusFailed,
}

// String returns the literal string for the status.
func (s ImageStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s ImageStatus) IsValid() bool {
	for _, candidate := range validImageStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s ImageStatus) IsTerminal() bool {
	return s == ImageStatusReady || s == ImageStatusFailed
}

// ParseImageStatus converts raw input into an ImageStatus.
func ParseImageStatus(value string) (ImageStatus, error) {
	for _, candidate := range validImageStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid image status %q", value)
}
