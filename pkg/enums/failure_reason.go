package enums

// FailureReason records why an image record settled in FAILED.
type FailureReason string

const (
	FailureReasonFetch             FailureReason = "FETCH_ERROR"
	FailureReasonDecode            FailureReason = "DECODE_ERROR"
	FailureReasonLabelService      FailureReason = "LABEL_SERVICE_ERROR"
	FailureReasonRetriesExhausted  FailureReason = "RETRIES_EXHAUSTED"
	FailureReasonIssuerUnavailable FailureReason = "ISSUER_UNAVAILABLE"
	FailureReasonUploadExpired     FailureReason = "UPLOAD_EXPIRED"
)

func (r FailureReason) String() string {
	return string(r)
}
