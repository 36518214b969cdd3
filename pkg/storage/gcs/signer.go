package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	signingHost      = "storage.googleapis.com"
	signingAlgorithm = "GOOG4-RSA-SHA256"
	maxSignedTTL     = 7 * 24 * time.Hour
)

// SignUpload returns a V4 signed PUT URL for key in the default bucket.
func (c *Client) SignUpload(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return c.SignedURL("", key, contentType, ttl)
}

// SignedURL builds a V4 signed PUT URL scoped to exactly one object. When
// contentType is set it becomes a signed header, so uploads with any other
// Content-Type are rejected by the store.
func (c *Client) SignedURL(bucket, object, contentType string, expires time.Duration) (string, error) {
	if c == nil || c.serviceAccount == nil || c.serviceAccount.privateKey == nil {
		return "", errors.New("gcs signer requires service account credentials")
	}
	bucket = c.bucketOrDefault(bucket)
	if bucket == "" {
		return "", errors.New("bucket is required")
	}
	if object == "" {
		return "", errors.New("object is required")
	}
	if expires <= 0 || expires > maxSignedTTL {
		return "", fmt.Errorf("expiry must be within (0, %s]", maxSignedTTL)
	}

	now := c.clock().UTC()
	datestamp := now.Format("20060102")
	timestamp := now.Format("20060102T150405Z")
	credentialScope := datestamp + "/auto/storage/goog4_request"

	headers := map[string]string{"host": signingHost}
	if contentType != "" {
		headers["content-type"] = contentType
	}
	headerNames := make([]string, 0, len(headers))
	for name := range headers {
		headerNames = append(headerNames, name)
	}
	sort.Strings(headerNames)

	var canonicalHeaders strings.Builder
	for _, name := range headerNames {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteString(":")
		canonicalHeaders.WriteString(strings.TrimSpace(headers[name]))
		canonicalHeaders.WriteString("\n")
	}
	signedHeaders := strings.Join(headerNames, ";")

	query := url.Values{}
	query.Set("X-Goog-Algorithm", signingAlgorithm)
	query.Set("X-Goog-Credential", c.serviceAccount.clientEmail+"/"+credentialScope)
	query.Set("X-Goog-Date", timestamp)
	query.Set("X-Goog-Expires", strconv.FormatInt(int64(expires/time.Second), 10))
	query.Set("X-Goog-SignedHeaders", signedHeaders)
	canonicalQuery := query.Encode()

	canonicalURI := "/" + bucket + "/" + escapeObjectPath(object)
	canonicalRequest := strings.Join([]string{
		"PUT",
		canonicalURI,
		canonicalQuery,
		canonicalHeaders.String(),
		signedHeaders,
		"UNSIGNED-PAYLOAD",
	}, "\n")

	requestHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		timestamp,
		credentialScope,
		hex.EncodeToString(requestHash[:]),
	}, "\n")

	digest := sha256.Sum256([]byte(stringToSign))
	signature, err := rsa.SignPKCS1v15(rand.Reader, c.serviceAccount.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing url: %w", err)
	}

	return "https://" + signingHost + canonicalURI + "?" + canonicalQuery +
		"&X-Goog-Signature=" + hex.EncodeToString(signature), nil
}

func escapeObjectPath(object string) string {
	segments := strings.Split(object, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
