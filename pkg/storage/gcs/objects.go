package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/angelmondragon/cloudgallery/pkg/storage"
)

// GetObject downloads an object from the default bucket.
func (c *Client) GetObject(ctx context.Context, key string) (*storage.Object, error) {
	if key == "" {
		return nil, errors.New("object key is required")
	}
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
		c.base(), url.PathEscape(c.defaultBucket), url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(ctx, c.logg, resp.Body, "gcs: closing response body failed")

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	default:
		return nil, statusError("gcs get object failed", resp)
	}

	body, err := storage.ReadBody(resp.Body, key, storage.MaxObjectBytes)
	if err != nil {
		return nil, err
	}
	return &storage.Object{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// PutObject uploads body with its metadata in a single multipart request.
func (c *Client) PutObject(ctx context.Context, key string, body []byte, opts storage.PutOptions) error {
	if key == "" {
		return errors.New("object key is required")
	}
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta, err := json.Marshal(struct {
		Name        string            `json:"name"`
		ContentType string            `json:"contentType"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}{Name: key, ContentType: contentType, Metadata: opts.Metadata})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return err
	}
	if _, err := metaPart.Write(meta); err != nil {
		return err
	}
	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {contentType}})
	if err != nil {
		return err
	}
	if _, err := mediaPart.Write(body); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	u := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=multipart",
		c.base(), url.PathEscape(c.defaultBucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer closeBody(ctx, c.logg, resp.Body, "gcs: closing response body failed")

	if resp.StatusCode != http.StatusOK {
		return statusError("gcs put object failed", resp)
	}
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c == nil || c.tokenSource == nil {
		return "", errors.New("gcs client not initialized")
	}
	return c.tokenSource.Token(ctx)
}
