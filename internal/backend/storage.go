package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Storage buckets.
const (
	BucketAvatars          = "avatars"
	BucketVerificationDocs = "verification-docs"
	BucketListingPhotos    = "listing-photos"
)

// Upload stores an object, replacing any existing one at the same path, and returns its public
// URL.
func (c *Client) Upload(ctx context.Context, bucket, objectPath, contentType string, body io.Reader) (string, error) {
	objectPath = strings.TrimLeft(objectPath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("storage", "v1", "object", bucket, escapePath(objectPath)), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	c.authorize(ctx, req)
	if err := c.do(req, nil); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, objectPath, err)
	}
	return c.PublicURL(bucket, objectPath), nil
}

// PublicURL is the address objects of public buckets are served from.
func (c *Client) PublicURL(bucket, objectPath string) string {
	return c.endpoint("storage", "v1", "object", "public", bucket, escapePath(strings.TrimLeft(objectPath, "/")))
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
