// Package backend talks to the managed backend's edge functions and object storage over HTTPS.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/errs"
)

// Edge functions called by the application tier.
const (
	FnAdminImpersonate = "admin-impersonate"
	FnNotifyAdmins     = "notify-admins"
	FnValidatePhotos   = "validate-photos"
)

// Error is a non-2xx answer of the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("backend: %d %s", e.Status, e.Message) }

// Unwrap maps HTTP statuses onto the shared sentinels.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusConflict:
		return errs.ErrAlreadyExists
	case http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.ErrValidation
	}
	return nil
}

// Client calls the backend on behalf of the caller in the request context. Requests without a
// caller use the service key.
type Client struct {
	base       *url.URL
	serviceKey string
	http       *http.Client
}

// New creates a client for the backend rooted at baseURL.
func New(baseURL, serviceKey string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: backend url %q needs scheme and host", errs.ErrValidation, baseURL)
	}
	return &Client{base: u, serviceKey: serviceKey, http: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) endpoint(parts ...string) string {
	return c.base.String() + "/" + strings.Join(parts, "/")
}

func (c *Client) authorize(ctx context.Context, req *http.Request) {
	bearer := c.serviceKey
	if t, ok := authctx.TokensFromCtx(ctx); ok && t.AccessToken != "" {
		bearer = t.AccessToken
	}
	req.Header.Set("apikey", c.serviceKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Message != "":
			msg = body.Message
		case body.Error != "":
			msg = body.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}

// Invoke calls an edge function with a JSON body and decodes its JSON answer into out (when
// non-nil).
func (c *Client) Invoke(ctx context.Context, name string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("functions", "v1", name), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(ctx, req)
	if err := c.do(req, out); err != nil {
		return fmt.Errorf("function %s: %w", name, err)
	}
	return nil
}
