// Package client is a typed HTTP client for the gophlockd API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/GophLock/internal/gate"
	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/pinlock"
	"github.com/atinyakov/GophLock/internal/service"
)

// APIError is a non-2xx reply from the daemon. View holds the raw screen
// state sent with the error, if any.
type APIError struct {
	Status  int
	Message string
	View    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %s (%d)", e.Message, e.Status)
}

// Client talks to one daemon.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client for baseURL with a short timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends in as JSON and decodes the reply into out. Non-2xx replies
// become *APIError; 202 Accepted is a success.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string          `json:"error"`
			View  json.RawMessage `json:"view"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.View = payload.View
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) PinView(ctx context.Context) (pinlock.View, error) {
	var v pinlock.View
	err := c.do(ctx, http.MethodGet, "/api/pin", nil, &v)
	return v, err
}

func (c *Client) PressDigits(ctx context.Context, digits string) (pinlock.View, error) {
	var v pinlock.View
	err := c.do(ctx, http.MethodPost, "/api/pin/digits", map[string]string{"digit": digits}, &v)
	return v, err
}

func (c *Client) DeleteDigit(ctx context.Context, all bool) (pinlock.View, error) {
	path := "/api/pin/digits"
	if all {
		path += "?all=true"
	}
	var v pinlock.View
	err := c.do(ctx, http.MethodDelete, path, nil, &v)
	return v, err
}

func (c *Client) Submit(ctx context.Context) (service.SubmitResult, error) {
	var res service.SubmitResult
	err := c.do(ctx, http.MethodPost, "/api/pin/submit", nil, &res)
	return res, err
}

func (c *Client) Reset(ctx context.Context, method string) (pinlock.View, error) {
	var v pinlock.View
	err := c.do(ctx, http.MethodPost, "/api/pin/reset", map[string]string{"method": method}, &v)
	return v, err
}

func (c *Client) Lock(ctx context.Context) (pinlock.View, error) {
	var v pinlock.View
	err := c.do(ctx, http.MethodPost, "/api/lock", nil, &v)
	return v, err
}

func (c *Client) GateView(ctx context.Context) (gate.View, error) {
	var v gate.View
	err := c.do(ctx, http.MethodGet, "/api/gate", nil, &v)
	return v, err
}

func (c *Client) SaveCode(ctx context.Context, code string) (gate.View, error) {
	var v gate.View
	err := c.do(ctx, http.MethodPost, "/api/gate/code", map[string]string{"code": code}, &v)
	return v, err
}

func (c *Client) Authenticate(ctx context.Context) (gate.View, error) {
	var v gate.View
	err := c.do(ctx, http.MethodPost, "/api/gate/authenticate", nil, &v)
	return v, err
}

func (c *Client) Verify(ctx context.Context, code string) (service.VerifyResult, error) {
	var res service.VerifyResult
	err := c.do(ctx, http.MethodPost, "/api/gate/verify", map[string]string{"code": code}, &res)
	return res, err
}

// Invoke records a gated file action. The daemon answers 202 and the
// result carries Redirect and the pending action.
func (c *Client) Invoke(ctx context.Context, action models.Action, file models.FileRef, returnTo models.ReturnTo) (gate.Result, error) {
	var res gate.Result
	in := map[string]any{"file": file, "return_to": returnTo}
	err := c.do(ctx, http.MethodPost, "/api/files/"+url.PathEscape(string(action)), in, &res)
	return res, err
}

func (c *Client) Resume(ctx context.Context, returnTo models.ReturnTo, override models.Action) (gate.Result, error) {
	var res gate.Result
	in := map[string]any{"return_to": returnTo}
	if override != "" {
		in["action"] = override
	}
	err := c.do(ctx, http.MethodPost, "/api/files/resume", in, &res)
	return res, err
}
