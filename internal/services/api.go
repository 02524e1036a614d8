package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/opsync/internal/shared"
	"github.com/tidwall/gjson"
)

// APIService makes raw HTTP requests against the record store's REST API.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates an APIService for baseURL. The client should carry authentication.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err converts a non-2xx response into a [*StatusError].
func (r *APIResponse) Err() error {
	if r.OK() {
		return nil
	}
	return newStatusError(r)
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

// Patch performs a PATCH request with the given JSON data and returns the raw response.
func (a *APIService) Patch(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPatch, path, data)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	var jsonData any
	if err := json.Unmarshal(respBody, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// StatusError is a non-2xx response from the record store.
type StatusError struct {
	Code    int
	Type    string // error type reported by the store, e.g. INVALID_VALUE_FOR_COLUMN
	Message string
	Wait    time.Duration // from the Retry-After header
}

func newStatusError(r *APIResponse) *StatusError {
	e := &StatusError{Code: r.StatusCode}

	if r.IsJSON {
		errField := gjson.GetBytes(r.Body, "error")
		switch {
		case errField.Type == gjson.String:
			e.Type = errField.String()
		case errField.IsObject():
			e.Type = errField.Get("type").String()
			e.Message = errField.Get("message").String()
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(r.StatusCode)
	}

	if secs, err := strconv.Atoi(r.Headers.Get("Retry-After")); err == nil && secs > 0 {
		e.Wait = time.Duration(secs) * time.Second
	}
	return e
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: status %d %s: %s", shared.ErrAPIRequest, e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", shared.ErrAPIRequest, e.Code, e.Message)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *StatusError) StatusCode() int { return e.Code }

// RetryAfter is the wait the store asked for, zero when it sent none.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

// Is matches [shared.ErrAPIRequest] always and [shared.ErrRecordNotFound] on 404.
func (e *StatusError) Is(target error) bool {
	switch target {
	case shared.ErrAPIRequest:
		return true
	case shared.ErrRecordNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}
