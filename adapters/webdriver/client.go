package exportwebdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const maxResponseBytes = 256 << 20

// ProtocolError is an error reported by the driver in a WebDriver response.
type ProtocolError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	code := e.Code
	if code == "" {
		code = "unknown error"
	}
	if e.Message == "" {
		return fmt.Sprintf("webdriver %s (HTTP %d)", code, e.Status)
	}
	return fmt.Sprintf("webdriver %s (HTTP %d): %s", code, e.Status, e.Message)
}

// Client sends WebDriver commands to one driver endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Do sends a command and returns the parsed response body. Error responses,
// W3C or legacy, are returned as *ProtocolError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	} else if method == http.MethodPost {
		reader = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, reader)
	if err != nil {
		return gjson.Result{}, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, &ProtocolError{
			Status:  resp.StatusCode,
			Code:    "invalid response",
			Message: truncate(string(data), 200),
		}
	}

	doc := gjson.ParseBytes(data)
	value := doc.Get("value")
	if code := value.Get("error"); code.Exists() || resp.StatusCode >= http.StatusBadRequest {
		return doc, &ProtocolError{
			Status:  resp.StatusCode,
			Code:    code.String(),
			Message: value.Get("message").String(),
		}
	}
	if status := doc.Get("status"); status.Exists() && status.Int() != 0 {
		return doc, &ProtocolError{
			Status:  resp.StatusCode,
			Code:    fmt.Sprintf("legacy status %d", status.Int()),
			Message: value.Get("message").String(),
		}
	}
	return doc, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
