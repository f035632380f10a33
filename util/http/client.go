package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

var (
	ErrNilRequestParam  = errors.New("request param is nil")
	ErrResponseTooLarge = errors.New("response body too large")
)

type HTTPClient struct {
	client *http.Client
}

type Option func(*http.Client)

// WithCheckRedirect 每次跳转前调用 check，返回错误则中止请求
func WithCheckRedirect(check func(req *http.Request, via []*http.Request) error) Option {
	return func(c *http.Client) {
		c.CheckRedirect = check
	}
}

func NewHTTPClient(opts ...Option) IClient {
	client := &http.Client{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(client)
	}
	return &HTTPClient{client: client}
}

func (c *HTTPClient) DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error {
	if requestParam == nil {
		return ErrNilRequestParam
	}

	if requestParam.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestParam.Timeout)
		defer cancel()
	}

	body, contentType, err := encodeBody(requestParam.Body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, requestParam.Method, requestParam.RequestURI, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range requestParam.Header {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var reader io.Reader = resp.Body
	if requestParam.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, requestParam.MaxBytes+1)
	}
	respBody, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if requestParam.MaxBytes > 0 && int64(len(respBody)) > requestParam.MaxBytes {
		return fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, requestParam.MaxBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	requestParam.ContentType = resp.Header.Get("Content-Type")

	switch out := requestParam.Response.(type) {
	case nil:
	case *[]byte:
		*out = respBody
	default:
		if len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func encodeBody(body interface{}) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		return b, "text/plain", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
