// Package httpclient is the fluent HTTP client used for every outgoing call:
// image downloads and outbound product webhooks.
//
//	resp, err := httpclient.Post(url).
//	    Header(signature.Header, sig).
//	    Body(body, "application/json").
//	    Timeout(8 * time.Second).
//	    WithContext(ctx).
//	    Send()
//
// Requests are attempted exactly once.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTransport is the connection-pooled transport shared by all requests.
var defaultTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        200,
	MaxIdleConnsPerHost: 20,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// DefaultClient sends every request. Tests can swap its Transport:
//
//	httpclient.DefaultClient.Transport = fake
//	defer httpclient.ResetTransport()
var DefaultClient = &http.Client{Transport: defaultTransport}

// ResetTransport restores the pooled transport on DefaultClient.
func ResetTransport() {
	DefaultClient.Transport = defaultTransport
}

// UserAgent is sent unless a request overrides it.
const UserAgent = "catalogsync/1.0"

// Request is a fluent HTTP request builder.
type Request struct {
	method      string
	url         string
	headers     map[string]string
	body        []byte
	timeout     time.Duration
	maxResponse int64
	ctx         context.Context
}

func Get(url string) *Request  { return newRequest(http.MethodGet, url) }
func Post(url string) *Request { return newRequest(http.MethodPost, url) }

func newRequest(method, url string) *Request {
	return &Request{
		method:      method,
		url:         url,
		headers:     map[string]string{"User-Agent": UserAgent},
		timeout:     30 * time.Second,
		maxResponse: 1 << 20,
		ctx:         context.Background(),
	}
}

// Header sets a single header.
func (r *Request) Header(key, value string) *Request {
	r.headers[key] = value
	return r
}

// Body sets a raw request body and its content type.
func (r *Request) Body(b []byte, contentType string) *Request {
	r.body = b
	if contentType != "" {
		r.headers["Content-Type"] = contentType
	}
	return r
}

// Timeout bounds the whole exchange, body included.
func (r *Request) Timeout(d time.Duration) *Request {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// MaxResponse caps how much of the body Send buffers. The rest is discarded.
func (r *Request) MaxResponse(n int64) *Request {
	r.maxResponse = n
	return r
}

func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx != nil {
		r.ctx = ctx
	}
	return r
}

// Send executes the request and buffers up to MaxResponse bytes of the body.
func (r *Request) Send() (*Response, error) {
	resp, err := r.Stream()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.maxResponse))
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Raw: raw}, nil
}

// Stream executes the request and hands back the live response. The
// timeout keeps running until the caller closes the body.
func (r *Request) Stream() (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("httpclient: %s %s: %w", r.method, r.url, err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Response is a buffered HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Raw        []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Excerpt returns at most n bytes of the body as text.
func (r *Response) Excerpt(n int) string {
	if len(r.Raw) <= n {
		return string(r.Raw)
	}
	return string(r.Raw[:n])
}

// Throw returns an error carrying a body excerpt when the status is not 2xx.
func (r *Response) Throw() error {
	if !r.OK() {
		return fmt.Errorf("httpclient: status %d: %s", r.StatusCode, r.Excerpt(500))
	}
	return nil
}
