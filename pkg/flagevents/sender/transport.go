package sender

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Response is what a Transport reports back for one request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport performs HTTP requests on behalf of the Sender.
type Transport interface {
	// Request issues one request and waits for the response. A non-nil
	// error means no response was received.
	Request(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error)

	// AllowsPost reports whether the environment can send request bodies.
	// When false the Sender falls back to one-way pings.
	AllowsPost() bool
}

// Pinger is implemented by transports that can fire a one-way GET whose
// outcome is never observed.
type Pinger interface {
	FallbackPing(url string)
}

// maxResponseBody bounds how much of a response body is kept.
const maxResponseBody = 64 << 10

// HTTPTransport is a Transport backed by net/http.
type HTTPTransport struct {
	// Client performs requests. nil uses a client with a 30s timeout.
	Client *http.Client

	// DisablePost forces the fallback ping path.
	DisablePost bool
}

// NewHTTPTransport creates an HTTPTransport using client.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	return &HTTPTransport{Client: client}
}

var defaultClient = &http.Client{Timeout: 30 * time.Second}

func (t *HTTPTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return defaultClient
}

// Request implements Transport.
func (t *HTTPTransport) Request(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// AllowsPost implements Transport.
func (t *HTTPTransport) AllowsPost() bool {
	return !t.DisablePost
}

// FallbackPing implements Pinger. The request runs on its own goroutine and
// its outcome is discarded.
func (t *HTTPTransport) FallbackPing(url string) {
	go func() {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return
		}
		resp, err := t.client().Do(req)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
}
