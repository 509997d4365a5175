package sender_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feerrors "github.com/randalmurphal/flagevents/pkg/flagevents/errors"
	"github.com/randalmurphal/flagevents/pkg/flagevents/sender"
)

type recordedRequest struct {
	method string
	url    string
	header http.Header
	body   []byte
}

// fakeTransport replays scripted outcomes, one per request.
type fakeTransport struct {
	mu        sync.Mutex
	outcomes  []outcome
	requests  []recordedRequest
	pings     []string
	allowPost bool
}

type outcome struct {
	status int
	header http.Header
	err    error
}

func newFakeTransport(outcomes ...outcome) *fakeTransport {
	return &fakeTransport{outcomes: outcomes, allowPost: true}
}

func (f *fakeTransport) Request(_ context.Context, method, url string, header http.Header, body []byte) (*sender.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method: method, url: url, header: header.Clone(), body: body})
	if len(f.outcomes) == 0 {
		return &sender.Response{Status: http.StatusAccepted, Header: http.Header{}}, nil
	}
	next := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	if next.err != nil {
		return nil, next.err
	}
	h := next.header
	if h == nil {
		h = http.Header{}
	}
	return &sender.Response{Status: next.status, Header: h}, nil
}

func (f *fakeTransport) AllowsPost() bool { return f.allowPost }

func (f *fakeTransport) FallbackPing(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, url)
}

var testEvents = []any{
	map[string]any{"kind": "identify", "creationDate": 1000},
	map[string]any{"kind": "custom", "key": "clicked", "creationDate": 1001},
}

func TestSendEvents_Success(t *testing.T) {
	var (
		gotHeader http.Header
		gotBody   []byte
		gotMethod string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Date", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := sender.New(sender.NewHTTPTransport(server.Client()), sender.WithSDKInfo(sender.SDKInfo{
		UserAgent:      "GoClient/1.0.0",
		WrapperName:    "react",
		WrapperVersion: "3.1",
		Tags:           map[string][]string{"application-version": {"2"}, "application-id": {"web"}},
	}))

	result := s.SendEvents(context.Background(), testEvents, server.URL+"/events/bulk/env", sender.PayloadAnalytics)

	require.NoError(t, result.Err)
	assert.Equal(t, http.StatusAccepted, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, time.Date(2015, 10, 21, 7, 28, 0, 0, time.UTC).UnixMilli(), result.ServerTime)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "3", gotHeader.Get("X-LaunchDarkly-Event-Schema"))
	assert.NotEmpty(t, gotHeader.Get("X-LaunchDarkly-Payload-ID"))
	assert.Equal(t, "GoClient/1.0.0", gotHeader.Get("X-LaunchDarkly-User-Agent"))
	assert.Equal(t, "react/3.1", gotHeader.Get("X-LaunchDarkly-Wrapper"))
	assert.Equal(t, "application-id/web application-version/2", gotHeader.Get("X-LaunchDarkly-Tags"))
	assert.JSONEq(t, `[{"kind":"identify","creationDate":1000},{"kind":"custom","key":"clicked","creationDate":1001}]`, string(gotBody))
}

func TestSendEvents_RetriesRecoverableOnceWithSamePayloadID(t *testing.T) {
	transport := newFakeTransport(outcome{status: 503}, outcome{status: 503})
	s := sender.New(transport)

	result := s.SendEvents(context.Background(), testEvents, "https://events.example.com/bulk", sender.PayloadAnalytics)

	assert.Equal(t, 503, result.Status)
	assert.Equal(t, 2, result.Attempts)
	require.Error(t, result.Err)
	assert.Equal(t, 503, feerrors.StatusOf(result.Err))

	require.Len(t, transport.requests, 2)
	first := transport.requests[0].header.Get("X-LaunchDarkly-Payload-ID")
	assert.NotEmpty(t, first)
	assert.Equal(t, first, transport.requests[1].header.Get("X-LaunchDarkly-Payload-ID"))
	assert.Equal(t, transport.requests[0].body, transport.requests[1].body)
}

func TestSendEvents_RetrySucceeds(t *testing.T) {
	date := http.Header{"Date": []string{"Wed, 21 Oct 2015 07:28:00 GMT"}}
	transport := newFakeTransport(outcome{status: 429}, outcome{status: 202, header: date})
	s := sender.New(transport)

	result := s.SendEvents(context.Background(), testEvents, "https://events.example.com/bulk", sender.PayloadAnalytics)

	assert.NoError(t, result.Err)
	assert.Equal(t, 202, result.Status)
	assert.Equal(t, 2, result.Attempts)
	assert.NotZero(t, result.ServerTime)
}

func TestSendEvents_StatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		attempts int
	}{
		{400, 2},
		{401, 1},
		{403, 1},
		{404, 1},
		{408, 2},
		{413, 1},
		{429, 2},
		{500, 2},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			transport := newFakeTransport(outcome{status: tt.status}, outcome{status: tt.status})
			result := sender.New(transport).SendEvents(context.Background(), testEvents, "u", sender.PayloadAnalytics)

			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.attempts, result.Attempts)
			assert.Len(t, transport.requests, tt.attempts)
		})
	}
}

func TestSendEvents_NetworkFailureGivesUpAfterRetry(t *testing.T) {
	netErr := errors.New("connection refused")
	transport := newFakeTransport(outcome{err: netErr}, outcome{err: netErr})

	result := sender.New(transport).SendEvents(context.Background(), testEvents, "u", sender.PayloadAnalytics)

	assert.Equal(t, 0, result.Status)
	assert.Equal(t, 2, result.Attempts)
	assert.ErrorIs(t, result.Err, netErr)
}

func TestSendEvents_DiagnosticHasNoPayloadID(t *testing.T) {
	transport := newFakeTransport()
	s := sender.New(transport)

	result := s.SendEvents(context.Background(), map[string]any{"kind": "diagnostic"}, "u", sender.PayloadDiagnostic)

	require.NoError(t, result.Err)
	require.Len(t, transport.requests, 1)
	h := transport.requests[0].header
	assert.Empty(t, h.Get("X-LaunchDarkly-Payload-ID"))
	assert.Empty(t, h.Get("X-LaunchDarkly-Event-Schema"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestSendEvents_UnencodablePayload(t *testing.T) {
	transport := newFakeTransport()

	result := sender.New(transport).SendEvents(context.Background(), []any{func() {}}, "u", sender.PayloadAnalytics)

	assert.Error(t, result.Err)
	assert.Empty(t, transport.requests)
}

func decodePing(t *testing.T, pingURL string) []map[string]any {
	t.Helper()
	_, encoded, ok := strings.Cut(pingURL, "?d=")
	require.True(t, ok)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(raw, &events))
	return events
}

func TestSendEvents_FallbackPingChunks(t *testing.T) {
	transport := newFakeTransport()
	transport.allowPost = false

	var events []any
	for i := 0; i < 60; i++ {
		events = append(events, map[string]any{
			"kind": "custom",
			"key":  "event-with-a-reasonably-long-key",
			"n":    i,
		})
	}
	url := "https://events.example.com/a/env.gif"

	result := sender.New(transport).SendEvents(context.Background(), events, url, sender.PayloadAnalytics)

	assert.Equal(t, sender.Result{}, result)
	assert.Empty(t, transport.requests)
	require.Greater(t, len(transport.pings), 1)

	var received []map[string]any
	for _, ping := range transport.pings {
		assert.True(t, strings.HasPrefix(ping, url+"?d="))
		assert.LessOrEqual(t, len(ping), sender.MaxURLLength)
		received = append(received, decodePing(t, ping)...)
	}
	require.Len(t, received, 60)
	for i, evt := range received {
		assert.Equal(t, float64(i), evt["n"])
	}
}

func TestSendEvents_FallbackPingCountsArraySyntax(t *testing.T) {
	transport := newFakeTransport()
	transport.allowPost = false

	events := make([]any, 200)
	for i := range events {
		events[i] = map[string]any{"kind": strconv.Itoa(i)}
	}
	url := "https://events.example.com/e.gif"

	sender.New(transport).SendEvents(context.Background(), events, url, sender.PayloadAnalytics)

	require.Greater(t, len(transport.pings), 1)
	var received []map[string]any
	for _, ping := range transport.pings {
		assert.LessOrEqual(t, len(ping), sender.MaxURLLength)
		received = append(received, decodePing(t, ping)...)
	}
	require.Len(t, received, 200)
	assert.Equal(t, "199", received[199]["kind"])
}

func TestChunkForURL_EncodedChunkFits(t *testing.T) {
	events := make([]any, 50)
	for i := range events {
		events[i] = map[string]any{"n": i}
	}

	chunks, err := sender.ChunkForURL(120, events)
	require.NoError(t, err)
	total := 0
	for _, chunk := range chunks {
		data, err := json.Marshal(chunk)
		require.NoError(t, err)
		assert.LessOrEqual(t, base64.RawURLEncoding.EncodedLen(len(data)), 120)
		total += len(chunk)
	}
	assert.Equal(t, 50, total)
}

func TestSendEvents_FallbackWithoutPinger(t *testing.T) {
	transport := &postlessTransport{}
	result := sender.New(transport).SendEvents(context.Background(), testEvents, "u", sender.PayloadAnalytics)
	assert.Equal(t, sender.Result{}, result)
}

type postlessTransport struct{}

func (postlessTransport) Request(context.Context, string, string, http.Header, []byte) (*sender.Response, error) {
	return nil, errors.New("unexpected request")
}

func (postlessTransport) AllowsPost() bool { return false }

func TestChunkForURL(t *testing.T) {
	small := map[string]any{"k": "v"} // {"k":"v"} is 9 bytes, 12 base64url chars

	t.Run("fits in one chunk", func(t *testing.T) {
		chunks, err := sender.ChunkForURL(100, []any{small, small, small})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Len(t, chunks[0], 3)
	})

	t.Run("splits at the budget", func(t *testing.T) {
		// [{"k":"v"},{"k":"v"}] is 21 bytes, 28 chars; adding a third needs 42.
		chunks, err := sender.ChunkForURL(30, []any{small, small, small})
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Len(t, chunks[0], 2)
		assert.Len(t, chunks[1], 1)
	})

	t.Run("oversized event gets its own chunk", func(t *testing.T) {
		big := map[string]any{"k": strings.Repeat("x", 200)}
		chunks, err := sender.ChunkForURL(50, []any{small, big, small})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, []any{big}, chunks[1])
	})

	t.Run("no budget still makes progress", func(t *testing.T) {
		chunks, err := sender.ChunkForURL(-10, []any{small, small})
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})

	t.Run("empty", func(t *testing.T) {
		chunks, err := sender.ChunkForURL(100, nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestHTTPTransport_FallbackPing(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Method + " " + r.URL.Query().Get("d")
	}))
	defer server.Close()

	transport := &sender.HTTPTransport{Client: server.Client(), DisablePost: true}
	assert.False(t, transport.AllowsPost())

	transport.FallbackPing(server.URL + "?d=abc")

	select {
	case req := <-got:
		assert.Equal(t, "GET abc", req)
	case <-time.After(5 * time.Second):
		t.Fatal("ping never arrived")
	}
}

func TestSDKInfoHeaders(t *testing.T) {
	assert.Empty(t, sender.SDKInfo{}.Headers())

	h := sender.SDKInfo{WrapperName: "vue", Tags: map[string][]string{"application-id": {"b", "a"}}}.Headers()
	assert.Equal(t, "vue", h.Get("X-LaunchDarkly-Wrapper"))
	assert.Equal(t, "application-id/a application-id/b", h.Get("X-LaunchDarkly-Tags"))
}

func TestPayloadKindString(t *testing.T) {
	assert.Equal(t, "analytics", sender.PayloadAnalytics.String())
	assert.Equal(t, "diagnostic", sender.PayloadDiagnostic.String())
	assert.Equal(t, "unknown", sender.PayloadKind(9).String())
}
