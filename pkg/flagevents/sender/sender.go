// Package sender delivers event payloads to the collector.
//
// A delivery is one POST plus at most one immediate retry, both carrying the
// same payload ID. Error statuses classified as recoverable (400, 408, 429,
// 5xx) and transport failures are retried; anything else is returned as is.
// When the transport cannot POST, the payload is split into URL-sized chunks
// and each chunk is sent as a one-way GET ping.
package sender

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	feerrors "github.com/randalmurphal/flagevents/pkg/flagevents/errors"
	"github.com/randalmurphal/flagevents/pkg/flagevents/observability"
)

// MaxURLLength bounds fallback ping URLs, query included.
const MaxURLLength = 2000

// pingQuery precedes the encoded chunk in a fallback ping URL.
const pingQuery = "?d="

// PayloadKind distinguishes analytics batches from diagnostic events.
type PayloadKind int

const (
	// PayloadAnalytics is a JSON array of analytics events.
	PayloadAnalytics PayloadKind = iota

	// PayloadDiagnostic is a single diagnostic event. It carries no
	// payload ID or schema header.
	PayloadDiagnostic
)

// String returns the payload kind name.
func (k PayloadKind) String() string {
	switch k {
	case PayloadAnalytics:
		return "analytics"
	case PayloadDiagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// Result describes the outcome of a delivery.
type Result struct {
	// Status is the HTTP status of the last response, zero when no response
	// was received or the fallback path was used.
	Status int

	// ServerTime is the collector's Date header in Unix milliseconds, zero
	// when absent.
	ServerTime int64

	// Attempts is the number of requests issued.
	Attempts int

	// Err is set when the last attempt got an error status or no response.
	Err error
}

// Sender delivers payloads over a Transport. It holds no per-delivery state
// and is safe for concurrent use.
type Sender struct {
	transport Transport
	info      SDKInfo
	retry     feerrors.RetryConfig
	logger    *slog.Logger
	spans     observability.SpanManager
	newID     func() string
}

// Option configures a Sender.
type Option func(*Sender)

// WithSDKInfo sets the identification headers.
func WithSDKInfo(info SDKInfo) Option {
	return func(s *Sender) { s.info = info }
}

// WithRetry overrides the retry policy. The default is one immediate retry.
func WithRetry(cfg feerrors.RetryConfig) Option {
	return func(s *Sender) { s.retry = cfg }
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// WithSpanManager enables tracing of deliveries.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *Sender) {
		if sm != nil {
			s.spans = sm
		}
	}
}

// WithPayloadIDFunc replaces the payload ID generator.
func WithPayloadIDFunc(fn func() string) Option {
	return func(s *Sender) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates a Sender.
func New(transport Transport, opts ...Option) *Sender {
	s := &Sender{
		transport: transport,
		retry:     feerrors.SingleRetry,
		spans:     observability.NoopSpanManager{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendEvents delivers payload to url. For PayloadAnalytics payload is
// normally a slice of events. Marshal failures are returned in Result.Err
// without any request being made.
func (s *Sender) SendEvents(ctx context.Context, payload any, url string, kind PayloadKind) Result {
	ctx, span := s.spans.StartSendSpan(ctx, url, kind.String())

	var result Result
	if s.transport.AllowsPost() {
		result = s.post(ctx, payload, url, kind)
	} else {
		result = s.ping(payload, url)
	}

	s.spans.EndSpanWithError(span, result.Err)
	return result
}

func (s *Sender) post(ctx context.Context, payload any, url string, kind PayloadKind) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: fmt.Errorf("encoding %s payload: %w", kind, err)}
	}

	header := s.info.Headers()
	header.Set(HeaderContentType, "application/json")
	if kind == PayloadAnalytics {
		header.Set(HeaderSchema, EventSchemaVersion)
		header.Set(HeaderPayloadID, s.newID())
	}

	res := feerrors.WithRetryContext(ctx, s.retry, func(ctx context.Context) (*Response, error) {
		resp, err := s.transport.Request(ctx, http.MethodPost, url, header, body)
		if err != nil {
			return nil, err
		}
		if resp.Status >= 400 {
			msg := feerrors.HTTPErrorMessage(resp.Status, "event posting", "some events were dropped")
			return resp, feerrors.UnexpectedResponse(resp.Status, msg)
		}
		return resp, nil
	})

	result := Result{Attempts: res.Attempts, Err: res.Err}
	if resp := res.Value; resp != nil {
		result.Status = resp.Status
		result.ServerTime = serverTime(resp.Header)
	}
	if result.Err != nil {
		observability.LogSendFailure(s.logger, result.Status, result.Err)
	}
	return result
}

// ping sends payload through the one-way fallback. Nothing is awaited.
func (s *Sender) ping(payload any, url string) Result {
	pinger, ok := s.transport.(Pinger)
	if !ok {
		return Result{}
	}

	items, ok := payload.([]any)
	if !ok {
		items = toItems(payload)
	}
	chunks, err := ChunkForURL(MaxURLLength-len(url)-len(pingQuery), items)
	if err != nil {
		return Result{Err: err}
	}
	for _, chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			return Result{Err: err}
		}
		pinger.FallbackPing(url + pingQuery + base64.RawURLEncoding.EncodeToString(data))
	}
	return Result{}
}

// toItems spreads a slice payload into its elements. Any other payload is
// sent as a one-element batch.
func toItems(payload any) []any {
	raw, err := json.Marshal(payload)
	if err == nil && strings.HasPrefix(string(raw), "[") {
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) == nil {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = item
			}
			return out
		}
	}
	return []any{payload}
}

// ChunkForURL splits events into chunks whose JSON array encoding, in
// base64url form, fits in maxLength characters. Order is preserved. A single
// event larger than maxLength still gets a chunk of its own.
func ChunkForURL(maxLength int, events []any) ([][]any, error) {
	var chunks [][]any
	remaining := events
	for len(remaining) > 0 {
		var chunk []any
		// rawLen counts "[" plus each member followed by "," or "]".
		rawLen := 1
		for len(remaining) > 0 {
			data, err := json.Marshal(remaining[0])
			if err != nil {
				return nil, err
			}
			next := rawLen + len(data) + 1
			if len(chunk) > 0 && base64.RawURLEncoding.EncodedLen(next) > maxLength {
				break
			}
			rawLen = next
			chunk = append(chunk, remaining[0])
			remaining = remaining[1:]
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func serverTime(h http.Header) int64 {
	date := h.Get("Date")
	if date == "" {
		return 0
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
