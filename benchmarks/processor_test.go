package benchmarks

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/randalmurphal/flagevents/pkg/flagevents"
	"github.com/randalmurphal/flagevents/pkg/flagevents/event"
	"github.com/randalmurphal/flagevents/pkg/flagevents/ldcontext"
	"github.com/randalmurphal/flagevents/pkg/flagevents/sender"
)

// discardTransport accepts every request without I/O.
type discardTransport struct{}

func (discardTransport) Request(_ context.Context, _, _ string, _ http.Header, _ []byte) (*sender.Response, error) {
	return &sender.Response{Status: http.StatusAccepted, Header: http.Header{}}, nil
}

func (discardTransport) AllowsPost() bool { return true }

func newProcessor(capacity int) *flagevents.Processor {
	return flagevents.NewProcessor(flagevents.Config{
		EventsURL:     "https://events.example.com/bulk",
		EventCapacity: capacity,
	}, flagevents.WithTransport(discardTransport{}))
}

func feature(key string, c ldcontext.Context) *event.FeatureEvent {
	variation := 1
	return &event.FeatureEvent{
		Base:        event.Base{Kind: event.KindFeature, CreationDate: 1, Context: c},
		Key:         key,
		Value:       true,
		Variation:   &variation,
		TrackEvents: true,
	}
}

// BenchmarkEnqueue measures enqueueing tracked feature events.
func BenchmarkEnqueue(b *testing.B) {
	p := newProcessor(b.N + 1)
	c := largeContext()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Enqueue(feature("flag", c))
	}
}

// BenchmarkFlush_Contexts measures a flush with summaries for many contexts.
func BenchmarkFlush_Contexts(b *testing.B) {
	for _, contexts := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("contexts=%d", contexts), func(b *testing.B) {
			p := newProcessor(10_000)
			ctx := context.Background()
			for i := 0; i < b.N; i++ {
				for j := 0; j < contexts; j++ {
					p.Enqueue(feature("flag", ldcontext.Context{"kind": "user", "key": fmt.Sprint(j)}))
				}
				p.Flush(ctx)
			}
		})
	}
}
