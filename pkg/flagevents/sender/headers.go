package sender

import (
	"net/http"
	"sort"
	"strings"
)

// Header names sent with every delivery.
const (
	HeaderContentType = "Content-Type"
	HeaderSchema      = "X-LaunchDarkly-Event-Schema"
	HeaderPayloadID   = "X-LaunchDarkly-Payload-ID"
	HeaderUserAgent   = "X-LaunchDarkly-User-Agent"
	HeaderWrapper     = "X-LaunchDarkly-Wrapper"
	HeaderTags        = "X-LaunchDarkly-Tags"

	// EventSchemaVersion is the analytics payload schema.
	EventSchemaVersion = "3"
)

// SDKInfo identifies the SDK to the collector.
type SDKInfo struct {
	// UserAgent is sent as X-LaunchDarkly-User-Agent, e.g. "GoClient/1.2.0".
	UserAgent string

	// WrapperName and WrapperVersion identify a wrapping library, if any.
	WrapperName    string
	WrapperVersion string

	// Tags are application tags, sent sorted as "key/value" pairs.
	Tags map[string][]string
}

// Headers returns the identification headers for info.
func (info SDKInfo) Headers() http.Header {
	h := http.Header{}
	if info.UserAgent != "" {
		h.Set(HeaderUserAgent, info.UserAgent)
	}
	if info.WrapperName != "" {
		wrapper := info.WrapperName
		if info.WrapperVersion != "" {
			wrapper += "/" + info.WrapperVersion
		}
		h.Set(HeaderWrapper, wrapper)
	}
	if tags := formatTags(info.Tags); tags != "" {
		h.Set(HeaderTags, tags)
	}
	return h
}

func formatTags(tags map[string][]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := append([]string(nil), tags[k]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, k+"/"+v)
		}
	}
	return strings.Join(parts, " ")
}
