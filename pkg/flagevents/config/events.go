package config

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Keys of a settings document.
const (
	KeyEventsURL                   = "events_url"
	KeyDiagnosticURL               = "diagnostic_url"
	KeyEventCapacity               = "event_capacity"
	KeyFlushInterval               = "flush_interval"
	KeySamplingInterval            = "sampling_interval"
	KeyAllAttributesPrivate        = "all_attributes_private"
	KeyPrivateAttributes           = "private_attributes"
	KeyDiagnosticRecordingInterval = "diagnostic_recording_interval"
)

// Defaults and lower bounds for EventSettings.
const (
	DefaultEventsURL                   = "https://events.launchdarkly.com/events/bulk"
	DefaultDiagnosticURL               = "https://events.launchdarkly.com/events/diagnostic"
	DefaultEventCapacity               = 100
	DefaultFlushInterval               = 2 * time.Second
	MinFlushInterval                   = 2 * time.Second
	DefaultDiagnosticRecordingInterval = 15 * time.Minute
	MinDiagnosticRecordingInterval     = 5 * time.Minute
)

// EventSettings holds validated event pipeline settings.
type EventSettings struct {
	EventsURL                   string
	DiagnosticURL               string
	EventCapacity               int
	FlushInterval               time.Duration
	SamplingInterval            int
	AllAttributesPrivate        bool
	PrivateAttributes           []string
	DiagnosticRecordingInterval time.Duration
}

// DefaultEventSettings returns the settings used when nothing is configured.
func DefaultEventSettings() EventSettings {
	return EventSettings{
		EventsURL:                   DefaultEventsURL,
		DiagnosticURL:               DefaultDiagnosticURL,
		EventCapacity:               DefaultEventCapacity,
		FlushInterval:               DefaultFlushInterval,
		DiagnosticRecordingInterval: DefaultDiagnosticRecordingInterval,
	}
}

// settingsDecoder applies document values over the defaults, collecting a
// warning for every value it has to discard.
type settingsDecoder struct {
	settings EventSettings
	warnings []string
}

func decodeSettings(doc map[string]yaml.Node) (EventSettings, []string) {
	d := &settingsDecoder{settings: DefaultEventSettings()}
	s := &d.settings
	for _, key := range slices.Sorted(maps.Keys(doc)) {
		node := doc[key]
		switch key {
		case KeyEventsURL:
			d.url(key, &node, &s.EventsURL)
		case KeyDiagnosticURL:
			d.url(key, &node, &s.DiagnosticURL)
		case KeyEventCapacity:
			d.intAtLeast(key, &node, 1, &s.EventCapacity)
		case KeySamplingInterval:
			d.intAtLeast(key, &node, 0, &s.SamplingInterval)
		case KeyFlushInterval:
			d.durationAtLeast(key, &node, MinFlushInterval, &s.FlushInterval)
		case KeyDiagnosticRecordingInterval:
			d.durationAtLeast(key, &node, MinDiagnosticRecordingInterval, &s.DiagnosticRecordingInterval)
		case KeyAllAttributesPrivate:
			d.flag(key, &node, &s.AllAttributesPrivate)
		case KeyPrivateAttributes:
			d.attributeList(key, &node, &s.PrivateAttributes)
		default:
			d.warnings = append(d.warnings, fmt.Sprintf("unknown config option %q ignored", key))
		}
	}
	return d.settings, d.warnings
}

func (d *settingsDecoder) invalid(key string, node *yaml.Node, used any) {
	d.warnings = append(d.warnings, fmt.Sprintf(
		"config option %q should be valid, got %s, using default value %v", key, describe(node), used))
}

func (d *settingsDecoder) url(key string, node *yaml.Node, dst *string) {
	if v, ok := stringValue(node); ok && v != "" {
		*dst = v
		return
	}
	d.invalid(key, node, *dst)
}

func (d *settingsDecoder) intAtLeast(key string, node *yaml.Node, minimum int, dst *int) {
	var v int
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!int" && node.Decode(&v) == nil && v >= minimum {
		*dst = v
		return
	}
	d.invalid(key, node, *dst)
}

func (d *settingsDecoder) durationAtLeast(key string, node *yaml.Node, minimum time.Duration, dst *time.Duration) {
	if v, err := durationValue(node); err == nil && v >= minimum {
		*dst = v
		return
	}
	d.invalid(key, node, *dst)
}

func (d *settingsDecoder) flag(key string, node *yaml.Node, dst *bool) {
	var v bool
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!bool" && node.Decode(&v) == nil {
		*dst = v
		return
	}
	d.invalid(key, node, *dst)
}

// attributeList accepts a sequence of strings only. One bad element rejects
// the whole list.
func (d *settingsDecoder) attributeList(key string, node *yaml.Node, dst *[]string) {
	if node.Kind == yaml.SequenceNode {
		list := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			v, ok := stringValue(item)
			if !ok {
				d.invalid(key, node, "[]")
				return
			}
			list = append(list, v)
		}
		*dst = list
		return
	}
	d.invalid(key, node, "[]")
}

// stringValue reports the value of a plain string scalar. Numbers and
// booleans are rejected even though YAML would coerce them.
func stringValue(node *yaml.Node) (string, bool) {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
		return "", false
	}
	return node.Value, true
}

// durationValue reads a Go duration string ("30s") or a number of seconds.
func durationValue(node *yaml.Node) (time.Duration, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("duration must be a scalar, got %s", node.ShortTag())
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	case "!!str":
		return time.ParseDuration(node.Value)
	}
	return 0, fmt.Errorf("duration must be a string or number, got %s", node.ShortTag())
}

func describe(node *yaml.Node) string {
	if node.Kind == yaml.ScalarNode {
		return fmt.Sprintf("%q", node.Value)
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return node.ShortTag()
	}
	return fmt.Sprint(v)
}
