/*
Package config loads event pipeline settings from YAML or JSON.

# Overview

Load, Parse, ParseJSON and FromMap all produce a validated EventSettings.
The document is decoded key by key over DefaultEventSettings: a value with
the wrong type, a value below its minimum, or an unknown key never fails
the load. It is skipped and described in the returned warnings instead.

	settings, warnings, err := config.Load("events.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	for _, w := range warnings {
	    logger.Warn(w)
	}
	p := flagevents.NewProcessor(flagevents.ConfigFromSettings(settings))

# Keys

	events_url                     string
	diagnostic_url                 string
	event_capacity                 int      (default 100, minimum 1)
	flush_interval                 duration (default 2s, minimum 2s)
	sampling_interval              int      (default 0, minimum 0)
	all_attributes_private         bool
	private_attributes             []string
	diagnostic_recording_interval  duration (default 15m, minimum 5m)

Durations accept Go duration strings ("30s") or numbers of seconds. Scalars
must carry their own type: "yes" is not a bool and 8080 is not a URL.
*/
package config
