// Package domain models the disaster briefing data that flows through the
// SMS pipeline.
//
// # Data Sources
//
// Two structured feeds come from the National Weather Service (NWS) public API
// at https://api.weather.gov, both keyed by the configured county/zone code:
//
//	NWS_alerts    /alerts/active/zone/{code}       active watches, warnings, advisories
//	NWS_forecast  /zones/county/{code}/forecast    text forecast periods
//
// Both responses are GeoJSON. The "geometry" members (alert polygons, zone
// outlines) can run to hundreds of kilobytes and carry nothing a text summary
// can use, so they are stripped before a record is cached. See [StripGeometry].
//
// A third, free-text source is a web-search completion seeded with the
// configured location, a generic "any critical events" category and the
// user's own message. Its answer is cached under [KeyNewsSummary].
//
// # Cache Layout
//
// Every source owns exactly one key, written with a 24 hour TTL ([SourceTTL]).
// A failed refresh never touches the key, so the last good value keeps serving
// until it expires (stale-over-absent). The latest summary lives under
// [KeySummary] with no TTL and is overwritten by each successful run.
//
// # Replies
//
// The user always receives exactly one SMS per validated request: the summary,
// the [FallbackSummary] text when generation fails, the [ProbeReply] for a
// "test" message, or the [ApologyReply] when the pipeline fails outright.
package domain
