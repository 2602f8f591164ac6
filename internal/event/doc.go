// Package event models the loosely-typed calendar events received from the
// upstream feed and derives the signals the store needs from them:
//
//   - a content fingerprint (SHA-256 over a canonical JSON serialization)
//   - an optional identity key (first truthy of id, event_id, url)
//   - candidate event times (start_iso8601, then date, then ingestion time)
//
// Nothing in this package performs I/O and nothing in it fails: a record
// without identity fields has no identity key, and an unparsable date is simply
// not a candidate.
package event
