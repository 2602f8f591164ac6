// Package feed downloads the upstream event feed and turns it into records.
//
// Two payload families are understood: JSON (a list of events, an object with
// an "events" list, or a single event object) and anything gofeed can parse
// (RSS, Atom, JSON Feed). In "auto" mode the Content-Type and the first
// non-blank byte of the body decide which decoder runs.
package feed
