// Package harvest defines the domain types, interfaces, and error taxonomy
// shared by the scrape session lifecycle subsystem: the job controller, the
// status tracker, the passcode challenge handler, the session registry, and
// the generation service built on top of them.
package harvest
