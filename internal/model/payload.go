package model

// Format identifies how a payload body is encoded.
type Format string

const (
	FormatAuto Format = "auto" // sniff the body
	FormatJSON Format = "json" // {"resources": [...]} or a bare array of events
	FormatText Format = "text" // delimited lines in RecordColumns order
)

// Payload is the raw batch handed over by an event source. It is transient:
// the pipeline never persists it.
type Payload struct {
	Format Format
	Body   []byte
}
