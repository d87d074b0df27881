package auditor

import (
	"fmt"
	"strings"
	"time"

	"github.com/crimson-sun/auditor/internal/engine"
	"github.com/crimson-sun/auditor/internal/engine/classifier"
	"github.com/crimson-sun/auditor/internal/engine/normalizer"
	"github.com/crimson-sun/auditor/internal/engine/summary"
	"github.com/crimson-sun/auditor/internal/model"
)

// ErrNormalization is matched by errors.Is when input cannot be parsed at all.
var ErrNormalization = model.ErrNormalization

// ErrPayloadShape is matched when input decodes but is not an event list,
// such as a JSON object without "resources".
var ErrPayloadShape = model.ErrPayloadShape

// Auditor normalizes and classifies audit event batches.
// Safe for concurrent use.
type Auditor struct {
	engine *engine.Engine
	cls    *classifier.Classifier
	rules  []classifier.Rule
	format model.Format
}

// New creates an Auditor. Rules are validated up front, so a bad rule set
// fails here rather than producing silently wrong counts.
func New(opts ...Option) (*Auditor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	format := model.Format(o.format)
	switch format {
	case model.FormatAuto, model.FormatJSON, model.FormatText:
	default:
		return nil, fmt.Errorf("auditor: unknown format %q", o.format)
	}

	rules := classifier.DefaultRules()
	switch {
	case o.rulesFile != "":
		loaded, err := classifier.LoadRules(o.rulesFile)
		if err != nil {
			return nil, fmt.Errorf("auditor: %w", err)
		}
		rules = loaded
	case o.rules != nil:
		rules = make([]classifier.Rule, len(o.rules))
		for i, r := range o.rules {
			rules[i] = classifier.Rule{Tag: model.Tag(r.Tag), Contains: append([]string(nil), r.Contains...)}
		}
		if err := classifier.Validate(rules); err != nil {
			return nil, fmt.Errorf("auditor: %w", err)
		}
	}

	cls := classifier.New(rules)
	return &Auditor{
		engine: engine.New(cls),
		cls:    cls,
		rules:  rules,
		format: format,
	}, nil
}

// Summarize normalizes data, classifies every event and builds the summary
// dated runDate.
func (a *Auditor) Summarize(data []byte, runDate time.Time) (Report, error) {
	out, err := a.engine.Process(model.Payload{Format: a.format, Body: data}, runDate)
	if err != nil {
		return Report{}, err
	}
	return reportFromOutput(out), nil
}

// SummarizeEvents classifies events that are already normalized. Events
// without an event type are dropped and counted in Report.Dropped, as the
// normalizer does for raw input.
func (a *Auditor) SummarizeEvents(events []Event, runDate time.Time) Report {
	records := make([]model.NormalizedRecord, 0, len(events))
	dropped := 0
	for _, e := range events {
		if strings.TrimSpace(e.EventType) == "" {
			dropped++
			continue
		}
		records = append(records, model.NormalizedRecord(e))
	}
	cls := a.cls.Classify(records)
	return reportFromOutput(engine.Output{
		Records:        records,
		Classification: cls,
		Summary:        summary.Build(records, cls, runDate),
		Dropped:        dropped,
	})
}

// Classify returns the tags matching a single event type, in rule order.
func (a *Auditor) Classify(eventType string) []string {
	tags := a.cls.Match(eventType)
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// Normalize converts data into events without classifying them.
func (a *Auditor) Normalize(data []byte) ([]Event, int, error) {
	res, err := normalizer.Normalize(model.Payload{Format: a.format, Body: data})
	if err != nil {
		return nil, 0, err
	}
	return eventsFromRecords(res.Records), res.Dropped, nil
}

func reportFromOutput(out engine.Output) Report {
	tags := make(map[string][]int, len(out.Classification))
	for tag, idx := range out.Classification {
		tags[string(tag)] = idx
	}
	s := out.Summary
	return Report{
		Events: eventsFromRecords(out.Records),
		Tags:   tags,
		Summary: Summary{
			Date:                 s.Date,
			TotalEvents:          s.TotalEvents,
			FailedLogins:         s.FailedLogins,
			UnauthorizedAccess:   s.UnauthorizedAccess,
			SuspiciousActivities: s.SuspiciousActivities,
			Status:               string(s.Status),
		},
		Dropped: out.Dropped,
	}
}

func eventsFromRecords(records []model.NormalizedRecord) []Event {
	events := make([]Event, len(records))
	for i, r := range records {
		events[i] = Event(r)
	}
	return events
}
