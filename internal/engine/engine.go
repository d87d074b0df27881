package engine

import (
	"time"

	"github.com/crimson-sun/auditor/internal/engine/classifier"
	"github.com/crimson-sun/auditor/internal/engine/normalizer"
	"github.com/crimson-sun/auditor/internal/engine/summary"
	"github.com/crimson-sun/auditor/internal/model"
)

// Engine orchestrates the normalize → classify → summarize pipeline.
type Engine struct {
	classifier *classifier.Classifier
}

// New creates an Engine with the provided classifier.
func New(cls *classifier.Classifier) *Engine {
	return &Engine{classifier: cls}
}

// Output is everything one pass of the engine produces.
type Output struct {
	Records        []model.NormalizedRecord
	Classification classifier.Classification
	Summary        model.SummaryRecord
	Dropped        int
}

// Process normalizes, classifies and summarizes a payload. It fails with a
// *model.NormalizationError, or with model.ErrPayloadShape for a document
// that is not an event list; per-record problems are reported in Dropped.
func (e *Engine) Process(p model.Payload, runDate time.Time) (Output, error) {
	res, err := normalizer.Normalize(p)
	if err != nil {
		return Output{}, err
	}

	cls := e.classifier.Classify(res.Records)

	return Output{
		Records:        res.Records,
		Classification: cls,
		Summary:        summary.Build(res.Records, cls, runDate),
		Dropped:        res.Dropped,
	}, nil
}
