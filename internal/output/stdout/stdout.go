package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/crimson-sun/auditor/internal/model"
)

// Output writes the JSON-encoded report to stdout.
type Output struct {
	enc *json.Encoder
}

// New creates a new stdout Output with optional pretty-printed JSON.
func New(pretty bool) *Output {
	return NewWriter(os.Stdout, pretty)
}

// NewWriter is like New but encodes to w.
func NewWriter(w io.Writer, pretty bool) *Output {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Output{enc: enc}
}

func (o *Output) Write(_ context.Context, report model.Report) error {
	if report.Records == nil {
		report.Records = []model.NormalizedRecord{}
	}
	if err := o.enc.Encode(report); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
