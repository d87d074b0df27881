// Package output defines where finished audit reports are delivered.
package output

import (
	"context"

	"github.com/crimson-sun/auditor/internal/model"
)

// Output defines the interface for report destinations. Write is called once
// per run with the complete report.
type Output interface {
	Write(ctx context.Context, report model.Report) error
	Close() error
}
