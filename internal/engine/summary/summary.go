// Package summary folds a classified batch into the one-row daily report.
package summary

import (
	"time"

	"github.com/crimson-sun/auditor/internal/model"
)

// DateLayout is the format of SummaryRecord.Date.
const DateLayout = "2006-01-02"

// Counts is satisfied by classifier.Classification.
type Counts interface {
	Count(tag model.Tag) int
}

// Build produces the summary for one run. Date always reflects runDate, not
// the event timestamps. An empty batch is reported as NoEventsFound rather
// than as zeroed-out Processed.
func Build(records []model.NormalizedRecord, counts Counts, runDate time.Time) model.SummaryRecord {
	s := model.SummaryRecord{Date: runDate.Format(DateLayout)}
	if len(records) == 0 {
		s.Status = model.StatusNoEventsFound
		return s
	}

	s.TotalEvents = len(records)
	if counts != nil {
		s.FailedLogins = counts.Count(model.TagFailedLogin)
		s.UnauthorizedAccess = counts.Count(model.TagUnauthorizedAccess)
		s.SuspiciousActivities = counts.Count(model.TagSuspiciousActivity)
	}
	s.Status = model.StatusProcessed
	return s
}
