package model

import "strconv"

// Tag is a security classification category.
type Tag string

const (
	TagFailedLogin        Tag = "FailedLogin"
	TagUnauthorizedAccess Tag = "UnauthorizedAccess"
	TagSuspiciousActivity Tag = "SuspiciousActivity"
)

// Tags lists every known tag in report order.
var Tags = []Tag{TagFailedLogin, TagUnauthorizedAccess, TagSuspiciousActivity}

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	for _, known := range Tags {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the outcome recorded on a summary.
type Status string

const (
	StatusProcessed     Status = "Processed"
	StatusNoEventsFound Status = "NoEventsFound"
)

// SummaryRecord is the single summary row produced per run.
type SummaryRecord struct {
	Date                 string `json:"date"`
	TotalEvents          int    `json:"total_events"`
	FailedLogins         int    `json:"failed_logins"`
	UnauthorizedAccess   int    `json:"unauthorized_access"`
	SuspiciousActivities int    `json:"suspicious_activities"`
	Status               Status `json:"status"`
}

// SummaryColumns is the fixed column order of the summary dataset.
var SummaryColumns = []string{
	"date",
	"total_events",
	"failed_logins",
	"unauthorized_access",
	"suspicious_activities",
	"status",
}

// Row returns the summary's fields in SummaryColumns order.
func (s SummaryRecord) Row() []string {
	return []string{
		s.Date,
		strconv.Itoa(s.TotalEvents),
		strconv.Itoa(s.FailedLogins),
		strconv.Itoa(s.UnauthorizedAccess),
		strconv.Itoa(s.SuspiciousActivities),
		string(s.Status),
	}
}

// Report is what a sink receives at the end of a run.
type Report struct {
	RunID   string             `json:"run_id"`
	Records []NormalizedRecord `json:"records"`
	Summary SummaryRecord      `json:"summary"`
	Dropped int                `json:"dropped"`
}
