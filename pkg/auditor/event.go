package auditor

// Event is one normalized audit event. Absent fields are empty strings.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Event struct {
	EventType  string `json:"event_type"`
	CreatedAt  string `json:"created_at"`
	TargetName string `json:"target_name"`
	TargetType string `json:"target_type"`
	ActorName  string `json:"actor_name"`
	ActorType  string `json:"actor_type"`
	SpaceName  string `json:"space_name"`
	OrgName    string `json:"org_name"`
}

// Summary is the one-row daily report.
type Summary struct {
	Date                 string `json:"date"`
	TotalEvents          int    `json:"total_events"`
	FailedLogins         int    `json:"failed_logins"`
	UnauthorizedAccess   int    `json:"unauthorized_access"`
	SuspiciousActivities int    `json:"suspicious_activities"`
	Status               string `json:"status"` // Processed or NoEventsFound
}

// Report is the result of summarizing one batch.
type Report struct {
	Events  []Event          `json:"events"`
	Tags    map[string][]int `json:"tags"` // tag -> indices into Events
	Summary Summary          `json:"summary"`
	Dropped int              `json:"dropped"`
}
