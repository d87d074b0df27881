package model

// RawEvent is a structured audit event as returned by the platform API.
// Only the fields the normalizer reads are modeled; nested objects are
// pointers so an absent key and an empty object both normalize to "".
type RawEvent struct {
	Type         string    `json:"type"`
	CreatedAt    string    `json:"created_at"`
	Target       *EventRef `json:"target"`
	Actor        *EventRef `json:"actor"`
	Space        *EventRef `json:"space"`
	Organization *EventRef `json:"organization"`
}

// EventRef is a nested actor/target/space/organization reference.
type EventRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NormalizedRecord is the flat, fixed-column form of one audit event.
// EventType is never empty; every other field is a value or "".
type NormalizedRecord struct {
	EventType  string `json:"event_type"`
	CreatedAt  string `json:"created_at"`
	TargetName string `json:"target_name"`
	TargetType string `json:"target_type"`
	ActorName  string `json:"actor_name"`
	ActorType  string `json:"actor_type"`
	SpaceName  string `json:"space_name"`
	OrgName    string `json:"org_name"`
}

// RecordColumns is the fixed column order of the normalized dataset.
var RecordColumns = []string{
	"event_type",
	"created_at",
	"target_name",
	"target_type",
	"actor_name",
	"actor_type",
	"space_name",
	"org_name",
}

// Row returns the record's fields in RecordColumns order.
func (r NormalizedRecord) Row() []string {
	return []string{
		r.EventType,
		r.CreatedAt,
		r.TargetName,
		r.TargetType,
		r.ActorName,
		r.ActorType,
		r.SpaceName,
		r.OrgName,
	}
}

// RecordFromRow builds a record from fields in RecordColumns order.
// The caller is responsible for checking len(row) == len(RecordColumns).
func RecordFromRow(row []string) NormalizedRecord {
	return NormalizedRecord{
		EventType:  row[0],
		CreatedAt:  row[1],
		TargetName: row[2],
		TargetType: row[3],
		ActorName:  row[4],
		ActorType:  row[5],
		SpaceName:  row[6],
		OrgName:    row[7],
	}
}
