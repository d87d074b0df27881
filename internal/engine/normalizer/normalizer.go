// Package normalizer turns a raw audit payload into fixed-column records.
//
// Two representations are accepted: a JSON document (an object with a
// "resources" list, or a bare array of event objects) and delimited text
// whose columns follow model.RecordColumns. Individual malformed events or
// lines are dropped and counted; only a payload that cannot be read at all is
// an error.
package normalizer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/crimson-sun/auditor/internal/model"
)

const maxLineSize = 1 << 20

// Result is the normalized batch plus the number of events or lines that were
// discarded as malformed.
type Result struct {
	Records []model.NormalizedRecord
	Dropped int
}

// Normalize converts a payload into normalized records. An empty payload is
// valid and yields no records.
func Normalize(p model.Payload) (Result, error) {
	body, err := decode(p.Body)
	if err != nil {
		return Result{}, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Result{}, nil
	}

	switch p.Format {
	case model.FormatJSON:
		return normalizeJSON(body)
	case model.FormatText:
		return normalizeText(body)
	default:
		if body[0] == '{' || body[0] == '[' {
			return normalizeJSON(body)
		}
		return normalizeText(body)
	}
}

// FromEvent maps one structured event onto the fixed field set. Absent nested
// objects resolve to empty strings.
func FromEvent(ev model.RawEvent) model.NormalizedRecord {
	rec := model.NormalizedRecord{
		EventType: ev.Type,
		CreatedAt: ev.CreatedAt,
	}
	if ev.Target != nil {
		rec.TargetName = ev.Target.Name
		rec.TargetType = ev.Target.Type
	}
	if ev.Actor != nil {
		rec.ActorName = ev.Actor.Name
		rec.ActorType = ev.Actor.Type
	}
	if ev.Space != nil {
		rec.SpaceName = ev.Space.Name
	}
	if ev.Organization != nil {
		rec.OrgName = ev.Organization.Name
	}
	return rec
}

// decode strips a UTF-8 byte order mark, transcodes UTF-16 exports (which
// carry a BOM) and rejects anything that is still not UTF-8.
func decode(body []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), body)
	if err != nil {
		return nil, &model.NormalizationError{Reason: "decode payload", Err: err}
	}
	if !utf8.Valid(out) {
		return nil, &model.NormalizationError{Reason: "payload is not valid UTF-8"}
	}
	return out, nil
}

func normalizeJSON(body []byte) (Result, error) {
	items, err := resources(body)
	if err != nil {
		return Result{}, err
	}

	res := Result{Records: make([]model.NormalizedRecord, 0, len(items))}
	for _, item := range items {
		var ev model.RawEvent
		if err := json.Unmarshal(item, &ev); err != nil || strings.TrimSpace(ev.Type) == "" {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, FromEvent(ev))
	}
	return res, nil
}

// resources extracts the event list from either accepted JSON shape.
func resources(body []byte) ([]json.RawMessage, error) {
	if body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, &model.NormalizationError{Reason: "decode event array", Err: err}
		}
		return items, nil
	}

	var doc struct {
		Resources *[]json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &model.NormalizationError{Reason: "decode JSON document", Err: err}
	}
	if doc.Resources == nil {
		return nil, fmt.Errorf(`%w: JSON document has no "resources" list`, model.ErrPayloadShape)
	}
	return *doc.Resources, nil
}

func normalizeText(body []byte) (Result, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		res      Result
		delim    = ','
		lines    int
		leading  = true // no non-blank line seen yet
		seenData bool
	)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if leading {
			leading = false
			if d, ok := separatorHint(line); ok {
				delim = d
				continue
			}
		}

		row, err := parseLine(line, delim)
		if !seenData && err == nil && isHeader(row) {
			seenData = true
			continue
		}
		seenData = true
		lines++

		if err != nil || len(row) != len(model.RecordColumns) || strings.TrimSpace(row[0]) == "" {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, model.RecordFromRow(row))
	}
	if err := sc.Err(); err != nil {
		return Result{}, &model.NormalizationError{Reason: "read text payload", Err: err}
	}
	if lines > 0 && len(res.Records) == 0 {
		return Result{}, &model.NormalizationError{Reason: fmt.Sprintf("all %d lines are malformed", lines)}
	}
	return res, nil
}

func parseLine(line string, delim rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.Read()
}

// separatorHint recognizes the Excel "sep=," line written ahead of CSV exports.
func separatorHint(line string) (rune, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "sep=")
	if !ok || utf8.RuneCountInString(rest) != 1 {
		return 0, false
	}
	d, _ := utf8.DecodeRuneInString(rest)
	if d == '"' || d == utf8.RuneError {
		return 0, false
	}
	return d, true
}

func isHeader(row []string) bool {
	if len(row) != len(model.RecordColumns) {
		return false
	}
	for i, col := range model.RecordColumns {
		if !strings.EqualFold(strings.TrimSpace(row[i]), col) {
			return false
		}
	}
	return true
}
