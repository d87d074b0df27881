package classifier

import (
	"sort"
	"strings"

	"github.com/crimson-sun/auditor/internal/model"
)

// Classification maps each tag to the indices of the records it matched.
// Index slices are ascending; a record index may appear under several tags.
type Classification map[model.Tag][]int

// Count returns how many records matched tag.
func (c Classification) Count(tag model.Tag) int {
	return len(c[tag])
}

// Classifier tags records by case-insensitive substring match on event_type.
// Rules are independent: one event type can satisfy several of them.
type Classifier struct {
	rules []compiledRule
}

type compiledRule struct {
	tag     model.Tag
	needles []string // lowercased
}

// New creates a Classifier from the given rules. Use DefaultRules for the
// standard rule set.
func New(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{tag: r.Tag}
		for _, s := range r.Contains {
			if s == "" {
				continue
			}
			cr.needles = append(cr.needles, strings.ToLower(s))
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// Match returns the tags whose rule matches eventType, in rule order.
func (c *Classifier) Match(eventType string) []model.Tag {
	et := strings.ToLower(eventType)
	var tags []model.Tag
	for _, r := range c.rules {
		if r.matches(et) {
			tags = append(tags, r.tag)
		}
	}
	return tags
}

// Classify tags every record. Every known and configured tag is present in
// the result, with an empty slice when nothing matched.
func (c *Classifier) Classify(records []model.NormalizedRecord) Classification {
	out := make(Classification, len(model.Tags))
	for _, t := range model.Tags {
		out[t] = []int{}
	}
	for _, r := range c.rules {
		if _, ok := out[r.tag]; !ok {
			out[r.tag] = []int{}
		}
	}

	for i, rec := range records {
		et := strings.ToLower(rec.EventType)
		for _, r := range c.rules {
			if r.matches(et) {
				out[r.tag] = append(out[r.tag], i)
			}
		}
	}

	// Two rules sharing a tag could both hit the same record.
	for tag, idx := range out {
		out[tag] = dedupeSorted(idx)
	}
	return out
}

func (r compiledRule) matches(lowerEventType string) bool {
	for _, n := range r.needles {
		if strings.Contains(lowerEventType, n) {
			return true
		}
	}
	return false
}

func dedupeSorted(idx []int) []int {
	if len(idx) < 2 {
		return idx
	}
	sort.Ints(idx)
	out := idx[:1]
	for _, v := range idx[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
