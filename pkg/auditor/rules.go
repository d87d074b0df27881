package auditor

import "github.com/crimson-sun/auditor/internal/engine/classifier"

// Rule maps a tag (FailedLogin, UnauthorizedAccess or SuspiciousActivity) to
// case-insensitive substrings of the event type.
type Rule struct {
	Tag      string
	Contains []string
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return fromInternal(classifier.DefaultRules())
}

// Rules returns the rules this Auditor classifies with. The result is a
// copy; modifying it has no effect.
func (a *Auditor) Rules() []Rule {
	return fromInternal(a.rules)
}

func fromInternal(rules []classifier.Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{Tag: string(r.Tag), Contains: append([]string(nil), r.Contains...)}
	}
	return out
}
