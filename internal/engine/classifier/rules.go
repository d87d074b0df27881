package classifier

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/auditor/internal/model"
)

// Rule tags an event when its type contains any of the listed substrings.
type Rule struct {
	Tag      model.Tag `yaml:"tag"`
	Contains []string  `yaml:"contains"`
}

// DefaultRules returns the standard security rule set. The checks are coarse
// substring heuristics and overlap on purpose: "UnauthorizedDelete" is both
// unauthorized access and suspicious activity.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: model.TagFailedLogin, Contains: []string{"LoginFailure"}},
		{Tag: model.TagUnauthorizedAccess, Contains: []string{"Unauthorized"}},
		{Tag: model.TagSuspiciousActivity, Contains: []string{"Delete", "Update", "Create"}},
	}
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule file of the form:
//
//	rules:
//	  - tag: FailedLogin
//	    contains: [LoginFailure]
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule set.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("classifier: parse rules: %w", err)
	}
	if err := Validate(f.Rules); err != nil {
		return nil, err
	}
	return f.Rules, nil
}

// Validate checks that every rule names a known tag, no tag is defined twice
// and no rule has an empty match list.
func Validate(rules []Rule) error {
	if len(rules) == 0 {
		return errors.New("classifier: rule set is empty")
	}
	seen := make(map[model.Tag]bool, len(rules))
	for i, r := range rules {
		if !r.Tag.Valid() {
			return fmt.Errorf("classifier: rule %d: unknown tag %q", i, r.Tag)
		}
		if seen[r.Tag] {
			return fmt.Errorf("classifier: rule %d: tag %s defined twice", i, r.Tag)
		}
		seen[r.Tag] = true
		if len(r.Contains) == 0 {
			return fmt.Errorf("classifier: rule %d (%s): no substrings", i, r.Tag)
		}
		for _, s := range r.Contains {
			if s == "" {
				return fmt.Errorf("classifier: rule %d (%s): empty substring", i, r.Tag)
			}
		}
	}
	return nil
}
