package auditor

type options struct {
	rules     []Rule
	rulesFile string
	format    string
}

// Option configures an Auditor instance.
type Option func(*options)

// WithRules replaces the default classification rules.
func WithRules(rules []Rule) Option {
	return func(o *options) {
		o.rules = rules
	}
}

// WithRulesFile loads classification rules from a YAML file. It takes
// precedence over WithRules.
func WithRulesFile(path string) Option {
	return func(o *options) {
		o.rulesFile = path
	}
}

// WithFormat forces the input format: "json", "text" or "auto".
// Default: "auto", which sniffs the first byte.
func WithFormat(f string) Option {
	return func(o *options) {
		o.format = f
	}
}

func defaultOptions() options {
	return options{format: "auto"}
}
