// Package privacy keeps credentials out of log output.
package privacy

import (
	"fmt"
	"regexp"
	"sort"
)

const redactedPlaceholder = "[REDACTED]"

// minSecretLen guards against scrubbing every occurrence of a trivially
// short value.
const minSecretLen = 4

// builtinPatterns match credentials regardless of configuration: bearer
// headers, JWTs, and Bluesky app passwords (xxxx-xxxx-xxxx-xxxx).
var builtinPatterns = []string{
	`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`,
	`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`,
	`\b[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}\b`,
}

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Redactor scrubs known secret values and credential-shaped strings.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor builds a redactor from extra regex patterns and literal
// secret values. Literals shorter than four characters are ignored.
func NewRedactor(patterns []string, secrets ...string) (*Redactor, error) {
	// Longest literal first so a secret containing another is removed whole.
	lits := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) >= minSecretLen {
			lits = append(lits, s)
		}
	}
	sort.Slice(lits, func(i, j int) bool { return len(lits[i]) > len(lits[j]) })

	all := make([]string, 0, len(lits)+len(builtinPatterns)+len(patterns))
	for _, s := range lits {
		all = append(all, regexp.QuoteMeta(s))
	}
	all = append(all, builtinPatterns...)
	all = append(all, patterns...)

	compiled, err := Compile(all)
	if err != nil {
		return nil, err
	}
	return &Redactor{patterns: compiled}, nil
}

// String returns s with every match replaced. A nil Redactor returns s.
func (r *Redactor) String(s string) string {
	if r == nil {
		return s
	}
	return Apply(s, r.patterns)
}

// Error returns the redacted error text, or "" for a nil error.
func (r *Redactor) Error(err error) string {
	if err == nil {
		return ""
	}
	return r.String(err.Error())
}
