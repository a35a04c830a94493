package gethead

import (
	"regexp"
	"strings"

	"github.com/keithlinneman/gethead/internal/xerrors"
)

// Rule is one ignore rule: an Exact path or a Pattern.
type Rule interface {
	match(path string) bool
	String() string
}

// Exact matches a path by equality only.
type Exact string

func (e Exact) match(path string) bool { return string(e) == path }

func (e Exact) String() string { return string(e) }

// Pattern matches when its expression finds a match anywhere in the path.
// Anchor the expression to match whole paths. The zero Pattern never
// matches.
type Pattern struct {
	re *regexp.Regexp
}

func NewPattern(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, xerrors.Wrapf(err, "ignore pattern %q", expr)
	}
	return Pattern{re: re}, nil
}

func MustPattern(expr string) Pattern {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// PatternOf wraps an already compiled expression.
func PatternOf(re *regexp.Regexp) Pattern { return Pattern{re: re} }

func (p Pattern) match(path string) bool { return p.re != nil && p.re.MatchString(path) }

func (p Pattern) String() string {
	if p.re == nil {
		return ""
	}
	return patternPrefix + p.re.String()
}

// Rules is an ordered rule set. A single rule is a one-element Rules and
// nil is the absent set.
type Rules []Rule

// Strings renders the rules in the form ParseRule accepts.
func (rs Rules) Strings() []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r.String())
		}
	}
	return out
}

// Match reports whether any rule matches path. Nil rules never match.
func Match(path string, rules Rules) bool {
	for _, r := range rules {
		if r != nil && r.match(path) {
			return true
		}
	}
	return false
}

const patternPrefix = "re:"

// ParseRule reads "re:<expr>" as a Pattern and anything else as Exact.
func ParseRule(s string) (Rule, error) {
	if expr, ok := strings.CutPrefix(s, patternPrefix); ok {
		return NewPattern(expr)
	}
	return Exact(s), nil
}

// ParseRules parses each entry with ParseRule. Blank entries are skipped.
func ParseRules(in []string) (Rules, error) {
	var out Rules
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		r, err := ParseRule(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
