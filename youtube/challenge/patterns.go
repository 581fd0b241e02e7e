package challenge

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dlclark/regexp2"
)

// backtrackTimeout bounds a single regexp2 match against a player script.
const backtrackTimeout = 2 * time.Second

// Pattern is a named regular expression tried against a page or script.
// Expr may contain a single %s verb that is replaced with a quoted identifier.
// Backtracking patterns are compiled with regexp2 so they can use
// back-references; all others use RE2.
type Pattern struct {
	Name         string
	Expr         string
	Backtracking bool
}

// PlayerPathPatterns locate the player script path inside the embed page.
// Group 0 is the path.
var PlayerPathPatterns = []Pattern{
	{Name: "player-ias", Expr: `/s/player/[\w-]+/player_ias\.vflset/[\w-]+/base\.js`},
	{Name: "player-any", Expr: `/s/player/[A-Za-z0-9_-]+/[A-Za-z0-9._/-]*/base\.js`},
}

// FuncNamePatterns locate the call site of the n transform. Group 1 is the
// function (or array) name, group 2 an optional array index.
var FuncNamePatterns = []Pattern{
	{Name: "n-call", Expr: `\.get\("n"\)\)&&\(b=([a-zA-Z0-9$]+)(?:\[(\d+)\])?\([a-zA-Z0-9]\)`},
	{Name: "n-call-spaced", Expr: `\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]+)(?:\[(\d+)\])?\([a-zA-Z0-9$]+\)`},
	{Name: "n-call-loose", Expr: `\.get\("n"\).*?&&.*?([a-zA-Z0-9$]+)(?:\[(\d+)\])?\([a-zA-Z0-9$]+\)`},
}

// ArrayPatterns resolve `var NAME=[a,b,c]` when the call site indexes an array.
// Group 1 is the element list.
var ArrayPatterns = []Pattern{
	{Name: "var-array", Expr: `var %s\s*=\s*\[(.+?)\]\s*[,;]`},
}

// FuncBodyPatterns capture the transform definition. Group 1 is the
// parameter name, group 2 the body without the enclosing braces.
var FuncBodyPatterns = []Pattern{
	{
		Name:         "function-join-backref",
		Expr:         `(?:^|[^\w$])%s\s*=\s*function\s*\(([\w$]+)\)\s*\{(.+?\}\s*return\s+\1\.join\(""\))\};`,
		Backtracking: true,
	},
	{
		Name: "function-join",
		Expr: `(?s)(?:^|[^\w$])%s\s*=\s*function\s*\(([\w$]+)\)\s*\{(.+?\}\s*return\s+[\w$]+\.join\(""\))\};`,
	},
}

// matcher is the subset shared by the RE2 and regexp2 engines.
type matcher interface {
	find(s string) []string
}

type re2Matcher struct{ re *regexp.Regexp }

func (m re2Matcher) find(s string) []string {
	return m.re.FindStringSubmatch(s)
}

type backtrackMatcher struct{ re *regexp2.Regexp }

func (m backtrackMatcher) find(s string) []string {
	match, err := m.re.FindStringMatch(s)
	if err != nil || match == nil {
		return nil
	}
	groups := match.Groups()
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.String()
	}
	return out
}

// compile builds the matcher for p, substituting ident (already quoted) when
// the expression is a template.
func (p Pattern) compile(ident string) (matcher, error) {
	expr := p.Expr
	if ident != "" {
		expr = fmt.Sprintf(p.Expr, ident)
	}
	if p.Backtracking {
		re, err := regexp2.Compile(expr, regexp2.Singleline)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %v", p.Name, err)
		}
		re.MatchTimeout = backtrackTimeout
		return backtrackMatcher{re: re}, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %v", p.Name, err)
	}
	return re2Matcher{re: re}, nil
}

// firstMatch tries patterns in order and returns the groups of the first hit
// together with the name of the pattern that matched.
func firstMatch(patterns []Pattern, ident, s string) ([]string, string) {
	return firstAccepted(patterns, ident, s, nil)
}

// firstAccepted is firstMatch with a veto: a match rejected by accept falls
// through to the next pattern.
func firstAccepted(patterns []Pattern, ident, s string, accept func([]string) bool) ([]string, string) {
	for _, p := range patterns {
		m, err := p.compile(ident)
		if err != nil {
			continue
		}
		groups := m.find(s)
		if groups == nil || accept != nil && !accept(groups) {
			continue
		}
		return groups, p.Name
	}
	return nil, ""
}
