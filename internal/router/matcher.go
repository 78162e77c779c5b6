// Package router provides route registration and path template matching
// for the gateway core.
package router

import (
	"regexp"
	"strings"

	"github.com/vvoronin/routegw/internal/util"
)

// Matcher matches concrete request paths against a compiled path template.
//
// Template syntax:
//   - a segment beginning with ':' matches exactly one non-empty,
//     slash-free segment and captures it under the parameter name
//   - a literal '*' matches the remainder of the path, slashes included;
//     a trailing '*' also matches the empty remainder
//   - everything else matches literally
//
// The compiled expression is anchored to the full path, never a substring.
type Matcher struct {
	template string
	regex    *regexp.Regexp
	params   []string
}

// Compile compiles a path template into a Matcher.
func Compile(template string) (*Matcher, error) {
	if template == "" {
		return nil, util.NewValidationError("path template is empty")
	}

	var pattern strings.Builder
	pattern.WriteString("^")

	var params []string
	segments := strings.Split(template, "/")
	for i, seg := range segments {
		if i > 0 {
			pattern.WriteString("/")
		}
		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			params = append(params, name)
			pattern.WriteString("(?P<")
			pattern.WriteString(name)
			pattern.WriteString(">[^/]+)")
		case seg == "*":
			pattern.WriteString(".*")
		default:
			pattern.WriteString(regexp.QuoteMeta(seg))
		}
	}
	pattern.WriteString("$")

	regex, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, err
	}

	return &Matcher{
		template: template,
		regex:    regex,
		params:   params,
	}, nil
}

// Matches reports whether the concrete path matches the template.
func (m *Matcher) Matches(path string) bool {
	return m.regex.MatchString(path)
}

// Params extracts captured path parameters from a matching path. It
// returns nil when the path does not match. Parameter capture is an
// extension point for the route handler; the core routing decision only
// uses Matches.
func (m *Matcher) Params(path string) map[string]string {
	matches := m.regex.FindStringSubmatch(path)
	if matches == nil {
		return nil
	}

	params := make(map[string]string, len(m.params))
	for i, name := range m.regex.SubexpNames() {
		if i > 0 && name != "" && i < len(matches) {
			params[name] = matches[i]
		}
	}
	return params
}

// Template returns the original path template.
func (m *Matcher) Template() string {
	return m.template
}

// HasPlaceholders reports whether the template contains parameters or
// wildcards.
func HasPlaceholders(template string) bool {
	return strings.Contains(template, ":") || strings.Contains(template, "*")
}
