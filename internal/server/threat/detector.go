// Package threat screens inbound requests for scanner user agents and for
// injection or traversal payloads. It is a heuristic filter, not a parser:
// obfuscated payloads get through and legitimate text can trip a rule.
// Parameterized queries in the repositories remain the real SQL defence.
package threat

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Source tells which part of the request a verdict is about.
type Source string

const (
	SourceUserAgent Source = "user_agent"
	SourceURL       Source = "url"
	SourceBody      Source = "body"
)

// Request is the part of an inbound call the detector looks at.
type Request struct {
	Method    string
	Path      string
	Query     string
	Body      []byte
	UserAgent string
	ClientIP  string
}

// Verdict is the result of Inspect. Category and Reason are empty when the
// request is allowed.
type Verdict struct {
	Allowed  bool
	Category string
	Reason   string
	Source   Source
}

var allow = Verdict{Allowed: true}

type compiledFamily struct {
	name     string
	reason   string
	patterns []*regexp.Regexp
}

// Detector is immutable after construction and safe for concurrent use.
type Detector struct {
	userAgents []*regexp.Regexp
	families   []compiledFamily
}

// NewDetector compiles rules. Every pattern is made case-insensitive.
func NewDetector(rules RuleSet) (*Detector, error) {
	d := &Detector{}
	for _, ua := range rules.UserAgents {
		re, err := regexp.Compile(`(?i)` + ua)
		if err != nil {
			return nil, fmt.Errorf("user agent pattern %q: %w", ua, err)
		}
		d.userAgents = append(d.userAgents, re)
	}
	for _, f := range rules.Families {
		if f.Reason == "" {
			return nil, fmt.Errorf("family %q has no reason", f.Name)
		}
		cf := compiledFamily{name: f.Name, reason: f.Reason}
		for _, p := range f.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("family %q pattern %q: %w", f.Name, p, err)
			}
			cf.patterns = append(cf.patterns, re)
		}
		d.families = append(d.families, cf)
	}
	return d, nil
}

// Default returns a detector with the built-in rules.
func Default() *Detector {
	d, err := NewDetector(DefaultRules())
	if err != nil {
		panic(err)
	}
	return d
}

// Inspect applies the user agent denylist, then the pattern families to
// "path?query" and finally to the body. Bodies that are not valid UTF-8 are
// treated as binary uploads and skipped.
func (d *Detector) Inspect(req Request) Verdict {
	for _, re := range d.userAgents {
		if req.UserAgent != "" && re.MatchString(req.UserAgent) {
			return Verdict{Category: "blocked_user_agent", Reason: ReasonBlockedUserAgent, Source: SourceUserAgent}
		}
	}

	query := req.Query
	if decoded, err := url.QueryUnescape(query); err == nil {
		query = decoded
	}
	if v := d.scan(req.Path+"?"+query, SourceURL); !v.Allowed {
		return v
	}

	if len(req.Body) > 0 && utf8.Valid(req.Body) {
		if v := d.scan(string(req.Body), SourceBody); !v.Allowed {
			return v
		}
	}
	return allow
}

func (d *Detector) scan(content string, src Source) Verdict {
	content = strings.ToLower(content)
	for _, f := range d.families {
		for _, re := range f.patterns {
			if re.MatchString(content) {
				return Verdict{Category: f.name, Reason: f.reason, Source: src}
			}
		}
	}
	return allow
}
