package threat

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	ReasonBlockedUserAgent = "Blocked user agent"
	ReasonSQLInjection     = "SQL Injection attempt"
	ReasonXSS              = "XSS attempt"
	ReasonFileTraversal    = "File traversal attempt"
	ReasonCodeInjection    = "Code injection attempt"
)

// Family is an ordered group of patterns sharing one verdict. Patterns are
// RE2 expressions matched case-insensitively anywhere in the content.
type Family struct {
	Name     string   `toml:"name"`
	Reason   string   `toml:"reason"`
	Patterns []string `toml:"patterns"`
}

// RuleSet is the complete detector configuration. Families are tried in
// order and the first match wins.
type RuleSet struct {
	UserAgents []string `toml:"user_agents"`
	Families   []Family `toml:"family"`
}

// DefaultRules returns the built-in rule set.
//
// The SQL keyword patterns need statement context (UNION SELECT, DELETE FROM,
// ...) so that ordinary words in form fields and passwords pass. Quote and
// comment tricks are matched on their own.
func DefaultRules() RuleSet {
	return RuleSet{
		UserAgents: []string{"sqlmap", "nikto", "nessus", "masscan", "nmap", "w3af", "burp", "acunetix"},
		Families: []Family{
			{
				Name:   "sql_injection",
				Reason: ReasonSQLInjection,
				Patterns: []string{
					`\bunion\b\s+(all\s+)?\bselect\b`,
					`\bselect\b.+\bfrom\b`,
					`\binsert\b\s+into\b`,
					`\bupdate\b\s+\w+\s+\bset\b`,
					`\bdelete\b\s+from\b`,
					`\b(drop|create|alter)\b\s+(table|database|schema|user|index)\b`,
					`\b(or|and)\b\s+\d+\s*=\s*\d+`,
					`'\s*(or|and)\s+'\w+'\s*=\s*'\w+'`,
					`'\s*(--|#)`,
					`--\s*$`,
					`/\*|\*/`,
				},
			},
			{
				Name:   "xss",
				Reason: ReasonXSS,
				Patterns: []string{
					`<script[^>]*>.*?</script>`,
					`javascript:`,
					`\bon[a-z]+\s*=`,
					`<iframe[^>]*>.*?</iframe>`,
					`<object[^>]*>.*?</object>`,
					`<embed[^>]*>.*?</embed>`,
				},
			},
			{
				Name:   "file_traversal",
				Reason: ReasonFileTraversal,
				Patterns: []string{
					`\.\./`,
					`\.\.\\`,
					`/etc/passwd`,
					`/proc/`,
					`\\windows\\`,
					`\\system32\\`,
				},
			},
			{
				Name:   "code_injection",
				Reason: ReasonCodeInjection,
				Patterns: []string{
					`<\?php`,
					`\beval\s*\(`,
					`\bsystem\s*\(`,
					`\bexec\s*\(`,
					`\bshell_exec\s*\(`,
					`\bpassthru\s*\(`,
					`\bbase64_decode\s*\(`,
					`\bgzinflate\s*\(`,
					`<!--#exec`,
					`<%.*%>`,
					`\$\{.*\}`,
					`\{\{.*\}\}`,
				},
			},
		},
	}
}

// LoadRules reads a TOML rule file. Sections present in the file replace the
// corresponding built-in sections; absent ones keep the defaults.
//
//	user_agents = ["sqlmap", "nikto"]
//
//	[[family]]
//	name = "sql_injection"
//	reason = "SQL Injection attempt"
//	patterns = ['\bunion\b\s+select\b']
func LoadRules(path string) (RuleSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read threat rules: %w", err)
	}
	return ParseRules(string(b))
}

// ParseRules is LoadRules for in-memory TOML.
func ParseRules(data string) (RuleSet, error) {
	var file RuleSet
	md, err := toml.Decode(data, &file)
	if err != nil {
		return RuleSet{}, fmt.Errorf("parse threat rules: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return RuleSet{}, fmt.Errorf("parse threat rules: unknown keys %v", undecoded)
	}

	rules := DefaultRules()
	if md.IsDefined("user_agents") {
		rules.UserAgents = file.UserAgents
	}
	if md.IsDefined("family") {
		rules.Families = file.Families
	}
	return rules, nil
}
