// Package scanner implements best-effort regex detection of
// credential-like patterns in submitted snippet content.
package scanner

import "regexp"

// Status of a scan, surfaced to clients as scan_status.
const (
	StatusClean  = "clean"
	StatusWarned = "warned"
)

// Finding is one matched pattern kind. Matched text is never retained.
type Finding struct {
	Kind string
}

// Result is the outcome of scanning one piece of content.
type Result struct {
	Status   string
	Findings []Finding
}

// Clean reports whether nothing credential-like was detected.
func (r Result) Clean() bool { return r.Status == StatusClean }

type pattern struct {
	kind string
	re   *regexp.Regexp
}

// Detection table. Patterns are deliberately loose: this is an advisory
// scan, and false positives only produce a warning.
var patterns = []pattern{
	{"aws_access_key", regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"private_key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`)},
	{"github_token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"slack_token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"google_api_key", regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`)},
	{"generic_secret", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|password|passwd|token)\b\s*[:=]\s*['"][^'"\s]{8,}['"]`)},
	{"url_credentials", regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^/\s:@]+:[^/\s:@]+@`)},
}

// Scanner scans content against the fixed pattern table.
type Scanner struct {
	// BlockOnDetect makes findings fatal for snippet creation instead of
	// advisory. Off by default.
	BlockOnDetect bool
}

// New returns a scanner with the default soft-warn policy.
func New() *Scanner { return &Scanner{} }

// Scan checks content and returns a result. Every matching pattern kind
// is reported once.
func (s *Scanner) Scan(content string) Result {
	var findings []Finding
	for _, p := range patterns {
		if p.re.MatchString(content) {
			findings = append(findings, Finding{Kind: p.kind})
		}
	}
	if len(findings) == 0 {
		return Result{Status: StatusClean}
	}
	return Result{Status: StatusWarned, Findings: findings}
}
