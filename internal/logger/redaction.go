package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// redactionRule replaces the secret part of a match and keeps the key
type redactionRule struct {
	pattern *regexp.Regexp
	replace string
}

// Redactor scrubs credentials and session tokens from log output
type Redactor struct {
	rules []redactionRule
}

// NewRedactor creates a redactor with the default rules
func NewRedactor() *Redactor {
	keyed := func(expr string) redactionRule {
		return redactionRule{pattern: regexp.MustCompile(expr), replace: "${1}" + redacted}
	}
	return &Redactor{
		rules: []redactionRule{
			// login and enterCode parameters
			keyed(`(?i)("password"\s*:\s*")[^"]*`),
			keyed(`(?i)("code"\s*:\s*")[^"]*`),
			keyed(`(?i)(password=)[^\s&"]+`),

			// browsy session tokens, as a header or a log field
			keyed(`(?i)(X-Browsy-Session["\s:=]+)[a-zA-Z0-9._-]+`),
			keyed(`(?i)("(?:session|token|session_token)"\s*:\s*")[^"]+`),

			// gateway shared secret
			keyed(`(?i)("(?:secret|shared_secret)"\s*:\s*")[^"]+`),
			keyed(`(Bearer\s+)[a-zA-Z0-9._~+/-]+=*`),
		},
	}
}

// AddPattern adds a rule that replaces every match of pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{pattern: re, replace: redacted})
	return nil
}

// Redact returns s with every secret replaced
func (r *Redactor) Redact(s string) string {
	for _, rule := range r.rules {
		s = rule.pattern.ReplaceAllString(s, rule.replace)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write always reports len(p) on success
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
