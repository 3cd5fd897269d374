package logging

import (
	"regexp"

	"go.uber.org/zap"
)

// RedactedText is the replacement text for sensitive data
const RedactedText = "[REDACTED]"

var (
	// Authorization: Bearer <token>, any token shape
	bearerPattern = regexp.MustCompile(`(?i)(bearer)\s+[A-Za-z0-9\-_.~+/]+=*`)

	// Provider secret keys: sk-..., sk-ant-..., sk-proj-...
	secretKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{8,}`)

	// api_key=xxx, apikey: xxx, x-api-key: xxx, "api_key":"xxx"
	apiKeyPattern = regexp.MustCompile(`(?i)((?:x-)?api[_-]?key"?\s*[:=]\s*"?)[^"\s,&;}]+`)

	// password=xxx, pwd=xxx, pass=xxx
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host inside URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)
)

// Redact masks bearer tokens, API keys, passwords and URL credentials in a message.
func Redact(msg string) string {
	if msg == "" {
		return ""
	}
	sanitized := bearerPattern.ReplaceAllString(msg, "${1} "+RedactedText)
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}"+RedactedText)
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
	return sanitized
}

// RedactError returns the redacted error text, "" for nil.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}

// SafeError is a zap field carrying a redacted error message.
func SafeError(err error) zap.Field {
	return zap.String("error", RedactError(err))
}
