package message

import "regexp"

var (
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+\d{1,2}\s)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}`)
	ipv4Pattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Redact masks email addresses, phone numbers and IPv4 addresses. Emails go
// first so their digits are never mistaken for a phone number.
func Redact(input string) string {
	out := emailPattern.ReplaceAllString(input, "[REDACTED_EMAIL]")
	out = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	return ipv4Pattern.ReplaceAllString(out, "[REDACTED_IP]")
}
