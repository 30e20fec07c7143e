// Package mail builds RFC 5322 messages for the SMTP transport, guarding
// against header injection and preparing the body for DATA framing.
package mail

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
)

const (
	// MaxSubjectLen follows the RFC 5322 line-length convention.
	MaxSubjectLen = 998
	// MaxBodyLen is the application-level ceiling on body size.
	MaxBodyLen = 100000
)

var addressRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateAddress checks the local@domain-with-dot shape.
func ValidateAddress(addr string) error {
	if !addressRe.MatchString(addr) {
		return appErrors.NewValidation("invalid email address: %q", addr)
	}
	return nil
}

// ValidateSubject rejects embedded line breaks (header injection) and
// over-long subjects.
func ValidateSubject(subject string) error {
	if strings.ContainsAny(subject, "\r\n") {
		return appErrors.NewValidation("subject must not contain line breaks")
	}
	if len(subject) > MaxSubjectLen {
		return appErrors.NewValidation("subject exceeds %d bytes", MaxSubjectLen)
	}
	return nil
}

// ValidateBody caps the body size.
func ValidateBody(body string) error {
	if len(body) > MaxBodyLen {
		return appErrors.NewValidation("body exceeds %d bytes", MaxBodyLen)
	}
	return nil
}

// Compose builds a complete text/html message: headers, HTML-escaped body,
// CRLF line endings throughout, and dot-stuffing so the terminating "."
// sequence on the wire stays unambiguous.
func Compose(fromAddr, fromName, toAddr, subject, body string) ([]byte, error) {
	if err := ValidateAddress(fromAddr); err != nil {
		return nil, appErrors.NewValidation("invalid sender address: %q", fromAddr)
	}
	if err := ValidateAddress(toAddr); err != nil {
		return nil, err
	}
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if err := ValidateBody(body); err != nil {
		return nil, err
	}

	from := fmt.Sprintf("<%s>", fromAddr)
	if fromName != "" {
		from = fmt.Sprintf(`"%s" <%s>`, escapeDisplayName(fromName), fromAddr)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: <" + toAddr + ">\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(dotStuff(htmlBody(body)))
	b.WriteString("\r\n")

	return []byte(b.String()), nil
}

// escapeDisplayName makes a name safe inside a quoted header string:
// backslash and double quote are escaped, embedded line breaks stripped.
func escapeDisplayName(name string) string {
	name = strings.NewReplacer("\r", "", "\n", "").Replace(name)
	name = strings.ReplaceAll(name, `\`, `\\`)
	return strings.ReplaceAll(name, `"`, `\"`)
}

// htmlBody escapes the content for text/html and converts newlines to <br>.
func htmlBody(body string) string {
	escaped := html.EscapeString(body)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br />\r\n")
}

// dotStuff doubles a leading dot on every line (RFC 5321 §4.5.2).
func dotStuff(body string) string {
	lines := strings.Split(body, "\r\n")
	for i, line := range lines {
		if strings.HasPrefix(line, ".") {
			lines[i] = "." + line
		}
	}
	return strings.Join(lines, "\r\n")
}
