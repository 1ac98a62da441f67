package worker

import (
	"html"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"globcrm/provider"
)

// Gmail label ids that drive message flags
const (
	labelUnread  = "UNREAD"
	labelStarred = "STARRED"
)

const previewLength = 200

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// headerValue returns the named header from the message payload,
// case-insensitively. Empty string when absent.
func headerValue(m *provider.Message, name string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// parseAddress splits a From-style header into (address, display name) by
// locating a trailing angle-bracket pair. A bare address yields an empty
// name.
func parseAddress(value string) (addr, name string) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, ">") {
		if idx := strings.LastIndex(value, "<"); idx >= 0 {
			addr = strings.TrimSpace(value[idx+1 : len(value)-1])
			name = strings.Trim(strings.TrimSpace(value[:idx]), `"`)
			return addr, name
		}
	}
	return value, ""
}

// splitAddressList parses a comma-separated To/Cc/Bcc header into a list of
// bare addresses, dropping display names and empty entries.
func splitAddressList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	var addrs []string
	for _, part := range strings.Split(value, ",") {
		addr, _ := parseAddress(part)
		if addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// extractBodies walks the part tree depth-first and decodes the first
// text/html and first text/plain parts found, short-circuiting once both
// are present.
func extractBodies(root *provider.Part) (htmlBody, textBody string, err error) {
	var walk func(p *provider.Part) error
	walk = func(p *provider.Part) error {
		if p == nil || (htmlBody != "" && textBody != "") {
			return nil
		}

		if p.Data != "" {
			switch {
			case htmlBody == "" && strings.EqualFold(p.MimeType, "text/html"):
				decoded, derr := provider.DecodeBase64URL(p.Data)
				if derr != nil {
					return derr
				}
				htmlBody = string(decoded)
			case textBody == "" && strings.EqualFold(p.MimeType, "text/plain"):
				decoded, derr := provider.DecodeBase64URL(p.Data)
				if derr != nil {
					return derr
				}
				textBody = string(decoded)
			}
		}

		for _, child := range p.Parts {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	err = walk(root)
	return htmlBody, textBody, err
}

// hasAttachments reports whether any part carries both a filename and an
// attachment reference.
func hasAttachments(root *provider.Part) bool {
	if root == nil {
		return false
	}
	if root.Filename != "" && root.AttachmentID != "" {
		return true
	}
	for _, child := range root.Parts {
		if hasAttachments(child) {
			return true
		}
	}
	return false
}

// buildPreview produces a short text preview: the first 200 characters of
// plain text when present, else the tag-stripped and entity-decoded HTML,
// else nil.
func buildPreview(textBody, htmlBody string) *string {
	source := strings.TrimSpace(textBody)
	if source == "" {
		source = strings.TrimSpace(stripHTMLTags(htmlBody))
	}
	if source == "" {
		return nil
	}

	runes := []rune(source)
	if len(runes) > previewLength {
		source = string(runes[:previewLength])
	}
	return &source
}

func stripHTMLTags(s string) string {
	return html.UnescapeString(htmlTagPattern.ReplaceAllString(s, " "))
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// parseSentAt resolves the message timestamp from the Date header, falling
// back to the provider's internal date when the header is missing or
// malformed.
func parseSentAt(m *provider.Message) time.Time {
	if raw := headerValue(m, "Date"); raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			return t
		}
	}
	return m.InternalDate
}
