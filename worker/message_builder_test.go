package worker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globcrm/provider"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantAddr string
		wantName string
	}{
		{"quoted display name", `"Jane Doe" <jane@example.com>`, "jane@example.com", "Jane Doe"},
		{"unquoted display name", "Jane Doe <jane@example.com>", "jane@example.com", "Jane Doe"},
		{"bare address", "jane@example.com", "jane@example.com", ""},
		{"brackets only", "<jane@example.com>", "jane@example.com", ""},
		{"surrounding whitespace", "  Jane Doe  <jane@example.com> ", "jane@example.com", "Jane Doe"},
		{"angle bracket inside name", "Jane <Doe> <jane@example.com>", "jane@example.com", "Jane <Doe>"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, name := parseAddress(tt.in)
			assert.Equal(t, tt.wantAddr, addr)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestSplitAddressList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			"mixed forms",
			`"Jane Doe" <jane@example.com>, bob@example.com, Carol <carol@example.com>`,
			[]string{"jane@example.com", "bob@example.com", "carol@example.com"},
		},
		{"single", "bob@example.com", []string{"bob@example.com"}},
		{"trailing comma", "bob@example.com,", []string{"bob@example.com"}},
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitAddressList(tt.in))
		})
	}
}

func TestHeaderValueCaseInsensitive(t *testing.T) {
	m := &provider.Message{
		Payload: &provider.Part{
			Headers: []provider.Header{
				{Name: "subject", Value: "lowercase header name"},
				{Name: "FROM", Value: "jane@example.com"},
			},
		},
	}

	assert.Equal(t, "lowercase header name", headerValue(m, "Subject"))
	assert.Equal(t, "jane@example.com", headerValue(m, "From"))
	assert.Empty(t, headerValue(m, "Cc"))
	assert.Empty(t, headerValue(&provider.Message{}, "Subject"))
}

func TestExtractBodies(t *testing.T) {
	root := &provider.Part{
		MimeType: "multipart/mixed",
		Parts: []*provider.Part{
			{
				MimeType: "multipart/alternative",
				Parts: []*provider.Part{
					{MimeType: "text/plain", Data: provider.EncodeBase64URL([]byte("plain body"))},
					{MimeType: "text/html", Data: provider.EncodeBase64URL([]byte("<p>html body</p>"))},
				},
			},
			// A later plain part must not override the first one found
			{MimeType: "text/plain", Data: provider.EncodeBase64URL([]byte("signature part"))},
		},
	}

	htmlBody, textBody, err := extractBodies(root)
	require.NoError(t, err)
	assert.Equal(t, "<p>html body</p>", htmlBody)
	assert.Equal(t, "plain body", textBody)
}

func TestExtractBodiesSinglePart(t *testing.T) {
	root := &provider.Part{
		MimeType: "text/plain",
		Data:     provider.EncodeBase64URL([]byte("just text")),
	}

	htmlBody, textBody, err := extractBodies(root)
	require.NoError(t, err)
	assert.Empty(t, htmlBody)
	assert.Equal(t, "just text", textBody)

	htmlBody, textBody, err = extractBodies(nil)
	require.NoError(t, err)
	assert.Empty(t, htmlBody)
	assert.Empty(t, textBody)
}

func TestExtractBodiesBadEncoding(t *testing.T) {
	root := &provider.Part{MimeType: "text/plain", Data: "!!! not base64 !!!"}
	_, _, err := extractBodies(root)
	require.Error(t, err)
}

func TestHasAttachments(t *testing.T) {
	withAttachment := &provider.Part{
		MimeType: "multipart/mixed",
		Parts: []*provider.Part{
			{MimeType: "text/plain", Data: "Zm91cg"},
			{MimeType: "application/pdf", Filename: "invoice.pdf", AttachmentID: "att-1"},
		},
	}
	assert.True(t, hasAttachments(withAttachment))

	// Inline parts carry a filename without an attachment reference
	inlineOnly := &provider.Part{
		MimeType: "multipart/mixed",
		Parts: []*provider.Part{
			{MimeType: "image/png", Filename: "logo.png"},
		},
	}
	assert.False(t, hasAttachments(inlineOnly))
	assert.False(t, hasAttachments(nil))
}

func TestBuildPreview(t *testing.T) {
	t.Run("prefers plain text", func(t *testing.T) {
		p := buildPreview("plain wins", "<p>html loses</p>")
		require.NotNil(t, p)
		assert.Equal(t, "plain wins", *p)
	})

	t.Run("falls back to stripped html", func(t *testing.T) {
		p := buildPreview("", "<p>Hello &amp; welcome</p>")
		require.NotNil(t, p)
		assert.Equal(t, "Hello & welcome", strings.TrimSpace(*p))
	})

	t.Run("truncates to 200 characters", func(t *testing.T) {
		p := buildPreview(strings.Repeat("é", 300), "")
		require.NotNil(t, p)
		assert.Equal(t, 200, len([]rune(*p)))
	})

	t.Run("empty bodies yield nil", func(t *testing.T) {
		assert.Nil(t, buildPreview("", ""))
		assert.Nil(t, buildPreview("   ", "<br>"))
	})
}

func TestParseSentAt(t *testing.T) {
	internal := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	m := &provider.Message{
		InternalDate: internal,
		Payload: &provider.Part{
			Headers: []provider.Header{
				{Name: "Date", Value: "Sat, 14 Mar 2026 09:00:00 +0100"},
			},
		},
	}
	got := parseSentAt(m)
	assert.True(t, got.Equal(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)))

	// Malformed header falls back to the provider timestamp
	m.Payload.Headers[0].Value = "not a date"
	assert.True(t, parseSentAt(m).Equal(internal))

	// Missing header too
	m.Payload.Headers = nil
	assert.True(t, parseSentAt(m).Equal(internal))
}
