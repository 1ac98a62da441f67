// Package provider abstracts the remote mailbox API behind a narrow
// interface so the sync engine stays provider-agnostic and testable with a
// fake implementation.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// ErrCursorExpired is returned by ListHistorySince when the provider no
// longer retains history at the given cursor. The engine reacts by clearing
// the cursor and re-running a full sync.
var ErrCursorExpired = errors.New("sync cursor expired at provider")

// Header is a single raw message header
type Header struct {
	Name  string
	Value string
}

// Part is one node of a (possibly multipart) message body tree. Data holds
// the body bytes in the provider's base64url variant; attachments carry a
// filename and an attachment reference instead of inline data.
type Part struct {
	MimeType     string
	Filename     string
	AttachmentID string
	Headers      []Header
	Data         string
	Parts        []*Part
}

// Message is a fully fetched remote message
type Message struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	Snippet      string
	InternalDate time.Time
	Payload      *Part
}

// MessageRef identifies a remote message without its content
type MessageRef struct {
	ID       string
	ThreadID string
}

// ListQuery selects a date window of messages for a full sync
type ListQuery struct {
	After      time.Time
	Before     time.Time
	MaxResults int64
	PageToken  string
}

// ListPage is one page of a full-sync listing
type ListPage struct {
	Messages      []MessageRef
	NextPageToken string
}

// HistoryPage is one page of an incremental delta listing. Added contains
// only "message added" events. Cursor is the highest position covered by
// this page; pages arrive in ascending position order.
type HistoryPage struct {
	Added         []MessageRef
	NextPageToken string
	Cursor        string
}

// MailProvider is the minimal surface the sync engine needs from a remote
// mailbox.
type MailProvider interface {
	ListMessages(ctx context.Context, q ListQuery) (*ListPage, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListHistorySince(ctx context.Context, cursor, pageToken string) (*HistoryPage, error)
	CurrentCursor(ctx context.Context) (string, error)
}

// MailSender sends a locally composed RFC 822 message through the provider
type MailSender interface {
	SendMessage(ctx context.Context, raw []byte) (*Message, error)
}

// DecodeBase64URL decodes body data in the provider's base64url variant:
// '-' and '_' replace '+' and '/', and padding may be stripped.
func DecodeBase64URL(data string) ([]byte, error) {
	s := strings.ReplaceAll(data, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(s)
}

// EncodeBase64URL is the inverse of DecodeBase64URL
func EncodeBase64URL(data []byte) string {
	s := base64.StdEncoding.EncodeToString(data)
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	return strings.TrimRight(s, "=")
}
