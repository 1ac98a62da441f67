package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"globcrm/models"
	"globcrm/utils"
)

// GmailProvider implements MailProvider and MailSender against the Gmail
// API for a single account. Instances are built fresh per sync cycle and
// never shared across accounts.
type GmailProvider struct {
	svc         *gmail.Service
	tokenSource oauth2.TokenSource
}

// NewGmailProvider decrypts the account's stored tokens and builds an
// authenticated client. The token source is pre-loaded with the current
// (possibly already expired) access token; the transport refreshes it with
// the refresh token transparently on expiry.
func NewGmailProvider(ctx context.Context, account *models.EmailAccount, cipher *utils.Cipher, conf *oauth2.Config) (*GmailProvider, error) {
	accessToken, err := cipher.Decrypt(account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := cipher.Decrypt(account.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	ts := conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       account.TokenExpiresAt,
	})

	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailProvider{svc: svc, tokenSource: ts}, nil
}

// CurrentToken returns the token currently held by the client, which may be
// newer than the stored one after an in-flight refresh.
func (p *GmailProvider) CurrentToken() (*oauth2.Token, error) {
	return p.tokenSource.Token()
}

// Profile returns the mailbox address of the authenticated account
func (p *GmailProvider) Profile(ctx context.Context) (string, error) {
	profile, err := p.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch Gmail profile: %w", err)
	}
	return profile.EmailAddress, nil
}

func (p *GmailProvider) ListMessages(ctx context.Context, q ListQuery) (*ListPage, error) {
	query := fmt.Sprintf("after:%d before:%d", q.After.Unix(), q.Before.Unix())

	call := p.svc.Users.Messages.List("me").
		Q(query).
		IncludeSpamTrash(false).
		MaxResults(q.MaxResults).
		Context(ctx)
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &ListPage{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return page, nil
}

func (p *GmailProvider) GetMessage(ctx context.Context, id string) (*Message, error) {
	m, err := p.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return convertMessage(m), nil
}

func (p *GmailProvider) ListHistorySince(ctx context.Context, cursor, pageToken string) (*HistoryPage, error) {
	startID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid history cursor %q: %w", cursor, err)
	}

	call := p.svc.Users.History.List("me").
		StartHistoryId(startID).
		HistoryTypes("messageAdded").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		// Gmail answers 404 when the history id has been garbage collected
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 404 {
			return nil, ErrCursorExpired
		}
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	page := &HistoryPage{NextPageToken: resp.NextPageToken}
	maxID := startID
	for _, h := range resp.History {
		if h.Id > maxID {
			maxID = h.Id
		}
		for _, added := range h.MessagesAdded {
			if added.Message == nil {
				continue
			}
			page.Added = append(page.Added, MessageRef{
				ID:       added.Message.Id,
				ThreadID: added.Message.ThreadId,
			})
		}
	}
	if resp.HistoryId > maxID {
		maxID = resp.HistoryId
	}
	page.Cursor = strconv.FormatUint(maxID, 10)
	return page, nil
}

func (p *GmailProvider) CurrentCursor(ctx context.Context) (string, error) {
	profile, err := p.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch current history id: %w", err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

// SendMessage submits a raw RFC 822 message and returns the stored result
// with its assigned id, thread id and labels.
func (p *GmailProvider) SendMessage(ctx context.Context, raw []byte) (*Message, error) {
	sent, err := p.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: EncodeBase64URL(raw),
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return p.GetMessage(ctx, sent.Id)
}

func convertMessage(m *gmail.Message) *Message {
	return &Message{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		LabelIDs:     m.LabelIds,
		Snippet:      m.Snippet,
		InternalDate: time.UnixMilli(m.InternalDate),
		Payload:      convertPart(m.Payload),
	}
}

func convertPart(p *gmail.MessagePart) *Part {
	if p == nil {
		return nil
	}

	part := &Part{
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	if p.Body != nil {
		part.Data = p.Body.Data
		part.AttachmentID = p.Body.AttachmentId
	}
	for _, h := range p.Headers {
		part.Headers = append(part.Headers, Header{Name: h.Name, Value: h.Value})
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}
