// Package mail reads messages from the provider's REST API using the
// delegated credential.
package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	netmail "net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/InboxGo/internal/domain"
	apperrors "github.com/utafrali/InboxGo/pkg/errors"
	"github.com/utafrali/InboxGo/pkg/httpclient"
)

// DefaultBaseURL is the Gmail API root.
const DefaultBaseURL = "https://gmail.googleapis.com"

const serviceName = "gmail"

// CredentialSource is satisfied by *credential.Manager.
type CredentialSource interface {
	GetValidCredential(ctx context.Context) (*domain.DelegatedCredential, error)
}

// Client reads the authorized mailbox.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	creds   CredentialSource
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a Gmail client. An empty baseURL selects
// DefaultBaseURL.
func NewClient(hc *httpclient.CircuitBreakerClient, creds CredentialSource, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    hc,
		creds:   creds,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// List returns up to max of the newest messages with headers resolved.
func (c *Client) List(ctx context.Context, max int) ([]Message, error) {
	q := url.Values{"maxResults": {strconv.Itoa(max)}}
	var list listResponse
	if err := c.get(ctx, "/gmail/v1/users/me/messages?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg, err := c.Get(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}

// Get fetches one message.
func (c *Client) Get(ctx context.Context, id string) (*Message, error) {
	var raw messageResponse
	if err := c.get(ctx, "/gmail/v1/users/me/messages/"+url.PathEscape(id)+"?format=full", &raw); err != nil {
		return nil, err
	}
	return toMessage(&raw), nil
}

// Attachment downloads and decodes one attachment body.
func (c *Client) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var raw attachmentResponse
	path := fmt.Sprintf("/gmail/v1/users/me/messages/%s/attachments/%s",
		url.PathEscape(messageID), url.PathEscape(attachmentID))
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}
	data, err := decodeBase64URL(raw.Data)
	if err != nil {
		return nil, apperrors.BadGateway(fmt.Sprintf("%s: attachment data is not valid base64url", serviceName))
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	cred, err := c.creds.GetValidCredential(ctx)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", tokenType(cred)+" "+cred.AccessToken)
	header.Set("Accept", "application/json")

	resp, err := c.http.Get(ctx, c.baseURL+path, header)
	if err != nil {
		return c.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.logger.WarnContext(ctx, "mail provider rejected the delegated credential")
		}
		return httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return apperrors.BadGateway(fmt.Sprintf("%s: decode response: %v", serviceName, err))
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var serverErr *httpclient.ServerError
	switch {
	case errors.Is(err, httpclient.ErrCircuitOpen):
		return apperrors.ServiceUnavailable(serviceName + ": temporarily unavailable")
	case errors.As(err, &serverErr):
		if serverErr.StatusCode == http.StatusServiceUnavailable {
			return apperrors.ServiceUnavailable(fmt.Sprintf("%s: %s", serviceName, serverErr.Body))
		}
		return apperrors.BadGateway(fmt.Sprintf("%s returned status %d", serviceName, serverErr.StatusCode))
	default:
		c.logger.ErrorContext(ctx, "mail provider request failed", slog.String("error", err.Error()))
		return apperrors.BadGateway(serviceName + ": request failed")
	}
}

func tokenType(c *domain.DelegatedCredential) string {
	if c.TokenType == "" {
		return domain.DefaultTokenType
	}
	return c.TokenType
}

func toMessage(raw *messageResponse) *Message {
	msg := &Message{
		ID:          raw.ID,
		ThreadID:    raw.ThreadID,
		Sender:      DefaultSender,
		Subject:     DefaultSubject,
		Snippet:     raw.Snippet,
		Attachments: []Attachment{},
	}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			if h.Value != "" {
				msg.Subject = h.Value
			}
		case "from":
			if h.Value != "" {
				msg.Sender = h.Value
			}
		case "date":
			msg.DateRaw = h.Value
			msg.Date = parseDate(h.Value)
		}
	}
	collectAttachments(raw.Payload.Parts, &msg.Attachments)
	return msg
}

func parseDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := netmail.ParseDate(v)
	if err != nil {
		return nil
	}
	return &t
}

func collectAttachments(parts []part, out *[]Attachment) {
	for _, p := range parts {
		if p.Filename != "" {
			*out = append(*out, Attachment{
				ID:       p.Body.AttachmentID,
				Filename: p.Filename,
				MimeType: p.MimeType,
				Size:     p.Body.Size,
			})
		}
		collectAttachments(p.Parts, out)
	}
}

// decodeBase64URL accepts padded and unpadded base64url.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
