// Package google delivers notification email through the Gmail API using an
// OAuth token obtained with cmd/oauth-init.
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/mail"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"ledger/internal/log"
	"ledger/internal/notify"
)

// Credentials locates the OAuth client and token. Inline JSON wins over files.
type Credentials struct {
	ClientFile string
	ClientJSON string
	TokenFile  string
	TokenJSON  string
}

type Sender struct {
	svc    *gmail.Service
	from   string
	logger *log.Logger
}

var _ notify.Sender = (*Sender)(nil)

// New builds a sender authorised with the stored OAuth token. The token
// source refreshes the access token as needed.
func New(ctx context.Context, creds Credentials, from string, logger *log.Logger) (*Sender, error) {
	clientJSON, err := readSecret(creds.ClientJSON, creds.ClientFile, "OAuth client")
	if err != nil {
		return nil, err
	}
	cfg, err := google.ConfigFromJSON(clientJSON, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readSecret(creds.TokenJSON, creds.TokenFile, "OAuth token")
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode OAuth token: %w", err)
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClient())
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(httpCtx, cfg.TokenSource(httpCtx, &tok))))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return NewWithService(svc, from, logger), nil
}

// NewWithService wraps an already configured Gmail service.
func NewWithService(svc *gmail.Service, from string, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Discard()
	}
	return &Sender{svc: svc, from: from, logger: logger.WithComponent(log.ComponentNotify)}
}

func (s *Sender) Send(ctx context.Context, msg notify.Message) error {
	raw, err := buildMIME(s.from, msg)
	if err != nil {
		return err
	}

	sent, err := s.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}

	s.logger.DebugContext(ctx, "Gmail message sent", log.FieldMessageID, sent.Id, log.FieldRecipient, msg.To)
	return nil
}

// buildMIME renders an RFC 5322 message with a base64 HTML body.
func buildMIME(from string, msg notify.Message) ([]byte, error) {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	var b bytes.Buffer
	if from != "" {
		f, err := mail.ParseAddress(from)
		if err != nil {
			return nil, fmt.Errorf("invalid sender %q: %w", from, err)
		}
		fmt.Fprintf(&b, "From: %s\r\n", f.String())
	}
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", stripNewlines(msg.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	body := base64.StdEncoding.EncodeToString([]byte(msg.HTML))
	for len(body) > 76 {
		b.WriteString(body[:76])
		b.WriteString("\r\n")
		body = body[76:]
	}
	b.WriteString(body)
	b.WriteString("\r\n")

	return b.Bytes(), nil
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func readSecret(inline, file, what string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		return b, nil
	default:
		return nil, errors.New("missing " + what)
	}
}

// newHTTPClient is tuned for a handful of concurrent sends to one API host.
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}
}
