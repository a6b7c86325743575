package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"ledger/internal/log"
	"ledger/internal/notify"
)

func TestBuildMIME(t *testing.T) {
	raw, err := buildMIME("Ledger <ledger@example.org>", notify.Message{
		To:      "cora@example.org",
		Subject: "New expense\r\nBcc: evil@example.org",
		HTML:    "<p>" + strings.Repeat("x", 200) + "</p>",
	})
	require.NoError(t, err)

	m, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "<cora@example.org>", m.Header.Get("To"))
	assert.Equal(t, "\"Ledger\" <ledger@example.org>", m.Header.Get("From"))
	assert.Empty(t, m.Header.Get("Bcc"), "newlines in the subject must not inject headers")
	assert.Contains(t, m.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(m.Body)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(strings.TrimSpace(string(body)), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, "<p>"+strings.Repeat("x", 200)+"</p>", string(decoded))
}

func TestBuildMIME_RejectsBadRecipient(t *testing.T) {
	_, err := buildMIME("", notify.Message{To: "not an address", Subject: "s"})
	assert.Error(t, err)
}

func TestSender_Send(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		raw  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m gmail.Message
		_ = json.NewDecoder(r.Body).Decode(&m)
		mu.Lock()
		path, raw = r.URL.Path, m.Raw
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg-1"}`)
	}))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	sender := NewWithService(svc, "", log.Discard())
	err = sender.Send(context.Background(), notify.Message{To: "cora@example.org", Subject: "Hi", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasSuffix(path, "/users/me/messages/send"), path)
	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "To: <cora@example.org>")
	assert.Contains(t, string(decoded), "Subject: Hi")
}

func TestSender_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":401,"message":"bad token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc, err := gmail.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	err = NewWithService(svc, "", nil).Send(context.Background(), notify.Message{To: "cora@example.org", Subject: "Hi"})
	assert.ErrorContains(t, err, "gmail send")
}

func TestNew_ReadsCredentials(t *testing.T) {
	dir := t.TempDir()
	clientFile := filepath.Join(dir, "client.json")
	require.NoError(t, os.WriteFile(clientFile, []byte(`{"installed":{"client_id":"id","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`), 0600))

	s, err := New(context.Background(), Credentials{
		ClientFile: clientFile,
		TokenJSON:  `{"access_token":"a","refresh_token":"r","token_type":"Bearer"}`,
	}, "ledger@example.org", log.Discard())
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = New(context.Background(), Credentials{ClientFile: clientFile}, "", nil)
	assert.ErrorContains(t, err, "missing OAuth token")

	_, err = New(context.Background(), Credentials{ClientFile: filepath.Join(dir, "nope.json"), TokenJSON: "{}"}, "", nil)
	assert.ErrorContains(t, err, "read OAuth client file")
}
