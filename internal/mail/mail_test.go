package mail

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string, retries int) *SendGrid {
	c := NewSendGrid(config.MailConfig{
		APIKey:     "SG.test",
		BaseURL:    url,
		FromEmail:  "noreply@btp.test",
		FromName:   "BTP",
		Timeout:    2 * time.Second,
		MaxRetries: retries,
	}, logger.Nop())
	c.backoff = time.Millisecond
	return c
}

func TestSendGridSendsAttachment(t *testing.T) {
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := testClient(srv.URL, 0).Send(context.Background(), Message{
		To:          Addresses("a@x.fr", " ", "b@x.fr"),
		Cc:          Addresses("c@x.fr"),
		Subject:     "État n°1",
		HTML:        "<p>Bonjour</p>",
		Attachments: []Attachment{{Filename: "etat-1.pdf", MIMEType: "application/pdf", Content: []byte("%PDF")}},
	})
	require.NoError(t, err)

	require.Len(t, got.Personalizations, 1)
	assert.Len(t, got.Personalizations[0].To, 2)
	assert.Equal(t, "c@x.fr", got.Personalizations[0].Cc[0].Email)
	assert.Equal(t, "noreply@btp.test", got.From.Email)
	require.Len(t, got.Attachments, 1)
	decoded, err := base64.StdEncoding.DecodeString(got.Attachments[0].Content)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(decoded))
}

func TestSendGridRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := testClient(srv.URL, 3).Send(context.Background(), Message{To: Addresses("a@x.fr"), Subject: "s", Text: "t"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendGridDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from"}]}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL, 3).Send(context.Background(), Message{To: Addresses("a@x.fr"), Subject: "s", Text: "t"})
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode)
	assert.Equal(t, "invalid from", he.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendGridValidatesMessage(t *testing.T) {
	c := testClient("http://127.0.0.1:1", 0)
	assert.Error(t, c.Send(context.Background(), Message{Subject: "s", Text: "t"}))
	assert.Error(t, c.Send(context.Background(), Message{To: Addresses("a@x.fr"), Text: "t"}))
	assert.Error(t, c.Send(context.Background(), Message{To: Addresses("a@x.fr"), Subject: "s"}))
}

func TestNewFallsBackToLogMailer(t *testing.T) {
	m := New(config.MailConfig{}, logger.Nop())
	assert.False(t, Configured(m))
	assert.NoError(t, m.Send(context.Background(), Message{To: Addresses("a@x.fr"), Subject: "s"}))

	sg := New(config.MailConfig{APIKey: "k"}, logger.Nop())
	assert.True(t, Configured(sg))
}
