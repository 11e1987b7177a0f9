package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/goccy/go-json"
)

// SendGrid talks to the v3 mail/send endpoint.
type SendGrid struct {
	log        *logger.Logger
	cfg        config.MailConfig
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

func NewSendGrid(cfg config.MailConfig, log *logger.Logger) *SendGrid {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &SendGrid{
		log:        log.With("client", "SendGridClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
	}
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             Address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
	Attachments      []sgAttachment    `json:"attachments,omitempty"`
}

type personalization struct {
	To  []Address `json:"to"`
	Cc  []Address `json:"cc,omitempty"`
	Bcc []Address `json:"bcc,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition,omitempty"`
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// HTTPError is a non-2xx answer from SendGrid.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Message)
}

func (c *SendGrid) Send(ctx context.Context, msg Message) error {
	if msg.From.Email == "" {
		msg.From = Address{Email: c.cfg.FromEmail, Name: c.cfg.FromName}
	}
	if msg.From.Email == "" {
		return errors.New("sendgrid: from address required (set MAIL_FROM_EMAIL)")
	}
	if len(msg.To) == 0 {
		return errors.New("sendgrid: at least one recipient required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return errors.New("sendgrid: subject required")
	}

	var contents []mailContent
	if t := strings.TrimSpace(msg.Text); t != "" {
		contents = append(contents, mailContent{Type: "text/plain", Value: t})
	}
	if h := strings.TrimSpace(msg.HTML); h != "" {
		contents = append(contents, mailContent{Type: "text/html", Value: h})
	}
	if len(contents) == 0 {
		return errors.New("sendgrid: text or html content required")
	}

	wire := mailSendRequest{
		Personalizations: []personalization{{To: msg.To, Cc: msg.Cc, Bcc: msg.Bcc}},
		From:             msg.From,
		Subject:          strings.TrimSpace(msg.Subject),
		Content:          contents,
	}
	for _, a := range msg.Attachments {
		if a.Filename == "" || len(a.Content) == 0 {
			return fmt.Errorf("sendgrid: attachment %q is empty", a.Filename)
		}
		wire.Attachments = append(wire.Attachments, sgAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Type:        a.MIMEType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return c.do(ctx, body)
}

func (c *SendGrid) do(ctx context.Context, body []byte) error {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.doOnce(ctx, body)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= c.maxRetries {
			return err
		}
		sleepFor := retryAfter(resp, backoff)
		c.log.Warn("SendGrid request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
}

func (c *SendGrid) doOnce(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, readErr
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	he := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 && er.Errors[0].Message != "" {
		he.Message = er.Errors[0].Message
	}
	if he.Message == "" {
		he.Message = "<empty body>"
	}
	return resp, he
}

func isRetryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// retryAfter honours a Retry-After header in seconds, capped at 10s, with jitter otherwise.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if resp != nil {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
				return min(time.Duration(secs)*time.Second, 10*time.Second)
			}
		}
	}
	if fallback <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(fallback)/2 + 1))
	return min(fallback+jitter, 10*time.Second)
}
