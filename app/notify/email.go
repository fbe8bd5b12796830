package notify

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/feed-mirror/app/retry"
)

const (
	ProviderResend   = "resend"
	ProviderSendGrid = "sendgrid"

	SendTimeout = 15 * time.Second

	maxErrorBody = 2 << 10
)

// Message is one email to any number of recipients.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

type EmailSender interface {
	Send(ctx context.Context, msg Message) error
	Provider() string
}

// APIError is a non-2xx answer from an email provider.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s email API returned %d: %s", e.Provider, e.Status, e.Body)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

// ValidationError marks a message that no retry can fix.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid email: " + e.Reason
}

type SenderConfig struct {
	Provider string
	APIKey   string
	// APIURL overrides the provider endpoint, mainly for tests.
	APIURL  string
	From    string
	ReplyTo string
	// Rate is the number of requests per second; zero means unlimited.
	Rate float64
}

// NewEmailSender returns nil when no provider is configured.
func NewEmailSender(httpClient *http.Client, config SenderConfig, policy retry.Policy) (EmailSender, error) {
	if config.Provider == "" {
		return nil, nil
	}
	if _, err := mail.ParseAddress(config.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", config.From, err)
	}

	limit := rate.Inf
	if config.Rate > 0 {
		limit = rate.Limit(config.Rate)
	}

	base := httpSender{
		httpClient: httpClient,
		apiKey:     config.APIKey,
		from:       config.From,
		replyTo:    config.ReplyTo,
		limiter:    rate.NewLimiter(limit, 1),
		policy:     policy,
	}

	switch config.Provider {
	case ProviderResend:
		base.endpoint = cmp.Or(config.APIURL, ResendEndpoint)
		return &ResendSender{httpSender: base}, nil
	case ProviderSendGrid:
		base.endpoint = cmp.Or(config.APIURL, SendGridEndpoint)
		return &SendGridSender{httpSender: base}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", config.Provider)
	}
}

// httpSender is the transport shared by both providers: rate limit, retry,
// bearer auth and JSON body.
type httpSender struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	from       string
	replyTo    string
	limiter    *rate.Limiter
	policy     retry.Policy
}

func (s *httpSender) post(ctx context.Context, provider string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", provider, err)
	}

	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		ctx, cancel := context.WithTimeout(ctx, SendTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", provider, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return &APIError{Provider: provider, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return nil
	})
}

func (s *httpSender) replyAddress(msg Message) string {
	return cmp.Or(msg.ReplyTo, s.replyTo)
}

func validateMessage(msg Message) error {
	if len(msg.To) == 0 {
		return &ValidationError{Reason: "no recipients"}
	}
	for _, to := range msg.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("bad recipient %q", to)}
		}
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return &ValidationError{Reason: "empty subject"}
	}
	return nil
}
