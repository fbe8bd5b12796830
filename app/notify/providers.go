package notify

import (
	"context"
)

const (
	ResendEndpoint   = "https://api.resend.com/emails"
	SendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
)

type ResendSender struct {
	httpSender
}

func (s *ResendSender) Provider() string { return ProviderResend }

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	payload := struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html,omitempty"`
		Text    string   `json:"text,omitempty"`
		ReplyTo string   `json:"reply_to,omitempty"`
	}{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: s.replyAddress(msg),
	}

	return s.post(ctx, ProviderResend, payload)
}

type SendGridSender struct {
	httpSender
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *SendGridSender) Provider() string { return ProviderSendGrid }

// Send puts every recipient in one personalization, so they all see each
// other like a plain multi-recipient mail.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	to := make([]sendGridAddress, 0, len(msg.To))
	for _, address := range msg.To {
		to = append(to, sendGridAddress{Email: address})
	}

	// text/plain has to come before text/html.
	var content []sendGridContent
	if msg.Text != "" {
		content = append(content, sendGridContent{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		content = append(content, sendGridContent{Type: "text/html", Value: msg.HTML})
	}

	payload := struct {
		Personalizations []sendGridPersonalization `json:"personalizations"`
		From             sendGridAddress           `json:"from"`
		ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
		Subject          string                    `json:"subject"`
		Content          []sendGridContent         `json:"content"`
	}{
		Personalizations: []sendGridPersonalization{{To: to}},
		From:             sendGridAddress{Email: s.from},
		Subject:          msg.Subject,
		Content:          content,
	}

	if replyTo := s.replyAddress(msg); replyTo != "" {
		payload.ReplyTo = &sendGridAddress{Email: replyTo}
	}

	return s.post(ctx, ProviderSendGrid, payload)
}
