package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/lysyi3m/feed-mirror/app/feed"
)

// Event describes one successful publish.
type Event struct {
	ID          string
	Title       string
	MirrorURL   string
	SourceURL   string
	PublishedAt time.Time
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body>
<h2>{{.Title}}</h2>
<p>A new item was mirrored{{if not .PublishedAt.IsZero}} (published {{.PublishedAt.Format "2 Jan 2006"}}){{end}}.</p>
<p><a href="{{.MirrorURL}}">Read the mirrored copy</a></p>
<p>Original: <a href="{{.SourceURL}}">{{.SourceURL}}</a></p>
</body>
</html>
`))

// BuildMessage renders the notification for event. Recipients and the
// subject prefix come from the run configuration.
func BuildMessage(event Event, audience feed.NotifyConfig) (Message, error) {
	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, event); err != nil {
		return Message{}, fmt.Errorf("failed to render email: %w", err)
	}

	subject := event.Title
	if prefix := strings.TrimSpace(audience.SubjectPrefix); prefix != "" {
		subject = prefix + " " + subject
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", event.Title)
	fmt.Fprintf(&text, "Mirrored copy: %s\n", event.MirrorURL)
	fmt.Fprintf(&text, "Original: %s\n", event.SourceURL)

	return Message{
		To:      audience.Recipients,
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
