package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/feed"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

const (
	EmailTaskTimeout = 2 * time.Minute
	PushTaskTimeout  = 10 * time.Second
)

// PushMarker records the latest notification for polling clients. Only the
// most recent one is kept.
type PushMarker struct {
	repo database.NotificationRepository
	now  func() time.Time
}

func NewPushMarker(repo database.NotificationRepository) *PushMarker {
	return &PushMarker{repo: repo, now: time.Now}
}

func (m *PushMarker) Mark(ctx context.Context, event Event) error {
	return m.repo.SetLast(ctx, database.Notification{
		ID:        event.ID,
		Title:     event.Title,
		URL:       event.MirrorURL,
		Timestamp: m.now().UTC(),
	})
}

// Dispatcher fans a publish out to email and the push marker. Both run in the
// background and neither can fail the caller.
type Dispatcher struct {
	email EmailSender
	push  *PushMarker
	group *tasks.Group
}

// NewDispatcher accepts a nil email sender, which disables email.
func NewDispatcher(email EmailSender, push *PushMarker, group *tasks.Group) *Dispatcher {
	return &Dispatcher{email: email, push: push, group: group}
}

func (d *Dispatcher) Notify(ctx context.Context, event Event, audience feed.NotifyConfig) {
	if d.email != nil && len(audience.Recipients) > 0 {
		d.group.Go(ctx, "email:"+event.ID, EmailTaskTimeout, func(ctx context.Context) error {
			return d.sendEmail(ctx, event, audience)
		})
	}

	if d.push != nil {
		d.group.Go(ctx, "push:"+event.ID, PushTaskTimeout, func(ctx context.Context) error {
			if err := d.push.Mark(ctx, event); err != nil {
				slog.Warn("Failed to record push marker", "id", event.ID, "url", event.MirrorURL, "error", err)
				return err
			}
			return nil
		})
	}
}

// Wait blocks until every notification spawned so far has finished.
func (d *Dispatcher) Wait() {
	d.group.Wait()
}

func (d *Dispatcher) sendEmail(ctx context.Context, event Event, audience feed.NotifyConfig) error {
	msg, err := BuildMessage(event, audience)
	if err != nil {
		return err
	}

	if err := d.email.Send(ctx, msg); err != nil {
		slog.Warn("Failed to send notification email",
			"provider", d.email.Provider(),
			"id", event.ID,
			"title", event.Title,
			"recipients", len(msg.To),
			"error", err)
		return fmt.Errorf("email via %s: %w", d.email.Provider(), err)
	}

	slog.Info("Notification email sent", "provider", d.email.Provider(), "id", event.ID, "recipients", len(msg.To))
	return nil
}
