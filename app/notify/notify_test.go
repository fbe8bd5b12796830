package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/feed"
	"github.com/lysyi3m/feed-mirror/app/retry"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

// fakeProvider records every request body and answers with the queued
// statuses, then 202.
type fakeProvider struct {
	mu       sync.Mutex
	bodies   []map[string]any
	auth     string
	statuses []int
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	p.bodies = append(p.bodies, body)
	p.auth = r.Header.Get("Authorization")

	if len(p.statuses) > 0 {
		status := p.statuses[0]
		p.statuses = p.statuses[1:]
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"provider says no"}`))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (p *fakeProvider) requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bodies)
}

func testPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		Sleep:     func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func newTestSender(t *testing.T, provider string, fake *fakeProvider) EmailSender {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	sender, err := NewEmailSender(server.Client(), SenderConfig{
		Provider: provider,
		APIKey:   "re_secret",
		APIURL:   server.URL,
		From:     "mirror@example.org",
		ReplyTo:  "editor@example.org",
	}, testPolicy())
	require.NoError(t, err)
	return sender
}

func testMessage() Message {
	return Message{
		To:      []string{"a@example.org", "b@example.org"},
		Subject: "[Mirror] Comunicado",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	}
}

func TestResendSender_RequestShape(t *testing.T) {
	fake := &fakeProvider{}
	sender := newTestSender(t, ProviderResend, fake)

	require.NoError(t, sender.Send(context.Background(), testMessage()))
	require.Len(t, fake.bodies, 1)

	body := fake.bodies[0]
	assert.Equal(t, "Bearer re_secret", fake.auth)
	assert.Equal(t, "mirror@example.org", body["from"])
	assert.Equal(t, []any{"a@example.org", "b@example.org"}, body["to"])
	assert.Equal(t, "[Mirror] Comunicado", body["subject"])
	assert.Equal(t, "<p>hi</p>", body["html"])
	assert.Equal(t, "hi", body["text"])
	assert.Equal(t, "editor@example.org", body["reply_to"])
}

func TestSendGridSender_RequestShape(t *testing.T) {
	fake := &fakeProvider{}
	sender := newTestSender(t, ProviderSendGrid, fake)

	require.NoError(t, sender.Send(context.Background(), testMessage()))
	require.Len(t, fake.bodies, 1)

	body := fake.bodies[0]
	personalizations := body["personalizations"].([]any)
	require.Len(t, personalizations, 1)
	to := personalizations[0].(map[string]any)["to"].([]any)
	assert.Len(t, to, 2)

	assert.Equal(t, map[string]any{"email": "mirror@example.org"}, body["from"])
	assert.Equal(t, map[string]any{"email": "editor@example.org"}, body["reply_to"])

	content := body["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "text/plain", content[0].(map[string]any)["type"])
	assert.Equal(t, "text/html", content[1].(map[string]any)["type"])
}

func TestSender_RetriesTransientFailures(t *testing.T) {
	fake := &fakeProvider{statuses: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
	sender := newTestSender(t, ProviderResend, fake)

	require.NoError(t, sender.Send(context.Background(), testMessage()))
	assert.Equal(t, 3, fake.requests())
}

func TestSender_ClientErrorNotRetried(t *testing.T) {
	fake := &fakeProvider{statuses: []int{http.StatusUnprocessableEntity}}
	sender := newTestSender(t, ProviderSendGrid, fake)

	err := sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, 1, fake.requests())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, apiErr.Body, "provider says no")
}

func TestSender_RejectsBadRecipient(t *testing.T) {
	fake := &fakeProvider{}
	sender := newTestSender(t, ProviderResend, fake)

	msg := testMessage()
	msg.To = []string{"not an address"}

	err := sender.Send(context.Background(), msg)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, 0, fake.requests())
}

func TestNewEmailSender(t *testing.T) {
	sender, err := NewEmailSender(http.DefaultClient, SenderConfig{}, testPolicy())
	require.NoError(t, err)
	assert.Nil(t, sender, "No provider disables email")

	_, err = NewEmailSender(http.DefaultClient, SenderConfig{Provider: "pigeon", From: "a@b.c"}, testPolicy())
	assert.Error(t, err)

	_, err = NewEmailSender(http.DefaultClient, SenderConfig{Provider: ProviderResend, From: "nope"}, testPolicy())
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	event := Event{
		ID:        "0123456789abcdef",
		Title:     "Comunicado <urgente>",
		MirrorURL: "https://mirror.example.org/a.html",
		SourceURL: "https://x/y",
	}

	msg, err := BuildMessage(event, feed.NotifyConfig{Recipients: []string{"a@example.org"}, SubjectPrefix: "[Mirror]"})
	require.NoError(t, err)

	assert.Equal(t, "[Mirror] Comunicado <urgente>", msg.Subject)
	assert.Contains(t, msg.HTML, "Comunicado &lt;urgente&gt;")
	assert.Contains(t, msg.HTML, `href="https://mirror.example.org/a.html"`)
	assert.Contains(t, msg.Text, "https://x/y")
}

func newNotificationRepo(t *testing.T) database.NotificationRepository {
	t.Helper()
	kv, err := database.NewMemoryBadgerStore()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return database.NewNotificationRepository(kv)
}

func TestDispatcher_SendsEmailAndMarksPush(t *testing.T) {
	fake := &fakeProvider{}
	repo := newNotificationRepo(t)

	dispatcher := NewDispatcher(newTestSender(t, ProviderResend, fake), NewPushMarker(repo), tasks.NewGroup())
	event := Event{ID: "abc", Title: "Comunicado", MirrorURL: "https://m/abc.html", SourceURL: "https://x/y"}

	dispatcher.Notify(context.Background(), event, feed.NotifyConfig{Recipients: []string{"a@example.org"}})
	dispatcher.Wait()

	assert.Equal(t, 1, fake.requests())

	last, err := repo.GetLast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "abc", last.ID)
	assert.Equal(t, "https://m/abc.html", last.URL)
	assert.False(t, last.Timestamp.IsZero())
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	fake := &fakeProvider{statuses: []int{500, 500, 500}}
	repo := newNotificationRepo(t)

	dispatcher := NewDispatcher(newTestSender(t, ProviderSendGrid, fake), NewPushMarker(repo), tasks.NewGroup())
	event := Event{ID: "abc", Title: "Comunicado", MirrorURL: "https://m/abc.html"}

	// Notify has no error to return; the push marker still lands.
	dispatcher.Notify(context.Background(), event, feed.NotifyConfig{Recipients: []string{"a@example.org"}})
	dispatcher.Wait()

	assert.Equal(t, 3, fake.requests())

	last, err := repo.GetLast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "abc", last.ID)
}

func TestDispatcher_NoRecipientsSkipsEmail(t *testing.T) {
	fake := &fakeProvider{}
	dispatcher := NewDispatcher(newTestSender(t, ProviderResend, fake), nil, tasks.NewGroup())

	dispatcher.Notify(context.Background(), Event{ID: "abc", Title: "x"}, feed.NotifyConfig{})
	dispatcher.Wait()

	assert.Equal(t, 0, fake.requests())
}
