package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feed-mirror/app/content"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/feed"
	"github.com/lysyi3m/feed-mirror/app/notify"
	"github.com/lysyi3m/feed-mirror/app/publisher"
	"github.com/lysyi3m/feed-mirror/app/retry"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

const articleText = "Comunicado sobre Discernimentos. O conselho publicou hoje uma nota oficial com orientações detalhadas para todas as comunidades."

// site serves the feed and the pages it links to.
type site struct {
	mu      sync.Mutex
	server  *httptest.Server
	entries []feed.Item
	article string
}

func newSite(t *testing.T) *site {
	t.Helper()

	s := &site{article: articleText}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

func (s *site) url(path string) string {
	return s.server.URL + path
}

func (s *site) setArticle(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.article = text
}

func (s *site) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Path {
	case "/feed.xml":
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>`)
		for _, e := range s.entries {
			fmt.Fprintf(w, `<item><title>%s</title><link>%s</link><pubDate>%s</pubDate></item>`, e.Title, e.Link, e.PublishedAt)
		}
		fmt.Fprint(w, `</channel></rss>`)
	case "/big":
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("x", 16<<10)+"</p></body></html>")
	case "/short":
		fmt.Fprint(w, "<html><body><p>Oops</p></body></html>")
	default:
		fmt.Fprintf(w, `<html><head><title>Comunicado</title><script>alert(1)</script></head>
<body><article><h1>Comunicado</h1><p>%s</p></article></body></html>`, s.article)
	}
}

// contentStore is a minimal Contents API that counts writes.
type contentStore struct {
	mu    sync.Mutex
	files map[string]string
	puts  []map[string]any
}

func (s *contentStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const contents = "/repos/owner/mirror/contents/"
	path := strings.TrimPrefix(r.URL.Path, contents)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/repos/owner/mirror":
		json.NewEncoder(w).Encode(map[string]string{"default_branch": "main"})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, contents):
		sha, ok := s.files[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"sha": sha})
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, contents):
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.puts = append(s.puts, body)

		sha := fmt.Sprintf("sha-%d", len(s.puts))
		s.files[path] = sha
		json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]string{"sha": sha, "html_url": "https://github.com/owner/mirror/blob/main/" + path},
			"commit":  map[string]string{"sha": "commit-" + sha},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *contentStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

type harness struct {
	pipeline      *Pipeline
	site          *site
	store         *contentStore
	items         database.ItemRepository
	notifications database.NotificationRepository
	dispatcher    *notify.Dispatcher
	configPath    string
}

func testPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  2,
		BaseDelay: time.Millisecond,
		Sleep:     func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func newHarness(t *testing.T, patterns string) *harness {
	t.Helper()

	h := &harness{site: newSite(t), store: &contentStore{files: map[string]string{}}}

	h.configPath = filepath.Join(t.TempDir(), "mirror.yml")
	runConfig := fmt.Sprintf(`
min_date: 2024-01-01
patterns: [%s]
feeds: ["%s"]
batch_size: 2
max_concurrency: 2
`, patterns, h.site.url("/feed.xml"))
	require.NoError(t, os.WriteFile(h.configPath, []byte(runConfig), 0644))

	storeServer := httptest.NewServer(h.store)
	t.Cleanup(storeServer.Close)

	credential, err := publisher.ParseCredential("ghp_pipelinetesttoken")
	require.NoError(t, err)
	client := publisher.NewClient(storeServer.Client(), storeServer.URL, "owner", "mirror", credential, "test-agent")
	pub := publisher.NewPublisher(client, publisher.NewBranchCache(time.Hour, nil), publisher.Config{Dir: "articles"}, testPolicy())

	kv, err := database.NewMemoryBadgerStore()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	h.items = database.NewItemRepository(kv)
	h.notifications = database.NewNotificationRepository(kv)
	h.dispatcher = notify.NewDispatcher(nil, notify.NewPushMarker(h.notifications), tasks.NewGroup())

	h.pipeline = NewPipeline(
		feed.NewConfigCache(h.configPath),
		feed.NewFetcher(h.site.server.Client(), feed.NewParser(), "test-agent", 5*time.Second, testPolicy()),
		feed.NewFilterer(),
		content.NewFetcher(h.site.server.Client(), "test-agent", 5*time.Second, 8<<10, testPolicy()),
		pub,
		h.items,
		h.dispatcher,
	)
	return h
}

func (h *harness) addEntry(title, path string) {
	h.site.mu.Lock()
	defer h.site.mu.Unlock()
	h.site.entries = append(h.site.entries, feed.Item{
		Title:       title,
		Link:        h.site.url(path),
		PublishedAt: "Mon, 01 Jul 2024 10:00:00 +0000",
	})
}

func TestRun_IngestsAndPublishesMatchingItem(t *testing.T) {
	h := newHarness(t, `"discernimentos"`)
	h.addEntry("Comunicado sobre Discernimentos", "/y")
	h.addEntry("Agenda da semana", "/agenda")

	stats, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	h.dispatcher.Wait()

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Saved)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 1, h.store.writes())

	record, err := h.items.GetItem(context.Background(), Identity(h.site.url("/y")))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.Published())
	assert.NotEmpty(t, record.UUID)
	assert.NotContains(t, record.BodyHTML, "<script")
	assert.Equal(t, "Comunicado sobre Discernimentos", record.Title)
	assert.Equal(t, 2024, record.PublishedAt.Year())
	assert.Contains(t, record.StoreURL, record.UUID+".html")

	last, err := h.notifications.GetLast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, record.ID, last.ID)
}

func TestRun_SecondRunSkipsDuplicate(t *testing.T) {
	h := newHarness(t, `"discernimentos"`)
	h.addEntry("Comunicado sobre Discernimentos", "/y")

	first, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Saved)

	second, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.Saved)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Errors)
	assert.Equal(t, 1, h.store.writes(), "A duplicate must not be published again")
}

func TestRun_OversizedPageIsNotPublished(t *testing.T) {
	h := newHarness(t, `"*"`)
	h.addEntry("Comunicado enorme", "/big")

	stats, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Saved)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, h.store.writes())

	record, err := h.items.GetItem(context.Background(), Identity(h.site.url("/big")))
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRun_FeedFailureIsCounted(t *testing.T) {
	h := newHarness(t, `"*"`)
	h.addEntry("Comunicado", "/y")

	runConfig := fmt.Sprintf(`
feeds: ["%s", "%s"]
`, h.site.url("/feed.xml"), h.site.url("/big"))
	require.NoError(t, os.WriteFile(h.configPath, []byte(runConfig), 0644))

	stats, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FeedErrors)
	assert.Equal(t, 1, stats.Saved)
}

func TestRun_MissingConfigIsSystemic(t *testing.T) {
	h := newHarness(t, `"*"`)
	require.NoError(t, os.Remove(h.configPath))

	stats, err := h.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Processed)
}

func TestRun_RejectsOverlappingRuns(t *testing.T) {
	h := newHarness(t, `"*"`)

	h.pipeline.running.Lock()
	_, err := h.pipeline.Run(context.Background())
	h.pipeline.running.Unlock()

	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestProcessSpecificURL(t *testing.T) {
	h := newHarness(t, `"*"`)
	ctx := context.Background()
	link := h.site.url("/manual")

	first := h.pipeline.ProcessSpecificURL(ctx, link)
	require.NoError(t, first.Err)
	assert.True(t, first.Success)
	assert.True(t, first.IsNew)
	assert.NotEmpty(t, first.MirrorURL)

	before, err := h.items.GetItem(ctx, Identity(link))
	require.NoError(t, err)

	again := h.pipeline.ProcessSpecificURL(ctx, link)
	assert.False(t, again.Success)
	assert.ErrorIs(t, again.Err, ErrAlreadyProcessed)
	assert.Equal(t, 1, h.store.writes())

	h.site.setArticle(articleText + " Atualização: o prazo foi prorrogado.")
	changed := h.pipeline.ProcessSpecificURL(ctx, link)
	require.NoError(t, changed.Err)
	assert.True(t, changed.Success)
	assert.False(t, changed.IsNew)
	assert.Equal(t, 2, h.store.writes())
	assert.Equal(t, "sha-1", h.store.puts[1]["sha"], "The update must carry the prior revision")

	after, err := h.items.GetItem(ctx, Identity(link))
	require.NoError(t, err)
	assert.Equal(t, before.UUID, after.UUID, "uuid never changes")
	assert.NotEqual(t, before.ContentHash, after.ContentHash)
}

func TestProcessSpecificURL_Rejections(t *testing.T) {
	h := newHarness(t, `"*"`)
	ctx := context.Background()

	var validationErr *content.ValidationError

	result := h.pipeline.ProcessSpecificURL(ctx, "ftp://example.org/file")
	assert.False(t, result.Success)
	assert.True(t, errors.As(result.Err, &validationErr))

	result = h.pipeline.ProcessSpecificURL(ctx, h.site.url("/short"))
	assert.False(t, result.Success)
	require.True(t, errors.As(result.Err, &validationErr))
	assert.Contains(t, validationErr.Reason, "too short")

	assert.Equal(t, 0, h.store.writes())
}

func TestProcessURLTask_DoesNotRetryRejections(t *testing.T) {
	h := newHarness(t, `"*"`)

	task := NewProcessURLTask(h.pipeline, h.site.url("/short"))
	assert.NoError(t, task.Execute(context.Background()))

	task = NewProcessURLTask(h.pipeline, h.site.url("/y"))
	assert.NoError(t, task.Execute(context.Background()))
	assert.Equal(t, 1, h.store.writes())
}

func TestRunPipelineTask_SkipsWhenBusy(t *testing.T) {
	h := newHarness(t, `"*"`)

	h.pipeline.running.Lock()
	defer h.pipeline.running.Unlock()

	task := Trigger(h.pipeline, h.configPath)()
	assert.NoError(t, task.Execute(context.Background()))
}
