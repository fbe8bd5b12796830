package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/feed-mirror/app/content"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/feed"
	"github.com/lysyi3m/feed-mirror/app/notify"
	"github.com/lysyi3m/feed-mirror/app/publisher"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// still going.
var ErrRunInProgress = errors.New("pipeline run already in progress")

type Pipeline struct {
	configs   *feed.ConfigCache
	feeds     *feed.Fetcher
	filterer  *feed.Filterer
	pages     *content.Fetcher
	publisher *publisher.Publisher
	items     database.ItemRepository
	dedup     *Deduplicator
	notifier  *notify.Dispatcher
	running   sync.Mutex
	now       func() time.Time
}

func NewPipeline(configs *feed.ConfigCache, feeds *feed.Fetcher, filterer *feed.Filterer, pages *content.Fetcher,
	pub *publisher.Publisher, items database.ItemRepository, notifier *notify.Dispatcher) *Pipeline {
	return &Pipeline{
		configs:   configs,
		feeds:     feeds,
		filterer:  filterer,
		pages:     pages,
		publisher: pub,
		items:     items,
		dedup:     NewDeduplicator(items),
		notifier:  notifier,
		now:       time.Now,
	}
}

// Run performs one full pass: reload the run configuration, fetch every
// feed, filter, then process the survivors in batches. Only systemic
// failures are returned; they are also counted in Errors.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	if !p.running.TryLock() {
		return RunStats{}, ErrRunInProgress
	}
	defer p.running.Unlock()

	started := p.now()
	var stats RunStats

	runConfig, err := p.loadConfig()
	if err != nil {
		stats.Errors++
		slog.Error("Pipeline run aborted", "reason", "run configuration", "error", err)
		return stats, err
	}

	// An unreachable store would fail every item; stop before fetching.
	if _, _, err := p.items.ListItems(ctx, "", 1); err != nil {
		stats.Errors++
		slog.Error("Pipeline run aborted", "reason", "store unreachable", "error", err)
		return stats, fmt.Errorf("store unreachable: %w", err)
	}

	fetched := p.feeds.FetchAll(ctx, runConfig.FeedURLs)
	stats.FeedErrors = len(fetched.Errors)

	filtered := p.filterer.Run(fetched.Items, runConfig)

	batchStats := RunBatches(ctx, filtered, runConfig.BatchSize, runConfig.MaxConcurrency,
		func(ctx context.Context, item feed.Item) error {
			return p.ProcessItem(ctx, item, runConfig)
		})
	batchStats.FeedErrors = stats.FeedErrors

	slog.Info("Pipeline run completed",
		"feeds", len(runConfig.FeedURLs),
		"feed_errors", batchStats.FeedErrors,
		"fetched", len(fetched.Items),
		"filtered", len(filtered),
		"processed", batchStats.Processed,
		"saved", batchStats.Saved,
		"skipped", batchStats.Skipped,
		"errors", batchStats.Errors,
		"duration", p.now().Sub(started).String())

	return batchStats, nil
}

// loadConfig re-reads the file, falling back to the last good copy.
func (p *Pipeline) loadConfig() (*feed.RunConfig, error) {
	runConfig, err := p.configs.Run()
	if err == nil {
		return runConfig, nil
	}

	cached, cacheErr := p.configs.GetConfig()
	if cacheErr != nil {
		return nil, fmt.Errorf("failed to load run configuration: %w", err)
	}
	slog.Warn("Run configuration reload failed, using last good copy", "error", err)
	return cached, nil
}

// ProcessItem drives one feed item from identification to notification.
// Duplicates return ErrAlreadyProcessed.
func (p *Pipeline) ProcessItem(ctx context.Context, item feed.Item, runConfig *feed.RunConfig) error {
	decision, record, err := p.dedup.Decide(ctx, item.Link, item.Title)
	if err != nil {
		return p.fail(item.Link, "identify", err)
	}
	if decision == DecisionDuplicate {
		slog.Debug("Item already processed", "id", record.ID, "link", item.Link)
		return ErrAlreadyProcessed
	}

	page, err := p.pages.Fetch(ctx, item.Link)
	if err != nil {
		return p.fail(item.Link, "content", err)
	}

	record.Title = cmp.Or(item.Title, page.Title)
	record.SourceURL = item.Link
	record.PublishedAt = item.PublishedTime(p.now()).UTC()

	if err := p.mirror(ctx, record, page, runConfig.Notify); err != nil {
		return p.fail(item.Link, "publish", err)
	}

	slog.Info("Item mirrored", "id", record.ID, "decision", decision.String(), "title", record.Title, "url", record.MirrorURL)
	return nil
}

// Result is the outcome of a single out-of-band URL.
type Result struct {
	Success   bool
	IsNew     bool
	ID        string
	MirrorURL string
	Err       error
}

// ProcessSpecificURL ingests one URL outside the feed flow. Feed retrieval
// and relevance filtering are skipped; the page must pass the content
// validator instead. A page whose text hash matches the published record is
// reported as ErrAlreadyProcessed.
func (p *Pipeline) ProcessSpecificURL(ctx context.Context, rawURL string) Result {
	if !feed.IsHTTPURL(rawURL) {
		return Result{Err: &content.ValidationError{URL: rawURL, Reason: "URL must be absolute http or https"}}
	}

	var keywords []string
	var audience feed.NotifyConfig
	if runConfig, err := p.configs.GetConfig(); err == nil {
		keywords = runConfig.Keywords
		audience = runConfig.Notify
	}

	id := Identity(rawURL)
	existing, err := p.items.GetItem(ctx, id)
	if err != nil {
		return Result{ID: id, Err: err}
	}

	page, err := p.pages.Fetch(ctx, rawURL)
	if err != nil {
		p.fail(rawURL, "content", err)
		return Result{ID: id, Err: err}
	}

	verdict := content.NewValidator(keywords).Validate(page.Text, page.Document)
	if !verdict.Valid {
		slog.Warn("Page rejected by validator", "url", rawURL, "reason", verdict.Reason)
		return Result{ID: id, Err: &content.ValidationError{URL: rawURL, Reason: verdict.Reason}}
	}

	record := existing
	if record == nil {
		record = &database.MirroredItem{ID: id}
	} else if record.Published() && record.ContentHash == content.Hash(page.Text) {
		slog.Info("Page unchanged since last publish", "id", id, "url", rawURL)
		return Result{ID: id, MirrorURL: record.MirrorURL, Err: ErrAlreadyProcessed}
	}
	if record.UUID == "" {
		record.UUID = uuid.NewString()
	}

	record.Title = cmp.Or(page.Title, record.Title, rawURL)
	record.SourceURL = rawURL
	if record.PublishedAt.IsZero() {
		record.PublishedAt = p.now().UTC()
	}

	if err := p.mirror(ctx, record, page, audience); err != nil {
		p.fail(rawURL, "publish", err)
		return Result{ID: id, Err: err}
	}

	slog.Info("URL mirrored", "id", id, "new", existing == nil, "url", record.MirrorURL)
	return Result{Success: true, IsNew: existing == nil, ID: id, MirrorURL: record.MirrorURL}
}

// mirror saves the fetched content, publishes it, records the revision and
// hands the result to the notifier. The record is saved before publishing so
// a failed publish leaves an unpublished record for the next run.
func (p *Pipeline) mirror(ctx context.Context, record *database.MirroredItem, page *content.Page, audience feed.NotifyConfig) error {
	record.BodyHTML = page.Body
	record.ContentHash = content.Hash(page.Text)

	if err := p.items.SaveItem(ctx, record); err != nil {
		return err
	}

	result, err := p.publisher.Publish(ctx, record)
	if err != nil {
		return err
	}

	record.Revision = result.Revision
	record.MirrorURL = result.PublicURL
	record.StoreURL = result.StoreURL
	if err := p.items.SaveItem(ctx, record); err != nil {
		return fmt.Errorf("published %s but failed to record revision: %w", result.Path, err)
	}

	if p.notifier != nil {
		p.notifier.Notify(ctx, notify.Event{
			ID:          record.ID,
			Title:       record.Title,
			MirrorURL:   record.MirrorURL,
			SourceURL:   record.SourceURL,
			PublishedAt: record.PublishedAt,
		}, audience)
	}
	return nil
}

func (p *Pipeline) fail(link, stage string, err error) error {
	slog.Error("Item processing failed", "link", link, "stage", stage, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}
