package api

import (
	"context"
	"time"

	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/pipeline"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

type PipelineRunner interface {
	Run(ctx context.Context) (pipeline.RunStats, error)
	ProcessSpecificURL(ctx context.Context, url string) pipeline.Result
}

var _ PipelineRunner = (*pipeline.Pipeline)(nil)

// URLTaskFactory builds the queued variant of a single-URL ingestion.
type URLTaskFactory func(url string) tasks.TaskInterface

type Handler struct {
	pipeline      PipelineRunner
	itemRepo      database.ItemRepository
	notifications database.NotificationRepository
	scheduler     tasks.TaskSchedulerInterface
	newURLTask    URLTaskFactory
	version       string
}

type processURLRequest struct {
	URL   string `json:"url" binding:"required"`
	Async bool   `json:"async"`
}

type processURLResponse struct {
	Success   bool   `json:"success"`
	IsNew     bool   `json:"isNew"`
	ID        string `json:"id,omitempty"`
	MirrorURL string `json:"mirrorUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// itemSummary is a MirroredItem without its body, for listings.
type itemSummary struct {
	ID          string    `json:"id"`
	UUID        string    `json:"uuid"`
	Title       string    `json:"title"`
	SourceURL   string    `json:"sourceUrl"`
	PublishedAt time.Time `json:"publishedAt"`
	Published   bool      `json:"published"`
	MirrorURL   string    `json:"mirrorUrl,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func summarize(item database.MirroredItem) itemSummary {
	return itemSummary{
		ID:          item.ID,
		UUID:        item.UUID,
		Title:       item.Title,
		SourceURL:   item.SourceURL,
		PublishedAt: item.PublishedAt,
		Published:   item.Published(),
		MirrorURL:   item.MirrorURL,
		UpdatedAt:   item.UpdatedAt,
	}
}
