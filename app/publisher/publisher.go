package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/retry"
)

const DefaultFallbackBranch = "main"

type Config struct {
	Dir            string
	FallbackBranch string
	CustomDomain   string
}

type Result struct {
	Path     string
	Revision string
	// StoreURL is the store's own page for the file, PublicURL the address
	// readers should use.
	StoreURL  string
	PublicURL string
	Created   bool
}

type Publisher struct {
	client   *Client
	branches *BranchCache
	config   Config
	policy   retry.Policy
	now      func() time.Time
}

func NewPublisher(client *Client, branches *BranchCache, config Config, policy retry.Policy) *Publisher {
	if config.FallbackBranch == "" {
		config.FallbackBranch = DefaultFallbackBranch
	}
	config.Dir = strings.Trim(config.Dir, "/")

	// Conflicts usually mean the revision moved under us; the retry re-reads it.
	policy.Retryable = func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsConflict() {
			return true
		}
		return retry.IsTransient(err)
	}

	return &Publisher{
		client:   client,
		branches: branches,
		config:   config,
		policy:   policy,
		now:      time.Now,
	}
}

// DocumentPath is where an item's mirror lives. It depends only on the uuid.
func (p *Publisher) DocumentPath(uuid string) string {
	return path.Join(p.config.Dir, uuid+".html")
}

// Publish creates or updates the mirrored document for item. The existence
// check and the write run together inside each attempt, so a retried
// conflict picks up the latest revision.
func (p *Publisher) Publish(ctx context.Context, item *database.MirroredItem) (*Result, error) {
	if item.UUID == "" {
		return nil, fmt.Errorf("item %s has no uuid", item.ID)
	}

	document, err := BuildDocument(item.Title, item.SourceURL, item.BodyHTML, p.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to build document: %w", err)
	}

	filePath := p.DocumentPath(item.UUID)
	branch := p.resolveBranch(ctx)

	var result *Result
	err = retry.Do(ctx, p.policy, func(ctx context.Context) error {
		sha, exists, err := p.client.GetFile(ctx, filePath, branch)
		if err != nil {
			return err
		}

		message := "Mirror: " + item.Title
		if exists {
			message = "Update mirror: " + item.Title
		}

		resp, err := p.client.PutFile(ctx, PutFileRequest{
			Path:    filePath,
			Message: message,
			Content: document,
			SHA:     sha,
			Branch:  branch,
		})
		if err != nil {
			p.logFailure(err, filePath, exists)
			return err
		}

		result = &Result{
			Path:     filePath,
			Revision: resp.Commit.SHA,
			StoreURL: p.storeURL(resp, branch, filePath),
			Created:  !exists,
		}
		result.PublicURL = p.publicURL(filePath, result.StoreURL)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", filePath, err)
	}

	slog.Info("Document published",
		"id", item.ID,
		"path", filePath,
		"created", result.Created,
		"revision", result.Revision)

	return result, nil
}

func (p *Publisher) resolveBranch(ctx context.Context) string {
	if branch, ok := p.branches.Get(); ok {
		return branch
	}

	branch, err := p.client.GetDefaultBranch(ctx)
	if err != nil {
		slog.Warn("Failed to resolve default branch, using fallback",
			"repo", p.client.Repo(),
			"fallback", p.config.FallbackBranch,
			"error", err)
		return p.config.FallbackBranch
	}

	p.branches.Set(branch)
	return branch
}

func (p *Publisher) storeURL(resp *PutFileResponse, branch, filePath string) string {
	if resp.Content.HTMLURL != "" {
		return resp.Content.HTMLURL
	}
	return fmt.Sprintf("https://github.com/%s/blob/%s/%s", p.client.Repo(), branch, filePath)
}

// publicURL prefers the custom domain. The directory prefix is kept since
// the domain serves the repository root.
func (p *Publisher) publicURL(filePath, storeURL string) string {
	domain := strings.TrimRight(strings.TrimSpace(p.config.CustomDomain), "/")
	if domain == "" {
		return storeURL
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain + "/" + filePath
}

func (p *Publisher) logFailure(err error, filePath string, hadRevision bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		slog.Warn("Content store write failed", "path", filePath, "error", err)
		return
	}

	kind := "api"
	switch {
	case apiErr.IsAuth():
		kind = "auth"
	case apiErr.IsConflict():
		kind = "conflict"
	}

	slog.Warn("Content store write failed",
		"kind", kind,
		"path", filePath,
		"repo", apiErr.Repo,
		"status", apiErr.Status,
		"had_revision", hadRevision,
		"credential", apiErr.Credential,
		"body", apiErr.Body)
}
