package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/feed-mirror/app/retry"
)

var ErrEmptyBody = errors.New("response body is empty")

// HTTPStatusError is returned for any non-2xx feed response.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Status, http.StatusText(e.Status))
}

func (e *HTTPStatusError) StatusCode() int {
	return e.Status
}

type Fetcher struct {
	httpClient *http.Client
	parser     *Parser
	userAgent  string
	timeout    time.Duration
	policy     retry.Policy
}

func NewFetcher(httpClient *http.Client, parser *Parser, userAgent string, timeout time.Duration, policy retry.Policy) *Fetcher {
	// Unlike pages and store calls, every failed feed response is worth
	// another attempt: feeds are small and hosts flap.
	policy.Retryable = func(err error) bool {
		var statusErr *HTTPStatusError
		return retry.IsTransient(err) || errors.Is(err, ErrEmptyBody) || errors.As(err, &statusErr)
	}

	return &Fetcher{
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
		timeout:    timeout,
		policy:     policy,
	}
}

// Fetch retrieves and parses one feed. Parse errors are not retried.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	var data []byte
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		var err error
		data, err = f.fetchOnce(ctx, feedURL)
		if err != nil {
			slog.Debug("Feed request failed", "feed", feedURL, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}

	items, err := f.parser.Run(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feedURL, err)
	}

	return items, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: feedURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}

	return data, nil
}

// FetchResult carries the merged items of a FetchAll call and the failures
// of individual feeds, keyed by feed URL.
type FetchResult struct {
	Items  []Item
	Errors map[string]error
}

// FetchAll fetches every feed concurrently. One feed failing never affects
// the others. Items are merged in feed order and deduplicated by link, the
// first occurrence winning.
func (f *Fetcher) FetchAll(ctx context.Context, feedURLs []string) FetchResult {
	perFeed := make([][]Item, len(feedURLs))
	errs := make([]error, len(feedURLs))

	var wg sync.WaitGroup
	for i, feedURL := range feedURLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perFeed[i], errs[i] = f.Fetch(ctx, feedURL)
		}()
	}
	wg.Wait()

	result := FetchResult{Errors: map[string]error{}}
	seen := make(map[string]struct{})
	for i, feedURL := range feedURLs {
		if errs[i] != nil {
			slog.Error("Feed fetch failed", "feed", feedURL, "error", errs[i])
			result.Errors[feedURL] = errs[i]
			continue
		}
		for _, item := range perFeed[i] {
			if _, ok := seen[item.Link]; ok {
				continue
			}
			seen[item.Link] = struct{}{}
			result.Items = append(result.Items, item)
		}
		slog.Debug("Feed fetched", "feed", feedURL, "items", len(perFeed[i]))
	}

	return result
}
