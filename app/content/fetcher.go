package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lysyi3m/feed-mirror/app/retry"
)

// Page is a fetched source page after sanitization.
type Page struct {
	URL   string
	Title string

	// Document is the whole sanitized page, Body only the inner markup of
	// its <body>. Neither ever holds scripts or event handlers.
	Document string
	Body     string

	Text string
	Size int
}

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	maxBytes   int64
	policy     retry.Policy
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration, maxBytes int64, policy retry.Policy) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
		maxBytes:   maxBytes,
		policy:     policy,
	}
}

// Fetch downloads pageURL, sanitizes it and extracts its readable text.
// Oversized pages fail with a *ValidationError and are never retried.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, &ValidationError{URL: pageURL, Reason: "URL must be absolute http or https"}
	}

	var data []byte
	err = retry.Do(ctx, f.policy, func(ctx context.Context) error {
		var err error
		data, err = f.fetchOnce(ctx, pageURL)
		return err
	})
	if err != nil {
		return nil, err
	}

	document, body, err := Sanitize(data, base)
	if err != nil {
		return nil, fmt.Errorf("failed to sanitize %s: %w", pageURL, err)
	}

	title, text := ExtractText(document, base)

	slog.Debug("Page fetched",
		"url", pageURL,
		"size", humanize.Bytes(uint64(len(data))),
		"text_length", len(text))

	return &Page{
		URL:      pageURL,
		Title:    title,
		Document: document,
		Body:     body,
		Text:     text,
		Size:     len(data),
	}, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, retry.Permanent(&ValidationError{URL: pageURL, Reason: err.Error()})
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: pageURL, Status: resp.StatusCode}
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, retry.Permanent(f.oversize(pageURL, resp.ContentLength))
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, retry.Permanent(f.oversize(pageURL, int64(len(data))))
	}

	return data, nil
}

func (f *Fetcher) oversize(pageURL string, size int64) *ValidationError {
	return &ValidationError{
		URL: pageURL,
		Reason: fmt.Sprintf("page exceeds size limit of %s (read %s bytes)",
			humanize.Bytes(uint64(f.maxBytes)), humanize.Comma(size)),
	}
}
