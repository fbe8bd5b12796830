package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIURL   = "https://api.github.com"
	MetadataTimeout = 10 * time.Second
	WriteTimeout    = 30 * time.Second

	maxErrorBody = 4 << 10
)

// APIError carries enough context to tell an auth failure from a conflict
// without exposing the token.
type APIError struct {
	Method      string
	Path        string
	Repo        string
	Status      int
	Body        string
	HadRevision bool
	Credential  string // redacted
}

func (e *APIError) Error() string {
	return fmt.Sprintf("content store %s %s failed: %d %s (repo=%s, had_revision=%t, credential=%s): %s",
		e.Method, e.Path, e.Status, http.StatusText(e.Status), e.Repo, e.HadRevision, e.Credential, e.Body)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

// IsAuth reports a rejected or under-privileged credential.
func (e *APIError) IsAuth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// IsConflict reports a stale or missing revision marker.
func (e *APIError) IsConflict() bool {
	return e.Status == http.StatusConflict || (e.Status == http.StatusUnprocessableEntity && strings.Contains(e.Body, "sha"))
}

// Client talks to a GitHub-Contents-API compatible store.
type Client struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	credential Credential
	userAgent  string
}

func NewClient(httpClient *http.Client, baseURL, owner, repo string, credential Credential, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		owner:      owner,
		repo:       repo,
		credential: credential,
		userAgent:  userAgent,
	}
}

// Repo is the owner/name pair, for diagnostics.
func (c *Client) Repo() string {
	return c.owner + "/" + c.repo
}

func (c *Client) GetDefaultBranch(ctx context.Context) (string, error) {
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if _, err := c.do(ctx, MetadataTimeout, http.MethodGet, c.repoPath(), nil, false, &repo); err != nil {
		return "", err
	}
	if repo.DefaultBranch == "" {
		return "", fmt.Errorf("repository %s reported no default branch", c.Repo())
	}
	return repo.DefaultBranch, nil
}

// GetFile returns the current revision (blob sha) of path on ref. A missing
// file is not an error.
func (c *Client) GetFile(ctx context.Context, path, ref string) (string, bool, error) {
	endpoint := c.contentsPath(path)
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	var file struct {
		SHA string `json:"sha"`
	}
	status, err := c.do(ctx, MetadataTimeout, http.MethodGet, endpoint, nil, false, &file)
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return file.SHA, true, nil
}

type PutFileRequest struct {
	Path    string
	Message string
	Content []byte
	// SHA must be empty when creating and the current revision when updating.
	SHA    string
	Branch string
}

type PutFileResponse struct {
	Content struct {
		SHA     string `json:"sha"`
		URL     string `json:"url"`
		HTMLURL string `json:"html_url"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"commit"`
}

func (c *Client) PutFile(ctx context.Context, req PutFileRequest) (*PutFileResponse, error) {
	payload := struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha,omitempty"`
		Branch  string `json:"branch,omitempty"`
	}{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString(req.Content),
		SHA:     req.SHA,
		Branch:  req.Branch,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp PutFileResponse
	if _, err := c.do(ctx, WriteTimeout, http.MethodPut, c.contentsPath(req.Path), body, req.SHA != "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) repoPath() string {
	return "/repos/" + url.PathEscape(c.owner) + "/" + url.PathEscape(c.repo)
}

func (c *Client) contentsPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.repoPath() + "/contents/" + strings.Join(segments, "/")
}

// do performs one request with its own timeout and decodes a 2xx JSON body
// into out. The status code is returned even when err is set.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, endpoint string, body []byte, hadRevision bool, out any) (int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(timeoutCtx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", c.credential.AuthorizationHeader())
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("content store %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &APIError{
			Method:      method,
			Path:        endpoint,
			Repo:        c.Repo(),
			Status:      resp.StatusCode,
			Body:        strings.TrimSpace(string(data)),
			HadRevision: hadRevision,
			Credential:  c.credential.Redact(),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s %s response: %w", method, endpoint, err)
		}
	}
	return resp.StatusCode, nil
}
