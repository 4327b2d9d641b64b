// Package gateway reads and writes blog posts stored as Markdown files in
// a Git repository, through a hosted file-contents API with the GitHub
// "contents" shape (Netlify Git Gateway proxies the same API).
//
// Every post lives at {ContentDir}/{slug}.md as a frontmatter block
// followed by the Markdown body. The remote "sha" of a file is the only
// concurrency control: writes carry the version they were based on and a
// stale version is rejected by the store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eringen/gitcms/frontmatter"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultBranch     = "main"
	defaultContentDir = "src/content/blog"
	defaultAuthor     = "Admin"

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 32 << 20
)

// Config configures a Client. Owner and Repo are required.
type Config struct {
	Owner  string
	Repo   string
	Branch string // default "main"

	// BaseURL is the API root, e.g. "https://api.github.com" or
	// "https://example.netlify.app/.netlify/git/github".
	BaseURL string

	// ContentDir is the repository directory holding posts.
	ContentDir string // default "src/content/blog"

	// Author is written when a post is created without one.
	Author string // default "Admin"

	// Session and Exchanger are consulted by Init, in that order.
	Session   Session
	Exchanger TokenExchanger

	// Strict makes post reads fail on malformed frontmatter instead of
	// skipping the bad lines.
	Strict bool

	// RenameRecovery re-creates the original file when the create step
	// of a rename fails after the delete step succeeded.
	RenameRecovery bool

	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client is an authenticated client of the file-contents API. It is safe
// for concurrent use once initialized.
type Client struct {
	baseURL    string
	owner      string
	repo       string
	branch     string
	contentDir string
	author     string

	session        Session
	exchanger      TokenExchanger
	parser         frontmatter.Parser
	renameRecovery bool

	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.RWMutex
	token string
}

// New returns a Client for the configured repository. It performs no
// network access; call Init before any other operation.
func New(cfg Config) (*Client, error) {
	if cfg.Owner == "" {
		return nil, errors.New("gateway: Owner is required")
	}
	if cfg.Repo == "" {
		return nil, errors.New("gateway: Repo is required")
	}
	c := &Client{
		baseURL:        strings.TrimRight(orDefault(cfg.BaseURL, defaultBaseURL), "/"),
		owner:          cfg.Owner,
		repo:           cfg.Repo,
		branch:         orDefault(cfg.Branch, defaultBranch),
		contentDir:     strings.Trim(orDefault(cfg.ContentDir, defaultContentDir), "/"),
		author:         orDefault(cfg.Author, defaultAuthor),
		session:        cfg.Session,
		exchanger:      cfg.Exchanger,
		parser:         frontmatter.Parser{Strict: cfg.Strict},
		renameRecovery: cfg.RenameRecovery,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Branch returns the branch all reads and writes target.
func (c *Client) Branch() string { return c.branch }

// Init obtains the bearer token: from the session when one exists,
// otherwise from the token exchanger.
func (c *Client) Init(ctx context.Context) error {
	if c.session != nil {
		if token, ok := c.session.CurrentToken(); ok {
			if token == "" {
				return fmt.Errorf("%w: session has no access token", ErrAuthentication)
			}
			c.setToken(token)
			return nil
		}
	}
	if c.exchanger == nil {
		return fmt.Errorf("%w: no session and no token exchanger configured", ErrAuthentication)
	}
	token, err := c.exchanger.ExchangeToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: token exchange: %w", ErrAuthentication, err)
	}
	if token == "" {
		return fmt.Errorf("%w: token exchange returned no token", ErrAuthentication)
	}
	c.setToken(token)
	c.logger.Debug("gateway token obtained through exchange", "owner", c.owner, "repo", c.repo)
	return nil
}

// IsInitialized reports whether a token is held.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// do sends an authenticated request and returns the response body. The
// body value, when non-nil, is JSON-encoded. Non-2xx responses become a
// *TransportError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, ErrNotInitialized
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("gateway: reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseTransportError(method, path, resp, data)
	}
	return data, nil
}

// contentsPath returns the API path of a repository file or directory.
// Each path segment is escaped on its own so slashes stay separators.
func (c *Client) contentsPath(filePath string) string {
	segments := strings.Split(strings.Trim(filePath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/repos/" + url.PathEscape(c.owner) + "/" + url.PathEscape(c.repo) +
		"/contents/" + strings.Join(segments, "/")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
