package gitcms

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eringen/gitcms/gateway"
)

// PostCache is an in-memory cache of the post listing and its tags with
// TTL. Listing a repository costs one request per post, so the editor
// serves repeated listings from here and invalidates on every write.
type PostCache struct {
	mu      sync.RWMutex
	posts   []gateway.BlogPost
	tags    []string
	fetched time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewPostCache creates a PostCache. A zero ttl disables caching.
func NewPostCache(ttl time.Duration, now func() time.Time) *PostCache {
	if now == nil {
		now = time.Now
	}
	return &PostCache{ttl: ttl, now: now}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && c.now().Sub(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.tags = nil
	c.mu.Unlock()
}

// ensureLoaded returns cached posts and tags, calling load when the cache
// is stale. It tries a read lock first; only takes a write lock if a
// reload is needed.
func (c *PostCache) ensureLoaded(ctx context.Context, load func(context.Context) ([]gateway.BlogPost, error)) ([]gateway.BlogPost, []string, error) {
	c.mu.RLock()
	if c.valid() {
		posts, tags := c.posts, c.tags
		c.mu.RUnlock()
		return posts, tags, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.posts, c.tags, nil
	}
	posts, err := load(ctx)
	if err != nil {
		return nil, nil, err
	}
	tags := collectTags(posts)
	if c.ttl > 0 {
		c.posts, c.tags, c.fetched = posts, tags, c.now()
	}
	return posts, tags, nil
}

// ListPosts returns all posts, optionally filtered by tag.
func (c *PostCache) ListPosts(ctx context.Context, tag string, load func(context.Context) ([]gateway.BlogPost, error)) ([]gateway.BlogPost, error) {
	posts, _, err := c.ensureLoaded(ctx, load)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return posts, nil
	}
	normalized := normalizeTag(tag)
	filtered := []gateway.BlogPost{}
	for _, p := range posts {
		if slices.ContainsFunc(p.Tags, func(t string) bool { return normalizeTag(t) == normalized }) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// ListTags returns the unique tags of all posts.
func (c *PostCache) ListTags(ctx context.Context, load func(context.Context) ([]gateway.BlogPost, error)) ([]string, error) {
	_, tags, err := c.ensureLoaded(ctx, load)
	return tags, err
}

func collectTags(posts []gateway.BlogPost) []string {
	tags := []string{}
	for _, p := range posts {
		for _, t := range p.Tags {
			if t = normalizeTag(t); t != "" && !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
	}
	slices.Sort(tags)
	return tags
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
