package gateway

import (
	"context"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eringen/gitcms/frontmatter"
)

// BlogPost is a post projected from its stored Markdown file.
type BlogPost struct {
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Author    string   `json:"author"`
	Excerpt   string   `json:"excerpt"`
	Image     string   `json:"image"`
	Tags      []string `json:"tags"`
	Content   string   `json:"content"`
	SHA       Version  `json:"sha"`
}

// PostInput holds the fields of a new post. Only Slug and Title are
// required; Date defaults to the current time and must otherwise be a
// timestamp. Author defaults to the client's default author.
type PostInput struct {
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Excerpt string   `json:"excerpt"`
	Date    string   `json:"date"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
	Image   string   `json:"image"`
}

// PostUpdate changes an existing post. Empty strings keep the stored
// value, as does a nil Tags; a non-nil empty Tags clears them. A NewSlug
// different from Slug renames the post.
type PostUpdate struct {
	Slug    string   `json:"slug"`
	NewSlug string   `json:"newSlug"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Excerpt string   `json:"excerpt"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
	Image   string   `json:"image"`
}

// Keys the client itself manages, in the order they are written.
var postKeys = []string{"title", "date", "updatedAt", "author", "tags", "image", "excerpt"}

// PostPath returns the repository path of the post with the given slug.
func (c *Client) PostPath(slug string) string {
	return path.Join(c.contentDir, slug+".md")
}

// CreateBlogPost writes a new post file. It fails with ErrConflict when
// the store already has a file for the slug.
func (c *Client) CreateBlogPost(ctx context.Context, in PostInput) (Version, error) {
	if err := validSlug(in.Slug); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Title) == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidPost)
	}
	date := frontmatter.Raw(c.timestamp())
	if strings.TrimSpace(in.Date) != "" {
		v, ok := dateValue(in.Date)
		if !ok {
			return "", fmt.Errorf("%w: date %q is not a timestamp", ErrInvalidPost, in.Date)
		}
		date = v
	}

	var attrs frontmatter.Attributes
	attrs.Set("title", frontmatter.String(in.Title))
	attrs.Set("date", date)
	attrs.Set("author", frontmatter.String(orDefault(in.Author, c.author)))
	attrs.Set("tags", frontmatter.List(in.Tags...))
	attrs.Set("image", frontmatter.String(in.Image))
	attrs.Set("excerpt", frontmatter.String(in.Excerpt))

	return c.SaveFile(ctx, SaveFileRequest{
		Path:    c.PostPath(in.Slug),
		Content: frontmatter.Render(attrs, in.Content),
		Message: "Create post: " + in.Title,
	})
}

// UpdateBlogPost merges the update over the stored post and writes it
// back at the version it was read at. Frontmatter keys the client does
// not manage are carried over unchanged.
//
// A rename deletes the old file and then creates the new one. The two
// writes are not atomic: when the create fails the old file stays
// deleted unless the client was built with RenameRecovery, in which case
// it is re-created from the content read at the start. Either way the
// failure is reported as a *RenameError.
func (c *Client) UpdateBlogPost(ctx context.Context, up PostUpdate) (Version, error) {
	if err := validSlug(up.Slug); err != nil {
		return "", err
	}
	renaming := up.NewSlug != "" && up.NewSlug != up.Slug
	if renaming {
		if err := validSlug(up.NewSlug); err != nil {
			return "", err
		}
	}

	oldPath := c.PostPath(up.Slug)
	existing, err := c.GetFile(ctx, oldPath)
	if err != nil {
		return "", err
	}
	if !existing.Exists() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, up.Slug)
	}
	prev, prevBody, err := c.parser.Split(existing.Content)
	if err != nil {
		return "", fmt.Errorf("gateway: reading %s: %w", oldPath, err)
	}

	title := orDefault(up.Title, prev.Str("title"))
	if title == "" {
		title = up.Slug
	}

	var attrs frontmatter.Attributes
	attrs.Set("title", frontmatter.String(title))
	if date, ok := prev.Get("date"); ok && strings.TrimSpace(date.Str()) != "" {
		// A stored date that is not a timestamp is kept as a quoted string.
		v, _ := dateValue(date.Str())
		attrs.Set("date", v)
	} else {
		attrs.Set("date", frontmatter.Raw(c.timestamp()))
	}
	attrs.Set("updatedAt", frontmatter.Raw(c.timestamp()))
	attrs.Set("author", frontmatter.String(firstNonEmpty(up.Author, prev.Str("author"), c.author)))
	switch {
	case up.Tags != nil:
		attrs.Set("tags", frontmatter.List(up.Tags...))
	case prev.Has("tags"):
		tags, _ := prev.Get("tags")
		attrs.Set("tags", tags)
	default:
		attrs.Set("tags", frontmatter.List())
	}
	attrs.Set("image", frontmatter.String(orDefault(up.Image, prev.Str("image"))))
	attrs.Set("excerpt", frontmatter.String(orDefault(up.Excerpt, prev.Str("excerpt"))))
	for _, key := range prev.Keys() {
		if slices.Contains(postKeys, key) {
			continue
		}
		v, _ := prev.Get(key)
		attrs.Set(key, v)
	}

	body := up.Content
	if body == "" {
		body = prevBody
	}
	doc := frontmatter.Render(attrs, body)

	if !renaming {
		return c.SaveFile(ctx, SaveFileRequest{
			Path:    oldPath,
			Content: doc,
			Message: "Update post: " + title,
			SHA:     existing.SHA,
		})
	}

	err = c.DeleteFile(ctx, DeleteFileRequest{
		Path:    oldPath,
		Message: fmt.Sprintf("Rename post: %s -> %s", up.Slug, up.NewSlug),
		SHA:     existing.SHA,
	})
	if err != nil {
		return "", err
	}
	sha, err := c.SaveFile(ctx, SaveFileRequest{
		Path:    c.PostPath(up.NewSlug),
		Content: doc,
		Message: fmt.Sprintf("Update post: %s (renamed from %s)", title, up.Slug),
	})
	if err == nil {
		return sha, nil
	}

	renameErr := &RenameError{From: up.Slug, To: up.NewSlug, Deleted: true, Err: err}
	if c.renameRecovery {
		_, restoreErr := c.SaveFile(ctx, SaveFileRequest{
			Path:    oldPath,
			Content: existing.Content,
			Message: fmt.Sprintf("Restore post: %s (rename to %s failed)", up.Slug, up.NewSlug),
		})
		if restoreErr != nil {
			renameErr.RestoreErr = restoreErr
		} else {
			renameErr.Restored = true
		}
	}
	c.logger.Error("post rename failed",
		"from", up.Slug,
		"to", up.NewSlug,
		"restored", renameErr.Restored,
		"error", err,
	)
	return "", renameErr
}

// DeleteBlogPost removes the post with the given slug.
func (c *Client) DeleteBlogPost(ctx context.Context, slug string) error {
	if err := validSlug(slug); err != nil {
		return err
	}
	p := c.PostPath(slug)
	existing, err := c.GetFile(ctx, p)
	if err != nil {
		return err
	}
	if !existing.Exists() {
		return fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return c.DeleteFile(ctx, DeleteFileRequest{
		Path:    p,
		Message: "Delete post: " + slug,
		SHA:     existing.SHA,
	})
}

// GetBlogPost reads one post.
func (c *Client) GetBlogPost(ctx context.Context, slug string) (BlogPost, error) {
	if err := validSlug(slug); err != nil {
		return BlogPost{}, err
	}
	f, err := c.GetFile(ctx, c.PostPath(slug))
	if err != nil {
		return BlogPost{}, err
	}
	if !f.Exists() {
		return BlogPost{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return c.project(slug, f)
}

// GetAllBlogPosts reads every post of the content directory, newest
// first. Files are fetched concurrently and a single failed fetch fails
// the whole listing. A missing content directory yields no posts.
func (c *Client) GetAllBlogPosts(ctx context.Context) ([]BlogPost, error) {
	entries, err := c.ListDirectory(ctx, c.contentDir)
	if err != nil {
		if IsNotFound(err) {
			return []BlogPost{}, nil
		}
		return nil, err
	}

	var files []DirEntry
	for _, e := range entries {
		if e.Type == "file" && strings.HasSuffix(e.Name, ".md") {
			files = append(files, e)
		}
	}

	posts := make([]BlogPost, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range files {
		g.Go(func() error {
			f, err := c.GetFile(gctx, c.PostPath(strings.TrimSuffix(e.Name, ".md")))
			if err != nil {
				return err
			}
			post, err := c.project(strings.TrimSuffix(e.Name, ".md"), f)
			if err != nil {
				return err
			}
			posts[i] = post
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortByDate(posts)
	return posts, nil
}

// project builds a BlogPost from a stored file, filling in the fallbacks
// for missing frontmatter.
func (c *Client) project(slug string, f File) (BlogPost, error) {
	attrs, body, err := c.parser.Split(f.Content)
	if err != nil {
		return BlogPost{}, fmt.Errorf("gateway: reading %s: %w", f.Path, err)
	}
	post := BlogPost{
		Slug:      slug,
		Title:     orDefault(attrs.Str("title"), slug),
		Date:      attrs.Str("date"),
		UpdatedAt: attrs.Str("updatedAt"),
		Author:    orDefault(attrs.Str("author"), c.author),
		Excerpt:   attrs.Str("excerpt"),
		Image:     attrs.Str("image"),
		Tags:      []string{},
		Content:   body,
		SHA:       f.SHA,
	}
	if tags, ok := attrs.Get("tags"); ok {
		if tags.IsList() {
			post.Tags = tags.Items()
		} else if s := strings.TrimSpace(tags.Str()); s != "" {
			post.Tags = []string{s}
		}
	}
	return post, nil
}

// sortByDate orders posts newest first. Posts whose date does not parse
// go after all dated posts and keep their relative order.
func sortByDate(posts []BlogPost) {
	times := make(map[string]time.Time, len(posts))
	for _, p := range posts {
		if t, ok := parseDate(p.Date); ok {
			times[p.Slug] = t
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		ti, iok := times[posts[i].Slug]
		tj, jok := times[posts[j].Slug]
		switch {
		case iok && jok:
			return ti.After(tj)
		case iok:
			return true
		default:
			return false
		}
	})
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateValue writes a parseable timestamp bare and anything else quoted,
// so no date can break the frontmatter block. ok reports a timestamp.
func dateValue(s string) (frontmatter.Value, bool) {
	s = strings.TrimSpace(s)
	if _, ok := parseDate(s); ok {
		return frontmatter.Raw(s), true
	}
	return frontmatter.String(s), false
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func validSlug(slug string) error {
	if slug == "" || strings.ContainsAny(slug, "/\\") || slug == "." || slug == ".." {
		return fmt.Errorf("%w: slug %q", ErrInvalidPost, slug)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
