package gitcms

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/gitcms/gateway"
	"github.com/eringen/gitcms/markdown"
)

type errorBody struct {
	Error    string `json:"error"`
	Restored *bool  `json:"restored,omitempty"`
}

type versionBody struct {
	SHA gateway.Version `json:"sha"`
}

// contentClient builds a content client bound to the caller's session
// and initializes it.
func (a *App) contentClient(c echo.Context) (*gateway.Client, error) {
	client, err := gateway.New(gateway.Config{
		Owner:          a.Config.Repo.Owner,
		Repo:           a.Config.Repo.Name,
		Branch:         a.Config.Repo.Branch,
		BaseURL:        a.Config.Repo.APIBaseURL,
		ContentDir:     a.Config.Repo.ContentDir,
		Author:         a.Config.Repo.Author,
		Strict:         a.Config.Repo.Strict,
		RenameRecovery: !a.Config.Repo.DisableRenameRecovery,
		Session:        currentSession(c),
		HTTPClient:     a.httpClient,
		Logger:         a.logger.With("component", "gateway"),
		Now:            a.now,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(c.Request().Context()); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *App) handleListPosts(c echo.Context) error {
	client, err := a.contentClient(c)
	if err != nil {
		return a.apiError(c, "listing posts", err)
	}
	posts, err := a.Cache.ListPosts(c.Request().Context(), c.QueryParam("tag"), client.GetAllBlogPosts)
	if err != nil {
		return a.apiError(c, "listing posts", err)
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleListTags(c echo.Context) error {
	client, err := a.contentClient(c)
	if err != nil {
		return a.apiError(c, "listing tags", err)
	}
	tags, err := a.Cache.ListTags(c.Request().Context(), client.GetAllBlogPosts)
	if err != nil {
		return a.apiError(c, "listing tags", err)
	}
	return c.JSON(http.StatusOK, tags)
}

func (a *App) handleGetPost(c echo.Context) error {
	client, err := a.contentClient(c)
	if err != nil {
		return a.apiError(c, "reading post", err)
	}
	post, err := client.GetBlogPost(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return a.apiError(c, "reading post", err)
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleCreatePost(c echo.Context) error {
	var in gateway.PostInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = Slugify(in.Title)
	}
	if in.Slug == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Slug is required. Add a title or slug."})
	}
	in.Tags = cleanTags(in.Tags)

	client, err := a.contentClient(c)
	if err != nil {
		return a.apiError(c, "creating post", err)
	}
	sha, err := client.CreateBlogPost(c.Request().Context(), in)
	if err != nil {
		return a.apiError(c, "creating post", err)
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, versionBody{SHA: sha})
}

func (a *App) handleUpdatePost(c echo.Context) error {
	var up gateway.PostUpdate
	if err := c.Bind(&up); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
	}
	// The path names the post; the body may only rename it.
	up.Slug = c.Param("slug")
	up.NewSlug = strings.TrimSpace(up.NewSlug)
	if up.Tags != nil {
		up.Tags = cleanTags(up.Tags)
	}

	client, err := a.contentClient(c)
	if err != nil {
		return a.apiError(c, "updating post", err)
	}
	sha, err := client.UpdateBlogPost(c.Request().Context(), up)
	// A failed rename may have deleted the old file.
	a.Cache.Invalidate()
	if err != nil {
		return a.apiError(c, "updating post", err)
	}
	return c.JSON(http.StatusOK, versionBody{SHA: sha})
}

func (a *App) handleDeletePost(c echo.Context) error {
	client, err := a.contentClient(c)
	if err != nil {
		return a.apiError(c, "deleting post", err)
	}
	if err := client.DeleteBlogPost(c.Request().Context(), c.Param("slug")); err != nil {
		return a.apiError(c, "deleting post", err)
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

func handlePreview(c echo.Context) error {
	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
	}
	return Render(c, markdown.Preview(req.Title, req.Content))
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// apiError answers with the status matching err and logs failures that
// are not the caller's fault.
func (a *App) apiError(c echo.Context, op string, err error) error {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(op, "error", err, "status", status)
	} else {
		a.logger.Debug(op, "error", err, "status", status)
	}
	return c.JSON(status, body)
}

func statusOf(err error) (int, errorBody) {
	var renameErr *gateway.RenameError
	var transportErr *gateway.TransportError
	switch {
	case errors.As(err, &renameErr):
		restored := renameErr.Restored
		return http.StatusInternalServerError, errorBody{Error: err.Error(), Restored: &restored}
	case errors.Is(err, gateway.ErrInvalidPost):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.Is(err, gateway.ErrNotInitialized), errors.Is(err, gateway.ErrAuthentication):
		return http.StatusUnauthorized, errorBody{Error: err.Error()}
	case errors.Is(err, gateway.ErrNotFound), gateway.IsNotFound(err):
		return http.StatusNotFound, errorBody{Error: err.Error()}
	case errors.Is(err, gateway.ErrConflict):
		return http.StatusConflict, errorBody{Error: err.Error()}
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, errorBody{Error: transportErr.Message}
	}
	return http.StatusInternalServerError, errorBody{Error: "Internal Server Error"}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		a.logger.Error("server error", "error", err, "path", c.Request().URL.Path)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody{Error: msg})
}
