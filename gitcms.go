// Package gitcms is the editor server of a Git-backed blog. Posts live as
// Markdown files with frontmatter in a repository and are read and written
// through the repository's file-contents API.
//
// The server exchanges an identity-provider session for a Git Gateway
// token, keeps that token in a cookie session, and serves a JSON API for
// post CRUD, Markdown preview and Cloudinary media.
package gitcms

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/gitcms/media"
	"github.com/eringen/gitcms/profiles"
	"github.com/eringen/gitcms/tokenexchange"
)

// App is the central gitcms application. It wires together the token
// exchange, the media client, the role directory, middleware and routes.
type App struct {
	Config Config
	Echo   *echo.Echo

	Exchange *tokenexchange.Service
	Media    *media.Client
	Profiles *profiles.Store
	Cache    *PostCache

	logger       *slog.Logger
	httpClient   *http.Client
	now          func() time.Time
	loginLimiter *LoginLimiter
	customRoutes []func(*App)
	ready        bool
}

// New creates a new App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:     cfg,
		Echo:       echo.New(),
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Setup opens the role directory, builds the service clients and
// registers middleware and routes. Start calls it; tests call it to get a
// ready handler without listening.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return errors.New("gitcms: SessionSecret is required")
	}
	if a.Config.Repo.Owner == "" || a.Config.Repo.Name == "" {
		return errors.New("gitcms: repository owner and name are required")
	}

	if a.Config.ProfilesPath != "" {
		store, err := profiles.Open(a.Config.ProfilesPath)
		if err != nil {
			return fmt.Errorf("gitcms: open profiles: %w", err)
		}
		a.Profiles = store
	}

	exCfg := tokenexchange.Config{
		SupabaseJWTSecret: a.Config.Auth.SupabaseJWTSecret,
		GatewaySecret:     a.Config.Auth.GatewaySecret,
		SiteURL:           a.Config.SiteURL,
		TokenTTL:          a.Config.Auth.TokenTTL,
		HTTPClient:        a.httpClient,
		Logger:            a.logger.With("component", "tokenexchange"),
		Now:               a.now,
	}
	if a.Profiles != nil {
		exCfg.Roles = a.Profiles
	}
	a.Exchange = tokenexchange.New(exCfg)

	a.Media = media.NewClient(media.ClientConfig{
		Config: media.Config{
			CloudName:     a.Config.Cloudinary.CloudName,
			APIKey:        a.Config.Cloudinary.APIKey,
			APISecret:     a.Config.Cloudinary.APISecret,
			DefaultFolder: a.Config.Cloudinary.Folder,
			Now:           a.now,
		},
		APIBaseURL: a.Config.Cloudinary.APIBase,
		HTTPClient: a.httpClient,
		Logger:     a.logger.With("component", "media"),
	})

	a.Cache = NewPostCache(a.Config.ListCacheTTL, a.now)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start sets the App up and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.logger.Info("gitcms listening", "addr", a.Config.Addr,
		"repo", a.Config.Repo.Owner+"/"+a.Config.Repo.Name, "branch", a.Config.Repo.Branch)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	exchange := tokenexchange.NewHandler(a.Exchange, a.logger.With("component", "tokenexchange"))
	e.Any("/.netlify/functions/git-gateway-token", exchange.Serve)
	e.Any("/api/git-gateway-token", exchange.Serve)

	mediaHandler := media.NewHandler(a.Media, a.logger.With("component", "media"))
	e.POST("/api/cloudinary-signature", mediaHandler.Signature)
	e.GET("/api/cloudinary-resources", mediaHandler.Resources)

	e.GET("/healthz", handleHealth)

	// Admin routes
	e.GET("/admin/api/session/", a.handleSession)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	admin := e.Group("/admin", a.requireSession)
	admin.GET("/api/posts/", a.handleListPosts)
	admin.GET("/api/tags/", a.handleListTags)
	admin.POST("/api/posts/", a.handleCreatePost)
	admin.GET("/api/posts/:slug/", a.handleGetPost)
	admin.PUT("/api/posts/:slug/", a.handleUpdatePost)
	admin.DELETE("/api/posts/:slug/", a.handleDeletePost)
	admin.POST("/api/preview/", handlePreview)
	admin.POST("/images/upload/", mediaHandler.Upload)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.Profiles != nil {
		return a.Profiles.Close()
	}
	return nil
}
