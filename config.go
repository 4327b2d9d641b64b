package gitcms

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ConfigFileEnv names the environment variable pointing at an optional
// YAML configuration file. Environment variables override the file.
const ConfigFileEnv = "GITCMS_CONFIG"

// Config holds all configuration for a gitcms editor server.
type Config struct {
	Addr          string `yaml:"addr" env:"GITCMS_ADDR" env-default:":3000"`
	Env           string `yaml:"env" env:"GITCMS_ENV" env-default:"development"`
	SiteURL       string `yaml:"site_url" env:"SITE_URL,URL" env-default:"http://localhost:3000"`
	SessionSecret string `yaml:"session_secret" env:"GITCMS_SESSION_SECRET"`
	CookieSecure  bool   `yaml:"cookie_secure" env:"GITCMS_COOKIE_SECURE" env-default:"false"`

	// BodyLimit caps request bodies, in echo's size notation.
	BodyLimit string `yaml:"body_limit" env:"GITCMS_BODY_LIMIT" env-default:"12M"`

	// ListCacheTTL is how long a post listing is served from memory.
	// Zero disables the cache.
	ListCacheTTL time.Duration `yaml:"list_cache_ttl" env:"GITCMS_LIST_CACHE_TTL" env-default:"30s"`

	Repo       RepoConfig       `yaml:"repo"`
	Auth       AuthConfig       `yaml:"auth"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`

	// ProfilesPath is the SQLite role directory. Empty disables it.
	ProfilesPath string `yaml:"profiles_path" env:"GITCMS_PROFILES_DB" env-default:"data/profiles.db"`
}

// RepoConfig locates the repository holding the posts.
type RepoConfig struct {
	Owner      string `yaml:"owner" env:"GITHUB_OWNER,PUBLIC_GITHUB_OWNER"`
	Name       string `yaml:"name" env:"GITHUB_REPO,PUBLIC_GITHUB_REPO"`
	Branch     string `yaml:"branch" env:"GITHUB_BRANCH,PUBLIC_GITHUB_BRANCH" env-default:"main"`
	APIBaseURL string `yaml:"api_base_url" env:"GITCMS_API_BASE_URL" env-default:"https://api.github.com"`
	ContentDir string `yaml:"content_dir" env:"GITCMS_CONTENT_DIR" env-default:"src/content/blog"`
	Author     string `yaml:"author" env:"GITCMS_AUTHOR" env-default:"Admin"`
	Strict     bool   `yaml:"strict" env:"GITCMS_STRICT_FRONTMATTER" env-default:"false"`

	// DisableRenameRecovery leaves the old file deleted when the create
	// step of a rename fails. By default it is re-created.
	DisableRenameRecovery bool `yaml:"disable_rename_recovery" env:"GITCMS_DISABLE_RENAME_RECOVERY" env-default:"false"`
}

// AuthConfig holds the secrets of the token exchange.
type AuthConfig struct {
	SupabaseJWTSecret string        `yaml:"supabase_jwt_secret" env:"SUPABASE_JWT_SECRET"`
	GatewaySecret     string        `yaml:"gateway_secret" env:"GIT_GATEWAY_SECRET,NETLIFY_IDENTITY_WEBHOOK_SECRET"`
	TokenTTL          time.Duration `yaml:"token_ttl" env:"GITCMS_TOKEN_TTL" env-default:"1h"`
}

// CloudinaryConfig is the media account used for signing and uploads.
type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name" env:"CLOUDINARY_CLOUD_NAME,PUBLIC_CLOUDINARY_CLOUD_NAME"`
	APIKey    string `yaml:"api_key" env:"CLOUDINARY_API_KEY,PUBLIC_CLOUDINARY_API_KEY"`
	APISecret string `yaml:"api_secret" env:"CLOUDINARY_API_SECRET"`
	Folder    string `yaml:"folder" env:"CLOUDINARY_FOLDER" env-default:"blog-images"`
	APIBase   string `yaml:"api_base_url" env:"CLOUDINARY_API_BASE_URL" env-default:"https://api.cloudinary.com"`
}

// LoadConfig reads the configuration from the file named by GITCMS_CONFIG,
// when set, and then from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("gitcms: read config %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("gitcms: read environment: %w", err)
	}
	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.SiteURL == "" {
		c.SiteURL = "http://localhost:3000"
	}
	if c.BodyLimit == "" {
		c.BodyLimit = "12M"
	}
	if c.Repo.Branch == "" {
		c.Repo.Branch = "main"
	}
	if c.Repo.APIBaseURL == "" {
		c.Repo.APIBaseURL = "https://api.github.com"
	}
	if c.Repo.ContentDir == "" {
		c.Repo.ContentDir = "src/content/blog"
	}
	if c.Repo.Author == "" {
		c.Repo.Author = "Admin"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Cloudinary.Folder == "" {
		c.Cloudinary.Folder = "blog-images"
	}
	if c.Cloudinary.APIBase == "" {
		c.Cloudinary.APIBase = "https://api.cloudinary.com"
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger sets the logger used by the server and every client it
// builds (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithHTTPClient sets the client used for calls to the content API, the
// Git Gateway and Cloudinary.
func WithHTTPClient(client *http.Client) Option {
	return func(a *App) {
		a.httpClient = client
	}
}

// WithNow replaces the clock used for commit timestamps and tokens.
func WithNow(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
