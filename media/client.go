package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultAPIBaseURL = "https://api.cloudinary.com"

	DefaultMaxResults = 30
	maxMaxResults     = 500
)

// Resource is an image stored on Cloudinary.
type Resource struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Upload is one image to store.
type Upload struct {
	Filename string
	Data     []byte
	Folder   string
	PublicID string
}

// APIError is an error answer from the Cloudinary API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("media: cloudinary responded %d: %s", e.StatusCode, e.Message)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Config

	// APIBaseURL is the API root, default "https://api.cloudinary.com".
	APIBaseURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Cloudinary Admin and Upload APIs.
type Client struct {
	signer     *Signer
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		signer:     NewSigner(cfg.Config),
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultAPIBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Signer returns the signer built from the client's account settings.
func (c *Client) Signer() *Signer { return c.signer }

// ListResources lists uploaded images whose public ID starts with
// prefix. limit is clamped to [1, 500]; zero means DefaultMaxResults.
func (c *Client) ListResources(ctx context.Context, prefix string, limit int) ([]Resource, error) {
	if c.signer.cloudName == "" {
		return nil, ErrNoCloud
	}
	if c.signer.apiSecret == "" {
		return nil, ErrNoSecret
	}
	switch {
	case limit <= 0:
		limit = DefaultMaxResults
	case limit > maxMaxResults:
		limit = maxMaxResults
	}

	q := url.Values{
		"type":        {"upload"},
		"max_results": {strconv.Itoa(limit)},
	}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	endpoint := fmt.Sprintf("%s/v1_1/%s/resources/image?%s", c.baseURL, url.PathEscape(c.signer.cloudName), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("media: creating request: %w", err)
	}
	req.SetBasicAuth(c.signer.apiKey, c.signer.apiSecret)

	var out struct {
		Resources []Resource `json:"resources"`
	}
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	if out.Resources == nil {
		out.Resources = []Resource{}
	}
	return out.Resources, nil
}

// Upload stores an image through a signed Upload API call.
func (c *Client) Upload(ctx context.Context, up Upload) (Resource, error) {
	if c.signer.cloudName == "" {
		return Resource{}, ErrNoCloud
	}
	params := map[string]string{"folder": up.Folder}
	if up.PublicID != "" {
		params["public_id"] = up.PublicID
	}
	sig, err := c.signer.Sign(params)
	if err != nil {
		return Resource{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"api_key", sig.APIKey},
		{"timestamp", strconv.FormatInt(sig.Timestamp, 10)},
		{"folder", sig.Folder},
		{"signature", sig.Signature},
	}
	if up.PublicID != "" {
		fields = append(fields, [2]string{"public_id", up.PublicID})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return Resource{}, fmt.Errorf("media: building upload: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", up.Filename)
	if err != nil {
		return Resource{}, fmt.Errorf("media: building upload: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return Resource{}, fmt.Errorf("media: building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Resource{}, fmt.Errorf("media: building upload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.baseURL, url.PathEscape(c.signer.cloudName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return Resource{}, fmt.Errorf("media: creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res Resource
	if err := c.send(req, &res); err != nil {
		return Resource{}, err
	}
	c.logger.Info("image uploaded", "public_id", res.PublicID, "bytes", len(up.Data))
	return res, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("media: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("media: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var wire struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &wire) == nil && wire.Error.Message != "" {
			apiErr.Message = wire.Error.Message
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("media: decoding response: %w", err)
	}
	return nil
}
