package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Version is the opaque concurrency token of a stored file. The zero
// value means the file does not exist yet.
type Version string

func (v Version) IsZero() bool { return v == "" }

// File is one file of the remote store.
type File struct {
	Path    string
	Content string
	SHA     Version
}

// Exists reports whether the file was found in the store.
func (f File) Exists() bool { return !f.SHA.IsZero() }

// SaveFileRequest writes one file. An empty SHA creates the file; a
// non-empty SHA overwrites it and fails with ErrConflict when stale.
type SaveFileRequest struct {
	Path    string
	Content string
	Message string
	SHA     Version
}

// DeleteFileRequest removes one file at its current version.
type DeleteFileRequest struct {
	Path    string
	Message string
	SHA     Version
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name string  `json:"name"`
	Path string  `json:"path"`
	SHA  Version `json:"sha"`
	Type string  `json:"type"`
}

type contentsResponse struct {
	Type     string  `json:"type"`
	Path     string  `json:"path"`
	SHA      Version `json:"sha"`
	Content  string  `json:"content"`
	Encoding string  `json:"encoding"`
}

// GetFile fetches and decodes one file. A file the store does not have
// comes back with empty content and version rather than an error.
func (c *Client) GetFile(ctx context.Context, path string) (File, error) {
	body, err := c.do(ctx, http.MethodGet, c.contentsPath(path), c.ref(), nil)
	if err != nil {
		if IsNotFound(err) {
			return File{Path: path}, nil
		}
		return File{}, err
	}
	var resp contentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return File{}, fmt.Errorf("gateway: decoding %s: %w", path, err)
	}
	content, err := decodeContent(resp.Content, resp.Encoding)
	if err != nil {
		return File{}, fmt.Errorf("gateway: decoding %s: %w", path, err)
	}
	return File{Path: path, Content: content, SHA: resp.SHA}, nil
}

// SaveFile creates or overwrites one file and returns its new version.
func (c *Client) SaveFile(ctx context.Context, req SaveFileRequest) (Version, error) {
	payload := struct {
		Message string  `json:"message"`
		Content string  `json:"content"`
		Branch  string  `json:"branch"`
		SHA     Version `json:"sha,omitempty"`
	}{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString([]byte(req.Content)),
		Branch:  c.branch,
		SHA:     req.SHA,
	}
	body, err := c.do(ctx, http.MethodPut, c.contentsPath(req.Path), nil, payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Content struct {
			SHA Version `json:"sha"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("gateway: decoding save response for %s: %w", req.Path, err)
	}
	c.logger.Info("file saved", "path", req.Path, "branch", c.branch, "created", req.SHA.IsZero())
	return resp.Content.SHA, nil
}

// DeleteFile removes one file. The version must be current.
func (c *Client) DeleteFile(ctx context.Context, req DeleteFileRequest) error {
	payload := struct {
		Message string  `json:"message"`
		SHA     Version `json:"sha"`
		Branch  string  `json:"branch"`
	}{
		Message: req.Message,
		SHA:     req.SHA,
		Branch:  c.branch,
	}
	if _, err := c.do(ctx, http.MethodDelete, c.contentsPath(req.Path), nil, payload); err != nil {
		return err
	}
	c.logger.Info("file deleted", "path", req.Path, "branch", c.branch)
	return nil
}

// ListDirectory lists the entries of one repository directory.
func (c *Client) ListDirectory(ctx context.Context, dir string) ([]DirEntry, error) {
	body, err := c.do(ctx, http.MethodGet, c.contentsPath(dir), c.ref(), nil)
	if err != nil {
		return nil, err
	}
	var entries []DirEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("gateway: decoding listing of %s: %w", dir, err)
	}
	return entries, nil
}

func (c *Client) ref() url.Values {
	return url.Values{"ref": {c.branch}}
}

// decodeContent undoes the transport encoding. The API wraps base64 at
// 60 columns, so line breaks are dropped before decoding.
func decodeContent(content, encoding string) (string, error) {
	if encoding != "" && encoding != "base64" {
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(content)
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
