package gateway

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner = "acme"
	testRepo  = "blog"
	testToken = "test-token"
)

// fakeContents is an in-memory file-contents API with the version
// checks of the real one: a create over an existing file is 422, a write
// with a stale sha is 409.
type fakeContents struct {
	t *testing.T

	mu       sync.Mutex
	files    map[string]storedFile
	commits  []commit
	failGet  map[string]int
	failPut  map[string]int
	requests []string
	gen      int
}

type storedFile struct {
	content string
	sha     string
}

type commit struct {
	Method  string
	Path    string
	Message string
	Branch  string
}

func newFakeContents(t *testing.T) (*fakeContents, *httptest.Server) {
	t.Helper()
	f := &fakeContents{
		t:       t,
		files:   map[string]storedFile{},
		failGet: map[string]int{},
		failPut: map[string]int{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeContents) put(path, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store(path, content)
}

func (f *fakeContents) store(path, content string) string {
	f.gen++
	sha := fmt.Sprintf("%x", sha1.Sum([]byte(fmt.Sprintf("%d:%s", f.gen, content))))
	f.files[path] = storedFile{content: content, sha: sha}
	return sha
}

func (f *fakeContents) file(path string) (storedFile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sf, ok := f.files[path]
	return sf, ok
}

func (f *fakeContents) commitLog() []commit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]commit(nil), f.commits...)
}

func (f *fakeContents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	prefix := "/repos/" + testOwner + "/" + testRepo + "/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch r.Method {
	case http.MethodGet:
		f.get(w, r, path)
	case http.MethodPut:
		f.write(w, r, path)
	case http.MethodDelete:
		f.remove(w, r, path)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeContents) get(w http.ResponseWriter, r *http.Request, path string) {
	if status, ok := f.failGet[path]; ok {
		writeFakeJSON(w, status, map[string]string{"message": "injected failure"})
		return
	}
	if r.URL.Query().Get("ref") != "main" {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "No commit found for the ref"})
		return
	}
	if sf, ok := f.files[path]; ok {
		writeFakeJSON(w, http.StatusOK, map[string]string{
			"type":     "file",
			"path":     path,
			"sha":      sf.sha,
			"encoding": "base64",
			"content":  wrapBase64(sf.content),
		})
		return
	}

	seen := map[string]bool{}
	var entries []DirEntry
	for p, sf := range f.files {
		rest, ok := strings.CutPrefix(p, path+"/")
		if !ok {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		entry := DirEntry{Name: name, Path: path + "/" + name, Type: "file", SHA: Version(sf.sha)}
		if nested {
			entry.Type = "dir"
			entry.SHA = ""
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	writeFakeJSON(w, http.StatusOK, entries)
}

func (f *fakeContents) write(w http.ResponseWriter, r *http.Request, path string) {
	var req struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}
	if status, ok := f.failPut[path]; ok {
		writeFakeJSON(w, status, map[string]string{"message": "injected failure"})
		return
	}
	existing, exists := f.files[path]
	switch {
	case exists && req.SHA == "":
		writeFakeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
		return
	case exists && req.SHA != existing.sha:
		writeFakeJSON(w, http.StatusConflict, map[string]string{"message": path + " does not match " + req.SHA})
		return
	case !exists && req.SHA != "":
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Content)
	if !assert.NoError(f.t, err, "content must be base64") {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "content is not valid Base64"})
		return
	}

	sha := f.store(path, string(raw))
	f.commits = append(f.commits, commit{Method: http.MethodPut, Path: path, Message: req.Message, Branch: req.Branch})
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeFakeJSON(w, status, map[string]any{"content": map[string]string{"path": path, "sha": sha}})
}

func (f *fakeContents) remove(w http.ResponseWriter, r *http.Request, path string) {
	var req struct {
		Message string `json:"message"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}
	existing, exists := f.files[path]
	if !exists {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if req.SHA != existing.sha {
		writeFakeJSON(w, http.StatusConflict, map[string]string{"message": path + " does not match " + req.SHA})
		return
	}
	delete(f.files, path)
	f.commits = append(f.commits, commit{Method: http.MethodDelete, Path: path, Message: req.Message, Branch: req.Branch})
	writeFakeJSON(w, http.StatusOK, map[string]any{"content": nil})
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// wrapBase64 encodes like the contents API does, in 60 column lines.
func wrapBase64(s string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(s))
	var b strings.Builder
	for len(enc) > 60 {
		b.WriteString(enc[:60])
		b.WriteByte('\n')
		enc = enc[60:]
	}
	b.WriteString(enc)
	b.WriteByte('\n')
	return b.String()
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestClient returns a client of the fake store that still needs Init.
func newTestClient(t *testing.T, srv *httptest.Server, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Owner:      testOwner,
		Repo:       testRepo,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Session:    StaticSession(testToken),
		Now:        func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func newInitializedClient(t *testing.T, srv *httptest.Server, mutate ...func(*Config)) *Client {
	t.Helper()
	c := newTestClient(t, srv, mutate...)
	require.NoError(t, c.Init(t.Context()))
	return c
}
