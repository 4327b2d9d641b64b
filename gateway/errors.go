package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotInitialized is returned by every remote operation attempted
	// before a successful Init.
	ErrNotInitialized = errors.New("gateway: not initialized, call Init first")

	// ErrAuthentication means no usable bearer token could be obtained,
	// or the remote store rejected the one in use.
	ErrAuthentication = errors.New("gateway: authentication failed")

	// ErrNotFound means the referenced post has no backing file.
	ErrNotFound = errors.New("gateway: post not found")

	// ErrConflict means the remote store rejected a write because the
	// supplied version is stale.
	ErrConflict = errors.New("gateway: version conflict")

	// ErrInvalidPost is returned before any network access when a slug
	// or a required post field is unusable.
	ErrInvalidPost = errors.New("gateway: invalid post")
)

// TransportError is a non-2xx response from the file-contents API.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets callers test a transport failure against the sentinel kinds.
// 409 and 412 match ErrConflict, as does 422, which the contents API
// returns when a create names a path that already exists. 401 matches
// ErrAuthentication.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrConflict:
		switch e.StatusCode {
		case http.StatusConflict, http.StatusPreconditionFailed, http.StatusUnprocessableEntity:
			return true
		}
		return false
	case ErrAuthentication:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsNotFound reports whether err is a 404 from the remote store.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// RenameError reports a rename whose second step failed. Deleted is true
// once the old file is gone; Restored is true when the rename recovery
// re-created it.
type RenameError struct {
	From       string
	To         string
	Deleted    bool
	Restored   bool
	Err        error
	RestoreErr error
}

func (e *RenameError) Error() string {
	msg := fmt.Sprintf("gateway: rename %s -> %s: %v", e.From, e.To, e.Err)
	switch {
	case e.Restored:
		msg += " (original restored)"
	case e.RestoreErr != nil:
		msg += fmt.Sprintf(" (restore failed: %v)", e.RestoreErr)
	case e.Deleted:
		msg += " (original deleted)"
	}
	return msg
}

func (e *RenameError) Unwrap() error { return e.Err }

// parseTransportError builds a TransportError, preferring the JSON
// "message" field of the body when present.
func parseTransportError(method, path string, resp *http.Response, body []byte) *TransportError {
	te := &TransportError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	var wire struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		te.Message = wire.Message
	} else {
		te.Message = string(body)
	}
	return te
}
