// Package media signs, lists and uploads blog images on Cloudinary.
//
// The API secret never leaves the server: browsers ask for a Signature
// and upload directly, or hand the file to the editor server, which
// downsizes it and uploads it with a signature of its own.
package media

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultFolder is the upload folder used when a request names none.
const DefaultFolder = "blog-images"

var (
	// ErrNoSecret is returned when signing without an API secret.
	ErrNoSecret = errors.New("media: cloudinary API secret not configured")

	// ErrNoCloud is returned by Admin and Upload API calls without a
	// cloud name.
	ErrNoCloud = errors.New("media: cloudinary cloud name not configured")
)

// Parameters that take part in an upload request but never in its
// signature.
var unsignedParams = map[string]bool{
	"file":          true,
	"cloud_name":    true,
	"resource_type": true,
	"api_key":       true,
	"signature":     true,
}

// Config holds the Cloudinary account settings.
type Config struct {
	CloudName     string
	APIKey        string
	APISecret     string
	DefaultFolder string

	Now func() time.Time
}

// Signature is what a browser needs for a signed direct upload.
type Signature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	CloudName string `json:"cloudName"`
	APIKey    string `json:"apiKey"`
	Folder    string `json:"folder"`
}

// Signer computes Cloudinary request signatures.
type Signer struct {
	cloudName string
	apiKey    string
	apiSecret string
	folder    string
	now       func() time.Time
}

func NewSigner(cfg Config) *Signer {
	s := &Signer{
		cloudName: cfg.CloudName,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		folder:    cfg.DefaultFolder,
		now:       cfg.Now,
	}
	if s.folder == "" {
		s.folder = DefaultFolder
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Sign stamps params with the current timestamp and a folder, then signs
// them. The caller's map is not modified.
func (s *Signer) Sign(params map[string]string) (Signature, error) {
	if s.apiSecret == "" {
		return Signature{}, ErrNoSecret
	}
	signed := make(map[string]string, len(params)+2)
	for k, v := range params {
		signed[k] = v
	}
	if signed["folder"] == "" {
		signed["folder"] = s.folder
	}
	ts := s.now().Unix()
	signed["timestamp"] = strconv.FormatInt(ts, 10)

	return Signature{
		Signature: SignParams(signed, s.apiSecret),
		Timestamp: ts,
		CloudName: s.cloudName,
		APIKey:    s.apiKey,
		Folder:    signed["folder"],
	}, nil
}

// SignParams returns the Cloudinary signature of params: the hex SHA-1 of
// the "k=v" pairs sorted by key and joined with "&", followed by the
// secret. Empty values and transport-only keys are left out.
func SignParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" || unsignedParams[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
