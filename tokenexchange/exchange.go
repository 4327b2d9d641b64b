// Package tokenexchange trades a Supabase access token for a Netlify Git
// Gateway token. It verifies the Supabase JWT, checks that the user is an
// admin, mints a short-lived token signed with the Git Gateway secret and
// asks Netlify Identity for the gateway token.
package tokenexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	// DefaultTokenTTL is the lifetime of the minted gateway JWT.
	DefaultTokenTTL = time.Hour

	gatewayTokenPath = "/.netlify/identity/git/token"
	adminRole        = "admin"
)

// Error is a failure with a fixed HTTP status and client-facing message.
// Two errors match under errors.Is when status and message agree, so the
// exported values below work as sentinels even with Details attached.
type Error struct {
	Status  int
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return "tokenexchange: " + e.Message + ": " + e.Details
	}
	return "tokenexchange: " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Status == e.Status && t.Message == e.Message
}

var (
	ErrMissingToken         = &Error{Status: http.StatusBadRequest, Message: "Missing supabase_token in request body"}
	ErrSecretNotConfigured  = &Error{Status: http.StatusInternalServerError, Message: "Supabase JWT secret not configured"}
	ErrInvalidToken         = &Error{Status: http.StatusUnauthorized, Message: "Invalid Supabase token"}
	ErrForbidden            = &Error{Status: http.StatusForbidden, Message: "User is not authorized to use Git Gateway"}
	ErrGatewayNotConfigured = &Error{Status: http.StatusInternalServerError, Message: "Git Gateway secret not configured"}
	ErrSiteNotConfigured    = &Error{Status: http.StatusInternalServerError, Message: "Site URL not configured"}
)

// UpstreamError is a non-2xx answer from Netlify Identity. Its status is
// passed through to the caller.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tokenexchange: git gateway responded %d: %s", e.StatusCode, e.Body)
}

// RoleDirectory answers whether a user holds the admin role when the
// identity token itself does not say so.
type RoleDirectory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Config configures a Service. Missing secrets are not rejected here;
// they surface as errors on each exchange.
type Config struct {
	SupabaseJWTSecret string
	GatewaySecret     string
	SiteURL           string
	TokenTTL          time.Duration

	// Roles is consulted for users whose app_metadata carries no admin
	// role. Nil means app_metadata alone decides.
	Roles RoleDirectory

	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service performs token exchanges. It is safe for concurrent use.
type Service struct {
	supabaseSecret []byte
	gatewaySecret  []byte
	siteURL        string
	ttl            time.Duration
	roles          RoleDirectory
	httpClient     *http.Client
	logger         *slog.Logger
	now            func() time.Time
}

func New(cfg Config) *Service {
	s := &Service{
		supabaseSecret: []byte(cfg.SupabaseJWTSecret),
		gatewaySecret:  []byte(cfg.GatewaySecret),
		siteURL:        strings.TrimRight(cfg.SiteURL, "/"),
		ttl:            cfg.TokenTTL,
		roles:          cfg.Roles,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// supabaseClaims is the subset of a Supabase access token the exchange
// reads. The metadata maps are forwarded untouched.
type supabaseClaims struct {
	Email        string         `json:"email,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Exchange verifies supabaseToken and returns a Git Gateway token for
// its user.
func (s *Service) Exchange(ctx context.Context, supabaseToken string) (string, error) {
	if supabaseToken == "" {
		return "", ErrMissingToken
	}
	if len(s.supabaseSecret) == 0 {
		return "", ErrSecretNotConfigured
	}

	claims, err := s.verify(supabaseToken)
	if err != nil {
		s.logger.Info("supabase token rejected", "error", err)
		return "", ErrInvalidToken
	}

	admin, err := s.isAdmin(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("tokenexchange: looking up role of %s: %w", claims.Subject, err)
	}
	if !admin {
		s.logger.Warn("non-admin user denied git gateway access", "user", claims.Subject)
		return "", ErrForbidden
	}

	if len(s.gatewaySecret) == 0 {
		return "", ErrGatewayNotConfigured
	}
	if s.siteURL == "" {
		return "", ErrSiteNotConfigured
	}

	signed, err := s.mint(claims)
	if err != nil {
		return "", fmt.Errorf("tokenexchange: signing gateway token: %w", err)
	}
	token, err := s.requestGatewayToken(ctx, signed)
	if err != nil {
		return "", err
	}
	s.logger.Info("git gateway token issued", "user", claims.Subject)
	return token, nil
}

// verify checks signature and time claims of a Supabase token. Only HMAC
// methods are accepted.
func (s *Service) verify(raw string) (*supabaseClaims, error) {
	claims := &supabaseClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.supabaseSecret, nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !claims.VerifyExpiresAt(now, false) {
		return nil, errors.New("token is expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, errors.New("token is not valid yet")
	}
	return claims, nil
}

func (s *Service) isAdmin(ctx context.Context, claims *supabaseClaims) (bool, error) {
	if hasAdminRole(claims.AppMetadata) {
		return true, nil
	}
	if s.roles == nil || claims.Subject == "" {
		return false, nil
	}
	return s.roles.IsAdmin(ctx, claims.Subject)
}

// hasAdminRole reports whether app_metadata names the admin role, either
// in a "roles" list or as the single "role".
func hasAdminRole(meta map[string]any) bool {
	if role, ok := meta["role"].(string); ok && role == adminRole {
		return true
	}
	switch roles := meta["roles"].(type) {
	case []any:
		return slices.Contains(roles, any(adminRole))
	case []string:
		return slices.Contains(roles, adminRole)
	}
	return false
}

func (s *Service) mint(claims *supabaseClaims) (string, error) {
	now := s.now()
	gatewayClaims := supabaseClaims{
		Email:        claims.Email,
		AppMetadata:  claims.AppMetadata,
		UserMetadata: claims.UserMetadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, gatewayClaims).SignedString(s.gatewaySecret)
}

func (s *Service) requestGatewayToken(ctx context.Context, signed string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.siteURL+gatewayTokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("tokenexchange: creating gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+signed)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tokenexchange: calling git gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("tokenexchange: reading git gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("git gateway error", "status", resp.StatusCode, "body", string(body))
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("tokenexchange: decoding git gateway response: %w", err)
	}
	if out.Token == "" {
		s.logger.Error("git gateway answered without a token", "status", resp.StatusCode)
		return "", &UpstreamError{StatusCode: http.StatusBadGateway, Body: "no token in response"}
	}
	return out.Token, nil
}
