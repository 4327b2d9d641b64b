package tokenexchange

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveEcho(t *testing.T, h *Handler, method, body string) (int, ErrorResponse, Response) {
	t.Helper()
	e := echo.New()
	e.Any("/.netlify/functions/git-gateway-token", h.Serve)

	req := httptest.NewRequest(method, "/.netlify/functions/git-gateway-token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var errBody ErrorResponse
	var okBody Response
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &okBody))
	} else {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	}
	return rec.Code, errBody, okBody
}

func TestServeSuccess(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, nil)

	body, _ := json.Marshal(Request{SupabaseToken: signSupabase(t, supabaseSecret, adminClaims())})
	status, _, resp := serveEcho(t, h, http.MethodPost, string(body))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "gateway-access-token", resp.Token)
}

func TestServeStatusMapping(t *testing.T) {
	svc, upstream := newTestService(t)
	h := NewHandler(svc, nil)

	wrongSig, _ := json.Marshal(Request{SupabaseToken: signSupabase(t, "not-the-secret", adminClaims())})

	tests := []struct {
		name    string
		method  string
		body    string
		status  int
		message string
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"malformed json", http.MethodPost, "{", http.StatusBadRequest, "Invalid JSON body"},
		{"missing token", http.MethodPost, `{}`, http.StatusBadRequest, "Missing supabase_token in request body"},
		{"wrong signature", http.MethodPost, string(wrongSig), http.StatusUnauthorized, "Invalid Supabase token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, errBody, _ := serveEcho(t, h, tt.method, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, errBody.Error)
		})
	}
	assert.Empty(t, upstream.lastToken())
}

func TestServeUpstreamPassthrough(t *testing.T) {
	svc, upstream := newTestService(t)
	upstream.respond(http.StatusServiceUnavailable, "identity is down")
	h := NewHandler(svc, nil)

	body, _ := json.Marshal(Request{SupabaseToken: signSupabase(t, supabaseSecret, adminClaims())})
	status, errBody, _ := serveEcho(t, h, http.MethodPost, string(body))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "Failed to get Git Gateway token", errBody.Error)
	assert.Equal(t, "identity is down", errBody.Details)
}

func TestServeUnexpectedFailure(t *testing.T) {
	svc, upstream := newTestService(t)
	upstream.respond(http.StatusOK, "not json")
	h := NewHandler(svc, nil)

	body, _ := json.Marshal(Request{SupabaseToken: signSupabase(t, supabaseSecret, adminClaims())})
	status, errBody, _ := serveEcho(t, h, http.MethodPost, string(body))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error", errBody.Error)
	assert.NotEmpty(t, errBody.Details)
}

func TestLambda(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, nil)
	token := signSupabase(t, supabaseSecret, adminClaims())
	body, _ := json.Marshal(Request{SupabaseToken: token})

	resp, err := h.Lambda(t.Context(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Body: string(body)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.JSONEq(t, `{"token":"gateway-access-token"}`, resp.Body)

	resp, err = h.Lambda(t.Context(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Body:            base64.StdEncoding.EncodeToString(body),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.Lambda(t.Context(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodPut})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Method Not Allowed"}`, resp.Body)

	resp, err = h.Lambda(t.Context(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Body: `{"supabase_token":"x.y.z"}`})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid Supabase token"}`, resp.Body)
}
