package tokenexchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
)

const maxRequestBody = 64 << 10

// Request is the body the exchange function accepts.
type Request struct {
	SupabaseToken string `json:"supabase_token"`
}

// Response is the body of a successful exchange.
type Response struct {
	Token string `json:"token"`
}

// ErrorResponse is the body of every failed exchange.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Handler exposes a Service over HTTP, both as an Echo route and as an
// API Gateway proxy function.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Serve handles an exchange request routed by Echo. Register it for any
// method; non-POST requests are answered with 405.
func (h *Handler) Serve(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRequestBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Could not read request body"})
	}
	status, payload := h.handle(c.Request().Context(), c.Request().Method, body)
	return c.JSON(status, payload)
}

// Lambda handles an exchange request delivered as an API Gateway proxy
// event, the shape Netlify functions also receive.
func (h *Handler) Lambda(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return lambdaResponse(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body encoding"}), nil
		}
		body = decoded
	}
	status, payload := h.handle(ctx, req.HTTPMethod, body)
	return lambdaResponse(status, payload), nil
}

func (h *Handler) handle(ctx context.Context, method string, body []byte) (int, any) {
	if method != http.MethodPost {
		return http.StatusMethodNotAllowed, ErrorResponse{Error: "Method Not Allowed"}
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON body", Details: err.Error()}
	}
	token, err := h.service.Exchange(ctx, req.SupabaseToken)
	if err != nil {
		return StatusOf(err, h.logger)
	}
	return http.StatusOK, Response{Token: token}
}

// StatusOf maps an error returned by Exchange to the HTTP status and
// body the exchange function answers with. Unexpected errors are logged.
func StatusOf(err error, logger *slog.Logger) (int, ErrorResponse) {
	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr.Status, ErrorResponse{Error: exErr.Message, Details: exErr.Details}
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode, ErrorResponse{Error: "Failed to get Git Gateway token", Details: upErr.Body}
	}
	if logger != nil {
		logger.Error("processing git gateway token request", "error", err)
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error", Details: err.Error()}
}

func lambdaResponse(status int, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to marshal response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}
