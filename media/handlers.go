package media

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// MaxUploadSize bounds the size of an image accepted by the upload proxy.
const MaxUploadSize = 10 << 20

// Handler serves the media routes of the editor.
type Handler struct {
	client *Client
	logger *slog.Logger
}

func NewHandler(client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, logger: logger}
}

type errorBody struct {
	Error string `json:"error"`
}

// Signature answers POST {paramsToSign:{folder?,...}} with the signature
// a browser needs for a direct upload.
func (h *Handler) Signature(c echo.Context) error {
	var req struct {
		ParamsToSign map[string]any `json:"paramsToSign"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
	}
	params := make(map[string]string, len(req.ParamsToSign))
	for k, v := range req.ParamsToSign {
		switch v := v.(type) {
		case nil:
		case string:
			params[k] = v
		case float64:
			params[k] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			params[k] = fmt.Sprint(v)
		}
	}
	sig, err := h.client.Signer().Sign(params)
	if err != nil {
		h.logger.Error("signing upload parameters", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, sig)
}

// Resources answers GET ?max=30&prefix=blog-images/ with the matching
// uploaded images.
func (h *Handler) Resources(c echo.Context) error {
	limit, err := strconv.Atoi(c.QueryParam("max"))
	if err != nil {
		limit = DefaultMaxResults
	}
	prefix := c.QueryParam("prefix")
	if prefix == "" {
		prefix = DefaultFolder + "/"
	}
	resources, err := h.client.ListResources(c.Request().Context(), prefix, limit)
	if err != nil {
		return h.apiFailure(c, "listing resources", err)
	}
	return c.JSON(http.StatusOK, map[string][]Resource{"resources": resources})
}

// Upload takes a multipart "image" file, downsizes it and stores it on
// Cloudinary, answering 201 with the stored resource.
func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "No image file provided"})
	}
	if file.Size > MaxUploadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "File too large (max 10MB)"})
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	img, err := Downsize(src, file.Filename, MaxImageWidth)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid image: " + err.Error()})
	}
	res, err := h.client.Upload(c.Request().Context(), Upload{
		Filename: img.Filename,
		Data:     img.Data,
		Folder:   c.FormValue("folder"),
	})
	if err != nil {
		return h.apiFailure(c, "uploading image", err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) apiFailure(c echo.Context, op string, err error) error {
	h.logger.Error(op, "error", err)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return c.JSON(http.StatusBadGateway, errorBody{Error: apiErr.Message})
	}
	return c.JSON(http.StatusInternalServerError, errorBody{Error: err.Error()})
}
