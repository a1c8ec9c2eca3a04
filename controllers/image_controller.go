package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adminbjkai/img2/storage"
	"github.com/adminbjkai/img2/utils"
)

// multipartOverhead is allowed on top of the image size for form framing and
// the delete_after field.
const multipartOverhead = 1 << 20

// ImageController serves uploads, downloads and previews.
type ImageController struct {
	svc           *storage.Service
	publicBaseURL string
	logger        *zap.Logger
}

// NewImageController creates a new ImageController. publicBaseURL, when set,
// replaces the base derived from request headers in returned links.
func NewImageController(svc *storage.Service, publicBaseURL string, logger *zap.Logger) *ImageController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageController{
		svc:           svc,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// UploadResponse is the data returned for a stored image.
type UploadResponse struct {
	Success  bool    `json:"success"`
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	QRCode   string  `json:"qr_code"`
	Filename string  `json:"filename"`
	Size     int64   `json:"size"`
	DeleteAt *string `json:"delete_at"`
}

// Upload accepts a multipart form with a "file" part and an optional
// "delete_after" minute value.
func (ic *ImageController) Upload(ctx *gin.Context) {
	maxSize := ic.svc.MaxSize()
	if maxSize > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxSize+multipartOverhead)
	}

	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, utils.CodeTooLarge, "file too large")
			return
		}
		utils.Error(ctx, http.StatusBadRequest, utils.CodeNoFile, "no file provided")
		return
	}
	defer file.Close()

	// Read one byte past the limit so an oversized part is detected without
	// buffering all of it.
	var reader io.Reader = file
	if maxSize > 0 {
		reader = io.LimitReader(file, maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		ic.logger.Warn("read upload failed", zap.Error(err))
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "failed to read file")
		return
	}

	rec, err := ic.svc.Upload(ctx.Request.Context(), storage.UploadInput{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		DeleteAfter: ctx.PostForm("delete_after"),
	})
	if err != nil {
		ic.respondError(ctx, err)
		return
	}

	url := ic.baseURL(ctx) + "/i/" + rec.ID
	qr, err := utils.QRCodeDataURI(url)
	if err != nil {
		ic.logger.Warn("qr code generation failed", zap.String("id", rec.ID), zap.Error(err))
	}

	resp := UploadResponse{
		Success:  true,
		ID:       rec.ID,
		URL:      url,
		QRCode:   qr,
		Filename: rec.OriginalName,
		Size:     rec.FileSize,
	}
	if exp := rec.ExpiresAt(); exp != nil {
		s := exp.UTC().Format(time.RFC3339)
		resp.DeleteAt = &s
	}
	ic.logger.Info("image stored",
		zap.String("id", rec.ID),
		zap.Int64("size", rec.FileSize),
		zap.String("mime", rec.MimeType),
		zap.Int64p("delete_at", rec.DeleteAt))
	utils.Success(ctx, resp)
}

// Serve returns the raw image bytes with their stored content type.
func (ic *ImageController) Serve(ctx *gin.Context) {
	rec, data, err := ic.svc.FetchImage(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ic.respondError(ctx, err)
		return
	}
	if exp := rec.ExpiresAt(); exp != nil {
		// Expiring images must not outlive their deadline in caches.
		ctx.Header("Cache-Control", "no-store")
		ctx.Header("Expires", exp.UTC().Format(http.TimeFormat))
	} else {
		ctx.Header("Cache-Control", "public, max-age=86400")
	}
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Data(http.StatusOK, rec.MimeType, data)
}

// Thumb returns a PNG preview bounded to 300x300.
func (ic *ImageController) Thumb(ctx *gin.Context) {
	png, err := ic.svc.FetchPreview(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		ic.respondError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "no-store")
	ctx.Data(http.StatusOK, storage.PreviewMimeType, png)
}

// Health reports liveness.
func (ic *ImageController) Health(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"status": "ok", "service": "img2"})
}

func (ic *ImageController) respondError(ctx *gin.Context, err error) {
	status, code, message := classifyError(err, ic.svc.MaxSize())
	if status >= http.StatusInternalServerError {
		ic.logger.Error("request failed",
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", utils.RequestID(ctx)),
			zap.Error(err))
	}
	_ = ctx.Error(err)
	utils.Error(ctx, status, code, message)
}

// classifyError maps storage errors onto HTTP status, response code and message.
func classifyError(err error, maxSize int64) (int, int, string) {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		msg := "file too large"
		if maxSize >= 1024*1024 {
			msg += ", limit is " + strconv.FormatInt(maxSize/(1024*1024), 10) + " MB"
		}
		return http.StatusRequestEntityTooLarge, utils.CodeTooLarge, msg
	case errors.Is(err, storage.ErrEmptyFile):
		return http.StatusBadRequest, utils.CodeEmptyFile, "file is empty"
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusBadRequest, utils.CodeUnsupportedType, "file type not allowed"
	case errors.Is(err, storage.ErrInvalidDeadline):
		return http.StatusBadRequest, utils.CodeInvalidDeadline, "invalid deletion time"
	case errors.Is(err, storage.ErrValidation):
		return http.StatusBadRequest, utils.CodeBadRequest, "invalid upload"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, utils.CodeNotFound, "image not found"
	case errors.Is(err, storage.ErrInvalidImage):
		return http.StatusBadRequest, utils.CodeInvalidImage, "invalid image"
	case errors.Is(err, storage.ErrStorageWrite):
		return http.StatusInternalServerError, utils.CodeStorageWrite, "failed to save file"
	case errors.Is(err, storage.ErrMetadataWrite):
		return http.StatusInternalServerError, utils.CodeMetadataWrite, "failed to record image"
	case errors.Is(err, storage.ErrDuplicateID):
		return http.StatusInternalServerError, utils.CodeDuplicateID, "identifier collision, please retry"
	default:
		return http.StatusInternalServerError, utils.CodeInternal, "internal error"
	}
}

// baseURL is the configured public URL, else scheme and host from the
// forwarding headers or the request itself.
func (ic *ImageController) baseURL(ctx *gin.Context) string {
	if ic.publicBaseURL != "" {
		return ic.publicBaseURL
	}
	proto := firstHeaderValue(ctx.GetHeader("X-Forwarded-Proto"))
	if proto == "" {
		proto = "http"
		if ctx.Request.TLS != nil {
			proto = "https"
		}
	}
	host := firstHeaderValue(ctx.GetHeader("X-Forwarded-Host"))
	if host == "" {
		host = ctx.Request.Host
	}
	if host == "" {
		host = "localhost"
	}
	return proto + "://" + host
}

// firstHeaderValue returns the first entry of a comma separated proxy header.
func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
