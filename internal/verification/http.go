package verification

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/auth"
)

// Handler は提出・審査 API のハンドラーです。
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Submit は POST /api/consultant/verification のハンドラーです。
func (h *Handler) Submit(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "Please sign in first.",
		})
		return
	}

	file, err := c.FormFile("document")
	if err != nil {
		h.respondWithError(c, newError(CodeInvalidInput, "Please attach a document.", err))
		return
	}
	if limit := h.svc.limits.MaxSize; limit > 0 && file.Size > limit {
		h.respondWithError(c, newError(CodeLimitExceeded, "The document is too large.", nil))
		return
	}
	src, err := file.Open()
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	defer src.Close()

	v, err := h.svc.Submit(c.Request.Context(), user.ID, Submission{
		ContactNumber: c.PostForm("contact_number"),
		Expertise:     c.PostForm("expertise"),
		Workplace:     c.PostForm("workplace"),
		Qualification: c.PostForm("qualification"),
	}, src)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// List は GET /api/admin/verifications のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	status, ok := ParseStatus(c.Query("status"))
	if !ok {
		h.respondWithError(c, newError(CodeInvalidInput, "status must be pending, approved or rejected.", nil))
		return
	}
	list, err := h.svc.List(c.Request.Context(), status)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": list})
}

// Approve は POST /api/admin/verifications/:id/approve のハンドラーです。
func (h *Handler) Approve(c *gin.Context) {
	v, err := h.svc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Reject は POST /api/admin/verifications/:id/reject のハンドラーです。
func (h *Handler) Reject(c *gin.Context) {
	v, err := h.svc.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Document は GET /api/admin/verifications/:id/document のハンドラーです。
func (h *Handler) Document(c *gin.Context) {
	v, f, err := h.svc.Document(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", v.Document))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, v.Size, v.MimeType, f, nil)
}

func (h *Handler) respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case CodeLimitExceeded:
			status = http.StatusRequestEntityTooLarge
		case CodeUnsupportedType:
			status = http.StatusUnsupportedMediaType
		case CodeNotFound:
			status = http.StatusNotFound
		case CodeAlreadyReviewed:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "The request was canceled.",
		})
	default:
		h.logger.Error("verification request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "Something went wrong. Please try again.",
		})
	}
}
