package handler

import (
	"net/http"

	"medilink-chat/internal/services"
	"medilink-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	service *services.UploadService
}

func NewUploadHandler(service *services.UploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

// Presign returns a short-lived URL the client PUTs the attachment bytes
// to; the resulting object key goes into the message's file_url.
func (h *UploadHandler) Presign(c *gin.Context) {
	u, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.service.CreatePresignedUpload(c.Request.Context(), services.PresignInput{
		Uploader:    u,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		FileSize:    req.FileSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresignUploadResponse{
		UploadURL: res.UploadURL,
		ObjectKey: res.ObjectKey,
		Headers:   res.Headers,
	}))
}

func (h *UploadHandler) DownloadURL(c *gin.Context) {
	if _, ok := services.IdentityFromContext(c.Request.Context()); !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	key := c.Query("key")
	url, err := h.service.DownloadURL(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DownloadURLResponse{DownloadURL: url}))
}
