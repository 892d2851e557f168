package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"teams-chat/internal/files"
)

// AttachmentHandler serves files uploaded with chat messages.
type AttachmentHandler struct {
	store files.Store
}

// NewAttachmentHandler builds an AttachmentHandler.
func NewAttachmentHandler(store files.Store) *AttachmentHandler {
	return &AttachmentHandler{store: store}
}

// Download streams an attachment by id.
func (h *AttachmentHandler) Download(c *gin.Context) {
	att, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
			return
		}
		glog.Errorf("load attachment %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attachment"})
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, att.ContentType, att.Data)
}
