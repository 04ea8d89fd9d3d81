package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/filecollab/filecollab/auth"
	"github.com/filecollab/filecollab/internal/converter"
	"github.com/filecollab/filecollab/internal/objectstore"
	"github.com/filecollab/filecollab/internal/slogging"
)

const (
	downloadURLTTL = 15 * time.Minute
	shareTokenTTL  = 7 * 24 * time.Hour
)

// FileHandler serves file upload, metadata, content, and conversion endpoints
type FileHandler struct {
	store          FileStore
	objects        objectstore.ObjectStore
	converter      *converter.Converter
	auth           *auth.Service
	maxUploadBytes int64
}

// NewFileHandler creates a file handler
func NewFileHandler(store FileStore, objects objectstore.ObjectStore, conv *converter.Converter, authSvc *auth.Service, maxUploadBytes int64) *FileHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	return &FileHandler{
		store:          store,
		objects:        objects,
		converter:      conv,
		auth:           authSvc,
		maxUploadBytes: maxUploadBytes,
	}
}

func objectKey(fileID, filename string) string {
	return fmt.Sprintf("uploads/%s/%s", fileID, filename)
}

// getOwnedFile resolves the :file_id path parameter to a file owned by the
// authenticated user, writing the error response itself on failure.
func (h *FileHandler) getOwnedFile(c *gin.Context) (*File, bool) {
	id, err := ParseUUID(c.Param("file_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_id",
			Message: fmt.Sprintf("Invalid file ID: %s", c.Param("file_id")),
		})
		return nil, false
	}

	file, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "File not found",
			})
			return nil, false
		}
		slogging.Get().Error("Failed to load file %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to load file",
		})
		return nil, false
	}

	if file.OwnerID != auth.UserIDFromContext(c) {
		// Existence of other users' files is not disclosed
		c.JSON(http.StatusNotFound, Error{
			Error:   "not_found",
			Message: "File not found",
		})
		return nil, false
	}
	return file, true
}

// Upload stores a new file and prepares its editor content.
// POST /api/v1/files/upload
func (h *FileHandler) Upload(c *gin.Context) {
	logger := slogging.Get()
	userID := auth.UserIDFromContext(c)

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "A multipart 'file' field is required",
		})
		return
	}
	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Error{
			Error:   "file_too_large",
			Message: fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUploadBytes),
		})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Failed to open uploaded file",
		})
		return
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to read uploaded file",
		})
		return
	}
	if int64(len(content)) > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Error{
			Error:   "file_too_large",
			Message: fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUploadBytes),
		})
		return
	}

	file := &File{
		ID:       uuid.New().String(),
		Filename: header.Filename,
		FileSize: int64(len(content)),
		MimeType: header.Header.Get("Content-Type"),
		OwnerID:  userID,
	}
	file.S3Key = objectKey(file.ID, file.Filename)

	switch {
	case converter.IsDocxFile(file.Filename):
		file.OriginalFormat = "docx"
		editorHTML, _, convErr := h.converter.DocxToHTML(content)
		if convErr != nil {
			logger.Warn("DOCX conversion failed for %s: %v", file.Filename, convErr)
			c.JSON(http.StatusUnprocessableEntity, Error{
				Error:   "conversion_failed",
				Message: "The DOCX file could not be parsed",
			})
			return
		}
		file.EditorContent = editorHTML
	case converter.IsHTMLFile(file.Filename):
		file.OriginalFormat = "html"
		file.EditorContent = h.converter.SanitizeEditorHTML(string(content))
	default:
		file.OriginalFormat = "other"
		file.EditorContent = converter.EditorHTMLForUnsupported(file.Filename, file.FileSize)
	}

	if err := h.objects.Upload(c.Request.Context(), file.S3Key, content, file.MimeType); err != nil {
		logger.Error("Object upload failed for %s: %v", file.S3Key, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to store file content",
		})
		return
	}

	if err := h.store.Create(c.Request.Context(), file); err != nil {
		// Metadata write failed; best effort to not leak the object
		if delErr := h.objects.Delete(c.Request.Context(), file.S3Key); delErr != nil {
			logger.Error("Failed to clean up object %s after metadata failure: %v", file.S3Key, delErr)
		}
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to save file metadata",
		})
		return
	}

	logger.Info("User %s uploaded file %s (%d bytes)", userID, file.ID, file.FileSize)
	c.JSON(http.StatusCreated, file.Public())
}

// List returns a page of the caller's files.
// GET /api/v1/files
func (h *FileHandler) List(c *gin.Context) {
	userID := auth.UserIDFromContext(c)

	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	files, total, err := h.store.ListByOwner(c.Request.Context(), userID, skip, limit)
	if err != nil {
		slogging.Get().Error("Failed to list files for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to list files",
		})
		return
	}

	out := make([]FilePublic, 0, len(files))
	for i := range files {
		out = append(out, files[i].Public())
	}
	c.JSON(http.StatusOK, gin.H{"files": out, "total": total})
}

// Get returns one file's metadata.
// GET /api/v1/files/:file_id
func (h *FileHandler) Get(c *gin.Context) {
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, file.Public())
}

// Download returns a presigned URL for the original uploaded bytes.
// GET /api/v1/files/:file_id/download
func (h *FileHandler) Download(c *gin.Context) {
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}

	url, err := h.objects.PresignGet(c.Request.Context(), file.S3Key, downloadURLTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to generate download URL",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"download_url": url,
		"filename":     file.Filename,
		"expires_in":   int(downloadURLTTL.Seconds()),
	})
}

// Delete removes a file's metadata and stored bytes.
// DELETE /api/v1/files/:file_id
func (h *FileHandler) Delete(c *gin.Context) {
	logger := slogging.Get()
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), file.ID); err != nil {
		logger.Error("Failed to delete file %s: %v", file.ID, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to delete file",
		})
		return
	}
	if err := h.objects.Delete(c.Request.Context(), file.S3Key); err != nil {
		// Row is gone; an orphaned object is logged, not surfaced
		logger.Error("Failed to delete object %s: %v", file.S3Key, err)
	}

	logger.Info("User %s deleted file %s", file.OwnerID, file.ID)
	c.JSON(http.StatusOK, gin.H{"deleted": file.ID})
}

// GetContent streams the stored original bytes for inline display.
// GET /api/v1/files/:file_id/content
func (h *FileHandler) GetContent(c *gin.Context) {
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}

	content, err := h.objects.Download(c.Request.Context(), file.S3Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to fetch stored file content",
		})
		return
	}

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Filename))
	c.Data(http.StatusOK, mimeType, content)
}

// UpdateContent replaces the stored bytes with a newly uploaded file,
// keeping the same object key.
// POST /api/v1/files/:file_id/content
func (h *FileHandler) UpdateContent(c *gin.Context) {
	logger := slogging.Get()
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "A multipart 'file' field is required",
		})
		return
	}
	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Failed to open uploaded file",
		})
		return
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil || int64(len(content)) > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Error{
			Error:   "file_too_large",
			Message: fmt.Sprintf("File exceeds the %d byte upload limit", h.maxUploadBytes),
		})
		return
	}

	if header.Header.Get("Content-Type") != "" {
		file.MimeType = header.Header.Get("Content-Type")
	}
	if header.Filename != "" {
		file.Filename = header.Filename
	}
	file.FileSize = int64(len(content))

	if err := h.objects.Upload(c.Request.Context(), file.S3Key, content, file.MimeType); err != nil {
		logger.Error("Object replace failed for %s: %v", file.S3Key, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to store file content",
		})
		return
	}
	if err := h.store.Update(c.Request.Context(), file); err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to update file metadata",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File content updated successfully", "filename": file.Filename})
}

// UpdateQuillContentRequest is the JSON body for saving editor content
type UpdateQuillContentRequest struct {
	Content string `json:"quill_content" binding:"required"`
}

// UpdateQuillContent saves new editor HTML for a file after sanitization.
// POST /api/v1/files/:file_id/update-quill-content
func (h *FileHandler) UpdateQuillContent(c *gin.Context) {
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}

	var req UpdateQuillContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "A quill_content field is required",
		})
		return
	}

	clean := h.converter.SanitizeEditorHTML(req.Content)
	if err := h.store.UpdateEditorContent(c.Request.Context(), file.ID, clean); err != nil {
		slogging.Get().Error("Failed to save content for file %s: %v", file.ID, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to save content",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"file_id": file.ID, "saved": true})
}

// Share issues a time-limited read token and link for a file.
// POST /api/v1/files/:file_id/share
func (h *FileHandler) Share(c *gin.Context) {
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}

	token, err := h.auth.GenerateShareToken(file.ID, shareTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to create share token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_id":     file.ID,
		"share_token": token,
		"share_url":   fmt.Sprintf("/api/v1/public/files/%s?token=%s", file.ID, token),
		"expires_in":  int(shareTokenTTL.Seconds()),
	})
}

// GetShared serves a file's editor content to the holder of a share token.
// No login required; the token scopes access to exactly one file.
// GET /api/v1/public/files/:file_id
func (h *FileHandler) GetShared(c *gin.Context) {
	id, err := ParseUUID(c.Param("file_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_id",
			Message: "Invalid file ID",
		})
		return
	}

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, Error{
			Error:   "unauthorized",
			Message: "A share token is required",
		})
		return
	}
	grantedFileID, err := h.auth.ValidateShareToken(token)
	if err != nil || grantedFileID != id {
		c.JSON(http.StatusForbidden, Error{
			Error:   "forbidden",
			Message: "The share token does not grant access to this file",
		})
		return
	}

	file, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "File not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to load file",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_id":       file.ID,
		"filename":      file.Filename,
		"quill_content": file.EditorContent,
	})
}

// ConvertToDocx renders the current editor content as a DOCX download.
// POST /api/v1/files/:file_id/convert-to-docx
func (h *FileHandler) ConvertToDocx(c *gin.Context) {
	logger := slogging.Get()
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}
	if file.EditorContent == "" {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "No editor content available for conversion",
		})
		return
	}

	docx, err := h.converter.HTMLToDocx(file.EditorContent)
	if err != nil {
		logger.Error("DOCX export failed for file %s: %v", file.ID, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to build DOCX document",
		})
		return
	}

	exportKey := fmt.Sprintf("exports/%s/%s.docx", file.ID, uuid.New().String())
	const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	if err := h.objects.Upload(c.Request.Context(), exportKey, docx, docxMime); err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to store exported document",
		})
		return
	}

	url, err := h.objects.PresignGet(c.Request.Context(), exportKey, downloadURLTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to generate download URL",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"download_url": url,
		"expires_in":   int(downloadURLTTL.Seconds()),
	})
}

// ConvertExistingToQuill re-derives editor HTML from the stored original
// bytes, for files uploaded before conversion existed or whose content was
// replaced out of band.
// POST /api/v1/files/:file_id/convert-existing-to-quill
func (h *FileHandler) ConvertExistingToQuill(c *gin.Context) {
	logger := slogging.Get()
	file, ok := h.getOwnedFile(c)
	if !ok {
		return
	}

	content, err := h.objects.Download(c.Request.Context(), file.S3Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to fetch stored file content",
		})
		return
	}

	var editorHTML string
	switch {
	case converter.IsDocxFile(file.Filename):
		editorHTML, _, err = h.converter.DocxToHTML(content)
		if err != nil {
			logger.Warn("DOCX conversion failed for file %s: %v", file.ID, err)
			c.JSON(http.StatusUnprocessableEntity, Error{
				Error:   "conversion_failed",
				Message: "The stored DOCX file could not be parsed",
			})
			return
		}
	case converter.IsHTMLFile(file.Filename):
		editorHTML = h.converter.SanitizeEditorHTML(string(content))
	default:
		editorHTML = converter.EditorHTMLForUnsupported(file.Filename, file.FileSize)
	}

	if err := h.store.UpdateEditorContent(c.Request.Context(), file.ID, editorHTML); err != nil {
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to save converted content",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_id":       file.ID,
		"quill_content": editorHTML,
	})
}
