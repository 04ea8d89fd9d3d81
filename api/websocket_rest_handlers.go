package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filecollab/filecollab/internal/slogging"
)

// GetActiveUsers returns who is currently editing a file.
// GET /api/v1/file/:file_id/users
func (h *WebSocketHub) GetActiveUsers(c *gin.Context) {
	fileID, err := ParseUUID(c.Param("file_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_id",
			Message: fmt.Sprintf("Invalid file ID: %s", c.Param("file_id")),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file_id":          fileID,
		"users":            h.ListUsers(fileID),
		"connection_count": h.ConnectionCount(fileID),
	})
}

// BroadcastToRoom injects a server-side message into a file's room, for
// backend-originated notifications (processing finished, file changed out
// of band).
// POST /api/v1/file/:file_id/broadcast
func (h *WebSocketHub) BroadcastToRoom(c *gin.Context) {
	logger := slogging.Get()

	fileID, err := ParseUUID(c.Param("file_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_id",
			Message: fmt.Sprintf("Invalid file ID: %s", c.Param("file_id")),
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Failed to read request body",
		})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Request body must be valid JSON",
		})
		return
	}

	recipients := h.ConnectionCount(fileID)
	h.BroadcastToFile(fileID, body, nil)
	logger.Debug("REST broadcast to file %s reached %d connections", fileID, recipients)

	c.JSON(http.StatusOK, gin.H{
		"file_id":      fileID,
		"delivered_to": recipients,
	})
}
