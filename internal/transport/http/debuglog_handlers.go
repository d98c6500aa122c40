package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parlor-server/internal/store"
)

// StatusError is the error reply shape shared by the REST endpoints.
type StatusError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DebugLogRequest is the body of POST /api/debug-log. Timestamp is
// whatever clock string the client reports; it is stored verbatim.
type DebugLogRequest struct {
	Timestamp string          `json:"timestamp"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// DebugLogAck acknowledges a stored debug log entry.
type DebugLogAck struct {
	Status string `json:"status"`
}

// DebugLogsResponse carries the current day's entries as one
// preformatted text block.
type DebugLogsResponse struct {
	Logs    string `json:"logs"`
	Message string `json:"message,omitempty"`
}

// DebugLogHandlers serves the client-side debug log sink. Browser
// clients post their console diagnostics here so they can be read back
// without devtools access.
type DebugLogHandlers struct {
	store store.DebugLogStore
	log   *zerolog.Logger
}

// NewDebugLogHandlers creates debug log handlers.
func NewDebugLogHandlers(st store.DebugLogStore, logger *zerolog.Logger) *DebugLogHandlers {
	return &DebugLogHandlers{store: st, log: logger}
}

// Append handles POST /api/debug-log.
func (h *DebugLogHandlers) Append(c *gin.Context) {
	var req DebugLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid debug log request")
		c.JSON(http.StatusBadRequest, StatusError{Status: "error", Message: "invalid request body"})
		return
	}

	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = time.Now().Format(time.RFC3339)
	}

	data := ""
	if len(req.Data) > 0 && string(req.Data) != "null" {
		var buf bytes.Buffer
		if err := json.Compact(&buf, req.Data); err == nil {
			data = buf.String()
		} else {
			data = string(req.Data)
		}
	}

	if _, err := h.store.AppendDebugLog(c.Request.Context(), timestamp, req.Message, data); err != nil {
		h.log.Error().Err(err).Msg("failed to append debug log")
		c.JSON(http.StatusInternalServerError, StatusError{Status: "error", Message: "failed to store log entry"})
		return
	}

	c.JSON(http.StatusOK, DebugLogAck{Status: "logged"})
}

// ListToday handles GET /api/debug-logs. Entries are scoped to the
// server's local calendar day, matching how clients expect to inspect
// a session shortly after it happened.
func (h *DebugLogHandlers) ListToday(c *gin.Context) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	entries, err := h.store.DebugLogsSince(c.Request.Context(), midnight)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list debug logs")
		c.JSON(http.StatusInternalServerError, StatusError{Status: "error", Message: "failed to read log entries"})
		return
	}

	if len(entries) == 0 {
		c.JSON(http.StatusOK, DebugLogsResponse{Logs: "", Message: "No logs for today"})
		return
	}

	var b strings.Builder
	for _, entry := range entries {
		b.WriteString("[")
		b.WriteString(entry.Timestamp)
		b.WriteString("] ")
		b.WriteString(entry.Message)
		if entry.Data != "" {
			b.WriteString(" ")
			b.WriteString(entry.Data)
		}
		b.WriteString("\n")
	}

	c.JSON(http.StatusOK, DebugLogsResponse{Logs: b.String()})
}
