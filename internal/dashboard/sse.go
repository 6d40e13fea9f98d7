package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/models"
)

// heartbeatInterval keeps idle connections open through proxies.
const heartbeatInterval = 15 * time.Second

// handleSSE streams newly recorded envelopes as "message" events. Clients
// may resume with ?since=<cursor> or the Last-Event-ID header; without
// either the stream starts at the current end of the ledger.
func handleSSE(b Backend, poll time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ctx := c.Request.Context()

		cursor, resume := startCursor(c)
		if !resume {
			cursor = latestCursor(b, c)
		}

		writeSSE(c.Writer, "connected", "", map[string]any{"cursor": cursor})
		c.Writer.Flush()

		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", "", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				resp := b.MessagesSince(ctx, cursor, 0)
				if resp.IsError {
					writeSSE(c.Writer, "error", "", map[string]string{"error": resp.Text})
					c.Writer.Flush()
					return
				}
				envs, _ := resp.Data.([]models.Envelope)
				for _, e := range envs {
					writeSSE(c.Writer, "message", strconv.FormatUint(e.ID, 10), e)
					cursor = e.ID
				}
				if len(envs) > 0 {
					c.Writer.Flush()
				}
			}
		}
	}
}

func startCursor(c *gin.Context) (uint64, bool) {
	raw := c.Query("since")
	if raw == "" {
		raw = c.GetHeader("Last-Event-ID")
	}
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// latestCursor drains MessagesSince to find the newest cursor so a fresh
// stream only shows new traffic.
func latestCursor(b Backend, c *gin.Context) uint64 {
	var cursor uint64
	for {
		resp := b.MessagesSince(c.Request.Context(), cursor, 500)
		envs, _ := resp.Data.([]models.Envelope)
		if resp.IsError || len(envs) == 0 {
			return cursor
		}
		cursor = envs[len(envs)-1].ID
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event, id string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
