package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/switchboard"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, b Backend, poll time.Duration) {
	router.GET("/", handleIndex())

	api := router.Group("/api")
	api.GET("/agents", handleAgents(b))
	api.GET("/groups", handleGroups(b))
	api.GET("/channels", handleChannels(b))
	api.GET("/channels/:name", handleChannelHistory(b))
	api.GET("/messages", handleMessages(b))
	api.GET("/events", handleSSE(b, poll))
}

func handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name": "switchboard",
			"endpoints": []string{
				"/api/agents?stale=true&group=",
				"/api/groups",
				"/api/channels",
				"/api/channels/:name?limit=",
				"/api/messages?since=&limit=",
				"/api/events",
			},
		})
	}
}

func handleAgents(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		stale, _ := strconv.ParseBool(c.Query("stale"))
		respond(c, b.Discover(c.Request.Context(), stale, c.Query("group")))
	}
}

func handleGroups(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, b.Groups(c.Request.Context()))
	}
}

func handleChannels(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, b.ChannelList(c.Request.Context()))
	}
}

func handleChannelHistory(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := intQuery(c, "limit")
		if !ok {
			return
		}
		respond(c, b.ChannelHistory(c.Request.Context(), c.Param("name"), limit))
	}
}

func handleMessages(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := intQuery(c, "limit")
		if !ok {
			return
		}
		since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a cursor number"})
			return
		}
		respond(c, b.MessagesSince(c.Request.Context(), since, limit))
	}
}

// intQuery parses an optional integer query parameter, writing a 400 and
// returning false when it is malformed.
func intQuery(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// respond writes resp.Data as JSON, mapping error kinds to HTTP statuses.
func respond(c *gin.Context, resp switchboard.Response) {
	if !resp.IsError {
		c.JSON(http.StatusOK, gin.H{"data": resp.Data, "text": resp.Text})
		return
	}
	c.JSON(statusFor(resp.Kind), gin.H{"error": resp.Text, "kind": resp.Kind})
}

func statusFor(kind switchboard.ErrorKind) int {
	switch kind {
	case switchboard.KindValidation:
		return http.StatusBadRequest
	case switchboard.KindResolution:
		return http.StatusNotFound
	case switchboard.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
