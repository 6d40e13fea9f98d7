// Package dashboard serves a read-only HTTP view of the switchboard: agents,
// groups, channels and a live message stream.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/switchboard"
)

// DefaultPollInterval is how often the event stream checks for new messages.
const DefaultPollInterval = 2 * time.Second

// Backend is the subset of switchboard operations the dashboard reads.
type Backend interface {
	Discover(ctx context.Context, includeStale bool, group string) switchboard.Response
	Groups(ctx context.Context) switchboard.Response
	ChannelList(ctx context.Context) switchboard.Response
	ChannelHistory(ctx context.Context, channel string, limit int) switchboard.Response
	MessagesSince(ctx context.Context, cursor uint64, limit int) switchboard.Response
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Backend      Backend
	Port         int
	Out          io.Writer
	PollInterval time.Duration
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Backend == nil {
		return fmt.Errorf("dashboard: backend is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: NewRouter(opts.Backend, opts.PollInterval),
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every dashboard route.
func NewRouter(b Backend, poll time.Duration) *gin.Engine {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, b, poll)
	return router
}
