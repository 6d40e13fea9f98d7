// Package mirror copies channel traffic to chat platforms (Slack, Discord) so
// humans can follow what the agents are saying.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zulandar/switchboard/internal/identity"
	"github.com/zulandar/switchboard/internal/models"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
)

// Sidebar colors by priority.
const (
	ColorLow    = "#2196f3"
	ColorNormal = "#36a64f"
	ColorHigh   = "#e53935"
)

// Post is a channel message formatted for chat.
type Post struct {
	Channel string
	Author  string // sender short name
	From    string // sender id
	Text    string
	Color   string
}

// Title is the headline shown above the message body.
func (p Post) Title() string {
	return fmt.Sprintf("#%s | %s", p.Channel, p.Author)
}

// PostFromEnvelope formats env for chat.
func PostFromEnvelope(env models.Envelope) Post {
	return Post{
		Channel: env.Channel,
		Author:  identity.ShortName(env.From),
		From:    env.From,
		Text:    env.Content,
		Color:   priorityColor(env.Priority),
	}
}

func priorityColor(p models.Priority) string {
	switch p {
	case models.PriorityLow:
		return ColorLow
	case models.PriorityHigh:
		return ColorHigh
	default:
		return ColorNormal
	}
}

// Sink is one chat destination.
type Sink interface {
	Name() string
	Post(ctx context.Context, p Post) error
}

// Mirror fans a channel message out to every configured sink.
type Mirror struct {
	sinks  []Sink
	logger *slog.Logger
}

// New creates a Mirror over sinks. A Mirror with no sinks is valid and does
// nothing.
func New(logger *slog.Logger, sinks ...Sink) *Mirror {
	if logger == nil {
		logger = slog.Default().With("component", "mirror")
	}
	return &Mirror{sinks: sinks, logger: logger}
}

// Enabled reports whether any sink is configured.
func (m *Mirror) Enabled() bool {
	return m != nil && len(m.sinks) > 0
}

// Sinks returns the names of the configured sinks.
func (m *Mirror) Sinks() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

// Publish posts env to every sink. Every sink is tried; the returned error
// joins the individual failures.
func (m *Mirror) Publish(ctx context.Context, env models.Envelope) error {
	if !m.Enabled() {
		return nil
	}
	post := PostFromEnvelope(env)
	var errs []error
	for _, s := range m.sinks {
		if err := s.Post(ctx, post); err != nil {
			m.logger.Warn("mirror post failed", "sink", s.Name(), "channel", env.Channel, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
