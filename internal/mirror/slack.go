package mirror

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts to one Slack channel with a bot token.
type Slack struct {
	client    slackClient
	channelID string
	backoff   time.Duration
}

// NewSlack creates a Slack sink.
func NewSlack(botToken, channelID string) (*Slack, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	return newSlack(slackapi.New(botToken), channelID), nil
}

func newSlack(c slackClient, channelID string) *Slack {
	return &Slack{client: c, channelID: channelID, backoff: time.Second}
}

func (s *Slack) Name() string { return "slack" }

// Post sends p as a message with one colored attachment.
func (s *Slack) Post(ctx context.Context, p Post) error {
	att := slackapi.Attachment{
		Color:  p.Color,
		Title:  p.Title(),
		Text:   p.Text,
		Footer: p.From,
	}
	err := s.retryOnRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessage(s.channelID,
			slackapi.MsgOptionText(p.Title(), false),
			slackapi.MsgOptionAttachments(att),
		)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func (s *Slack) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * s.backoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
