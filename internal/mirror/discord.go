package mirror

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use.
type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts embeds to one Discord channel. Only the REST API is used;
// no gateway connection is opened.
type Discord struct {
	sess        discordSession
	channelID   string
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewDiscord creates a Discord sink from a bot token.
func NewDiscord(botToken, channelID string) (*Discord, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	sess, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return newDiscord(sess, channelID), nil
}

func newDiscord(sess discordSession, channelID string) *Discord {
	return &Discord{
		sess:        sess,
		channelID:   channelID,
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
	}
}

func (d *Discord) Name() string { return "discord" }

// Post sends p as a single embed.
func (d *Discord) Post(ctx context.Context, p Post) error {
	data := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       p.Title(),
			Description: p.Text,
			Color:       hexColor(p.Color),
			Footer:      &discordgo.MessageEmbedFooter{Text: p.From},
		}},
	}
	err := d.retryOnRateLimit(ctx, func() error {
		_, sendErr := d.sess.ChannelMessageSendComplex(d.channelID, data)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func (d *Discord) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var restErr *discordgo.RESTError
		if !errors.As(err, &restErr) || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err // not a rate limit error
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * d.baseBackoff
		if wait > d.maxBackoff {
			wait = d.maxBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// hexColor converts "#rrggbb" to the integer form Discord embeds use.
func hexColor(s string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
