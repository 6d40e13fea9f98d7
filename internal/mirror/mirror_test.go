package mirror

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/switchboard/internal/models"
)

type fakeSink struct {
	name  string
	err   error
	mu    sync.Mutex
	posts []Post
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Post(ctx context.Context, p Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, p)
	return f.err
}

func TestPostFromEnvelope(t *testing.T) {
	p := PostFromEnvelope(models.Envelope{
		From: "alice-0a1b2c3d", Channel: "general", Content: "shipping now", Priority: models.PriorityHigh,
	})
	if p.Author != "alice" || p.Channel != "general" || p.Text != "shipping now" {
		t.Errorf("post = %+v", p)
	}
	if p.Color != ColorHigh {
		t.Errorf("Color = %q, want %q", p.Color, ColorHigh)
	}
	if p.Title() != "#general | alice" {
		t.Errorf("Title() = %q", p.Title())
	}
}

func TestPriorityColor(t *testing.T) {
	tests := []struct {
		p    models.Priority
		want string
	}{
		{models.PriorityLow, ColorLow},
		{models.PriorityNormal, ColorNormal},
		{"", ColorNormal},
		{models.PriorityHigh, ColorHigh},
	}
	for _, tt := range tests {
		if got := priorityColor(tt.p); got != tt.want {
			t.Errorf("priorityColor(%q) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestMirror_PublishTriesEverySink(t *testing.T) {
	bad := &fakeSink{name: "bad", err: errors.New("boom")}
	good := &fakeSink{name: "good"}
	m := New(nil, bad, good)

	err := m.Publish(context.Background(), models.Envelope{From: "a-00000000", Channel: "ops", Content: "x"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Publish error = %v, want joined sink error", err)
	}
	if len(good.posts) != 1 {
		t.Errorf("good sink got %d posts, want 1 despite earlier failure", len(good.posts))
	}
	if names := m.Sinks(); len(names) != 2 || names[0] != "bad" {
		t.Errorf("Sinks() = %v", names)
	}
}

func TestMirror_Disabled(t *testing.T) {
	var nilMirror *Mirror
	if nilMirror.Enabled() {
		t.Error("nil mirror reports enabled")
	}
	m := New(nil)
	if m.Enabled() {
		t.Error("mirror without sinks reports enabled")
	}
	if err := m.Publish(context.Background(), models.Envelope{}); err != nil {
		t.Errorf("Publish on empty mirror = %v", err)
	}
}

// mockSlack records PostMessage calls and fails the first n with rate limits.
type mockSlack struct {
	rateLimited int
	err         error
	calls       int
	channel     string
}

func (m *mockSlack) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	if m.calls <= m.rateLimited {
		return "", "", &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
	}
	if m.err != nil {
		return "", "", m.err
	}
	return channelID, "1700000000.000100", nil
}

func TestSlack_Post(t *testing.T) {
	client := &mockSlack{}
	s := newSlack(client, "C0123")
	if err := s.Post(context.Background(), Post{Channel: "general", Author: "alice", Text: "hi"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if client.calls != 1 || client.channel != "C0123" {
		t.Errorf("calls = %d channel = %q", client.calls, client.channel)
	}
	if s.Name() != "slack" {
		t.Errorf("Name() = %q", s.Name())
	}
}

func TestSlack_RetriesRateLimit(t *testing.T) {
	client := &mockSlack{rateLimited: 2}
	s := newSlack(client, "C0123")
	if err := s.Post(context.Background(), Post{Text: "hi"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestSlack_GivesUpAfterMaxRetries(t *testing.T) {
	client := &mockSlack{rateLimited: maxRetries + 5}
	s := newSlack(client, "C0123")
	if err := s.Post(context.Background(), Post{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if client.calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", client.calls, maxRetries+1)
	}
}

func TestSlack_NoRetryOnOtherErrors(t *testing.T) {
	client := &mockSlack{err: errors.New("channel_not_found")}
	err := newSlack(client, "C0123").Post(context.Background(), Post{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("error = %v", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestNewSlack_Validation(t *testing.T) {
	if _, err := NewSlack("", "C1"); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := NewSlack("xoxb-1", ""); err == nil {
		t.Error("expected error for missing channel")
	}
	if _, err := NewSlack("xoxb-1", "C1"); err != nil {
		t.Errorf("NewSlack: %v", err)
	}
}

type mockDiscord struct {
	rateLimited int
	calls       int
	last        *discordgo.MessageSend
}

func (m *mockDiscord) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.calls++
	m.last = data
	if m.calls <= m.rateLimited {
		return nil, &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
	}
	return &discordgo.Message{ID: "1", ChannelID: channelID}, nil
}

func TestDiscord_PostEmbed(t *testing.T) {
	sess := &mockDiscord{}
	d := newDiscord(sess, "998877")
	if err := d.Post(context.Background(), Post{Channel: "ops", Author: "bob", Text: "deployed", Color: ColorNormal}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(sess.last.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(sess.last.Embeds))
	}
	e := sess.last.Embeds[0]
	if e.Title != "#ops | bob" || e.Description != "deployed" {
		t.Errorf("embed = %+v", e)
	}
	if e.Color != 0x36a64f {
		t.Errorf("Color = %#x, want 0x36a64f", e.Color)
	}
}

func TestDiscord_RetriesRateLimit(t *testing.T) {
	sess := &mockDiscord{rateLimited: 1}
	d := newDiscord(sess, "998877")
	d.baseBackoff = time.Millisecond
	if err := d.Post(context.Background(), Post{Text: "hi"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if sess.calls != 2 {
		t.Errorf("calls = %d, want 2", sess.calls)
	}
}

func TestDiscord_RetryHonoursContext(t *testing.T) {
	sess := &mockDiscord{rateLimited: 10}
	d := newDiscord(sess, "998877")
	d.baseBackoff = time.Hour
	d.maxBackoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Post(ctx, Post{Text: "hi"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestHexColor(t *testing.T) {
	if got := hexColor("#e53935"); got != 0xe53935 {
		t.Errorf("hexColor = %#x", got)
	}
	if got := hexColor("not-a-color"); got != 0 {
		t.Errorf("hexColor(invalid) = %d, want 0", got)
	}
}
