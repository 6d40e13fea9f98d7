package switchboard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/identity"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
)

var channelName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ChannelSend posts message to a channel. Channels are read on demand with
// ChannelHistory; nothing is injected into agent panes.
func (s *Service) ChannelSend(ctx context.Context, agentID, channel, message, priority string) (resp Response) {
	defer s.guard("channel_send", &resp)

	if s.ledger == nil {
		return failure(KindValidation, LedgerDisabledText)
	}
	if agentID == "" {
		return failure(KindValidation, "agent_id is required")
	}
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "#")
	if !channelName.MatchString(channel) {
		return failure(KindValidation, "invalid channel name %q", channel)
	}
	if strings.TrimSpace(message) == "" {
		return failure(KindValidation, "message is required")
	}
	p, err := models.ParsePriority(priority)
	if err != nil {
		return failure(KindValidation, "%v", err)
	}

	env := &models.Envelope{From: agentID, Channel: channel, Content: message, Priority: p}
	if err := s.ledger.Record(ctx, env); err != nil {
		return failure(KindInternal, "channel_send: %v", err)
	}
	text := fmt.Sprintf("Sent to #%s (cursor %d)", channel, env.ID)
	if s.mirror.Enabled() {
		if err := s.mirror.Publish(ctx, *env); err != nil {
			text += "; chat mirror failed"
		}
	}
	return Response{Text: text, Data: env}
}

// ChannelHistory returns the newest limit messages of a channel, oldest
// first.
func (s *Service) ChannelHistory(ctx context.Context, channel string, limit int) (resp Response) {
	defer s.guard("channel_history", &resp)

	if s.ledger == nil {
		return failure(KindValidation, LedgerDisabledText)
	}
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "#")
	if channel == "" {
		return failure(KindValidation, "channel is required")
	}
	envs, err := s.ledger.ChannelHistory(ctx, channel, limit)
	if err != nil {
		return failure(KindInternal, "channel_history: %v", err)
	}
	if len(envs) == 0 {
		return ok(envs, "No messages in #%s", channel)
	}
	return Response{Text: formatEnvelopes(envs), Data: envs}
}

// ChannelList returns every channel with its message count.
func (s *Service) ChannelList(ctx context.Context) (resp Response) {
	defer s.guard("channel_list", &resp)

	if s.ledger == nil {
		return failure(KindValidation, LedgerDisabledText)
	}
	channels, err := s.ledger.ChannelList(ctx)
	if err != nil {
		return failure(KindInternal, "channel_list: %v", err)
	}
	if len(channels) == 0 {
		return ok(channels, "No channels")
	}
	lines := make([]string, len(channels))
	for i, c := range channels {
		lines[i] = fmt.Sprintf("#%s (%d)", c.Channel, c.MessageCount)
	}
	return Response{Text: strings.Join(lines, "\n"), Data: channels}
}

// DMHistory returns the direct messages exchanged between agentID and the
// agent named by with. An unresolvable reference is used as a literal ID so
// history with departed agents stays readable.
func (s *Service) DMHistory(ctx context.Context, agentID, with string, limit int) (resp Response) {
	defer s.guard("dm_history", &resp)

	if s.ledger == nil {
		return failure(KindValidation, LedgerDisabledText)
	}
	if agentID == "" || with == "" {
		return failure(KindValidation, "agent_id and with are required")
	}

	otherID := with
	agents, err := s.registry.Agents(ctx, presence.ListOpts{IncludeStale: true})
	if err != nil {
		return failure(KindInternal, "dm_history: %v", err)
	}
	if a, err := directory.Resolve(with, agents); err == nil {
		otherID = a.ID
	} else if !errors.Is(err, directory.ErrNotFound) {
		return failure(KindInternal, "dm_history: %v", err)
	}

	envs, err := s.ledger.DMHistory(ctx, agentID, otherID, limit)
	if err != nil {
		return failure(KindInternal, "dm_history: %v", err)
	}
	if len(envs) == 0 {
		return ok(envs, "No DM history with %s", with)
	}
	return Response{Text: formatEnvelopes(envs), Data: envs}
}

// MessagesSince returns envelopes recorded after cursor.
func (s *Service) MessagesSince(ctx context.Context, cursor uint64, limit int) (resp Response) {
	defer s.guard("messages_since", &resp)

	if s.ledger == nil {
		return failure(KindValidation, LedgerDisabledText)
	}
	envs, err := s.ledger.MessagesSince(ctx, cursor, limit)
	if err != nil {
		return failure(KindInternal, "messages_since: %v", err)
	}
	if len(envs) == 0 {
		return ok(envs, "No new messages since cursor %d", cursor)
	}
	return Response{Text: formatEnvelopes(envs), Data: envs}
}

// FormatEnvelope renders one history line.
func FormatEnvelope(e models.Envelope) string {
	ts := e.CreatedAt.Local().Format("2006-01-02 15:04:05")
	from := identity.ShortName(e.From)
	switch {
	case e.Channel != "":
		return fmt.Sprintf("%d [%s] #%s %s: %s", e.ID, ts, e.Channel, from, e.Content)
	case e.To != "":
		return fmt.Sprintf("%d [%s] %s -> %s: %s", e.ID, ts, from, identity.ShortName(e.To), e.Content)
	default:
		return fmt.Sprintf("%d [%s] %s (broadcast): %s", e.ID, ts, from, e.Content)
	}
}

func formatEnvelopes(envs []models.Envelope) string {
	lines := make([]string, len(envs))
	for i, e := range envs {
		lines[i] = FormatEnvelope(e)
	}
	return strings.Join(lines, "\n")
}
