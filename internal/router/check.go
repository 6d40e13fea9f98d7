package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/transport"
)

// Check defaults.
const (
	DefaultCheckTimeout = 5 * time.Second
	DefaultCheckMax     = 100
)

// NoMessagesText is the result text when nothing arrived.
const NoMessagesText = "No messages"

// Received is a pulled envelope and the subject kind it arrived on.
type Received struct {
	models.Envelope
	Broadcast bool `json:"broadcast"`
}

// CheckResult is the merged set of messages pulled for one agent.
type CheckResult struct {
	AgentID    string     `json:"agent_id"`
	NoMessages bool       `json:"no_messages"`
	Messages   []Received `json:"messages"`
}

// Text renders the messages the way they would have appeared in a pane.
func (c *CheckResult) Text() string {
	if c.NoMessages {
		return NoMessagesText
	}
	lines := make([]string, len(c.Messages))
	for i, e := range c.Messages {
		if e.Broadcast {
			lines[i] = BroadcastText(e.From, e.Content)
		} else {
			lines[i] = DirectText(e.From, e.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// CheckMessages pulls pending direct and broadcast messages for agentID. Both
// subscriptions run concurrently and share a single deadline, so the call
// returns within timeout even when both subjects are quiet.
func (r *Router) CheckMessages(ctx context.Context, agentID string, timeout time.Duration) (*CheckResult, error) {
	if err := requireText("agent", agentID); err != nil {
		return nil, err
	}
	sub, ok := r.transport.(transport.Subscriber)
	if !ok {
		return nil, fmt.Errorf("router: %w", ErrNoSubscriber)
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	direct, broadcast := sub.InboxSubjects(agentID)
	// Broadcast copies share one subject and carry their recipient in To.
	mine := func(e models.Envelope) bool {
		return e.From != agentID && (e.To == "" || e.To == agentID)
	}

	var dms, broadcasts transport.Inbox
	var g errgroup.Group
	g.Go(func() (err error) {
		if dms, err = sub.Subscribe(ctx, direct, nil, DefaultCheckMax, timeout); err != nil {
			return fmt.Errorf("router: check %s: %w", direct, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if broadcasts, err = sub.Subscribe(ctx, broadcast, mine, DefaultCheckMax, timeout); err != nil {
			return fmt.Errorf("router: check %s: %w", broadcast, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	merged := []Received{}
	add := func(e models.Envelope, isBroadcast bool) {
		if e.GUID != "" {
			if seen[e.GUID] {
				return
			}
			seen[e.GUID] = true
		}
		merged = append(merged, Received{Envelope: e, Broadcast: isBroadcast})
	}
	for _, e := range dms {
		add(e, false)
	}
	for _, e := range broadcasts {
		add(e, true)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	return &CheckResult{
		AgentID:    agentID,
		NoMessages: len(merged) == 0,
		Messages:   merged,
	}, nil
}
