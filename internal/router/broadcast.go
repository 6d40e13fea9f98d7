package router

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/transport"
)

// NoTargetsText is the result text of a broadcast nobody could receive.
const NoTargetsText = "No other agents to broadcast to"

// BroadcastRequest is a message for every live agent, optionally limited to
// one group.
type BroadcastRequest struct {
	SenderID string
	Message  string
	Priority string
	Group    string
}

// Outcome is the result of delivering to one target.
type Outcome struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
}

// BroadcastResult summarises a broadcast.
type BroadcastResult struct {
	Envelope  models.Envelope `json:"envelope"`
	NoTargets bool            `json:"no_targets"`
	Attempted int             `json:"attempted"`
	Delivered int             `json:"delivered"`
	Failed    int             `json:"failed"`
	Outcomes  []Outcome       `json:"outcomes"`
}

// Text renders the result for a human.
func (b *BroadcastResult) Text() string {
	if b.NoTargets {
		return NoTargetsText
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Broadcast delivered to %d/%d agents", b.Delivered, b.Attempted)
	for _, o := range b.Outcomes {
		if !o.OK {
			fmt.Fprintf(&sb, "\n  failed: %s (%s): %s", o.Name, o.AgentID, o.Reason)
		}
	}
	return sb.String()
}

// Broadcast delivers req.Message to every live agent other than the sender
// that has a route target. Deliveries run concurrently; Broadcast returns
// once all of them have settled. Individual failures are reported in the
// result, not as an error.
func (r *Router) Broadcast(ctx context.Context, req BroadcastRequest) (*BroadcastResult, error) {
	if err := requireText("sender", req.SenderID); err != nil {
		return nil, err
	}
	if err := requireText("message", req.Message); err != nil {
		return nil, err
	}
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		return nil, invalid("%v", err)
	}

	agents, err := r.presence.Agents(ctx, presence.ListOpts{Group: req.Group})
	if err != nil {
		return nil, fmt.Errorf("router: list agents: %w", err)
	}
	targets := make([]models.Agent, 0, len(agents))
	for _, a := range agents {
		if a.ID == req.SenderID || a.RouteTarget == "" {
			continue
		}
		targets = append(targets, a)
	}

	env := r.newEnvelope(req.SenderID, "", req.Message, priority)
	if len(targets) == 0 {
		return &BroadcastResult{Envelope: env, NoTargets: true, Outcomes: []Outcome{}}, nil
	}

	text := BroadcastText(req.SenderID, req.Message)
	outcomes := make([]Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, target := range targets {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = Outcome{AgentID: target.ID, Name: target.Name, Reason: fmt.Sprintf("delivery panicked: %v", p)}
				}
			}()

			copyEnv := env
			copyEnv.To = target.ID
			res := r.transport.Deliver(ctx, transport.Delivery{
				Kind:     transport.KindBroadcast,
				Address:  target.RouteTarget,
				Text:     text,
				Envelope: copyEnv,
			})
			outcomes[i] = Outcome{AgentID: target.ID, Name: target.Name, OK: res.OK, Reason: res.Reason}
			return nil
		})
	}
	g.Wait()

	result := &BroadcastResult{Envelope: env, Attempted: len(targets), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.OK {
			result.Delivered++
		} else {
			result.Failed++
			r.logger.Info("broadcast delivery failed", "to", o.AgentID, "reason", o.Reason)
		}
	}
	if result.Delivered > 0 {
		r.record(ctx, env)
	}
	return result, nil
}
