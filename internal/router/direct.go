package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/transport"
)

// DMStatus is the outcome of a direct message.
type DMStatus string

const (
	DMDelivered DMStatus = "delivered"
	DMNotFound  DMStatus = "not_found"
	DMNoRoute   DMStatus = "no_route"
	DMFailed    DMStatus = "failed"
)

// DMRequest is a message to one agent, named by ID or short name.
type DMRequest struct {
	SenderID string
	To       string
	Message  string
}

// DMResult describes what happened to a direct message.
type DMResult struct {
	Status    DMStatus        `json:"status"`
	Reference string          `json:"reference"`
	Target    *models.Agent   `json:"target,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ExitCode  int             `json:"exit_code,omitempty"`
	Envelope  models.Envelope `json:"envelope"`
}

// OK reports whether the message was delivered.
func (d *DMResult) OK() bool { return d.Status == DMDelivered }

// Text renders the result for a human.
func (d *DMResult) Text() string {
	switch d.Status {
	case DMNotFound:
		return fmt.Sprintf("Agent not found: %s", d.Reference)
	case DMNoRoute:
		return fmt.Sprintf("Agent %s (%s) has no reachable destination", d.Target.Name, d.Target.ID)
	case DMFailed:
		return fmt.Sprintf("Failed to deliver to %s (%s): %s", d.Target.Name, d.Target.ID, d.Reason)
	default:
		return fmt.Sprintf("Message delivered to %s (%s)", d.Target.Name, d.Target.ID)
	}
}

// DirectMessage resolves req.To against the live agents and delivers to the
// match. Resolution and transport failures are reported through the result
// status; only invalid requests and presence errors return an error.
func (r *Router) DirectMessage(ctx context.Context, req DMRequest) (*DMResult, error) {
	if err := requireText("sender", req.SenderID); err != nil {
		return nil, err
	}
	if err := requireText("recipient", req.To); err != nil {
		return nil, err
	}
	if err := requireText("message", req.Message); err != nil {
		return nil, err
	}

	agents, err := r.presence.Agents(ctx, presence.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("router: list agents: %w", err)
	}
	result := &DMResult{Reference: req.To}

	target, err := directory.Resolve(req.To, agents)
	if errors.Is(err, directory.ErrNotFound) {
		result.Status = DMNotFound
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("router: resolve %s: %w", req.To, err)
	}
	result.Target = target
	if target.RouteTarget == "" {
		result.Status = DMNoRoute
		return result, nil
	}

	env := r.newEnvelope(req.SenderID, target.ID, req.Message, models.PriorityNormal)
	result.Envelope = env
	res := r.transport.Deliver(ctx, transport.Delivery{
		Kind:     transport.KindDirect,
		Address:  target.RouteTarget,
		Text:     DirectText(req.SenderID, req.Message),
		Envelope: env,
	})
	if !res.OK {
		result.Status = DMFailed
		result.Reason = res.Reason
		result.ExitCode = res.ExitCode
		r.logger.Info("direct message failed", "to", target.ID, "reason", res.Reason)
		return result, nil
	}
	result.Status = DMDelivered
	r.record(ctx, env)
	return result, nil
}
