package switchboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/identity"
	"github.com/zulandar/switchboard/internal/presence"
)

// StaleMarker is appended to stale agents in discover output.
const StaleMarker = "[stale]"

// RegisterRequest holds the parameters of Register.
type RegisterRequest struct {
	Name        string
	Description string
	Group       string
	// RouteHint is the caller's own delivery target, such as its tmux pane.
	// Transports that address agents by ID ignore it.
	RouteHint string
}

// Register adds an agent to the directory and returns its new ID.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (resp Response) {
	defer s.guard("register", &resp)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return failure(KindValidation, "name is required")
	}
	if identity.ValidateName(name) != nil {
		return failure(KindValidation, "invalid name %q: %v", name, identity.ErrInvalidName)
	}
	agent, err := s.registry.Register(ctx, presence.RegisterOpts{
		Name:        req.Name,
		Description: req.Description,
		Group:       req.Group,
		RouteFor: func(id string) string {
			return s.transport.Address(id, req.RouteHint)
		},
	})
	if err != nil {
		return failure(KindInternal, "register: %v", err)
	}

	text := fmt.Sprintf("Registered as %s in group %s", agent.ID, agent.Group)
	if agent.RouteTarget == "" {
		text += " (no delivery target: messages cannot reach this agent)"
	}
	return Response{Text: text, Data: agent}
}

// Deregister removes an agent. Unknown IDs succeed.
func (s *Service) Deregister(ctx context.Context, agentID string) (resp Response) {
	defer s.guard("deregister", &resp)

	if agentID == "" {
		return failure(KindValidation, "agent_id is required")
	}
	if err := s.registry.Deregister(ctx, agentID); err != nil {
		return failure(KindInternal, "deregister: %v", err)
	}
	return ok(nil, "Deregistered %s", agentID)
}

// Discover lists agents, optionally including stale ones and limited to a
// group.
func (s *Service) Discover(ctx context.Context, includeStale bool, group string) (resp Response) {
	defer s.guard("discover", &resp)

	entries, err := s.registry.List(ctx, presence.ListOpts{IncludeStale: includeStale, Group: group})
	if err != nil {
		return failure(KindInternal, "discover: %v", err)
	}
	if len(entries) == 0 {
		if group != "" {
			return ok(entries, "No agents found in group %s", group)
		}
		return ok(entries, "No agents found")
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, fmt.Sprintf("%d agent(s):", len(entries)))
	for _, e := range entries {
		line := fmt.Sprintf("- %s [%s]", e.ID, e.Group)
		if e.Description != "" {
			line += " " + e.Description
		}
		if e.Status != "" {
			line += fmt.Sprintf(" (status: %s)", e.Status)
		}
		if e.Stale {
			line += " " + StaleMarker
		}
		lines = append(lines, line)
	}
	return Response{Text: strings.Join(lines, "\n"), Data: entries}
}

// Groups lists group names with member counts.
func (s *Service) Groups(ctx context.Context) (resp Response) {
	defer s.guard("groups", &resp)

	groups, err := s.registry.Groups(ctx)
	if err != nil {
		return failure(KindInternal, "groups: %v", err)
	}
	if len(groups) == 0 {
		return ok(groups, "No groups")
	}
	lines := make([]string, len(groups))
	for i, g := range groups {
		lines[i] = fmt.Sprintf("%s (%d)", g.Group, g.Count)
	}
	return Response{Text: strings.Join(lines, "\n"), Data: groups}
}

// Heartbeat refreshes an agent's liveness and, when status is non-nil, its
// status text.
func (s *Service) Heartbeat(ctx context.Context, agentID string, status *string) (resp Response) {
	defer s.guard("heartbeat", &resp)

	if agentID == "" {
		return failure(KindValidation, "agent_id is required")
	}
	found, err := s.registry.Heartbeat(ctx, agentID, status)
	if err != nil {
		return failure(KindInternal, "heartbeat: %v", err)
	}
	if !found {
		return ok(nil, "Agent %s is not registered; heartbeat ignored", agentID)
	}
	return ok(nil, "Heartbeat recorded for %s", agentID)
}
