package switchboard

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/switchboard/internal/router"
)

// Broadcast sends message to every live agent except the sender, optionally
// limited to group. Per-target failures are listed in the text; they do not
// make the response an error.
func (s *Service) Broadcast(ctx context.Context, agentID, message, priority, group string) (resp Response) {
	defer s.guard("broadcast", &resp)

	res, err := s.router.Broadcast(ctx, router.BroadcastRequest{
		SenderID: agentID,
		Message:  message,
		Priority: priority,
		Group:    group,
	})
	if err != nil {
		return fromError(err)
	}
	return Response{Text: res.Text(), Data: res}
}

// DirectMessage sends message to the agent named by to.
func (s *Service) DirectMessage(ctx context.Context, agentID, to, message string) (resp Response) {
	defer s.guard("direct_message", &resp)

	res, err := s.router.DirectMessage(ctx, router.DMRequest{SenderID: agentID, To: to, Message: message})
	if err != nil {
		return fromError(err)
	}
	resp = Response{Text: res.Text(), Data: res}
	switch res.Status {
	case router.DMNotFound, router.DMNoRoute:
		resp.IsError, resp.Kind = true, KindResolution
	case router.DMFailed:
		resp.IsError, resp.Kind = true, KindTransport
	}
	return resp
}

// CheckMessages pulls pending messages for agentID from the bus. A zero
// timeout uses the configured default.
func (s *Service) CheckMessages(ctx context.Context, agentID string, timeout time.Duration) (resp Response) {
	defer s.guard("check_messages", &resp)

	if timeout <= 0 {
		timeout = s.checkTimeout
	}
	res, err := s.router.CheckMessages(ctx, agentID, timeout)
	if errors.Is(err, router.ErrNoSubscriber) {
		return failure(KindValidation, NeedsBusText)
	}
	if err != nil {
		return fromError(err)
	}
	return Response{Text: res.Text(), Data: res}
}
