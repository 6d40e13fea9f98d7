// Package transport defines how a formatted message reaches an agent's
// delivery target. Implementations live in the tmux and bus subpackages.
package transport

import (
	"context"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// Kind distinguishes a broadcast copy from a direct message.
type Kind string

const (
	KindDirect    Kind = "direct"
	KindBroadcast Kind = "broadcast"
)

// Delivery is one attempt to hand a message to one recipient.
type Delivery struct {
	Kind     Kind
	Address  string // recipient's route target
	Text     string // formatted for display, e.g. "[alice] hi"
	Envelope models.Envelope
}

// Result reports the outcome of a Delivery. Transports never return Go
// errors from Deliver; failures are described here.
type Result struct {
	OK       bool
	Reason   string
	ExitCode int
}

// Delivered is the successful Result.
func Delivered() Result {
	return Result{OK: true}
}

// Failed builds a failed Result with the given reason.
func Failed(reason string) Result {
	return Result{Reason: reason}
}

// Transport delivers messages to route targets.
type Transport interface {
	// Name identifies the transport ("tmux", "nats").
	Name() string
	// Address derives the route target to store for agentID at registration.
	// hint is a caller-supplied target such as a tmux pane; transports that
	// derive addresses from the ID may ignore it.
	Address(agentID, hint string) string
	Deliver(ctx context.Context, d Delivery) Result
}

// Inbox is the set of envelopes collected by one subscription.
type Inbox []models.Envelope

// Filter reports whether a subscription keeps an envelope. A nil Filter
// keeps everything.
type Filter func(models.Envelope) bool

// Subscriber is implemented by transports that support pull-style receipt.
type Subscriber interface {
	// InboxSubjects returns the subjects agentID receives direct messages
	// and broadcasts on.
	InboxSubjects(agentID string) (direct, broadcast string)
	// Subscribe listens on subject until maxCount envelopes accepted by keep
	// arrive, timeout elapses or ctx is done, then unsubscribes and returns
	// what it kept. Rejected envelopes do not count toward maxCount.
	// Running out of time is not an error.
	Subscribe(ctx context.Context, subject string, keep Filter, maxCount int, timeout time.Duration) (Inbox, error)
}
