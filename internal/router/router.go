// Package router turns send requests into transport deliveries and
// aggregates their outcomes.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/switchboard/internal/identity"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/transport"
)

// DefaultConcurrency caps simultaneous deliveries during a broadcast.
const DefaultConcurrency = 16

// ErrInvalid marks requests rejected before any delivery was attempted.
var ErrInvalid = errors.New("invalid request")

// ErrNoSubscriber is returned by CheckMessages when the transport cannot
// receive.
var ErrNoSubscriber = errors.New("transport does not support subscriptions")

// Presence supplies the live agent list.
type Presence interface {
	Agents(ctx context.Context, opts presence.ListOpts) ([]models.Agent, error)
}

// History receives envelopes after they are sent.
type History interface {
	Record(ctx context.Context, env *models.Envelope) error
}

// Router routes messages between agents.
type Router struct {
	presence    Presence
	transport   transport.Transport
	history     History
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

// Option configures a Router.
type Option func(*Router)

// WithHistory records sent broadcasts and DMs to h.
func WithHistory(h History) Option {
	return func(r *Router) { r.history = h }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithClock replaces time.Now for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithConcurrency caps simultaneous broadcast deliveries.
func WithConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New creates a Router.
func New(p Presence, t transport.Transport, opts ...Option) *Router {
	r := &Router{
		presence:    p,
		transport:   t,
		logger:      slog.Default().With("component", "router"),
		now:         time.Now,
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Transport returns the transport deliveries go through.
func (r *Router) Transport() transport.Transport {
	return r.transport
}

// BroadcastText formats a broadcast as it appears to recipients.
func BroadcastText(senderID, message string) string {
	return fmt.Sprintf("[%s] %s", identity.ShortName(senderID), message)
}

// DirectText formats a direct message as it appears to the recipient.
func DirectText(senderID, message string) string {
	return fmt.Sprintf("[DM from %s] %s", identity.ShortName(senderID), message)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("router: %w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (r *Router) newEnvelope(from, to, content string, p models.Priority) models.Envelope {
	return models.Envelope{
		GUID:      uuid.NewString(),
		From:      from,
		To:        to,
		Content:   content,
		Priority:  p,
		CreatedAt: r.now().UTC(),
	}
}

// record writes env to history. Failures are logged only: the message has
// already been delivered.
func (r *Router) record(ctx context.Context, env models.Envelope) {
	if r.history == nil {
		return
	}
	if err := r.history.Record(ctx, &env); err != nil {
		r.logger.Warn("history record failed", "guid", env.GUID, "error", err)
	}
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid("%s is required", field)
	}
	return nil
}
