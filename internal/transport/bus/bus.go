// Package bus delivers messages over NATS. Each agent listens on its own DM
// subject and on the shared broadcast subject.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/transport"
)

// Subject names.
const (
	SubjectPrefix    = "agents"
	BroadcastSubject = SubjectPrefix + ".broadcast"
)

// DMSubject returns the direct-message subject for agentID.
func DMSubject(agentID string) string {
	return SubjectPrefix + ".dm." + agentID
}

// Conn is the subset of a NATS connection the transport uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Subscribe(subject string, handler nats.MsgHandler) (Subscription, error)
	Close()
}

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// natsConn adapts *nats.Conn to Conn.
type natsConn struct {
	nc *nats.Conn
}

func (c natsConn) Publish(subject string, data []byte) error { return c.nc.Publish(subject, data) }
func (c natsConn) FlushWithContext(ctx context.Context) error {
	return c.nc.FlushWithContext(ctx)
}
func (c natsConn) Subscribe(subject string, h nats.MsgHandler) (Subscription, error) {
	sub, err := c.nc.Subscribe(subject, h)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
func (c natsConn) Close() { c.nc.Close() }

// Options configures Connect.
type Options struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Transport publishes envelopes to NATS subjects.
type Transport struct {
	conn   Conn
	logger *slog.Logger
}

var (
	_ transport.Transport  = (*Transport)(nil)
	_ transport.Subscriber = (*Transport)(nil)
)

// Connect dials the NATS server at opts.URL.
func Connect(opts Options) (*Transport, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.Timeout(timeout),
		nats.MaxReconnects(3),
		nats.ReconnectWait(500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", opts.URL, err)
	}
	return New(natsConn{nc: nc}, opts.Logger), nil
}

// New wraps an existing connection.
func New(conn Conn, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default().With("component", "bus")
	}
	return &Transport{conn: conn, logger: logger}
}

// Close closes the underlying connection.
func (t *Transport) Close() {
	t.conn.Close()
}

func (t *Transport) Name() string { return "nats" }

// Address returns the agent's DM subject. The hint is ignored.
func (t *Transport) Address(agentID, hint string) string {
	return DMSubject(agentID)
}

// Deliver publishes d.Envelope as JSON and waits for the server to
// acknowledge it. Direct messages go to d.Address; broadcast copies go to
// the broadcast subject addressed to the recipient.
func (t *Transport) Deliver(ctx context.Context, d transport.Delivery) transport.Result {
	env := d.Envelope
	if env.GUID == "" {
		env.GUID = uuid.NewString()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}

	subject := d.Address
	if d.Kind == transport.KindBroadcast {
		subject = BroadcastSubject
	}
	if subject == "" {
		return transport.Failed("no route target")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return transport.Failed(fmt.Sprintf("encode envelope: %v", err))
	}
	if err := t.conn.Publish(subject, data); err != nil {
		return transport.Failed(fmt.Sprintf("publish %s: %v", subject, err))
	}
	if err := t.conn.FlushWithContext(ctx); err != nil {
		return transport.Failed(fmt.Sprintf("flush %s: %v", subject, err))
	}
	return transport.Delivered()
}

// InboxSubjects returns agentID's DM subject and the shared broadcast
// subject.
func (t *Transport) InboxSubjects(agentID string) (string, string) {
	return DMSubject(agentID), BroadcastSubject
}

// Subscribe collects envelopes from subject until maxCount accepted by keep
// arrive, timeout elapses or ctx is done. Messages that do not decode as
// envelopes are logged and dropped.
func (t *Transport) Subscribe(ctx context.Context, subject string, keep transport.Filter, maxCount int, timeout time.Duration) (transport.Inbox, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		inbox transport.Inbox
		full  = make(chan struct{})
		once  sync.Once
	)
	sub, err := t.conn.Subscribe(subject, func(m *nats.Msg) {
		var env models.Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			t.logger.Warn("dropping undecodable message", "subject", m.Subject, "error", err)
			return
		}
		if keep != nil && !keep(env) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if maxCount > 0 && len(inbox) >= maxCount {
			return
		}
		inbox = append(inbox, env)
		if maxCount > 0 && len(inbox) >= maxCount {
			once.Do(func() { close(full) })
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}

	select {
	case <-full:
	case <-ctx.Done():
	}
	if err := sub.Unsubscribe(); err != nil {
		t.logger.Debug("unsubscribe failed", "subject", subject, "error", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return append(transport.Inbox(nil), inbox...), nil
}
