package transport

import (
	"context"
	"sync"
	"time"
)

// Recorder is an in-memory Transport that records every Delivery and
// answers with scripted results. It is safe for concurrent use.
type Recorder struct {
	// Results maps an address to the Result returned for it. Addresses not
	// listed succeed.
	Results map[string]Result
	// Delay is slept before each delivery returns.
	Delay time.Duration

	mu         sync.Mutex
	deliveries []Delivery
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Results: make(map[string]Result)}
}

func (r *Recorder) Name() string { return "recorder" }

// Address returns hint, or agentID when no hint is given.
func (r *Recorder) Address(agentID, hint string) string {
	if hint != "" {
		return hint
	}
	return agentID
}

func (r *Recorder) Deliver(ctx context.Context, d Delivery) Result {
	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	res, ok := r.Results[d.Address]
	r.mu.Unlock()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return Failed(ctx.Err().Error())
		}
	}
	if !ok {
		return Delivered()
	}
	return res
}

// Deliveries returns a copy of every recorded Delivery in call order.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Calls returns the number of Deliver calls.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

// RecordingBus is a Recorder that also implements Subscriber, serving
// preloaded envelopes per subject.
type RecordingBus struct {
	*Recorder

	// Inbound holds the envelopes each subject will yield.
	Inbound map[string]Inbox
	// Hold makes Subscribe wait for its timeout (or ctx) even when fewer
	// than maxCount envelopes are available, like a quiet bus.
	Hold bool

	mu         sync.Mutex
	subscribed []string
}

// NewRecordingBus returns an empty RecordingBus.
func NewRecordingBus() *RecordingBus {
	return &RecordingBus{Recorder: NewRecorder(), Inbound: make(map[string]Inbox)}
}

func (b *RecordingBus) Name() string { return "recording-bus" }

// InboxSubjects follows the bus naming: agents.dm.<id> and agents.broadcast.
func (b *RecordingBus) InboxSubjects(agentID string) (string, string) {
	return "agents.dm." + agentID, "agents.broadcast"
}

func (b *RecordingBus) Subscribe(ctx context.Context, subject string, keep Filter, maxCount int, timeout time.Duration) (Inbox, error) {
	b.mu.Lock()
	b.subscribed = append(b.subscribed, subject)
	var inbox Inbox
	for _, e := range b.Inbound[subject] {
		if keep == nil || keep(e) {
			inbox = append(inbox, e)
		}
	}
	b.mu.Unlock()

	if maxCount > 0 && len(inbox) > maxCount {
		inbox = inbox[:maxCount]
	}
	if b.Hold && (maxCount <= 0 || len(inbox) < maxCount) {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return inbox, nil
}

// Subscriptions returns the subjects subscribed to, in call order.
func (b *RecordingBus) Subscriptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subscribed...)
}
