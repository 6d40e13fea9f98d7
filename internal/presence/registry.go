package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/identity"
	"github.com/zulandar/switchboard/internal/models"
)

// DefaultStaleAfter is how long an agent may go without a presence signal
// before discovery hides it.
const DefaultStaleAfter = 5 * time.Minute

// DefaultHeartbeatInterval is the default interval for StartHeartbeat.
const DefaultHeartbeatInterval = 30 * time.Second

// RegisterOpts holds parameters for registering an agent.
type RegisterOpts struct {
	Name        string
	Description string
	Group       string // "default" when empty
	RouteTarget string
	// RouteFor, when set and RouteTarget is empty, derives the route target
	// from the allocated ID.
	RouteFor func(agentID string) string
}

// ListOpts filters List results.
type ListOpts struct {
	IncludeStale bool
	Group        string // all groups when empty
}

// Entry is a listed agent together with its staleness classification.
type Entry struct {
	models.Agent
	Stale bool `json:"stale"`
}

// GroupCount is the number of registered agents in a group.
type GroupCount struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

// Registry answers "who is active now" and "who belongs to group G".
type Registry struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
	newID      func(name string) (string, error)
	logger     *slog.Logger

	seqMu   sync.Mutex
	lastSeq uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithStaleAfter sets the staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger used for skipped records and heartbeat errors.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// withIDGenerator replaces identity.Generate; used by collision tests.
func withIDGenerator(fn func(string) (string, error)) Option {
	return func(r *Registry) { r.newID = fn }
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		newID:      identity.Generate,
		logger:     slog.Default().With("component", "presence"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// StaleAfter returns the configured staleness window.
func (r *Registry) StaleAfter() time.Duration {
	return r.staleAfter
}

// Register allocates an ID for a new agent and stores it with LastSeen=now.
func (r *Registry) Register(ctx context.Context, opts RegisterOpts) (*models.Agent, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, fmt.Errorf("presence: name is required")
	}
	if err := identity.ValidateName(name); err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}
	group := strings.TrimSpace(opts.Group)
	if group == "" {
		group = models.DefaultGroup
	}

	id, err := r.generateUniqueID(ctx, name)
	if err != nil {
		return nil, err
	}

	route := opts.RouteTarget
	if route == "" && opts.RouteFor != nil {
		route = opts.RouteFor(id)
	}

	now := r.now()
	agent := &models.Agent{
		ID:           id,
		Name:         name,
		Description:  opts.Description,
		Group:        group,
		RouteTarget:  route,
		Seq:          r.nextSeq(now),
		RegisteredAt: now,
		LastSeen:     now,
	}
	if err := r.store.Insert(ctx, agent); err != nil {
		return nil, fmt.Errorf("presence: register %s: %w", name, err)
	}
	r.logger.Debug("agent registered", "agent_id", id, "group", group, "route", route)
	return agent, nil
}

// nextSeq returns a registration sequence derived from now that is strictly
// greater than any this Registry has handed out. It is only monotonic within
// one process; registrations from separate processes order by wall clock.
func (r *Registry) nextSeq(now time.Time) uint64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	seq := uint64(now.UnixNano())
	if seq <= r.lastSeq {
		seq = r.lastSeq + 1
	}
	r.lastSeq = seq
	return seq
}

// generateUniqueID generates an ID and retries once on collision.
func (r *Registry) generateUniqueID(ctx context.Context, name string) (string, error) {
	for range 2 {
		id, err := r.newID(name)
		if err != nil {
			return "", fmt.Errorf("presence: %w", err)
		}
		_, err = r.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("presence: check ID uniqueness: %w", err)
		}
	}
	return "", fmt.Errorf("presence: failed to generate unique ID after retries")
}

// Heartbeat refreshes LastSeen for id, and Status when status is non-nil.
// Unknown IDs are not an error, since a heartbeat may race with cleanup;
// found reports whether a record was touched.
func (r *Registry) Heartbeat(ctx context.Context, id string, status *string) (found bool, err error) {
	if id == "" {
		return false, fmt.Errorf("presence: agent ID is required")
	}
	found, err = r.store.Touch(ctx, id, r.now(), status)
	if err != nil {
		return false, err
	}
	if !found {
		r.logger.Debug("heartbeat for unknown agent ignored", "agent_id", id)
	}
	return found, nil
}

// Deregister removes id. Unknown IDs succeed trivially.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("presence: agent ID is required")
	}
	return r.store.Delete(ctx, id)
}

// Get returns a single record or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*models.Agent, error) {
	return r.store.Get(ctx, id)
}

// IsStale reports whether a was last seen longer ago than the window.
func (r *Registry) IsStale(a *models.Agent) bool {
	return r.now().Sub(a.LastSeen) > r.staleAfter
}

// List returns records in storage order. Stale records are dropped unless
// opts.IncludeStale is set, in which case they are marked. Malformed
// records are skipped.
func (r *Registry) List(ctx context.Context, opts ListOpts) ([]Entry, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(all))
	for i := range all {
		a := all[i]
		if a.ID == "" || a.Name == "" {
			r.logger.Warn("skipping malformed presence record", "agent_id", a.ID, "name", a.Name)
			continue
		}
		if a.Group == "" {
			a.Group = models.DefaultGroup
		}
		if opts.Group != "" && a.Group != opts.Group {
			continue
		}
		stale := r.IsStale(&a)
		if stale && !opts.IncludeStale {
			continue
		}
		entries = append(entries, Entry{Agent: a, Stale: stale})
	}
	return entries, nil
}

// Agents is List without the staleness markers.
func (r *Registry) Agents(ctx context.Context, opts ListOpts) ([]models.Agent, error) {
	entries, err := r.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	agents := make([]models.Agent, len(entries))
	for i, e := range entries {
		agents[i] = e.Agent
	}
	return agents, nil
}

// Groups counts registered agents per group, stale ones included. The
// result is sorted by group name.
func (r *Registry) Groups(ctx context.Context) ([]GroupCount, error) {
	entries, err := r.List(ctx, ListOpts{IncludeStale: true})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Group]++
	}
	groups := make([]GroupCount, 0, len(counts))
	for g, n := range counts {
		groups = append(groups, GroupCount{Group: g, Count: n})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Group < groups[j].Group })
	return groups, nil
}

// Prune deletes agents not seen for longer than olderThan and returns how
// many were removed.
func (r *Registry) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("presence: prune threshold must be positive")
	}
	all, err := r.store.All(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-olderThan)
	removed := 0
	for _, a := range all {
		if !a.LastSeen.Before(cutoff) {
			continue
		}
		if err := r.store.Delete(ctx, a.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// StartHeartbeat launches a goroutine that periodically refreshes id's
// LastSeen. The returned channel receives an error if the store fails or
// the agent disappears (ErrNotFound); it is never closed. The goroutine
// exits when ctx is cancelled.
func (r *Registry) StartHeartbeat(ctx context.Context, id string, interval time.Duration, status *string) <-chan error {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	errCh := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				found, err := r.store.Touch(ctx, id, r.now(), status)
				if err != nil {
					errCh <- fmt.Errorf("presence: heartbeat %s: %w", id, err)
					return
				}
				if !found {
					errCh <- fmt.Errorf("presence: heartbeat %s: %w", id, ErrNotFound)
					return
				}
			}
		}
	}()

	return errCh
}
