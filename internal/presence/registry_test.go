package presence

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/identity"
	"github.com/zulandar/switchboard/internal/models"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	return NewRegistry(NewMemoryStore(), WithClock(clk.Now)), clk
}

func mustRegister(t *testing.T, r *Registry, opts RegisterOpts) *models.Agent {
	t.Helper()
	a, err := r.Register(context.Background(), opts)
	if err != nil {
		t.Fatalf("Register(%+v): %v", opts, err)
	}
	return a
}

func TestRegister_AllocatesIDAndDefaults(t *testing.T) {
	r, clk := newTestRegistry(t)
	a := mustRegister(t, r, RegisterOpts{Name: "bobby", Description: "reviews Go", RouteTarget: "main:1.0"})

	if !regexp.MustCompile(`^bobby-[0-9a-f]{8}$`).MatchString(a.ID) {
		t.Errorf("ID = %q, want bobby-xxxxxxxx", a.ID)
	}
	if a.Group != models.DefaultGroup {
		t.Errorf("Group = %q, want %q", a.Group, models.DefaultGroup)
	}
	if !a.LastSeen.Equal(clk.Now()) || !a.RegisteredAt.Equal(clk.Now()) {
		t.Errorf("LastSeen/RegisteredAt = %v/%v, want %v", a.LastSeen, a.RegisteredAt, clk.Now())
	}
	if a.RouteTarget != "main:1.0" {
		t.Errorf("RouteTarget = %q", a.RouteTarget)
	}

	got, err := r.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Description != "reviews Go" {
		t.Errorf("Description = %q", got.Description)
	}
}

func TestRegister_SameNameDistinctIDs(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := mustRegister(t, r, RegisterOpts{Name: "bobby"})
	b := mustRegister(t, r, RegisterOpts{Name: "bobby"})
	if a.ID == b.ID {
		t.Fatalf("two registrations share ID %q", a.ID)
	}
}

func TestRegister_NameRequired(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Register(context.Background(), RegisterOpts{Name: "  "})
	if err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Errorf("error = %v, want name is required", err)
	}
}

func TestRegister_RejectsUnsafeNames(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, name := range []string{"my agent", "ops.*.x", "a.>.b", "team.lead", strings.Repeat("n", 120)} {
		_, err := r.Register(context.Background(), RegisterOpts{Name: name})
		if !errors.Is(err, identity.ErrInvalidName) {
			t.Errorf("Register(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
	entries, err := r.List(context.Background(), ListOpts{IncludeStale: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected names were stored: %d entries", len(entries))
	}
}

func TestRegister_SeqStrictlyIncreasesOnSameInstant(t *testing.T) {
	r, _ := newTestRegistry(t)
	var prev uint64
	for i := 0; i < 5; i++ {
		a := mustRegister(t, r, RegisterOpts{Name: "twin"})
		if i > 0 && a.Seq <= prev {
			t.Fatalf("registration %d Seq = %d, want > %d", i, a.Seq, prev)
		}
		prev = a.Seq
	}
}

func TestRegister_SeqSurvivesClockStepBack(t *testing.T) {
	r, clk := newTestRegistry(t)
	first := mustRegister(t, r, RegisterOpts{Name: "early"})
	clk.Advance(-time.Hour)
	second := mustRegister(t, r, RegisterOpts{Name: "late"})
	if second.Seq <= first.Seq {
		t.Errorf("Seq after clock step back = %d, want > %d", second.Seq, first.Seq)
	}
}

func TestRegister_RetriesOnCollision(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Insert(context.Background(), &models.Agent{ID: "bobby-00000000", Name: "bobby"}); err != nil {
		t.Fatal(err)
	}
	ids := []string{"bobby-00000000", "bobby-11111111"}
	calls := 0
	r := NewRegistry(store, withIDGenerator(func(name string) (string, error) {
		id := ids[calls]
		calls++
		return id, nil
	}))

	a, err := r.Register(context.Background(), RegisterOpts{Name: "bobby"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.ID != "bobby-11111111" {
		t.Errorf("ID = %q, want retry result bobby-11111111", a.ID)
	}
}

func TestRegister_GivesUpAfterRepeatedCollisions(t *testing.T) {
	store := NewMemoryStore()
	store.Insert(context.Background(), &models.Agent{ID: "bobby-00000000", Name: "bobby"})
	r := NewRegistry(store, withIDGenerator(func(string) (string, error) {
		return "bobby-00000000", nil
	}))
	if _, err := r.Register(context.Background(), RegisterOpts{Name: "bobby"}); err == nil {
		t.Fatal("expected error after repeated collisions")
	}
}

func TestList_ExcludesStaleByDefault(t *testing.T) {
	r, clk := newTestRegistry(t)
	old := mustRegister(t, r, RegisterOpts{Name: "old"})
	clk.Advance(4 * time.Minute)
	fresh := mustRegister(t, r, RegisterOpts{Name: "fresh"})
	clk.Advance(90 * time.Second) // old is now 5m30s, fresh 1m30s

	entries, err := r.List(context.Background(), ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != fresh.ID {
		t.Fatalf("List() = %+v, want only %s", entries, fresh.ID)
	}
	if entries[0].Stale {
		t.Error("fresh entry marked stale")
	}

	entries, err = r.List(context.Background(), ListOpts{IncludeStale: true})
	if err != nil {
		t.Fatalf("List(IncludeStale): %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].ID != old.ID || !entries[0].Stale {
		t.Errorf("entries[0] = %s stale=%v, want %s stale=true", entries[0].ID, entries[0].Stale, old.ID)
	}
	if entries[1].Stale {
		t.Errorf("entries[1] (%s) marked stale", entries[1].ID)
	}
}

func TestList_StaleBoundary(t *testing.T) {
	r, clk := newTestRegistry(t)
	mustRegister(t, r, RegisterOpts{Name: "edge"})

	clk.Advance(DefaultStaleAfter)
	entries, _ := r.List(context.Background(), ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("agent exactly at threshold should still be live, got %d entries", len(entries))
	}

	clk.Advance(time.Second)
	entries, _ = r.List(context.Background(), ListOpts{})
	if len(entries) != 0 {
		t.Fatalf("agent past threshold should be hidden, got %d entries", len(entries))
	}
}

func TestList_CustomStaleWindow(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(NewMemoryStore(), WithClock(clk.Now), WithStaleAfter(30*time.Second))
	mustRegister(t, r, RegisterOpts{Name: "quick"})
	clk.Advance(31 * time.Second)
	entries, _ := r.List(context.Background(), ListOpts{})
	if len(entries) != 0 {
		t.Errorf("expected agent stale after 31s with 30s window, got %d", len(entries))
	}
	if r.StaleAfter() != 30*time.Second {
		t.Errorf("StaleAfter() = %v", r.StaleAfter())
	}
}

func TestHeartbeat_RevivesStaleAgent(t *testing.T) {
	r, clk := newTestRegistry(t)
	a := mustRegister(t, r, RegisterOpts{Name: "sleepy"})
	clk.Advance(10 * time.Minute)

	status := "back online"
	found, err := r.Heartbeat(context.Background(), a.ID, &status)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if !found {
		t.Error("Heartbeat found = false for a registered agent")
	}
	entries, _ := r.List(context.Background(), ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("expected heartbeat to make agent live, got %d entries", len(entries))
	}
	if entries[0].Status != status {
		t.Errorf("Status = %q, want %q", entries[0].Status, status)
	}
}

func TestHeartbeat_UnknownIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	found, err := r.Heartbeat(context.Background(), "ghost-00000000", nil)
	if err != nil {
		t.Errorf("Heartbeat unknown = %v, want nil", err)
	}
	if found {
		t.Error("Heartbeat found = true for an unknown agent")
	}
}

func TestDeregister_Idempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := mustRegister(t, r, RegisterOpts{Name: "leaver"})
	for i := 0; i < 2; i++ {
		if err := r.Deregister(context.Background(), a.ID); err != nil {
			t.Fatalf("Deregister #%d: %v", i+1, err)
		}
	}
	if err := r.Deregister(context.Background(), "unknown-00000000"); err != nil {
		t.Errorf("Deregister unknown: %v", err)
	}
	if _, err := r.Get(context.Background(), a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after deregister = %v, want ErrNotFound", err)
	}
}

func TestList_GroupFilter(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustRegister(t, r, RegisterOpts{Name: "a", Group: "backend"})
	mustRegister(t, r, RegisterOpts{Name: "b", Group: "frontend"})
	mustRegister(t, r, RegisterOpts{Name: "c", Group: "backend"})
	mustRegister(t, r, RegisterOpts{Name: "d"})

	entries, err := r.List(context.Background(), ListOpts{Group: "backend"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("backend entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Group != "backend" {
			t.Errorf("entry %s has group %q", e.ID, e.Group)
		}
	}

	entries, _ = r.List(context.Background(), ListOpts{Group: models.DefaultGroup})
	if len(entries) != 1 || entries[0].Name != "d" {
		t.Errorf("default group entries = %+v, want only d", entries)
	}
}

func TestList_SkipsMalformedRecords(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.Insert(context.Background(), &models.Agent{ID: "nameless-00000000", LastSeen: now})
	store.Insert(context.Background(), &models.Agent{ID: "good-00000001", Name: "good", LastSeen: now})
	r := NewRegistry(store)

	entries, err := r.List(context.Background(), ListOpts{IncludeStale: true})
	if err != nil {
		t.Fatalf("List should not fail on malformed records: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "good-00000001" {
		t.Errorf("entries = %+v, want only good-00000001", entries)
	}
	if entries[0].Group != models.DefaultGroup {
		t.Errorf("empty group not normalised: %q", entries[0].Group)
	}
}

func TestGroups(t *testing.T) {
	r, clk := newTestRegistry(t)

	groups, err := r.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups on empty store: %v", err)
	}
	if groups == nil || len(groups) != 0 {
		t.Errorf("Groups() on empty store = %#v, want empty non-nil slice", groups)
	}

	mustRegister(t, r, RegisterOpts{Name: "a", Group: "zeta"})
	mustRegister(t, r, RegisterOpts{Name: "b", Group: "alpha"})
	mustRegister(t, r, RegisterOpts{Name: "c", Group: "zeta"})
	clk.Advance(time.Hour) // stale agents still count

	groups, err = r.Groups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []GroupCount{{"alpha", 1}, {"zeta", 2}}
	if len(groups) != len(want) {
		t.Fatalf("Groups() = %+v, want %+v", groups, want)
	}
	for i := range want {
		if groups[i] != want[i] {
			t.Errorf("Groups()[%d] = %+v, want %+v", i, groups[i], want[i])
		}
	}
}

func TestPrune(t *testing.T) {
	r, clk := newTestRegistry(t)
	mustRegister(t, r, RegisterOpts{Name: "ancient"})
	clk.Advance(2 * time.Hour)
	keep := mustRegister(t, r, RegisterOpts{Name: "recent"})

	n, err := r.Prune(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	entries, _ := r.List(context.Background(), ListOpts{IncludeStale: true})
	if len(entries) != 1 || entries[0].ID != keep.ID {
		t.Errorf("after prune entries = %+v, want only %s", entries, keep.ID)
	}

	if _, err := r.Prune(context.Background(), 0); err == nil {
		t.Error("expected error for zero prune threshold")
	}
}

func TestStartHeartbeat_StopsWhenAgentGone(t *testing.T) {
	r := NewRegistry(NewMemoryStore())
	a := mustRegister(t, r, RegisterOpts{Name: "beater"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := r.StartHeartbeat(ctx, a.ID, 10*time.Millisecond, nil)

	time.Sleep(30 * time.Millisecond)
	if err := r.Deregister(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("heartbeat error = %v, want ErrNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not report missing agent")
	}
}

func TestStartHeartbeat_RefreshesLastSeen(t *testing.T) {
	r := NewRegistry(NewMemoryStore())
	a := mustRegister(t, r, RegisterOpts{Name: "beater"})

	ctx, cancel := context.WithCancel(context.Background())
	r.StartHeartbeat(ctx, a.ID, 10*time.Millisecond, nil)
	time.Sleep(50 * time.Millisecond)
	cancel()

	got, err := r.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastSeen.After(a.LastSeen) {
		t.Errorf("LastSeen %v not advanced past %v", got.LastSeen, a.LastSeen)
	}
}

func TestRegistry_WithGormStore(t *testing.T) {
	clk := newFakeClock()
	r := NewRegistry(NewGormStore(testGormDB(t)), WithClock(clk.Now))
	a := mustRegister(t, r, RegisterOpts{Name: "persisted", Group: "ops"})
	clk.Advance(time.Minute)
	b := mustRegister(t, r, RegisterOpts{Name: "second", Group: "ops"})

	entries, err := r.List(context.Background(), ListOpts{Group: "ops"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != a.ID || entries[1].ID != b.ID {
		t.Errorf("entries = %+v, want [%s %s]", entries, a.ID, b.ID)
	}
}

func TestRegister_RouteFor(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := mustRegister(t, r, RegisterOpts{Name: "bus", RouteFor: func(id string) string { return "agents.dm." + id }})
	if a.RouteTarget != "agents.dm."+a.ID {
		t.Errorf("RouteTarget = %q, want derived from %s", a.RouteTarget, a.ID)
	}

	b := mustRegister(t, r, RegisterOpts{Name: "pane", RouteTarget: "main:0.1", RouteFor: func(string) string { return "unused" }})
	if b.RouteTarget != "main:0.1" {
		t.Errorf("explicit RouteTarget overridden: %q", b.RouteTarget)
	}
}
