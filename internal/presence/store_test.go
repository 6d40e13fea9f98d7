package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testGormDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Agent{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// stores returns a fresh instance of every Store implementation.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"gorm":   NewGormStore(testGormDB(t)),
	}
}

func agentFixture(id, name string, seq uint64, seen time.Time) *models.Agent {
	return &models.Agent{
		ID:           id,
		Name:         name,
		Group:        models.DefaultGroup,
		Seq:          seq,
		RegisteredAt: seen,
		LastSeen:     seen,
	}
}

func TestStore_InsertGetAll(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"carol-00000003", "alice-00000001", "bob-00000002"} {
				if err := s.Insert(ctx, agentFixture(id, id[:len(id)-9], uint64(i+1), now)); err != nil {
					t.Fatalf("Insert(%s): %v", id, err)
				}
			}

			got, err := s.Get(ctx, "alice-00000001")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Name != "alice" {
				t.Errorf("Name = %q, want alice", got.Name)
			}

			all, err := s.All(ctx)
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			want := []string{"carol-00000003", "alice-00000001", "bob-00000002"}
			if len(all) != len(want) {
				t.Fatalf("len(All) = %d, want %d", len(all), len(want))
			}
			for i := range want {
				if all[i].ID != want[i] {
					t.Errorf("All[%d] = %s, want %s (insertion order)", i, all[i].ID, want[i])
				}
			}
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "ghost-00000000")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Get unknown error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_TouchUpdatesLastSeenAndStatus(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Insert(ctx, agentFixture("alice-00000001", "alice", 1, t0)); err != nil {
				t.Fatal(err)
			}

			t1 := t0.Add(time.Minute)
			found, err := s.Touch(ctx, "alice-00000001", t1, nil)
			if err != nil || !found {
				t.Fatalf("Touch = %v, %v; want true, nil", found, err)
			}
			got, _ := s.Get(ctx, "alice-00000001")
			if !got.LastSeen.Equal(t1) {
				t.Errorf("LastSeen = %v, want %v", got.LastSeen, t1)
			}
			if got.Status != "" {
				t.Errorf("Status = %q, want unchanged empty", got.Status)
			}

			status := "reviewing PR 12"
			if _, err := s.Touch(ctx, "alice-00000001", t1.Add(time.Minute), &status); err != nil {
				t.Fatal(err)
			}
			got, _ = s.Get(ctx, "alice-00000001")
			if got.Status != status {
				t.Errorf("Status = %q, want %q", got.Status, status)
			}
		})
	}
}

func TestStore_TouchUnknown(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			found, err := s.Touch(context.Background(), "ghost-00000000", time.Now(), nil)
			if err != nil {
				t.Fatalf("Touch unknown error: %v", err)
			}
			if found {
				t.Error("Touch unknown reported found")
			}
		})
	}
}

// zeroUpdateRows makes every UPDATE on db report no affected rows, the way
// MySQL does when the new values equal the stored ones.
func zeroUpdateRows(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Update().After("gorm:update").Register("test:zero_rows", func(tx *gorm.DB) {
		tx.RowsAffected = 0
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
}

func TestGormStore_TouchUnchangedRowStillFound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := testGormDB(t)
	s := NewGormStore(db)
	if err := s.Insert(ctx, agentFixture("alice-00000001", "alice", 1, now)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	zeroUpdateRows(t, db)

	found, err := s.Touch(ctx, "alice-00000001", now, nil)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !found {
		t.Error("Touch with unchanged values reported the agent missing")
	}

	found, err = s.Touch(ctx, "ghost-00000000", now, nil)
	if err != nil {
		t.Fatalf("Touch unknown: %v", err)
	}
	if found {
		t.Error("Touch on unknown ID reported found")
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Insert(ctx, agentFixture("alice-00000001", "alice", 1, time.Now())); err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 2; i++ {
				if err := s.Delete(ctx, "alice-00000001"); err != nil {
					t.Fatalf("Delete #%d: %v", i+1, err)
				}
			}
			if err := s.Delete(ctx, "never-registered"); err != nil {
				t.Errorf("Delete unknown: %v", err)
			}
			all, _ := s.All(ctx)
			if len(all) != 0 {
				t.Errorf("len(All) = %d after delete, want 0", len(all))
			}
		})
	}
}

func TestMemoryStore_DuplicateInsert(t *testing.T) {
	s := NewMemoryStore()
	a := agentFixture("alice-00000001", "alice", 1, time.Now())
	if err := s.Insert(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(context.Background(), a); err == nil {
		t.Error("expected error inserting duplicate ID")
	}
}
