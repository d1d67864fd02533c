package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
)

// setupTestRepo creates an in-memory SQLite repository for testing.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	err = repo.EnsureSchema(context.Background())
	require.NoError(t, err)

	return repo
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newEntry builds an unsaved entry and its first version.
func newEntry(id, name string) (*entities.CanonEntry, *entities.CanonVersion) {
	e := &entities.CanonEntry{
		ID:          id,
		ProjectID:   "p1",
		Kind:        entities.KindCharacter,
		Name:        name,
		Slug:        entities.Slugify(name),
		Description: name + " description",
		Payload:     entities.Payload{"eyeColor": "green", "aliases": []string{"Lena"}},
		LockState:   entities.LockUnlocked,
		Version:     1,
		Active:      true,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
	return e, versionOf(e, entities.ChangeCreated, "created")
}

func versionOf(e *entities.CanonEntry, ct entities.ChangeType, reason string) *entities.CanonVersion {
	return &entities.CanonVersion{
		ID:         fmt.Sprintf("%s-v%d", e.ID, e.Version),
		EntryID:    e.ID,
		Version:    e.Version,
		Snapshot:   e.Snapshot(),
		Actor:      "author",
		Reason:     reason,
		ChangeType: ct,
		CreatedAt:  testTime,
	}
}

func createEntry(t *testing.T, repo *Repository, id, name string) *entities.CanonEntry {
	t.Helper()
	e, v := newEntry(id, name)
	require.NoError(t, repo.CreateEntry(context.Background(), e, v))
	return e
}

func TestNewRepository(t *testing.T) {
	t.Run("success with memory database", func(t *testing.T) {
		repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
		require.NoError(t, err)
		defer repo.Close()
		assert.NotNil(t, repo)
		assert.Equal(t, ":memory:", repo.Path())
	})

	t.Run("error with empty path", func(t *testing.T) {
		_, err := NewRepository(config.SQLiteConfig{Path: ""})
		require.Error(t, err)
	})
}

func TestRepository_EnsureSchema(t *testing.T) {
	repo := setupTestRepo(t)

	tables := []string{"canon_entries", "canon_entry_attributes", "canon_versions", "timelines", "audit_log"}
	for _, table := range tables {
		var count int
		err := repo.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	// Should not error when called again
	require.NoError(t, repo.EnsureSchema(context.Background()))
}

func TestRepository_CreateAndFindEntry(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created := createEntry(t, repo, "e1", "Elena Vasquez")

	found, err := repo.FindEntry(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.Name, found.Name)
	assert.Equal(t, "elena-vasquez", found.Slug)
	assert.Equal(t, entities.KindCharacter, found.Kind)
	assert.Equal(t, 1, found.Version)
	assert.True(t, found.Active)
	assert.Equal(t, "green", found.Payload.String("eyeColor"))
	assert.Equal(t, []string{"Lena"}, found.Payload.Strings("aliases"))

	versions, err := repo.FindVersionsByEntry(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, entities.ChangeCreated, versions[0].ChangeType)
	assert.Equal(t, "author", versions[0].Actor)

	missing, err := repo.FindEntry(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_SlugUniqueness(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	createEntry(t, repo, "e1", "Elena Vasquez")

	t.Run("same slug on same timeline conflicts", func(t *testing.T) {
		e, v := newEntry("e2", "Elena Vasquez")
		err := repo.CreateEntry(ctx, e, v)
		require.ErrorIs(t, err, canonerr.ErrConflict)

		found, err := repo.FindEntry(ctx, "e2")
		require.NoError(t, err)
		assert.Nil(t, found, "failed create must leave nothing behind")
	})

	t.Run("same slug on another timeline is allowed", func(t *testing.T) {
		e, v := newEntry("e3", "Elena Vasquez")
		e.TimelineID = "t-fork"
		require.NoError(t, repo.CreateEntry(ctx, e, v))
	})

	t.Run("slug is reusable after deactivation", func(t *testing.T) {
		require.NoError(t, repo.DeactivateEntry(ctx, "e1", testTime))
		e, v := newEntry("e4", "Elena Vasquez")
		require.NoError(t, repo.CreateEntry(ctx, e, v))
	})
}

func TestRepository_UpdateEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("compare and swap succeeds", func(t *testing.T) {
		repo := setupTestRepo(t)
		e := createEntry(t, repo, "e1", "Elena Vasquez")

		e.Payload = e.Payload.Merge(map[string]any{"eyeColor": "blue"})
		e.Version = 2
		require.NoError(t, repo.UpdateEntry(ctx, e, 1, versionOf(e, entities.ChangeManualEdit, "edit")))

		found, err := repo.FindEntry(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 2, found.Version)
		assert.Equal(t, "blue", found.Payload.String("eyeColor"))

		v1, err := repo.FindVersion(ctx, "e1", 1)
		require.NoError(t, err)
		assert.Equal(t, "green", v1.Snapshot.Payload.String("eyeColor"))

		versions, err := repo.FindVersionsByEntry(ctx, "e1")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 1, versions[0].Version)
		assert.Equal(t, 2, versions[1].Version)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		repo := setupTestRepo(t)
		e := createEntry(t, repo, "e1", "Elena Vasquez")

		first := e.Clone()
		first.Version = 2
		require.NoError(t, repo.UpdateEntry(ctx, &first, 1, versionOf(&first, entities.ChangeManualEdit, "a")))

		second := e.Clone()
		second.Version = 2
		second.Description = "loser"
		err := repo.UpdateEntry(ctx, &second, 1, versionOf(&second, entities.ChangeManualEdit, "b"))
		require.ErrorIs(t, err, canonerr.ErrConflict)

		versions, err := repo.FindVersionsByEntry(ctx, "e1")
		require.NoError(t, err)
		assert.Len(t, versions, 2, "losing writer must not append a version")
	})

	t.Run("hard lock rejects", func(t *testing.T) {
		repo := setupTestRepo(t)
		e := createEntry(t, repo, "e1", "Elena Vasquez")
		require.NoError(t, repo.SetLockState(ctx, "e1", entities.LockHard, testTime))

		e.Version = 2
		e.Description = "changed"
		err := repo.UpdateEntry(ctx, e, 1, versionOf(e, entities.ChangeManualEdit, "x"))
		require.ErrorIs(t, err, canonerr.ErrLocked)

		found, err := repo.FindEntry(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, 1, found.Version, "lock state change must not bump version")
		assert.Equal(t, "Elena Vasquez description", found.Description)
	})

	t.Run("missing entry", func(t *testing.T) {
		repo := setupTestRepo(t)
		e, _ := newEntry("ghost", "Ghost")
		e.Version = 2
		err := repo.UpdateEntry(ctx, e, 1, versionOf(e, entities.ChangeManualEdit, "x"))
		require.ErrorIs(t, err, canonerr.ErrNotFound)
	})

	t.Run("rename onto taken slug conflicts", func(t *testing.T) {
		repo := setupTestRepo(t)
		createEntry(t, repo, "e1", "Elena Vasquez")
		marco := createEntry(t, repo, "e2", "Marco")

		marco.Name = "Elena Vasquez"
		marco.Slug = "elena-vasquez"
		marco.Version = 2
		err := repo.UpdateEntry(ctx, marco, 1, versionOf(marco, entities.ChangeManualEdit, "x"))
		require.ErrorIs(t, err, canonerr.ErrConflict)
	})
}

func TestRepository_LockAndDeactivate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	createEntry(t, repo, "e1", "Elena Vasquez")

	require.NoError(t, repo.SetLockState(ctx, "e1", entities.LockHard, testTime))
	err := repo.DeactivateEntry(ctx, "e1", testTime)
	require.ErrorIs(t, err, canonerr.ErrLocked)

	require.NoError(t, repo.SetLockState(ctx, "e1", entities.LockUnlocked, testTime))
	require.NoError(t, repo.DeactivateEntry(ctx, "e1", testTime))
	require.NoError(t, repo.DeactivateEntry(ctx, "e1", testTime), "deactivation is idempotent")

	found, err := repo.FindEntry(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, found.Active)

	listed, err := repo.ListEntries(ctx, "p1", "")
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.ErrorIs(t, repo.SetLockState(ctx, "e1", entities.LockSoft, testTime), canonerr.ErrNotFound)
	require.ErrorIs(t, repo.DeactivateEntry(ctx, "nope", testTime), canonerr.ErrNotFound)
}

func TestRepository_ListEntries(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	parent := createEntry(t, repo, "e1", "Salt Harbor")
	child, v := newEntry("e2", "Marco")
	child.ParentID = parent.ID
	require.NoError(t, repo.CreateEntry(ctx, child, v))
	createEntry(t, repo, "e3", "Ada")

	forked, fv := newEntry("e4", "Elena Vasquez")
	forked.TimelineID = "t-fork"
	require.NoError(t, repo.CreateEntry(ctx, forked, fv))

	main, err := repo.ListEntries(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, main, 3)
	assert.Equal(t, []string{"ada", "marco", "salt-harbor"}, []string{main[0].Slug, main[1].Slug, main[2].Slug})

	fork, err := repo.ListEntries(ctx, "p1", "t-fork")
	require.NoError(t, err)
	require.Len(t, fork, 1)
	assert.Equal(t, "e4", fork[0].ID)

	children, err := repo.ListChildren(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "e2", children[0].ID)

	other, err := repo.ListEntries(ctx, "p2", "")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRepository_FindEntriesByAttribute(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	elena := createEntry(t, repo, "e1", "Elena Vasquez")
	createEntry(t, repo, "e2", "Marco")

	byColor, err := repo.FindEntriesByAttribute(ctx, "p1", "eyeColor", "green")
	require.NoError(t, err)
	assert.Len(t, byColor, 2)

	// Attribute rows follow updates.
	elena.Payload = elena.Payload.Merge(map[string]any{"eyeColor": "blue", "age": 34})
	elena.Version = 2
	require.NoError(t, repo.UpdateEntry(ctx, elena, 1, versionOf(elena, entities.ChangeManualEdit, "x")))

	byColor, err = repo.FindEntriesByAttribute(ctx, "p1", "eyeColor", "blue")
	require.NoError(t, err)
	require.Len(t, byColor, 1)
	assert.Equal(t, "e1", byColor[0].ID)

	byAge, err := repo.FindEntriesByAttribute(ctx, "p1", "age", "34")
	require.NoError(t, err)
	assert.Len(t, byAge, 1)

	byAlias, err := repo.FindEntriesByAttribute(ctx, "p1", "aliases", "Lena")
	require.NoError(t, err)
	assert.Len(t, byAlias, 2)
}

func TestRepository_Timelines(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	main := &entities.Timeline{ID: "t-main", ProjectID: "p1", Name: "Main", IsMain: true, CreatedAt: testTime}
	require.NoError(t, repo.SaveTimeline(ctx, main))

	second := &entities.Timeline{ID: "t-main-2", ProjectID: "p1", Name: "Main", IsMain: true, CreatedAt: testTime}
	require.ErrorIs(t, repo.SaveTimeline(ctx, second), canonerr.ErrConflict)

	otherProject := &entities.Timeline{ID: "t-other", ProjectID: "p2", Name: "Main", IsMain: true, CreatedAt: testTime}
	require.NoError(t, repo.SaveTimeline(ctx, otherProject))

	fork := &entities.Timeline{
		ID: "t-fork", ProjectID: "p1", Name: "What-if", ParentID: "t-main",
		ForkPointEntryID: "ev1", CreatedAt: testTime.Add(time.Minute),
	}
	require.NoError(t, repo.SaveTimeline(ctx, fork))

	found, err := repo.FindMainTimeline(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "t-main", found.ID)

	byID, err := repo.FindTimeline(ctx, "t-fork")
	require.NoError(t, err)
	assert.Equal(t, "t-main", byID.ParentID)
	assert.Equal(t, "ev1", byID.ForkPointEntryID)
	assert.False(t, byID.IsMain)

	list, err := repo.ListTimelines(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t-main", list[0].ID)
	assert.Equal(t, "t-fork", list[1].ID)

	none, err := repo.FindMainTimeline(ctx, "p3")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepository_CreateFork(t *testing.T) {
	ctx := context.Background()

	t.Run("persists timeline and copy together", func(t *testing.T) {
		repo := setupTestRepo(t)
		require.NoError(t, repo.SaveTimeline(ctx, &entities.Timeline{ID: "t-main", ProjectID: "p1", Name: "Main", IsMain: true, CreatedAt: testTime}))
		createEntry(t, repo, "e1", "Elena Vasquez")

		copyEntry, v := newEntry("e1-copy", "Elena Vasquez")
		copyEntry.TimelineID = "t-fork"
		tl := &entities.Timeline{ID: "t-fork", ProjectID: "p1", Name: "What-if: Elena Vasquez", ParentID: "t-main", CreatedAt: testTime}
		require.NoError(t, repo.CreateFork(ctx, tl, copyEntry, v))

		fork, err := repo.ListEntries(ctx, "p1", "t-fork")
		require.NoError(t, err)
		require.Len(t, fork, 1)
		assert.Equal(t, "e1-copy", fork[0].ID)
	})

	t.Run("failure rolls back the timeline", func(t *testing.T) {
		repo := setupTestRepo(t)
		require.NoError(t, repo.SaveTimeline(ctx, &entities.Timeline{ID: "t-main", ProjectID: "p1", Name: "Main", IsMain: true, CreatedAt: testTime}))
		createEntry(t, repo, "e1", "Elena Vasquez")

		// Reusing the source id violates the primary key.
		dup, v := newEntry("e1", "Elena Vasquez")
		dup.TimelineID = "t-fork"
		tl := &entities.Timeline{ID: "t-fork", ProjectID: "p1", Name: "What-if", ParentID: "t-main", CreatedAt: testTime}
		require.Error(t, repo.CreateFork(ctx, tl, dup, v))

		found, err := repo.FindTimeline(ctx, "t-fork")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestRepository_AuditLog(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.LogAction(ctx, entities.ActionEntryCreated, "e1", map[string]any{"name": "Elena"}))
	require.NoError(t, repo.LogAction(ctx, entities.ActionEntryUpdated, "e1", nil))
	require.NoError(t, repo.LogAction(ctx, entities.ActionEntryCreated, "e2", nil))
	require.NoError(t, repo.LogAction(ctx, entities.ActionTimelineForked, "", map[string]any{"timeline_id": "t1"}))

	trail, err := repo.FindAuditLog(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, entities.ActionEntryCreated, trail[0].Action)
	assert.Equal(t, "Elena", trail[0].Details["name"])
	assert.Equal(t, entities.ActionEntryUpdated, trail[1].Action)

	created, err := repo.FindAuditLogByAction(ctx, entities.ActionEntryCreated, 10)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "e2", created[0].EntryID, "newest first")

	limited, err := repo.FindAuditLogByAction(ctx, entities.ActionEntryCreated, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	forks, err := repo.FindAuditLogByAction(ctx, entities.ActionTimelineForked, 0)
	require.NoError(t, err)
	require.Len(t, forks, 1)
	assert.Empty(t, forks[0].EntryID)
}

// setupFileRepo creates a file-backed repository so the connection pool has
// more than one connection.
func setupFileRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "canon.db")})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

// raceWrites runs n writers at once and counts successes and conflicts.
// Any other error fails the test.
func raceWrites(t *testing.T, n int, write func(i int) error) (ok, conflicts int) {
	t.Helper()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
		other []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := write(i)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, canonerr.ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	require.Empty(t, other)
	return ok, conflicts
}

func TestRepository_ConcurrentWritesOnFile(t *testing.T) {
	const writers = 16

	t.Run("stale version update", func(t *testing.T) {
		repo := setupFileRepo(t)
		createEntry(t, repo, "e1", "Elena")

		ok, conflicts := raceWrites(t, writers, func(i int) error {
			e, _ := newEntry("e1", "Elena")
			e.Version = 2
			e.Description = fmt.Sprintf("writer %d", i)
			return repo.UpdateEntry(context.Background(), e, 1, &entities.CanonVersion{
				ID:         fmt.Sprintf("e1-v2-%d", i),
				EntryID:    "e1",
				Version:    2,
				Snapshot:   e.Snapshot(),
				ChangeType: entities.ChangeManualEdit,
				CreatedAt:  testTime,
			})
		})

		assert.Equal(t, 1, ok)
		assert.Equal(t, writers-1, conflicts)

		versions, err := repo.FindVersionsByEntry(context.Background(), "e1")
		require.NoError(t, err)
		assert.Len(t, versions, 2)
	})

	t.Run("same slug create", func(t *testing.T) {
		repo := setupFileRepo(t)

		ok, conflicts := raceWrites(t, writers, func(i int) error {
			e, v := newEntry(fmt.Sprintf("e%d", i), "Elena")
			return repo.CreateEntry(context.Background(), e, v)
		})

		assert.Equal(t, 1, ok)
		assert.Equal(t, writers-1, conflicts)

		list, err := repo.ListEntries(context.Background(), "p1", "")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "canon.db?"+connPragmas, dsn("canon.db"))
	assert.Equal(t, "file:canon.db?mode=rwc&"+connPragmas, dsn("file:canon.db?mode=rwc"))
}

func TestNewRepository_ConnectionPragmas(t *testing.T) {
	repo := setupFileRepo(t)
	ctx := context.Background()

	// Hold one connection so the next query opens another.
	held, err := repo.db.Conn(ctx)
	require.NoError(t, err)
	defer held.Close()

	var fk, timeout int
	require.NoError(t, repo.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	require.NoError(t, repo.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 5000, timeout)
}

func TestRepository_ListDeletedSlugs(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	e, v := newEntry("e1", "Elena")
	e.TimelineID = "t-fork"
	require.NoError(t, repo.CreateEntry(ctx, e, v))
	createEntry(t, repo, "e2", "Marco")

	slugs, err := repo.ListDeletedSlugs(ctx, "p1", "t-fork")
	require.NoError(t, err)
	assert.Empty(t, slugs)

	require.NoError(t, repo.DeactivateEntry(ctx, "e1", testTime))
	require.NoError(t, repo.DeactivateEntry(ctx, "e2", testTime))

	slugs, err = repo.ListDeletedSlugs(ctx, "p1", "t-fork")
	require.NoError(t, err)
	assert.Equal(t, []string{"elena"}, slugs)

	slugs, err = repo.ListDeletedSlugs(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"marco"}, slugs)
}
