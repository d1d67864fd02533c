package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/mocks"
)

func TestTimelineManager_EnsureMain(t *testing.T) {
	store := mocks.NewCanonStore()
	mgr := NewTimelineManager(store, nil)

	main, err := mgr.EnsureMain(context.Background(), testProject)
	require.NoError(t, err)
	assert.True(t, main.IsMain)
	assert.Equal(t, entities.MainTimelineName, main.Name)

	again, err := mgr.EnsureMain(context.Background(), testProject)
	require.NoError(t, err)
	assert.Equal(t, main.ID, again.ID)
	assert.Len(t, store.Timelines, 1)

	_, err = mgr.EnsureMain(context.Background(), "")
	assert.ErrorIs(t, err, canonerr.ErrValidation)
}

func TestTimelineManager_EnsureMain_RaceReadsWinner(t *testing.T) {
	store := mocks.NewCanonStore()
	store.SaveTimelineErr = canonerr.Conflict("", "main timeline exists", nil)
	winner := &entities.Timeline{ID: "winner", ProjectID: testProject, Name: "Main", IsMain: true}
	mgr := NewTimelineManager(&raceStore{CanonStore: store, winner: winner}, nil)

	main, err := mgr.EnsureMain(context.Background(), testProject)
	require.NoError(t, err)
	assert.Equal(t, "winner", main.ID)
}

// raceStore inserts the winning main timeline when a save is attempted.
type raceStore struct {
	*mocks.CanonStore
	winner *entities.Timeline
}

func (r *raceStore) SaveTimeline(ctx context.Context, tl *entities.Timeline) error {
	r.CanonStore.Timelines[r.winner.ID] = r.winner
	return r.CanonStore.SaveTimeline(ctx, tl)
}

func TestTimelineManager_CreateFork(t *testing.T) {
	store := mocks.NewCanonStore()
	mgr := NewTimelineManager(store, nil)
	svc := NewCanonService(store, nil)
	battle := createEntry(t, svc, entities.KindEvent, "Battle of the Harbor", nil, "")
	elena := createEntry(t, svc, entities.KindCharacter, "Elena", nil, "")

	fork, err := mgr.CreateFork(context.Background(), testProject, " What if we lost ", "", battle.ID)
	require.NoError(t, err)
	assert.False(t, fork.IsMain)
	assert.Equal(t, "What if we lost", fork.Name)
	assert.Equal(t, battle.ID, fork.ForkPointEntryID)

	main, err := mgr.EnsureMain(context.Background(), testProject)
	require.NoError(t, err)
	assert.Equal(t, main.ID, fork.ParentID)
	assert.Contains(t, store.AuditActions(), entities.ActionTimelineForked)

	tests := []struct {
		name      string
		forkPoint string
		tlName    string
	}{
		{name: "fork point not an event", forkPoint: elena.ID, tlName: "x"},
		{name: "fork point missing", forkPoint: "missing", tlName: "x"},
		{name: "empty name", tlName: "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.CreateFork(context.Background(), testProject, tt.tlName, "", tt.forkPoint)
			assert.ErrorIs(t, err, canonerr.ErrValidation)
		})
	}
}

func TestTimelineManager_CreateForkFrom_Lineage(t *testing.T) {
	store := mocks.NewCanonStore()
	mgr := NewTimelineManager(store, nil)

	child, err := mgr.CreateFork(context.Background(), testProject, "Child", "", "")
	require.NoError(t, err)
	grandchild, err := mgr.CreateForkFrom(context.Background(), testProject, child.ID, "Grandchild", "", "")
	require.NoError(t, err)

	lineage, err := mgr.Lineage(context.Background(), grandchild)
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	assert.True(t, lineage[0].IsMain)
	assert.Equal(t, child.ID, lineage[1].ID)
	assert.Equal(t, grandchild.ID, lineage[2].ID)

	_, err = mgr.CreateForkFrom(context.Background(), "other", child.ID, "Stray", "", "")
	assert.ErrorIs(t, err, canonerr.ErrValidation, "parent in another project")
}

func TestTimelineManager_Lineage_Invalid(t *testing.T) {
	store := mocks.NewCanonStore()
	mgr := NewTimelineManager(store, nil)
	store.Timelines["a"] = &entities.Timeline{ID: "a", ProjectID: testProject, ParentID: "b"}
	store.Timelines["b"] = &entities.Timeline{ID: "b", ProjectID: testProject, ParentID: "a"}
	store.Timelines["orphan"] = &entities.Timeline{ID: "orphan", ProjectID: testProject}
	store.Timelines["dangling"] = &entities.Timeline{ID: "dangling", ProjectID: testProject, ParentID: "gone"}

	for _, id := range []string{"a", "orphan", "dangling"} {
		t.Run(id, func(t *testing.T) {
			_, err := mgr.Lineage(context.Background(), store.Timelines[id])
			assert.ErrorIs(t, err, canonerr.ErrValidation)
		})
	}
}

func TestTimelineManager_ResolveActiveTimeline(t *testing.T) {
	store := mocks.NewCanonStore()
	mgr := NewTimelineManager(store, nil)
	fork, err := mgr.CreateFork(context.Background(), testProject, "Alt", "", "")
	require.NoError(t, err)

	main, err := mgr.ResolveActiveTimeline(context.Background(), testProject, "")
	require.NoError(t, err)
	assert.True(t, main.IsMain)

	got, err := mgr.ResolveActiveTimeline(context.Background(), testProject, fork.ID)
	require.NoError(t, err)
	assert.Equal(t, fork.ID, got.ID)

	_, err = mgr.ResolveActiveTimeline(context.Background(), testProject, "missing")
	assert.ErrorIs(t, err, canonerr.ErrNotFound)

	_, err = mgr.ResolveActiveTimeline(context.Background(), "other", fork.ID)
	assert.ErrorIs(t, err, canonerr.ErrNotFound)

	list, err := mgr.List(context.Background(), testProject)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsMain)
}
