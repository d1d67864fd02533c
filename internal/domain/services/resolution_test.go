package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/mocks"
)

func newResolutionEngine(e *testEngine) *ResolutionEngine {
	return NewResolutionEngine(e.store, e.canon, e.timelines, nil)
}

// seedElena creates the hard-locked Elena entry at version 3.
func seedElena(t *testing.T, e *testEngine) *entities.CanonEntry {
	t.Helper()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, "")
	for i := 0; i < 2; i++ {
		_, err := e.canon.UpdateEntry(context.Background(), elena.ID, EntryPatch{Description: strPtr("rev")}, UpdateMeta{})
		require.NoError(t, err)
	}
	locked, err := e.canon.LockEntry(context.Background(), elena.ID, entities.LockHard, "")
	require.NoError(t, err)
	require.Equal(t, 3, locked.Version)
	return locked
}

func TestResolution_ElenaScenario(t *testing.T) {
	e := newTestEngine()
	elena := seedElena(t, e)

	cc, err := e.loader.Load(context.Background(), testProject, "")
	require.NoError(t, err)
	gen := &mocks.Generator{Response: `{"conflicts": [{"kind": "character", "severity": "error",
		"description": "Elena's eye color is brown in canon", "conflictingEntryId": "` + elena.ID + `",
		"conflictingEntryName": "Elena", "generatedText": "blue eyes", "offsetStart": 8, "offsetEnd": 17}]}`}
	conflicts := NewConflictDetector(gen, nil, time.Second).Detect(context.Background(), elenaText, cc, entities.EnforcementStrict)
	require.Len(t, conflicts, 1)
	conflict := conflicts[0]
	assert.Equal(t, entities.ConflictCharacter, conflict.Kind)
	assert.Equal(t, entities.SeverityError, conflict.Severity)
	assert.Equal(t, "Elena", conflict.EntryName)
	assert.Contains(t, conflict.Description, "eye")

	engine := newResolutionEngine(e)

	// update_canon cannot bypass a hard lock.
	_, err = engine.Resolve(context.Background(), ResolutionRequest{
		Conflict:  conflict,
		Kind:      entities.ResolutionUpdateCanon,
		Payload:   &ResolutionPayload{Patch: EntryPatch{Attributes: map[string]any{"eyeColor": "blue"}}},
		ProjectID: testProject,
	})
	assert.ErrorIs(t, err, canonerr.ErrLocked)
	current, err := e.canon.GetEntry(context.Background(), elena.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Version)

	// keep_canon changes nothing.
	out, err := engine.Resolve(context.Background(), ResolutionRequest{Conflict: conflict, Kind: entities.ResolutionKeepCanon, ProjectID: testProject})
	require.NoError(t, err)
	assert.Nil(t, out.Entry)
	current, err = e.canon.GetEntry(context.Background(), elena.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Version)

	// fork_timeline branches with a fresh copy.
	out, err = engine.Resolve(context.Background(), ResolutionRequest{
		Conflict:  conflict,
		Kind:      entities.ResolutionForkTimeline,
		Payload:   &ResolutionPayload{TimelineName: "Blue-eyed AU", Patch: EntryPatch{Attributes: map[string]any{"eyeColor": "blue"}}},
		ProjectID: testProject,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Timeline)
	require.NotNil(t, out.Entry)
	assert.Equal(t, "Blue-eyed AU", out.Timeline.Name)
	assert.False(t, out.Timeline.IsMain)
	assert.NotEqual(t, elena.ID, out.Entry.ID)
	assert.Equal(t, out.Timeline.ID, out.Entry.TimelineID)
	assert.Equal(t, 1, out.Entry.Version)
	assert.Equal(t, entities.LockUnlocked, out.Entry.LockState)
	assert.Equal(t, "blue", out.Entry.Payload["eyeColor"])

	original, err := e.canon.GetEntry(context.Background(), elena.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, original.Version)
	assert.Equal(t, entities.LockHard, original.LockState)
	assert.Equal(t, "brown", original.Payload["eyeColor"])

	// Fork isolation: each timeline sees its own Elena.
	forkCtx, err := e.loader.Load(context.Background(), testProject, out.Timeline.ID)
	require.NoError(t, err)
	forked, ok := forkCtx.EntryByName("Elena")
	require.True(t, ok)
	assert.Equal(t, "blue", forked.Payload["eyeColor"])
	mainCtx, err := e.loader.Load(context.Background(), testProject, "")
	require.NoError(t, err)
	onMain, ok := mainCtx.EntryByName("Elena")
	require.True(t, ok)
	assert.Equal(t, "brown", onMain.Payload["eyeColor"])

	resolved, err := e.store.FindAuditLogByAction(context.Background(), entities.ActionConflictResolved, 0)
	require.NoError(t, err)
	assert.Len(t, resolved, 2, "keep and fork succeeded")
}

func TestResolution_UpdateCanon(t *testing.T) {
	e := newTestEngine()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, entities.LockSoft)
	engine := newResolutionEngine(e)
	conflict := entities.CanonConflict{Kind: entities.ConflictCharacter, Severity: entities.SeverityError, EntryID: elena.ID, Description: "eyes"}

	out, err := engine.Resolve(context.Background(), ResolutionRequest{
		Conflict: conflict,
		Kind:     entities.ResolutionUpdateCanon,
		Payload:  &ResolutionPayload{Patch: EntryPatch{Attributes: map[string]any{"eyeColor": "blue"}}},
		Actor:    "alice",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, out.Entry.Version)
	assert.Equal(t, "blue", out.Entry.Payload["eyeColor"])
	v := e.store.Versions[elena.ID][1]
	assert.Equal(t, entities.ChangeConflictResolution, v.ChangeType)
	assert.Equal(t, "conflict resolution: eyes", v.Reason)
	assert.Contains(t, e.store.AuditActions(), entities.ActionSoftLockOverridden)
}

func TestResolution_Errors(t *testing.T) {
	e := newTestEngine()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", nil, "")
	engine := newResolutionEngine(e)
	conflict := entities.CanonConflict{EntryID: elena.ID}

	tests := []struct {
		name    string
		req     ResolutionRequest
		wantErr error
	}{
		{
			name:    "update without payload",
			req:     ResolutionRequest{Conflict: conflict, Kind: entities.ResolutionUpdateCanon},
			wantErr: canonerr.ErrInvalidArgument,
		},
		{
			name:    "update with empty patch",
			req:     ResolutionRequest{Conflict: conflict, Kind: entities.ResolutionUpdateCanon, Payload: &ResolutionPayload{}},
			wantErr: canonerr.ErrInvalidArgument,
		},
		{
			name: "update missing entry",
			req: ResolutionRequest{Conflict: entities.CanonConflict{EntryID: "missing"}, Kind: entities.ResolutionUpdateCanon,
				Payload: &ResolutionPayload{Patch: EntryPatch{Description: strPtr("x")}}},
			wantErr: canonerr.ErrNotFound,
		},
		{
			name:    "fork missing entry",
			req:     ResolutionRequest{Conflict: entities.CanonConflict{EntryID: "missing"}, Kind: entities.ResolutionForkTimeline},
			wantErr: canonerr.ErrNotFound,
		},
		{
			name:    "fork entry of another project",
			req:     ResolutionRequest{Conflict: conflict, Kind: entities.ResolutionForkTimeline, ProjectID: "other"},
			wantErr: canonerr.ErrNotFound,
		},
		{
			name:    "unknown kind",
			req:     ResolutionRequest{Conflict: conflict, Kind: "ignore"},
			wantErr: canonerr.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Resolve(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.NotContains(t, e.store.AuditActions(), entities.ActionConflictResolved)
}

func TestResolution_ForkDefaults(t *testing.T) {
	e := newTestEngine()
	battle := createEntry(t, e.canon, entities.KindEvent, "Battle of the Harbor", nil, entities.LockSoft)
	engine := newResolutionEngine(e)
	req := ResolutionRequest{Conflict: entities.CanonConflict{EntryID: battle.ID}, Kind: entities.ResolutionForkTimeline}

	first, err := engine.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "What-if: Battle of the Harbor", first.Timeline.Name)
	assert.Equal(t, battle.ID, first.Timeline.ForkPointEntryID)
	assert.Equal(t, entities.LockUnlocked, first.Entry.LockState)

	// Forks are not idempotent.
	second, err := engine.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Timeline.ID, second.Timeline.ID)
	assert.Equal(t, 2, e.store.CreateForkCallCount)
}

func TestResolution_ForkStoreFailure(t *testing.T) {
	e := newTestEngine()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", nil, "")
	e.store.CreateForkErr = errors.New("disk full")
	engine := newResolutionEngine(e)

	_, err := engine.Resolve(context.Background(), ResolutionRequest{Conflict: entities.CanonConflict{EntryID: elena.ID}, Kind: entities.ResolutionForkTimeline})

	require.Error(t, err)
	timelines, err := e.timelines.List(context.Background(), testProject)
	require.NoError(t, err)
	for _, tl := range timelines {
		assert.True(t, tl.IsMain, "no fork timeline is left behind")
	}
}

func TestResolution_ResolveBatch(t *testing.T) {
	e := newTestEngine()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, entities.LockHard)
	harbor := createEntry(t, e.canon, entities.KindLocation, "Harbor", nil, "")
	engine := newResolutionEngine(e)

	outcomes := engine.ResolveBatch(context.Background(), []ResolutionRequest{
		{Conflict: entities.CanonConflict{EntryID: elena.ID}, Kind: entities.ResolutionUpdateCanon,
			Payload: &ResolutionPayload{Patch: EntryPatch{Attributes: map[string]any{"eyeColor": "blue"}}}},
		{Conflict: entities.CanonConflict{EntryID: harbor.ID}, Kind: entities.ResolutionUpdateCanon,
			Payload: &ResolutionPayload{Patch: EntryPatch{Description: strPtr("stormy")}}},
		{Conflict: entities.CanonConflict{EntryID: elena.ID}, Kind: entities.ResolutionKeepCanon},
	})

	require.Len(t, outcomes, 3)
	assert.ErrorIs(t, outcomes[0].Err, canonerr.ErrLocked)
	assert.NotEmpty(t, outcomes[0].Error)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, 2, outcomes[1].Entry.Version)
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, entities.ResolutionKeepCanon, outcomes[2].Kind)
}

func TestResolution_ForkParentage(t *testing.T) {
	e := newTestEngine()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, "")
	engine := newResolutionEngine(e)

	mainTL, err := e.timelines.EnsureMain(context.Background(), testProject)
	require.NoError(t, err)

	first, err := engine.Resolve(context.Background(), ResolutionRequest{
		Conflict: entities.CanonConflict{EntryID: elena.ID}, Kind: entities.ResolutionForkTimeline,
	})
	require.NoError(t, err)
	require.Equal(t, mainTL.ID, first.Timeline.ParentID)
	forkedCopy := first.Entry

	tests := []struct {
		name       string
		fromEntry  bool
		wantParent string
	}{
		{name: "entry on a fork still branches from main", wantParent: mainTL.ID},
		{name: "opt-in branches from the entry's timeline", fromEntry: true, wantParent: first.Timeline.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := engine.Resolve(context.Background(), ResolutionRequest{
				Conflict: entities.CanonConflict{EntryID: forkedCopy.ID},
				Kind:     entities.ResolutionForkTimeline,
				Payload:  &ResolutionPayload{FromEntryTimeline: tt.fromEntry},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantParent, out.Timeline.ParentID)
			assert.False(t, out.Timeline.IsMain)
		})
	}
}
