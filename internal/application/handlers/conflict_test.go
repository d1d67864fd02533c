package handlers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/mocks"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/services"
)

const elenaText = "Elena's blue eyes sparkled."

func elenaConflictJSON(entryID string) string {
	return fmt.Sprintf(`{"conflicts": [{
		"kind": "character",
		"severity": "error",
		"description": "Elena's eyes are brown in canon",
		"conflictingEntryId": %q,
		"conflictingEntryName": "Elena",
		"suggestedResolution": "Change blue to brown",
		"generatedText": "blue eyes",
		"offsetStart": 8,
		"offsetEnd": 17
	}]}`, entryID)
}

func newConflictHandler(f *fixture, gen *mocks.Generator, level entities.EnforcementLevel) *ConflictHandler {
	detector := services.NewConflictDetector(gen, nil, time.Second)
	engine := services.NewResolutionEngine(f.store, f.canon, f.timelines, nil)
	return NewConflictHandler(f.loader, detector, engine, level)
}

func TestConflictHandler_HandleContext(t *testing.T) {
	f := newFixture()
	f.create(t, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, entities.LockHard)
	handler := newConflictHandler(f, &mocks.Generator{}, "")

	result, err := handler.HandleContext(t.Context(), testProject, "")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Context.Len())
	assert.True(t, strings.HasPrefix(result.Rendered, "CANON for project p1"))
	assert.Contains(t, result.Rendered, "eyeColor: brown")
	assert.Contains(t, result.Rendered, "LOCKED")
}

func TestConflictHandler_HandleCheck(t *testing.T) {
	f := newFixture()
	elena := f.create(t, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, entities.LockHard)
	gen := &mocks.Generator{Response: elenaConflictJSON(elena.ID)}
	handler := newConflictHandler(f, gen, entities.EnforcementModerate)

	result, err := handler.HandleCheck(t.Context(), CheckRequest{ProjectID: testProject, Text: elenaText})

	require.NoError(t, err)
	assert.Equal(t, entities.EnforcementModerate, result.Level)
	assert.Equal(t, 1, result.EntriesInUse)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, elena.ID, result.Conflicts[0].EntryID)
	assert.Equal(t, entities.Span{Start: 8, End: 17}, result.Conflicts[0].Span)
	assert.Contains(t, gen.LastUserPrompt, "eyeColor: brown")
}

func TestConflictHandler_HandleCheck_Degraded(t *testing.T) {
	f := newFixture()
	f.create(t, entities.KindCharacter, "Elena", nil, "")
	handler := newConflictHandler(f, &mocks.Generator{Err: errors.New("rate limited")}, "")

	result, err := handler.HandleCheck(t.Context(), CheckRequest{ProjectID: testProject, Text: elenaText})

	require.NoError(t, err)
	assert.Equal(t, entities.EnforcementStrict, result.Level)
	assert.NotNil(t, result.Conflicts)
	assert.Empty(t, result.Conflicts)
}

func TestConflictHandler_HandleCheck_UnknownTimeline(t *testing.T) {
	f := newFixture()
	handler := newConflictHandler(f, &mocks.Generator{}, "")

	_, err := handler.HandleCheck(t.Context(), CheckRequest{ProjectID: testProject, TimelineID: "nope", Text: elenaText})

	assert.ErrorIs(t, err, canonerr.ErrNotFound)
}

func TestConflictHandler_HandleResolve(t *testing.T) {
	f := newFixture()
	elena := f.create(t, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, entities.LockHard)
	gen := &mocks.Generator{Response: elenaConflictJSON(elena.ID)}
	handler := newConflictHandler(f, gen, "")

	checked, err := handler.HandleCheck(t.Context(), CheckRequest{ProjectID: testProject, Text: elenaText})
	require.NoError(t, err)
	require.Len(t, checked.Conflicts, 1)
	conflict := checked.Conflicts[0]

	outcomes := handler.HandleResolve(t.Context(), []services.ResolutionRequest{
		{Conflict: conflict, Kind: entities.ResolutionKeepCanon, ProjectID: testProject},
		{Conflict: conflict, Kind: entities.ResolutionUpdateCanon, ProjectID: testProject, Payload: &services.ResolutionPayload{
			Patch: services.EntryPatch{Attributes: map[string]any{"eyeColor": "blue"}},
		}},
		{Conflict: conflict, Kind: entities.ResolutionForkTimeline, ProjectID: testProject, Payload: &services.ResolutionPayload{
			Patch: services.EntryPatch{Attributes: map[string]any{"eyeColor": "blue"}},
		}},
	})

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, canonerr.ErrLocked)
	require.NoError(t, outcomes[2].Err)
	require.NotNil(t, outcomes[2].Timeline)
	assert.Equal(t, "What-if: Elena", outcomes[2].Timeline.Name)
	assert.Equal(t, "blue", outcomes[2].Entry.Payload["eyeColor"])

	canon, err := f.canon.GetEntry(t.Context(), elena.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, canon.Version)
	assert.Equal(t, "brown", canon.Payload["eyeColor"])
}
