package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/mocks"
)

type testEngine struct {
	store     *mocks.CanonStore
	canon     *CanonService
	timelines *TimelineManager
	loader    *ContextLoader
}

func newTestEngine() *testEngine {
	store := mocks.NewCanonStore()
	timelines := NewTimelineManager(store, nil)
	return &testEngine{
		store:     store,
		canon:     NewCanonService(store, nil),
		timelines: timelines,
		loader:    NewContextLoader(store, timelines),
	}
}

func TestContextLoader_Load_Main(t *testing.T) {
	e := newTestEngine()
	createEntry(t, e.canon, entities.KindLocation, "Harbor", nil, "")
	createEntry(t, e.canon, entities.KindCharacter, "Marco", nil, entities.LockSoft)
	createEntry(t, e.canon, entities.KindCharacter, "Elena", nil, entities.LockHard)
	deleted := createEntry(t, e.canon, entities.KindTheme, "Loss", nil, "")
	require.NoError(t, e.canon.DeleteEntry(context.Background(), deleted.ID, ""))

	cc, err := e.loader.Load(context.Background(), testProject, "")
	require.NoError(t, err)

	assert.Equal(t, 3, cc.Len())
	assert.True(t, cc.Timeline().IsMain)
	groups := cc.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, entities.KindCharacter, groups[0].Kind)
	assert.Equal(t, "elena", groups[0].Entries[0].Slug)
	assert.True(t, groups[0].Entries[0].Locked)
	assert.True(t, groups[0].Entries[1].Locked, "soft locks count as locked")
	assert.False(t, groups[1].Entries[0].Locked)

	assert.Empty(t, e.store.Timelines, "loading is a pure read")
	assert.Len(t, e.store.Audit, 5)
}

func TestContextLoader_Load_ForkOverlay(t *testing.T) {
	e := newTestEngine()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, "")
	createEntry(t, e.canon, entities.KindLocation, "Harbor", nil, "")

	fork, err := e.timelines.CreateFork(context.Background(), testProject, "Blue-eyed AU", "", "")
	require.NoError(t, err)
	forked, err := e.canon.CreateEntry(context.Background(), NewEntry{
		ProjectID: testProject, Kind: entities.KindCharacter, Name: "Elena",
		Payload: entities.Payload{"eyeColor": "blue"}, TimelineID: fork.ID,
	})
	require.NoError(t, err)
	other, err := e.timelines.CreateFork(context.Background(), testProject, "Other", "", "")
	require.NoError(t, err)
	_, err = e.canon.CreateEntry(context.Background(), NewEntry{
		ProjectID: testProject, Kind: entities.KindItem, Name: "Compass", TimelineID: other.ID,
	})
	require.NoError(t, err)

	forkCtx, err := e.loader.Load(context.Background(), testProject, fork.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, forkCtx.Len(), "inherits Harbor, overrides Elena, excludes the other branch")
	got, ok := forkCtx.EntryByName("Elena")
	require.True(t, ok)
	assert.Equal(t, forked.ID, got.ID)
	assert.Equal(t, "blue", got.Payload["eyeColor"])

	mainCtx, err := e.loader.Load(context.Background(), testProject, "")
	require.NoError(t, err)
	assert.Equal(t, 2, mainCtx.Len())
	got, ok = mainCtx.EntryByName("Elena")
	require.True(t, ok)
	assert.Equal(t, elena.ID, got.ID)
	_, ok = mainCtx.EntryByName("Compass")
	assert.False(t, ok)
}

func TestContextLoader_Load_ForkDeletionHidesAncestor(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", entities.Payload{"eyeColor": "brown"}, "")
	createEntry(t, e.canon, entities.KindLocation, "Harbor", nil, "")

	fork, err := e.timelines.CreateFork(ctx, testProject, "Exile", "", "")
	require.NoError(t, err)
	forked, err := e.canon.CreateEntry(ctx, NewEntry{
		ProjectID: testProject, Kind: entities.KindCharacter, Name: "Elena", TimelineID: fork.ID,
	})
	require.NoError(t, err)
	nested, err := e.timelines.CreateForkFrom(ctx, testProject, fork.ID, "Exile II", "", "")
	require.NoError(t, err)

	require.NoError(t, e.canon.DeleteEntry(ctx, forked.ID, ""))

	for _, tid := range []string{fork.ID, nested.ID} {
		cc, err := e.loader.Load(ctx, testProject, tid)
		require.NoError(t, err)
		_, ok := cc.EntryByName("Elena")
		assert.False(t, ok, "main's Elena must stay hidden on %s", tid)
		assert.Equal(t, 1, cc.Len())
	}

	mainCtx, err := e.loader.Load(ctx, testProject, "")
	require.NoError(t, err)
	got, ok := mainCtx.EntryByName("Elena")
	require.True(t, ok)
	assert.Equal(t, elena.ID, got.ID)

	// Recreating the slug on the fork takes precedence over the tombstone.
	again, err := e.canon.CreateEntry(ctx, NewEntry{
		ProjectID: testProject, Kind: entities.KindCharacter, Name: "Elena", TimelineID: fork.ID,
	})
	require.NoError(t, err)
	cc, err := e.loader.Load(ctx, testProject, fork.ID)
	require.NoError(t, err)
	got, ok = cc.EntryByName("Elena")
	require.True(t, ok)
	assert.Equal(t, again.ID, got.ID)
}

func TestContextLoader_Load_Errors(t *testing.T) {
	e := newTestEngine()
	fork, err := e.timelines.CreateFork(context.Background(), testProject, "Alt", "", "")
	require.NoError(t, err)

	_, err = e.loader.Load(context.Background(), "", "")
	assert.ErrorIs(t, err, canonerr.ErrInvalidArgument)

	_, err = e.loader.Load(context.Background(), testProject, "missing")
	assert.ErrorIs(t, err, canonerr.ErrNotFound)

	_, err = e.loader.Load(context.Background(), "other", fork.ID)
	assert.ErrorIs(t, err, canonerr.ErrNotFound)
}

func TestRenderContext(t *testing.T) {
	e := newTestEngine()
	elena := createEntry(t, e.canon, entities.KindCharacter, "Elena", entities.Payload{
		"eyeColor": "brown",
		"age":      34,
		"aliases":  []string{"Lena", "El"},
	}, entities.LockHard)
	harbor := createEntry(t, e.canon, entities.KindLocation, "Harbor", nil, "")

	cc, err := e.loader.Load(context.Background(), testProject, "")
	require.NoError(t, err)

	out := RenderContext(cc)
	assert.Contains(t, out, "## character\n- ["+elena.ID+"] Elena (elena) {LOCKED}\n")
	assert.Contains(t, out, "  age: 34\n  aliases: Lena, El\n  eyeColor: brown\n")
	assert.Contains(t, out, "## location\n- ["+harbor.ID+"] Harbor (harbor)\n")
	assert.Less(t, strings.Index(out, "## character"), strings.Index(out, "## location"))
	assert.Equal(t, out, RenderContext(cc), "rendering is deterministic")

	empty := entities.NewCanonContext(testProject, entities.Timeline{Name: "Main", IsMain: true}, nil, timeNow())
	assert.Contains(t, RenderContext(empty), "(no canon entries)")
}

func TestFormatAttribute(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{"brown", "brown"},
		{[]string{"a", "b"}, "a, b"},
		{[]any{"a", 2.5}, "a, 2.5"},
		{float64(34), "34"},
		{true, "true"},
		{map[string]any{"b": 1, "a": "x"}, "{a=x, b=1}"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAttribute(tt.value))
		})
	}
}
