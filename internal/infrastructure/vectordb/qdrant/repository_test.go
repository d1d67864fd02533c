package qdrant

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/entities"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   ports.IndexFilter
		wantKeys []string
	}{
		{name: "empty filter", filter: ports.IndexFilter{}},
		{name: "project only", filter: ports.IndexFilter{ProjectID: "p1"}, wantKeys: []string{fieldProjectID}},
		{
			name:     "project and kind",
			filter:   ports.IndexFilter{ProjectID: "p1", Kind: entities.KindCharacter},
			wantKeys: []string{fieldProjectID, fieldKind},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := buildFilter(tt.filter)
			if len(tt.wantKeys) == 0 {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			require.Len(t, f.Must, len(tt.wantKeys))
			for i, key := range tt.wantKeys {
				assert.Equal(t, key, f.Must[i].GetField().GetKey())
			}
		})
	}
}

func TestEntryToPoint(t *testing.T) {
	point := entryToPoint(ports.IndexedEntry{
		EntryID:    "0b6f1f8e-1b7a-4c36-9d59-6f8f9a2f7a10",
		ProjectID:  "p1",
		TimelineID: "t1",
		Kind:       entities.KindLocation,
		Name:       "Harbor",
		Embedding:  []float32{0.1, 0.2},
	})

	assert.Equal(t, "0b6f1f8e-1b7a-4c36-9d59-6f8f9a2f7a10", point.Id.GetUuid())
	assert.Equal(t, []float32{0.1, 0.2}, point.Vectors.GetVector().GetData())
	assert.Equal(t, "p1", getStringValue(point.Payload, fieldProjectID))
	assert.Equal(t, "t1", getStringValue(point.Payload, fieldTimelineID))
	assert.Equal(t, "location", getStringValue(point.Payload, fieldKind))
	assert.Equal(t, "Harbor", getStringValue(point.Payload, fieldName))
}

func TestScoredPointsToHits(t *testing.T) {
	points := []*pb.ScoredPoint{
		{Id: pointID("a"), Score: 0.9, Payload: map[string]*pb.Value{fieldEntryID: stringValue("a")}},
		{Id: pointID("b"), Score: 0.5},
		{Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 7}}, Score: 0.1},
	}

	hits := scoredPointsToHits(points)

	assert.Equal(t, []ports.IndexHit{{EntryID: "a", Score: 0.9}, {EntryID: "b", Score: 0.5}}, hits)
}

// TestRepository_Integration runs against a live Qdrant when INTEGRATION_TEST=1.
func TestRepository_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "1" {
		t.Skip("set INTEGRATION_TEST=1 to run against Qdrant")
	}

	cfg := config.Default().Qdrant
	cfg.Collection = "canon_test_" + uuid.NewString()[:8]
	repo, err := NewRepository(cfg)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.EnsureCollection(ctx, 3))
	defer func() { _ = repo.DeleteCollection(ctx) }()
	require.NoError(t, repo.EnsureCollection(ctx, 3))

	elena := uuid.NewString()
	harbor := uuid.NewString()
	require.NoError(t, repo.Upsert(ctx, ports.IndexedEntry{
		EntryID: elena, ProjectID: "p1", Kind: entities.KindCharacter, Name: "Elena", Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, repo.Upsert(ctx, ports.IndexedEntry{
		EntryID: harbor, ProjectID: "p1", Kind: entities.KindLocation, Name: "Harbor", Embedding: []float32{0, 1, 0},
	}))

	hits, err := repo.Search(ctx, []float32{1, 0.1, 0}, ports.IndexFilter{ProjectID: "p1"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, elena, hits[0].EntryID)

	hits, err = repo.Search(ctx, []float32{1, 0, 0}, ports.IndexFilter{ProjectID: "p1", Kind: entities.KindLocation}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, harbor, hits[0].EntryID)

	require.NoError(t, repo.Delete(ctx, harbor))
	hits, err = repo.Search(ctx, []float32{0, 1, 0}, ports.IndexFilter{ProjectID: "p1"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, elena, hits[0].EntryID)
}
