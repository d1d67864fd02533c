// Package qdrant provides a CanonIndex implementation using Qdrant.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
)

// Payload keys stored on every point.
const (
	fieldEntryID    = "entry_id"
	fieldProjectID  = "project_id"
	fieldTimelineID = "timeline_id"
	fieldKind       = "kind"
	fieldName       = "name"
)

// Repository implements ports.CanonIndex and ports.CollectionManager using Qdrant.
type Repository struct {
	client     pb.CollectionsClient
	points     pb.PointsClient
	collection string
	conn       *grpc.ClientConn
}

// NewRepository creates a new Qdrant repository.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Repository{
		client:     pb.NewCollectionsClient(conn),
		points:     pb.NewPointsClient(conn),
		collection: cfg.Collection,
		conn:       conn,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes if it doesn't exist.
func (r *Repository) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	_, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err == nil {
		return nil
	}

	_, err = r.client.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	for _, field := range []string{fieldProjectID, fieldKind} {
		_, err := r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collection,
			FieldName:      field,
			FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
			Wait:           pb.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("creating %s index: %w", field, err)
		}
	}

	return nil
}

// DeleteCollection removes the collection and all its points.
func (r *Repository) DeleteCollection(ctx context.Context) error {
	_, err := r.client.Delete(ctx, &pb.DeleteCollection{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// Upsert stores or replaces an entry's embedding. The point id is the entry id.
func (r *Repository) Upsert(ctx context.Context, entry ports.IndexedEntry) error {
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points:         []*pb.PointStruct{entryToPoint(entry)},
	})
	if err != nil {
		return fmt.Errorf("upserting point: %w", err)
	}

	return nil
}

// Delete removes an entry's point.
func (r *Repository) Delete(ctx context.Context, entryID string) error {
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{pointID(entryID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point: %w", err)
	}

	return nil
}

// Search performs a semantic search narrowed by filter.
func (r *Repository) Search(ctx context.Context, embedding []float32, filter ports.IndexFilter, limit int) ([]ports.IndexHit, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter:         buildFilter(filter),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	return scoredPointsToHits(resp.Result), nil
}

func pointID(entryID string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: entryID}}
}

func entryToPoint(entry ports.IndexedEntry) *pb.PointStruct {
	return &pb.PointStruct{
		Id: pointID(entry.EntryID),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{
					Data: entry.Embedding,
				},
			},
		},
		Payload: map[string]*pb.Value{
			fieldEntryID:    stringValue(entry.EntryID),
			fieldProjectID:  stringValue(entry.ProjectID),
			fieldTimelineID: stringValue(entry.TimelineID),
			fieldKind:       stringValue(string(entry.Kind)),
			fieldName:       stringValue(entry.Name),
		},
	}
}

// buildFilter returns nil when the filter matches everything.
func buildFilter(filter ports.IndexFilter) *pb.Filter {
	var must []*pb.Condition
	if filter.ProjectID != "" {
		must = append(must, keywordCondition(fieldProjectID, filter.ProjectID))
	}
	if filter.Kind != "" {
		must = append(must, keywordCondition(fieldKind, string(filter.Kind)))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{
						Keyword: value,
					},
				},
			},
		},
	}
}

func scoredPointsToHits(points []*pb.ScoredPoint) []ports.IndexHit {
	hits := make([]ports.IndexHit, 0, len(points))
	for _, point := range points {
		id := getStringValue(point.Payload, fieldEntryID)
		if id == "" {
			id = point.Id.GetUuid()
		}
		if id == "" {
			continue
		}
		hits = append(hits, ports.IndexHit{EntryID: id, Score: point.Score})
	}
	return hits
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

var (
	_ ports.CanonIndex        = (*Repository)(nil)
	_ ports.CollectionManager = (*Repository)(nil)
)
