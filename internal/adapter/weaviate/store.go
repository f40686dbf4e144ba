package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"rulewise/apps/backend/internal/engine"
	"rulewise/apps/backend/internal/text"
	"rulewise/apps/backend/internal/vector"
)

// Store adapts the shared RuleChunk collection. All operations scope by the
// domainId / docId payload properties rather than per-domain collections.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// IndexChunks upserts one point per chunk, tagged with domain, document and
// ordinal so later searches and deletes can filter on them. Returns the
// number of points accepted by the store.
func (s *Store) IndexChunks(ctx context.Context, domainID, docID string, chunks []text.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"content":    c.Content,
				"domainId":   domainID,
				"docId":      docID,
				"chunkIndex": c.Index,
				"page":       c.Page,
			},
			Vector: vectors[i],
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return indexed, fmt.Errorf("batch index error: %s", r.Result.Errors.Error[0].Message)
		}
		indexed++
	}
	return indexed, nil
}

// Search returns the top-k chunks for the domain by vector similarity, in the
// store's score order.
func (s *Store) Search(ctx context.Context, domainID string, queryVector []float32, limit int) ([]engine.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector)

	where := filters.Where().
		WithPath([]string{"domainId"}).
		WithOperator(filters.Equal).
		WithValueString(domainID)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "docId"},
		{Name: "chunkIndex"},
		{Name: "page"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var hits []engine.Hit
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return hits, nil
	}
	rows, ok := data[vector.ClassName].([]interface{})
	if !ok {
		return hits, nil
	}

	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		hit := engine.Hit{}
		if content, ok := props["content"].(string); ok {
			hit.Content = content
		}
		if docID, ok := props["docId"].(string); ok {
			hit.DocumentID = docID
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			hit.ChunkIndex = int(idx)
		}
		if page, ok := props["page"].(float64); ok {
			hit.Page = int(page)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			// Weaviate returns certainty as float64 or string depending
			// on version.
			if score, ok := additional["certainty"].(float64); ok {
				hit.Score = float32(score)
			} else if score, ok := additional["certainty"].(string); ok {
				var f float64
				fmt.Sscanf(score, "%f", &f)
				hit.Score = float32(f)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteDocument removes every point tagged with docID.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"docId"}).
			WithOperator(filters.Equal).
			WithValueString(docID)).
		Do(ctx)
	return err
}

// CountChunks reports how many points are indexed for a domain.
func (s *Store) CountChunks(ctx context.Context, domainID string) (int, error) {
	where := filters.Where().
		WithPath([]string{"domainId"}).
		WithOperator(filters.Equal).
		WithValueString(domainID)

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithWhere(where).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	data, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := data[vector.ClassName].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	props, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := props["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)
	return int(count), nil
}
