package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "rulewise/apps/backend/internal/adapter/weaviate"
	"rulewise/apps/backend/internal/text"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	assert.NoError(t, err)
	return client, ts
}

func TestStore_IndexChunks(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		objects := body["objects"].([]interface{})
		assert.Len(t, objects, 2)

		first := objects[0].(map[string]interface{})
		assert.Equal(t, "RuleChunk", first["class"])
		props := first["properties"].(map[string]interface{})
		assert.Equal(t, "chunk one", props["content"])
		assert.Equal(t, "catan", props["domainId"])
		assert.Equal(t, "doc-1", props["docId"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]interface{}{
			map[string]interface{}{"result": map[string]interface{}{}},
			map[string]interface{}{"result": map[string]interface{}{}},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	chunks := []text.Chunk{
		{Content: "chunk one", Index: 0, Page: 1},
		{Content: "chunk two", Index: 1, Page: 1},
	}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	indexed, err := store.IndexChunks(context.Background(), "catan", "doc-1", chunks, vectors)
	assert.NoError(t, err)
	assert.Equal(t, 2, indexed)
}

func TestStore_IndexChunks_CountMismatch(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"version": "1.19.0"}`))
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	_, err := store.IndexChunks(context.Background(), "catan", "doc-1",
		[]text.Chunk{{Content: "one"}}, [][]float32{})
	assert.Error(t, err)
}

func TestStore_Search(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"RuleChunk": []interface{}{
						map[string]interface{}{
							"content":    "Each player draws five cards.",
							"docId":      "doc-1",
							"chunkIndex": 7.0,
							"page":       3.0,
							"_additional": map[string]interface{}{
								"certainty": 0.91,
							},
						},
						map[string]interface{}{
							"content":    "On your turn you may play one card.",
							"docId":      "doc-1",
							"chunkIndex": 8.0,
							"page":       4.0,
							"_additional": map[string]interface{}{
								"certainty": "0.85",
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	hits, err := store.Search(context.Background(), "catan", []float32{0.1, 0.2}, 3)

	assert.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, "Each player draws five cards.", hits[0].Content)
	assert.Equal(t, 3, hits[0].Page)
	assert.Equal(t, 7, hits[0].ChunkIndex)
	assert.Equal(t, float32(0.91), hits[0].Score)
	// String certainty is parsed too.
	assert.Equal(t, float32(0.85), hits[1].Score)
}

func TestStore_Search_Empty(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"RuleChunk": []interface{}{},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	hits, err := store.Search(context.Background(), "catan", []float32{0.1}, 3)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_DeleteDocument(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "DELETE", r.Method)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	assert.NoError(t, store.DeleteDocument(context.Background(), "doc-1"))
}

func TestStore_CountChunks(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{
					"RuleChunk": []interface{}{
						map[string]interface{}{
							"meta": map[string]interface{}{
								"count": 42.0,
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	count, err := store.CountChunks(context.Background(), "catan")
	assert.NoError(t, err)
	assert.Equal(t, 42, count)
}
