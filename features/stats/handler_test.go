package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockDocumentRepo struct {
	mock.Mock
}

func (m *MockDocumentRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) CountChunks(ctx context.Context, domainID string) (int, error) {
	args := m.Called(ctx, domainID)
	return args.Int(0), args.Error(1)
}

func TestGetStats(t *testing.T) {
	repo := new(MockDocumentRepo)
	store := new(MockVectorStore)
	h := NewHandler(repo, store)

	repo.On("CountByStatus", mock.Anything).Return(map[string]int{"completed": 3, "failed": 1}, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	h.GetStats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data StatsResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]int{"completed": 3, "failed": 1}, resp.Data.DocumentsByStatus)
	assert.Nil(t, resp.Data.IndexedChunks)
	store.AssertNotCalled(t, "CountChunks", mock.Anything, mock.Anything)
}

func TestGetStats_WithDomain(t *testing.T) {
	repo := new(MockDocumentRepo)
	store := new(MockVectorStore)
	h := NewHandler(repo, store)

	repo.On("CountByStatus", mock.Anything).Return(map[string]int{"completed": 2}, nil)
	store.On("CountChunks", mock.Anything, "catan").Return(128, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats?domain_id=catan", nil)
	rec := httptest.NewRecorder()

	h.GetStats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data StatsResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Data.IndexedChunks)
	assert.Equal(t, 128, *resp.Data.IndexedChunks)
}

func TestGetStats_RepoFailure(t *testing.T) {
	repo := new(MockDocumentRepo)
	store := new(MockVectorStore)
	h := NewHandler(repo, store)

	repo.On("CountByStatus", mock.Anything).Return(nil, errors.New("db down"))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	h.GetStats(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
