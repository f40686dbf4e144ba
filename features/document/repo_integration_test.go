package document_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulewise/apps/backend/features/document"
	"rulewise/apps/backend/internal/testutils"
)

func TestDocumentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := document.NewPostgresRepo(s.DB)
	ctx := context.Background()

	// Create
	doc := &document.Document{
		DomainID:   "catan",
		StorageRef: "uploads/rules.pdf",
		Status:     document.StatusPending,
	}
	err := repo.Create(ctx, doc)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	// Get
	retrieved, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "catan", retrieved.DomainID)
	assert.Equal(t, document.StatusPending, retrieved.Status)
	assert.Nil(t, retrieved.StartedAt)

	// Full pipeline transition sequence
	require.NoError(t, repo.StartRun(ctx, doc.ID))
	require.NoError(t, repo.UpdateProgress(ctx, doc.ID, document.StatusExtracting, 20))
	require.NoError(t, repo.SetExtracted(ctx, doc.ID, 12, 24000))
	require.NoError(t, repo.UpdateProgress(ctx, doc.ID, document.StatusChunking, 40))
	require.NoError(t, repo.UpdateProgress(ctx, doc.ID, document.StatusEmbedding, 60))
	require.NoError(t, repo.UpdateProgress(ctx, doc.ID, document.StatusIndexing, 80))
	require.NoError(t, repo.MarkCompleted(ctx, doc.ID))

	completed, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, completed.Status)
	assert.Equal(t, 100, completed.Progress)
	assert.Equal(t, 12, completed.PageCount)
	assert.Equal(t, 24000, completed.CharCount)
	assert.NotNil(t, completed.StartedAt)
	assert.NotNil(t, completed.CompletedAt)
	assert.True(t, completed.Terminal())

	// Failure path on a second document
	failedDoc := &document.Document{DomainID: "catan", Status: document.StatusPending}
	require.NoError(t, repo.Create(ctx, failedDoc))
	require.NoError(t, repo.StartRun(ctx, failedDoc.ID))
	require.NoError(t, repo.MarkFailed(ctx, failedDoc.ID, "ingestion cancelled"))

	failed, err := repo.Get(ctx, failedDoc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, failed.Status)
	assert.Equal(t, "ingestion cancelled", failed.Error)

	// Counts and listing
	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[document.StatusCompleted])
	assert.Equal(t, 1, counts[document.StatusFailed])

	docs, err := repo.ListByDomain(ctx, "catan")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// Delete
	require.NoError(t, repo.Delete(ctx, failedDoc.ID))
	_, err = repo.Get(ctx, failedDoc.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
