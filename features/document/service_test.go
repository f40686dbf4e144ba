package document

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"rulewise/apps/backend/internal/ingest"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, doc *Document) error {
	args := m.Called(ctx, doc)
	if args.Error(0) == nil {
		doc.ID = "doc-1"
		doc.CreatedAt = time.Now()
		doc.UpdatedAt = doc.CreatedAt
	}
	return args.Error(0)
}

func (m *MockRepository) Get(ctx context.Context, id string) (*Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) ListByDomain(ctx context.Context, domainID string) ([]Document, error) {
	args := m.Called(ctx, domainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]int), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Cancel(docID string) bool {
	args := m.Called(docID)
	return args.Bool(0)
}

func (m *MockPipeline) Active(docID string) bool {
	args := m.Called(docID)
	return args.Bool(0)
}

type MockVectorCleaner struct {
	mock.Mock
}

func (m *MockVectorCleaner) DeleteDocument(ctx context.Context, docID string) error {
	args := m.Called(ctx, docID)
	return args.Error(0)
}

func newTestServiceMocks() (*Service, *MockRepository, *MockPublisher, *MockPipeline, *MockVectorCleaner) {
	repo := new(MockRepository)
	pub := new(MockPublisher)
	pipeline := new(MockPipeline)
	vectors := new(MockVectorCleaner)
	return NewService(repo, pub, pipeline, vectors), repo, pub, pipeline, vectors
}

func TestSubmit_Success(t *testing.T) {
	svc, repo, pub, _, _ := newTestServiceMocks()

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", ingest.TaskTopic, mock.Anything).Return(nil)

	doc, err := svc.Submit(context.Background(), "catan", "uploads/rules.pdf", "Each player draws five cards.")

	assert.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, StatusPending, doc.Status)

	// The scheduled task carries the full extracted text.
	pub.AssertCalled(t, "Publish", ingest.TaskTopic, mock.MatchedBy(func(body []byte) bool {
		var payload ingest.TaskPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return false
		}
		return payload.DocumentID == "doc-1" && payload.DomainID == "catan" &&
			payload.Text == "Each player draws five cards."
	}))
}

func TestSubmit_Validation(t *testing.T) {
	svc, repo, pub, _, _ := newTestServiceMocks()

	_, err := svc.Submit(context.Background(), "", "", "text")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Submit(context.Background(), "catan", "", "   ")
	assert.ErrorIs(t, err, ErrValidation)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestSubmit_PublishFailure(t *testing.T) {
	svc, repo, pub, _, _ := newTestServiceMocks()

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", ingest.TaskTopic, mock.Anything).Return(errors.New("nsqd unreachable"))

	_, err := svc.Submit(context.Background(), "catan", "", "text")
	assert.Error(t, err)
}

func TestProgress(t *testing.T) {
	svc, repo, _, _, _ := newTestServiceMocks()

	started := time.Now().Add(-10 * time.Second)
	repo.On("Get", mock.Anything, "doc-1").Return(&Document{
		ID:        "doc-1",
		Status:    StatusChunking,
		Progress:  40,
		PageCount: 5,
		StartedAt: &started,
	}, nil)

	p, err := svc.Progress(context.Background(), "doc-1")

	assert.NoError(t, err)
	assert.Equal(t, "chunking", p.Step)
	assert.Equal(t, 40, p.Percent)
	assert.Equal(t, 2, p.PagesProcessed)
}

func TestCancel(t *testing.T) {
	svc, _, _, pipeline, _ := newTestServiceMocks()

	pipeline.On("Cancel", "doc-1").Return(true)
	pipeline.On("Cancel", "doc-2").Return(false)

	assert.True(t, svc.Cancel(context.Background(), "doc-1"))
	assert.False(t, svc.Cancel(context.Background(), "doc-2"))
}

func TestDelete_RejectsActiveRun(t *testing.T) {
	svc, repo, _, pipeline, vectors := newTestServiceMocks()

	pipeline.On("Active", "doc-1").Return(true)

	err := svc.Delete(context.Background(), "doc-1")

	assert.ErrorIs(t, err, ErrActiveRun)
	vectors.AssertNotCalled(t, "DeleteDocument", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDelete_CleansVectorsFirst(t *testing.T) {
	svc, repo, _, pipeline, vectors := newTestServiceMocks()

	pipeline.On("Active", "doc-1").Return(false)
	vectors.On("DeleteDocument", mock.Anything, "doc-1").Return(nil)
	repo.On("Delete", mock.Anything, "doc-1").Return(nil)

	assert.NoError(t, svc.Delete(context.Background(), "doc-1"))
	vectors.AssertCalled(t, "DeleteDocument", mock.Anything, "doc-1")
	repo.AssertCalled(t, "Delete", mock.Anything, "doc-1")
}

func TestDelete_VectorCleanupFailureKeepsRow(t *testing.T) {
	svc, repo, _, pipeline, vectors := newTestServiceMocks()

	pipeline.On("Active", "doc-1").Return(false)
	vectors.On("DeleteDocument", mock.Anything, "doc-1").Return(errors.New("store down"))

	err := svc.Delete(context.Background(), "doc-1")

	assert.Error(t, err)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestListByDomain_RequiresDomain(t *testing.T) {
	svc, repo, _, _, _ := newTestServiceMocks()

	_, err := svc.ListByDomain(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
	repo.AssertNotCalled(t, "ListByDomain", mock.Anything, mock.Anything)
}
