package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patient-idv/internal/domain"
)

// --- mocks ---

type mockRemover struct{ mock.Mock }

func (m *mockRemover) Remove(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueCleanup}, nil
}

func (f *fakeClient) Close() error { return nil }

// --- tests ---

func TestBroker_EnqueueDelete(t *testing.T) {
	fc := &fakeClient{}
	b := &Broker{client: fc}

	require.NoError(t, b.EnqueueDelete(context.Background(), "documents/r1/id_x.png"))
	require.Len(t, fc.tasks, 1)
	assert.Equal(t, TaskDeleteDocument, fc.tasks[0].Type())

	var p DeleteDocumentPayload
	require.NoError(t, json.Unmarshal(fc.tasks[0].Payload(), &p))
	assert.Equal(t, "documents/r1/id_x.png", p.Key)
}

func TestBroker_EnqueueFailure(t *testing.T) {
	b := &Broker{client: &fakeClient{err: errors.New("redis down")}}
	assert.Error(t, b.EnqueueDelete(context.Background(), "documents/r1/x"))
}

func TestHandleDeleteDocument(t *testing.T) {
	docs := &mockRemover{}
	docs.On("Remove", mock.Anything, "documents/r1/x").Return(nil)
	payload, _ := json.Marshal(DeleteDocumentPayload{Key: "documents/r1/x"})

	err := HandleDeleteDocument(docs)(context.Background(), asynq.NewTask(TaskDeleteDocument, payload))
	assert.NoError(t, err)
	docs.AssertExpectations(t)
}

func TestHandleDeleteDocument_RetriesStoreFailure(t *testing.T) {
	docs := &mockRemover{}
	docs.On("Remove", mock.Anything, mock.Anything).Return(domain.ErrUnavailable)
	payload, _ := json.Marshal(DeleteDocumentPayload{Key: "documents/r1/x"})

	err := HandleDeleteDocument(docs)(context.Background(), asynq.NewTask(TaskDeleteDocument, payload))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleDeleteDocument_BadPayloadSkipsRetry(t *testing.T) {
	docs := &mockRemover{}
	err := HandleDeleteDocument(docs)(context.Background(), asynq.NewTask(TaskDeleteDocument, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	docs.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestRedisOpt(t *testing.T) {
	_, err := RedisOpt("redis://localhost:6379/0")
	assert.NoError(t, err)
	_, err = RedisOpt("http://nope")
	assert.Error(t, err)
}
