package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKafkaWriter is shared across package test files
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testProducerLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSyncEventProducer_Publish(t *testing.T) {
	logger := testProducerLogger()
	ctx := context.Background()

	t.Run("SuccessfulPublish", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &SyncEventProducer{
			logger: logger,
			writer: mockWriter,
			topic:  "sync_events",
		}

		event := map[string]interface{}{
			"kind":            "full_sync",
			"organization_id": "4a3a9c2e-0000-0000-0000-000000000001",
		}

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			msg := msgs[0]
			if string(msg.Key) != "4a3a9c2e-0000-0000-0000-000000000001" {
				return false
			}
			var payload map[string]interface{}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				return false
			}
			return payload["kind"] == "full_sync"
		})).Return(nil).Once()

		err := producer.Publish(ctx, "4a3a9c2e-0000-0000-0000-000000000001", event)
		require.NoError(t, err)
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriterErrorIsWrapped", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &SyncEventProducer{
			logger: logger,
			writer: mockWriter,
			topic:  "sync_events",
		}

		writerErr := errors.New("kafka write error")
		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).
			Return(writerErr).Once()

		err := producer.Publish(ctx, "key", map[string]string{"kind": "item_sync"})
		require.Error(t, err)
		assert.ErrorIs(t, err, writerErr)
		assert.Contains(t, err.Error(), "failed to publish sync event")
		mockWriter.AssertExpectations(t)
	})

	t.Run("UnmarshalableValue", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &SyncEventProducer{
			logger: logger,
			writer: mockWriter,
			topic:  "sync_events",
		}

		err := producer.Publish(ctx, "key", make(chan int))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal sync event")
		mockWriter.AssertNotCalled(t, "WriteMessages")
	})
}

func TestSyncEventProducer_Close(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	producer := &SyncEventProducer{
		logger: testProducerLogger(),
		writer: mockWriter,
		topic:  "sync_events",
	}

	mockWriter.On("Close").Return(nil).Once()
	assert.NoError(t, producer.Close())
	mockWriter.AssertExpectations(t)
}
