package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/patient-idv/internal/infrastructure/logger"
)

// TaskDeleteDocument removes a document whose inline deletion failed.
const TaskDeleteDocument = "document:delete"

type DeleteDocumentPayload struct {
	Key string `json:"key"`
}

// DocumentRemover deletes stored documents by object key.
type DocumentRemover interface {
	Remove(ctx context.Context, key string) error
}

// HandleDeleteDocument returns the asynq handler for TaskDeleteDocument.
func HandleDeleteDocument(docs DocumentRemover) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DeleteDocumentPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("an error occured while unmarshalling delete document payload",
				logger.LoggerOptions{Key: "error", Data: err.Error()})
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		if err := docs.Remove(ctx, payload.Key); err != nil {
			logger.Warning("queued document delete failed",
				logger.LoggerOptions{Key: "object", Data: payload.Key},
				logger.LoggerOptions{Key: "error", Data: err.Error()})
			return err
		}
		logger.Info("queued document delete done", logger.LoggerOptions{Key: "object", Data: payload.Key})
		return nil
	}
}
