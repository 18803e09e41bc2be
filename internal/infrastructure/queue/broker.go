package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/patient-idv/internal/infrastructure/logger"
)

// Queue names.
const (
	QueueCleanup = "cleanup"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Broker enqueues background tasks on Redis.
type Broker struct {
	client enqueuer
}

// RedisOpt parses a redis:// URL into asynq connection options.
func RedisOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL for queue: %w", err)
	}
	return opt, nil
}

// NewBroker returns a Broker backed by an asynq client.
func NewBroker(opt asynq.RedisConnOpt) *Broker {
	return &Broker{client: asynq.NewClient(opt)}
}

// EnqueueDelete schedules deletion of a stored document object.
func (b *Broker) EnqueueDelete(ctx context.Context, key string) error {
	payload, err := json.Marshal(DeleteDocumentPayload{Key: key})
	if err != nil {
		return fmt.Errorf("encode delete payload: %w", err)
	}
	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(TaskDeleteDocument, payload),
		asynq.ProcessIn(30*time.Second),
		asynq.MaxRetry(10),
		asynq.Timeout(time.Minute),
		asynq.Queue(QueueCleanup))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskDeleteDocument, err)
	}
	logger.Info("document delete queued",
		logger.LoggerOptions{Key: "object", Data: key},
		logger.LoggerOptions{Key: "task_id", Data: info.ID})
	return nil
}

// Close releases the client connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// NewServer builds the worker server and its mux. Run it with srv.Start(mux).
func NewServer(opt asynq.RedisConnOpt, concurrency int, docs DocumentRemover) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCleanup: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDeleteDocument, HandleDeleteDocument(docs))
	return srv, mux
}
