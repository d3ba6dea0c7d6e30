package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/logging"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrNotifierClosed = errors.New("job notifier is closed")

// JobMessage is the payload published for each queued job.
type JobMessage struct {
	JobID     string    `json:"job_id"`
	ArticleID string    `json:"article_id"`
	OrgID     string    `json:"organization_id"`
	CreatedAt time.Time `json:"created_at"`
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes job ids after ingestion commits. Messages are keyed
// by article id so jobs of one article stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	mu     sync.Mutex
	closed bool
}

func NewKafkaNotifier(cfg KafkaConfig) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) NotifyJob(ctx context.Context, job *domain.EmbeddingJob) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNotifierClosed
	}
	n.mu.Unlock()

	data, err := json.Marshal(JobMessage{
		JobID:     job.ID,
		ArticleID: job.ArticleID,
		OrgID:     job.OrgID,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.ArticleID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "organization_id", Value: []byte(job.OrgID)},
		},
		Time: time.Now(),
	})
}

func (n *KafkaNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SingleJobProcessor runs one job by id.
type SingleJobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

// KafkaConsumer runs jobs as soon as their notification arrives. Offsets are
// committed after processing whatever the outcome; failures live on the job row.
type KafkaConsumer struct {
	reader    messageReader
	processor SingleJobProcessor
	logger    *zap.Logger
}

func NewKafkaConsumer(cfg KafkaConfig, processor SingleJobProcessor, logger *zap.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		StartOffset:    kafka.LastOffset,
	})
	return newKafkaConsumer(reader, processor, logger)
}

func newKafkaConsumer(reader messageReader, processor SingleJobProcessor, logger *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:    reader,
		processor: processor,
		logger:    logging.OrNop(logger),
	}
}

// Run consumes until ctx is cancelled, then closes the reader. Cancellation
// stops fetching; a message already fetched is processed and committed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}()

	c.logger.Info("kafka job consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka job consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch job message: %w", err)
		}

		detached := context.WithoutCancel(ctx)
		c.handle(detached, msg)

		if err := c.reader.CommitMessages(detached, msg); err != nil {
			c.logger.Warn("failed to commit job message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	var payload JobMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil || payload.JobID == "" {
		c.logger.Warn("dropping malformed job message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}

	ctx, span := telemetry.StartTransaction(ctx, "EmbeddingJob.consume", "queue.process")
	defer span.End()

	if err := c.processor.ProcessJob(ctx, payload.JobID); err != nil {
		span.SetError(err)
		c.logger.Error("failed to process job from kafka",
			zap.String("job_id", payload.JobID),
			zap.Error(err),
		)
		return
	}
	span.SetOK()
}
