package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jengzang/beacons-backend-go/internal/config"
	"github.com/jengzang/beacons-backend-go/internal/logger"
	"github.com/jengzang/beacons-backend-go/internal/metrics"
	"github.com/jengzang/beacons-backend-go/internal/repository"
)

// Reader is the subset of *kafka.Reader the consumer needs
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer appends pings read from Kafka to their event tables
type Consumer struct {
	reader    Reader
	repo      *repository.ExpandoRepository
	companyID int64
	metrics   *metrics.Metrics
	log       zerolog.Logger
	newID     func() string

	// retry delays for store failures, doubling up to maxBackoff
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewConsumer creates a consumer group reader for cfg.Topic
func NewConsumer(cfg config.IngestConfig, repo *repository.ExpandoRepository, companyID int64, m *metrics.Metrics) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("ingest topic must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: []string{cfg.Topic},
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(reader, repo, companyID, m), nil
}

func newConsumer(reader Reader, repo *repository.ExpandoRepository, companyID int64, m *metrics.Metrics) *Consumer {
	return &Consumer{
		reader:    reader,
		repo:      repo,
		companyID: companyID,
		metrics:   m,
		log:       logger.Component("ingest"),
		newID:     uuid.NewString,

		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run consumes until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Error().Err(err).Msg("failed to close reader")
		}
	}()
	c.log.Info().Msg("consumer started")

	backoff := c.minBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("consumer stopped")
				return nil
			}
			c.log.Error().Err(err).Dur("backoff", backoff).Msg("fetch failed")
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		if !c.ingest(ctx, msg) {
			c.log.Info().Int64("offset", msg.Offset).Msg("consumer stopped before message was stored")
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Msg("commit failed")
		}
	}
}

// ingest handles msg until it is stored or rejected as invalid. Store failures
// block the partition: committing a later offset would drop msg for good.
// It reports false when ctx ends first.
func (c *Consumer) ingest(ctx context.Context, msg kafka.Message) bool {
	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := c.Handle(ctx, msg)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrInvalidMessage) {
			c.log.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("skipping invalid message")
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		c.log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
			Int("attempt", attempt).Dur("backoff", backoff).Msg("message not ingested, retrying")
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Handle ingests one message
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	p, err := DecodePing(msg.Value)
	if err != nil {
		c.metrics.Ingested("invalid")
		return err
	}
	if p.ID == "" {
		p.ID = c.newID()
	}

	err = c.repo.InTx(ctx, func(tx *repository.ExpandoRepository) error {
		if _, err := tx.EnsureEventTable(ctx, c.companyID, p.Event); err != nil {
			return err
		}
		_, err := tx.AppendPing(ctx, c.companyID, p)
		return err
	})
	if err != nil {
		c.metrics.Ingested("error")
		return fmt.Errorf("failed to ingest ping %s: %w", p.ID, err)
	}

	c.metrics.Ingested("ok")
	return nil
}
