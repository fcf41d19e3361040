// Package ingest consumes scraped product records from Kafka and feeds
// them into the engine via the lifecycle manager. Scrapers publish records
// as JSON, one record or an array per message.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/lifecycle"
	"github.com/shopscout/searchcore/pkg/kafka"
)

// Consumer wraps a Kafka consumer to drive the ingestion pipeline.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a Consumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *Consumer {
	return &Consumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("ingest consumer starting")
	return c.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that decodes product
// records and ingests them. Malformed messages are logged and skipped
// rather than retried: the scraper layer owns their correctness.
func HandleMessage(manager *lifecycle.Manager) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		records, err := decodeRecords(value)
		if err != nil {
			logger.Error("failed to decode record message", "key", string(key), "error", err)
			return nil
		}
		report := manager.Ingest(ctx, records)
		logger.Debug("message ingested",
			"records", len(records),
			"ingested", report.Ingested,
			"rejected", len(report.Rejected),
		)
		return nil
	}
}

// decodeRecords accepts either a single record object or an array.
func decodeRecords(value []byte) ([]catalog.ProductRecord, error) {
	var batch []catalog.ProductRecord
	if err := json.Unmarshal(value, &batch); err == nil {
		return batch, nil
	}
	single, err := kafka.DecodeJSON[catalog.ProductRecord](value)
	if err != nil {
		return nil, err
	}
	return []catalog.ProductRecord{single}, nil
}
