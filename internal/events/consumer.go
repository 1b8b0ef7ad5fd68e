// Package events consumes complaint lifecycle events from Kafka.
//
// Each message carries one JSON-encoded complaint.Event. The consumer hands
// events to the worker pool and commits the offset only after the event has
// been processed, giving at-least-once delivery; the dispatcher's ledger
// turns redelivered events into no-ops.
//
// Events that cannot be decoded, or that keep failing, are written to the
// dead-letter topic so the partition keeps moving.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"civicnotify/internal/complaint"
	apperrors "civicnotify/internal/errors"
)

const (
	// Topic carries complaint events from the complaint service.
	Topic = "complaint-events"

	// DLQTopic receives events that could not be processed.
	DLQTopic = "complaint-events-dlq"

	// GroupID is the consumer group shared by all service replicas.
	GroupID = "civicnotify-dispatcher"

	// maxRetries is the number of processing attempts before an event is
	// routed to the DLQ.
	maxRetries = 3
)

// ErrDeadLetter means a failed event could not be written to the DLQ either.
// The offset stays uncommitted and Run stops so the event is redelivered.
var ErrDeadLetter = errors.New("could not dead-letter event")

// Processor runs one event to completion.
type Processor interface {
	Do(ctx context.Context, ev complaint.Event) (complaint.ProcessResult, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads events from Kafka and processes them.
type Consumer struct {
	reader    messageReader
	dlq       messageWriter
	processor Processor
	backoff   time.Duration
}

// NewConsumer creates a Consumer connected to the given brokers.
func NewConsumer(brokers []string, processor Processor) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          Topic,
		GroupID:        GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0, // explicit commits only
		StartOffset:    kafka.FirstOffset,
	})

	dlq := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        DLQTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}

	return &Consumer{reader: reader, dlq: dlq, processor: processor, backoff: 2 * time.Second}
}

// Run blocks, consuming events until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("📥 Consuming complaint events from topic %q", Topic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if err := c.handle(ctx, m); err != nil {
			if ctx.Err() != nil || errors.Is(err, apperrors.ErrShuttingDown) {
				// Left uncommitted; the next consumer picks it up.
				log.Printf("   → Stopping before commit of offset %d: %v", m.Offset, err)
				return nil
			}
			if errors.Is(err, ErrDeadLetter) {
				return fmt.Errorf("offset %d left uncommitted: %w", m.Offset, err)
			}
			log.Printf("⚠️  Routed event key=%s to DLQ: %v", string(m.Key), err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("⚠️  Commit failed (event may be redelivered): %v", err)
		}
	}
}

// Close releases all Kafka resources.
func (c *Consumer) Close() error {
	rerr := c.reader.Close()
	werr := c.dlq.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// handle processes one message, retrying failures and dead-lettering the
// ones that never succeed. Errors other than shutdown, cancellation or
// ErrDeadLetter have already been dead-lettered.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var ev complaint.Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return c.sendToDLQ(ctx, m, fmt.Errorf("unmarshal: %w", err))
	}
	if ev.ComplaintID == "" && ev.Complaint != nil {
		ev.ComplaintID = ev.Complaint.ID
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%s-%d-%d", m.Topic, m.Partition, m.Offset)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		res, err := c.processor.Do(ctx, ev)
		if err == nil {
			err = res.Error
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, apperrors.ErrShuttingDown) {
			return err
		}
		lastErr = err

		log.Printf("⚠️  Event %s attempt %d/%d failed: %v", ev.ID, attempt, maxRetries, err)

		if attempt < maxRetries {
			select {
			case <-time.After(time.Duration(attempt) * c.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return c.sendToDLQ(ctx, m, lastErr)
}

// sendToDLQ writes the original message, plus the failure reason as a
// header, to the dead-letter topic. It returns reason once the write
// succeeds, and an ErrDeadLetter wrapping both errors otherwise.
func (c *Consumer) sendToDLQ(ctx context.Context, original kafka.Message, reason error) error {
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   original.Key,
		Value: original.Value,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(reason.Error())},
			{Key: "dlq-source", Value: []byte(fmt.Sprintf("%s/%d/%d", original.Topic, original.Partition, original.Offset))},
		},
	})
	if err != nil {
		log.Printf("❌ CRITICAL - could not write to DLQ: %v", err)
		return fmt.Errorf("%w: %v (event failed with: %v)", ErrDeadLetter, err, reason)
	}
	return reason
}
