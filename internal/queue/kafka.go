// Package queue moves station snapshots through Kafka, keyed by station name.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/VJean/velib/internal/records"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // one station stays on one partition
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// PublishSnapshots writes recs as one batch.
func (p *Producer) PublishSnapshots(ctx context.Context, recs []records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	msgs, err := EncodeSnapshots(recs)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// EncodeSnapshots builds one message per snapshot with the station name as key.
func EncodeSnapshots(recs []records.Record) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(recs))
	for _, rec := range recs {
		value, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot %q: %w", rec.StationName, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(rec.StationName), Value: value})
	}
	return msgs, nil
}

// DecodeSnapshot parses and validates one message value.
func DecodeSnapshot(value []byte) (records.Record, error) {
	var rec records.Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return records.Record{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return records.Record{}, err
	}
	return rec, nil
}

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // offsets are committed after the batch is stored
			StartOffset:    kafka.FirstOffset,
		}),
	}
}

func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
