package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

// DefaultMaxMessageBytes is the producer's per-message ceiling. It matches
// kafka-go's default batch size and the broker's default message.max.bytes.
const DefaultMaxMessageBytes = 1 << 20

// messageHeadroom is kept free below the ceiling for key and framing.
const messageHeadroom = 1 << 10

// Envelope is one message of a batch. A batch too large for a single
// message is spread over Parts messages sharing BatchID; Part is 0-based.
type Envelope struct {
	BatchID   string          `json:"batch_id"`
	RunID     string          `json:"run_id"`
	FileIndex int             `json:"file_index"`
	File      string          `json:"file"`
	Part      int             `json:"part"`
	Parts     int             `json:"parts"`
	Records   []review.Record `json:"records"`
}

func newEnvelope(b Batch) Envelope {
	records := b.Records
	if records == nil {
		records = []review.Record{}
	}
	return Envelope{
		BatchID:   uuid.NewString(),
		RunID:     b.RunID,
		FileIndex: b.Index,
		File:      b.Name,
		Parts:     1,
		Records:   records,
	}
}

// split encodes env into messages whose values stay within budget bytes,
// keeping record order. A single record larger than budget is an error.
func split(env Envelope, budget int) ([][]byte, error) {
	shell := env
	shell.Records = []review.Record{}
	shell.Part, shell.Parts = math.MaxInt32, math.MaxInt32
	base, err := json.Marshal(shell)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	var chunks [][]review.Record
	start, size := 0, len(base)
	for i, r := range env.Records {
		enc, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		n := len(enc) + 1 // separator
		if len(base)+n > budget {
			return nil, fmt.Errorf("record %s is %d bytes, over the %d byte message budget", r.ID, len(enc), budget)
		}
		if size+n > budget {
			chunks = append(chunks, env.Records[start:i])
			start, size = i, len(base)
		}
		size += n
	}
	chunks = append(chunks, env.Records[start:])

	out := make([][]byte, len(chunks))
	for i, records := range chunks {
		part := env
		part.Part, part.Parts, part.Records = i, len(chunks), records
		if out[i], err = json.Marshal(part); err != nil {
			return nil, fmt.Errorf("encode envelope part %d: %w", i, err)
		}
	}
	return out, nil
}

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each batch as one or more messages keyed by run id, so
// all parts of a run land on one partition in order.
type Kafka struct {
	writer   messageWriter
	maxBytes int
}

// NewKafka creates a producer for topic on brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic must not be empty")
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchBytes:   DefaultMaxMessageBytes,
		},
		maxBytes: DefaultMaxMessageBytes,
	}, nil
}

// Name implements Sink.
func (k *Kafka) Name() string {
	return "kafka"
}

// Publish implements Sink.
func (k *Kafka) Publish(ctx context.Context, b Batch) error {
	maxBytes := k.maxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	values, err := split(newEnvelope(b), maxBytes-len(b.RunID)-messageHeadroom)
	if err != nil {
		return err
	}

	now := time.Now()
	msgs := make([]kafka.Message, len(values))
	for i, v := range values {
		msgs[i] = kafka.Message{Key: []byte(b.RunID), Value: v, Time: now}
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

// Close flushes pending messages and closes the producer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
