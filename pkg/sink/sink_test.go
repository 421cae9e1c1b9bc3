package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Sternrassler/steam-review-ingest/pkg/review"
)

type recordingSink struct {
	name     string
	err      error
	got      []Batch
	closed   bool
	closeErr error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, b Batch) error {
	s.got = append(s.got, b)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func sampleBatch() Batch {
	return Batch{
		RunID: "1091500",
		Index: 2,
		Name:  "1091500.2.json",
		Records: []review.Record{
			{ID: strings.Repeat("a", 56), Author: strings.Repeat("b", 56), Date: "2024-05-01", Source: review.Source},
			{ID: strings.Repeat("c", 56), Author: strings.Repeat("d", 56), Date: "2024-05-01", Source: review.Source},
		},
		Data: []byte("[]"),
	}
}

func TestMulti_Publish(t *testing.T) {
	first := &recordingSink{name: "first"}
	failing := &recordingSink{name: "failing", err: errors.New("broker down")}
	last := &recordingSink{name: "last"}

	m := Multi{first, failing, last}
	err := m.Publish(context.Background(), sampleBatch())
	if err == nil {
		t.Fatal("Publish() should fail")
	}
	if !strings.Contains(err.Error(), "sink failing") || !strings.Contains(err.Error(), "1091500.2.json") {
		t.Errorf("error = %v, want sink name and file", err)
	}
	if len(first.got) != 1 || len(failing.got) != 1 {
		t.Error("sinks before the failure should receive the batch")
	}
	if len(last.got) != 0 {
		t.Error("sinks after the failure must not receive the batch")
	}
}

func TestMulti_Close(t *testing.T) {
	a := &recordingSink{name: "a", closeErr: errors.New("boom")}
	b := &recordingSink{name: "b"}

	err := Multi{a, b}.Close()
	if err == nil || !strings.Contains(err.Error(), "sink a") {
		t.Errorf("Close() error = %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("Close() must close every sink")
	}
}

func TestInsertQuery(t *testing.T) {
	b := sampleBatch()
	query, args, err := insertQuery("steam_reviews", b.Records)
	if err != nil {
		t.Fatalf("insertQuery() error = %v", err)
	}

	tests := []struct {
		name string
		want string
	}{
		{name: "table", want: "INSERT INTO steam_reviews"},
		{name: "first row", want: "($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)"},
		{name: "second row", want: "($11,$12,$13,$14,$15,$16,$17,$18,$19,$20)"},
		{name: "conflict", want: "ON CONFLICT (id) DO NOTHING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(query, tt.want) {
				t.Errorf("query %q does not contain %q", query, tt.want)
			}
		})
	}

	if len(args) != 20 {
		t.Fatalf("args = %d, want 20", len(args))
	}
	if args[0] != b.Records[0].ID || args[10] != b.Records[1].ID {
		t.Errorf("args not in record order: %v", args)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafka_Publish(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}

	if err := k.Publish(context.Background(), sampleBatch()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "1091500" {
		t.Errorf("Key = %q", msg.Key)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, err := uuid.Parse(env.BatchID); err != nil {
		t.Errorf("BatchID %q is not a uuid: %v", env.BatchID, err)
	}
	if env.RunID != "1091500" || env.FileIndex != 2 || env.File != "1091500.2.json" {
		t.Errorf("envelope = %+v", env)
	}
	if len(env.Records) != 2 {
		t.Errorf("records = %d, want 2", len(env.Records))
	}
}

func largeBatch(n, contentBytes int) Batch {
	records := make([]review.Record, n)
	for i := range records {
		records[i] = review.Record{
			ID:      fmt.Sprintf("%056x", i),
			Author:  strings.Repeat("b", 56),
			Date:    "2024-05-01",
			Content: strings.Repeat("x", contentBytes),
			Source:  review.Source,
		}
	}
	return Batch{RunID: "1091500", Index: 0, Name: "1091500.0.json", Records: records}
}

func TestKafka_PublishDefaultBatchSize(t *testing.T) {
	k, err := NewKafka([]string{"127.0.0.1:1"}, "reviews")
	if err != nil {
		t.Fatalf("NewKafka() error = %v", err)
	}
	w := &fakeWriter{}
	k.writer = w

	b := largeBatch(5000, 400)
	if err := k.Publish(context.Background(), b); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) < 2 {
		t.Fatalf("messages = %d, want the batch spread over several", len(w.msgs))
	}

	var batchID string
	next := 0
	for i, msg := range w.msgs {
		if size := len(msg.Key) + len(msg.Value); size > DefaultMaxMessageBytes {
			t.Errorf("message %d is %d bytes, over %d", i, size, DefaultMaxMessageBytes)
		}
		if string(msg.Key) != b.RunID {
			t.Errorf("message %d key = %q", i, msg.Key)
		}

		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			t.Fatalf("message %d: Unmarshal() error = %v", i, err)
		}
		if i == 0 {
			batchID = env.BatchID
		}
		if env.BatchID != batchID || env.Part != i || env.Parts != len(w.msgs) {
			t.Errorf("message %d: batch %s part %d/%d", i, env.BatchID, env.Part, env.Parts)
		}
		for _, r := range env.Records {
			if r.ID != b.Records[next].ID {
				t.Fatalf("record %d out of order: got %s", next, r.ID)
			}
			next++
		}
	}
	if next != len(b.Records) {
		t.Errorf("records published = %d, want %d", next, len(b.Records))
	}
}

func TestKafka_PublishSmallBatchIsOneMessage(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w, maxBytes: DefaultMaxMessageBytes}

	if err := k.Publish(context.Background(), largeBatch(10, 400)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	var env Envelope
	if err := json.Unmarshal(w.msgs[0].Value, &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if env.Part != 0 || env.Parts != 1 || len(env.Records) != 10 {
		t.Errorf("envelope part %d/%d with %d records", env.Part, env.Parts, len(env.Records))
	}
}

func TestKafka_PublishRecordOverBudget(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w, maxBytes: 4 << 10}

	err := k.Publish(context.Background(), largeBatch(1, 8<<10))
	if err == nil || !strings.Contains(err.Error(), "message budget") {
		t.Fatalf("Publish() error = %v, want budget error", err)
	}
	if len(w.msgs) != 0 {
		t.Errorf("messages = %d, want none written", len(w.msgs))
	}
}

func TestNewEnvelope_EmptyBatch(t *testing.T) {
	data, err := json.Marshal(newEnvelope(Batch{RunID: "r"}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"records":[]`) {
		t.Errorf("empty batch encoded as %s", data)
	}
}

func TestNewKafka_Validation(t *testing.T) {
	if _, err := NewKafka(nil, "reviews"); err == nil {
		t.Error("NewKafka() should reject missing brokers")
	}
	if _, err := NewKafka([]string{"localhost:9092"}, ""); err == nil {
		t.Error("NewKafka() should reject empty topic")
	}
	k, err := NewKafka([]string{"localhost:9092"}, "reviews")
	if err != nil {
		t.Fatalf("NewKafka() error = %v", err)
	}
	_ = k.Close()
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "1.0.json"},
		{prefix: "steam", want: "steam/1.0.json"},
		{prefix: "steam/", want: "steam/1.0.json"},
		{prefix: "raw/steam", want: "raw/steam/1.0.json"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, "1.0.json"); got != tt.want {
			t.Errorf("objectKey(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestInsertQuery_BadDate(t *testing.T) {
	records := []review.Record{{ID: "x", Date: "01/05/2024"}}
	if _, _, err := insertQuery(DefaultTable, records); err == nil {
		t.Error("insertQuery() should reject malformed date")
	}
}
