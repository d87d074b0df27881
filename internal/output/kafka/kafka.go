// Package kafka publishes one record per run so downstream consumers can
// react to new audit summaries.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/crimson-sun/auditor/internal/model"
)

// Message is the JSON value of each published record.
type Message struct {
	RunID   string              `json:"run_id"`
	Summary model.SummaryRecord `json:"summary"`
	Dropped int                 `json:"dropped"`
}

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Output produces summaries to a Kafka topic, keyed by run date.
type Output struct {
	p     producer
	topic string
}

// Dial creates a client for brokers. franz-go connects lazily, so broker
// errors surface on the first Write.
func Dial(brokers []string, topic string) (*Output, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka output: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka output: no topic configured")
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("auditor"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka output: %w", err)
	}
	return &Output{p: cl, topic: topic}, nil
}

// Write produces one record keyed by the report date and waits for the ack.
func (o *Output) Write(ctx context.Context, report model.Report) error {
	value, err := json.Marshal(Message{
		RunID:   report.RunID,
		Summary: report.Summary,
		Dropped: report.Dropped,
	})
	if err != nil {
		return fmt.Errorf("kafka output: marshal: %w", err)
	}
	rec := &kgo.Record{
		Topic: o.topic,
		Key:   []byte(report.Summary.Date),
		Value: value,
	}
	if err := o.p.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka output: produce: %w", err)
	}
	return nil
}

// Close closes the producer client.
func (o *Output) Close() error {
	o.p.Close()
	return nil
}
