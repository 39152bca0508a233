package journal

import (
	"context"
	"encoding/json"
	"fmt"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// flushTimeoutMs bounds how long a commit waits for pending deliveries.
const flushTimeoutMs = 5000

// txProducer abstracts the transactional subset of ck.Producer for testability.
type txProducer interface {
	InitTransactions(ctx context.Context) error
	BeginTransaction() error
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	Flush(timeoutMs int) int
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	Close()
}

// TxWriter publishes each record inside its own Kafka transaction so that
// read_committed consumers never observe a half-written record.
type TxWriter struct {
	producer txProducer
	topic    string
}

func NewTxWriter(ctx context.Context, bootstrap, topic, txID string) (*TxWriter, error) {
	p, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
		"transactional.id":   txID,
	})
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	return newTxWriter(ctx, p, topic)
}

func newTxWriter(ctx context.Context, p txProducer, topic string) (*TxWriter, error) {
	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("init tx: %w", err)
	}
	return &TxWriter{producer: p, topic: topic}, nil
}

func (w *TxWriter) Append(ctx context.Context, r Record) error {
	val, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := w.producer.BeginTransaction(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	msg := &ck.Message{
		TopicPartition: ck.TopicPartition{Topic: &w.topic, Partition: ck.PartitionAny},
		Key:            []byte(r.Input),
		Value:          val,
	}
	if err := w.producer.Produce(msg, nil); err != nil {
		_ = w.producer.AbortTransaction(ctx)
		return fmt.Errorf("produce: %w", err)
	}
	w.producer.Flush(flushTimeoutMs)
	if err := w.producer.CommitTransaction(ctx); err != nil {
		_ = w.producer.AbortTransaction(ctx)
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (w *TxWriter) Close() error {
	w.producer.Close()
	return nil
}
