package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(input string) Record {
	r := NewRecord(input, 7)
	r.Status = StatusOK
	r.Outputs = []string{"Sony7.xml", "Apple7.xml"}
	return r
}

func TestNewRecord(t *testing.T) {
	a, b := NewRecord("orders_1.xml", 1), NewRecord("orders_1.xml", 1)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.At.IsZero())
}

func TestFileWriter_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "dispatch.jsonl")
	w, err := NewFileWriter(path)
	require.NoError(t, err)

	r1, r2 := sampleRecord("orders_7.xml"), sampleRecord("orders_8.xml")
	r2.Status, r2.Error, r2.Outputs = StatusFailed, "malformed document", nil
	require.NoError(t, w.Append(context.Background(), r1))
	require.NoError(t, w.Append(context.Background(), r2))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	s := bufio.NewScanner(f)
	var got []Record
	for s.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(s.Bytes(), &r))
		got = append(got, r)
	}
	require.NoError(t, s.Err())
	require.Len(t, got, 2)
	assert.Equal(t, r1.ID, got[0].ID)
	assert.Equal(t, r1.Outputs, got[0].Outputs)
	assert.Equal(t, StatusFailed, got[1].Status)
	assert.Equal(t, "malformed document", got[1].Error)
}

// fakeKafkaWriter implements kafkaMessageWriter for tests
type fakeKafkaWriter struct {
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaWriter_Append(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kw := NewKafkaWriterWith(fk)
	r := sampleRecord("orders_7.xml")
	require.NoError(t, kw.Append(context.Background(), r))
	require.Len(t, fk.msgs, 1)
	assert.Equal(t, "orders_7.xml", string(fk.msgs[0].Key))

	var got Record
	require.NoError(t, json.Unmarshal(fk.msgs[0].Value, &got))
	assert.Equal(t, r.ID, got.ID)

	fk.fail = true
	assert.Error(t, kw.Append(context.Background(), r))
	require.NoError(t, kw.Close())
	assert.True(t, fk.closed)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, SplitBrokers(""))
}

type fakeProducer struct {
	calls      []string
	msgs       []*ck.Message
	failInit   bool
	failCommit bool
}

func (p *fakeProducer) InitTransactions(context.Context) error {
	p.calls = append(p.calls, "init")
	if p.failInit {
		return errors.New("no broker")
	}
	return nil
}

func (p *fakeProducer) BeginTransaction() error {
	p.calls = append(p.calls, "begin")
	return nil
}

func (p *fakeProducer) Produce(msg *ck.Message, _ chan ck.Event) error {
	p.calls = append(p.calls, "produce")
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakeProducer) Flush(int) int {
	p.calls = append(p.calls, "flush")
	return 0
}

func (p *fakeProducer) CommitTransaction(context.Context) error {
	p.calls = append(p.calls, "commit")
	if p.failCommit {
		return errors.New("fenced")
	}
	return nil
}

func (p *fakeProducer) AbortTransaction(context.Context) error {
	p.calls = append(p.calls, "abort")
	return nil
}

func (p *fakeProducer) Close() { p.calls = append(p.calls, "close") }

func TestTxWriter_CommitsPerRecord(t *testing.T) {
	fp := &fakeProducer{}
	w, err := newTxWriter(context.Background(), fp, "ordersplit.dispatch")
	require.NoError(t, err)

	require.NoError(t, w.Append(context.Background(), sampleRecord("orders_7.xml")))
	assert.Equal(t, []string{"init", "begin", "produce", "flush", "commit"}, fp.calls)
	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "ordersplit.dispatch", *fp.msgs[0].TopicPartition.Topic)
	assert.Equal(t, "orders_7.xml", string(fp.msgs[0].Key))
}

func TestTxWriter_AbortOnCommitFailure(t *testing.T) {
	fp := &fakeProducer{failCommit: true}
	w, err := newTxWriter(context.Background(), fp, "t")
	require.NoError(t, err)
	assert.Error(t, w.Append(context.Background(), sampleRecord("x")))
	assert.Equal(t, "abort", fp.calls[len(fp.calls)-1])
}

func TestTxWriter_InitFailureClosesProducer(t *testing.T) {
	fp := &fakeProducer{failInit: true}
	_, err := newTxWriter(context.Background(), fp, "t")
	assert.Error(t, err)
	assert.Equal(t, []string{"init", "close"}, fp.calls)
}

type failingWriter struct{ Nop }

func (failingWriter) Append(context.Context, Record) error { return errors.New("down") }

func TestMultiWriter_TriesAll(t *testing.T) {
	fk := &fakeKafkaWriter{}
	m := NewMultiWriter(failingWriter{}, NewKafkaWriterWith(fk))
	err := m.Append(context.Background(), sampleRecord("a.xml"))
	assert.EqualError(t, err, "down")
	assert.Len(t, fk.msgs, 1, "later writers still receive the record")
	require.NoError(t, m.Close())
	assert.True(t, fk.closed)
	assert.Equal(t, 2, m.Len())
}
