package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestConsumer_Consume_CallsHandlerAndCommits(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr, nil)

	var gotK, gotV []byte
	err := c.Consume(context.Background(), func(k, v []byte) error {
		gotK, gotV = k, v
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []byte("k"), gotK)
	require.Equal(t, []byte("v"), gotV)
	require.Len(t, fr.committed, 1)
}

func TestConsumer_Consume_RetriesThenSucceeds(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}}}
	dlq := &fakeWriter{}
	c := newConsumerWithReader(fr, dlq).withRetry(3, time.Millisecond)

	calls := 0
	_ = c.Consume(context.Background(), func(k, v []byte) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.Equal(t, 3, calls)
	require.Empty(t, dlq.all)
	require.Len(t, fr.committed, 1)
}

func TestConsumer_Consume_ExhaustedGoesToDLQ(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Topic: "orders.enrich", Key: []byte("k"), Value: []byte("v")}}}
	dlq := &fakeWriter{}
	c := newConsumerWithReader(fr, dlq).withRetry(2, time.Millisecond)
	c.groupID = "order-worker"

	calls := 0
	_ = c.Consume(context.Background(), func(k, v []byte) error {
		calls++
		return errors.New("shopify down")
	})
	require.Equal(t, 3, calls)
	require.Len(t, dlq.all, 1)
	m := dlq.all[0]
	require.Equal(t, []byte("v"), m.Value)
	require.Equal(t, "shopify down", headerValue(m, "x-dlq-reason"))
	require.Equal(t, "3", headerValue(m, "x-dlq-attempts"))
	require.Equal(t, "orders.enrich", headerValue(m, "x-dlq-source-topic"))
	require.Equal(t, "order-worker", headerValue(m, "x-dlq-group"))
	require.Len(t, fr.committed, 1)
}

func TestConsumer_Consume_PermanentSkipsRetries(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("not json")}}}
	dlq := &fakeWriter{}
	c := newConsumerWithReader(fr, dlq).withRetry(5, time.Millisecond)

	calls := 0
	_ = c.Consume(context.Background(), func(k, v []byte) error {
		calls++
		return Permanent(errors.New("decode"))
	})
	require.Equal(t, 1, calls)
	require.Len(t, dlq.all, 1)
	require.Equal(t, "1", headerValue(dlq.all[0], "x-dlq-attempts"))
}

func TestConsumer_Consume_DLQWriteFailureStops(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}}}
	want := errors.New("dlq unavailable")
	c := newConsumerWithReader(fr, &fakeWriter{err: want}).withRetry(0, time.Millisecond)

	err := c.Consume(context.Background(), func(k, v []byte) error { return errors.New("fail") })
	require.ErrorIs(t, err, want)
	require.Empty(t, fr.committed)
}

func TestPermanent(t *testing.T) {
	require.Nil(t, Permanent(nil))
	base := errors.New("bad payload")
	err := Permanent(base)
	require.ErrorIs(t, err, ErrPermanent)
	require.ErrorIs(t, err, base)
	require.False(t, errors.Is(base, ErrPermanent))
}

func TestBackoff(t *testing.T) {
	require.Equal(t, time.Duration(0), backoff(0, time.Second))
	require.Equal(t, 200*time.Millisecond, backoff(1, 200*time.Millisecond))
	require.Equal(t, 400*time.Millisecond, backoff(2, 200*time.Millisecond))
	require.Equal(t, maxBackoff, backoff(10, time.Second))
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:0"}, Topic: "t", GroupID: "g", DLQTopic: "t.dlq"})
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
