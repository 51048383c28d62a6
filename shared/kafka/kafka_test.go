package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

// fakeWriter is a test writer that records messages written.
type fakeWriter struct {
	msgs []skafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublish(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaProducerWithWriter(fw, nil)
	err := p.Publish(context.Background(), "key1", map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != "key1" {
		t.Errorf("expected key1, got %s", fw.msgs[0].Key)
	}
	var got map[string]string
	if err := json.Unmarshal(fw.msgs[0].Value, &got); err != nil || got["a"] != "b" {
		t.Errorf("unexpected value %s", fw.msgs[0].Value)
	}
}

func TestPublish_Errors(t *testing.T) {
	p := NewKafkaProducerWithWriter(&fakeWriter{}, nil)
	if err := p.Publish(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
	p = NewKafkaProducerWithWriter(&fakeWriter{err: errors.New("broker down")}, nil)
	if err := p.Publish(context.Background(), "k", 1); err == nil {
		t.Error("expected write error")
	}
}

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []skafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (skafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return skafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...skafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	fr := &fakeReader{queue: []skafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("fail")},
		{Offset: 3, Value: []byte("ok")},
	}}
	c := NewConsumerWithReader(fr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var handled []string
	go func() {
		defer close(done)
		c.Start(ctx, func(ctx context.Context, key, value []byte) error {
			handled = append(handled, string(value))
			if string(value) == "fail" {
				return errors.New("handler failed")
			}
			return nil
		})
	}()

	deadline := time.Now().Add(time.Second)
	for {
		fr.mu.Lock()
		n := len(fr.committed)
		fr.mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if len(handled) != 3 {
		t.Fatalf("expected 3 handled messages, got %d", len(handled))
	}
	if len(fr.committed) != 2 || fr.committed[0] != 1 || fr.committed[1] != 3 {
		t.Errorf("expected offsets [1 3] committed, got %v", fr.committed)
	}
}
