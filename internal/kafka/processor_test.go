package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ortelius/versionwatch/config"
	"github.com/ortelius/versionwatch/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	cancel   context.CancelFunc
	closed   bool
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	if msg.Value == nil {
		return kafka.Message{}, errors.New("fetch failed")
	}
	return msg, nil
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type recordingRunner struct {
	keys []string
}

func (r *recordingRunner) Check(_ context.Context, key string) (*model.CheckResult, error) {
	r.keys = append(r.keys, key)
	if key == "broken" {
		return nil, errors.New("no signal")
	}
	return &model.CheckResult{ItemKey: key, Status: model.StatusUpToDate}, nil
}

func TestConsume_ContinuesPastFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &scriptedReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Value: []byte(`{"item_key":"nginx"}`)},
			{Value: nil},
			{Value: []byte(`garbage`)},
			{Value: []byte(`{"item_key":"broken"}`)},
			{Value: []byte(`{"item_key":"redis"}`)},
		},
	}
	runner := &recordingRunner{}

	done := make(chan struct{})
	go func() {
		consume(ctx, reader, runner, zap.NewNop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, []string{"nginx", "broken", "redis"}, runner.keys)
	assert.True(t, reader.closed)
}

func TestDialer(t *testing.T) {
	plainDialer := Dialer(config.KafkaConfig{})
	assert.Nil(t, plainDialer.SASLMechanism)
	assert.Nil(t, plainDialer.TLS)

	secure := Dialer(config.KafkaConfig{APIKey: "key", APISecret: "secret"})
	require.NotNil(t, secure.SASLMechanism)
	assert.Equal(t, "PLAIN", secure.SASLMechanism.Name())
	assert.NotNil(t, secure.TLS)

	assert.Nil(t, Transport(config.KafkaConfig{}))
	assert.NotNil(t, Transport(config.KafkaConfig{APIKey: "key", APISecret: "secret"}))
}

func TestRunEventProcessor_NoBrokers(t *testing.T) {
	err := RunEventProcessor(context.Background(), config.KafkaConfig{}, &recordingRunner{}, zap.NewNop())
	assert.Error(t, err)
}
