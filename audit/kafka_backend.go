package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// KafkaBackend mirrors every stored event to a Kafka topic after the
// delegate has persisted it. The mirror is fire-and-forget: producer
// errors are drained and logged, never surfaced to the capture path.
type KafkaBackend struct {
	next     Backend
	producer sarama.AsyncProducer
	topic    string
}

type kafkaEnvelope struct {
	Kind    Kind          `json:"kind"`
	CRUD    *CRUDEvent    `json:"crud,omitempty"`
	Login   *LoginEvent   `json:"login,omitempty"`
	Request *RequestEvent `json:"request,omitempty"`
}

func NewKafkaBackend(next Backend, brokers []string, topic string) (*KafkaBackend, error) {
	if next == nil {
		next = &NoopBackend{}
	}
	if topic == "" {
		topic = "helix.audit.events"
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal

	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Flush.Messages = 100

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to start kafka producer: %w", err)
	}

	backend := &KafkaBackend{
		next:     next,
		producer: producer,
		topic:    topic,
	}

	go backend.drainErrors()

	return backend, nil
}

func (k *KafkaBackend) CRUD(ctx context.Context, event *CRUDEvent) (*CRUDEvent, error) {
	stored, err := k.next.CRUD(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := k.publish(ctx, kafkaEnvelope{Kind: KindCRUD, CRUD: stored}); err != nil {
		return nil, err
	}
	return stored, nil
}

func (k *KafkaBackend) Login(ctx context.Context, event *LoginEvent) (*LoginEvent, error) {
	stored, err := k.next.Login(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := k.publish(ctx, kafkaEnvelope{Kind: KindLogin, Login: stored}); err != nil {
		return nil, err
	}
	return stored, nil
}

func (k *KafkaBackend) Request(ctx context.Context, event *RequestEvent) (*RequestEvent, error) {
	stored, err := k.next.Request(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := k.publish(ctx, kafkaEnvelope{Kind: KindRequest, Request: stored}); err != nil {
		return nil, err
	}
	return stored, nil
}

func (k *KafkaBackend) publish(ctx context.Context, envelope kafkaEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("audit: marshal failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Value: sarama.ByteEncoder(payload),
	}

	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaBackend) drainErrors() {
	for err := range k.producer.Errors() {
		log.Printf("audit: failed to mirror event to kafka: %v\n", err)
	}
}

func (k *KafkaBackend) Close() error {
	return k.producer.Close()
}
