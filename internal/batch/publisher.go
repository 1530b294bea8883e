package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Publisher hands a task to the external batch queue.
type Publisher interface {
	Publish(ctx context.Context, task Task) error
}

type amqpPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType, messageID string) error
}

// RabbitPublisher publishes tasks as persistent JSON messages.
type RabbitPublisher struct {
	client amqpPublisher
}

func NewRabbitPublisher(client amqpPublisher) *RabbitPublisher {
	return &RabbitPublisher{client: client}
}

func (p *RabbitPublisher) Publish(ctx context.Context, task Task) error {
	body, err := EncodeTask(task)
	if err != nil {
		return err
	}
	return p.client.PublishWithRetry(ctx, body, "application/json", task.JobID)
}

type kafkaSender interface {
	Send(ctx context.Context, key string, value []byte) error
}

// KafkaPublisher keys messages by media id so work on one item stays ordered.
type KafkaPublisher struct {
	producer kafkaSender
}

func NewKafkaPublisher(producer kafkaSender) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, task Task) error {
	body, err := EncodeTask(task)
	if err != nil {
		return err
	}
	return p.producer.Send(ctx, task.MediaID, body)
}

func EncodeTask(task Task) ([]byte, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return body, nil
}

// DecodeTask parses and checks a queued task.
func DecodeTask(body []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if _, err := uuid.Parse(task.JobID); err != nil {
		return Task{}, fmt.Errorf("invalid job id %q: %w", task.JobID, err)
	}
	task.Request.Normalize()
	if err := task.Request.Validate(); err != nil {
		return Task{}, err
	}
	return task, nil
}
