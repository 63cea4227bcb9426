package mq

import (
	"context"
	"errors"

	"github.com/clearcut-studio/studio-server/internal/config"
)

var (
	ErrTopicNotExists = errors.New("topic does not exist")
	ErrQueueClosed    = errors.New("queue closed")
	ErrTopicClosed    = errors.New("topic closed")
	ErrInvalidMessage = errors.New("unexpected message type")
)

const (
	MQTypeInMemory = "inmemory"
	MQTypePulsar   = "pulsar"
)

// MQ carries batch progress events from the worker to stream handlers.
// Publish blocks until the message is accepted or ctx ends; delivery
// keeps pace with the consumer rather than dropping under load.
type MQ interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Receive(ctx context.Context, topic string) (interface{}, error)
	GetMessageData(message interface{}) ([]byte, error)
	Ack(topic string, message interface{}) error
	CloseTopic(topic string) error
	Close() error
}

func NewMQ(cfg *config.Config) (MQ, error) {
	if cfg != nil && cfg.Pulsar != nil {
		return NewPulsarMQ(cfg.Pulsar)
	}
	return NewInMemoryMQ(64)
}
