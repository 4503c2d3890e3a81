// Package events publishes portal events to Kafka and consumes coin-acceptor
// top-ups from it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
)

const (
	TypeTransactionCreated = "transaction.created"
	TypeUserRegistered     = "user.registered"
)

type TransactionEvent struct {
	Type        string             `json:"type"`
	Transaction models.Transaction `json:"transaction"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

type RegistrationEvent struct {
	Type       string    `json:"type"`
	RFIDCardID string    `json:"rfid_card_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Attempt    int       `json:"attempt"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is what services need; failures are reported, never fatal to the caller.
type Publisher interface {
	TransactionCreated(ctx context.Context, tx models.Transaction) error
	UserRegistered(ctx context.Context, u *models.User) error
	Close() error
}

type KafkaPublisher struct {
	producer           sarama.SyncProducer
	transactionsTopic  string
	registrationsTopic string
	logger             logging.Logger
	now                func() time.Time
}

// NewProducerConfig is the sarama configuration for the sync producer.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	return config
}

// DialProducer connects to the brokers, retrying while Kafka starts up.
func DialProducer(ctx context.Context, brokers []string, attempts int, wait time.Duration, logger logging.Logger) (sarama.SyncProducer, error) {
	var err error
	for i := 1; i <= attempts; i++ {
		var producer sarama.SyncProducer
		producer, err = sarama.NewSyncProducer(brokers, NewProducerConfig())
		if err == nil {
			return producer, nil
		}
		logger.Warn(ctx, "waiting for kafka producer", "attempt", i, "of", attempts, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("kafka producer: %w", err)
}

func NewKafkaPublisher(producer sarama.SyncProducer, transactionsTopic, registrationsTopic string, logger logging.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer:           producer,
		transactionsTopic:  transactionsTopic,
		registrationsTopic: registrationsTopic,
		logger:             logger,
		now:                time.Now,
	}
}

func (p *KafkaPublisher) TransactionCreated(ctx context.Context, tx models.Transaction) error {
	return p.send(ctx, p.transactionsTopic, tx.RFIDCardID, TransactionEvent{
		Type:        TypeTransactionCreated,
		Transaction: tx,
		OccurredAt:  p.now(),
	})
}

func (p *KafkaPublisher) UserRegistered(ctx context.Context, u *models.User) error {
	return p.send(ctx, p.registrationsTopic, u.RFIDCardID, RegistrationEvent{
		Type:       TypeUserRegistered,
		RFIDCardID: u.RFIDCardID,
		Email:      u.Email,
		FullName:   u.FullName(),
		Attempt:    u.RegistrationAttempt,
		OccurredAt: p.now(),
	})
}

func (p *KafkaPublisher) send(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error(ctx, "kafka publish failed", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("kafka publish: %w", err)
	}
	p.logger.Debug(ctx, "event published", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) TransactionCreated(context.Context, models.Transaction) error { return nil }
func (NopPublisher) UserRegistered(context.Context, *models.User) error           { return nil }
func (NopPublisher) Close() error                                                 { return nil }
