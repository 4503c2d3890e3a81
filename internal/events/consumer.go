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

// CoinHandler credits a card for coins inserted at the kiosk.
type CoinHandler func(ctx context.Context, coin models.CoinInserted) error

// CoinConsumer reads coin-acceptor messages from a single-partition topic.
type CoinConsumer struct {
	consumer sarama.Consumer
	topic    string
	logger   logging.Logger
}

func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	return config
}

func DialConsumer(ctx context.Context, brokers []string, attempts int, wait time.Duration, logger logging.Logger) (sarama.Consumer, error) {
	var err error
	for i := 1; i <= attempts; i++ {
		var consumer sarama.Consumer
		consumer, err = sarama.NewConsumer(brokers, NewConsumerConfig())
		if err == nil {
			return consumer, nil
		}
		logger.Warn(ctx, "waiting for kafka consumer", "attempt", i, "of", attempts, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("kafka consumer: %w", err)
}

func NewCoinConsumer(consumer sarama.Consumer, topic string, logger logging.Logger) *CoinConsumer {
	return &CoinConsumer{consumer: consumer, topic: topic, logger: logger}
}

// Run consumes new messages until ctx is cancelled. Bad messages and handler
// failures are logged and skipped.
func (c *CoinConsumer) Run(ctx context.Context, handle CoinHandler) error {
	pc, err := c.consumer.ConsumePartition(c.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topic, err)
	}
	defer pc.Close()

	c.logger.Info(ctx, "listening for coins", "topic", c.topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			c.handle(ctx, msg, handle)
		case cerr, ok := <-pc.Errors():
			if !ok {
				return nil
			}
			c.logger.Warn(ctx, "kafka consumer error", "topic", c.topic, "error", cerr)
		}
	}
}

func (c *CoinConsumer) handle(ctx context.Context, msg *sarama.ConsumerMessage, handle CoinHandler) {
	var coin models.CoinInserted
	if err := json.Unmarshal(msg.Value, &coin); err != nil {
		c.logger.Warn(ctx, "invalid coin message", "offset", msg.Offset, "error", err)
		return
	}
	if coin.RFIDCardID == "" || coin.Amount <= 0 {
		c.logger.Warn(ctx, "coin message missing card or amount", "offset", msg.Offset)
		return
	}
	if err := handle(ctx, coin); err != nil {
		c.logger.Error(ctx, "coin credit failed", "card_id", coin.RFIDCardID, "amount", coin.Amount.String(), "error", err)
		return
	}
	c.logger.Info(ctx, "coin credited", "card_id", coin.RFIDCardID, "amount", coin.Amount.String(), "kiosk_id", coin.KioskID)
}

func (c *CoinConsumer) Close() error {
	return c.consumer.Close()
}
