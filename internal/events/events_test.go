package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
)

func TestKafkaPublisher_TransactionCreated(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "portal.transactions", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "04A1B2", string(key))

		raw, err := msg.Value.Encode()
		require.NoError(t, err)
		var ev TransactionEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, TypeTransactionCreated, ev.Type)
		assert.Equal(t, models.Centavos(500), ev.Transaction.Amount)
		return nil
	})

	p := NewKafkaPublisher(producer, "portal.transactions", "portal.registrations", logging.Nop())
	err := p.TransactionCreated(context.Background(), models.Transaction{
		ID: "tx-1", RFIDCardID: "04A1B2", Type: models.TxTopUp, Amount: 500,
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_UserRegistered(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(raw []byte) error {
		var ev RegistrationEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		if ev.Type != TypeUserRegistered || ev.FullName != "Maria Santos" || ev.Email != "maria@example.com" {
			return errors.New("unexpected registration event")
		}
		return nil
	})

	p := NewKafkaPublisher(producer, "portal.transactions", "portal.registrations", logging.Nop())
	err := p.UserRegistered(context.Background(), &models.User{
		RFIDCardID: "CAFE01", FirstName: "Maria", LastName: "Santos", Email: "maria@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer, "portal.transactions", "portal.registrations", logging.Nop())
	err := p.TransactionCreated(context.Background(), models.Transaction{RFIDCardID: "04A1B2"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.TransactionCreated(context.Background(), models.Transaction{}))
	assert.NoError(t, p.UserRegistered(context.Background(), &models.User{}))
	assert.NoError(t, p.Close())
}

func TestCoinConsumer_Run(t *testing.T) {
	consumer := mocks.NewConsumer(t, NewConsumerConfig())
	pc := consumer.ExpectConsumePartition("kiosk.coins", 0, sarama.OffsetNewest)
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte(`not json`)})
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte(`{"rfid_card_id":"04A1B2"}`)})
	pc.YieldError(errors.New("broker hiccup"))
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte(`{"rfid_card_id":"04A1B2","amount":5,"kiosk_id":"k1"}`)})
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte(`{"rfid_card_id":"FAIL01","amount":"10.00"}`)})

	got := make(chan models.CoinInserted, 4)
	c := NewCoinConsumer(consumer, "kiosk.coins", logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(_ context.Context, coin models.CoinInserted) error {
			got <- coin
			if coin.RFIDCardID == "FAIL01" {
				return errors.New("card not registered")
			}
			return nil
		})
	}()

	first := <-got
	assert.Equal(t, models.CoinInserted{RFIDCardID: "04A1B2", Amount: 500, KioskID: "k1"}, first)
	second := <-got
	assert.Equal(t, models.Centavos(1000), second.Amount)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Empty(t, got)
	require.NoError(t, c.Close())
}

func TestCoinConsumer_PartitionError(t *testing.T) {
	consumer := mocks.NewConsumer(&ignoreErrors{}, nil)
	c := NewCoinConsumer(consumer, "kiosk.coins", logging.Nop())

	err := c.Run(context.Background(), func(context.Context, models.CoinInserted) error { return nil })
	assert.Error(t, err)
}

// ignoreErrors swallows the mock's report about the missing expectation.
type ignoreErrors struct{}

func (ignoreErrors) Errorf(string, ...any) {}
