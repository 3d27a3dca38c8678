package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testOrder() *model.Order {
	return &model.Order{
		ID:            42,
		CustomerID:    7,
		TotalPrice:    decimal.RequireFromString("1250.5"),
		ShippingFee:   decimal.NewFromInt(600),
		PaymentMethod: model.PaymentCIB,
		Status:        model.OrderStatusPending,
		Items:         []model.OrderItem{{}, {}},
	}
}

func TestNewOrderEvent(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	e, err := NewOrderEvent(EventOrderCreated, testOrder(), "order placed", at)
	require.NoError(t, err)
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, int64(42), e.OrderID)
	assert.Equal(t, EventOrderCreated, e.Type)

	var decoded Event
	require.NoError(t, json.Unmarshal(e.Payload, &decoded))
	assert.Equal(t, e.EventID, decoded.EventID)
	assert.Equal(t, "1250.50", decoded.Payload.TotalPrice)
	assert.Equal(t, "600.00", decoded.Payload.ShippingFee)
	assert.Equal(t, 2, decoded.Payload.Items)
	assert.Equal(t, "order placed", decoded.Payload.Notes)

	other, err := NewOrderEvent(EventOrderCreated, testOrder(), "", at)
	require.NoError(t, err)
	assert.NotEqual(t, e.EventID, other.EventID)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)

	e, err := NewOrderEvent(EventOrderStatusChanged, testOrder(), "", time.Now())
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.Equal(t, e.Payload, w.msgs[0].Value)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	errBroker := errors.New("broker unavailable")
	p := NewPublisher(&fakeWriter{err: errBroker})

	err := p.Publish(context.Background(), testOrderEvent(t))
	assert.ErrorIs(t, err, errBroker)
}

func testOrderEvent(t *testing.T) repository.OutboxEvent {
	t.Helper()
	ev, err := NewOrderEvent(EventOrderCreated, testOrder(), "", time.Now())
	require.NoError(t, err)
	return ev
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestNewKafkaPublisher_ShortBatchTimeout(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "pharmacy.orders")
	defer p.Close()

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "pharmacy.orders", w.Topic)
	assert.Equal(t, publishBatchTimeout, w.BatchTimeout)
}
