package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

// Writer: часть kafka.Writer, нужная публикатору.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher публикует события outbox в один топик. Ключ сообщения: id заказа,
// поэтому события одного заказа попадают в одну партицию и сохраняют порядок.
type KafkaPublisher struct {
	writer Writer
}

// ParseBrokers разбирает список брокеров через запятую.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// publishBatchTimeout ограничивает ожидание накопления пачки: события отправляются по одному
// и синхронно, а по умолчанию kafka.Writer ждёт секунду.
const publishBatchTimeout = 10 * time.Millisecond

// NewKafkaPublisher создаёт публикатор поверх kafka.Writer.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: publishBatchTimeout,
	})
}

// NewPublisher создаёт публикатор поверх произвольного Writer.
func NewPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish отправляет событие и ждёт подтверждения брокера.
func (p *KafkaPublisher) Publish(ctx context.Context, e repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.EventID)},
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", e.EventID, err)
	}
	return nil
}

// Close закрывает соединения с брокерами.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
