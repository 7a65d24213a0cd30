package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// Exchange - tüm settlement olaylarının yayınlandığı fanout exchange
const Exchange = "settlement_events"

// Dial - RabbitMQ bağlantısı (retry ile)
func Dial(url string, log zerolog.Logger) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn().Int("attempt", i+1).Int("max", maxRetries).Msg("⏳ RabbitMQ bağlantı bekleniyor...")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq bağlantısı kurulamadı")
	}
	log.Info().Msg("✅ RabbitMQ bağlantısı başarılı")
	return conn, nil
}

func declareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		Exchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
}

type AMQPPublisher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "kanal açılamadı")
	}
	if err := declareExchange(ch); err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "exchange oluşturulamadı")
	}
	return &AMQPPublisher{ch: ch}, nil
}

func (p *AMQPPublisher) Publish(_ context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Wrap(p.ch.Publish(Exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	}), "publish event")
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// Handler - tüketici tarafı
type Handler func(ctx context.Context, e Event) error

// Consume - queue'yu exchange'e bağlar ve mesajları ctx iptal olana kadar işler.
// Handler hatası loglanır, mesaj yeniden kuyruğa alınmaz.
func Consume(ctx context.Context, conn *amqp.Connection, queue string, handle Handler, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "kanal açılamadı")
	}
	defer ch.Close()

	if err := declareExchange(ch); err != nil {
		return errors.Wrap(err, "exchange oluşturulamadı")
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "kuyruk oluşturulamadı")
	}
	if err := ch.QueueBind(q.Name, "", Exchange, false, nil); err != nil {
		return errors.Wrap(err, "kuyruk bağlanamadı")
	}
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consumer başlatılamadı")
	}

	log.Info().Str("queue", q.Name).Msg("🎧 olaylar dinleniyor")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp teslimat kanalı kapandı")
			}
			handleDelivery(ctx, d, handle, log)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, handle Handler, log zerolog.Logger) {
	var e Event
	if err := json.Unmarshal(d.Body, &e); err != nil {
		log.Error().Err(err).Str("message_id", d.MessageId).Msg("olay çözümlenemedi")
		d.Nack(false, false)
		return
	}
	if err := handle(ctx, e); err != nil {
		log.Error().Err(err).Str("event_id", e.ID).Str("type", string(e.Type)).Msg("olay işlenemedi")
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}
