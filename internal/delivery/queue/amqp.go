package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	ddomain "github.com/corvusHold/certify/internal/delivery/domain"
)

const (
	Exchange   = "certify.delivery"
	QueueName  = "certificate_emails"
	DeadLetter = "certificate_emails.dlq"
	routingKey = QueueName
)

// AMQP publishes jobs to a durable RabbitMQ queue whose rejected messages are
// dead-lettered to DeadLetter.
type AMQP struct {
	conn     *amqp.Connection
	log      zerolog.Logger
	prefetch int

	mu  sync.Mutex
	pub *amqp.Channel
}

// DialAMQP connects and declares the delivery topology.
func DialAMQP(url string, prefetch int, log zerolog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	if err := declareTopology(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &AMQP{conn: conn, pub: pub, prefetch: prefetch, log: log}, nil
}

func declareTopology(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq: %w", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetter,
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueName, err)
	}
	if err := ch.QueueBind(QueueName, routingKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueName, err)
	}
	return nil
}

func (q *AMQP) Enqueue(_ context.Context, job ddomain.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pub.Publish(Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.EnqueuedAt,
		Body:         body,
	})
}

func (q *AMQP) Consume(ctx context.Context) (<-chan ddomain.Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp consume: %w", err)
	}

	out := make(chan ddomain.Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					q.log.Warn().Msg("amqp delivery channel closed")
					return
				}
				var job ddomain.Job
				if err := json.Unmarshal(m.Body, &job); err != nil {
					q.log.Error().Err(err).Str("message_id", m.MessageId).Msg("undecodable delivery job; dead-lettering")
					_ = m.Nack(false, false)
					continue
				}
				d := ddomain.Delivery{
					Job:    job,
					Ack:    func() error { return m.Ack(false) },
					Reject: func() error { return m.Nack(false, false) },
				}
				select {
				case out <- d:
				case <-ctx.Done():
					// unacked; the broker redelivers once the channel closes
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *AMQP) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pub != nil {
		_ = q.pub.Close()
	}
	return q.conn.Close()
}
