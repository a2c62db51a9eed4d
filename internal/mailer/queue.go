package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// OutboundQueue carries Message values as JSON to cmd/mailworker.
const OutboundQueue = "mail.outbound"

// publisher is the part of *amqp.Channel that QueueMailer uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// dialFunc opens a channel with the outbound queue declared and returns it
// with a func closing the underlying connection.
type dialFunc func(url string) (publisher, func() error, error)

// QueueMailer hands messages to RabbitMQ so request handlers never wait on
// SMTP. A closed channel or connection is redialled on the next Send.
type QueueMailer struct {
	url  string
	dial dialFunc

	mu        sync.Mutex
	ch        publisher
	closeConn func() error
}

// DialQueueMailer connects once up front so a bad RABBITMQ_URL fails startup.
func DialQueueMailer(url string) (*QueueMailer, error) {
	return newQueueMailer(url, dialAMQP)
}

func newQueueMailer(url string, dial dialFunc) (*QueueMailer, error) {
	q := &QueueMailer{url: url, dial: dial}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

func dialAMQP(url string) (publisher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(OutboundQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	return ch, conn.Close, nil
}

// connect must be called with q.mu held, except from newQueueMailer.
func (q *QueueMailer) connect() error {
	q.disconnect()
	ch, closeConn, err := q.dial(q.url)
	if err != nil {
		return err
	}
	q.ch, q.closeConn = ch, closeConn
	return nil
}

func (q *QueueMailer) disconnect() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.closeConn != nil {
		_ = q.closeConn()
	}
	q.ch, q.closeConn = nil, nil
}

func (q *QueueMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ch == nil || q.ch.IsClosed() {
		log.Println("⚠️  RabbitMQ channel closed, reconnecting")
		if err := q.connect(); err != nil {
			return err
		}
	}

	err = q.ch.PublishWithContext(ctx, "", OutboundQueue, false, false, publishing)
	if errors.Is(err, amqp.ErrClosed) {
		log.Println("⚠️  RabbitMQ publish hit a closed channel, reconnecting")
		if err := q.connect(); err != nil {
			return err
		}
		err = q.ch.PublishWithContext(ctx, "", OutboundQueue, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (q *QueueMailer) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	if q.ch != nil {
		errs = append(errs, q.ch.Close())
	}
	if q.closeConn != nil {
		errs = append(errs, q.closeConn())
	}
	q.ch, q.closeConn = nil, nil
	return errors.Join(errs...)
}

// Consume delivers queued messages through next until ctx is cancelled,
// reconnecting with backoff when the broker goes away.
func Consume(ctx context.Context, url string, next Mailer) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("mail-worker: dial failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, next)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("mail-worker: consume loop ended: %v; reconnecting", err)
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, next Mailer) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(OutboundQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, OutboundQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range deliveries {
		if err := Deliver(ctx, d.Body, next); err != nil {
			log.Printf("mail-worker: delivery failed: %v", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Deliver decodes one queued message and sends it through next.
func Deliver(ctx context.Context, body []byte, next Mailer) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode mail: %w", err)
	}
	if len(msg.To) == 0 {
		return errors.New("mail has no recipients")
	}
	return next.Send(ctx, msg)
}
