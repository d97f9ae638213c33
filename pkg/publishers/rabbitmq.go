package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// rabbitMQSender publishes events to an AMQP exchange.
type rabbitMQSender struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
	log        Logger
}

func newRabbitMQPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.RabbitMQ == nil {
		return nil, fmt.Errorf("publisher %q missing rabbitmq configuration", cfg.ID)
	}
	s, err := dialRabbitMQ(*cfg.RabbitMQ, log)
	if err != nil {
		return nil, err
	}
	return &queuePublisher{id: cfg.ID, typ: TypeRabbitMQ, sender: s}, nil
}

// dialRabbitMQ connects, declares the exchange and, when configured, a bound durable queue.
func dialRabbitMQ(cfg RabbitMQPublisherConfig, log Logger) (*rabbitMQSender, error) {
	log = ensureLogger(log)

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if cfg.Queue != "" {
		q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue: %w", err)
		}
	}

	log.InfoObj("connected to rabbitmq", "publisher_rabbitmq", map[string]any{
		"exchange":    cfg.Exchange,
		"queue":       cfg.Queue,
		"routing_key": cfg.RoutingKey,
	})

	return &rabbitMQSender{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		log:        log,
	}, nil
}

// Send publishes a persistent JSON message; channels are not goroutine safe so sends are serialized.
func (r *rabbitMQSender) Send(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range evt.attributes() {
		headers[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    evt.ID,
		Type:         evt.Type,
		Headers:      headers,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		r.log.ErrorObj("rabbitmq publisher send failed", "publisher_rabbitmq_error", map[string]any{
			"exchange": r.exchange,
			"error":    err.Error(),
		})
		return fmt.Errorf("publish message: %w", err)
	}
	r.log.DebugObj("rabbitmq publisher delivered event", "publisher_rabbitmq_delivery", map[string]any{
		"exchange": r.exchange,
		"event_id": evt.ID,
	})
	return nil
}

func (r *rabbitMQSender) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
