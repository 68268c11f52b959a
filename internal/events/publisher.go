package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends events to RabbitMQ.  It dials per publish, so a broker that
// is down only costs the event, never the request.  A nil *Publisher is valid
// and drops every event.
type Publisher struct {
	url     string
	timeout time.Duration
	log     zerolog.Logger
}

// NewPublisher returns nil when url is empty, which disables publishing.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	if url == "" {
		return nil
	}
	return &Publisher{url: url, timeout: 5 * time.Second, log: log}
}

// PostCreated publishes ev to QueuePostCreated.
func (p *Publisher) PostCreated(ctx context.Context, ev PostCreatedEvent) error {
	return p.publish(ctx, QueuePostCreated, ev)
}

// ProfileUpdated publishes ev to QueueProfileUpdated.
func (p *Publisher) ProfileUpdated(ctx context.Context, ev ProfileUpdatedEvent) error {
	return p.publish(ctx, QueueProfileUpdated, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, ev any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", queue, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
	if err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, queue); err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq queue declare failed")
		return err
	}

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         queue,
		Body:         body,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq publish failed")
		return err
	}
	return nil
}

func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(queue, true, false, false, false, nil)
}
