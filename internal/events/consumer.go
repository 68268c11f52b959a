package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AuditFile is the file under the audit directory that receives one line per event.
const AuditFile = "audit.log"

// Consumer drains the event queues into an append-only audit log.
type Consumer struct {
	url string
	dir string
	log zerolog.Logger
	mu  sync.Mutex
}

func NewConsumer(url, dir string, log zerolog.Logger) *Consumer {
	return &Consumer{url: url, dir: dir, log: log}
}

// Run connects, consumes and reconnects with backoff until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("audit consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("audit consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("audit consumer: set qos failed")
	}

	merged := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	var wg sync.WaitGroup
	for _, q := range Queues {
		if _, err := declare(ch, q); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range msgs {
				select {
				case merged <- d:
				case <-done:
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	c.log.Info().Strs("queues", Queues).Msg("audit consumer: consuming")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-merged:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.RoutingKey, d.Body); err != nil {
				c.log.Error().Err(err).Str("queue", d.RoutingKey).Msg("audit consumer: handle message failed")
				// Rejected without requeue to avoid a poison-message loop.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handleMessage decodes body according to queue and appends one line to the
// audit log.
func (c *Consumer) handleMessage(queue string, body []byte) error {
	var line string
	switch queue {
	case QueuePostCreated:
		var ev PostCreatedEvent
		if err := decode(body, &ev); err != nil {
			return err
		}
		line = fmt.Sprintf("[%s] post created | post_id=%d | user_id=%d | username=%q | title=%q\n",
			ev.CreatedAt.UTC().Format(time.RFC3339), ev.PostID, ev.UserID, ev.Username, ev.Title)
	case QueueProfileUpdated:
		var ev ProfileUpdatedEvent
		if err := decode(body, &ev); err != nil {
			return err
		}
		line = fmt.Sprintf("[%s] profile updated | user_id=%d | username=%q | password_changed=%t\n",
			ev.UpdatedAt.UTC().Format(time.RFC3339), ev.UserID, ev.Username, ev.PasswordChanged)
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
	return c.appendLine(line)
}

func (c *Consumer) appendLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, AuditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", reflect.TypeOf(v).Elem().Name(), err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
