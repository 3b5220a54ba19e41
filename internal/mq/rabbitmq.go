package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/taskhub/apiserver/config"
)

const contentTypeJSON = "application/json"

// RabbitMQClient publishes with broker confirms on one channel and consumes
// on a second, so a slow consumer never blocks HTTP request publishing.
type RabbitMQClient struct {
	conn            *amqp.Connection
	publishCh       *amqp.Channel
	consumeCh       *amqp.Channel
	queueDurable    bool
	queueAutoDelete bool

	publishMu sync.Mutex
	declared  sync.Map
}

// NewRabbitMQClient dials the broker and opens the publish and consume channels.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	publishCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := publishCh.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	consumeCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if cfg.PrefetchCount > 0 {
		if err := consumeCh.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		publishCh:       publishCh,
		consumeCh:       consumeCh,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
	}, nil
}

// Publish sends a persistent JSON message to the named queue and waits for
// the broker to confirm it.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}
	messageID := uuid.NewString()

	r.publishMu.Lock()
	if err := r.ensureQueue(r.publishCh, channel); err != nil {
		r.publishMu.Unlock()
		return "", err
	}
	confirm, err := r.publishCh.PublishWithDeferredConfirmWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Headers:      headers,
		Body:         data,
	})
	r.publishMu.Unlock()
	if err != nil {
		return "", err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", err
	}
	if !acked {
		return "", fmt.Errorf("rabbitmq nacked message %s", messageID)
	}
	return messageID, nil
}

// Subscribe consumes the named queue until ctx is done. A handler error
// requeues the delivery.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if err := r.ensureQueue(r.consumeCh, channel); err != nil {
		return err
	}

	consumerTag := "taskhub-worker-" + uuid.NewString()
	deliveries, err := r.consumeCh.ConsumeWithContext(ctx, channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.consumeCh.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			message := Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			if err := handler(ctx, message); err != nil {
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes both channels and the connection.
func (r *RabbitMQClient) Close() error {
	if r.publishCh != nil {
		_ = r.publishCh.Close()
	}
	if r.consumeCh != nil {
		_ = r.consumeCh.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// ensureQueue declares name once per channel.
func (r *RabbitMQClient) ensureQueue(ch *amqp.Channel, name string) error {
	key := fmt.Sprintf("%p/%s", ch, name)
	if _, ok := r.declared.Load(key); ok {
		return nil
	}
	if _, err := ch.QueueDeclare(name, r.queueDurable, r.queueAutoDelete, false, false, nil); err != nil {
		return err
	}
	r.declared.Store(key, struct{}{})
	return nil
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
