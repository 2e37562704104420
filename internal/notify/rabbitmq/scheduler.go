// Package rabbitmq implements the reminder.Scheduler contract over an AMQP
// topic exchange. It publishes schedule and cancel commands; the delivery
// worker that actually fires notifications at the requested instant lives
// outside this service.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const (
	routingKeySchedule = "reminder.schedule"
	routingKeyCancel   = "reminder.cancel"
)

type scheduleCommand struct {
	Handle        string    `json:"handle"`
	FireAt        time.Time `json:"fire_at"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	CorrelationID string    `json:"correlation_id"`
}

type cancelCommand struct {
	Handle string `json:"handle"`
}

// Scheduler publishes reminder commands to RabbitMQ. The handle returned from
// ScheduleAt is generated locally and carried as the AMQP message id, so a
// later Cancel for the same handle can be matched downstream.
type Scheduler struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func New(url, exchange string) (*Scheduler, error) {
	const op = "notify.rabbitmq.New"

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Scheduler{conn: conn, channel: channel, exchange: exchange}, nil
}

func (s *Scheduler) ScheduleAt(ctx context.Context, at time.Time, title, body, correlationID string) (string, error) {
	const op = "notify.rabbitmq.ScheduleAt"

	handle := uuid.NewString()
	cmd := scheduleCommand{
		Handle:        handle,
		FireAt:        at.UTC(),
		Title:         title,
		Body:          body,
		CorrelationID: correlationID,
	}

	if err := s.publish(ctx, routingKeySchedule, handle, cmd); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return handle, nil
}

func (s *Scheduler) Cancel(ctx context.Context, handle string) error {
	const op = "notify.rabbitmq.Cancel"

	if err := s.publish(ctx, routingKeyCancel, handle, cancelCommand{Handle: handle}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Scheduler) publish(ctx context.Context, routingKey, messageID string, payload any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return s.channel.PublishWithContext(ctx,
		s.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    messageID,
			Body:         jsonBody,
		})
}

func (s *Scheduler) Close() error {
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.conn.Close()
			return err
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
