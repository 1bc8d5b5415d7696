// Package broker публикует события заявок в RabbitMQ для внешних потребителей.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"repair-desk/pkg/config"
)

const (
	dialAttempts = 5
	dialDelay    = time.Second
	maxDialDelay = 30 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, env Envelope) error
	Close() error
}

// RabbitPublisher - topic exchange, persistent сообщения, подтверждения брокера.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger
}

// Dial подключается с экспоненциальной паузой между попытками и объявляет exchange.
func Dial(ctx context.Context, cfg config.AMQPConfig, logger *zap.Logger) (*RabbitPublisher, error) {
	logger = logger.Named("amqp")

	var (
		conn    *amqp.Connection
		lastErr error
		delay   = dialDelay
	)
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, lastErr = amqp.Dial(cfg.URL)
		if lastErr == nil {
			break
		}
		logger.Warn("Не удалось подключиться к RabbitMQ", zap.Int("attempt", attempt), zap.Duration("sleep", delay), zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("подключение к RabbitMQ прервано: %w", ctx.Err())
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDialDelay {
			delay = maxDialDelay
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("RabbitMQ недоступен после %d попыток: %w", dialAttempts, lastErr)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("Подключение к RabbitMQ установлено", zap.String("exchange", cfg.Exchange))
	return &RabbitPublisher{conn: conn, exchange: cfg.Exchange, logger: logger}, nil
}

// Publish ждёт подтверждения брокера. Канал на каждое сообщение: события редкие.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать конверт: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		AppId:         env.Meta.Producer,
		Timestamp:     env.Meta.Time,
		Body:          body,
	})
	if err != nil {
		return err
	}
	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("брокер не подтвердил сообщение")
	}

	p.logger.Debug("Событие опубликовано", zap.String("key", routingKey), zap.String("id", env.Meta.ID))
	return nil
}

func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}
