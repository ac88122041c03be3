package broker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/logger"
)

// Link owns a reconnecting AMQP connection, reused by both the command
// consumer (C6) and the uplink/status producers (C5). Reconnection uses
// exponential backoff: starts at initialBackoff, doubles on each failed
// attempt, capped at maxBackoff; a successful connect-channel-declare
// sequence resets the backoff to initialBackoff.
type Link struct {
	url           string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            *zap.SugaredLogger
}

// NewLink builds a Link. Dial does not happen until Connect is called.
func NewLink(url string, initialBackoff, maxBackoff time.Duration, log *zap.SugaredLogger) *Link {
	return &Link{
		url:            url,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		log:            log.With(logger.FieldComponent, "broker-link"),
	}
}

// Connect dials and returns an open channel, retrying with exponential
// backoff until it succeeds or ctx is cancelled.
func (l *Link) Connect(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	wait := l.initialBackoff
	for {
		conn, ch, err := l.dial()
		if err == nil {
			return conn, ch, nil
		}
		l.log.Warnw("broker connect failed, backing off", "error", err, "wait", wait)

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if wait > l.maxBackoff {
			wait = l.maxBackoff
		}
	}
}

func (l *Link) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(l.url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dial amqp broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "open amqp channel")
	}
	return conn, ch, nil
}

// RunConsumer drives a durable topic-exchange consumer in a reconnect loop
// until ctx is cancelled, per spec §4.6: declare the command exchange and
// this node's per-hw_id queue, consume deliveries, ack unconditionally,
// and hand each envelope to handle. On shutdown it exits even mid-backoff.
func (l *Link) RunConsumer(ctx context.Context, exchange, queueName, routingKey string, handle func([]byte)) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, ch, err := l.Connect(ctx)
		if err != nil {
			return // ctx cancelled while backing off
		}

		if consumeErr := l.consumeUntilClosed(ctx, ch, exchange, queueName, routingKey, handle); consumeErr != nil {
			l.log.Warnw("consumer connection lost, reconnecting", "error", consumeErr)
		}
		ch.Close()
		conn.Close()
	}
}

func (l *Link) consumeUntilClosed(ctx context.Context, ch *amqp.Channel, exchange, queueName, routingKey string, handle func([]byte)) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declare exchange")
	}
	q, err := ch.QueueDeclare(queueName, false, true, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "declare queue")
	}
	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return errors.Wrap(err, "bind queue")
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "start consume")
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-closed:
			if err != nil {
				return err
			}
			return errors.New("channel closed")
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			d.Ack(false)
			handle(d.Body)
		}
	}
}
