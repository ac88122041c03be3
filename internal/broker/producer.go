// Package broker implements the AMQP link shared by the uplink producer
// (spec C5) and the command consumer (spec C6): a reconnecting client with
// exponential backoff, topic exchanges, and publisher confirms.
package broker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/logger"
)

// Producer publishes JSON payloads to a topic exchange with publisher
// confirms and a per-message TTL.
type Producer struct {
	log      *zap.SugaredLogger
	exchange string
	ttl      time.Duration

	ch *amqp.Channel
}

// NewProducer wraps an already-open channel (obtained from Link's current
// connection) configured for confirm-mode publishing to exchange. exchange
// is declared durable topic here, the same way Link.consumeUntilClosed
// declares the command exchange, so publishing against a fresh broker
// doesn't fail with an undeclared-exchange channel exception.
func NewProducer(ch *amqp.Channel, exchange string, ttl time.Duration, log *zap.SugaredLogger) (*Producer, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, errors.Wrap(err, "declare exchange")
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Wrap(err, "enable publisher confirms")
	}
	return &Producer{
		log:      log.With(logger.FieldComponent, "broker-producer"),
		exchange: exchange,
		ttl:      ttl,
		ch:       ch,
	}, nil
}

// Publish serializes v to JSON and publishes it to routingKey, waiting for
// the broker's publisher confirm before returning. JSON errors are logged
// and the item dropped (never retried); transient publish errors are
// returned to the caller for reconnection handling.
func (p *Producer) Publish(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		p.log.Errorw("dropping uplink item: json marshal failed", "error", err, "routing_key", routingKey)
		return nil
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Expiration:  strconv.FormatInt(p.ttl.Milliseconds(), 10),
	})
	if err != nil {
		return errors.Wrap(err, "publish")
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return errors.Wrap(err, "wait for publisher confirm")
	}
	if !ok {
		return errors.New("broker nacked publish")
	}
	return nil
}
