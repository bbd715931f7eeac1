// Package relay hands queued inbox notifications to push transports.
// The inbox row is always written first; relays only speed up delivery.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

// Channel is the part of an AMQP channel the relay publishes through
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a connection and a channel with the exchange declared
type Dialer func(url, exchange string) (Channel, io.Closer, error)

// AMQP publishes every notification as a persistent JSON message
type AMQP struct {
	mu         sync.Mutex
	url        string
	exchange   string
	routingKey string
	dial       Dialer
	conn       io.Closer
	channel    Channel
}

// NewAMQP connects to url and declares a durable direct exchange
func NewAMQP(url, exchange, routingKey string) (*AMQP, error) {
	return NewAMQPWithDialer(url, exchange, routingKey, Dial)
}

// NewAMQPWithDialer is NewAMQP with a custom connection factory
func NewAMQPWithDialer(url, exchange, routingKey string, dial Dialer) (*AMQP, error) {
	a := &AMQP{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
		dial:       dial,
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.connectLocked(); err != nil {
		return nil, err
	}
	return a, nil
}

// Dial is the streadway/amqp Dialer
func Dial(url, exchange string) (Channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return ch, conn, nil
}

// Push publishes n with the configured routing key. A closed connection is
// redialled once.
func (a *AMQP) Push(ctx context.Context, n models.InboxNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    n.ID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.channel == nil {
		if err := a.connectLocked(); err != nil {
			return err
		}
	}
	err = a.channel.Publish(a.exchange, a.routingKey, false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		a.closeLocked()
		if connErr := a.connectLocked(); connErr != nil {
			return fmt.Errorf("failed to publish notification: %w (reconnect failed: %v)", err, connErr)
		}
		err = a.channel.Publish(a.exchange, a.routingKey, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("context done while publishing notification: %w", ctx.Err())
	}
	return nil
}

// Close closes the channel and connection
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.channel != nil {
		if chErr := a.channel.Close(); chErr != nil {
			zap.S().Warnw("failed to close amqp channel", "error", chErr)
			err = chErr
		}
		a.channel = nil
	}
	if a.conn != nil {
		if connErr := a.conn.Close(); connErr != nil {
			zap.S().Warnw("failed to close amqp connection", "error", connErr)
			if err == nil {
				err = connErr
			}
		}
		a.conn = nil
	}
	return err
}

func (a *AMQP) connectLocked() error {
	ch, conn, err := a.dial(a.url, a.exchange)
	if err != nil {
		return err
	}
	a.channel = ch
	a.conn = conn
	return nil
}

func (a *AMQP) closeLocked() {
	if a.channel != nil {
		_ = a.channel.Close()
		a.channel = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
