package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"civicspot/models"
)

const (
	dialTimeout       = 2 * time.Second
	reconnectCooldown = 10 * time.Second
)

var errReconnectCoolingDown = errors.New("RabbitMQ unavailable, waiting before reconnecting")

// Publisher sends report lifecycle events to a direct exchange. The event
// type is used as routing key, so consumers bind to the events they need.
type Publisher struct {
	mu       sync.Mutex
	amqpURL  string
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string

	dial       func(url string) (*amqp.Connection, error)
	now        func() time.Time
	lastFailed time.Time
}

func NewPublisher(amqpURL, exchange string) (*Publisher, error) {
	p := newPublisher(amqpURL, exchange)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	log.WithField("exchange", exchange).Info("connected to RabbitMQ")
	return p, nil
}

func newPublisher(amqpURL, exchange string) *Publisher {
	return &Publisher{
		amqpURL:  amqpURL,
		exchange: exchange,
		dial: func(url string) (*amqp.Connection, error) {
			return amqp.DialConfig(url, amqp.Config{
				Heartbeat: 10 * time.Second,
				Locale:    "en_US",
				Dial:      amqp.DefaultDial(dialTimeout),
			})
		},
		now: time.Now,
	}
}

// Publish sends one event. While the broker is unreachable, reconnects are
// attempted at most once per cooldown and other calls fail fast.
func (p *Publisher) Publish(ctx context.Context, event models.ReportEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	publishing, err := newPublishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		p.closeLocked()
		if err := p.reconnectLocked(); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, event.Type, false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		p.closeLocked()
		if connErr := p.reconnectLocked(); connErr != nil {
			return fmt.Errorf("failed to publish event: %w (reconnect failed: %v)", err, connErr)
		}
		err = p.channel.Publish(p.exchange, event.Type, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.channel != nil {
		err = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil && err == nil {
			err = connErr
		}
		p.conn = nil
	}
	return err
}

func (p *Publisher) reconnectLocked() error {
	if !p.lastFailed.IsZero() && p.now().Sub(p.lastFailed) < reconnectCooldown {
		return errReconnectCoolingDown
	}
	if err := p.connectLocked(); err != nil {
		p.lastFailed = p.now()
		return err
	}
	p.lastFailed = time.Time{}
	return nil
}

func (p *Publisher) connectLocked() error {
	conn, err := p.dial(p.amqpURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *Publisher) closeLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func newPublishing(event models.ReportEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		MessageId:    event.ReportID.Hex() + ":" + event.Type + ":" + fmt.Sprint(event.OccurredAt.UnixNano()),
	}, nil
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

// Noop drops events. Used when AMQP_URL is not configured.
type Noop struct{}

func (Noop) Publish(_ context.Context, event models.ReportEvent) error {
	log.WithFields(log.Fields{
		"event":     event.Type,
		"report_id": event.ReportID.Hex(),
		"at":        event.OccurredAt.Format(time.RFC3339),
	}).Debug("event publishing disabled")
	return nil
}
