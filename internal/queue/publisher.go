package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/lifecycle"
	"github.com/iliyamo/court-booking/internal/model"
)

// DefaultDialTimeout bounds the TCP connect and AMQP handshake of a publish.
const DefaultDialTimeout = 3 * time.Second

// Publisher sends reservation events to RabbitMQ. It dials per publish;
// notification volume is a handful of messages per booking. Publishes run
// on request paths, so a down broker costs at most DialTimeout per event.
type Publisher struct {
	URL         string
	DialTimeout time.Duration
	Log         logrus.FieldLogger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{URL: url, DialTimeout: DefaultDialTimeout, Log: log}
}

func (p *Publisher) dialConfig() amqp.Config {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	}
}

// Notify publishes event for r. Errors are logged and returned; callers
// decide whether to ignore them.
func (p *Publisher) Notify(ctx context.Context, event lifecycle.Event, r model.Reservation) error {
	return p.Publish(ctx, NewReservationEvent(string(event), r, time.Now()))
}

// Publish sends ev as a persistent JSON message on NotificationQueue.
func (p *Publisher) Publish(ctx context.Context, ev ReservationEvent) error {
	log := p.Log.WithFields(logrus.Fields{"event": ev.Event, "reservation_id": ev.ReservationID})

	conn, err := amqp.DialConfig(p.URL, p.dialConfig())
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return fmt.Errorf("declare queue: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Event,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", NotificationQueue, false, false, pub); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log instead of a broker. It is
// used when no broker is configured.
type LogNotifier struct {
	Log      logrus.FieldLogger
	Renderer Renderer
}

func (n LogNotifier) Notify(_ context.Context, event lifecycle.Event, r model.Reservation) error {
	msg := n.Renderer.Render(NewReservationEvent(string(event), r, time.Now()))
	n.Log.WithFields(logrus.Fields{
		"event":          string(event),
		"reservation_id": r.ID,
		"to":             msg.To,
		"subject":        msg.Subject,
	}).Info("notification")
	return nil
}
