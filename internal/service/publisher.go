// Package service provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package service

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/userdata-registry/internal/config"
    q "github.com/iliyamo/userdata-registry/internal/queue"
)

// EventPublisher delivers userdata lifecycle events.
type EventPublisher interface {
    Publish(ctx context.Context, event q.UserDataEvent) error
}

// NopPublisher drops every event.  It is used when EVENTS_ENABLED is off.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, q.UserDataEvent) error { return nil }

// AMQPPublisher publishes events to a durable RabbitMQ queue.  Each call
// dials the broker; dialTimeout bounds the connect and handshake so an
// unreachable broker delays a write by at most that long.
type AMQPPublisher struct {
    url         string
    queue       string
    dialTimeout time.Duration
    log         *logrus.Entry
}

// NewPublisher returns an AMQPPublisher when events are enabled and a
// NopPublisher otherwise.
func NewPublisher(cfg config.EventsConfig, log *logrus.Entry) EventPublisher {
    if !cfg.Enabled {
        return NopPublisher{}
    }
    if log == nil {
        log = logrus.NewEntry(logrus.StandardLogger())
    }
    timeout := cfg.DialTimeout
    if timeout <= 0 {
        timeout = 2 * time.Second
    }
    return &AMQPPublisher{url: cfg.URL, queue: cfg.Queue, dialTimeout: timeout, log: log}
}

// Publish sends event to the configured queue.  The function attempts to be
// robust and to never panic; any error is logged and returned so the caller
// can choose to ignore it.  Messages are marked as persistent.
func (p *AMQPPublisher) Publish(ctx context.Context, event q.UserDataEvent) error {
    log := p.log.WithFields(logrus.Fields{"event": event.Event, "registrationid": event.RegistrationID})

    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(p.dialTimeout),
    })
    if err != nil {
        log.WithError(err).Warn("rabbitmq: dial failed")
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.WithError(err).Warn("rabbitmq: channel open failed")
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        p.queue, // name
        true,    // durable
        false,   // autoDelete
        false,   // exclusive
        false,   // noWait
        nil,     // args
    ); err != nil {
        log.WithError(err).Warn("rabbitmq: queue declare failed")
        return err
    }

    body, err := json.Marshal(event)
    if err != nil {
        log.WithError(err).Warn("rabbitmq: marshal event failed")
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Type:         event.Event,
        Body:         body,
    }

    pubCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
    defer cancel()
    if err := ch.PublishWithContext(pubCtx,
        "",      // default exchange
        p.queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        pub,
    ); err != nil {
        log.WithError(err).Warn("rabbitmq: publish failed")
        return err
    }

    return nil
}
