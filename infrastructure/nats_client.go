package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const natsClientName = "raffler"

// NATSClient wraps a NATS connection with JetStream publishing and durable subscriptions
type NATSClient struct {
	servers              []string
	nc                   *nats.Conn
	js                   nats.JetStreamContext
	subscriptions        map[string]*nats.Subscription
	mu                   sync.RWMutex
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// NewNATSClient creates a client for the given servers
func NewNATSClient(servers []string) *NATSClient {
	return &NATSClient{
		servers:              servers,
		subscriptions:        make(map[string]*nats.Subscription),
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: 10,
	}
}

// Connect establishes a connection to the NATS server with JetStream
func (c *NATSClient) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(natsClientName),
		nats.MaxReconnects(c.maxReconnectAttempts),
		nats.ReconnectWait(c.reconnectDelay),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := log.Fields{"error": err}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			log.WithFields(fields).Error("NATS async error")
		}),
	}

	nc, err := nats.Connect(strings.Join(c.servers, ","), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.nc = nc
	c.js = js

	log.WithField("servers", c.servers).Info("Connected to NATS with JetStream")
	return nil
}

// Subscribe registers a durable consumer for subject. A handler error NAKs the
// message for redelivery, up to three attempts.
func (c *NATSClient) Subscribe(subject string, handler func([]byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	sanitized := strings.ReplaceAll(subject, ".", "_")
	sanitized = strings.ReplaceAll(sanitized, "*", "wildcard")
	consumerName := fmt.Sprintf("%s-%s", natsClientName, sanitized)

	sub, err := c.js.Subscribe(
		subject,
		func(msg *nats.Msg) {
			if err := handler(msg.Data); err != nil {
				log.WithFields(log.Fields{
					"subject": subject,
					"error":   err,
				}).Error("Failed to process message")

				if nakErr := msg.Nak(); nakErr != nil {
					log.WithError(nakErr).Error("Failed to NAK message")
				}
				return
			}

			if ackErr := msg.Ack(); ackErr != nil {
				log.WithError(ackErr).Error("Failed to ACK message")
			}
		},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.subscriptions[subject] = sub
	log.WithField("subject", subject).Info("Subscribed to NATS subject")
	return nil
}

// Close unsubscribes everything and closes the connection
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.WithFields(log.Fields{
				"subject": subject,
				"error":   err,
			}).Error("Failed to unsubscribe")
		}
	}
	c.subscriptions = make(map[string]*nats.Subscription)

	if c.nc != nil {
		c.nc.Close()
		log.Info("NATS connection closed")
	}
	return nil
}

// EnsureStream creates the JetStream stream when it does not exist yet
func (c *NATSClient) EnsureStream(streamName string, subjects []string) error {
	if c.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	if _, err := c.js.StreamInfo(streamName); err == nil {
		log.WithField("stream", streamName).Info("JetStream stream already exists")
		return nil
	}

	cfg := &nats.StreamConfig{
		Name:        streamName,
		Subjects:    subjects,
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Duplicates:  10 * time.Minute,
		Description: "Raffle draw phases, results and observed claims",
	}
	if _, err := c.js.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}

	log.WithFields(log.Fields{
		"stream":   streamName,
		"subjects": subjects,
	}).Info("Created JetStream stream")
	return nil
}

// Publish publishes a message to subject through JetStream. Messages with the
// same msgID inside the stream's duplicate window are stored once.
func (c *NATSClient) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	if c.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}
	ack, err := c.js.Publish(subject, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"size":      len(data),
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	}).Debug("Published message to NATS")
	return nil
}
