// Package pubsub implements [4.3 Pub/Sub Client]: the narrow polymorphic
// contract the core needs from the cluster-wide message bus — connect,
// subscribe-and-decode, and the routing-table lookups that let the
// Participant Service forward a message to the node that currently owns a
// participant's connection.
package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/chatfabric/relay-node/internal/domain/wire"
)

// Subjects used by the core (§4.3).
const (
	subjectNodeJoined = "v1/node/joined"
)

// PassOverSubject returns the subject a node's inbound (or a peer's
// outbound) forwarded direct messages are published on.
func PassOverSubject(node string) string {
	return fmt.Sprintf("v1/node/%s/participants/pass-over", node)
}

// SubscriptionHandler decodes and reacts to a frame published on a subject.
// The client keeps no per-subject decoder: this core's subscriptions are
// always ParticipantPassOver, so the handler receives the raw payload and
// decodes it itself.
type SubscriptionHandler func(ctx context.Context, payload []byte) error

// Config carries the bus connection settings from §6 EXTERNAL INTERFACES.
type Config struct {
	Servers               []string
	Verbose               bool
	AllowReconnect        bool
	ConnectTimeout        time.Duration
	ReconnectTimeWait     time.Duration
	MaxReconnectAttempts  int
	LocalNode             string
	ParticipantBucketName string
}

// Client is the narrow contract described in §4.3.
type Client interface {
	StartUp(ctx context.Context) error
	Shutdown(ctx context.Context) error
	RegisterSubscriptionHandler(subject string, handler SubscriptionHandler)
	RegisterSubscriber(owner string)
	FetchLastKnownNode(ctx context.Context, routingIdentifier string) (node string, found bool, err error)
	RegisterParticipant(ctx context.Context, routingIdentifier string) error
	PassoverDirectMessageTo(ctx context.Context, node string, passover wire.ParticipantPassOver) error
}

var _ Client = (*NATSClient)(nil)

// NATSClient is the production Client, backed by watermill's NATS
// transport for pub/sub and NATS JetStream's key/value store for the
// routing table (fetch_last_known_node / register_participant).
//
// The teacher wires RabbitMQ through watermill-amqp; this core speaks a
// NATS-shaped configuration surface (§6: nats.servers, nats.verbose, ...),
// so it swaps in watermill-nats/v2 — a sibling transport from the same
// watermill family — while keeping the teacher's publisher/subscriber
// wiring shape.
type NATSClient struct {
	cfg Config

	conn *nats.Conn
	kv   nats.KeyValue

	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter

	mu           sync.RWMutex
	subscriptions map[string]SubscriptionHandler
	owners        []string

	cancelSubs context.CancelFunc
}

// NewNATSClient constructs a client that has not yet connected; call
// StartUp to connect. Subscriptions registered before StartUp are applied
// at connect time and re-applied on reconnect (subscriptions are re-read
// from the in-memory map whenever StartUp (re)subscribes).
func NewNATSClient(cfg Config, logger watermill.LoggerAdapter) *NATSClient {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &NATSClient{
		cfg:           cfg,
		logger:        logger,
		subscriptions: make(map[string]SubscriptionHandler),
	}
}

// RegisterSubscriptionHandler may be called before StartUp.
func (c *NATSClient) RegisterSubscriptionHandler(subject string, handler SubscriptionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[subject] = handler
}

// RegisterSubscriber records the name of the component whose methods are
// bound by handler registrations, for diagnostics only; Go has no runtime
// decorator equivalent to the original's per-method subject tagging.
func (c *NATSClient) RegisterSubscriber(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners = append(c.owners, owner)
}

// StartUp connects to the configured NATS cluster with automatic
// reconnection, builds the JetStream KV bucket backing the routing table,
// and applies every subscription registered so far.
func (c *NATSClient) StartUp(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("chatfabric-relay-node"),
		nats.Timeout(c.cfg.ConnectTimeout),
		nats.ReconnectWait(c.cfg.ReconnectTimeWait),
		nats.MaxReconnects(c.cfg.MaxReconnectAttempts),
	}
	if !c.cfg.AllowReconnect {
		opts = append(opts, nats.NoReconnect())
	}

	conn, err := nats.Connect(joinServers(c.cfg.Servers), opts...)
	if err != nil {
		return fmt.Errorf("pubsub: connecting to nats: %w", err)
	}
	c.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		return fmt.Errorf("pubsub: acquiring jetstream context: %w", err)
	}

	bucket := c.cfg.ParticipantBucketName
	if bucket == "" {
		bucket = "participant-routes"
	}
	kv, err := js.KeyValue(bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
		if err != nil {
			return fmt.Errorf("pubsub: creating kv bucket %q: %w", bucket, err)
		}
	}
	c.kv = kv

	publisher, err := watermillnats.NewPublisher(watermillnats.PublisherConfig{
		URL:         joinServers(c.cfg.Servers),
		NatsOptions: opts,
		Marshaler:   &watermillnats.NATSMarshaler{},
	}, c.logger)
	if err != nil {
		return fmt.Errorf("pubsub: building publisher: %w", err)
	}
	c.publisher = publisher

	subscriber, err := watermillnats.NewSubscriber(watermillnats.SubscriberConfig{
		URL:         joinServers(c.cfg.Servers),
		NatsOptions: opts,
		Unmarshaler: &watermillnats.NATSMarshaler{},
	}, c.logger)
	if err != nil {
		return fmt.Errorf("pubsub: building subscriber: %w", err)
	}
	c.subscriber = subscriber

	subCtx, cancel := context.WithCancel(ctx)
	c.cancelSubs = cancel
	if err := c.applySubscriptions(subCtx); err != nil {
		return err
	}

	return c.publishNodeJoined(ctx)
}

func joinServers(servers []string) string {
	out := ""
	for i, s := range servers {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func (c *NATSClient) applySubscriptions(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for subject, handler := range c.subscriptions {
		messages, err := c.subscriber.Subscribe(ctx, subject)
		if err != nil {
			return fmt.Errorf("pubsub: subscribing to %q: %w", subject, err)
		}
		go c.consume(ctx, subject, handler, messages)
	}
	return nil
}

func (c *NATSClient) consume(ctx context.Context, subject string, handler SubscriptionHandler, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := handler(ctx, msg.Payload); err != nil {
				c.logger.Error("pubsub: handler failed", err, watermill.LogFields{"subject": subject})
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

func (c *NATSClient) publishNodeJoined(ctx context.Context) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(c.cfg.LocalNode))
	msg.SetContext(ctx)
	return c.publisher.Publish(subjectNodeJoined, msg)
}

// Shutdown closes the connection gracefully.
func (c *NATSClient) Shutdown(_ context.Context) error {
	if c.cancelSubs != nil {
		c.cancelSubs()
	}
	if c.publisher != nil {
		_ = c.publisher.Close()
	}
	if c.subscriber != nil {
		_ = c.subscriber.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// FetchLastKnownNode is a synchronous KV lookup, used for cross-node routing.
func (c *NATSClient) FetchLastKnownNode(_ context.Context, routingIdentifier string) (string, bool, error) {
	entry, err := c.kv.Get(routingIdentifier)
	if err == nats.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pubsub: fetching last known node for %q: %w", routingIdentifier, err)
	}
	return string(entry.Value()), true, nil
}

// RegisterParticipant records that this node currently owns traffic for
// routingIdentifier.
func (c *NATSClient) RegisterParticipant(_ context.Context, routingIdentifier string) error {
	_, err := c.kv.Put(routingIdentifier, []byte(c.cfg.LocalNode))
	if err != nil {
		return fmt.Errorf("pubsub: registering participant %q: %w", routingIdentifier, err)
	}
	return nil
}

// PassoverDirectMessageTo publishes on v1/node/<node>/participants/pass-over.
func (c *NATSClient) PassoverDirectMessageTo(ctx context.Context, node string, passover wire.ParticipantPassOver) error {
	msg := message.NewMessage(watermill.NewUUID(), passover.Marshal())
	msg.SetContext(ctx)
	return c.publisher.Publish(PassOverSubject(node), msg)
}
