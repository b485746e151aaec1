package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Envelope is a broadcast on its way to every instance's hub. An empty
// ChatID addresses all connections.
type Envelope struct {
	ChatID        string          `json:"chatId,omitempty"`
	ExcludeUserID string          `json:"excludeUserId,omitempty"`
	Frame         json.RawMessage `json:"frame"`
}

// Broker carries room and global broadcasts to every gateway instance.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// LocalBroker delivers straight into this process's hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.hub.Deliver(env)
	return nil
}

func (b *LocalBroker) Close() error { return nil }

const (
	subjectPrefix = "medchat.events."
	globalSubject = subjectPrefix + "global"
)

// Subject returns the NATS subject an envelope is published on.
func Subject(env Envelope) string {
	if env.ChatID == "" {
		return globalSubject
	}
	return subjectPrefix + "room." + env.ChatID
}

// NATSBroker publishes envelopes on NATS and delivers everything it receives,
// including its own publications, to the local hub.
type NATSBroker struct {
	nc  *nats.Conn
	hub *Hub
	sub *nats.Subscription
	log zerolog.Logger
}

func NewNATSBroker(nc *nats.Conn, hub *Hub, log zerolog.Logger) (*NATSBroker, error) {
	b := &NATSBroker{
		nc:  nc,
		hub: hub,
		log: log.With().Str("component", "nats_broker").Logger(),
	}
	sub, err := nc.Subscribe(subjectPrefix+">", b.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s>: %w", subjectPrefix, err)
	}
	b.sub = sub
	return b, nil
}

func (b *NATSBroker) handle(msg *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed envelope")
		return
	}
	b.hub.Deliver(env)
}

func (b *NATSBroker) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.nc.Publish(Subject(env), data); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

func (b *NATSBroker) Close() error {
	return b.sub.Unsubscribe()
}

// Broadcaster encodes events and hands them to the broker. It is shared by
// the gateway and the REST handlers.
type Broadcaster struct {
	broker Broker
	log    zerolog.Logger
}

func NewBroadcaster(broker Broker, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{broker: broker, log: log.With().Str("component", "broadcaster").Logger()}
}

// ToRoom broadcasts to the chat's room, skipping connections of excludeUserID.
func (b *Broadcaster) ToRoom(ctx context.Context, chatID, excludeUserID, typ string, data any) {
	b.publish(ctx, Envelope{ChatID: chatID, ExcludeUserID: excludeUserID}, typ, data)
}

// ToAll broadcasts to every connection, skipping those of excludeUserID.
func (b *Broadcaster) ToAll(ctx context.Context, excludeUserID, typ string, data any) {
	b.publish(ctx, Envelope{ExcludeUserID: excludeUserID}, typ, data)
}

func (b *Broadcaster) publish(ctx context.Context, env Envelope, typ string, data any) {
	frame, err := encodeFrame(typ, data)
	if err != nil {
		b.log.Error().Err(err).Str("event", typ).Msg("encode frame")
		return
	}
	env.Frame = frame
	if err := b.broker.Publish(ctx, env); err != nil {
		b.log.Warn().Err(err).Str("event", typ).Str("chat_id", env.ChatID).Msg("broadcast failed")
	}
}
