// Package bus distributes shard sketches between cooperating hosts over
// NATS: each host builds its own shard sketch locally (Add has no shared
// state, so this is embarrassingly parallel — see spec's extrinsic
// concurrency model) and publishes the finalized bytes so a coordinator
// can Combine them into a global sketch.
package bus

import (
	"fmt"

	nats "github.com/nats-io/nats.go"

	"github.com/tvondra/omnisketch/sketch"
)

const subjectPrefix = "omnisketch.v1.shard."

func subjectFor(shardID string) string {
	return subjectPrefix + shardID
}

// Publisher publishes a shard's finalized sketch bytes to its subject.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher connects to url and returns a Publisher.
func NewPublisher(url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("omnisketch: connecting to nats: %w", err)
	}
	return &Publisher{nc: nc}, nil
}

// Close drains and closes the underlying connection.
func (p *Publisher) Close() { p.nc.Close() }

// PublishShard finalizes and publishes sk under shardID's subject. Callers
// own synchronization on sk; PublishShard does not mutate it beyond the
// in-place Finalize sort.
func (p *Publisher) PublishShard(shardID string, sk *sketch.Sketch) error {
	sk.Finalize()
	return p.nc.Publish(subjectFor(shardID), sk.ToBytes())
}

// Subscriber receives shard sketches published by Publisher and hands them
// to a caller-supplied callback.
type Subscriber struct {
	nc   *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber connects to url and returns a Subscriber.
func NewSubscriber(url string) (*Subscriber, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("omnisketch: connecting to nats: %w", err)
	}
	return &Subscriber{nc: nc}, nil
}

// OnShard subscribes to shardID's subject, invoking cb with every
// successfully deserialized sketch received. Deserialization failures are
// passed to cb as an error with a nil sketch.
func (s *Subscriber) OnShard(shardID string, cb func(*sketch.Sketch, error)) error {
	sub, err := s.nc.Subscribe(subjectFor(shardID), func(msg *nats.Msg) {
		sk, err := sketch.FromBytes(msg.Data)
		cb(sk, err)
	})
	if err != nil {
		return fmt.Errorf("omnisketch: subscribing to shard %q: %w", shardID, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes everything and closes the underlying connection.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.nc.Close()
}
