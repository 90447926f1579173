package relay

import (
	"github.com/go-redis/redis"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// channel is the single Redis pub/sub channel every RedisBroker instance
// publishes to and subscribes on, grounded on the teacher's broker's fixed
// "pushmsg" channel name.
const channel = "gows:pushmsg"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// redisPubSub is the subset of *redis.Client RedisBroker depends on,
// narrowed so tests can substitute a fake instead of dialing a real
// server.
type redisPubSub interface {
	Publish(channel string, message interface{}) *redis.IntCmd
	Subscribe(channels ...string) *redis.PubSub
	Close() error
}

// RedisBroker implements Broker over a Redis pub/sub channel, grounded on
// broker/redis_broker.go. Messages are JSON-encoded via jsoniter rather
// than encoding/json, matching the teacher's choice for its own wire
// messages.
type RedisBroker struct {
	redisPubSub
	sub *redis.PubSub
	ch  chan *PushMsg
}

// NewRedisBroker wraps an existing Redis client. Callers own the client's
// lifetime beyond Close, which only tears down the subscription.
func NewRedisBroker(client redisPubSub) *RedisBroker {
	return &RedisBroker{redisPubSub: client, ch: make(chan *PushMsg, 1024)}
}

func (r *RedisBroker) Pub(msg *PushMsg) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "relay: encode push message")
	}
	return r.Publish(channel, encoded).Err()
}

// Sub starts (on first call) a background goroutine decoding every message
// published to channel and forwarding it to the returned channel. Decode
// failures are dropped, not surfaced — a malformed message from another
// instance shouldn't stall local delivery.
func (r *RedisBroker) Sub() <-chan *PushMsg {
	if r.sub == nil {
		r.sub = r.Subscribe(channel)
		go func() {
			for m := range r.sub.Channel() {
				var msg PushMsg
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					continue
				}
				r.ch <- &msg
			}
			close(r.ch)
		}()
	}
	return r.ch
}

func (r *RedisBroker) Close() error {
	if r.sub != nil {
		if err := r.sub.Close(); err != nil {
			return err
		}
	}
	return nil
}
