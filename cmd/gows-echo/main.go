// Command gows-echo is a small demo server: every connected client is
// registered under its own connection id, every text message it sends is
// echoed back and broadcast to every other connection, and (if -redis is
// set) relayed to other instances of the same binary over Redis pub/sub.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/go-redis/redis"

	"github.com/kaneboy/gows"
	"github.com/kaneboy/gows/relay"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:8080", "listen address")
	redisAddr := flag.String("redis", "", "redis address for cross-instance relay, empty to disable")
	keepAlive := flag.Duration("keepalive", 60*time.Second, "idle timeout before a connection is closed")
	flag.Parse()

	registry := gows.NewRegistry()

	var broker relay.Broker
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		broker = relay.NewRedisBroker(client)
		go relayInbound(broker, registry)
	}

	srv := gows.NewServer(*addr,
		gows.WithKeepAliveInterval(*keepAlive),
		gows.WithHandshakeConcurrency(2000),
	)

	err := srv.Start(func(upCtx *gows.UpgradeContext) {
		conn, err := upCtx.Accept()
		if err != nil {
			log.Printf("accept: %s", err)
			return
		}
		registry.Add(conn.ID(), conn)
		defer registry.Remove(conn)

		for msg := range conn.Messages(context.Background()) {
			if msg.Kind != gows.Text {
				continue
			}
			text := msg.Text()
			log.Printf("%s: %s", conn.ID(), text)

			registry.Broadcast(func(c *gows.Conn) error {
				return c.SendText(text)
			})
			if broker != nil {
				_ = broker.Pub(&relay.PushMsg{Key: conn.ID(), Kind: relay.Text, Data: []byte(text)})
			}
		}
	})
	if err != nil {
		log.Fatalf("start: %s", err)
	}
	log.Printf("gows-echo listening on %s", srv.HostAddr())

	select {}
}

// relayInbound fans messages published by other instances out to this
// instance's locally registered connections.
func relayInbound(broker relay.Broker, registry *gows.Registry) {
	for msg := range broker.Sub() {
		registry.Broadcast(func(c *gows.Conn) error {
			if c.ID() == msg.Key {
				return nil // don't echo an instance's own relayed message back to its origin
			}
			return c.SendText(string(msg.Data))
		})
	}
}
