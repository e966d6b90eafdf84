package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

const backplaneChannel = "taskboard:events"

// RedisBackplane routes events through a Redis pub/sub channel so that
// every API instance delivers them to its own websocket clients. The
// publishing instance receives its own events back through the
// subscription; local delivery happens only there, which keeps the
// ordering identical on every instance.
type RedisBackplane struct {
	client *redis.Client
	hub    *Hub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBackplane(client *redis.Client, hub *Hub) *RedisBackplane {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBackplane{
		client: client,
		hub:    hub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.subscribe(ctx)
	return b
}

// EmitToBoard publishes the event to the shared channel. Delivery to
// local clients happens when the subscription loop receives it back.
func (b *RedisBackplane) EmitToBoard(boardID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("realtime: marshal payload for %s: %v", event, err)
		return
	}
	message, err := json.Marshal(Event{Board: boardID, Name: event, Payload: raw})
	if err != nil {
		log.Printf("realtime: marshal event %s: %v", event, err)
		return
	}
	if err := b.client.Publish(context.Background(), backplaneChannel, message).Err(); err != nil {
		log.Printf("realtime: publish %s: %v", event, err)
	}
}

func (b *RedisBackplane) subscribe(ctx context.Context) {
	defer close(b.done)

	sub := b.client.Subscribe(ctx, backplaneChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("realtime: decode backplane message: %v", err)
				continue
			}
			b.hub.deliver(ev.Board, []byte(msg.Payload))
		}
	}
}

// Close stops the subscription loop and waits for it to exit.
func (b *RedisBackplane) Close() {
	b.cancel()
	<-b.done
}
