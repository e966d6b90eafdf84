package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(buffer int) *Client {
	return &Client{send: make(chan []byte, buffer)}
}

func TestHubRoomsAreIsolated(t *testing.T) {
	hub := NewHub()
	a := testClient(4)
	b := testClient(4)
	hub.Join("brd_one", a)
	hub.Join("brd_two", b)

	hub.EmitToBoard("brd_one", "task:created", map[string]string{"id": "tsk_1"})

	select {
	case raw := <-a.send:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Board != "brd_one" || ev.Name != "task:created" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected event for room member")
	}

	select {
	case <-b.send:
		t.Fatal("event leaked into another room")
	default:
	}
}

func TestHubJoinLeaveIdempotent(t *testing.T) {
	hub := NewHub()
	c := testClient(1)

	hub.Join("brd_one", c)
	hub.Join("brd_one", c)
	if got := hub.RoomSize("brd_one"); got != 1 {
		t.Fatalf("expected room size 1, got %d", got)
	}

	hub.Leave("brd_one", c)
	if got := hub.RoomSize("brd_one"); got != 0 {
		t.Fatalf("expected empty room, got %d", got)
	}

	// Leaving again must not panic on the closed channel.
	hub.Leave("brd_one", c)
	hub.Leave("brd_never", c)
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub := NewHub()
	c := testClient(1)
	hub.Join("brd_one", c)

	hub.EmitToBoard("brd_one", "task:updated", map[string]string{"id": "tsk_1"})
	hub.EmitToBoard("brd_one", "task:updated", map[string]string{"id": "tsk_2"})

	if got := hub.RoomSize("brd_one"); got != 0 {
		t.Fatalf("expected slow consumer to be dropped, room size %d", got)
	}
}

func TestRedisBackplaneDeliversLocally(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := NewHub()
	c := testClient(4)
	hub.Join("brd_one", c)

	backplane := NewRedisBackplane(client, hub)
	t.Cleanup(backplane.Close)

	// The subscription is established asynchronously.
	deadline := time.After(2 * time.Second)
	for {
		backplane.EmitToBoard("brd_one", "list:created", map[string]string{"id": "lst_1"})
		select {
		case raw := <-c.send:
			var ev Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if ev.Name != "list:created" {
				t.Fatalf("unexpected event %q", ev.Name)
			}
			return
		case <-deadline:
			t.Fatal("event never came back through the backplane")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
