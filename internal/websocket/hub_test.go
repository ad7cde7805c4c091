package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/playful-minds/progression/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBoardSource struct {
	entries  map[string][]domain.HighscoreEntry
	failWith error
}

func (f *fakeBoardSource) Load(_ context.Context, activityKey string) ([]domain.HighscoreEntry, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.entries[activityKey], nil
}

// boardMessage mirrors Message with the data field typed for decoding board
// payloads in assertions.
type boardMessage struct {
	Type        string      `json:"type"`
	ActivityKey string      `json:"activity_key"`
	Data        BoardUpdate `json:"data"`
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func receiveMessage(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, activityKey string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.GetSubscriberCount(activityKey) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriber count for %q never reached %d", activityKey, want)
}

func TestSubscribeSendsBoardSnapshot(t *testing.T) {
	hub := startHub(t)
	hub.SetBoardSource(&fakeBoardSource{entries: map[string][]domain.HighscoreEntry{
		"color_smash": {
			{Name: "Mia", Score: 900},
			{Name: "Leo", Score: 640},
		},
	}})

	client := NewClient(hub, nil, testLogger())
	hub.Register(client)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, ActivityKey: "color_smash"})

	var ack Message
	if err := json.Unmarshal(receiveMessage(t, client), &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Type != "subscribed" || ack.ActivityKey != "color_smash" {
		t.Errorf("ack = %q for %q, want subscribed for color_smash", ack.Type, ack.ActivityKey)
	}

	var snapshot boardMessage
	if err := json.Unmarshal(receiveMessage(t, client), &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot.Type != MessageTypeBoardUpdate {
		t.Errorf("snapshot type = %q, want %q", snapshot.Type, MessageTypeBoardUpdate)
	}
	if len(snapshot.Data.Entries) != 2 {
		t.Fatalf("snapshot entries = %d, want 2", len(snapshot.Data.Entries))
	}
	if snapshot.Data.Entries[0].Name != "Mia" || snapshot.Data.Entries[0].Score != 900 {
		t.Errorf("top entry = %q/%d, want Mia/900",
			snapshot.Data.Entries[0].Name, snapshot.Data.Entries[0].Score)
	}
}

func TestSubscribeWithoutBoardSourceSendsAckOnly(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub, nil, testLogger())
	hub.Register(client)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, ActivityKey: "color_smash"})

	var ack Message
	if err := json.Unmarshal(receiveMessage(t, client), &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Type != "subscribed" {
		t.Errorf("ack type = %q, want subscribed", ack.Type)
	}
	assertNoMessage(t, client)
}

func TestSubscribeSurvivesSnapshotFailure(t *testing.T) {
	hub := startHub(t)
	hub.SetBoardSource(&fakeBoardSource{failWith: errors.New("cache down")})

	client := NewClient(hub, nil, testLogger())
	hub.Register(client)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, ActivityKey: "color_smash"})

	var ack Message
	if err := json.Unmarshal(receiveMessage(t, client), &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Type != "subscribed" {
		t.Errorf("ack type = %q, want subscribed", ack.Type)
	}
	// The subscription stands even though the snapshot load failed.
	waitForSubscribers(t, hub, "color_smash", 1)
	assertNoMessage(t, client)
}

func TestSubscribeRequiresActivityKey(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub, nil, testLogger())
	hub.Register(client)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe})

	var msg Message
	if err := json.Unmarshal(receiveMessage(t, client), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != MessageTypeError {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypeError)
	}
	if hub.GetSubscriberCount("") != 0 {
		t.Error("empty activity key must not create a subscription")
	}
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	hub := startHub(t)

	subscriber := NewClient(hub, nil, testLogger())
	bystander := NewClient(hub, nil, testLogger())
	hub.Register(subscriber)
	hub.Register(bystander)

	hub.Subscribe(subscriber, "shape_sorter")
	waitForSubscribers(t, hub, "shape_sorter", 1)

	hub.BroadcastBoardUpdate("shape_sorter", []domain.HighscoreEntry{{Name: "Ava", Score: 310}})

	var update boardMessage
	if err := json.Unmarshal(receiveMessage(t, subscriber), &update); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}
	if update.Type != MessageTypeBoardUpdate || update.ActivityKey != "shape_sorter" {
		t.Errorf("update = %q for %q, want %q for shape_sorter",
			update.Type, update.ActivityKey, MessageTypeBoardUpdate)
	}
	if len(update.Data.Entries) != 1 || update.Data.Entries[0].Name != "Ava" {
		t.Errorf("update entries = %+v, want single Ava entry", update.Data.Entries)
	}
	assertNoMessage(t, bystander)
}
