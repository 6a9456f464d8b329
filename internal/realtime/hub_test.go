package realtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestHub() *Hub {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewHub(HubDeps{Clock: func() time.Time { return now }})
}

func TestHubPublishAssignsIDAndTimestamp(t *testing.T) {
	hub := newTestHub()
	msg, err := hub.Publish(context.Background(), Message{
		Conversation: "conv-1",
		Sender:       "visitor",
		Body:         "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("expected message id assigned")
	}
	if msg.SentAt.IsZero() {
		t.Fatalf("expected timestamp assigned")
	}
}

func TestHubPublishSanitizesMarkup(t *testing.T) {
	hub := newTestHub()
	msg, err := hub.Publish(context.Background(), Message{
		Conversation: "conv-1",
		Body:         `<script>alert("x")</script>hi <b>there</b>`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(msg.Body, "<") {
		t.Fatalf("expected markup stripped, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "hi") || !strings.Contains(msg.Body, "there") {
		t.Fatalf("expected text preserved, got %q", msg.Body)
	}
}

func TestHubPublishRejectsEmpty(t *testing.T) {
	hub := newTestHub()
	if _, err := hub.Publish(context.Background(), Message{Conversation: "conv-1"}); !errors.Is(err, ErrHubInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := hub.Publish(context.Background(), Message{Body: "hi"}); !errors.Is(err, ErrHubInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	// A body that is only markup sanitizes to nothing and is rejected too.
	if _, err := hub.Publish(context.Background(), Message{Conversation: "conv-1", Body: "<img src=x>"}); !errors.Is(err, ErrHubInvalidInput) {
		t.Fatalf("expected invalid input for markup-only body, got %v", err)
	}
}

func TestHubSubscribeReplaysHistoryFirst(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()
	if _, err := hub.Publish(ctx, Message{Conversation: "conv-1", Body: "first"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := hub.Publish(ctx, Message{Conversation: "conv-1", Body: "second"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	events, cancel, err := hub.Subscribe("conv-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	event := <-events
	if event.Kind != EventHistory {
		t.Fatalf("expected history event first, got %s", event.Kind)
	}
	if len(event.History) != 2 || event.History[0].Body != "first" {
		t.Fatalf("unexpected history %#v", event.History)
	}

	if _, err := hub.Publish(ctx, Message{Conversation: "conv-1", Body: "live"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for {
		event = <-events
		if event.Kind == EventStatus {
			continue
		}
		break
	}
	if event.Kind != EventMessage || event.Message == nil || event.Message.Body != "live" {
		t.Fatalf("unexpected live event %#v", event)
	}
}

func TestHubHistoryBounded(t *testing.T) {
	hub := NewHub(HubDeps{HistoryLimit: 3})
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c", "d", "e"} {
		if _, err := hub.Publish(ctx, Message{Conversation: "conv-1", Body: body}); err != nil {
			t.Fatalf("publish %q: %v", body, err)
		}
	}
	history := hub.History("conv-1")
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
	if history[0].Body != "c" || history[2].Body != "e" {
		t.Fatalf("expected oldest entries evicted, got %#v", history)
	}
}

func TestHubStatusEventsOnJoinAndLeave(t *testing.T) {
	hub := newTestHub()
	first, cancelFirst, err := hub.Subscribe("conv-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelFirst()
	<-first // history

	// A second subscriber joining produces a connected status for the first.
	_, cancelSecond, err := hub.Subscribe("conv-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := <-first
	if event.Kind != EventStatus || event.Status != "connected" || event.Presence != 2 {
		t.Fatalf("unexpected join event %#v", event)
	}

	cancelSecond()
	event = <-first
	if event.Kind != EventStatus || event.Status != "disconnected" || event.Presence != 1 {
		t.Fatalf("unexpected leave event %#v", event)
	}
}

func TestHubDropsEmptyConversationOnLastCancel(t *testing.T) {
	hub := newTestHub()
	events, cancel, err := hub.Subscribe("conv-empty")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-events // history
	cancel()

	hub.mu.Lock()
	_, kept := hub.conversations["conv-empty"]
	hub.mu.Unlock()
	if kept {
		t.Fatalf("expected conversation without history removed after last cancel")
	}

	// A conversation with history survives so a reconnect still gets replay.
	if _, err := hub.Publish(context.Background(), Message{Conversation: "conv-hist", Body: "hello"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	second, cancelSecond, err := hub.Subscribe("conv-hist")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	<-second
	cancelSecond()

	if history := hub.History("conv-hist"); len(history) != 1 || history[0].Body != "hello" {
		t.Fatalf("expected history retained after last cancel, got %#v", history)
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := newTestHub()
	_, cancel, err := hub.Subscribe("conv-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel() // must not panic on double close
}
