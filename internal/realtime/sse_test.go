package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEHandlerRequiresConversation(t *testing.T) {
	handler := NewSSEHandler(newTestHub(), time.Minute, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/chat/stream", nil)

	handler.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSSEHandlerStreamsHistoryAndLiveEvents(t *testing.T) {
	hub := newTestHub()
	if _, err := hub.Publish(context.Background(), Message{Conversation: "conv-1", Body: "earlier"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	handler := NewSSEHandler(hub, time.Minute, nil)
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/chat/stream?conversation=conv-1", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := hub.Publish(context.Background(), Message{Conversation: "conv-1", Body: "live"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not exit after context cancel")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	out := rec.Body.String()
	if !strings.HasPrefix(out, "retry: ") {
		t.Fatalf("expected retry advertisement first, got %q", out)
	}
	if !strings.Contains(out, "event: history") || !strings.Contains(out, "earlier") {
		t.Fatalf("expected history replay in stream, got %q", out)
	}
	if !strings.Contains(out, "live") {
		t.Fatalf("expected live message in stream, got %q", out)
	}
}

func TestSSEHandlerAdvertisesReconnectDelay(t *testing.T) {
	hub := newTestHub()
	handler := NewSSEHandler(hub, time.Minute, nil)
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/chat/stream?conversation=conv-1", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	want := "retry: 1000"
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("expected %q in stream, got %q", want, rec.Body.String())
	}
}
