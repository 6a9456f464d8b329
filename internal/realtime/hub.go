package realtime

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// Event kinds pushed to stream subscribers.
const (
	EventMessage = "message"
	EventHistory = "history"
	EventStatus  = "status"
)

var (
	// ErrHubInvalidInput indicates a missing conversation or empty body.
	ErrHubInvalidInput = errors.New("realtime: invalid input")
)

// Message is a single chat message within a conversation.
type Message struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	Sender       string    `json:"sender"`
	Body         string    `json:"body"`
	SentAt       time.Time `json:"sentAt"`
}

// Event is the unit pushed to subscribers. Exactly one payload field is set
// depending on Kind.
type Event struct {
	Kind     string    `json:"kind"`
	Message  *Message  `json:"message,omitempty"`
	History  []Message `json:"history,omitempty"`
	Status   string    `json:"status,omitempty"`
	Presence int       `json:"presence,omitempty"`
}

// HubDeps bundles constructor inputs for the chat hub.
type HubDeps struct {
	// HistoryLimit bounds the per-conversation replay buffer.
	HistoryLimit int
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Hub is an in-process chat relay: per-conversation subscriber lists plus a
// bounded history buffer replayed to new subscribers. Message bodies are
// sanitized before they enter the hub, so nothing downstream ever sees
// markup.
type Hub struct {
	historyLimit int
	logger       *zap.Logger
	clock        func() time.Time
	sanitizer    *bluemonday.Policy
	entropy      *ulid.MonotonicEntropy

	mu            sync.Mutex
	conversations map[string]*conversation
}

type conversation struct {
	subscribers map[int]chan Event
	nextSubID   int
	history     []Message
}

// NewHub constructs a Hub with a strict sanitization policy.
func NewHub(deps HubDeps) *Hub {
	limit := deps.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Hub{
		historyLimit:  limit,
		logger:        logger,
		clock:         func() time.Time { return clock().UTC() },
		sanitizer:     bluemonday.StrictPolicy(),
		entropy:       ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		conversations: make(map[string]*conversation),
	}
}

// Publish sanitizes and records the message, then fans it out to the
// conversation's subscribers. Slow subscribers are skipped rather than
// blocking the hub.
func (h *Hub) Publish(ctx context.Context, msg Message) (Message, error) {
	msg.Conversation = strings.TrimSpace(msg.Conversation)
	msg.Body = strings.TrimSpace(h.sanitizer.Sanitize(msg.Body))
	msg.Sender = strings.TrimSpace(h.sanitizer.Sanitize(msg.Sender))
	if msg.Conversation == "" || msg.Body == "" {
		return Message{}, ErrHubInvalidInput
	}
	if msg.Sender == "" {
		msg.Sender = "visitor"
	}

	h.mu.Lock()
	msg.ID = ulid.MustNew(ulid.Timestamp(h.clock()), h.entropy).String()
	msg.SentAt = h.clock()

	conv := h.conversationLocked(msg.Conversation)
	conv.history = append(conv.history, msg)
	if len(conv.history) > h.historyLimit {
		conv.history = conv.history[len(conv.history)-h.historyLimit:]
	}
	h.broadcastLocked(conv, Event{Kind: EventMessage, Message: &msg})
	h.mu.Unlock()

	return msg, nil
}

// Subscribe attaches a consumer to the conversation. The returned channel
// first receives a history event, then live events; the cancel func detaches
// the consumer and closes the channel.
func (h *Hub) Subscribe(conversationID string) (<-chan Event, func(), error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, nil, ErrHubInvalidInput
	}

	// Buffered so one slow reader cannot stall the hub; the buffer covers a
	// full history replay plus a burst of live events.
	ch := make(chan Event, h.historyLimit+16)

	h.mu.Lock()
	conv := h.conversationLocked(conversationID)

	// Announce the join to existing subscribers before registering the new
	// channel; the joiner learns its own state from the history replay.
	h.broadcastLocked(conv, Event{Kind: EventStatus, Status: "connected", Presence: len(conv.subscribers) + 1})

	id := conv.nextSubID
	conv.nextSubID++
	conv.subscribers[id] = ch

	history := make([]Message, len(conv.history))
	copy(history, conv.history)
	ch <- Event{Kind: EventHistory, History: history}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := conv.subscribers[id]; !ok {
			return
		}
		delete(conv.subscribers, id)
		close(ch)
		// Conversations with neither subscribers nor replayable history are
		// dead weight; drop them so the map stays bounded by live traffic.
		if len(conv.subscribers) == 0 && len(conv.history) == 0 {
			delete(h.conversations, conversationID)
			return
		}
		h.broadcastLocked(conv, Event{Kind: EventStatus, Status: "disconnected", Presence: len(conv.subscribers)})
	}
	return ch, cancel, nil
}

// History returns a copy of the conversation's replay buffer.
func (h *Hub) History(conversationID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	conv, ok := h.conversations[strings.TrimSpace(conversationID)]
	if !ok {
		return nil
	}
	history := make([]Message, len(conv.history))
	copy(history, conv.history)
	return history
}

func (h *Hub) conversationLocked(id string) *conversation {
	conv, ok := h.conversations[id]
	if !ok {
		conv = &conversation{subscribers: make(map[int]chan Event)}
		h.conversations[id] = conv
	}
	return conv
}

func (h *Hub) broadcastLocked(conv *conversation, event Event) {
	for id, ch := range conv.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Warn("dropping event for slow chat subscriber", zap.Int("subscriber", id))
		}
	}
}
