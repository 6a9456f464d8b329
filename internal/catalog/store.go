package catalog

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pagecraft/blocks-api/internal/domain"
	"github.com/pagecraft/blocks-api/internal/platform/eventbus"
)

// TopicOffersUpdated is the event-bus topic carrying a replacement raw offer
// payload. The store replaces its cache wholesale on receipt.
const TopicOffersUpdated = "catalog.offers.updated"

// FetchFunc retrieves the raw offer payload from the list endpoint. The
// returned value is fed through NormalizeOfferList, so any of the tolerated
// payload shapes is acceptable.
type FetchFunc func(ctx context.Context) (any, error)

// Listener observes cache replacements. It is invoked synchronously with the
// current state immediately upon subscription and again after every
// replacement.
type Listener func(offers []domain.Offer, loaded bool)

// StoreDeps bundles constructor inputs for the offer store.
type StoreDeps struct {
	// Fetch supplies the offer list transport. May be nil, in which case
	// EnsureFetch resolves immediately with the current cache.
	Fetch FetchFunc
	// Bus, when set, is watched for TopicOffersUpdated payloads.
	Bus *eventbus.Bus
	// Seed is an optional raw payload available at construction time (the
	// host-page-injected offer list); it is normalized immediately.
	Seed   any
	Logger *zap.Logger
}

// Store is the process-wide cache of normalized offers. All cache mutations
// go through SetOffers or EnsureFetch; reads return defensive copies. Cache
// replacement and subscriber notification happen under one lock, so no
// listener observes a torn cache.
type Store struct {
	fetch  FetchFunc
	logger *zap.Logger

	mu          sync.Mutex
	offers      []domain.Offer
	loaded      bool
	subscribers map[int]Listener
	nextSubID   int
	pending     *pendingFetch

	unsubscribeBus func()
}

type pendingFetch struct {
	done   chan struct{}
	offers []domain.Offer
}

// NewStore constructs a Store, normalizing the seed payload when present and
// attaching to the event bus when one is supplied.
func NewStore(deps StoreDeps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		fetch:       deps.Fetch,
		logger:      logger,
		subscribers: make(map[int]Listener),
	}
	if deps.Seed != nil {
		s.SetOffers(deps.Seed)
	}
	if deps.Bus != nil {
		s.unsubscribeBus = deps.Bus.Subscribe(TopicOffersUpdated, func(payload any) {
			s.SetOffers(payload)
		})
	}
	return s
}

// Close detaches the store from the event bus.
func (s *Store) Close() {
	if s.unsubscribeBus != nil {
		s.unsubscribeBus()
		s.unsubscribeBus = nil
	}
}

// SetOffers replaces the cache with the normalized payload, marks the store
// loaded, notifies subscribers, and returns the new cache.
func (s *Store) SetOffers(raw any) []domain.Offer {
	offers := NormalizeOfferList(raw)

	s.mu.Lock()
	s.offers = offers
	s.loaded = true
	listeners := s.listenersLocked()
	snapshot := copyOffers(offers)
	s.mu.Unlock()

	for _, listener := range listeners {
		s.notify(listener, snapshot, true)
	}
	return copyOffers(offers)
}

// EnsureFetch triggers at most one in-flight fetch of the offer list;
// concurrent callers block on the same underlying request. Transport
// failures fail open: the cache becomes loaded and empty rather than leaving
// consumers in a perpetual loading state, and no error is returned.
func (s *Store) EnsureFetch(ctx context.Context) ([]domain.Offer, error) {
	s.mu.Lock()
	if s.fetch == nil {
		wasLoaded := s.loaded
		s.loaded = true
		listeners := s.listenersLocked()
		snapshot := copyOffers(s.offers)
		s.mu.Unlock()
		// The loaded flip is observable state; subscribers bound while the
		// store was still loading need the notification as much as a fetch.
		if !wasLoaded {
			for _, listener := range listeners {
				s.notify(listener, snapshot, true)
			}
		}
		return copyOffers(snapshot), nil
	}
	if s.pending != nil {
		pending := s.pending
		s.mu.Unlock()
		select {
		case <-pending.done:
			return copyOffers(pending.offers), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	pending := &pendingFetch{done: make(chan struct{})}
	s.pending = pending
	s.mu.Unlock()

	raw, err := s.fetch(ctx)
	var offers []domain.Offer
	if err != nil {
		s.logger.Warn("offer fetch failed, caching empty list", zap.Error(err))
		offers = s.SetOffers(nil)
	} else {
		offers = s.SetOffers(raw)
	}

	s.mu.Lock()
	pending.offers = offers
	s.pending = nil
	s.mu.Unlock()
	close(pending.done)

	return copyOffers(offers), nil
}

// Subscribe registers a listener and synchronously invokes it with the
// current state before returning. The returned func removes the listener.
func (s *Store) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = listener
	snapshot := copyOffers(s.offers)
	loaded := s.loaded
	s.mu.Unlock()

	s.notify(listener, snapshot, loaded)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Offers returns a defensive copy of the current cache.
func (s *Store) Offers() []domain.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOffers(s.offers)
}

// IsLoaded reports whether the first fetch or explicit set has completed.
func (s *Store) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// FindByToken performs an exact-match lookup by token.
func (s *Store) FindByToken(token string) (domain.Offer, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Offer{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, offer := range s.offers {
		if offer.Token == token {
			return offer, true
		}
	}
	return domain.Offer{}, false
}

// TraitOptions projects the cache into a UI-ready option list.
func (s *Store) TraitOptions() []domain.TraitOption {
	s.mu.Lock()
	offers := copyOffers(s.offers)
	loaded := s.loaded
	s.mu.Unlock()
	return TraitOptionsFor(offers, loaded)
}

func (s *Store) listenersLocked() []Listener {
	listeners := make([]Listener, 0, len(s.subscribers))
	for _, listener := range s.subscribers {
		listeners = append(listeners, listener)
	}
	return listeners
}

// notify isolates listener panics so one faulty subscriber cannot interrupt
// notification of the others.
func (s *Store) notify(listener Listener, offers []domain.Offer, loaded bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("offer store listener panic", zap.Any("panic", r))
		}
	}()
	listener(offers, loaded)
}

func copyOffers(offers []domain.Offer) []domain.Offer {
	out := make([]domain.Offer, len(offers))
	copy(out, offers)
	return out
}
