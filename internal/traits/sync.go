// Package traits keeps a component's editable option list and rendered view
// synchronized with the asynchronously-loaded offer cache. The derivation
// logic is pure; a thin Binder adapter carries the result into whatever UI
// hosts the component.
package traits

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pagecraft/blocks-api/internal/catalog"
	"github.com/pagecraft/blocks-api/internal/domain"
)

// ViewState enumerates the render states a bound component can be in.
type ViewState string

const (
	// StateLoading means the cache has not completed its first load.
	StateLoading ViewState = "loading"
	// StateEmpty means the cache loaded with no offers.
	StateEmpty ViewState = "empty"
	// StatePrompt means offers are available but nothing is selected.
	StatePrompt ViewState = "prompt"
	// StateNotFound means the selection no longer resolves against the cache.
	StateNotFound ViewState = "not_found"
	// StateSelected means the selection resolved to a cached offer.
	StateSelected ViewState = "selected"
)

const (
	messageLoading  = "Loading offers..."
	messageEmpty    = "No offers available"
	messagePrompt   = "Select an offer"
	messageNotFound = "Offer data not found. Please re-select."
)

// View is the derived render model for a component given the cache state and
// the current selection.
type View struct {
	State     ViewState
	Selection string
	// Offer is populated only in StateSelected.
	Offer   domain.Offer
	Message string
}

// DeriveView computes the render model from (cache, selection). It is pure:
// equal inputs always produce equal views.
func DeriveView(offers []domain.Offer, loaded bool, selection string) View {
	selection = strings.TrimSpace(selection)
	if !loaded && len(offers) == 0 {
		return View{State: StateLoading, Selection: selection, Message: messageLoading}
	}
	if len(offers) == 0 {
		return View{State: StateEmpty, Selection: selection, Message: messageEmpty}
	}
	if selection == "" {
		return View{State: StatePrompt, Message: messagePrompt}
	}
	for _, offer := range offers {
		if offer.Token == selection {
			return View{State: StateSelected, Selection: selection, Offer: offer}
		}
	}
	return View{State: StateNotFound, Selection: selection, Message: messageNotFound}
}

// Binder receives synchronized state on behalf of the hosting UI. SetOptions
// and Render are only invoked when their payload actually changed, so a
// binder never sees the same options or view twice in a row.
type Binder interface {
	SetOptions(options []domain.TraitOption)
	Render(view View)
}

// SyncerDeps bundles constructor inputs for a Syncer.
type SyncerDeps struct {
	Store  *catalog.Store
	Binder Binder
	// AutoSelectID optionally seeds an externally-supplied selection
	// identifier (URL query, component attribute, ambient global).
	AutoSelectID string
	Logger       *zap.Logger
}

// Syncer binds one component to the offer store. All synchronization routines
// are idempotent: re-running them with unchanged inputs converges to the same
// visible output without re-firing binder side effects.
type Syncer struct {
	store  *catalog.Store
	binder Binder
	logger *zap.Logger

	mu          sync.Mutex
	selection   string
	pendingAuto string
	autoDone    bool
	lastOptions []domain.TraitOption
	lastView    View
	synced      bool
	unsubscribe func()
}

// NewSyncer constructs a Syncer validating required dependencies.
func NewSyncer(deps SyncerDeps) (*Syncer, error) {
	if deps.Store == nil {
		return nil, errors.New("traits: store is required")
	}
	if deps.Binder == nil {
		return nil, errors.New("traits: binder is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		store:       deps.Store,
		binder:      deps.Binder,
		logger:      logger,
		pendingAuto: strings.TrimSpace(deps.AutoSelectID),
	}, nil
}

// Start subscribes to the store and, unless the cache is already populated
// and force is false, triggers the initial fetch.
func (s *Syncer) Start(ctx context.Context, force bool) error {
	s.mu.Lock()
	attach := s.unsubscribe == nil
	if attach {
		// Reserve the slot before subscribing: the store invokes the listener
		// synchronously, and apply must not run under this lock.
		s.unsubscribe = func() {}
	}
	s.mu.Unlock()

	if attach {
		unsubscribe := s.store.Subscribe(func(offers []domain.Offer, loaded bool) {
			s.apply(offers, loaded)
		})
		s.mu.Lock()
		closed := s.unsubscribe == nil
		if !closed {
			s.unsubscribe = unsubscribe
		}
		s.mu.Unlock()
		// Close won the race for the reserved slot; drop the subscription
		// instead of resurrecting it.
		if closed {
			unsubscribe()
			return nil
		}
	}

	if s.store.IsLoaded() && !force {
		return nil
	}
	_, err := s.store.EnsureFetch(ctx)
	return err
}

// Close detaches the syncer from the store.
func (s *Syncer) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Select records a user selection change and resynchronizes. An explicit
// selection supersedes any pending auto-selection.
func (s *Syncer) Select(token string) {
	s.mu.Lock()
	s.selection = strings.TrimSpace(token)
	s.pendingAuto = ""
	s.autoDone = true
	s.mu.Unlock()
	s.Sync()
}

// AutoSelect queues an externally-supplied identifier for one-time
// resolution. It is ignored once a selection has been made or a previous
// auto-selection already ran.
func (s *Syncer) AutoSelect(id string) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	if id == "" || s.autoDone || s.selection != "" {
		s.mu.Unlock()
		return
	}
	s.pendingAuto = id
	s.mu.Unlock()
	s.Sync()
}

// Selection returns the current selection token.
func (s *Syncer) Selection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Sync recomputes options and view from the current store state.
func (s *Syncer) Sync() {
	s.apply(s.store.Offers(), s.store.IsLoaded())
}

func (s *Syncer) apply(offers []domain.Offer, loaded bool) {
	s.mu.Lock()
	s.resolveAutoLocked(offers, loaded)

	options := catalog.TraitOptionsFor(offers, loaded)
	pushOptions := !reflect.DeepEqual(options, s.lastOptions)
	if pushOptions {
		s.lastOptions = options
	}

	view := DeriveView(offers, loaded, s.selection)
	pushView := !s.synced || !reflect.DeepEqual(view, s.lastView)
	if pushView {
		s.lastView = view
		s.synced = true
	}
	s.mu.Unlock()

	if pushOptions {
		s.binder.SetOptions(options)
	}
	if pushView {
		s.binder.Render(view)
	}
}

// resolveAutoLocked applies a queued external identifier exactly once. The
// identifier is matched against tokens first, then against the secondary
// cross-reference id. Resolution waits for the cache to load; once loaded, a
// miss abandons the identifier rather than retrying.
func (s *Syncer) resolveAutoLocked(offers []domain.Offer, loaded bool) {
	if s.pendingAuto == "" || s.autoDone {
		return
	}
	if token, ok := matchIdentifier(offers, s.pendingAuto); ok {
		s.selection = token
		s.pendingAuto = ""
		s.autoDone = true
		return
	}
	if loaded {
		s.logger.Warn("auto-selection identifier not found in offer cache",
			zap.String("identifier", s.pendingAuto),
		)
		s.pendingAuto = ""
		s.autoDone = true
	}
}

func matchIdentifier(offers []domain.Offer, id string) (string, bool) {
	for _, offer := range offers {
		if offer.Token == id {
			return offer.Token, true
		}
	}
	for _, offer := range offers {
		if offer.SourceID != "" && offer.SourceID == id {
			return offer.Token, true
		}
	}
	return "", false
}
