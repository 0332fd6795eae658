// Package memory provides the in-memory entity store holding screens, views
// and patterns together with the references between them.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"slmcontrol/internal/validation"
	"slmcontrol/pkg/domain"
)

// Logger is the structured logging surface used by the store. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Store.
type Option func(*Store)

// WithStrictValidation rejects documents and references that fail typed
// schema validation.
func WithStrictValidation() Option {
	return func(s *Store) { s.strictValidation = true }
}

// WithStrictReferences refuses references to entities that do not exist and
// prunes dangling references on import.
func WithStrictReferences() Option {
	return func(s *Store) { s.strictReferences = true }
}

// WithLogger sets the store logger.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRulesEngine evaluates the engine's rules before every add, update and
// connect. Strict options register their rules on a private copy, so the
// caller's engine is never modified.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *Store) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithNowFunc overrides the clock used to stamp modifications.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

type memoryState struct {
	screens  *collection[domain.Screen]
	views    *collection[domain.View]
	patterns *collection[domain.Pattern]
	extra    map[string]any
}

func newMemoryState() memoryState {
	return memoryState{
		screens:  newCollection[domain.Screen](),
		views:    newCollection[domain.View](),
		patterns: newCollection[domain.Pattern](),
		extra:    make(map[string]any),
	}
}

// Store is the entity graph. Documents returned by lookups are live handles:
// field mutations by the caller are visible to later lookups. Hosts that share
// a store between goroutines must mutate through Update* instead.
type Store struct {
	mu               sync.RWMutex
	state            memoryState
	engine           *domain.RulesEngine
	logger           Logger
	nowFn            func() time.Time
	modified         time.Time
	strictValidation bool
	strictReferences bool

	subMu       sync.Mutex
	subscribers map[int]func(domain.Change)
	nextSub     int
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:       newMemoryState(),
		engine:      domain.NewRulesEngine(),
		logger:      noopLogger{},
		nowFn:       func() time.Time { return time.Now().UTC() },
		subscribers: make(map[int]func(domain.Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.strictValidation || s.strictReferences {
		s.engine = s.engine.Clone()
	}
	if s.strictValidation {
		s.engine.Register(validation.SchemaRule{})
	}
	if s.strictReferences {
		s.engine.Register(validation.ReferenceRule{Severity: domain.SeverityBlock})
	}
	return s
}

// RulesEngine exposes the engine evaluated on mutation.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// LastModified reports when the store last changed; zero before the first mutation.
func (s *Store) LastModified() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Subscribe registers fn to receive every applied change. Changes are
// delivered synchronously after the store lock is released, so fn may call
// back into the store. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(domain.Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(changes []domain.Change) {
	if len(changes) == 0 {
		return
	}
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]func(domain.Change), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.subscribers[id])
	}
	s.subMu.Unlock()
	for _, change := range changes {
		for _, fn := range listeners {
			fn(change)
		}
	}
}

// evaluate runs the rules engine against a pending change. Caller holds the
// write lock. Non-blocking violations are logged.
func (s *Store) evaluate(change domain.Change) error {
	if len(s.engine.Rules()) == 0 {
		return nil
	}
	res, err := s.engine.Evaluate(context.Background(), ruleView{state: &s.state}, change)
	if err != nil {
		return err
	}
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityWarn:
			s.logger.Warn("rule violation", "rule", v.Rule, "entity", string(v.Entity), "id", v.EntityID.String(), "message", v.Message)
		case domain.SeverityLog:
			s.logger.Info("rule violation", "rule", v.Rule, "entity", string(v.Entity), "id", v.EntityID.String(), "message", v.Message)
		}
	}
	if res.HasBlocking() {
		return domain.RuleViolationError{Result: res}
	}
	return nil
}

func (s *Store) touch() {
	s.modified = s.nowFn()
}

// ruleView gives rules read access to the state while the write lock is held.
type ruleView struct {
	state *memoryState
}

func (v ruleView) FindScreen(id domain.EntityID) (*domain.Screen, bool) {
	return v.state.screens.get(id)
}

func (v ruleView) FindView(id domain.EntityID) (*domain.View, bool) {
	return v.state.views.get(id)
}

func (v ruleView) FindPattern(id domain.EntityID) (*domain.Pattern, bool) {
	return v.state.patterns.get(id)
}

// GetPatternByID returns the pattern stored under id.
func (s *Store) GetPatternByID(id domain.EntityID) (*domain.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.state.patterns.get(id); ok {
		return p, nil
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityPattern, ID: id}
}

// GetViewByID returns the view stored under id.
func (s *Store) GetViewByID(id domain.EntityID) (*domain.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.state.views.get(id); ok {
		return v, nil
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityView, ID: id}
}

// GetScreenByID returns the screen stored under id.
func (s *Store) GetScreenByID(id domain.EntityID) (*domain.Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sc, ok := s.state.screens.get(id); ok {
		return sc, nil
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityScreen, ID: id}
}

// GetPatternByName returns the earliest-added pattern with the given name.
// Unnamed entities never match, so an empty name is always not found.
func (s *Store) GetPatternByName(name string) (*domain.Pattern, error) {
	if name == "" {
		return nil, domain.ErrNotFound{Entity: domain.EntityPattern, Name: name}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.state.patterns.first(func(p *domain.Pattern) bool { return p.Name == name }); ok {
		return p, nil
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityPattern, Name: name}
}

// GetViewByName returns the earliest-added view with the given name.
func (s *Store) GetViewByName(name string) (*domain.View, error) {
	if name == "" {
		return nil, domain.ErrNotFound{Entity: domain.EntityView, Name: name}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.state.views.first(func(v *domain.View) bool { return v.Name == name }); ok {
		return v, nil
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityView, Name: name}
}

// GetScreenByName returns the earliest-added screen with the given name.
func (s *Store) GetScreenByName(name string) (*domain.Screen, error) {
	if name == "" {
		return nil, domain.ErrNotFound{Entity: domain.EntityScreen, Name: name}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sc, ok := s.state.screens.first(func(sc *domain.Screen) bool { return sc.Name == name }); ok {
		return sc, nil
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityScreen, Name: name}
}

// PatternName returns the display name of a pattern.
func (s *Store) PatternName(id domain.EntityID) (string, error) {
	p, err := s.GetPatternByID(id)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// ViewName returns the display name of a view.
func (s *Store) ViewName(id domain.EntityID) (string, error) {
	v, err := s.GetViewByID(id)
	if err != nil {
		return "", err
	}
	return v.Name, nil
}

// ScreenName returns the display name of a screen.
func (s *Store) ScreenName(id domain.EntityID) (string, error) {
	sc, err := s.GetScreenByID(id)
	if err != nil {
		return "", err
	}
	return sc.Name, nil
}

// ListPatterns returns all patterns in insertion order.
func (s *Store) ListPatterns() []*domain.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.patterns.list()
}

// ListViews returns all views in insertion order.
func (s *Store) ListViews() []*domain.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.views.list()
}

// ListScreens returns all screens in insertion order.
func (s *Store) ListScreens() []*domain.Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.screens.list()
}

// Counts reports the number of screens, views and patterns.
func (s *Store) Counts() (screens, views, patterns int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.screens.len(), s.state.views.len(), s.state.patterns.len()
}

// AddPattern inserts p or replaces the pattern already stored under p.ID.
func (s *Store) AddPattern(p *domain.Pattern) error {
	if p == nil {
		return &domain.ErrInvalidDocument{Entity: domain.EntityPattern, Reason: "nil document"}
	}
	change, err := addEntity(s, patternsOf, domain.EntityPattern, p.ID, p)
	if err != nil {
		return err
	}
	s.notify([]domain.Change{change})
	return nil
}

// AddView inserts v or replaces the view already stored under v.ID.
func (s *Store) AddView(v *domain.View) error {
	if v == nil {
		return &domain.ErrInvalidDocument{Entity: domain.EntityView, Reason: "nil document"}
	}
	change, err := addEntity(s, viewsOf, domain.EntityView, v.ID, v)
	if err != nil {
		return err
	}
	s.notify([]domain.Change{change})
	return nil
}

// AddScreen inserts sc or replaces the screen already stored under sc.ID.
func (s *Store) AddScreen(sc *domain.Screen) error {
	if sc == nil {
		return &domain.ErrInvalidDocument{Entity: domain.EntityScreen, Reason: "nil document"}
	}
	change, err := addEntity(s, screensOf, domain.EntityScreen, sc.ID, sc)
	if err != nil {
		return err
	}
	s.notify([]domain.Change{change})
	return nil
}

func patternsOf(state *memoryState) *collection[domain.Pattern] { return state.patterns }
func viewsOf(state *memoryState) *collection[domain.View]       { return state.views }
func screensOf(state *memoryState) *collection[domain.Screen]   { return state.screens }

func addEntity[T any](s *Store, of func(*memoryState) *collection[T], entity domain.EntityType, id domain.EntityID, doc *T) (domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := of(&s.state)
	change := domain.Change{Entity: entity, Action: domain.ActionCreate, ID: id, After: doc}
	if previous, ok := c.get(id); ok {
		change.Action = domain.ActionUpdate
		change.Before = previous
	}
	if err := s.evaluate(change); err != nil {
		return domain.Change{}, err
	}
	c.put(id, doc)
	s.touch()
	return change, nil
}

// RemovePattern deletes a pattern and prunes it from every view. It reports
// whether the pattern was present.
func (s *Store) RemovePattern(id domain.EntityID) bool {
	s.mu.Lock()
	removed, ok := s.state.patterns.remove(id)
	if !ok {
		s.mu.Unlock()
		return false
	}
	changes := []domain.Change{{Entity: domain.EntityPattern, Action: domain.ActionDelete, ID: id, Before: removed}}
	s.state.views.each(func(viewID domain.EntityID, v *domain.View) bool {
		if ref, ok := v.Patterns[id]; ok {
			delete(v.Patterns, id)
			changes = append(changes, domain.Change{Entity: domain.EntityView, Action: domain.ActionDisconnect, ID: viewID, TargetID: id, Before: ref})
		}
		return true
	})
	s.touch()
	s.mu.Unlock()
	s.logger.Debug("pattern removed", "id", id.String(), "pruned_views", len(changes)-1)
	s.notify(changes)
	return true
}

// RemoveView deletes a view and prunes it from every screen. It reports
// whether the view was present.
func (s *Store) RemoveView(id domain.EntityID) bool {
	s.mu.Lock()
	removed, ok := s.state.views.remove(id)
	if !ok {
		s.mu.Unlock()
		return false
	}
	changes := []domain.Change{{Entity: domain.EntityView, Action: domain.ActionDelete, ID: id, Before: removed}}
	s.state.screens.each(func(screenID domain.EntityID, sc *domain.Screen) bool {
		if ref, ok := sc.Views[id]; ok {
			delete(sc.Views, id)
			changes = append(changes, domain.Change{Entity: domain.EntityScreen, Action: domain.ActionDisconnect, ID: screenID, TargetID: id, Before: ref})
		}
		return true
	})
	s.touch()
	s.mu.Unlock()
	s.logger.Debug("view removed", "id", id.String(), "pruned_screens", len(changes)-1)
	s.notify(changes)
	return true
}

// RemoveScreen deletes a screen. Nothing references screens, so nothing cascades.
func (s *Store) RemoveScreen(id domain.EntityID) bool {
	s.mu.Lock()
	removed, ok := s.state.screens.remove(id)
	if ok {
		s.touch()
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.logger.Debug("screen removed", "id", id.String())
	s.notify([]domain.Change{{Entity: domain.EntityScreen, Action: domain.ActionDelete, ID: id, Before: removed}})
	return true
}

// ConnectPatternToView composes a pattern into a view with unit coefficient
// and identity transform. It returns false when the view does not exist.
func (s *Store) ConnectPatternToView(patternID, viewID domain.EntityID) (bool, error) {
	return s.ConnectPatternToViewWith(patternID, viewID, domain.DefaultPatternReference())
}

// ConnectPatternToViewWith sets the view's reference to patternID, replacing
// any previous one.
func (s *Store) ConnectPatternToViewWith(patternID, viewID domain.EntityID, ref domain.PatternReference) (bool, error) {
	change, ok, err := s.connectPattern(patternID, viewID, ref)
	if !ok || err != nil {
		return false, err
	}
	s.notify([]domain.Change{change})
	return true, nil
}

func (s *Store) connectPattern(patternID, viewID domain.EntityID, ref domain.PatternReference) (domain.Change, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.views.get(viewID)
	if !ok {
		return domain.Change{}, false, nil
	}
	change := domain.Change{Entity: domain.EntityView, Action: domain.ActionConnect, ID: viewID, TargetID: patternID, After: ref}
	if previous, ok := v.Patterns[patternID]; ok {
		change.Before = previous
	}
	if err := s.evaluate(change); err != nil {
		return domain.Change{}, false, err
	}
	if v.Patterns == nil {
		v.Patterns = map[domain.EntityID]domain.PatternReference{}
	}
	v.Patterns[patternID] = ref
	s.touch()
	return change, true, nil
}

// ConnectViewToScreen places a view on a screen at the origin with zero size.
// It returns false when the screen does not exist.
func (s *Store) ConnectViewToScreen(viewID, screenID domain.EntityID) (bool, error) {
	return s.ConnectViewToScreenWith(viewID, screenID, domain.ViewReference{})
}

// ConnectViewToScreenWith sets the screen's reference to viewID, replacing
// any previous one.
func (s *Store) ConnectViewToScreenWith(viewID, screenID domain.EntityID, ref domain.ViewReference) (bool, error) {
	change, ok, err := s.connectView(viewID, screenID, ref)
	if !ok || err != nil {
		return false, err
	}
	s.notify([]domain.Change{change})
	return true, nil
}

func (s *Store) connectView(viewID, screenID domain.EntityID, ref domain.ViewReference) (domain.Change, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.state.screens.get(screenID)
	if !ok {
		return domain.Change{}, false, nil
	}
	change := domain.Change{Entity: domain.EntityScreen, Action: domain.ActionConnect, ID: screenID, TargetID: viewID, After: ref}
	if previous, ok := sc.Views[viewID]; ok {
		change.Before = previous
	}
	if err := s.evaluate(change); err != nil {
		return domain.Change{}, false, err
	}
	if sc.Views == nil {
		sc.Views = map[domain.EntityID]domain.ViewReference{}
	}
	sc.Views[viewID] = ref
	s.touch()
	return change, true, nil
}

// DisconnectPatternFromView removes a view's reference to a pattern. It
// reports whether the reference existed.
func (s *Store) DisconnectPatternFromView(patternID, viewID domain.EntityID) bool {
	s.mu.Lock()
	v, ok := s.state.views.get(viewID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	ref, ok := v.Patterns[patternID]
	if ok {
		delete(v.Patterns, patternID)
		s.touch()
	}
	s.mu.Unlock()
	if ok {
		s.notify([]domain.Change{{Entity: domain.EntityView, Action: domain.ActionDisconnect, ID: viewID, TargetID: patternID, Before: ref}})
	}
	return ok
}

// DisconnectViewFromScreen removes a screen's reference to a view. It reports
// whether the reference existed.
func (s *Store) DisconnectViewFromScreen(viewID, screenID domain.EntityID) bool {
	s.mu.Lock()
	sc, ok := s.state.screens.get(screenID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	ref, ok := sc.Views[viewID]
	if ok {
		delete(sc.Views, viewID)
		s.touch()
	}
	s.mu.Unlock()
	if ok {
		s.notify([]domain.Change{{Entity: domain.EntityScreen, Action: domain.ActionDisconnect, ID: screenID, TargetID: viewID, Before: ref}})
	}
	return ok
}

// UpdatePattern applies mutator to a copy of the stored pattern under the
// write lock and commits it in place when rules allow. The id cannot change.
func (s *Store) UpdatePattern(id domain.EntityID, mutator func(*domain.Pattern) error) (*domain.Pattern, error) {
	return updateEntity(s, patternsOf, domain.EntityPattern, id, clonePattern, func(p *domain.Pattern) { p.ID = id }, mutator)
}

// UpdateView applies mutator to a copy of the stored view under the write lock.
func (s *Store) UpdateView(id domain.EntityID, mutator func(*domain.View) error) (*domain.View, error) {
	return updateEntity(s, viewsOf, domain.EntityView, id, cloneView, func(v *domain.View) { v.ID = id }, mutator)
}

// UpdateScreen applies mutator to a copy of the stored screen under the write lock.
func (s *Store) UpdateScreen(id domain.EntityID, mutator func(*domain.Screen) error) (*domain.Screen, error) {
	return updateEntity(s, screensOf, domain.EntityScreen, id, cloneScreen, func(sc *domain.Screen) { sc.ID = id }, mutator)
}

func updateEntity[T any](s *Store, of func(*memoryState) *collection[T], entity domain.EntityType, id domain.EntityID, clone func(*T) *T, pin func(*T), mutator func(*T) error) (*T, error) {
	current, change, err := applyUpdate(s, of, entity, id, clone, pin, mutator)
	if err != nil {
		return nil, err
	}
	s.notify([]domain.Change{change})
	return current, nil
}

// applyUpdate holds the write lock through mutator and rule evaluation and
// releases it even when either panics.
func applyUpdate[T any](s *Store, of func(*memoryState) *collection[T], entity domain.EntityType, id domain.EntityID, clone func(*T) *T, pin func(*T), mutator func(*T) error) (*T, domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := of(&s.state)
	current, ok := c.get(id)
	if !ok {
		return nil, domain.Change{}, domain.ErrNotFound{Entity: entity, ID: id}
	}
	before := clone(current)
	next := clone(current)
	if err := mutator(next); err != nil {
		return nil, domain.Change{}, err
	}
	pin(next)
	change := domain.Change{Entity: entity, Action: domain.ActionUpdate, ID: id, Before: before, After: next}
	if err := s.evaluate(change); err != nil {
		return nil, domain.Change{}, err
	}
	*current = *next
	change.After = current
	s.touch()
	return current, change, nil
}

// SetExtra stores an unknown top-level document key.
func (s *Store) SetExtra(key string, value any) {
	s.mu.Lock()
	s.state.extra[key] = value
	s.touch()
	s.mu.Unlock()
}

// Extra returns an unknown top-level document key.
func (s *Store) Extra(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.state.extra[key]
	return value, ok
}

// DanglingReferences lists view and screen references whose target does not
// exist, ordered by parent insertion order then target id.
func (s *Store) DanglingReferences() []*domain.ErrDanglingReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return danglingReferences(&s.state)
}

func danglingReferences(state *memoryState) []*domain.ErrDanglingReference {
	var out []*domain.ErrDanglingReference
	state.views.each(func(viewID domain.EntityID, v *domain.View) bool {
		for _, patternID := range sortedKeys(v.Patterns) {
			if _, ok := state.patterns.get(patternID); !ok {
				out = append(out, &domain.ErrDanglingReference{Entity: domain.EntityView, ID: viewID, Target: domain.EntityPattern, TargetID: patternID})
			}
		}
		return true
	})
	state.screens.each(func(screenID domain.EntityID, sc *domain.Screen) bool {
		for _, viewID := range sortedKeys(sc.Views) {
			if _, ok := state.views.get(viewID); !ok {
				out = append(out, &domain.ErrDanglingReference{Entity: domain.EntityScreen, ID: screenID, Target: domain.EntityView, TargetID: viewID})
			}
		}
		return true
	})
	return out
}

func sortedKeys[V any](m map[domain.EntityID]V) []domain.EntityID {
	keys := make([]domain.EntityID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b domain.EntityID) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := domain.NewSnapshot()
	s.state.screens.each(func(id domain.EntityID, sc *domain.Screen) bool {
		snapshot.Screens[id] = cloneScreen(sc)
		return true
	})
	s.state.views.each(func(id domain.EntityID, v *domain.View) bool {
		snapshot.Views[id] = cloneView(v)
		return true
	})
	s.state.patterns.each(func(id domain.EntityID, p *domain.Pattern) bool {
		snapshot.Patterns[id] = clonePattern(p)
		return true
	})
	snapshot.Extra = cloneOpenMap(s.state.extra)
	return snapshot
}

// ImportState replaces the store contents with a deep copy of snapshot.
// Documents are keyed by their own id and inserted in id order. With strict
// validation the snapshot must validate; with strict references dangling
// references are dropped.
func (s *Store) ImportState(snapshot domain.Snapshot) error {
	snapshot = migrateSnapshot(snapshot)
	state := newMemoryState()
	for _, key := range sortedKeys(snapshot.Patterns) {
		if p := snapshot.Patterns[key]; p != nil {
			cp := clonePattern(p)
			state.patterns.put(rekey(key, &cp.ID), cp)
		}
	}
	for _, key := range sortedKeys(snapshot.Views) {
		if v := snapshot.Views[key]; v != nil {
			cp := cloneView(v)
			state.views.put(rekey(key, &cp.ID), cp)
		}
	}
	for _, key := range sortedKeys(snapshot.Screens) {
		if sc := snapshot.Screens[key]; sc != nil {
			cp := cloneScreen(sc)
			state.screens.put(rekey(key, &cp.ID), cp)
		}
	}
	state.extra = cloneOpenMap(snapshot.Extra)

	if s.strictValidation {
		if err := validation.ValidateSnapshot(snapshotOf(&state)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strictReferences {
		for _, d := range danglingReferences(&state) {
			switch d.Entity {
			case domain.EntityView:
				v, _ := state.views.get(d.ID)
				delete(v.Patterns, d.TargetID)
			case domain.EntityScreen:
				sc, _ := state.screens.get(d.ID)
				delete(sc.Views, d.TargetID)
			}
			s.logger.Warn("dropped dangling reference", "entity", string(d.Entity), "id", d.ID.String(), "target", d.TargetID.String())
		}
	}
	s.state = state
	s.touch()
	return nil
}

// rekey resolves the id an imported document is stored under: its own id,
// or the map key when the document carries none.
func rekey(key domain.EntityID, id *domain.EntityID) domain.EntityID {
	if *id == domain.NilEntityID {
		*id = key
	}
	return *id
}

// snapshotOf exposes state as a snapshot without copying documents.
func snapshotOf(state *memoryState) domain.Snapshot {
	snapshot := domain.NewSnapshot()
	state.screens.each(func(id domain.EntityID, sc *domain.Screen) bool {
		snapshot.Screens[id] = sc
		return true
	})
	state.views.each(func(id domain.EntityID, v *domain.View) bool {
		snapshot.Views[id] = v
		return true
	})
	state.patterns.each(func(id domain.EntityID, p *domain.Pattern) bool {
		snapshot.Patterns[id] = p
		return true
	})
	snapshot.Extra = state.extra
	return snapshot
}
