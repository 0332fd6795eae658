// Package core wires the entity store to a snapshot backend and the ambient
// stack: logging, metrics and tracing of every operation.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"slmcontrol/internal/config"
	"slmcontrol/internal/infra/persistence/memory"
	"slmcontrol/pkg/domain"
)

// ErrNoBackend is returned by Load and Save when the service runs without persistence.
var ErrNoBackend = errors.New("no snapshot backend configured")

// Service exposes the entity store operations with observation and optional
// persistence. With autosave enabled every effective mutation is followed
// by a Save.
type Service struct {
	store    *memory.Store
	backend  domain.SnapshotBackend
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	autosave bool
	saveMu   sync.Mutex
}

type serviceOptions struct {
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	backend   domain.SnapshotBackend
	autosave  bool
	storeOpts []memory.Option
}

// ServiceOption configures NewService.
type ServiceOption func(*serviceOptions)

// WithLogger sets the logger shared by the service and its store.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder observing each operation.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer sets the tracer opening a span per operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithBackend attaches a snapshot backend.
func WithBackend(backend domain.SnapshotBackend) ServiceOption {
	return func(o *serviceOptions) { o.backend = backend }
}

// WithAutosave saves to the backend after every effective mutation.
func WithAutosave(enabled bool) ServiceOption {
	return func(o *serviceOptions) { o.autosave = enabled }
}

// WithStoreOptions forwards options to the underlying memory store.
func WithStoreOptions(opts ...memory.Option) ServiceOption {
	return func(o *serviceOptions) { o.storeOpts = append(o.storeOpts, opts...) }
}

// NewService builds a service over a fresh memory store.
func NewService(opts ...ServiceOption) *Service {
	o := serviceOptions{logger: noopLogger{}, metrics: noopMetrics{}, tracer: noopTracer{}}
	for _, opt := range opts {
		opt(&o)
	}
	storeOpts := append([]memory.Option{memory.WithLogger(o.logger)}, o.storeOpts...)
	return &Service{
		store:    memory.NewStore(storeOpts...),
		backend:  o.backend,
		logger:   o.logger,
		metrics:  o.metrics,
		tracer:   o.tracer,
		autosave: o.autosave,
	}
}

// Open builds a service from configuration: logger, metrics recorder,
// strict modes and backend. Existing backend state is loaded. Prometheus
// collectors go to the default registerer; extra opts are applied last.
func Open(ctx context.Context, cfg *config.Config, logOut io.Writer, opts ...ServiceOption) (*Service, error) {
	logger := NewLogger(cfg.Log, logOut)
	metrics, err := NewMetricsRecorder(cfg.Metrics, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	backend, err := OpenSnapshotBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Storage.Driver, err)
	}
	var storeOpts []memory.Option
	if cfg.Store.StrictValidation {
		storeOpts = append(storeOpts, memory.WithStrictValidation())
	}
	if cfg.Store.StrictReferences {
		storeOpts = append(storeOpts, memory.WithStrictReferences())
	}
	base := []ServiceOption{
		WithLogger(logger),
		WithMetricsRecorder(metrics),
		WithBackend(backend),
		WithAutosave(cfg.Storage.Autosave),
		WithStoreOptions(storeOpts...),
	}
	svc := NewService(append(base, opts...)...)
	if svc.backend != nil {
		if err := svc.Load(ctx); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	logger.Info("service ready", "driver", cfg.Storage.Driver, "autosave", cfg.Storage.Autosave)
	return svc, nil
}

// Store returns the underlying entity store.
func (s *Service) Store() *memory.Store { return s.store }

// Backend returns the attached snapshot backend, or nil.
func (s *Service) Backend() domain.SnapshotBackend { return s.backend }

func (s *Service) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	if err != nil {
		s.logger.Debug("operation failed", "operation", operation, "error", err)
	}
	return err
}

// mutate runs fn under observation; when fn reports an effective change the
// entity gauges are refreshed and, with autosave, the state is saved.
func (s *Service) mutate(ctx context.Context, operation string, fn func() (bool, error)) (bool, error) {
	var changed bool
	err := s.observe(ctx, operation, func(ctx context.Context) error {
		var err error
		changed, err = fn()
		if err != nil || !changed {
			return err
		}
		return s.afterChange(ctx)
	})
	return changed, err
}

func (s *Service) afterChange(ctx context.Context) error {
	if counter, ok := s.metrics.(EntityCountRecorder); ok {
		counter.SetEntityCounts(s.store.Counts())
	}
	if !s.autosave || s.backend == nil {
		return nil
	}
	if err := s.save(ctx); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}

func (s *Service) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.backend.Save(ctx, s.store.ExportState())
}

// AddPattern inserts or replaces a pattern.
func (s *Service) AddPattern(ctx context.Context, p *domain.Pattern) error {
	_, err := s.mutate(ctx, "add_pattern", func() (bool, error) { return true, s.store.AddPattern(p) })
	return err
}

// AddView inserts or replaces a view.
func (s *Service) AddView(ctx context.Context, v *domain.View) error {
	_, err := s.mutate(ctx, "add_view", func() (bool, error) { return true, s.store.AddView(v) })
	return err
}

// AddScreen inserts or replaces a screen.
func (s *Service) AddScreen(ctx context.Context, sc *domain.Screen) error {
	_, err := s.mutate(ctx, "add_screen", func() (bool, error) { return true, s.store.AddScreen(sc) })
	return err
}

// RemovePattern deletes a pattern and every view reference to it.
func (s *Service) RemovePattern(ctx context.Context, id domain.EntityID) (bool, error) {
	return s.mutate(ctx, "remove_pattern", func() (bool, error) { return s.store.RemovePattern(id), nil })
}

// RemoveView deletes a view and every screen reference to it.
func (s *Service) RemoveView(ctx context.Context, id domain.EntityID) (bool, error) {
	return s.mutate(ctx, "remove_view", func() (bool, error) { return s.store.RemoveView(id), nil })
}

// RemoveScreen deletes a screen.
func (s *Service) RemoveScreen(ctx context.Context, id domain.EntityID) (bool, error) {
	return s.mutate(ctx, "remove_screen", func() (bool, error) { return s.store.RemoveScreen(id), nil })
}

// ConnectPatternToView composes a pattern into a view with the default reference.
func (s *Service) ConnectPatternToView(ctx context.Context, patternID, viewID domain.EntityID) (bool, error) {
	return s.ConnectPatternToViewWith(ctx, patternID, viewID, domain.DefaultPatternReference())
}

// ConnectPatternToViewWith composes a pattern into a view with ref.
func (s *Service) ConnectPatternToViewWith(ctx context.Context, patternID, viewID domain.EntityID, ref domain.PatternReference) (bool, error) {
	return s.mutate(ctx, "connect_pattern_to_view", func() (bool, error) {
		return s.store.ConnectPatternToViewWith(patternID, viewID, ref)
	})
}

// ConnectViewToScreen places a view on a screen with the default reference.
func (s *Service) ConnectViewToScreen(ctx context.Context, viewID, screenID domain.EntityID) (bool, error) {
	return s.ConnectViewToScreenWith(ctx, viewID, screenID, domain.ViewReference{})
}

// ConnectViewToScreenWith places a view on a screen with ref.
func (s *Service) ConnectViewToScreenWith(ctx context.Context, viewID, screenID domain.EntityID, ref domain.ViewReference) (bool, error) {
	return s.mutate(ctx, "connect_view_to_screen", func() (bool, error) {
		return s.store.ConnectViewToScreenWith(viewID, screenID, ref)
	})
}

// DisconnectPatternFromView removes a single view reference.
func (s *Service) DisconnectPatternFromView(ctx context.Context, patternID, viewID domain.EntityID) (bool, error) {
	return s.mutate(ctx, "disconnect_pattern_from_view", func() (bool, error) {
		return s.store.DisconnectPatternFromView(patternID, viewID), nil
	})
}

// DisconnectViewFromScreen removes a single screen reference.
func (s *Service) DisconnectViewFromScreen(ctx context.Context, viewID, screenID domain.EntityID) (bool, error) {
	return s.mutate(ctx, "disconnect_view_from_screen", func() (bool, error) {
		return s.store.DisconnectViewFromScreen(viewID, screenID), nil
	})
}

// UpdatePattern mutates a pattern atomically.
func (s *Service) UpdatePattern(ctx context.Context, id domain.EntityID, mutator func(*domain.Pattern) error) (*domain.Pattern, error) {
	var out *domain.Pattern
	_, err := s.mutate(ctx, "update_pattern", func() (bool, error) {
		var err error
		out, err = s.store.UpdatePattern(id, mutator)
		return err == nil, err
	})
	return out, err
}

// UpdateView mutates a view atomically.
func (s *Service) UpdateView(ctx context.Context, id domain.EntityID, mutator func(*domain.View) error) (*domain.View, error) {
	var out *domain.View
	_, err := s.mutate(ctx, "update_view", func() (bool, error) {
		var err error
		out, err = s.store.UpdateView(id, mutator)
		return err == nil, err
	})
	return out, err
}

// UpdateScreen mutates a screen atomically.
func (s *Service) UpdateScreen(ctx context.Context, id domain.EntityID, mutator func(*domain.Screen) error) (*domain.Screen, error) {
	var out *domain.Screen
	_, err := s.mutate(ctx, "update_screen", func() (bool, error) {
		var err error
		out, err = s.store.UpdateScreen(id, mutator)
		return err == nil, err
	})
	return out, err
}

// SetExtra stores an unknown top-level key carried through snapshots.
func (s *Service) SetExtra(ctx context.Context, key string, value any) error {
	_, err := s.mutate(ctx, "set_extra", func() (bool, error) {
		s.store.SetExtra(key, value)
		return true, nil
	})
	return err
}

func lookup[T any](ctx context.Context, s *Service, operation string, fn func() (*T, error)) (*T, error) {
	var out *T
	err := s.observe(ctx, operation, func(context.Context) error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// GetPatternByID returns the live pattern document.
func (s *Service) GetPatternByID(ctx context.Context, id domain.EntityID) (*domain.Pattern, error) {
	return lookup(ctx, s, "get_pattern", func() (*domain.Pattern, error) { return s.store.GetPatternByID(id) })
}

// GetViewByID returns the live view document.
func (s *Service) GetViewByID(ctx context.Context, id domain.EntityID) (*domain.View, error) {
	return lookup(ctx, s, "get_view", func() (*domain.View, error) { return s.store.GetViewByID(id) })
}

// GetScreenByID returns the live screen document.
func (s *Service) GetScreenByID(ctx context.Context, id domain.EntityID) (*domain.Screen, error) {
	return lookup(ctx, s, "get_screen", func() (*domain.Screen, error) { return s.store.GetScreenByID(id) })
}

// GetPatternByName returns the first pattern named name.
func (s *Service) GetPatternByName(ctx context.Context, name string) (*domain.Pattern, error) {
	return lookup(ctx, s, "get_pattern_by_name", func() (*domain.Pattern, error) { return s.store.GetPatternByName(name) })
}

// GetViewByName returns the first view named name.
func (s *Service) GetViewByName(ctx context.Context, name string) (*domain.View, error) {
	return lookup(ctx, s, "get_view_by_name", func() (*domain.View, error) { return s.store.GetViewByName(name) })
}

// GetScreenByName returns the first screen named name.
func (s *Service) GetScreenByName(ctx context.Context, name string) (*domain.Screen, error) {
	return lookup(ctx, s, "get_screen_by_name", func() (*domain.Screen, error) { return s.store.GetScreenByName(name) })
}

// Export returns a deep copy of the current state.
func (s *Service) Export() domain.Snapshot { return s.store.ExportState() }

// Import replaces the store contents with snapshot.
func (s *Service) Import(ctx context.Context, snapshot domain.Snapshot) error {
	_, err := s.mutate(ctx, "import", func() (bool, error) {
		return true, s.store.ImportState(snapshot)
	})
	return err
}

// Load replaces the store contents with the backend's snapshot.
func (s *Service) Load(ctx context.Context) error {
	if s.backend == nil {
		return ErrNoBackend
	}
	return s.observe(ctx, "load", func(ctx context.Context) error {
		snapshot, err := s.backend.Load(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if err := s.store.ImportState(snapshot); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		if counter, ok := s.metrics.(EntityCountRecorder); ok {
			counter.SetEntityCounts(s.store.Counts())
		}
		screens, views, patterns := s.store.Counts()
		s.logger.Info("snapshot loaded", "screens", screens, "views", views, "patterns", patterns)
		return nil
	})
}

// Save writes the current state to the backend.
func (s *Service) Save(ctx context.Context) error {
	if s.backend == nil {
		return ErrNoBackend
	}
	return s.observe(ctx, "save", s.save)
}

// Close releases the backend.
func (s *Service) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
