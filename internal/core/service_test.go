package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"slmcontrol/internal/config"
	"slmcontrol/internal/infra/persistence/memory"
	"slmcontrol/pkg/domain"
	"slmcontrol/testutil"
)

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls  []metricsCall
	counts [3]int
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) SetEntityCounts(screens, views, patterns int) {
	c.counts = [3]int{screens, views, patterns}
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type fakeBackend struct {
	snapshot domain.Snapshot
	saves    int
	loadErr  error
	saveErr  error
	closed   bool
}

func (f *fakeBackend) Load(context.Context) (domain.Snapshot, error) {
	if f.loadErr != nil {
		return domain.Snapshot{}, f.loadErr
	}
	if f.snapshot.Screens == nil {
		return domain.NewSnapshot(), nil
	}
	return f.snapshot, nil
}

func (f *fakeBackend) Save(_ context.Context, snapshot domain.Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.snapshot = snapshot
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestServiceObservesOperations(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc := NewService(WithMetricsRecorder(metrics), WithTracer(tracer))

	pattern := domain.NewPattern("oam", "donut")
	if err := svc.AddPattern(ctx, pattern); err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	view := domain.NewView("main")
	if err := svc.AddView(ctx, view); err != nil {
		t.Fatalf("add view: %v", err)
	}
	screen := domain.NewScreen("slm", domain.PixelSize{W: 800, H: 600}, domain.PixelOffset{})
	if err := svc.AddScreen(ctx, screen); err != nil {
		t.Fatalf("add screen: %v", err)
	}
	if ok, err := svc.ConnectPatternToView(ctx, pattern.ID, view.ID); err != nil || !ok {
		t.Fatalf("connect pattern: ok=%v err=%v", ok, err)
	}
	if ok, err := svc.ConnectViewToScreen(ctx, view.ID, screen.ID); err != nil || !ok {
		t.Fatalf("connect view: ok=%v err=%v", ok, err)
	}
	if metrics.counts != [3]int{1, 1, 1} {
		t.Fatalf("expected entity counts 1/1/1, got %v", metrics.counts)
	}

	if _, err := svc.GetPatternByID(ctx, domain.NewEntityID()); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !metrics.has("get_pattern", false) || !tracer.has("get_pattern", false) {
		t.Fatalf("expected failed get_pattern observation")
	}
	for _, op := range []string{"add_pattern", "add_view", "add_screen", "connect_pattern_to_view", "connect_view_to_screen"} {
		if !metrics.has(op, true) {
			t.Fatalf("expected metrics for %s", op)
		}
		if !tracer.has(op, true) {
			t.Fatalf("expected span for %s", op)
		}
	}
	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("unbalanced spans: %d started, %d ended", len(tracer.started), len(tracer.ended))
	}

	got, err := svc.GetViewByName(ctx, "main")
	if err != nil || got.ID != view.ID {
		t.Fatalf("get view by name: %v", err)
	}
	if _, ok := got.Patterns[pattern.ID]; !ok {
		t.Fatalf("expected view to reference pattern")
	}
}

func TestServiceCascadingRemove(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	svc := NewService(WithMetricsRecorder(metrics))
	if err := svc.Import(ctx, testutil.SceneSnapshot()); err != nil {
		t.Fatalf("import: %v", err)
	}
	view, err := svc.GetViewByName(ctx, "main")
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	removed, err := svc.RemoveView(ctx, view.ID)
	if err != nil || !removed {
		t.Fatalf("remove view: removed=%v err=%v", removed, err)
	}
	screen, err := svc.GetScreenByName(ctx, "slm")
	if err != nil {
		t.Fatalf("get screen: %v", err)
	}
	if len(screen.Views) != 0 {
		t.Fatalf("expected screen reference pruned, got %v", screen.Views)
	}
	if metrics.counts != [3]int{1, 0, 2} {
		t.Fatalf("unexpected counts after remove: %v", metrics.counts)
	}

	removed, err = svc.RemoveView(ctx, view.ID)
	if err != nil || removed {
		t.Fatalf("second remove should report false, got removed=%v err=%v", removed, err)
	}
	if !metrics.has("remove_view", true) {
		t.Fatalf("expected remove_view observation")
	}
}

func TestServiceStrictReferencesSurfaceErrors(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	var logs bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "debug"}, &logs)
	svc := NewService(
		WithLogger(logger),
		WithMetricsRecorder(metrics),
		WithStoreOptions(memory.WithStrictReferences()),
	)
	view := domain.NewView("main")
	if err := svc.AddView(ctx, view); err != nil {
		t.Fatalf("add view: %v", err)
	}
	ok, err := svc.ConnectPatternToView(ctx, domain.NewEntityID(), view.ID)
	if err == nil || ok {
		t.Fatalf("expected dangling connect to fail, ok=%v err=%v", ok, err)
	}
	if !metrics.has("connect_pattern_to_view", false) {
		t.Fatalf("expected failed connect observation")
	}
	if !strings.Contains(logs.String(), "operation=connect_pattern_to_view") {
		t.Fatalf("expected failure logged, got %q", logs.String())
	}
}

func TestServiceAutosave(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	svc := NewService(WithBackend(backend), WithAutosave(true))

	pattern := domain.NewPattern("lens", "focus")
	if err := svc.AddPattern(ctx, pattern); err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	if backend.saves != 1 {
		t.Fatalf("expected one autosave, got %d", backend.saves)
	}
	if _, ok := backend.snapshot.Patterns[pattern.ID]; !ok {
		t.Fatalf("autosaved snapshot misses pattern")
	}

	// no-op mutations do not save
	if removed, err := svc.RemoveScreen(ctx, domain.NewEntityID()); err != nil || removed {
		t.Fatalf("unexpected remove result removed=%v err=%v", removed, err)
	}
	if backend.saves != 1 {
		t.Fatalf("no-op remove saved, saves=%d", backend.saves)
	}

	if _, err := svc.UpdatePattern(ctx, pattern.ID, func(p *domain.Pattern) error {
		p.Name = "refocus"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if backend.saves != 2 || backend.snapshot.Patterns[pattern.ID].Name != "refocus" {
		t.Fatalf("expected update autosaved")
	}

	backend.saveErr = errors.New("disk full")
	err := svc.SetExtra(ctx, "lut", "gamma")
	if err == nil || !strings.Contains(err.Error(), "autosave") {
		t.Fatalf("expected autosave error, got %v", err)
	}
	if v, ok := svc.Store().Extra("lut"); !ok || v != "gamma" {
		t.Fatalf("mutation should stay applied after a failed save")
	}
}

func TestServiceLoadSave(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{snapshot: testutil.SceneSnapshot()}
	metrics := &captureMetricsRecorder{}
	svc := NewService(WithBackend(backend), WithMetricsRecorder(metrics))
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	testutil.AssertSnapshotsEquivalent(t, testutil.SceneSnapshot(), svc.Export())
	if metrics.counts != [3]int{1, 1, 2} {
		t.Fatalf("load should refresh counts, got %v", metrics.counts)
	}
	if err := svc.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if backend.saves != 1 {
		t.Fatalf("expected explicit save")
	}
	if svc.Backend() != backend {
		t.Fatalf("backend accessor mismatch")
	}
	if err := svc.Close(); err != nil || !backend.closed {
		t.Fatalf("expected backend closed, err=%v", err)
	}

	backend.loadErr = errors.New("unreachable")
	if err := svc.Load(ctx); err == nil || !strings.Contains(err.Error(), "load snapshot") {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
	if !metrics.has("load", false) {
		t.Fatalf("expected failed load observation")
	}
}

func TestServiceWithoutBackend(t *testing.T) {
	ctx := context.Background()
	svc := NewService()
	if err := svc.Load(ctx); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend from Load, got %v", err)
	}
	if err := svc.Save(ctx); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend from Save, got %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close without backend: %v", err)
	}
	if err := svc.AddPattern(ctx, nil); err == nil {
		t.Fatalf("expected nil document rejected")
	}
}

func TestServiceDisconnectAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc := NewService()
	if err := svc.Import(ctx, testutil.SceneSnapshot()); err != nil {
		t.Fatalf("import: %v", err)
	}
	view, _ := svc.GetViewByName(ctx, "main")
	screen, _ := svc.GetScreenByName(ctx, "slm")
	lens, _ := svc.GetPatternByName(ctx, "focus")

	if ok, err := svc.DisconnectPatternFromView(ctx, lens.ID, view.ID); err != nil || !ok {
		t.Fatalf("disconnect pattern: ok=%v err=%v", ok, err)
	}
	if ok, _ := svc.DisconnectPatternFromView(ctx, lens.ID, view.ID); ok {
		t.Fatalf("second disconnect should report false")
	}
	if ok, err := svc.DisconnectViewFromScreen(ctx, view.ID, screen.ID); err != nil || !ok {
		t.Fatalf("disconnect view: ok=%v err=%v", ok, err)
	}
	ref := domain.ViewReference{Position: domain.Vec2{X: 10, Y: 20}, Size: domain.Vec2{X: 100, Y: 50}}
	if ok, err := svc.ConnectViewToScreenWith(ctx, view.ID, screen.ID, ref); err != nil || !ok {
		t.Fatalf("connect with ref: ok=%v err=%v", ok, err)
	}
	got, err := svc.GetScreenByID(ctx, screen.ID)
	if err != nil || got.Views[view.ID] != ref {
		t.Fatalf("expected placed view reference, err=%v", err)
	}

	updated, err := svc.UpdateScreen(ctx, screen.ID, func(sc *domain.Screen) error {
		sc.Offset = domain.PixelOffset{X: 0, Y: 1080}
		return nil
	})
	if err != nil || updated.Offset.Y != 1080 {
		t.Fatalf("update screen: %v", err)
	}
	if _, err := svc.UpdateView(ctx, domain.NewEntityID(), func(*domain.View) error { return nil }); !domain.IsNotFound(err) {
		t.Fatalf("expected not found for missing view, got %v", err)
	}
	fetched, err := svc.GetViewByID(ctx, view.ID)
	if err != nil || fetched.Name != "main" {
		t.Fatalf("get view by id: %v", err)
	}
}

func TestOpenFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverBlob
	cfg.Storage.Blob.Driver = config.BlobDriverMemory
	cfg.Storage.Autosave = true
	cfg.Store.StrictValidation = true
	cfg.Store.StrictReferences = true
	cfg.Metrics.Backend = config.MetricsNone

	var logs bytes.Buffer
	svc, err := Open(ctx, &cfg, &logs)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = svc.Close() }()
	if svc.Backend() == nil {
		t.Fatalf("expected blob backend")
	}
	if !strings.Contains(logs.String(), "service ready") {
		t.Fatalf("expected ready log, got %q", logs.String())
	}
	if err := svc.AddPattern(ctx, domain.NewPattern("oam", "donut")); err != nil {
		t.Fatalf("add pattern: %v", err)
	}
	snapshot, err := svc.Backend().Load(ctx)
	if err != nil || len(snapshot.Patterns) != 1 {
		t.Fatalf("expected autosaved pattern, err=%v", err)
	}
	if ok, err := svc.ConnectPatternToView(ctx, domain.NewEntityID(), domain.NewEntityID()); ok || err != nil {
		t.Fatalf("missing view should report false without error, ok=%v err=%v", ok, err)
	}
}

func TestOpenRejectsUnknownMetricsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Backend = "statsd"
	if _, err := Open(context.Background(), &cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected metrics backend error")
	}
}
