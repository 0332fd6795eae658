package validation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"slmcontrol/pkg/domain"
)

func TestValidatePattern(t *testing.T) {
	p := domain.NewPattern("oam", "alice-oam")
	p.Attributes["components"] = []complex128{1, 1i}
	if err := ValidatePattern(p); err != nil {
		t.Fatalf("valid pattern rejected: %v", err)
	}
	p.Type = ""
	var invalidErr *domain.ErrInvalidDocument
	if err := ValidatePattern(p); !errors.As(err, &invalidErr) || !strings.Contains(invalidErr.Reason, "Type") {
		t.Fatalf("expected type failure, got %v", err)
	}
	p.Type = "oam"
	p.Attributes["name"] = "shadow"
	if err := ValidatePattern(p); err == nil {
		t.Fatalf("reserved attribute accepted")
	}
	if err := ValidatePattern(&domain.Pattern{Type: "oam"}); err == nil {
		t.Fatalf("nil id accepted")
	}
	if err := ValidatePattern(nil); err == nil {
		t.Fatalf("nil pattern accepted")
	}
}

func TestValidateView(t *testing.T) {
	v := domain.NewView("v")
	v.Patterns[domain.NewEntityID()] = domain.DefaultPatternReference()
	if err := ValidateView(v); err != nil {
		t.Fatalf("valid view rejected: %v", err)
	}
	v.Transform.Rotation = math.NaN()
	if err := ValidateView(v); err == nil {
		t.Fatalf("NaN rotation accepted")
	}
	v.Transform.Rotation = 0
	v.Patterns[domain.NilEntityID] = domain.DefaultPatternReference()
	if err := ValidateView(v); err == nil {
		t.Fatalf("nil pattern key accepted")
	}
	delete(v.Patterns, domain.NilEntityID)
	v.Patterns[domain.NewEntityID()] = domain.PatternReference{Coefficient: domain.Coefficient(complex(math.Inf(1), 0))}
	if err := ValidateView(v); err == nil {
		t.Fatalf("infinite coefficient accepted")
	}
	if err := ValidateView(&domain.View{ID: domain.NewEntityID()}); err != nil {
		t.Fatalf("nil patterns mapping must count as empty: %v", err)
	}
}

func TestNilMappingsMatchUntypedSchema(t *testing.T) {
	view := &domain.View{ID: domain.NewEntityID(), Transform: domain.IdentityTransform()}
	screen := &domain.Screen{ID: domain.NewEntityID()}
	if err := ValidateView(view); err != nil {
		t.Fatalf("view with nil patterns rejected: %v", err)
	}
	if err := ValidateScreen(screen); err != nil {
		t.Fatalf("screen with nil views rejected: %v", err)
	}
	for name, doc := range map[string]any{"view": view, "screen": screen} {
		data, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
		var untyped map[string]any
		if err := json.Unmarshal(data, &untyped); err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		check := CheckView
		if name == "screen" {
			check = CheckScreen
		}
		if err := check(untyped); err != nil {
			t.Fatalf("encoded %s fails schema: %v (%s)", name, err, data)
		}
	}
}

func TestValidateScreen(t *testing.T) {
	s := domain.NewScreen("slm", domain.PixelSize{W: 1920, H: 1152}, domain.PixelOffset{X: -10})
	s.Views[domain.NewEntityID()] = domain.ViewReference{Size: domain.Vec2{X: 100, Y: 100}}
	if err := ValidateScreen(s); err != nil {
		t.Fatalf("valid screen rejected: %v", err)
	}
	s.Size.W = -1
	if err := ValidateScreen(s); err == nil {
		t.Fatalf("negative width accepted")
	}
	s.Size.W = 1
	s.Views[domain.NewEntityID()] = domain.ViewReference{Position: domain.Vec2{X: math.Inf(-1)}}
	if err := ValidateScreen(s); err == nil {
		t.Fatalf("infinite position accepted")
	}
}

func TestValidateSnapshotKeyMismatch(t *testing.T) {
	snapshot := domain.NewSnapshot()
	p := domain.NewPattern("oam", "")
	snapshot.Patterns[p.ID] = p
	if err := ValidateSnapshot(snapshot); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}
	snapshot.Patterns[domain.NewEntityID()] = domain.NewPattern("oam", "")
	if err := ValidateSnapshot(snapshot); err == nil {
		t.Fatalf("mismatched key accepted")
	}
}

type mapView struct {
	screens  map[domain.EntityID]*domain.Screen
	views    map[domain.EntityID]*domain.View
	patterns map[domain.EntityID]*domain.Pattern
}

func (m mapView) FindScreen(id domain.EntityID) (*domain.Screen, bool) {
	s, ok := m.screens[id]
	return s, ok
}

func (m mapView) FindView(id domain.EntityID) (*domain.View, bool) {
	v, ok := m.views[id]
	return v, ok
}

func (m mapView) FindPattern(id domain.EntityID) (*domain.Pattern, bool) {
	p, ok := m.patterns[id]
	return p, ok
}

func TestSchemaRule(t *testing.T) {
	ctx := context.Background()
	bad := &domain.Pattern{ID: domain.NewEntityID()}
	res, err := SchemaRule{}.Evaluate(ctx, nil, domain.Change{Entity: domain.EntityPattern, Action: domain.ActionCreate, ID: bad.ID, After: bad})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	rvErr := domain.RuleViolationError{Result: res}
	var invalidErr *domain.ErrInvalidDocument
	if !errors.As(rvErr, &invalidErr) {
		t.Fatalf("expected ErrInvalidDocument cause")
	}
	res, _ = SchemaRule{}.Evaluate(ctx, nil, domain.Change{Entity: domain.EntityPattern, Action: domain.ActionDelete, Before: bad})
	if len(res.Violations) != 0 {
		t.Fatalf("delete must not be validated")
	}
}

func TestReferenceRule(t *testing.T) {
	ctx := context.Background()
	p := domain.NewPattern("oam", "")
	v := domain.NewView("")
	view := mapView{
		patterns: map[domain.EntityID]*domain.Pattern{p.ID: p},
		views:    map[domain.EntityID]*domain.View{},
	}
	rule := ReferenceRule{}
	res, err := rule.Evaluate(ctx, view, domain.Change{Entity: domain.EntityView, Action: domain.ActionConnect, ID: v.ID, TargetID: p.ID})
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("existing pattern flagged: %v %v", res, err)
	}
	missing := domain.NewEntityID()
	res, _ = rule.Evaluate(ctx, view, domain.Change{Entity: domain.EntityView, Action: domain.ActionConnect, ID: v.ID, TargetID: missing})
	if !res.HasBlocking() {
		t.Fatalf("expected blocking dangling reference")
	}
	var dangling *domain.ErrDanglingReference
	if !errors.As(domain.RuleViolationError{Result: res}, &dangling) || dangling.TargetID != missing {
		t.Fatalf("expected dangling cause for %s", missing)
	}

	s := domain.NewScreen("", domain.PixelSize{}, domain.PixelOffset{})
	s.Views[v.ID] = domain.ViewReference{}
	res, _ = ReferenceRule{Severity: domain.SeverityWarn}.Evaluate(ctx, view, domain.Change{Entity: domain.EntityScreen, Action: domain.ActionCreate, ID: s.ID, After: s})
	if len(res.Violations) != 1 || res.HasBlocking() {
		t.Fatalf("expected one warning, got %+v", res)
	}
	if _, err := rule.Evaluate(ctx, nil, domain.Change{}); err == nil {
		t.Fatalf("expected error without view")
	}
}
