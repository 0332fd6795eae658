package memory

import (
	"fmt"
	"maps"

	"slmcontrol/pkg/domain"

	"github.com/tiendc/go-deepcopy"
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

// cloneOpenMap deep copies an open attribute bag. Nested maps and slices are
// copied so the clone shares no mutable state with the source.
func cloneOpenMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	var dst map[string]any
	mustApply("clone attributes", deepcopy.Copy(&dst, &src))
	if dst == nil {
		dst = map[string]any{}
	}
	return dst
}

func clonePattern(p *domain.Pattern) *domain.Pattern {
	cp := *p
	cp.Attributes = cloneOpenMap(p.Attributes)
	return &cp
}

func cloneView(v *domain.View) *domain.View {
	cp := *v
	cp.Patterns = maps.Clone(v.Patterns)
	if cp.Patterns == nil {
		cp.Patterns = map[domain.EntityID]domain.PatternReference{}
	}
	return &cp
}

func cloneScreen(s *domain.Screen) *domain.Screen {
	cp := *s
	cp.Views = maps.Clone(s.Views)
	if cp.Views == nil {
		cp.Views = map[domain.EntityID]domain.ViewReference{}
	}
	return &cp
}

// migrateSnapshot fills nil collections and nested mappings so imported state
// satisfies the store's shape assumptions.
func migrateSnapshot(snapshot domain.Snapshot) domain.Snapshot {
	if snapshot.Screens == nil {
		snapshot.Screens = map[domain.EntityID]*domain.Screen{}
	}
	if snapshot.Views == nil {
		snapshot.Views = map[domain.EntityID]*domain.View{}
	}
	if snapshot.Patterns == nil {
		snapshot.Patterns = map[domain.EntityID]*domain.Pattern{}
	}
	if snapshot.Extra == nil {
		snapshot.Extra = map[string]any{}
	}
	return snapshot
}
