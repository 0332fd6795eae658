package testutil

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"slmcontrol/pkg/domain"
)

// Fixed ids of the SceneSnapshot entities, so independently built scenes
// compare equal.
var (
	SceneOAMPatternID  = uuid.MustParse("6f1c2a4e-8b0d-4c1e-9a52-0d7e3b9f1a01")
	SceneLensPatternID = uuid.MustParse("6f1c2a4e-8b0d-4c1e-9a52-0d7e3b9f1a02")
	SceneViewID        = uuid.MustParse("6f1c2a4e-8b0d-4c1e-9a52-0d7e3b9f1a03")
	SceneScreenID      = uuid.MustParse("6f1c2a4e-8b0d-4c1e-9a52-0d7e3b9f1a04")
)

// SceneSnapshot builds a small scene: one screen showing one view composed of
// two patterns, one weighted by a complex coefficient, plus an extra root key.
// Every call returns an equal scene with fresh maps.
func SceneSnapshot() domain.Snapshot {
	snapshot := domain.NewSnapshot()
	oam := domain.NewPattern("oam", "alice-oam")
	oam.ID = SceneOAMPatternID
	oam.Attributes["components"] = []any{1.0, 0.0, 0.5}
	lens := domain.NewPattern("lens", "focus")
	lens.ID = SceneLensPatternID
	lens.Attributes["focal_length"] = 0.2
	view := domain.NewView("main")
	view.ID = SceneViewID
	view.Transform = domain.Transform{Position: domain.Vec2{X: 0.1, Y: -0.2}, Size: domain.Vec2{X: 1, Y: 1}, Rotation: 0.25}
	view.Patterns[oam.ID] = domain.DefaultPatternReference()
	view.Patterns[lens.ID] = domain.PatternReference{Coefficient: 0.5 - 0.5i, Transform: domain.IdentityTransform()}
	screen := domain.NewScreen("slm", domain.PixelSize{W: 1920, H: 1152}, domain.PixelOffset{X: 1920})
	screen.ID = SceneScreenID
	screen.Views[view.ID] = domain.ViewReference{Position: domain.Vec2{X: 0, Y: 0}, Size: domain.Vec2{X: 1920, Y: 1152}}

	snapshot.Patterns[oam.ID] = oam
	snapshot.Patterns[lens.ID] = lens
	snapshot.Views[view.ID] = view
	snapshot.Screens[screen.ID] = screen
	snapshot.Extra["lut"] = map[string]any{"gamma": 2.2}
	return snapshot
}

// AssertSnapshotsEquivalent compares snapshots by their JSON documents, so
// numeric attribute values decoded as float64 compare equal to the originals.
func AssertSnapshotsEquivalent(t testing.TB, want, got domain.Snapshot) {
	t.Helper()
	if !reflect.DeepEqual(canonical(t, want), canonical(t, got)) {
		t.Fatalf("snapshots differ:\nwant %s\ngot  %s", mustJSON(t, want), mustJSON(t, got))
	}
}

func canonical(t testing.TB, snapshot domain.Snapshot) any {
	t.Helper()
	var doc any
	if err := json.Unmarshal(mustJSON(t, snapshot), &doc); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return doc
}

func mustJSON(t testing.TB, snapshot domain.Snapshot) []byte {
	t.Helper()
	data, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	return data
}
