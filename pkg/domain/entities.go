// Package domain defines the screen, view and pattern documents held by the
// slmcontrol state store, together with the change and rule primitives the
// store evaluates on mutation.
package domain

import (
	"github.com/google/uuid"
)

// EntityType identifies the kind of document stored in the state.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityScreen identifies a physical SLM display surface.
	EntityScreen EntityType = "screen"
	// EntityView identifies a transformed composition of patterns.
	EntityView EntityType = "view"
	// EntityPattern identifies a renderable optical pattern.
	EntityPattern EntityType = "pattern"
)

// EntityID is the 128-bit random identifier used as primary key for every
// document kind. It is immutable for the lifetime of the entity.
type EntityID = uuid.UUID

// NilEntityID is the zero identifier. It never names a stored entity.
var NilEntityID = uuid.Nil

// NewEntityID returns a fresh random (version 4) identifier.
func NewEntityID() EntityID {
	return uuid.New()
}

// ParseEntityID decodes the canonical textual form of an identifier.
func ParseEntityID(s string) (EntityID, error) {
	return uuid.Parse(s)
}

// Vec2 is a pair of reals used for positions and sizes.
type Vec2 struct {
	X float64 `validate:"finite"`
	Y float64 `validate:"finite"`
}

// Transform places a composition on a view or a pattern within a view.
// All three fields are always present.
type Transform struct {
	Position Vec2    `json:"position"`
	Size     Vec2    `json:"size"`
	Rotation float64 `json:"rotation" validate:"finite"`
}

// IdentityTransform returns the default transform: origin, zero size, no rotation.
func IdentityTransform() Transform {
	return Transform{}
}

// Coefficient weights a pattern inside a view. Real and integer weights are
// the zero-imaginary subset.
type Coefficient complex128

// PatternReference records how a pattern is composed into a view.
type PatternReference struct {
	Coefficient Coefficient
	Transform   Transform
}

// DefaultPatternReference is the reference created when no explicit weight
// or transform is supplied: unit coefficient and identity transform.
func DefaultPatternReference() PatternReference {
	return PatternReference{Coefficient: 1, Transform: IdentityTransform()}
}

// ViewReference records where a view is placed on a screen.
type ViewReference struct {
	Position Vec2
	Size     Vec2
}

// PixelSize is a screen extent in pixels.
type PixelSize struct {
	W int `validate:"gte=0"`
	H int `validate:"gte=0"`
}

// PixelOffset is the physical placement offset of a screen.
type PixelOffset struct {
	X int
	Y int
}

// Pattern describes something that can be rendered onto an SLM. Type selects
// the generation algorithm; Attributes holds algorithm-specific parameters
// and is open to arbitrary keys.
type Pattern struct {
	ID         EntityID       `json:"id" validate:"required"`
	Type       string         `json:"type" validate:"required"`
	Name       string         `json:"name,omitempty"`
	Attributes map[string]any `json:"-"`
}

// View is a transform applied to a weighted composition of patterns.
type View struct {
	ID        EntityID                      `json:"id" validate:"required"`
	Name      string                        `json:"name,omitempty"`
	Transform Transform                     `json:"transform"`
	Patterns  map[EntityID]PatternReference `json:"patterns" validate:"dive,keys,required,endkeys"`
}

// Screen is a physical display showing zero or more views.
type Screen struct {
	ID     EntityID                   `json:"id" validate:"required"`
	Name   string                     `json:"name,omitempty"`
	Size   PixelSize                  `json:"size"`
	Offset PixelOffset                `json:"offset"`
	Views  map[EntityID]ViewReference `json:"views" validate:"dive,keys,required,endkeys"`
}

// NewPattern builds a pattern with a fresh identifier.
func NewPattern(patternType, name string) *Pattern {
	return &Pattern{ID: NewEntityID(), Type: patternType, Name: name, Attributes: map[string]any{}}
}

// NewView builds a view with a fresh identifier, identity transform and no patterns.
func NewView(name string) *View {
	return &View{ID: NewEntityID(), Name: name, Transform: IdentityTransform(), Patterns: map[EntityID]PatternReference{}}
}

// NewScreen builds a screen with a fresh identifier and no views.
func NewScreen(name string, size PixelSize, offset PixelOffset) *Screen {
	return &Screen{ID: NewEntityID(), Name: name, Size: size, Offset: offset, Views: map[EntityID]ViewReference{}}
}

// Snapshot is the root aggregate: the three collections plus any unknown
// top-level keys, which are preserved verbatim.
type Snapshot struct {
	Screens  map[EntityID]*Screen  `json:"screens" validate:"dive,keys,required,endkeys"`
	Views    map[EntityID]*View    `json:"views" validate:"dive,keys,required,endkeys"`
	Patterns map[EntityID]*Pattern `json:"patterns" validate:"dive,keys,required,endkeys"`
	Extra    map[string]any        `json:"-"`
}

// NewSnapshot returns an empty snapshot with initialised collections.
func NewSnapshot() Snapshot {
	return Snapshot{
		Screens:  make(map[EntityID]*Screen),
		Views:    make(map[EntityID]*View),
		Patterns: make(map[EntityID]*Pattern),
		Extra:    make(map[string]any),
	}
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations a store reports to listeners and rules.
const (
	// ActionCreate indicates an entity was added under a new id.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was replaced or mutated in place.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionConnect indicates a reference was set on a parent entity.
	ActionConnect Action = "connect"
	// ActionDisconnect indicates a reference was removed from a parent entity.
	ActionDisconnect Action = "disconnect"
)

// Change describes a mutation applied to the store. For connect and
// disconnect changes Entity and ID name the parent and TargetID the
// referenced entity.
type Change struct {
	Entity   EntityType
	Action   Action
	ID       EntityID
	TargetID EntityID
	Before   any
	After    any
}
