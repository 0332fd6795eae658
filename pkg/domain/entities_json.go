package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Reserved document keys. Pattern attributes and snapshot extras may use any
// other key.
const (
	keyID       = "id"
	keyType     = "type"
	keyName     = "name"
	keyScreens  = "screens"
	keyViews    = "views"
	keyPatterns = "patterns"
)

// MarshalJSON encodes the pair as a two-element array.
func (v Vec2) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{v.X, v.Y})
}

// UnmarshalJSON decodes a two-element numeric array.
func (v *Vec2) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := decodePair(data, &pair); err != nil {
		return fmt.Errorf("decode vec2: %w", err)
	}
	v.X, v.Y = pair[0], pair[1]
	return nil
}

// MarshalJSON encodes the size as [w, h].
func (s PixelSize) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.W, s.H})
}

// UnmarshalJSON decodes [w, h].
func (s *PixelSize) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := decodePair(data, &pair); err != nil {
		return fmt.Errorf("decode pixel size: %w", err)
	}
	s.W, s.H = pair[0], pair[1]
	return nil
}

// MarshalJSON encodes the offset as [x, y].
func (o PixelOffset) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{o.X, o.Y})
}

// UnmarshalJSON decodes [x, y].
func (o *PixelOffset) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := decodePair(data, &pair); err != nil {
		return fmt.Errorf("decode pixel offset: %w", err)
	}
	o.X, o.Y = pair[0], pair[1]
	return nil
}

func decodePair[T any](data []byte, out *[2]T) error {
	var raw []T
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("expected 2 elements, got %d", len(raw))
	}
	out[0], out[1] = raw[0], raw[1]
	return nil
}

type complexPayload struct {
	Re float64 `json:"re"`
	Im float64 `json:"im"`
}

// MarshalJSON encodes a real coefficient as a bare number and a complex one
// as {"re": r, "im": i}.
func (c Coefficient) MarshalJSON() ([]byte, error) {
	z := complex128(c)
	if imag(z) == 0 {
		return json.Marshal(real(z))
	}
	return json.Marshal(complexPayload{Re: real(z), Im: imag(z)})
}

// UnmarshalJSON accepts either encoding produced by MarshalJSON.
func (c *Coefficient) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p complexPayload
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode coefficient: %w", err)
		}
		*c = Coefficient(complex(p.Re, p.Im))
		return nil
	}
	var r float64
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return fmt.Errorf("decode coefficient: %w", err)
	}
	*c = Coefficient(complex(r, 0))
	return nil
}

// MarshalJSON encodes the reference as [coefficient, transform].
func (r PatternReference) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Coefficient, r.Transform})
}

// UnmarshalJSON decodes [coefficient, transform].
func (r *PatternReference) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode pattern reference: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("decode pattern reference: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.Coefficient); err != nil {
		return err
	}
	if err := unmarshalClosed(raw[1], &r.Transform); err != nil {
		return fmt.Errorf("decode pattern reference transform: %w", err)
	}
	return nil
}

// MarshalJSON encodes the reference as [position, size].
func (r ViewReference) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Vec2{r.Position, r.Size})
}

// UnmarshalJSON decodes [position, size].
func (r *ViewReference) UnmarshalJSON(data []byte) error {
	var pair [2]Vec2
	if err := decodePair(data, &pair); err != nil {
		return fmt.Errorf("decode view reference: %w", err)
	}
	r.Position, r.Size = pair[0], pair[1]
	return nil
}

// UnmarshalJSON rejects unknown keys: a transform is a closed record.
func (t *Transform) UnmarshalJSON(data []byte) error {
	type plain Transform
	var p plain
	if err := unmarshalClosed(data, &p); err != nil {
		return fmt.Errorf("decode transform: %w", err)
	}
	*t = Transform(p)
	return nil
}

func unmarshalClosed(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// MarshalJSON flattens Attributes into the pattern object alongside the
// reserved id, type and name keys.
func (p Pattern) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Attributes)+3)
	for k, v := range p.Attributes {
		out[k] = v
	}
	out[keyID] = p.ID
	out[keyType] = p.Type
	if p.Name != "" {
		out[keyName] = p.Name
	} else {
		delete(out, keyName)
	}
	return json.Marshal(out)
}

// UnmarshalJSON extracts the reserved keys and keeps every other key in Attributes.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode pattern: %w", err)
	}
	var decoded Pattern
	if v, ok := raw[keyID]; ok {
		if err := json.Unmarshal(v, &decoded.ID); err != nil {
			return fmt.Errorf("decode pattern id: %w", err)
		}
	}
	if v, ok := raw[keyType]; ok {
		if err := json.Unmarshal(v, &decoded.Type); err != nil {
			return fmt.Errorf("decode pattern type: %w", err)
		}
	}
	if v, ok := raw[keyName]; ok {
		if err := json.Unmarshal(v, &decoded.Name); err != nil {
			return fmt.Errorf("decode pattern name: %w", err)
		}
	}
	delete(raw, keyID)
	delete(raw, keyType)
	delete(raw, keyName)
	attrs, err := decodeOpenKeys(raw)
	if err != nil {
		return fmt.Errorf("decode pattern attributes: %w", err)
	}
	decoded.Attributes = attrs
	*p = decoded
	return nil
}

// MarshalJSON writes a nil pattern mapping as an empty object.
func (v View) MarshalJSON() ([]byte, error) {
	type plain View
	v.Patterns = nonNilMap(v.Patterns)
	return json.Marshal(plain(v))
}

// MarshalJSON writes a nil view mapping as an empty object.
func (s Screen) MarshalJSON() ([]byte, error) {
	type plain Screen
	s.Views = nonNilMap(s.Views)
	return json.Marshal(plain(s))
}

// MarshalJSON flattens Extra into the root object.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		out[k] = v
	}
	out[keyScreens] = nonNilMap(s.Screens)
	out[keyViews] = nonNilMap(s.Views)
	out[keyPatterns] = nonNilMap(s.Patterns)
	return json.Marshal(out)
}

// UnmarshalJSON decodes the three collections and keeps unknown top-level
// keys in Extra.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	decoded := NewSnapshot()
	if v, ok := raw[keyScreens]; ok {
		if err := json.Unmarshal(v, &decoded.Screens); err != nil {
			return fmt.Errorf("decode screens: %w", err)
		}
	}
	if v, ok := raw[keyViews]; ok {
		if err := json.Unmarshal(v, &decoded.Views); err != nil {
			return fmt.Errorf("decode views: %w", err)
		}
	}
	if v, ok := raw[keyPatterns]; ok {
		if err := json.Unmarshal(v, &decoded.Patterns); err != nil {
			return fmt.Errorf("decode patterns: %w", err)
		}
	}
	delete(raw, keyScreens)
	delete(raw, keyViews)
	delete(raw, keyPatterns)
	extra, err := decodeOpenKeys(raw)
	if err != nil {
		return fmt.Errorf("decode snapshot extras: %w", err)
	}
	decoded.Extra = extra
	*s = decoded
	return nil
}

func decodeOpenKeys(raw map[string]json.RawMessage) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = value
	}
	return out, nil
}

func nonNilMap[V any](m map[EntityID]V) map[EntityID]V {
	if m == nil {
		return map[EntityID]V{}
	}
	return m
}
