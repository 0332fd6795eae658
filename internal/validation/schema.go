// Package validation describes what well-formed screen, view and pattern
// documents look like. Document predicates (Is*/Check*) work on untyped
// documents as decoded from JSON or YAML; typed checks (Validate*) work on
// domain structs. Neither depends on the store.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"slmcontrol/pkg/domain"

	"github.com/google/uuid"
)

// SchemaError locates the first structural problem in a document.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}

func problem(path, format string, args ...any) error {
	return &SchemaError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Document keys.
const (
	fieldID        = "id"
	fieldName      = "name"
	fieldType      = "type"
	fieldPosition  = "position"
	fieldSize      = "size"
	fieldRotation  = "rotation"
	fieldTransform = "transform"
	fieldPatterns  = "patterns"
	fieldOffset    = "offset"
	fieldViews     = "views"
	fieldScreens   = "screens"
)

var (
	transformKeys = []string{fieldPosition, fieldSize, fieldRotation}
	viewKeys      = []string{fieldID, fieldName, fieldTransform, fieldPatterns}
	screenKeys    = []string{fieldID, fieldName, fieldSize, fieldOffset, fieldViews}
)

// IsTransform reports whether doc is a closed {position, size, rotation} record.
func IsTransform(doc any) bool { return CheckTransform(doc) == nil }

// IsPatternReference reports whether doc is a [coefficient, transform] pair.
func IsPatternReference(doc any) bool { return CheckPatternReference(doc) == nil }

// IsViewReference reports whether doc is a [position, size] pair.
func IsViewReference(doc any) bool { return CheckViewReference(doc) == nil }

// IsPattern reports whether doc is a well-formed (open) pattern document.
func IsPattern(doc any) bool { return CheckPattern(doc) == nil }

// IsView reports whether doc is a well-formed (closed) view document.
func IsView(doc any) bool { return CheckView(doc) == nil }

// IsScreen reports whether doc is a well-formed (closed) screen document.
func IsScreen(doc any) bool { return CheckScreen(doc) == nil }

// IsStore reports whether doc is a well-formed (open) root store document.
func IsStore(doc any) bool { return CheckStore(doc) == nil }

// CheckTransform returns the first structural problem of a transform.
func CheckTransform(doc any) error { return checkTransform("", doc) }

// CheckPatternReference returns the first structural problem of a pattern reference.
func CheckPatternReference(doc any) error { return checkPatternReference("", doc) }

// CheckViewReference returns the first structural problem of a view reference.
func CheckViewReference(doc any) error { return checkViewReference("", doc) }

// CheckPattern returns the first structural problem of a pattern document.
func CheckPattern(doc any) error { return checkPattern("", doc) }

// CheckView returns the first structural problem of a view document.
func CheckView(doc any) error { return checkView("", doc) }

// CheckScreen returns the first structural problem of a screen document.
func CheckScreen(doc any) error { return checkScreen("", doc) }

// CheckStore returns the first structural problem of a root store document.
// Unknown top-level keys are allowed.
func CheckStore(doc any) error {
	m, ok := asObject(doc)
	if !ok {
		return problem("", "store must be an object")
	}
	collections := []struct {
		key   string
		check func(string, any) error
	}{
		{fieldScreens, checkScreen},
		{fieldViews, checkView},
		{fieldPatterns, checkPattern},
	}
	for _, c := range collections {
		raw, present := m[c.key]
		if !present {
			return problem("/"+c.key, "required")
		}
		if err := checkMapping("/"+c.key, raw, c.check); err != nil {
			return err
		}
	}
	return nil
}

func checkTransform(path string, doc any) error {
	m, ok := asObject(doc)
	if !ok {
		return problem(path, "transform must be an object")
	}
	if err := closedKeys(path, m, transformKeys, transformKeys); err != nil {
		return err
	}
	if !isRealPair(m[fieldPosition]) {
		return problem(path+"/"+fieldPosition, "must be a pair of numbers")
	}
	if !isRealPair(m[fieldSize]) {
		return problem(path+"/"+fieldSize, "must be a pair of numbers")
	}
	if !isNumber(m[fieldRotation]) {
		return problem(path+"/"+fieldRotation, "must be a number")
	}
	return nil
}

func checkPatternReference(path string, doc any) error {
	if ref, ok := doc.(domain.PatternReference); ok {
		return checkTransform(path+"/1", transformDocument(ref.Transform))
	}
	items, ok := asSequence(doc)
	if !ok || len(items) != 2 {
		return problem(path, "pattern reference must be [coefficient, transform]")
	}
	if !isCoefficient(items[0]) {
		return problem(path+"/0", "coefficient must be a real, integer or complex number")
	}
	return checkTransform(path+"/1", items[1])
}

func checkViewReference(path string, doc any) error {
	if _, ok := doc.(domain.ViewReference); ok {
		return nil
	}
	items, ok := asSequence(doc)
	if !ok || len(items) != 2 {
		return problem(path, "view reference must be [position, size]")
	}
	if !isRealPair(items[0]) {
		return problem(path+"/0", "position must be a pair of numbers")
	}
	if !isRealPair(items[1]) {
		return problem(path+"/1", "size must be a pair of numbers")
	}
	return nil
}

func checkPattern(path string, doc any) error {
	m, ok := asObject(doc)
	if !ok {
		return problem(path, "pattern must be an object")
	}
	if !isEntityID(m[fieldID]) {
		return problem(path+"/"+fieldID, "must be an entity id")
	}
	if _, ok := m[fieldType].(string); !ok {
		return problem(path+"/"+fieldType, "must be a string")
	}
	return checkOptionalName(path, m)
}

func checkView(path string, doc any) error {
	m, ok := asObject(doc)
	if !ok {
		return problem(path, "view must be an object")
	}
	if err := closedKeys(path, m, viewKeys, []string{fieldID, fieldTransform, fieldPatterns}); err != nil {
		return err
	}
	if !isEntityID(m[fieldID]) {
		return problem(path+"/"+fieldID, "must be an entity id")
	}
	if err := checkOptionalName(path, m); err != nil {
		return err
	}
	if err := checkTransform(path+"/"+fieldTransform, m[fieldTransform]); err != nil {
		return err
	}
	return checkMapping(path+"/"+fieldPatterns, m[fieldPatterns], checkPatternReference)
}

func checkScreen(path string, doc any) error {
	m, ok := asObject(doc)
	if !ok {
		return problem(path, "screen must be an object")
	}
	if err := closedKeys(path, m, screenKeys, []string{fieldID, fieldSize, fieldOffset, fieldViews}); err != nil {
		return err
	}
	if !isEntityID(m[fieldID]) {
		return problem(path+"/"+fieldID, "must be an entity id")
	}
	if err := checkOptionalName(path, m); err != nil {
		return err
	}
	if !isIntPair(m[fieldSize], true) {
		return problem(path+"/"+fieldSize, "must be a pair of non-negative integers")
	}
	if !isIntPair(m[fieldOffset], false) {
		return problem(path+"/"+fieldOffset, "must be a pair of integers")
	}
	return checkMapping(path+"/"+fieldViews, m[fieldViews], checkViewReference)
}

func checkOptionalName(path string, m map[string]any) error {
	if raw, present := m[fieldName]; present {
		if _, ok := raw.(string); !ok {
			return problem(path+"/"+fieldName, "must be a string")
		}
	}
	return nil
}

// checkMapping validates an id-keyed mapping; an empty mapping is valid.
func checkMapping(path string, doc any, check func(string, any) error) error {
	rv := reflect.ValueOf(doc)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return problem(path, "must be a mapping keyed by entity id")
	}
	type entry struct {
		label string
		key   any
		value any
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().Interface()
		entries = append(entries, entry{label: fmt.Sprint(k), key: k, value: iter.Value().Interface()})
	}
	// Deterministic order so the reported problem is stable.
	sort.Slice(entries, func(i, j int) bool { return entries[i].label < entries[j].label })
	for _, e := range entries {
		if !isEntityID(e.key) {
			return problem(path+"/"+e.label, "key must be an entity id")
		}
		if err := check(path+"/"+e.label, e.value); err != nil {
			return err
		}
	}
	return nil
}

func closedKeys(path string, m map[string]any, allowed, required []string) error {
	for _, key := range required {
		if _, ok := m[key]; !ok {
			return problem(path+"/"+key, "required")
		}
	}
	var unknown []string
	for key := range m {
		if !contains(allowed, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return problem(path, "unexpected keys %s", strings.Join(unknown, ", "))
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func asObject(doc any) (map[string]any, bool) {
	switch m := doc.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func asSequence(doc any) ([]any, bool) {
	if items, ok := doc.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(doc)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type() == reflect.TypeOf(uuid.UUID{}) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

const canonicalUUIDLen = 36

func isEntityID(v any) bool {
	switch id := v.(type) {
	case uuid.UUID:
		return id != uuid.Nil
	case [16]byte:
		return uuid.UUID(id) != uuid.Nil
	case string:
		// uuid.Parse also takes urn, braced and bare-hex forms.
		if len(id) != canonicalUUIDLen {
			return false
		}
		parsed, err := uuid.Parse(id)
		return err == nil && parsed != uuid.Nil
	default:
		return false
	}
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

func toFloat(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// integral reports whether v is a whole number and whether it is negative.
// JSON decoding into any yields float64 for every number.
func integral(v any) (negative, ok bool) {
	rv := reflect.ValueOf(v)
	if rv.IsValid() {
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int() < 0, true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return false, true
		}
	}
	f, ok := toFloat(v)
	if !ok || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return false, false
	}
	return f < 0, true
}

func isCoefficient(v any) bool {
	switch c := v.(type) {
	case complex64, complex128, domain.Coefficient:
		return true
	case map[string]any:
		if len(c) != 2 {
			return false
		}
		return isNumber(c["re"]) && isNumber(c["im"])
	}
	return isNumber(v)
}

func isRealPair(v any) bool {
	if _, ok := v.(domain.Vec2); ok {
		return true
	}
	items, ok := asSequence(v)
	if !ok || len(items) != 2 {
		return false
	}
	return isNumber(items[0]) && isNumber(items[1])
}

func isIntPair(v any, nonNegative bool) bool {
	switch p := v.(type) {
	case domain.PixelSize:
		return !nonNegative || (p.W >= 0 && p.H >= 0)
	case domain.PixelOffset:
		return !nonNegative || (p.X >= 0 && p.Y >= 0)
	}
	items, ok := asSequence(v)
	if !ok || len(items) != 2 {
		return false
	}
	for _, item := range items {
		negative, ok := integral(item)
		if !ok || (nonNegative && negative) {
			return false
		}
	}
	return true
}

func transformDocument(t domain.Transform) map[string]any {
	return map[string]any{
		fieldPosition: []any{t.Position.X, t.Position.Y},
		fieldSize:     []any{t.Size.X, t.Size.Y},
		fieldRotation: t.Rotation,
	}
}
