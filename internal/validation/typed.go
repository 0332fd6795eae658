package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"slmcontrol/pkg/domain"

	"github.com/go-playground/validator/v10"
)

// structValidate checks domain structs against their `validate` tags.
// Initialized in init() with the custom float checks.
var structValidate *validator.Validate

func init() {
	structValidate = validator.New(validator.WithRequiredStructEnabled())
	_ = structValidate.RegisterValidation("finite", validateFinite)
}

// validateFinite rejects NaN and infinite reals.
func validateFinite(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		f := field.Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

var reservedPatternKeys = []string{fieldID, fieldType, fieldName}

// ValidatePattern checks a typed pattern: non-nil id, non-empty type, and no
// attribute shadowing a reserved key.
func ValidatePattern(p *domain.Pattern) error {
	if p == nil {
		return &domain.ErrInvalidDocument{Entity: domain.EntityPattern, Reason: "nil document"}
	}
	if err := structValidate.Struct(p); err != nil {
		return invalid(domain.EntityPattern, p.ID, err)
	}
	for _, key := range reservedPatternKeys {
		if _, ok := p.Attributes[key]; ok {
			return &domain.ErrInvalidDocument{Entity: domain.EntityPattern, ID: p.ID, Reason: fmt.Sprintf("attribute %q shadows a reserved key", key)}
		}
	}
	return nil
}

// ValidateView checks a typed view: non-nil id, finite transform, and
// well-formed pattern references. A nil mapping is an empty one.
func ValidateView(v *domain.View) error {
	if v == nil {
		return &domain.ErrInvalidDocument{Entity: domain.EntityView, Reason: "nil document"}
	}
	if err := structValidate.Struct(v); err != nil {
		return invalid(domain.EntityView, v.ID, err)
	}
	for patternID, ref := range v.Patterns {
		z := complex128(ref.Coefficient)
		if !finite(real(z)) || !finite(imag(z)) {
			return &domain.ErrInvalidDocument{Entity: domain.EntityView, ID: v.ID, Reason: fmt.Sprintf("coefficient for pattern %s is not finite", patternID)}
		}
	}
	return nil
}

// ValidateScreen checks a typed screen: non-nil id, non-negative size and
// well-formed view references. A nil mapping is an empty one.
func ValidateScreen(s *domain.Screen) error {
	if s == nil {
		return &domain.ErrInvalidDocument{Entity: domain.EntityScreen, Reason: "nil document"}
	}
	if err := structValidate.Struct(s); err != nil {
		return invalid(domain.EntityScreen, s.ID, err)
	}
	return nil
}

// ValidatePatternReference checks that a reference weight and transform are finite.
func ValidatePatternReference(ref domain.PatternReference) error {
	if err := structValidate.Struct(ref); err != nil {
		return invalid(domain.EntityView, domain.NilEntityID, err)
	}
	z := complex128(ref.Coefficient)
	if !finite(real(z)) || !finite(imag(z)) {
		return &domain.ErrInvalidDocument{Entity: domain.EntityView, Reason: "coefficient is not finite"}
	}
	return nil
}

// ValidateViewReference checks that a screen placement is finite.
func ValidateViewReference(ref domain.ViewReference) error {
	if err := structValidate.Struct(ref); err != nil {
		return invalid(domain.EntityScreen, domain.NilEntityID, err)
	}
	return nil
}

// ValidateSnapshot checks every document in a snapshot and that each
// collection key matches the id of the document stored under it.
func ValidateSnapshot(snapshot domain.Snapshot) error {
	for id, s := range snapshot.Screens {
		if err := ValidateScreen(s); err != nil {
			return err
		}
		if s.ID != id {
			return keyMismatch(domain.EntityScreen, id, s.ID)
		}
	}
	for id, v := range snapshot.Views {
		if err := ValidateView(v); err != nil {
			return err
		}
		if v.ID != id {
			return keyMismatch(domain.EntityView, id, v.ID)
		}
	}
	for id, p := range snapshot.Patterns {
		if err := ValidatePattern(p); err != nil {
			return err
		}
		if p.ID != id {
			return keyMismatch(domain.EntityPattern, id, p.ID)
		}
	}
	return nil
}

func keyMismatch(entity domain.EntityType, key, id domain.EntityID) error {
	return &domain.ErrInvalidDocument{Entity: entity, ID: id, Reason: fmt.Sprintf("stored under key %s", key)}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func invalid(entity domain.EntityType, id domain.EntityID, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ErrInvalidDocument{Entity: entity, ID: id, Reason: err.Error()}
	}
	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reasons = append(reasons, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return &domain.ErrInvalidDocument{Entity: entity, ID: id, Reason: strings.Join(reasons, ", ")}
}
