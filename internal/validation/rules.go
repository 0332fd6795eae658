package validation

import (
	"context"
	"errors"

	"slmcontrol/pkg/domain"
)

// Rule names reported in violations.
const (
	SchemaRuleName    = "schema"
	ReferenceRuleName = "references"
)

// SchemaRule blocks create, update and connect changes whose resulting
// document fails typed validation. Connect changes carry the new reference
// as After.
type SchemaRule struct{}

// Name implements domain.Rule.
func (SchemaRule) Name() string { return SchemaRuleName }

// Evaluate implements domain.Rule.
func (SchemaRule) Evaluate(_ context.Context, _ domain.RuleView, change domain.Change) (domain.Result, error) {
	if change.Action == domain.ActionDelete {
		return domain.Result{}, nil
	}
	var err error
	switch doc := change.After.(type) {
	case *domain.Pattern:
		err = ValidatePattern(doc)
	case *domain.View:
		err = ValidateView(doc)
	case *domain.Screen:
		err = ValidateScreen(doc)
	case domain.PatternReference:
		err = ValidatePatternReference(doc)
	case domain.ViewReference:
		err = ValidateViewReference(doc)
	default:
		return domain.Result{}, nil
	}
	if err == nil {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     SchemaRuleName,
		Severity: domain.SeverityBlock,
		Message:  err.Error(),
		Entity:   change.Entity,
		EntityID: change.ID,
		Cause:    err,
	}}}, nil
}

// ReferenceRule enforces that references point at existing entities at the
// moment they are created: a view's patterns must exist, a screen's views
// must exist. Severity selects whether a dangling reference blocks the
// mutation or is only reported.
type ReferenceRule struct {
	Severity domain.Severity
}

// Name implements domain.Rule.
func (ReferenceRule) Name() string { return ReferenceRuleName }

// Evaluate implements domain.Rule.
func (r ReferenceRule) Evaluate(_ context.Context, view domain.RuleView, change domain.Change) (domain.Result, error) {
	if view == nil {
		return domain.Result{}, errors.New("reference rule requires a view")
	}
	severity := r.Severity
	if severity == "" {
		severity = domain.SeverityBlock
	}
	var dangling []*domain.ErrDanglingReference
	switch change.Action {
	case domain.ActionConnect:
		switch change.Entity {
		case domain.EntityView:
			if _, ok := view.FindPattern(change.TargetID); !ok {
				dangling = append(dangling, &domain.ErrDanglingReference{Entity: domain.EntityView, ID: change.ID, Target: domain.EntityPattern, TargetID: change.TargetID})
			}
		case domain.EntityScreen:
			if _, ok := view.FindView(change.TargetID); !ok {
				dangling = append(dangling, &domain.ErrDanglingReference{Entity: domain.EntityScreen, ID: change.ID, Target: domain.EntityView, TargetID: change.TargetID})
			}
		}
	case domain.ActionCreate, domain.ActionUpdate:
		switch doc := change.After.(type) {
		case *domain.View:
			for patternID := range doc.Patterns {
				if _, ok := view.FindPattern(patternID); !ok {
					dangling = append(dangling, &domain.ErrDanglingReference{Entity: domain.EntityView, ID: doc.ID, Target: domain.EntityPattern, TargetID: patternID})
				}
			}
		case *domain.Screen:
			for viewID := range doc.Views {
				if _, ok := view.FindView(viewID); !ok {
					dangling = append(dangling, &domain.ErrDanglingReference{Entity: domain.EntityScreen, ID: doc.ID, Target: domain.EntityView, TargetID: viewID})
				}
			}
		}
	}
	var res domain.Result
	for _, d := range dangling {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     ReferenceRuleName,
			Severity: severity,
			Message:  d.Error(),
			Entity:   d.Entity,
			EntityID: d.ID,
			Cause:    d,
		})
	}
	return res, nil
}
