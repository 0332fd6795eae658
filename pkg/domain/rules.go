package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock rejects the mutation; the store is left unchanged.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows the mutation.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// RuleView provides read-only access to the store state for rule evaluation.
type RuleView interface {
	FindScreen(id EntityID) (*Screen, bool)
	FindView(id EntityID) (*View, bool)
	FindPattern(id EntityID) (*Pattern, bool)
}

// Rule defines a check executed before a mutation is applied.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, change Change) (Result, error)
}

// Violation reports a failed rule evaluation. Cause, when set, is the typed
// error describing the failure (ErrInvalidDocument, ErrDanglingReference).
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID EntityID
	Cause    error
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Rule, v.Message))
		}
	}
	if len(msgs) == 0 {
		return "mutation blocked by rules"
	}
	return "mutation blocked by rules: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the causes of blocking violations to errors.Is / errors.As.
func (e RuleViolationError) Unwrap() []error {
	var causes []error
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Cause != nil {
			causes = append(causes, v.Cause)
		}
	}
	return causes
}

// AsRuleViolation extracts a RuleViolationError from err.
func AsRuleViolation(err error) (RuleViolationError, bool) {
	var rv RuleViolationError
	ok := errors.As(err, &rv)
	return rv, ok
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Clone returns an engine with the same rules. Registering on the clone
// leaves e unchanged.
func (e *RulesEngine) Clone() *RulesEngine {
	return &RulesEngine{rules: e.Rules()}
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, change Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, change)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
