package core

import (
	"fmt"
	"strings"

	"apiwatch/models"

	"github.com/tidwall/gjson"
)

// ValidationOutcome reports the result of evaluating a response body against a
// rule set, carrying the first failing rule's diagnostic for logging.
type ValidationOutcome struct {
	Valid      bool
	FailedRule *models.ValidationRule
	Reason     string
}

// ValidateResponse evaluates responseBody against the rule set and reports
// whether it passes. No enabled rules means a trivial pass; a body that cannot
// be parsed as JSON against active rules is a validation failure, not a pass.
func ValidateResponse(responseBody string, rules []models.ValidationRule) bool {
	return EvaluateResponse(responseBody, rules).Valid
}

// EvaluateResponse is ValidateResponse with diagnostics. Rules run in list
// order; the first failure short-circuits and its reason is surfaced.
func EvaluateResponse(responseBody string, rules []models.ValidationRule) ValidationOutcome {
	var enabled []models.ValidationRule
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return ValidationOutcome{Valid: true}
	}

	if !gjson.Valid(responseBody) {
		return ValidationOutcome{Valid: false, Reason: "response body is not valid JSON"}
	}
	doc := gjson.Parse(responseBody)

	for i := range enabled {
		rule := enabled[i]
		actual := fieldAsString(doc, rule.Key)
		expected := rule.ExpectedValue
		if reason := applyOperator(actual, expected, rule.Operator); reason != "" {
			return ValidationOutcome{Valid: false, FailedRule: &enabled[i], Reason: reason}
		}
	}
	return ValidationOutcome{Valid: true}
}

// fieldAsString extracts a field and coerces it to its string representation.
// Numbers, booleans and nested values render as their JSON text; absent and
// null fields coerce to the empty string. The coercion makes rule sets
// type-agnostic at the cost of precision.
func fieldAsString(doc gjson.Result, key string) string {
	res := doc.Get(key)
	if !res.Exists() || res.Type == gjson.Null {
		return ""
	}
	return res.String()
}

// applyOperator returns "" when the comparison passes, else a diagnostic.
// Unknown operators fail rather than pass silently.
func applyOperator(actual, expected, operator string) string {
	switch operator {
	case "equals":
		if actual != expected {
			return fmt.Sprintf("actual value %q does not equal expected %q", actual, expected)
		}
	case "not_equals":
		if actual == expected {
			return fmt.Sprintf("actual value %q equals %q but was expected to differ", actual, expected)
		}
	case "contains":
		if !strings.Contains(actual, expected) {
			return fmt.Sprintf("actual value %q does not contain %q", actual, expected)
		}
	case "not_contains":
		if strings.Contains(actual, expected) {
			return fmt.Sprintf("actual value %q contains %q but was expected not to", actual, expected)
		}
	default:
		return fmt.Sprintf("unknown operator %q", operator)
	}
	return ""
}
