package core

import (
	"testing"

	"apiwatch/models"
)

func rule(key, expected, operator string) models.ValidationRule {
	return models.ValidationRule{Key: key, ExpectedValue: expected, Operator: operator, Enabled: true}
}

func TestValidateResponseNoRules(t *testing.T) {
	if !ValidateResponse(`{"code": 1}`, nil) {
		t.Error("no rules must pass")
	}
	if !ValidateResponse("not json at all", nil) {
		t.Error("no rules must pass even for non-JSON bodies")
	}

	disabled := []models.ValidationRule{
		{Key: "code", ExpectedValue: "0", Operator: "equals", Enabled: false},
	}
	if !ValidateResponse("not json at all", disabled) {
		t.Error("disabled rules must not participate")
	}
}

func TestValidateResponseUnparsableBody(t *testing.T) {
	rules := []models.ValidationRule{rule("code", "0", "equals")}
	if ValidateResponse("<html>502 Bad Gateway</html>", rules) {
		t.Error("non-JSON body with enabled rules must fail")
	}
	if ValidateResponse("", rules) {
		t.Error("empty body with enabled rules must fail")
	}
}

func TestValidateResponseOperators(t *testing.T) {
	body := `{"code": 0, "message": "operation succeeded", "data": {"userId": 42}}`

	tests := []struct {
		name string
		rule models.ValidationRule
		want bool
	}{
		{"equals numeric zero against string", rule("code", "0", "equals"), true},
		{"equals mismatch", rule("code", "1", "equals"), false},
		{"not_equals pass", rule("code", "1", "not_equals"), true},
		{"not_equals fail", rule("code", "0", "not_equals"), false},
		{"contains pass", rule("message", "succeeded", "contains"), true},
		{"contains fail", rule("message", "failed", "contains"), false},
		{"not_contains pass", rule("message", "failed", "not_contains"), true},
		{"not_contains fail", rule("message", "succeeded", "not_contains"), false},
		{"nested path", rule("data.userId", "42", "equals"), true},
		{"absent field coerces to empty string", rule("missing", "", "equals"), true},
		{"absent field not_equals nonempty", rule("missing", "x", "not_equals"), true},
		{"unknown operator fails", rule("code", "0", "matches"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateResponse(body, []models.ValidationRule{tt.rule})
			if got != tt.want {
				t.Errorf("ValidateResponse with rule %+v = %v, want %v", tt.rule, got, tt.want)
			}
		})
	}
}

func TestValidateResponseNullField(t *testing.T) {
	body := `{"value": null}`
	if !ValidateResponse(body, []models.ValidationRule{rule("value", "", "equals")}) {
		t.Error("null field must coerce to empty string")
	}
	if ValidateResponse(body, []models.ValidationRule{rule("value", "null", "equals")}) {
		t.Error("null field must not stringify to the word 'null'")
	}
}

func TestValidateResponseShortCircuits(t *testing.T) {
	body := `{"code": 1, "message": "ok"}`
	rules := []models.ValidationRule{
		rule("code", "0", "equals"),
		rule("message", "ok", "equals"),
	}

	outcome := EvaluateResponse(body, rules)
	if outcome.Valid {
		t.Fatal("expected validation failure")
	}
	if outcome.FailedRule == nil || outcome.FailedRule.Key != "code" {
		t.Errorf("expected first failing rule to be reported, got %+v", outcome.FailedRule)
	}
	if outcome.Reason == "" {
		t.Error("expected a diagnostic reason for the failure")
	}
}

func TestValidateResponseIdempotent(t *testing.T) {
	body := `{"code": 0}`
	rules := []models.ValidationRule{rule("code", "0", "equals")}
	first := ValidateResponse(body, rules)
	second := ValidateResponse(body, rules)
	if first != second {
		t.Error("validation of the same body and rules must be deterministic")
	}
}
