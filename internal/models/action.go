package models

import (
	"fmt"
	"math"
	"strings"

	"github.com/ternarybob/arachne/internal/common"
)

// ActionType discriminates the action variants
type ActionType string

// ActionType constants
const (
	ActionTypeNavigate      ActionType = "navigate"
	ActionTypeClick         ActionType = "click"
	ActionTypeType          ActionType = "type"
	ActionTypeWait          ActionType = "wait"
	ActionTypeScreenshot    ActionType = "screenshot"
	ActionTypeConditional   ActionType = "conditional"
	ActionTypeLoop          ActionType = "loop"
	ActionTypeErrorHandling ActionType = "error_handling"
	ActionTypeTemplate      ActionType = "template"
)

// IsValidActionType checks if a given ActionType is one of the valid constants
func IsValidActionType(t ActionType) bool {
	switch t {
	case ActionTypeNavigate, ActionTypeClick, ActionTypeType, ActionTypeWait,
		ActionTypeScreenshot, ActionTypeConditional, ActionTypeLoop,
		ActionTypeErrorHandling, ActionTypeTemplate:
		return true
	default:
		return false
	}
}

// ValueType selects the source of a typed value
type ValueType string

// ValueType constants
const (
	ValueTypeText       ValueType = "text"
	ValueTypeCredential ValueType = "credential"
)

// LoopType selects the iteration strategy of a loop action
type LoopType string

// LoopType constants
const (
	LoopTypeCount   LoopType = "count"
	LoopTypeForEach LoopType = "for_each"
	LoopTypeWhile   LoopType = "while"
)

// ConditionType selects how a conditional or while loop evaluates
type ConditionType string

// ConditionType constants
const (
	ConditionElementPresent    ConditionType = "element_present"
	ConditionElementNotPresent ConditionType = "element_not_present"
	ConditionVariableEquals    ConditionType = "variable_equals"
	ConditionJavascriptEval    ConditionType = "javascript_eval"
)

// Action is a single executable workflow step. Variants share one struct with
// a Type discriminator; only the fields of the active variant are populated.
// Nested action lists are owned by the containing action.
type Action struct {
	Type ActionType `json:"type"`
	Name string     `json:"name"`

	// navigate
	URL string `json:"url,omitempty"`

	// click, type, element conditions
	Selector string `json:"selector,omitempty"`

	// type
	ValueType ValueType `json:"value_type,omitempty"`
	ValueKey  string    `json:"value_key,omitempty"`

	// wait
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	// screenshot
	FilePath string `json:"file_path,omitempty"`

	// conditional and while loops
	ConditionType ConditionType `json:"condition_type,omitempty"`
	VariableName  string        `json:"variable_name,omitempty"`
	ExpectedValue interface{}   `json:"expected_value,omitempty"`
	Script        string        `json:"script,omitempty"`
	TrueBranch    []*Action     `json:"true_branch,omitempty"`
	FalseBranch   []*Action     `json:"false_branch,omitempty"`

	// loop
	LoopType         LoopType  `json:"loop_type,omitempty"`
	Count            int       `json:"count,omitempty"`
	ListVariableName string    `json:"list_variable_name,omitempty"`
	LoopActions      []*Action `json:"loop_actions,omitempty"`

	// error handling
	TryActions   []*Action `json:"try_actions,omitempty"`
	CatchActions []*Action `json:"catch_actions,omitempty"`

	// template
	TemplateName string `json:"template_name,omitempty"`
}

// Validate checks the action and all nested actions against the rules of its
// variant. Errors carry the field path of the offending action.
func (a *Action) Validate() error {
	return a.validate("")
}

func (a *Action) validate(path string) error {
	if strings.TrimSpace(a.Name) == "" {
		return common.NewValidationError(joinPath(path, "name"), "action name is required")
	}
	if !IsValidActionType(a.Type) {
		return common.NewValidationError(joinPath(path, "type"), "unknown action type %q for action %q", a.Type, a.Name)
	}

	switch a.Type {
	case ActionTypeNavigate:
		if a.URL == "" {
			return common.NewValidationError(joinPath(path, "url"), "navigate action %q requires a url", a.Name)
		}

	case ActionTypeClick:
		if a.Selector == "" {
			return common.NewValidationError(joinPath(path, "selector"), "click action %q requires a selector", a.Name)
		}

	case ActionTypeType:
		if a.Selector == "" {
			return common.NewValidationError(joinPath(path, "selector"), "type action %q requires a selector", a.Name)
		}
		if a.ValueType != ValueTypeText && a.ValueType != ValueTypeCredential {
			return common.NewValidationError(joinPath(path, "value_type"), "type action %q value_type must be text or credential, got %q", a.Name, a.ValueType)
		}
		if a.ValueKey == "" {
			return common.NewValidationError(joinPath(path, "value_key"), "type action %q requires a value_key", a.Name)
		}
		if a.ValueType == ValueTypeCredential {
			if _, _, err := SplitCredentialKey(a.ValueKey); err != nil {
				return common.NewValidationError(joinPath(path, "value_key"), "type action %q: %v", a.Name, err)
			}
		}

	case ActionTypeWait:
		if math.IsNaN(a.DurationSeconds) || math.IsInf(a.DurationSeconds, 0) || a.DurationSeconds <= 0 {
			return common.NewValidationError(joinPath(path, "duration_seconds"), "wait action %q requires a finite duration greater than zero", a.Name)
		}

	case ActionTypeScreenshot:
		if a.FilePath == "" {
			return common.NewValidationError(joinPath(path, "file_path"), "screenshot action %q requires a file_path", a.Name)
		}

	case ActionTypeConditional:
		if err := a.validateCondition(path); err != nil {
			return err
		}
		if err := validateActionList(a.TrueBranch, joinPath(path, "true_branch")); err != nil {
			return err
		}
		if err := validateActionList(a.FalseBranch, joinPath(path, "false_branch")); err != nil {
			return err
		}

	case ActionTypeLoop:
		switch a.LoopType {
		case LoopTypeCount:
			if a.Count <= 0 {
				return common.NewValidationError(joinPath(path, "count"), "loop action %q requires count greater than zero", a.Name)
			}
		case LoopTypeForEach:
			if a.ListVariableName == "" {
				return common.NewValidationError(joinPath(path, "list_variable_name"), "loop action %q requires a list_variable_name", a.Name)
			}
		case LoopTypeWhile:
			if err := a.validateCondition(path); err != nil {
				return err
			}
		default:
			return common.NewValidationError(joinPath(path, "loop_type"), "loop action %q loop_type must be count, for_each or while, got %q", a.Name, a.LoopType)
		}
		if err := validateActionList(a.LoopActions, joinPath(path, "loop_actions")); err != nil {
			return err
		}

	case ActionTypeErrorHandling:
		if err := validateActionList(a.TryActions, joinPath(path, "try_actions")); err != nil {
			return err
		}
		if err := validateActionList(a.CatchActions, joinPath(path, "catch_actions")); err != nil {
			return err
		}

	case ActionTypeTemplate:
		if a.TemplateName == "" {
			return common.NewValidationError(joinPath(path, "template_name"), "template action %q requires a template_name", a.Name)
		}
	}

	return nil
}

// validateCondition checks the condition fields shared by conditionals and
// while loops
func (a *Action) validateCondition(path string) error {
	switch a.ConditionType {
	case ConditionElementPresent, ConditionElementNotPresent:
		if a.Selector == "" {
			return common.NewValidationError(joinPath(path, "selector"), "condition %s on action %q requires a selector", a.ConditionType, a.Name)
		}
	case ConditionVariableEquals:
		if a.VariableName == "" {
			return common.NewValidationError(joinPath(path, "variable_name"), "condition variable_equals on action %q requires a variable_name", a.Name)
		}
	case ConditionJavascriptEval:
		if strings.TrimSpace(a.Script) == "" {
			return common.NewValidationError(joinPath(path, "script"), "condition javascript_eval on action %q requires a script", a.Name)
		}
	default:
		return common.NewValidationError(joinPath(path, "condition_type"), "action %q has invalid condition_type %q", a.Name, a.ConditionType)
	}
	return nil
}

func validateActionList(actions []*Action, path string) error {
	for i, action := range actions {
		if action == nil {
			return common.NewValidationError(fmt.Sprintf("%s[%d]", path, i), "nil action")
		}
		if err := action.validate(fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// SplitCredentialKey splits a "name.field" credential key. Field must be
// username or password.
func SplitCredentialKey(key string) (name, field string, err error) {
	idx := strings.LastIndex(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("credential value_key %q must be of the form name.username or name.password", key)
	}
	name, field = key[:idx], key[idx+1:]
	if field != "username" && field != "password" {
		return "", "", fmt.Errorf("credential value_key %q references unknown field %q", key, field)
	}
	return name, field, nil
}

// Clone returns a deep copy of the action, including all nested branches
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	dup := *a
	dup.TrueBranch = cloneActionList(a.TrueBranch)
	dup.FalseBranch = cloneActionList(a.FalseBranch)
	dup.LoopActions = cloneActionList(a.LoopActions)
	dup.TryActions = cloneActionList(a.TryActions)
	dup.CatchActions = cloneActionList(a.CatchActions)
	return &dup
}

func cloneActionList(actions []*Action) []*Action {
	if actions == nil {
		return nil
	}
	out := make([]*Action, len(actions))
	for i, action := range actions {
		out[i] = action.Clone()
	}
	return out
}

// IsComposite reports whether the action owns nested action lists
func (a *Action) IsComposite() bool {
	switch a.Type {
	case ActionTypeConditional, ActionTypeLoop, ActionTypeErrorHandling:
		return true
	default:
		return false
	}
}

// ToMap serializes the action to its map form. Only the fields of the active
// variant are emitted; nested branches re-serialize recursively.
func (a *Action) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"type": string(a.Type),
		"name": strings.TrimSpace(a.Name),
	}

	switch a.Type {
	case ActionTypeNavigate:
		m["url"] = a.URL
	case ActionTypeClick:
		m["selector"] = a.Selector
	case ActionTypeType:
		m["selector"] = a.Selector
		m["value_type"] = string(a.ValueType)
		m["value_key"] = a.ValueKey
	case ActionTypeWait:
		m["duration_seconds"] = a.DurationSeconds
	case ActionTypeScreenshot:
		m["file_path"] = a.FilePath
	case ActionTypeConditional:
		a.conditionToMap(m)
		m["true_branch"] = actionListToMaps(a.TrueBranch)
		m["false_branch"] = actionListToMaps(a.FalseBranch)
	case ActionTypeLoop:
		m["loop_type"] = string(a.LoopType)
		switch a.LoopType {
		case LoopTypeCount:
			m["count"] = a.Count
		case LoopTypeForEach:
			m["list_variable_name"] = a.ListVariableName
		case LoopTypeWhile:
			a.conditionToMap(m)
		}
		m["loop_actions"] = actionListToMaps(a.LoopActions)
	case ActionTypeErrorHandling:
		m["try_actions"] = actionListToMaps(a.TryActions)
		m["catch_actions"] = actionListToMaps(a.CatchActions)
	case ActionTypeTemplate:
		m["template_name"] = a.TemplateName
	}

	return m
}

func (a *Action) conditionToMap(m map[string]interface{}) {
	m["condition_type"] = string(a.ConditionType)
	switch a.ConditionType {
	case ConditionElementPresent, ConditionElementNotPresent:
		m["selector"] = a.Selector
	case ConditionVariableEquals:
		m["variable_name"] = a.VariableName
		if a.ExpectedValue != nil {
			m["expected_value"] = a.ExpectedValue
		}
	case ConditionJavascriptEval:
		m["script"] = a.Script
	}
}

func actionListToMaps(actions []*Action) []interface{} {
	out := make([]interface{}, 0, len(actions))
	for _, action := range actions {
		out = append(out, action.ToMap())
	}
	return out
}
