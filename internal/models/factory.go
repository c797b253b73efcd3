package models

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ternarybob/arachne/internal/common"
)

// ActionFactory constructs validated actions from their serialized map form.
// Nested action lists are created recursively depth-first; a failure at any
// depth propagates up with field[index] path context.
type ActionFactory struct{}

// NewActionFactory creates a new action factory
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create builds an action from a serialized map and validates it
func (f *ActionFactory) Create(data map[string]interface{}) (*Action, error) {
	action, err := f.createAt(data, "")
	if err != nil {
		return nil, err
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// CreateList builds an ordered action list from serialized items and
// validates every action
func (f *ActionFactory) CreateList(items []interface{}) ([]*Action, error) {
	actions, err := f.createListAt(items, "")
	if err != nil {
		return nil, err
	}
	for i, action := range actions {
		if err := action.Validate(); err != nil {
			return nil, fmt.Errorf("action [%d]: %w", i, err)
		}
	}
	return actions, nil
}

// CreateFromJSON decodes a JSON array of serialized actions
func (f *ActionFactory) CreateFromJSON(data []byte) ([]*Action, error) {
	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &common.SerializationError{What: "action list", Cause: err}
	}
	return f.CreateList(items)
}

func (f *ActionFactory) createAt(data map[string]interface{}, path string) (*Action, error) {
	rawType, _ := data["type"].(string)
	name, _ := data["name"].(string)

	actionType := ActionType(rawType)
	if !IsValidActionType(actionType) {
		return nil, common.NewValidationError(joinPath(path, "type"), "unknown action type %q (action %q)", rawType, name)
	}

	action := &Action{
		Type: actionType,
		Name: name,
	}

	switch actionType {
	case ActionTypeNavigate:
		action.URL = stringField(data, "url")

	case ActionTypeClick:
		action.Selector = stringField(data, "selector")

	case ActionTypeType:
		action.Selector = stringField(data, "selector")
		action.ValueType = ValueType(stringField(data, "value_type"))
		action.ValueKey = stringField(data, "value_key")

	case ActionTypeWait:
		duration, err := floatField(data, "duration_seconds")
		if err != nil {
			return nil, common.NewValidationError(joinPath(path, "duration_seconds"), "wait action %q: %v", name, err)
		}
		action.DurationSeconds = duration

	case ActionTypeScreenshot:
		action.FilePath = stringField(data, "file_path")

	case ActionTypeConditional:
		f.readCondition(data, action)
		var err error
		if action.TrueBranch, err = f.nestedList(data, "true_branch", path); err != nil {
			return nil, err
		}
		if action.FalseBranch, err = f.nestedList(data, "false_branch", path); err != nil {
			return nil, err
		}

	case ActionTypeLoop:
		action.LoopType = LoopType(stringField(data, "loop_type"))
		switch action.LoopType {
		case LoopTypeCount:
			count, err := intField(data, "count")
			if err != nil {
				return nil, common.NewValidationError(joinPath(path, "count"), "loop action %q: %v", name, err)
			}
			action.Count = count
		case LoopTypeForEach:
			action.ListVariableName = stringField(data, "list_variable_name")
		case LoopTypeWhile:
			f.readCondition(data, action)
		}
		var err error
		if action.LoopActions, err = f.nestedList(data, "loop_actions", path); err != nil {
			return nil, err
		}

	case ActionTypeErrorHandling:
		var err error
		if action.TryActions, err = f.nestedList(data, "try_actions", path); err != nil {
			return nil, err
		}
		if action.CatchActions, err = f.nestedList(data, "catch_actions", path); err != nil {
			return nil, err
		}

	case ActionTypeTemplate:
		action.TemplateName = stringField(data, "template_name")
	}

	return action, nil
}

func (f *ActionFactory) readCondition(data map[string]interface{}, action *Action) {
	action.ConditionType = ConditionType(stringField(data, "condition_type"))
	switch action.ConditionType {
	case ConditionElementPresent, ConditionElementNotPresent:
		action.Selector = stringField(data, "selector")
	case ConditionVariableEquals:
		action.VariableName = stringField(data, "variable_name")
		action.ExpectedValue = data["expected_value"]
	case ConditionJavascriptEval:
		action.Script = stringField(data, "script")
	}
}

func (f *ActionFactory) nestedList(data map[string]interface{}, field, path string) ([]*Action, error) {
	raw, ok := data[field]
	if !ok || raw == nil {
		return []*Action{}, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, common.NewValidationError(joinPath(path, field), "must be a list of actions")
	}
	return f.createListAt(items, joinPath(path, field))
}

func (f *ActionFactory) createListAt(items []interface{}, path string) ([]*Action, error) {
	actions := make([]*Action, 0, len(items))
	for i, item := range items {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, common.NewValidationError(elemPath, "action must be an object")
		}
		action, err := f.createAt(m, elemPath)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func floatField(data map[string]interface{}, key string) (float64, error) {
	raw, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, raw)
	}
}

func intField(data map[string]interface{}, key string) (int, error) {
	value, err := floatField(data, key)
	if err != nil {
		return 0, err
	}
	if value != math.Trunc(value) {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, value)
	}
	return int(value), nil
}

// SerializeActions marshals an action list to its JSON array form
func SerializeActions(actions []*Action) ([]byte, error) {
	maps := actionListToMaps(actions)
	data, err := json.Marshal(maps)
	if err != nil {
		return nil, &common.SerializationError{What: "action list", Cause: err}
	}
	return data, nil
}
