package engine

import (
	"fmt"

	"github.com/ternarybob/arachne/internal/models"
)

// evaluateCondition resolves the condition carried by a conditional or while
// loop action
func (it *Interpreter) evaluateCondition(action *models.Action) (bool, error) {
	switch action.ConditionType {
	case models.ConditionElementPresent:
		return it.driver.IsElementPresent(it.substitute(action.Selector))

	case models.ConditionElementNotPresent:
		present, err := it.driver.IsElementPresent(it.substitute(action.Selector))
		if err != nil {
			return false, err
		}
		return !present, nil

	case models.ConditionVariableEquals:
		actual, ok := it.vars.Lookup(action.VariableName)
		if !ok {
			actual = nil
		}
		expected := action.ExpectedValue
		if actual == nil && expected == nil {
			return true, nil
		}
		if actual == nil || expected == nil {
			return false, nil
		}
		return stringify(actual) == stringify(expected), nil

	case models.ConditionJavascriptEval:
		value, err := it.driver.ExecuteScript(action.Script)
		if err != nil {
			return false, err
		}
		return truthy(value), nil

	default:
		return false, fmt.Errorf("unknown condition type %q", action.ConditionType)
	}
}

// truthy applies standard truthiness: nil, false, zero numbers and empty
// strings are false
func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

// stringify renders a context value for comparison and substitution
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
