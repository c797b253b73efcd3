package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/models"
)

// fakeDriver records every call and never touches a real browser
type fakeDriver struct {
	calls         []string
	clickErrs     map[string]error
	present       map[string]bool
	scriptResults map[string]interface{}
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		clickErrs:     map[string]error{},
		present:       map[string]bool{},
		scriptResults: map[string]interface{}{},
	}
}

func (d *fakeDriver) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) Get(url string) error { d.record("get %s", url); return nil }
func (d *fakeDriver) Quit() error          { d.record("quit"); return nil }

func (d *fakeDriver) Click(selector string) error {
	d.record("click %s", selector)
	if err, ok := d.clickErrs[selector]; ok {
		return err
	}
	return nil
}

func (d *fakeDriver) TypeText(selector, text string) error {
	d.record("type %s=%s", selector, text)
	return nil
}

func (d *fakeDriver) IsElementPresent(selector string) (bool, error) {
	d.record("present? %s", selector)
	return d.present[selector], nil
}

func (d *fakeDriver) WaitForElement(selector string, timeout time.Duration) error {
	d.record("waitfor %s", selector)
	return nil
}

func (d *fakeDriver) Screenshot(path string) error { d.record("screenshot %s", path); return nil }

func (d *fakeDriver) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	d.record("script %s", script)
	return d.scriptResults[script], nil
}

func (d *fakeDriver) CurrentURL() (string, error)    { return "about:blank", nil }
func (d *fakeDriver) SwitchToFrame(ref string) error { d.record("frame %s", ref); return nil }
func (d *fakeDriver) SwitchToDefaultContent() error  { d.record("frame default"); return nil }
func (d *fakeDriver) AcceptAlert() error             { d.record("alert accept"); return nil }
func (d *fakeDriver) DismissAlert() error            { d.record("alert dismiss"); return nil }
func (d *fakeDriver) AlertText() (string, error)     { return "", nil }
func (d *fakeDriver) Type() string                   { return "fake" }

// fakeTemplates is an in-memory template storage
type fakeTemplates struct {
	data map[string]string
}

func (f *fakeTemplates) SaveTemplate(ctx context.Context, name, actionsData string) error {
	f.data[name] = actionsData
	return nil
}

func (f *fakeTemplates) LoadTemplate(ctx context.Context, name string) (*models.Template, error) {
	payload, ok := f.data[name]
	if !ok {
		return nil, nil
	}
	return &models.Template{Name: name, ActionsData: payload}, nil
}

func (f *fakeTemplates) DeleteTemplate(ctx context.Context, name string) (bool, error) {
	_, ok := f.data[name]
	delete(f.data, name)
	return ok, nil
}

func (f *fakeTemplates) ListTemplates(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.data))
	for name := range f.data {
		names = append(names, name)
	}
	return names, nil
}

// fakeResolver resolves usernames and refuses passwords, matching the real
// credential service
type fakeResolver struct {
	usernames map[string]string
}

func (f *fakeResolver) ResolveForAction(ctx context.Context, name, field string) (string, error) {
	username, ok := f.usernames[name]
	if !ok {
		return "", &common.CredentialError{Name: name, Reason: "not found"}
	}
	if field == "password" {
		return "", &common.CredentialError{Name: name, Reason: "password fields cannot be resolved: only the hash is stored"}
	}
	return username, nil
}

func newTestInterpreter(t *testing.T, driver *fakeDriver, opts ...Option) (*Interpreter, *fakeTemplates) {
	t.Helper()
	templates := &fakeTemplates{data: map[string]string{}}
	resolver := &fakeResolver{usernames: map[string]string{"gmail": "bob@example.com"}}
	it := NewInterpreter(driver, resolver, templates, arbor.NewLogger(), opts...)
	return it, templates
}

func TestRun_StraightLineSuccess(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{
		{Type: models.ActionTypeNavigate, Name: "open", URL: "https://example.com"},
		{Type: models.ActionTypeClick, Name: "login", Selector: "#login"},
		{Type: models.ActionTypeType, Name: "user", Selector: "#user", ValueType: models.ValueTypeText, ValueKey: "bob"},
		{Type: models.ActionTypeScreenshot, Name: "snap", FilePath: "out.png"},
	}

	log := it.Run(context.Background(), actions, "smoke")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Empty(t, log.ErrorMessage)
	require.Len(t, log.ActionResults, 4)
	for _, result := range log.ActionResults {
		assert.Equal(t, models.ActionStatusSuccess, result.Status)
	}
	assert.Equal(t, []string{
		"get https://example.com",
		"click #login",
		"type #user=bob",
		"screenshot out.png",
	}, driver.calls)
}

func TestRun_FailureStopsExecution(t *testing.T) {
	driver := newFakeDriver()
	driver.clickErrs["#broken"] = &common.DriverError{Op: "click #broken", Cause: fmt.Errorf("no such element")}
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{
		{Type: models.ActionTypeNavigate, Name: "open", URL: "https://example.com"},
		{Type: models.ActionTypeClick, Name: "bad", Selector: "#broken"},
		{Type: models.ActionTypeClick, Name: "never", Selector: "#after"},
	}

	log := it.Run(context.Background(), actions, "failing")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "no such element")
	require.Len(t, log.ActionResults, 2)
	assert.Equal(t, models.ActionStatusSuccess, log.ActionResults[0].Status)
	assert.Equal(t, models.ActionStatusFailed, log.ActionResults[1].Status)
	assert.NotContains(t, driver.calls, "click #after")
}

func TestRun_ConditionalBranches(t *testing.T) {
	driver := newFakeDriver()
	driver.present["#banner"] = true
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{{
		Type:          models.ActionTypeConditional,
		Name:          "check",
		ConditionType: models.ConditionElementPresent,
		Selector:      "#banner",
		TrueBranch:    []*models.Action{{Type: models.ActionTypeClick, Name: "dismiss", Selector: "#close"}},
		FalseBranch:   []*models.Action{{Type: models.ActionTypeClick, Name: "other", Selector: "#other"}},
	}}

	log := it.Run(context.Background(), actions, "cond")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Contains(t, driver.calls, "click #close")
	assert.NotContains(t, driver.calls, "click #other")
}

func TestRun_CountLoopInjectsVariables(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{{
		Type:     models.ActionTypeLoop,
		Name:     "pages",
		LoopType: models.LoopTypeCount,
		Count:    3,
		LoopActions: []*models.Action{
			{Type: models.ActionTypeNavigate, Name: "page", URL: "https://example.com/page/${loop_iteration}"},
		},
	}}

	log := it.Run(context.Background(), actions, "count")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Equal(t, []string{
		"get https://example.com/page/1",
		"get https://example.com/page/2",
		"get https://example.com/page/3",
	}, driver.calls)
}

func TestRun_ForEachLoopBindsItems(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver,
		WithVariables(map[string]interface{}{"sites": []interface{}{"alpha", "beta"}}))

	actions := []*models.Action{{
		Type:             models.ActionTypeLoop,
		Name:             "visit",
		LoopType:         models.LoopTypeForEach,
		ListVariableName: "sites",
		LoopActions: []*models.Action{
			{Type: models.ActionTypeNavigate, Name: "open", URL: "https://${loop_item}.example.com"},
		},
	}}

	log := it.Run(context.Background(), actions, "foreach")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Equal(t, []string{
		"get https://alpha.example.com",
		"get https://beta.example.com",
	}, driver.calls)
}

func TestRun_ForEachUndefinedVariableFails(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{{
		Type:             models.ActionTypeLoop,
		Name:             "visit",
		LoopType:         models.LoopTypeForEach,
		ListVariableName: "missing",
		LoopActions:      []*models.Action{{Type: models.ActionTypeClick, Name: "c", Selector: "#x"}},
	}}

	log := it.Run(context.Background(), actions, "foreach")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "missing")
	assert.Empty(t, driver.calls)
}

func TestRun_WhileLoopCapFailsRun(t *testing.T) {
	driver := newFakeDriver()
	driver.present["#spinner"] = true // never goes away
	it, _ := newTestInterpreter(t, driver, WithMaxLoopIterations(5))

	actions := []*models.Action{{
		Type:          models.ActionTypeLoop,
		Name:          "spin",
		LoopType:      models.LoopTypeWhile,
		ConditionType: models.ConditionElementPresent,
		Selector:      "#spinner",
		LoopActions: []*models.Action{
			{Type: models.ActionTypeClick, Name: "retry", Selector: "#retry"},
		},
	}}

	log := it.Run(context.Background(), actions, "while")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "maximum iterations (5)")
	require.Len(t, log.ActionResults, 5)
}

func TestRun_TryCatchRecovers(t *testing.T) {
	driver := newFakeDriver()
	driver.clickErrs["#flaky"] = &common.DriverError{Op: "click #flaky", Cause: fmt.Errorf("timeout")}
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{
		{
			Type: models.ActionTypeErrorHandling,
			Name: "guard",
			TryActions: []*models.Action{
				{Type: models.ActionTypeClick, Name: "try_click", Selector: "#flaky"},
			},
			CatchActions: []*models.Action{
				{Type: models.ActionTypeScreenshot, Name: "evidence", FilePath: "fail_${try_block_error_type}.png"},
			},
		},
		{Type: models.ActionTypeClick, Name: "after", Selector: "#after"},
	}

	log := it.Run(context.Background(), actions, "trycatch")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Contains(t, driver.calls, "screenshot fail_DriverError.png")
	assert.Contains(t, driver.calls, "click #after")
}

func TestRun_EmptyCatchPropagates(t *testing.T) {
	driver := newFakeDriver()
	driver.clickErrs["#flaky"] = &common.DriverError{Op: "click #flaky", Cause: fmt.Errorf("timeout")}
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{{
		Type: models.ActionTypeErrorHandling,
		Name: "guard",
		TryActions: []*models.Action{
			{Type: models.ActionTypeClick, Name: "try_click", Selector: "#flaky"},
		},
	}}

	log := it.Run(context.Background(), actions, "trycatch")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "timeout")
}

func TestRun_CatchFailureCarriesBothErrors(t *testing.T) {
	driver := newFakeDriver()
	driver.clickErrs["#flaky"] = &common.DriverError{Op: "click #flaky", Cause: fmt.Errorf("timeout")}
	driver.clickErrs["#recover"] = &common.DriverError{Op: "click #recover", Cause: fmt.Errorf("also gone")}
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{{
		Type: models.ActionTypeErrorHandling,
		Name: "guard",
		TryActions: []*models.Action{
			{Type: models.ActionTypeClick, Name: "try_click", Selector: "#flaky"},
		},
		CatchActions: []*models.Action{
			{Type: models.ActionTypeClick, Name: "recover", Selector: "#recover"},
		},
	}}

	log := it.Run(context.Background(), actions, "trycatch")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "catch block failed")
	assert.Contains(t, log.ErrorMessage, "original error")
}

func TestRun_CancellationStopsRun(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	actions := []*models.Action{
		{Type: models.ActionTypeNavigate, Name: "open", URL: "https://example.com"},
		{Type: models.ActionTypeWait, Name: "long_wait", DurationSeconds: 10},
		{Type: models.ActionTypeClick, Name: "never", Selector: "#after"},
	}

	start := time.Now()
	log := it.Run(ctx, actions, "cancelled")

	assert.Equal(t, models.StatusStopped, log.FinalStatus)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, log.ActionResults, 1)
	assert.NotContains(t, driver.calls, "click #after")
}

func TestRun_CancellationIsNotCaught(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	actions := []*models.Action{{
		Type: models.ActionTypeErrorHandling,
		Name: "guard",
		TryActions: []*models.Action{
			{Type: models.ActionTypeClick, Name: "c", Selector: "#x"},
		},
		CatchActions: []*models.Action{
			{Type: models.ActionTypeClick, Name: "handler", Selector: "#handler"},
		},
	}}

	log := it.Run(ctx, actions, "cancelled")

	assert.Equal(t, models.StatusStopped, log.FinalStatus)
	assert.Empty(t, driver.calls)
}

func TestRun_TemplateExpansion(t *testing.T) {
	driver := newFakeDriver()
	it, templates := newTestInterpreter(t, driver)

	templates.data["login"] = `[
		{"type": "click", "name": "open_form", "selector": "#login"},
		{"type": "type", "name": "user", "selector": "#user", "value_type": "credential", "value_key": "gmail.username"}
	]`

	actions := []*models.Action{
		{Type: models.ActionTypeTemplate, Name: "do_login", TemplateName: "login"},
		{Type: models.ActionTypeClick, Name: "after", Selector: "#after"},
	}

	log := it.Run(context.Background(), actions, "templated")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Equal(t, []string{
		"click #login",
		"type #user=bob@example.com",
		"click #after",
	}, driver.calls)
}

func TestRun_TemplateNotFoundFails(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{
		{Type: models.ActionTypeTemplate, Name: "use", TemplateName: "missing"},
	}

	log := it.Run(context.Background(), actions, "templated")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "not found")
	assert.Empty(t, driver.calls)
}

func TestRun_TemplateCycleFailsBeforeExecution(t *testing.T) {
	driver := newFakeDriver()
	it, templates := newTestInterpreter(t, driver)

	templates.data["a"] = `[
		{"type": "click", "name": "a_click", "selector": "#a"},
		{"type": "template", "name": "use_b", "template_name": "b"}
	]`
	templates.data["b"] = `[
		{"type": "template", "name": "use_a", "template_name": "a"}
	]`

	actions := []*models.Action{
		{Type: models.ActionTypeTemplate, Name: "start", TemplateName: "a"},
	}

	log := it.Run(context.Background(), actions, "cyclic")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "cycle")
	// Nothing from the cycle executes, not even actions before the back-reference
	assert.Empty(t, driver.calls)
	assert.Empty(t, log.ActionResults)
}

func TestRun_TemplateCycleThroughBranchFails(t *testing.T) {
	driver := newFakeDriver()
	driver.present["#always"] = true
	it, templates := newTestInterpreter(t, driver)

	// The self-reference hides inside a conditional branch whose condition
	// is always true; expansion must reject it before anything executes
	templates.data["retry"] = `[
		{"type": "conditional", "name": "check", "condition_type": "element_present", "selector": "#always",
			"true_branch": [{"type": "template", "name": "again", "template_name": "retry"}],
			"false_branch": []}
	]`

	actions := []*models.Action{
		{Type: models.ActionTypeTemplate, Name: "start", TemplateName: "retry"},
	}

	log := it.Run(context.Background(), actions, "cyclic_branch")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "cycle")
	assert.Empty(t, driver.calls)
	assert.Empty(t, log.ActionResults)
}

func TestRun_TemplateInLoopBodyExpandsOnce(t *testing.T) {
	driver := newFakeDriver()
	it, templates := newTestInterpreter(t, driver)

	templates.data["step"] = `[
		{"type": "loop", "name": "twice", "loop_type": "count", "count": 2,
			"loop_actions": [{"type": "template", "name": "poke", "template_name": "poke"}]}
	]`
	templates.data["poke"] = `[
		{"type": "click", "name": "poke_click", "selector": "#poke"}
	]`

	actions := []*models.Action{
		{Type: models.ActionTypeTemplate, Name: "start", TemplateName: "step"},
	}

	log := it.Run(context.Background(), actions, "loop_template")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Equal(t, []string{"click #poke", "click #poke"}, driver.calls)
}

func TestRun_CredentialPasswordRefused(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{
		{Type: models.ActionTypeType, Name: "pw", Selector: "#pass", ValueType: models.ValueTypeCredential, ValueKey: "gmail.password"},
	}

	log := it.Run(context.Background(), actions, "cred")

	assert.Equal(t, models.StatusFailed, log.FinalStatus)
	assert.Contains(t, log.ErrorMessage, "password")
	assert.Empty(t, driver.calls)
}

func TestRun_ProgressCallback(t *testing.T) {
	driver := newFakeDriver()
	var seen []models.ActionResult
	it, _ := newTestInterpreter(t, driver, WithProgress(func(result models.ActionResult) {
		seen = append(seen, result)
	}))

	actions := []*models.Action{
		{Type: models.ActionTypeNavigate, Name: "open", URL: "https://example.com"},
		{Type: models.ActionTypeClick, Name: "go", Selector: "#go"},
	}

	log := it.Run(context.Background(), actions, "progress")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	require.Len(t, seen, 2)
	assert.Equal(t, "open", seen[0].ActionName)
	assert.Equal(t, "go", seen[1].ActionName)
}

func TestRun_VariableEqualsCondition(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver, WithVariables(map[string]interface{}{"env": "prod"}))

	actions := []*models.Action{{
		Type:          models.ActionTypeConditional,
		Name:          "env_check",
		ConditionType: models.ConditionVariableEquals,
		VariableName:  "env",
		ExpectedValue: "prod",
		TrueBranch:    []*models.Action{{Type: models.ActionTypeClick, Name: "prod_path", Selector: "#prod"}},
		FalseBranch:   []*models.Action{{Type: models.ActionTypeClick, Name: "dev_path", Selector: "#dev"}},
	}}

	log := it.Run(context.Background(), actions, "vareq")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Contains(t, driver.calls, "click #prod")
}

func TestSubstitute_UnknownReferenceLeftIntact(t *testing.T) {
	driver := newFakeDriver()
	it, _ := newTestInterpreter(t, driver)

	actions := []*models.Action{
		{Type: models.ActionTypeNavigate, Name: "open", URL: "https://example.com/${unknown}"},
	}

	log := it.Run(context.Background(), actions, "subst")

	assert.Equal(t, models.StatusSuccess, log.FinalStatus)
	assert.Equal(t, []string{"get https://example.com/${unknown}"}, driver.calls)
}
