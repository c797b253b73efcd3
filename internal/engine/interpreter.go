package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

// DefaultMaxLoopIterations caps while loops to prevent runaway execution
const DefaultMaxLoopIterations = 1000

// errRunStopped marks cooperative cancellation; it is never caught by
// error-handling blocks.
var errRunStopped = errors.New("stopped by request")

// Interpreter walks an action list and drives a browser. A single run is
// strictly sequential; the interpreter never spawns parallel sub-tasks.
// Run never returns an error: all failures are captured in the returned log.
type Interpreter struct {
	driver            interfaces.BrowserDriver
	credentials       interfaces.CredentialResolver
	templates         interfaces.TemplateStorage
	factory           *models.ActionFactory
	logger            arbor.ILogger
	vars              *Context
	maxLoopIterations int
	onProgress        interfaces.ProgressFunc

	results   []models.ActionResult
	expanding map[string]bool
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithMaxLoopIterations overrides the while-loop iteration cap
func WithMaxLoopIterations(n int) Option {
	return func(it *Interpreter) {
		if n > 0 {
			it.maxLoopIterations = n
		}
	}
}

// WithVariables seeds the run context's root scope
func WithVariables(values map[string]interface{}) Option {
	return func(it *Interpreter) {
		it.vars = NewContextWithValues(values)
	}
}

// WithProgress registers a per-leaf progress callback
func WithProgress(fn interfaces.ProgressFunc) Option {
	return func(it *Interpreter) {
		it.onProgress = fn
	}
}

// NewInterpreter creates an interpreter bound to one driver for one run
func NewInterpreter(driver interfaces.BrowserDriver, credentials interfaces.CredentialResolver, templates interfaces.TemplateStorage, logger arbor.ILogger, opts ...Option) *Interpreter {
	it := &Interpreter{
		driver:            driver,
		credentials:       credentials,
		templates:         templates,
		factory:           models.NewActionFactory(),
		logger:            logger,
		vars:              NewContext(),
		maxLoopIterations: DefaultMaxLoopIterations,
		expanding:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Run executes the action list and returns the execution log. Cancellation
// is cooperative: ctx is polled before each action, loop iteration and
// condition evaluation; in-flight driver calls complete first.
func (it *Interpreter) Run(ctx context.Context, actions []*models.Action, workflowName string) *models.ExecutionLog {
	log := &models.ExecutionLog{
		ID:           common.NewExecutionID(),
		WorkflowName: workflowName,
		StartTime:    time.Now(),
	}

	it.results = it.results[:0]

	err := it.runBlock(ctx, actions)

	log.EndTime = time.Now()
	log.DurationSeconds = log.EndTime.Sub(log.StartTime).Seconds()
	log.ActionResults = append([]models.ActionResult(nil), it.results...)

	switch {
	case err == nil:
		log.FinalStatus = models.StatusSuccess
	case errors.Is(err, errRunStopped):
		log.FinalStatus = models.StatusStopped
		log.ErrorMessage = errRunStopped.Error()
	default:
		log.FinalStatus = models.StatusFailed
		log.ErrorMessage = err.Error()
	}

	it.logger.Info().
		Str("workflow", workflowName).
		Str("status", string(log.FinalStatus)).
		Int("actions", len(log.ActionResults)).
		Msg("Workflow run finished")

	return log
}

// runBlock executes a block of actions in order against a local working
// copy; template nodes are spliced into the copy, leaving the original
// workflow untouched.
func (it *Interpreter) runBlock(ctx context.Context, actions []*models.Action) error {
	work := make([]*models.Action, len(actions))
	copy(work, actions)

	for i := 0; i < len(work); i++ {
		if err := it.checkCancelled(ctx); err != nil {
			return err
		}

		action := work[i]
		if action.Type == models.ActionTypeTemplate {
			expanded, err := it.expandTemplate(ctx, action)
			if err != nil {
				return err
			}
			work = append(work[:i], append(expanded, work[i+1:]...)...)
			i--
			continue
		}

		if err := it.executeAction(ctx, action); err != nil {
			return err
		}
	}

	return nil
}

// expandTemplate loads the template's stored actions and fully expands any
// nested template references depth-first. Re-entry of a template already
// being expanded fails the run.
func (it *Interpreter) expandTemplate(ctx context.Context, action *models.Action) ([]*models.Action, error) {
	name := action.TemplateName
	if it.expanding[name] {
		return nil, &common.ActionError{
			ActionName: action.Name,
			ActionType: string(action.Type),
			Cause:      fmt.Errorf("template cycle detected: %q is already being expanded", name),
		}
	}

	it.expanding[name] = true
	defer delete(it.expanding, name)

	tmpl, err := it.templates.LoadTemplate(ctx, name)
	if err != nil {
		return nil, &common.ActionError{ActionName: action.Name, ActionType: string(action.Type), Cause: err}
	}
	if tmpl == nil {
		return nil, &common.ActionError{
			ActionName: action.Name,
			ActionType: string(action.Type),
			Cause:      fmt.Errorf("template %q not found", name),
		}
	}

	expanded, err := it.factory.CreateFromJSON([]byte(tmpl.ActionsData))
	if err != nil {
		return nil, &common.ActionError{ActionName: action.Name, ActionType: string(action.Type), Cause: err}
	}

	// Resolve every nested reference now, including those inside composite
	// branches, so a cycle is rejected before anything from it executes
	flat, err := it.expandList(ctx, expanded)
	if err != nil {
		return nil, err
	}

	it.logger.Debug().
		Str("template", name).
		Int("actions", len(flat)).
		Msg("Template expanded")

	return flat, nil
}

// expandList resolves template references in a block, recursing into the
// branches of composite actions. The returned block contains no template
// nodes, so a spliced template can never re-expand at branch-execution time.
func (it *Interpreter) expandList(ctx context.Context, actions []*models.Action) ([]*models.Action, error) {
	out := make([]*models.Action, 0, len(actions))
	for _, action := range actions {
		if action.Type == models.ActionTypeTemplate {
			sub, err := it.expandTemplate(ctx, action)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if err := it.expandBranches(ctx, action); err != nil {
			return nil, err
		}
		out = append(out, action)
	}
	return out, nil
}

// expandBranches resolves template references inside a composite action's
// branches in place. The action is always a freshly decoded template node,
// never part of the caller's workflow.
func (it *Interpreter) expandBranches(ctx context.Context, action *models.Action) error {
	var err error
	switch action.Type {
	case models.ActionTypeConditional:
		if action.TrueBranch, err = it.expandList(ctx, action.TrueBranch); err != nil {
			return err
		}
		action.FalseBranch, err = it.expandList(ctx, action.FalseBranch)
	case models.ActionTypeLoop:
		action.LoopActions, err = it.expandList(ctx, action.LoopActions)
	case models.ActionTypeErrorHandling:
		if action.TryActions, err = it.expandList(ctx, action.TryActions); err != nil {
			return err
		}
		action.CatchActions, err = it.expandList(ctx, action.CatchActions)
	}
	return err
}

func (it *Interpreter) executeAction(ctx context.Context, action *models.Action) error {
	switch action.Type {
	case models.ActionTypeConditional:
		return it.executeConditional(ctx, action)
	case models.ActionTypeLoop:
		return it.executeLoop(ctx, action)
	case models.ActionTypeErrorHandling:
		return it.executeErrorHandling(ctx, action)
	default:
		return it.executeLeaf(ctx, action)
	}
}

// executeLeaf runs a single driver-facing action and records its result
func (it *Interpreter) executeLeaf(ctx context.Context, action *models.Action) error {
	message, err := it.dispatchLeaf(ctx, action)
	if err != nil {
		if errors.Is(err, errRunStopped) {
			return err
		}
		actionErr := &common.ActionError{
			ActionName: action.Name,
			ActionType: string(action.Type),
			Cause:      err,
		}
		it.record(action, models.ActionStatusFailed, actionErr.Error())
		return actionErr
	}

	it.record(action, models.ActionStatusSuccess, message)
	return nil
}

func (it *Interpreter) dispatchLeaf(ctx context.Context, action *models.Action) (string, error) {
	switch action.Type {
	case models.ActionTypeNavigate:
		url := it.substitute(action.URL)
		if err := it.driver.Get(url); err != nil {
			return "", err
		}
		return fmt.Sprintf("navigated to %s", url), nil

	case models.ActionTypeClick:
		selector := it.substitute(action.Selector)
		if err := it.driver.Click(selector); err != nil {
			return "", err
		}
		return fmt.Sprintf("clicked %s", selector), nil

	case models.ActionTypeType:
		value, err := it.resolveTypedValue(ctx, action)
		if err != nil {
			return "", err
		}
		selector := it.substitute(action.Selector)
		if err := it.driver.TypeText(selector, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("typed into %s", selector), nil

	case models.ActionTypeWait:
		if err := it.sleep(ctx, action.DurationSeconds); err != nil {
			return "", err
		}
		return fmt.Sprintf("waited %gs", action.DurationSeconds), nil

	case models.ActionTypeScreenshot:
		path := it.substitute(action.FilePath)
		if err := it.driver.Screenshot(path); err != nil {
			return "", err
		}
		return fmt.Sprintf("screenshot saved to %s", path), nil

	default:
		return "", fmt.Errorf("unsupported leaf action type %q", action.Type)
	}
}

// resolveTypedValue produces the text for a type action, resolving
// credentials through the credential service
func (it *Interpreter) resolveTypedValue(ctx context.Context, action *models.Action) (string, error) {
	if action.ValueType == models.ValueTypeCredential {
		name, field, err := models.SplitCredentialKey(it.substitute(action.ValueKey))
		if err != nil {
			return "", err
		}
		return it.credentials.ResolveForAction(ctx, name, field)
	}
	return it.substitute(action.ValueKey), nil
}

func (it *Interpreter) executeConditional(ctx context.Context, action *models.Action) error {
	if err := it.checkCancelled(ctx); err != nil {
		return err
	}

	outcome, err := it.evaluateCondition(action)
	if err != nil {
		return &common.ActionError{ActionName: action.Name, ActionType: string(action.Type), Cause: err}
	}

	it.logger.Debug().
		Str("action", action.Name).
		Str("condition", string(action.ConditionType)).
		Bool("outcome", outcome).
		Msg("Condition evaluated")

	if outcome {
		return it.runBlock(ctx, action.TrueBranch)
	}
	return it.runBlock(ctx, action.FalseBranch)
}

func (it *Interpreter) executeLoop(ctx context.Context, action *models.Action) error {
	if len(action.LoopActions) == 0 {
		it.logger.Warn().
			Str("action", action.Name).
			Msg("Loop has no actions, skipping iterations")
	}

	switch action.LoopType {
	case models.LoopTypeCount:
		for i := 0; i < action.Count; i++ {
			if err := it.checkCancelled(ctx); err != nil {
				return err
			}
			if err := it.runIteration(ctx, action, i, action.Count, nil, false); err != nil {
				return err
			}
		}
		return nil

	case models.LoopTypeForEach:
		items, err := it.resolveSequence(action)
		if err != nil {
			return &common.ActionError{ActionName: action.Name, ActionType: string(action.Type), Cause: err}
		}
		for i, item := range items {
			if err := it.checkCancelled(ctx); err != nil {
				return err
			}
			if err := it.runIteration(ctx, action, i, len(items), item, true); err != nil {
				return err
			}
		}
		return nil

	case models.LoopTypeWhile:
		for i := 0; ; i++ {
			if err := it.checkCancelled(ctx); err != nil {
				return err
			}
			if i >= it.maxLoopIterations {
				return &common.ActionError{
					ActionName: action.Name,
					ActionType: string(action.Type),
					Cause:      fmt.Errorf("while loop exceeded maximum iterations (%d)", it.maxLoopIterations),
				}
			}
			outcome, err := it.evaluateCondition(action)
			if err != nil {
				return &common.ActionError{ActionName: action.Name, ActionType: string(action.Type), Cause: err}
			}
			if !outcome {
				return nil
			}
			if err := it.runIteration(ctx, action, i, 0, nil, false); err != nil {
				return err
			}
		}

	default:
		return &common.ActionError{
			ActionName: action.Name,
			ActionType: string(action.Type),
			Cause:      fmt.Errorf("unknown loop type %q", action.LoopType),
		}
	}
}

// runIteration executes one loop pass inside a fresh iteration frame. The
// frame is popped on exit whether the pass succeeded or failed.
func (it *Interpreter) runIteration(ctx context.Context, action *models.Action, index, total int, item interface{}, withItem bool) error {
	frame := map[string]interface{}{
		VarLoopIndex:     index,
		VarLoopIteration: index + 1,
	}
	if total > 0 {
		frame[VarLoopTotal] = total
	}
	if withItem {
		frame[VarLoopItem] = item
	}

	it.vars.Push(frame)
	defer it.vars.Pop()

	return it.runBlock(ctx, action.LoopActions)
}

func (it *Interpreter) executeErrorHandling(ctx context.Context, action *models.Action) error {
	tryErr := it.runBlock(ctx, action.TryActions)
	if tryErr == nil {
		return nil
	}
	if errors.Is(tryErr, errRunStopped) {
		return tryErr
	}

	// An empty catch block means the original error propagates
	if len(action.CatchActions) == 0 {
		return tryErr
	}

	it.logger.Debug().
		Str("action", action.Name).
		Str("error", tryErr.Error()).
		Msg("Try block failed, running catch block")

	it.vars.Push(map[string]interface{}{
		VarTryErrMessage: tryErr.Error(),
		VarTryErrType:    errorKind(tryErr),
	})
	defer it.vars.Pop()

	if catchErr := it.runBlock(ctx, action.CatchActions); catchErr != nil {
		if errors.Is(catchErr, errRunStopped) {
			return catchErr
		}
		return &common.ActionError{
			ActionName: action.Name,
			ActionType: string(action.Type),
			Cause:      fmt.Errorf("catch block failed: %v (original error: %v)", catchErr, tryErr),
		}
	}

	return nil
}

// resolveSequence fetches the for_each list variable and normalizes it to a
// slice of items
func (it *Interpreter) resolveSequence(action *models.Action) ([]interface{}, error) {
	raw, ok := it.vars.Lookup(action.ListVariableName)
	if !ok {
		return nil, fmt.Errorf("list variable %q is not defined", action.ListVariableName)
	}

	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("variable %q is not a sequence (got %T)", action.ListVariableName, raw)
	}

	items := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		items[i] = v.Index(i).Interface()
	}
	return items, nil
}

func (it *Interpreter) sleep(ctx context.Context, seconds float64) error {
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errRunStopped
	}
}

func (it *Interpreter) checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return errRunStopped
	}
	return nil
}

func (it *Interpreter) record(action *models.Action, status, message string) {
	result := models.ActionResult{
		ActionName: action.Name,
		ActionType: string(action.Type),
		Status:     status,
		Message:    message,
	}
	it.results = append(it.results, result)
	if it.onProgress != nil {
		it.onProgress(result)
	}
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// substitute replaces ${name} references with the stringified context value;
// unknown references are left untouched
func (it *Interpreter) substitute(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := varPattern.FindStringSubmatch(match)[1]
		if value, ok := it.vars.Lookup(key); ok {
			return stringify(value)
		}
		return match
	})
}

// errorKind names the innermost taxonomy kind of an error for catch frames
func errorKind(err error) string {
	var driverErr *common.DriverError
	if errors.As(err, &driverErr) {
		return "DriverError"
	}
	var credErr *common.CredentialError
	if errors.As(err, &credErr) {
		return "CredentialError"
	}
	var repoErr *common.RepositoryError
	if errors.As(err, &repoErr) {
		return "RepositoryError"
	}
	var serErr *common.SerializationError
	if errors.As(err, &serErr) {
		return "SerializationError"
	}
	var valErr *common.ValidationError
	if errors.As(err, &valErr) {
		return "ValidationError"
	}
	var actionErr *common.ActionError
	if errors.As(err, &actionErr) {
		return "ActionError"
	}
	return "Error"
}
