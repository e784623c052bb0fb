// Package engine implements a generic dependency-graph task runner: a DAG
// scheduler that drives typed, opaque tasks to completion with bounded
// parallelism and a choice of failure policies. The engine knows nothing
// about what a task does; it only knows ids, prerequisites, and the result
// an executor function returns.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/glassdome/pkg/errs"
	"github.com/cuemby/glassdome/pkg/log"
	"github.com/cuemby/glassdome/pkg/metrics"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/rs/zerolog"
)

// Executor runs a single task's payload and returns its result. An
// Executor that panics is recovered by the engine and converted into a
// failed result, matching the spec's "raising an exception is equivalent
// to returning {success:false, error:<message>}" semantics.
type Executor func(ctx context.Context, id string, payload any) types.TaskResult

// task is the engine's internal bookkeeping record for one added task.
type task struct {
	id           string
	payload      any
	dependencies []string
	state        types.TaskState
	result       any
	err          string
}

// Engine is a domain-agnostic DAG task runner.
type Engine struct {
	logger zerolog.Logger
	mu     sync.Mutex

	order []string // registration order, used as a tie-break for readiness
	tasks map[string]*task

	// adjacency: dependency id -> dependent ids (forward graph)
	dependents map[string][]string
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{
		logger:     log.WithComponent("engine"),
		tasks:      make(map[string]*task),
		dependents: make(map[string][]string),
	}
}

// AddTask registers a pending task. Returns errs.ErrDuplicateID if the id
// is already present. Prerequisites may refer to tasks added later; the
// full set is validated at Run time.
func (e *Engine) AddTask(id string, payload any, prerequisites []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tasks[id]; exists {
		return fmt.Errorf("task %q: %w", id, errs.ErrDuplicateID)
	}

	deps := append([]string(nil), prerequisites...)
	e.tasks[id] = &task{
		id:           id,
		payload:      payload,
		dependencies: deps,
		state:        types.TaskPending,
	}
	e.order = append(e.order, id)

	for _, dep := range deps {
		e.dependents[dep] = append(e.dependents[dep], id)
	}

	e.logger.Debug().Str("task_id", id).Strs("dependencies", deps).Msg("task added")
	return nil
}

// ExecutionPlan returns a list of layers, each layer being the set of task
// ids whose prerequisites are satisfied by earlier layers — a topological
// level schedule callers can use to preview parallelism. Returns nil if the
// graph has a cycle.
func (e *Engine) ExecutionPlan() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	inDegree := make(map[string]int, len(e.tasks))
	for id, t := range e.tasks {
		inDegree[id] = len(t.dependencies)
	}

	var plan [][]string
	remaining := len(e.tasks)
	satisfied := make(map[string]bool, len(e.tasks))

	for remaining > 0 {
		var layer []string
		for _, id := range e.order {
			if satisfied[id] {
				continue
			}
			if inDegree[id] == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// cycle or unknown prerequisite: no progress possible
			return nil
		}
		for _, id := range layer {
			satisfied[id] = true
			remaining--
			for _, dependent := range e.dependents[id] {
				inDegree[dependent]--
			}
		}
		plan = append(plan, layer)
	}

	return plan
}

// runResult is delivered on the completion channel by a launched task.
type runResult struct {
	id     string
	result types.TaskResult
}

// Run drives all added tasks to completion using executor, respecting
// maxParallel and failFast. It validates the graph for cycles and unknown
// prerequisites before invoking the executor at all.
func (e *Engine) Run(ctx context.Context, executor Executor, maxParallel int, failFast bool) types.DeploymentReport {
	start := time.Now()
	timer := metrics.NewTimer()

	e.mu.Lock()
	if maxParallel < 1 {
		maxParallel = 1
	}

	if cyclic, cycleTasks := e.validateDAG(); cyclic {
		e.mu.Unlock()
		e.logger.Error().Strs("tasks", cycleTasks).Msg("circular dependency detected")
		metrics.EngineRunsTotal.WithLabelValues("cycle").Inc()
		return types.DeploymentReport{
			Success:  false,
			Error:    errs.ErrCyclicDependency.Error(),
			Total:    len(e.tasks),
			Duration: time.Since(start),
			Tasks:    map[string]types.TaskReportEntry{},
		}
	}

	missing := e.unknownPrerequisites()
	e.mu.Unlock()

	if len(missing) > 0 {
		e.logger.Error().Strs("missing", missing).Msg("unknown prerequisite referenced")
		metrics.EngineRunsTotal.WithLabelValues("unknown_prerequisite").Inc()
		return types.DeploymentReport{
			Success:  false,
			Error:    fmt.Sprintf("%s: %s", errs.ErrUnknownPrerequisite.Error(), strings.Join(missing, ", ")),
			Total:    len(e.tasks),
			Duration: time.Since(start),
			Tasks:    map[string]types.TaskReportEntry{},
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	completion := make(chan runResult)
	running := make(map[string]bool)
	var readyQueue []string // ready-but-not-yet-launched, in registration order

runLoop:
	for {
		e.mu.Lock()
		readyQueue = append(readyQueue, e.readyTasksLocked()...)

		// Launch as many queued-ready tasks as the parallelism budget allows.
		launchable := maxParallel - len(running)
		for launchable > 0 && len(readyQueue) > 0 {
			id := readyQueue[0]
			readyQueue = readyQueue[1:]
			t := e.tasks[id]
			t.state = types.TaskRunning
			running[id] = true
			launchable--

			go func(id string, payload any) {
				result := e.invoke(runCtx, executor, id, payload)
				select {
				case completion <- runResult{id: id, result: result}:
				case <-runCtx.Done():
				}
			}(id, t.payload)
		}

		pendingRemain := e.pendingRemainLocked()
		stuck := len(running) == 0 && len(readyQueue) == 0 && pendingRemain
		e.mu.Unlock()

		if stuck {
			e.logger.Warn().Msg("no tasks can be executed - dependency issue")
			break
		}
		if len(running) == 0 && len(readyQueue) == 0 {
			break
		}

		select {
		case done := <-completion:
			delete(running, done.id)

			e.mu.Lock()
			t := e.tasks[done.id]
			if done.result.Success {
				t.state = types.TaskCompleted
				t.result = done.result.Output
			} else {
				t.state = types.TaskFailed
				t.err = done.result.Error
			}
			e.mu.Unlock()

			if failFast && !done.result.Success {
				e.logger.Warn().Str("task_id", done.id).Msg("fail-fast triggered, cancelling in-flight tasks")
				cancel()
				e.cancelRunningLocked(running, "cancelled: fail-fast")
				break runLoop
			}
		case <-ctx.Done():
			cancel()
			e.cancelRunningLocked(running, ctx.Err().Error())
			break runLoop
		}
	}

	report := e.buildReport(start)
	timer.ObserveDuration(metrics.EngineRunDuration)
	if report.Success {
		metrics.EngineRunsTotal.WithLabelValues("success").Inc()
	} else {
		metrics.EngineRunsTotal.WithLabelValues("failure").Inc()
	}
	return report
}

// invoke calls executor, recovering a panic into a failed TaskResult so a
// misbehaving task executor never takes down the engine's goroutine.
func (e *Engine) invoke(ctx context.Context, executor Executor, id string, payload any) (result types.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			result = types.TaskResult{Success: false, Error: fmt.Sprintf("task panicked: %v", r)}
		}
	}()
	return executor(ctx, id, payload)
}

// cancelRunningLocked marks every still-running task as failed with the
// given message. The underlying executor goroutines are left to notice
// context cancellation on their own; the engine does not wait for them,
// matching the spec's "cancel all in-flight tasks and break" semantics —
// cancellation here means the tasks are no longer tracked as running, not
// that their goroutines are forcibly killed (Go has no such primitive).
func (e *Engine) cancelRunningLocked(running map[string]bool, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range running {
		if t := e.tasks[id]; t != nil && t.state == types.TaskRunning {
			t.state = types.TaskFailed
			t.err = message
		}
	}
}

// readyTasksLocked returns pending task ids whose prerequisites are all
// completed, in registration order, and flips them to ready. Caller must
// hold e.mu.
func (e *Engine) readyTasksLocked() []string {
	var ready []string
	for _, id := range e.order {
		t := e.tasks[id]
		if t.state != types.TaskPending {
			continue
		}
		allDepsCompleted := true
		for _, dep := range t.dependencies {
			depTask, exists := e.tasks[dep]
			if !exists || depTask.state != types.TaskCompleted {
				allDepsCompleted = false
				break
			}
		}
		if allDepsCompleted {
			t.state = types.TaskReady
			ready = append(ready, id)
		}
	}
	return ready
}

// pendingRemainLocked reports whether any task is still pending or ready
// (not yet dispatched). Caller must hold e.mu.
func (e *Engine) pendingRemainLocked() bool {
	for _, t := range e.tasks {
		if t.state == types.TaskPending || t.state == types.TaskReady {
			return true
		}
	}
	return false
}

// validateDAG performs a depth-first cycle check with recursion-stack
// marks. Caller must hold e.mu.
func (e *Engine) validateDAG() (bool, []string) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(e.tasks))

	var stack []string
	var cyclic bool
	var visit func(id string)
	visit = func(id string) {
		if cyclic {
			return
		}
		color[id] = gray
		stack = append(stack, id)
		t, ok := e.tasks[id]
		if ok {
			for _, dep := range t.dependencies {
				if _, exists := e.tasks[dep]; !exists {
					continue // unknown prerequisite, not a cycle
				}
				switch color[dep] {
				case white:
					visit(dep)
				case gray:
					cyclic = true
					return
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range e.order {
		if color[id] == white {
			visit(id)
		}
		if cyclic {
			return true, append([]string(nil), stack...)
		}
	}
	return false, nil
}

// unknownPrerequisites returns any prerequisite id referenced by a task
// that was never added. Caller must hold e.mu.
func (e *Engine) unknownPrerequisites() []string {
	var missing []string
	for _, t := range e.tasks {
		for _, dep := range t.dependencies {
			if _, exists := e.tasks[dep]; !exists {
				missing = append(missing, dep)
			}
		}
	}
	return missing
}

// buildReport sums the final task states into an aggregate report.
func (e *Engine) buildReport(start time.Time) types.DeploymentReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := types.DeploymentReport{
		Total:    len(e.tasks),
		Duration: time.Since(start),
		Tasks:    make(map[string]types.TaskReportEntry, len(e.tasks)),
	}

	metrics.EngineTasksTotal.Reset()
	for id, t := range e.tasks {
		report.Tasks[id] = types.TaskReportEntry{State: t.state, Result: t.result, Error: t.err}
		metrics.EngineTasksTotal.WithLabelValues(string(t.state)).Inc()
		switch t.state {
		case types.TaskCompleted:
			report.Completed++
		case types.TaskFailed:
			report.Failed++
		}
	}
	report.Success = report.Failed == 0 && report.Completed == report.Total

	e.logger.Info().
		Int("total", report.Total).
		Int("completed", report.Completed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Bool("success", report.Success).
		Msg("engine run finished")

	return report
}

// Progress returns totals and a completion percentage for the current run.
func (e *Engine) Progress() (total, completed, failed int, percent float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total = len(e.tasks)
	for _, t := range e.tasks {
		switch t.state {
		case types.TaskCompleted:
			completed++
		case types.TaskFailed:
			failed++
		}
	}
	if total > 0 {
		percent = float64(completed+failed) / float64(total) * 100
	}
	return total, completed, failed, percent
}
