package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/glassdome/pkg/types"
)

func succeed(_ context.Context, _ string, _ any) types.TaskResult {
	return types.TaskResult{Success: true}
}

func TestRunLinearChainCompletesInOrder(t *testing.T) {
	e := New()
	var order []string
	exec := func(_ context.Context, id string, _ any) types.TaskResult {
		order = append(order, id)
		return types.TaskResult{Success: true}
	}

	if err := e.AddTask("a", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("b", nil, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("c", nil, []string{"b"}); err != nil {
		t.Fatal(err)
	}

	report := e.Run(context.Background(), exec, 3, true)

	if !report.Success || report.Completed != 3 {
		t.Fatalf("expected all 3 tasks to complete, got %+v", report)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expected strict order a,b,c, got %v", order)
	}
}

func TestRunIndependentTasksRunConcurrently(t *testing.T) {
	e := New()
	var inFlight, maxInFlight int32

	exec := func(ctx context.Context, _ string, _ any) types.TaskResult {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return types.TaskResult{Success: true}
	}

	for _, id := range []string{"x", "y", "z"} {
		if err := e.AddTask(id, nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	report := e.Run(context.Background(), exec, 3, true)

	if !report.Success {
		t.Fatalf("expected success, got %+v", report)
	}
	if atomic.LoadInt32(&maxInFlight) < 2 {
		t.Fatalf("expected at least 2 concurrent tasks, saw max %d", maxInFlight)
	}
}

func TestRunDuplicateTaskIDRejected(t *testing.T) {
	e := New()
	if err := e.AddTask("dup", nil, nil); err != nil {
		t.Fatal(err)
	}
	err := e.AddTask("dup", nil, nil)
	if err == nil {
		t.Fatal("expected error adding a duplicate task id")
	}
}

func TestRunCyclicDependencyFailsCleanly(t *testing.T) {
	e := New()
	if err := e.AddTask("a", nil, []string{"b"}); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("b", nil, []string{"a"}); err != nil {
		t.Fatal(err)
	}

	report := e.Run(context.Background(), succeed, 2, true)

	if report.Success {
		t.Fatal("expected a cyclic graph to fail")
	}
	if report.Error == "" {
		t.Fatal("expected a graph-level error message for a cyclic dependency")
	}
}

func TestRunUnknownPrerequisiteFailsCleanly(t *testing.T) {
	e := New()
	if err := e.AddTask("a", nil, []string{"does-not-exist"}); err != nil {
		t.Fatal(err)
	}

	report := e.Run(context.Background(), succeed, 2, true)

	if report.Success {
		t.Fatal("expected an unknown prerequisite to fail the run")
	}
	if report.Error == "" {
		t.Fatal("expected a graph-level error message for an unknown prerequisite")
	}
	if len(report.Tasks) != 0 {
		t.Fatalf("expected no tasks to have run, got %+v", report.Tasks)
	}
}

func TestRunFailFastCancelsRemainingTasks(t *testing.T) {
	e := New()
	if err := e.AddTask("bad", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("good", nil, []string{"bad"}); err != nil {
		t.Fatal(err)
	}

	exec := func(_ context.Context, id string, _ any) types.TaskResult {
		if id == "bad" {
			return types.TaskResult{Success: false, Error: "boom"}
		}
		return types.TaskResult{Success: true}
	}

	report := e.Run(context.Background(), exec, 1, true)

	if report.Success {
		t.Fatal("expected failure")
	}
	if report.Tasks["good"].State == types.TaskCompleted {
		t.Fatal("dependent task should never have run after fail-fast")
	}
}

func TestRunWithoutFailFastRunsIndependentBranches(t *testing.T) {
	e := New()
	if err := e.AddTask("bad", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("independent", nil, nil); err != nil {
		t.Fatal(err)
	}

	exec := func(_ context.Context, id string, _ any) types.TaskResult {
		if id == "bad" {
			return types.TaskResult{Success: false, Error: "boom"}
		}
		return types.TaskResult{Success: true}
	}

	report := e.Run(context.Background(), exec, 2, false)

	if report.Success {
		t.Fatal("expected overall failure since one task failed")
	}
	if report.Tasks["independent"].State != types.TaskCompleted {
		t.Fatalf("expected independent branch to complete, got %+v", report.Tasks["independent"])
	}
}

func TestRunExecutorPanicIsRecoveredAsFailure(t *testing.T) {
	e := New()
	if err := e.AddTask("panicky", nil, nil); err != nil {
		t.Fatal(err)
	}

	exec := func(_ context.Context, _ string, _ any) types.TaskResult {
		panic(errors.New("executor exploded"))
	}

	report := e.Run(context.Background(), exec, 1, true)

	if report.Success {
		t.Fatal("expected panic to be converted to a failed result")
	}
	if report.Tasks["panicky"].State != types.TaskFailed {
		t.Fatalf("expected panicky task marked failed, got %+v", report.Tasks["panicky"])
	}
}

func TestExecutionPlanLayersIndependentTasksTogether(t *testing.T) {
	e := New()
	if err := e.AddTask("net", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("vm1", nil, []string{"net"}); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("vm2", nil, []string{"net"}); err != nil {
		t.Fatal(err)
	}

	plan := e.ExecutionPlan()

	if len(plan) != 2 {
		t.Fatalf("expected 2 layers, got %d: %v", len(plan), plan)
	}
	if len(plan[1]) != 2 {
		t.Fatalf("expected both VMs in the second layer, got %v", plan[1])
	}
}

func TestExecutionPlanReturnsNilForCycle(t *testing.T) {
	e := New()
	if err := e.AddTask("a", nil, []string{"b"}); err != nil {
		t.Fatal(err)
	}
	if err := e.AddTask("b", nil, []string{"a"}); err != nil {
		t.Fatal(err)
	}

	if plan := e.ExecutionPlan(); plan != nil {
		t.Fatalf("expected nil plan for a cyclic graph, got %v", plan)
	}
}
