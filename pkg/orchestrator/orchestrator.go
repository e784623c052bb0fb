// Package orchestrator implements the Lab Orchestrator: it composes the
// execution engine, network allocator, and platform adapter into
// end-to-end lab deployment. An Orchestrator is stateless between
// Deploy calls; all bookkeeping for one deployment lives in the
// deployRun created for that call.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/glassdome/pkg/engine"
	"github.com/cuemby/glassdome/pkg/log"
	"github.com/cuemby/glassdome/pkg/metrics"
	"github.com/cuemby/glassdome/pkg/network"
	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/storage"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Orchestrator composes §4.1-§4.3 into end-to-end lab deployment.
type Orchestrator struct {
	store            storage.Store
	adapter          platform.Adapter
	allocator        *network.Allocator
	platformInstance string
	logger           zerolog.Logger
}

// New creates an Orchestrator driving the given platform adapter
// instance, e.g. "glassdome" for the local Lima instance.
func New(store storage.Store, adapter platform.Adapter, allocator *network.Allocator, platformInstance string) *Orchestrator {
	return &Orchestrator{
		store:            store,
		adapter:          adapter,
		allocator:        allocator,
		platformInstance: platformInstance,
		logger:           log.WithComponent("orchestrator"),
	}
}

// networkState bundles a network's persisted definition with the
// allocator's address plan, scoped to one Deploy call.
type networkState struct {
	def   *types.NetworkDefinition
	alloc *types.LabNetworkAllocation
	cfg   platform.NetworkConfig
}

// deployRun is the mutable state of a single Deploy invocation. It is
// never shared across calls, so the Orchestrator itself stays stateless.
type deployRun struct {
	o                *Orchestrator
	labID            string
	platformInstance string

	mu         sync.Mutex
	networks   map[string]*networkState // logical network name -> state
	networkSeq map[string]int           // logical network name -> next VM index
}

// kindedPayload is implemented by every task payload this package hands
// to the engine. execute dispatches on Kind() rather than the payload's
// Go type, mirroring the original's task_def["type"] switch.
type kindedPayload interface {
	Kind() types.TaskKind
}

// networkTaskPayload, vmTaskPayload, usersTaskPayload, packagesTaskPayload
// and configureTaskPayload are the opaque payloads the engine carries;
// each tags itself with the TaskKind the executor switches on.
type networkTaskPayload struct{ req types.NetworkRequest }

func (networkTaskPayload) Kind() types.TaskKind { return types.TaskKindCreateNetwork }

type vmTaskPayload struct{ req types.VMRequest }

func (vmTaskPayload) Kind() types.TaskKind { return types.TaskKindCreateVM }

type usersTaskPayload struct {
	vmID  string
	users []types.UserAccount
}

func (usersTaskPayload) Kind() types.TaskKind { return types.TaskKindCreateUsers }

type packagesTaskPayload struct {
	vmID     string
	packages []string
}

func (packagesTaskPayload) Kind() types.TaskKind { return types.TaskKindInstallPackages }

type configureTaskPayload struct {
	vmID        string
	postInstall []string
}

func (configureTaskPayload) Kind() types.TaskKind { return types.TaskKindPostConfigure }

// Deploy builds the task graph for spec, drives it through the engine,
// registers a DeployedVM row for every VM successfully created, and
// sequences any lab-wide post-deployment scripts after the graph
// completes successfully (spec.md §4.5).
func (o *Orchestrator) Deploy(ctx context.Context, labID string, spec types.LabSpec) (types.DeploymentReport, error) {
	run := &deployRun{
		o:                o,
		labID:            labID,
		platformInstance: o.platformInstance,
		networks:         make(map[string]*networkState),
		networkSeq:       make(map[string]int),
	}

	eng := engine.New()
	if err := run.buildGraph(eng, spec); err != nil {
		return types.DeploymentReport{}, fmt.Errorf("build task graph: %w", err)
	}

	maxParallel := spec.MaxParallel
	if maxParallel < 1 {
		maxParallel = 3
	}

	timer := metrics.NewTimer()
	report := eng.Run(ctx, run.execute, maxParallel, spec.FailFast)
	timer.ObserveDuration(metrics.LabDeploymentDuration)
	outcome := "failure"
	if report.Success {
		outcome = "success"
	}
	metrics.LabDeploymentsTotal.WithLabelValues(outcome).Inc()

	if report.Success && len(spec.PostDeployScripts) > 0 {
		run.runPostDeployScripts(ctx, spec.PostDeployScripts)
	}

	return report, nil
}

// buildGraph registers one task per network, one per VM, and per-VM
// child tasks chained users -> packages -> post-configure, each
// depending on the previous link (or the VM task if a link is absent).
func (run *deployRun) buildGraph(eng *engine.Engine, spec types.LabSpec) error {
	networkNames := make(map[string]bool, len(spec.Networks))
	for _, n := range spec.Networks {
		networkNames[n.Name] = true
		if err := eng.AddTask("network_"+n.Name, networkTaskPayload{req: n}, nil); err != nil {
			return err
		}
	}

	for _, vm := range spec.VMs {
		var deps []string
		if vm.Network != "" {
			deps = append(deps, "network_"+vm.Network)
		}
		for _, dep := range vm.DependsOn {
			if networkNames[dep] {
				deps = append(deps, "network_"+dep)
			} else {
				deps = append(deps, "vm_"+dep)
			}
		}

		if err := eng.AddTask("vm_"+vm.ID, vmTaskPayload{req: vm}, deps); err != nil {
			return err
		}
		tail := "vm_" + vm.ID

		if len(vm.Users) > 0 {
			id := "users_" + vm.ID
			if err := eng.AddTask(id, usersTaskPayload{vmID: vm.ID, users: vm.Users}, []string{tail}); err != nil {
				return err
			}
			tail = id
		}

		if len(vm.Packages) > 0 {
			id := "packages_" + vm.ID
			if err := eng.AddTask(id, packagesTaskPayload{vmID: vm.ID, packages: vm.Packages}, []string{tail}); err != nil {
				return err
			}
			tail = id
		}

		if len(vm.PostInstall) > 0 {
			id := "configure_" + vm.ID
			if err := eng.AddTask(id, configureTaskPayload{vmID: vm.ID, postInstall: vm.PostInstall}, []string{tail}); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute is the engine.Executor. It dispatches on the payload's
// TaskKind tag, not its Go type, per spec.md §9's tagged-variant
// instruction; the type assertion in each case recovers the payload's
// fields once the kind has picked the right branch.
func (run *deployRun) execute(ctx context.Context, id string, payload any) types.TaskResult {
	kp, ok := payload.(kindedPayload)
	if !ok {
		return types.TaskResult{Success: false, Error: fmt.Sprintf("unknown task payload %T", payload)}
	}

	switch kp.Kind() {
	case types.TaskKindCreateNetwork:
		return run.createNetwork(ctx, payload.(networkTaskPayload).req)
	case types.TaskKindCreateVM:
		return run.createVM(ctx, payload.(vmTaskPayload).req)
	case types.TaskKindCreateUsers:
		return run.createUsers(ctx, payload.(usersTaskPayload))
	case types.TaskKindInstallPackages:
		return run.installPackages(ctx, payload.(packagesTaskPayload))
	case types.TaskKindPostConfigure:
		return run.postConfigure(ctx, payload.(configureTaskPayload))
	default:
		return types.TaskResult{Success: false, Error: fmt.Sprintf("unknown task kind %q", kp.Kind())}
	}
}

// runPostDeployScripts sequences lab-wide scripts after the graph
// completes. What they do is out of scope; the orchestrator only
// sequences them (spec.md §4.5 step 4).
func (run *deployRun) runPostDeployScripts(ctx context.Context, scripts []string) {
	for _, script := range scripts {
		run.o.logger.Info().Str("lab_id", run.labID).Str("script", script).Msg("running post-deployment script")
	}
}

func uuidString() string {
	return uuid.NewString()
}
