/*
Package types defines the core data structures shared across Glassdome:
lab specifications, networks, VMs, interfaces, hot spares, and the
results the engine and reconciler hand back to callers.

# Architecture

This package is the foundation of Glassdome's data model. It defines:

  - Lab input (LabSpec, NetworkRequest, VMRequest, UserAccount)
  - Persisted network state (NetworkDefinition, PlatformNetworkMapping)
  - Persisted VM state (DeployedVM, VMInterface)
  - Hot spare pool state (HotSpare, SpareStatus)
  - Address space allocation (SubnetRole, SubnetAllocation, LabNetworkAllocation)
  - Task graph execution (TaskKind, TaskState, TaskResult, DeploymentReport)
  - Reconciler output (ReconciliationResult)

All types carry only JSON-like primitives, arrays, and maps so they
cross the storage and future external-interface boundaries without
custom marshaling.

# Core Types

Lab input:
  - LabSpec: the in-memory request describing a lab to deploy
  - NetworkRequest, VMRequest: one entry per network/VM in a LabSpec
  - UserAccount: a guest user account to create on a VM

Networking:
  - NetworkDefinition: a persisted logical network owned by a lab
  - PlatformNetworkMapping: binds a NetworkDefinition to one platform instance
  - SubnetAllocation, LabNetworkAllocation: the allocator's address-space plan

VMs:
  - DeployedVM: the authoritative record of a VM instantiated on a platform
  - VMInterface: one network interface attached to a DeployedVM

Hot spare pool:
  - HotSpare: a pre-provisioned VM held ready for fast mission assignment
  - SpareStatus: provisioning, booting, ready, in-use, resetting, failed, destroying

Task execution:
  - TaskKind: tags the variant of a task's opaque payload
  - TaskState: pending, ready, running, completed, failed, skipped
  - TaskResult, DeploymentReport, TaskReportEntry: what a Run/Deploy returns

# State Machine

Engine tasks follow:

	pending -> ready -> running -> completed
	                       |
	                    failed

A task becomes ready once every prerequisite has completed. A failed
task with FailFast set cancels remaining running tasks, which are
reported failed, and leaves untouched ones pending; without FailFast,
independent branches of the graph continue.

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type VMStatus string
	  const (
	      VMDeployed VMStatus = "deployed"
	      VMStopped  VMStatus = "stopped"
	  )

# Thread Safety

Types in this package carry no synchronization of their own; callers
(pkg/storage, pkg/sparepool, pkg/reconciler) own the locking discipline
around any mutable copy they hold.

# See Also

  - pkg/storage for the persistence layer these types are marshaled through
  - pkg/engine for the task graph that produces TaskResult/DeploymentReport
  - pkg/orchestrator for how LabSpec becomes a running lab
*/
package types
