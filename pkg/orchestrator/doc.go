/*
Package orchestrator implements the Lab Orchestrator (spec.md §4.5): it
turns a LabSpec into a running lab by composing the execution engine,
the network allocator, and a platform adapter.

# Deploy

Deploy builds one task graph per call:

  - One task per network, no prerequisites.
  - One task per VM, depending on its attached network (if any) plus
    any DependsOn entries, disambiguated against the set of declared
    network names so a dependency can name either a network or
    another VM.
  - Per VM, an optional tail chain of users -> packages -> post-configure,
    each link depending on the previous one (or the VM task itself if
    an earlier link is absent).

The graph is handed to pkg/engine, which drives it to completion with
bounded parallelism (LabSpec.MaxParallel, default 3) and fail-fast
semantics controlled by LabSpec.FailFast. A failed task leaves whatever
rows its predecessors already persisted in place: partial
NetworkDefinition/PlatformNetworkMapping/DeployedVM/VMInterface rows
are expected after a partial failure and are exactly what the
reconciler and teardown operate on afterward.

Lab-wide PostDeployScripts run only after every task in the graph
succeeds; the Orchestrator only sequences them; it has no adapter
surface for guest-side execution.

# Out of scope: what users/packages/post-configure actually do

Creating user accounts, installing packages, and running post-install
scripts require reaching inside the guest OS (SSH or an agent), which
no Adapter method exposes. These three task kinds log their inputs and
return a summary count without touching the guest, matching the
original lab orchestrator's treatment of the same steps.

# Statelessness

An Orchestrator holds only its collaborators (store, adapter,
allocator, platform instance name). Everything specific to one Deploy
call — the allocated networks, the next free IP index per network —
lives in a deployRun created fresh per call, so concurrent Deploy calls
never share mutable state.
*/
package orchestrator
