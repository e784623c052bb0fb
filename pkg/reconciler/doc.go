/*
Package reconciler closes the gap between Glassdome's recorded state and
platform reality: networks, VM interfaces, and deployed VMs.

# Checks

Three checks run every cycle, each independent and individually
recoverable from failure:

 1. Provisioned networks: every PlatformNetworkMapping flagged
    provisioned is verified against the platform adapter. A missing
    network is drift; a mapping whose NetworkDefinition was deleted is
    drift regardless of what the adapter reports.
 2. VM interfaces: persisted interfaces are grouped by (platform,
    instance, vm-id) and compared against the adapter's live view. A
    persisted interface absent live is drift. A live IP that differs
    from the persisted one is drift AND self-healing: the persisted
    record is updated to match.
 3. Deployed VMs: every VM with status=deployed is checked for live
    interfaces. None present is drift ("VM missing"). Otherwise the
    first interface with an IP becomes the VM's refreshed primary IP.

# Failure isolation

Each check runs inside its own recover() boundary; a panic or error in
one check becomes a drift result with Actual="error" and
Detail="error: ..." rather than aborting the cycle or skipping the
remaining checks.

# History

The last DefaultHistorySize results are kept in a fixed ring buffer so
CurrentStatus can answer "what drifted recently" without a growing
allocation. Drift callbacks registered via OnDrift are invoked
synchronously after the ring is updated and are themselves
panic-isolated; a misbehaving callback cannot take down the loop.

# See Also

  - pkg/storage - persisted NetworkDefinition/PlatformNetworkMapping/VMInterface/DeployedVM rows
  - pkg/platform - the Adapter interface this package queries for live state
*/
package reconciler
