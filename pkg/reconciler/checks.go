package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/types"
)

func ok(kind CheckKind, resourceID, platformName, value string) types.ReconciliationResult {
	return types.ReconciliationResult{
		ResourceKind: string(kind),
		ResourceID:   resourceID,
		Platform:     platformName,
		Expected:     value,
		Actual:       value,
		Drifted:      false,
		Timestamp:    time.Now(),
	}
}

func drift(kind CheckKind, resourceID, platformName, expected, actual, detail string) types.ReconciliationResult {
	return types.ReconciliationResult{
		ResourceKind: string(kind),
		ResourceID:   resourceID,
		Platform:     platformName,
		Expected:     expected,
		Actual:       actual,
		Drifted:      true,
		Detail:       detail,
		Timestamp:    time.Now(),
	}
}

// checkNetworksSafely runs checkNetworks and converts any panic or
// error into per-resource drift results rather than aborting the cycle.
func (r *Reconciler) checkNetworksSafely(ctx context.Context) (results []types.ReconciliationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("network check panicked")
			results = []types.ReconciliationResult{errResult(CheckNetwork, "*", "", fmt.Errorf("panic: %v", rec))}
		}
	}()
	return r.checkNetworks(ctx)
}

// checkNetworks verifies every mapping flagged provisioned still exists
// on its platform, and that its owning NetworkDefinition still exists
// (spec.md §4.4 check 1).
func (r *Reconciler) checkNetworks(ctx context.Context) []types.ReconciliationResult {
	mappings, err := r.store.ListAllPlatformNetworkMappings()
	if err != nil {
		return []types.ReconciliationResult{errResult(CheckNetwork, "*", "", err)}
	}

	var results []types.ReconciliationResult
	for _, m := range mappings {
		if !m.Provisioned {
			continue
		}

		if _, netErr := r.store.GetNetworkDefinition(m.NetworkID); netErr != nil {
			results = append(results, drift(CheckNetwork, m.ID, m.Platform, "present", "missing", "network deleted but mapping remains"))
			continue
		}

		adapter, found := r.adapterFor(m.Platform)
		if !found {
			results = append(results, errResult(CheckNetwork, m.ID, m.Platform, fmt.Errorf("no adapter registered for platform %q", m.Platform)))
			continue
		}

		cfg := platform.NetworkConfig(m.PlatformConfig)
		exists, existsErr := adapter.NetworkExists(ctx, cfg, m.PlatformInstance)
		if existsErr != nil {
			results = append(results, errResult(CheckNetwork, m.ID, m.Platform, existsErr))
			continue
		}
		if !exists {
			results = append(results, drift(CheckNetwork, m.ID, m.Platform, "present", "missing", "network missing"))
			continue
		}

		results = append(results, ok(CheckNetwork, m.ID, m.Platform, "present"))
	}
	return results
}

func (r *Reconciler) checkVMInterfacesSafely(ctx context.Context) (results []types.ReconciliationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("vm interface check panicked")
			results = []types.ReconciliationResult{errResult(CheckVMInterface, "*", "", fmt.Errorf("panic: %v", rec))}
		}
	}()
	return r.checkVMInterfaces(ctx)
}

type vmKey struct {
	platform string
	instance string
	vmID     string
}

// checkVMInterfaces groups persisted interfaces by (platform, instance,
// vm-id), compares each group against the adapter's live view, emits
// "interface missing" for a persisted interface absent live, and
// self-heals a drifted IP by updating the persisted record (spec.md
// §4.4 check 2).
func (r *Reconciler) checkVMInterfaces(ctx context.Context) []types.ReconciliationResult {
	all, err := r.store.ListAllVMInterfaces()
	if err != nil {
		return []types.ReconciliationResult{errResult(CheckVMInterface, "*", "", err)}
	}

	groups := make(map[vmKey][]*types.VMInterface)
	for _, iface := range all {
		key := vmKey{platform: iface.Platform, instance: iface.PlatformInstance, vmID: iface.VMID}
		groups[key] = append(groups[key], iface)
	}

	var results []types.ReconciliationResult
	for key, persisted := range groups {
		adapter, found := r.adapterFor(key.platform)
		if !found {
			for _, iface := range persisted {
				results = append(results, errResult(CheckVMInterface, iface.ID, key.platform, fmt.Errorf("no adapter registered for platform %q", key.platform)))
			}
			continue
		}

		live, liveErr := adapter.GetVMInterfaces(ctx, key.vmID, key.instance)
		if liveErr != nil {
			for _, iface := range persisted {
				results = append(results, errResult(CheckVMInterface, iface.ID, key.platform, liveErr))
			}
			continue
		}

		liveByIndex := make(map[int]*types.VMInterface, len(live))
		for _, l := range live {
			liveByIndex[l.InterfaceIndex] = l
		}

		for _, iface := range persisted {
			l, present := liveByIndex[iface.InterfaceIndex]
			if !present {
				results = append(results, drift(CheckVMInterface, iface.ID, iface.Platform, "present", "missing", "interface missing"))
				continue
			}
			if l.IPAddress != iface.IPAddress {
				expected := iface.IPAddress
				actual := l.IPAddress
				iface.IPAddress = l.IPAddress
				if updErr := r.store.UpdateVMInterface(iface); updErr != nil {
					results = append(results, errResult(CheckVMInterface, iface.ID, iface.Platform, updErr))
					continue
				}
				results = append(results, drift(CheckVMInterface, iface.ID, iface.Platform, expected, actual, "IP drifted"))
				continue
			}
			results = append(results, ok(CheckVMInterface, iface.ID, iface.Platform, iface.IPAddress))
		}
	}
	return results
}

func (r *Reconciler) checkDeployedVMsSafely(ctx context.Context) (results []types.ReconciliationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("deployed vm check panicked")
			results = []types.ReconciliationResult{errResult(CheckDeployedVM, "*", "", fmt.Errorf("panic: %v", rec))}
		}
	}()
	return r.checkDeployedVMs(ctx)
}

// checkDeployedVMs verifies every deployed VM still has live interfaces,
// emitting "VM missing" if none remain, else refreshing the VM's
// recorded IP from the first interface that has one (spec.md §4.4
// check 3).
func (r *Reconciler) checkDeployedVMs(ctx context.Context) []types.ReconciliationResult {
	vms, err := r.store.ListDeployedVMs()
	if err != nil {
		return []types.ReconciliationResult{errResult(CheckDeployedVM, "*", "", err)}
	}

	var results []types.ReconciliationResult
	for _, vm := range vms {
		if vm.Status != types.VMDeployed {
			continue
		}

		adapter, found := r.adapterFor(vm.Platform)
		if !found {
			results = append(results, errResult(CheckDeployedVM, vm.ID, vm.Platform, fmt.Errorf("no adapter registered for platform %q", vm.Platform)))
			continue
		}

		live, liveErr := adapter.GetVMInterfaces(ctx, vm.VMID, vm.PlatformInstance)
		if liveErr != nil {
			results = append(results, errResult(CheckDeployedVM, vm.ID, vm.Platform, liveErr))
			continue
		}
		if len(live) == 0 {
			results = append(results, drift(CheckDeployedVM, vm.ID, vm.Platform, "present", "missing", "VM missing"))
			continue
		}

		var primary *types.VMInterface
		for _, iface := range live {
			if iface.IPAddress != "" {
				primary = iface
				break
			}
		}
		if primary == nil {
			results = append(results, ok(CheckDeployedVM, vm.ID, vm.Platform, vm.IPAddress))
			continue
		}
		if primary.IPAddress != vm.IPAddress {
			expected := vm.IPAddress
			actual := primary.IPAddress
			vm.IPAddress = primary.IPAddress
			if updErr := r.store.UpdateDeployedVM(vm); updErr != nil {
				results = append(results, errResult(CheckDeployedVM, vm.ID, vm.Platform, updErr))
				continue
			}
			results = append(results, drift(CheckDeployedVM, vm.ID, vm.Platform, expected, actual, "IP drifted"))
			continue
		}
		results = append(results, ok(CheckDeployedVM, vm.ID, vm.Platform, vm.IPAddress))
	}
	return results
}
