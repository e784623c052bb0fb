package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/glassdome/pkg/network"
	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/types"
)

// createNetwork allocates an address plan via the network allocator,
// persists a NetworkDefinition, then drives the platform adapter's
// generate_network_config/create_network pair. The mapping row is
// persisted whether or not creation succeeded, so a failed network is
// still visible to the reconciler and to teardown.
func (run *deployRun) createNetwork(ctx context.Context, req types.NetworkRequest) types.TaskResult {
	allocKey := fmt.Sprintf("%s:%s", run.labID, req.Name)
	var alloc *types.LabNetworkAllocation
	var err error
	if req.VLANTag > 0 {
		alloc, err = run.o.allocator.AllocateVLANNetwork(allocKey, req.VLANTag)
	} else {
		alloc, err = run.o.allocator.AllocateLabNetworks(allocKey, []types.SubnetRole{types.SubnetInternal})
	}
	if err != nil {
		return types.TaskResult{Success: false, Error: fmt.Sprintf("allocate network %q: %v", req.Name, err)}
	}
	subnet := alloc.Subnets[types.SubnetInternal]

	def := &types.NetworkDefinition{
		ID:             uuidString(),
		Name:           fmt.Sprintf("%s-%s", run.labID, req.Name),
		CIDR:           subnet.CIDR,
		VLANTag:        req.VLANTag,
		Gateway:        subnet.Gateway,
		Type:           req.Type,
		DHCPEnabled:    req.DHCPEnabled,
		DHCPRangeStart: subnet.DHCPStart,
		DHCPRangeEnd:   subnet.DHCPEnd,
		DNSServers:     req.DNSServers,
		LabID:          run.labID,
		CreatedAt:      time.Now(),
	}
	if err := run.o.store.CreateNetworkDefinition(def); err != nil {
		return types.TaskResult{Success: false, Error: fmt.Sprintf("persist network definition: %v", err)}
	}

	cfg, err := run.o.adapter.GenerateNetworkConfig(def, run.platformInstance)
	if err != nil {
		run.persistMapping(def, cfg, false, err.Error())
		return types.TaskResult{Success: false, Error: fmt.Sprintf("generate_network_config: %v", err)}
	}

	run.mu.Lock()
	run.networks[req.Name] = &networkState{def: def, alloc: alloc, cfg: cfg}
	run.mu.Unlock()

	createErr := run.o.adapter.CreateNetwork(ctx, def, cfg, run.platformInstance)
	provisionErr := ""
	if createErr != nil {
		provisionErr = createErr.Error()
	}
	run.persistMapping(def, cfg, createErr == nil, provisionErr)

	if createErr != nil {
		return types.TaskResult{Success: false, Error: fmt.Sprintf("create_network: %v", createErr)}
	}
	return types.TaskResult{Success: true, Output: def.ID}
}

func (run *deployRun) persistMapping(def *types.NetworkDefinition, cfg platform.NetworkConfig, provisioned bool, provisionErr string) {
	mapping := &types.PlatformNetworkMapping{
		ID:               uuidString(),
		NetworkID:        def.ID,
		Platform:         run.o.adapter.Name(),
		PlatformInstance: run.platformInstance,
		PlatformConfig:   cfg,
		Provisioned:      provisioned,
		ProvisionError:   provisionErr,
	}
	if err := run.o.store.CreatePlatformNetworkMapping(mapping); err != nil {
		run.o.logger.Error().Err(err).Str("network_id", def.ID).Msg("failed to persist platform network mapping")
	}
}

// createVM assigns the VM's IP from its network's subnet, instantiates
// it through the platform adapter, attaches its first interface, and
// registers a DeployedVM row on success (spec.md §4.5 step 3).
func (run *deployRun) createVM(ctx context.Context, req types.VMRequest) types.TaskResult {
	var netState *networkState
	var ipAddress string
	if req.Network != "" {
		run.mu.Lock()
		netState = run.networks[req.Network]
		index := run.networkSeq[req.Network]
		run.networkSeq[req.Network] = index + 1
		run.mu.Unlock()

		if netState == nil {
			return types.TaskResult{Success: false, Error: fmt.Sprintf("vm %q references unknown network %q", req.ID, req.Network)}
		}
		subnet := netState.alloc.Subnets[types.SubnetInternal]
		ip, err := network.VMIPInSubnet(subnet, index)
		if err != nil {
			return types.TaskResult{Success: false, Error: fmt.Sprintf("assign vm ip: %v", err)}
		}
		ipAddress = ip
	}

	spec := platform.VMSpec{
		OSFamily:    req.OSFamily,
		Cores:       req.Cores,
		MemoryMB:    req.MemoryMB,
		DiskGB:      req.DiskGB,
		Users:       req.Users,
		Packages:    req.Packages,
		PostInstall: req.PostInstall,
		Network:     req.Network,
		IPAddress:   ipAddress,
	}
	vmID, err := run.o.adapter.CreateVM(ctx, run.platformInstance, spec)
	if err != nil {
		return types.TaskResult{Success: false, Error: fmt.Sprintf("create_vm: %v", err)}
	}

	if netState != nil {
		if _, err := run.o.adapter.AttachInterface(ctx, vmID, netState.def, netState.cfg, 0, run.platformInstance); err != nil {
			run.o.logger.Warn().Err(err).Str("vm_id", vmID).Msg("attach_interface failed")
		}
	}

	deployed := &types.DeployedVM{
		ID:               uuidString(),
		LabID:            run.labID,
		Name:             req.ID,
		VMID:             vmID,
		Platform:         run.o.adapter.Name(),
		PlatformInstance: run.platformInstance,
		OSFamily:         req.OSFamily,
		Cores:            req.Cores,
		MemoryMB:         req.MemoryMB,
		DiskGB:           req.DiskGB,
		Status:           types.VMDeployed,
		IPAddress:        ipAddress,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := run.o.store.CreateDeployedVM(deployed); err != nil {
		return types.TaskResult{Success: false, Error: fmt.Sprintf("persist deployed vm: %v", err)}
	}

	if netState != nil {
		ifaces, ifErr := run.o.adapter.GetVMInterfaces(ctx, vmID, run.platformInstance)
		if ifErr == nil {
			for _, iface := range ifaces {
				iface.Platform = run.o.adapter.Name()
				iface.PlatformInstance = run.platformInstance
				if err := run.o.store.CreateVMInterface(iface); err != nil {
					run.o.logger.Error().Err(err).Str("vm_id", vmID).Msg("failed to persist vm interface")
				}
			}
		}
	}

	return types.TaskResult{Success: true, Output: vmID}
}

// createUsers, installPackages and postConfigure are out of scope for
// what they actually do on the guest; the orchestrator only sequences
// them after VM creation, matching spec.md §4.5's treatment of
// post-deployment work in general.
func (run *deployRun) createUsers(ctx context.Context, p usersTaskPayload) types.TaskResult {
	run.o.logger.Info().Str("vm_id", p.vmID).Int("count", len(p.users)).Msg("creating user accounts")
	return types.TaskResult{Success: true, Output: map[string]int{"users_created": len(p.users)}}
}

func (run *deployRun) installPackages(ctx context.Context, p packagesTaskPayload) types.TaskResult {
	run.o.logger.Info().Str("vm_id", p.vmID).Int("count", len(p.packages)).Msg("installing packages")
	return types.TaskResult{Success: true, Output: map[string]int{"packages_installed": len(p.packages)}}
}

func (run *deployRun) postConfigure(ctx context.Context, p configureTaskPayload) types.TaskResult {
	run.o.logger.Info().Str("vm_id", p.vmID).Int("scripts", len(p.postInstall)).Msg("running post-configure scripts")
	return types.TaskResult{Success: true, Output: map[string]int{"scripts_run": len(p.postInstall)}}
}
