// Package platform defines the Platform Adapter Interface collaborators
// that turn logical networks and VM requests into platform-specific
// resources. The core never talks to a hypervisor directly; it calls
// through an Adapter.
package platform

import (
	"context"

	"github.com/cuemby/glassdome/pkg/types"
)

// NetworkConfig is the opaque platform-specific blob generate_network_config
// produces for a logical network. Adapters decide its shape; the core only
// threads it through create_network/delete_network unmodified.
type NetworkConfig map[string]string

// VMSpec carries the sizing and provisioning fields an adapter needs to
// instantiate a VM, already resolved from a VMRequest plus its assigned
// network and IP.
type VMSpec struct {
	OSFamily    string
	Cores       int
	MemoryMB    int
	DiskGB      int
	Users       []types.UserAccount
	Packages    []string
	PostInstall []string
	Network     string
	IPAddress   string
}

// Adapter is the collaborator contract every platform implementation
// (Lima, and in production deployments Proxmox/AWS/etc.) must satisfy.
// Adapters MUST be safe to call concurrently; the engine dispatches
// adapter calls from many goroutines at once.
type Adapter interface {
	// GenerateNetworkConfig is a pure function producing the
	// platform-specific config for a logical network. It performs no I/O.
	GenerateNetworkConfig(network *types.NetworkDefinition, instance string) (NetworkConfig, error)

	// CreateNetwork and DeleteNetwork are idempotent upon retry.
	CreateNetwork(ctx context.Context, network *types.NetworkDefinition, cfg NetworkConfig, instance string) error
	DeleteNetwork(ctx context.Context, cfg NetworkConfig, instance string) error

	// NetworkExists reports whether a previously created network is
	// still present on the platform, for the reconciler's drift check.
	NetworkExists(ctx context.Context, cfg NetworkConfig, instance string) (bool, error)

	// AttachInterface and DetachInterface wire a VM into a network.
	AttachInterface(ctx context.Context, vmID string, network *types.NetworkDefinition, cfg NetworkConfig, index int, instance string) (*types.VMInterface, error)
	DetachInterface(ctx context.Context, vmID string, index int, instance string) error

	// GetVMInterfaces returns the live interface records for a VM.
	GetVMInterfaces(ctx context.Context, vmID string, instance string) ([]*types.VMInterface, error)

	// NextVMID returns an identifier unique on this platform instance at
	// time of call.
	NextVMID(ctx context.Context, instance string) (string, error)

	// CreateVM instantiates a VM from spec, returning its platform id.
	CreateVM(ctx context.Context, instance string, spec VMSpec) (vmID string, err error)

	// StopVM and DeleteVM handle teardown. DeleteVM must succeed even if
	// the VM was already stopped.
	StopVM(ctx context.Context, instance, vmID string) error
	DeleteVM(ctx context.Context, instance, vmID string) error

	// Name identifies this adapter's platform tag (e.g. "lima").
	Name() string
}
