package storage

import (
	"github.com/cuemby/glassdome/pkg/types"
)

// Store defines the persistence contract for Glassdome's entity rows. It
// is implemented by BoltStore; tests and embedders depend on this
// interface, not the BoltDB types directly.
type Store interface {
	// Networks
	CreateNetworkDefinition(n *types.NetworkDefinition) error
	GetNetworkDefinition(id string) (*types.NetworkDefinition, error)
	GetNetworkDefinitionByName(name string) (*types.NetworkDefinition, error)
	ListNetworkDefinitions() ([]*types.NetworkDefinition, error)
	ListNetworkDefinitionsByLab(labID string) ([]*types.NetworkDefinition, error)
	UpdateNetworkDefinition(n *types.NetworkDefinition) error
	DeleteNetworkDefinition(id string) error

	// Platform network mappings
	CreatePlatformNetworkMapping(m *types.PlatformNetworkMapping) error
	GetPlatformNetworkMapping(id string) (*types.PlatformNetworkMapping, error)
	ListPlatformNetworkMappingsByNetwork(networkID string) ([]*types.PlatformNetworkMapping, error)
	ListAllPlatformNetworkMappings() ([]*types.PlatformNetworkMapping, error)
	UpdatePlatformNetworkMapping(m *types.PlatformNetworkMapping) error
	DeletePlatformNetworkMapping(id string) error
	DeletePlatformNetworkMappingsByNetwork(networkID string) error

	// Deployed VMs
	CreateDeployedVM(vm *types.DeployedVM) error
	GetDeployedVM(id string) (*types.DeployedVM, error)
	GetDeployedVMByPlatformID(platform, instance, vmID string) (*types.DeployedVM, error)
	ListDeployedVMs() ([]*types.DeployedVM, error)
	ListDeployedVMsByLab(labID string) ([]*types.DeployedVM, error)
	UpdateDeployedVM(vm *types.DeployedVM) error
	DeleteDeployedVM(id string) error

	// VM interfaces
	CreateVMInterface(iface *types.VMInterface) error
	GetVMInterface(id string) (*types.VMInterface, error)
	ListVMInterfacesByVM(vmID string) ([]*types.VMInterface, error)
	ListAllVMInterfaces() ([]*types.VMInterface, error)
	UpdateVMInterface(iface *types.VMInterface) error
	DeleteVMInterfacesByVM(vmID string) error

	// Hot spares
	CreateHotSpare(spare *types.HotSpare) error
	GetHotSpare(id string) (*types.HotSpare, error)
	ListHotSpares() ([]*types.HotSpare, error)
	ListHotSparesByPool(platform, instance, osFamily string) ([]*types.HotSpare, error)
	UpdateHotSpare(spare *types.HotSpare) error
	DeleteHotSpare(id string) error

	// AcquireSpare atomically selects and claims the oldest ready spare
	// matching (platform, instance, osFamily), flipping it to in-use and
	// stamping AssignedToMission/AssignedAt in a single transaction. It
	// returns errs.ErrPoolExhausted if no ready spare matches.
	AcquireSpare(platform, instance, osFamily, missionID string) (*types.HotSpare, error)

	Close() error
}
