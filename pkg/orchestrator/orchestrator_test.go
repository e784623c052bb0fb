package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cuemby/glassdome/pkg/network"
	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/storage"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is an in-memory platform.Adapter double recording the VMs
// it creates, with an optional CreateVM failure injected by OS family.
type fakeAdapter struct {
	mu       sync.Mutex
	nextVMID int
	failVM   string // OSFamily that should fail CreateVM

	createdVMs []string
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{} }

func (f *fakeAdapter) GenerateNetworkConfig(n *types.NetworkDefinition, instance string) (platform.NetworkConfig, error) {
	return platform.NetworkConfig{"interface": "br-" + n.ID}, nil
}
func (f *fakeAdapter) CreateNetwork(ctx context.Context, n *types.NetworkDefinition, cfg platform.NetworkConfig, instance string) error {
	return nil
}
func (f *fakeAdapter) DeleteNetwork(ctx context.Context, cfg platform.NetworkConfig, instance string) error {
	return nil
}
func (f *fakeAdapter) NetworkExists(ctx context.Context, cfg platform.NetworkConfig, instance string) (bool, error) {
	return true, nil
}
func (f *fakeAdapter) AttachInterface(ctx context.Context, vmID string, n *types.NetworkDefinition, cfg platform.NetworkConfig, index int, instance string) (*types.VMInterface, error) {
	return &types.VMInterface{ID: "if-" + vmID, VMID: vmID, InterfaceIndex: index}, nil
}
func (f *fakeAdapter) DetachInterface(ctx context.Context, vmID string, index int, instance string) error {
	return nil
}
func (f *fakeAdapter) GetVMInterfaces(ctx context.Context, vmID string, instance string) ([]*types.VMInterface, error) {
	return []*types.VMInterface{{ID: "if-" + vmID, VMID: vmID, InterfaceIndex: 0, IPAddress: "10.50.0.10"}}, nil
}
func (f *fakeAdapter) NextVMID(ctx context.Context, instance string) (string, error) { return "", nil }
func (f *fakeAdapter) CreateVM(ctx context.Context, instance string, spec platform.VMSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if spec.OSFamily == f.failVM {
		return "", fmt.Errorf("injected failure for %s", spec.OSFamily)
	}
	f.nextVMID++
	id := fmt.Sprintf("vm-%d", f.nextVMID)
	f.createdVMs = append(f.createdVMs, id)
	return id, nil
}
func (f *fakeAdapter) StopVM(ctx context.Context, instance, vmID string) error   { return nil }
func (f *fakeAdapter) DeleteVM(ctx context.Context, instance, vmID string) error { return nil }
func (f *fakeAdapter) Name() string                                             { return "fake" }

func newTestOrchestrator(t *testing.T, adapter *fakeAdapter) (*Orchestrator, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	o := New(store, adapter, network.NewAllocator(), "glassdome")
	return o, store
}

func TestDeployMultiVMMultiNetworkSucceeds(t *testing.T) {
	adapter := newFakeAdapter()
	o, store := newTestOrchestrator(t, adapter)

	spec := types.LabSpec{
		Name: "lab-1",
		Networks: []types.NetworkRequest{
			{Name: "dmz", Type: types.NetworkIsolated},
			{Name: "internal", Type: types.NetworkIsolated},
		},
		VMs: []types.VMRequest{
			{ID: "web", OSFamily: "ubuntu", Network: "dmz"},
			{ID: "db", OSFamily: "ubuntu", Network: "internal", DependsOn: []string{"web"}},
		},
	}

	report, err := o.Deploy(context.Background(), "lab-1", spec)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 4, report.Total) // 2 networks + 2 VMs
	assert.Equal(t, 4, report.Completed)

	vms, err := store.ListDeployedVMsByLab("lab-1")
	require.NoError(t, err)
	assert.Len(t, vms, 2)

	for _, vm := range vms {
		assert.NotEmpty(t, vm.IPAddress)
		assert.Equal(t, types.VMDeployed, vm.Status)
	}
}

func TestDeployVMReferencingUnknownNetworkFailsGracefully(t *testing.T) {
	adapter := newFakeAdapter()
	o, _ := newTestOrchestrator(t, adapter)

	spec := types.LabSpec{
		Name: "lab-2",
		VMs: []types.VMRequest{
			{ID: "web", OSFamily: "ubuntu", Network: "does-not-exist"},
		},
	}

	report, err := o.Deploy(context.Background(), "lab-2", spec)
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.NotEmpty(t, report.Error)
}

func TestDeployDependsOnDisambiguatesNetworkVsVM(t *testing.T) {
	adapter := newFakeAdapter()
	o, _ := newTestOrchestrator(t, adapter)

	spec := types.LabSpec{
		Name: "lab-3",
		Networks: []types.NetworkRequest{
			{Name: "core", Type: types.NetworkIsolated},
		},
		VMs: []types.VMRequest{
			{ID: "router", OSFamily: "ubuntu", Network: "core"},
			// depends on "core" (a network name) and "router" (a VM id)
			{ID: "host", OSFamily: "ubuntu", Network: "core", DependsOn: []string{"core", "router"}},
		},
	}

	report, err := o.Deploy(context.Background(), "lab-3", spec)
	require.NoError(t, err)
	assert.True(t, report.Success)

	hostEntry, ok := report.Tasks["vm_host"]
	require.True(t, ok)
	assert.Equal(t, types.TaskCompleted, hostEntry.State)
}

func TestDeployUserPackageConfigureTailChain(t *testing.T) {
	adapter := newFakeAdapter()
	o, _ := newTestOrchestrator(t, adapter)

	spec := types.LabSpec{
		Name: "lab-4",
		VMs: []types.VMRequest{
			{
				ID:          "app",
				OSFamily:    "ubuntu",
				Users:       []types.UserAccount{{Username: "student"}},
				Packages:    []string{"nmap"},
				PostInstall: []string{"echo hi"},
			},
		},
	}

	report, err := o.Deploy(context.Background(), "lab-4", spec)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 4, report.Total) // vm + users + packages + configure

	for _, id := range []string{"vm_app", "users_app", "packages_app", "configure_app"} {
		entry, ok := report.Tasks[id]
		require.True(t, ok, "missing task %s", id)
		assert.Equal(t, types.TaskCompleted, entry.State)
	}
}

func TestDeployPartialFailureLeavesCompletedVMRows(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failVM = "windows10"
	o, store := newTestOrchestrator(t, adapter)

	spec := types.LabSpec{
		Name:     "lab-5",
		FailFast: false,
		VMs: []types.VMRequest{
			{ID: "good", OSFamily: "ubuntu"},
			{ID: "bad", OSFamily: "windows10"},
		},
	}

	report, err := o.Deploy(context.Background(), "lab-5", spec)
	require.NoError(t, err)
	assert.False(t, report.Success)

	vms, err := store.ListDeployedVMsByLab("lab-5")
	require.NoError(t, err)
	require.Len(t, vms, 1)
	assert.Equal(t, "good", vms[0].Name)
}

func TestDeployPostDeployScriptsOnlyRunAfterSuccess(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failVM = "windows10"
	o, _ := newTestOrchestrator(t, adapter)

	spec := types.LabSpec{
		Name: "lab-6",
		VMs: []types.VMRequest{
			{ID: "bad", OSFamily: "windows10"},
		},
		PostDeployScripts: []string{"echo should-not-run"},
	}

	report, err := o.Deploy(context.Background(), "lab-6", spec)
	require.NoError(t, err)
	assert.False(t, report.Success)
	// no assertion surface for script execution beyond logging; the
	// important property is Deploy doesn't panic or block on a failed graph.
}
