package sparepool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/glassdome/pkg/errs"
	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/storage"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is an in-memory platform.Adapter test double; real Lima
// cannot run in unit tests.
type fakeAdapter struct {
	mu       sync.Mutex
	nextID   uint64
	created  []platform.VMSpec
	stopped  []string
	deleted  []string
	failNext bool
}

func (f *fakeAdapter) GenerateNetworkConfig(n *types.NetworkDefinition, instance string) (platform.NetworkConfig, error) {
	return platform.NetworkConfig{}, nil
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
	return &types.VMInterface{VMID: vmID, InterfaceIndex: index}, nil
}
func (f *fakeAdapter) DetachInterface(ctx context.Context, vmID string, index int, instance string) error {
	return nil
}
func (f *fakeAdapter) GetVMInterfaces(ctx context.Context, vmID string, instance string) ([]*types.VMInterface, error) {
	return nil, nil
}
func (f *fakeAdapter) NextVMID(ctx context.Context, instance string) (string, error) {
	id := atomic.AddUint64(&f.nextID, 1)
	return uuid.NewString() + "-" + time.Duration(id).String(), nil
}
func (f *fakeAdapter) CreateVM(ctx context.Context, instance string, spec platform.VMSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", errs.NewPlatformError("create_vm", context.DeadlineExceeded)
	}
	f.created = append(f.created, spec)
	return uuid.NewString(), nil
}
func (f *fakeAdapter) StopVM(ctx context.Context, instance, vmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, vmID)
	return nil
}
func (f *fakeAdapter) DeleteVM(ctx context.Context, instance, vmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, vmID)
	return nil
}
func (f *fakeAdapter) Name() string { return "fake" }

func newTestPool(t *testing.T) (*Pool, storage.Store, *fakeAdapter) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	adapter := &fakeAdapter{}
	configs := map[string]PoolConfig{
		"ubuntu": {
			OSFamily:            "ubuntu",
			PlatformInstance:    "glassdome",
			TemplateID:          "9003",
			MinSpares:           2,
			MaxSpares:           4,
			IPRangeStart:        "10.9.0.10",
			IPRangeEnd:          "10.9.0.20",
			HealthCheckInterval: time.Hour,
		},
	}
	pool := New(store, adapter, configs)
	return pool, store, adapter
}

func seedReadySpare(t *testing.T, store storage.Store, osFamily, ip string, readyAt time.Time) *types.HotSpare {
	t.Helper()
	sp := &types.HotSpare{
		ID:               uuid.NewString(),
		VMID:             uuid.NewString(),
		Platform:         "fake",
		PlatformInstance: "glassdome",
		OSFamily:         osFamily,
		IPAddress:        ip,
		Status:           types.SpareReady,
		CreatedAt:        readyAt,
		ReadyAt:          readyAt,
	}
	require.NoError(t, store.CreateHotSpare(sp))
	return sp
}

func TestAcquireReturnsOldestReadyAndDispatchesReplacement(t *testing.T) {
	pool, store, _ := newTestPool(t)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	older := seedReadySpare(t, store, "ubuntu", "10.9.0.10", time.Now().Add(-time.Hour))
	seedReadySpare(t, store, "ubuntu", "10.9.0.11", time.Now())

	spare, err := pool.Acquire(context.Background(), "ubuntu", "mission-1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, spare.ID)
	assert.Equal(t, types.SpareInUse, spare.Status)
	assert.Equal(t, "mission-1", spare.AssignedToMission)
}

func TestAcquireUnconfiguredFamilyErrors(t *testing.T) {
	pool, _, _ := newTestPool(t)
	_, err := pool.Acquire(context.Background(), "macos", "mission-1")
	assert.Error(t, err)
}

func TestAcquireExhaustedReturnsErrPoolExhausted(t *testing.T) {
	pool, _, _ := newTestPool(t)
	_, err := pool.Acquire(context.Background(), "ubuntu", "mission-1")
	assert.ErrorIs(t, err, errs.ErrPoolExhausted)
}

func TestConcurrentAcquireNeverDoubleClaims(t *testing.T) {
	pool, store, _ := newTestPool(t)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	const n = 10
	for i := 0; i < n; i++ {
		seedReadySpare(t, store, "ubuntu", "10.9.0.1"+string(rune('0'+i)), time.Now().Add(time.Duration(-i)*time.Minute))
	}

	type result struct {
		spare *types.HotSpare
		err   error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func() {
			sp, err := pool.Acquire(context.Background(), "ubuntu", "mission")
			results <- result{sp, err}
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.False(t, seen[r.spare.ID], "spare %s claimed twice", r.spare.ID)
		seen[r.spare.ID] = true
	}
}

func TestTopUpFamilyRespectsMinAndMax(t *testing.T) {
	pool, store, adapter := newTestPool(t)

	pool.topUpFamily(context.Background(), pool.configs["ubuntu"])

	spares, err := store.ListHotSparesByPool("fake", "glassdome", "ubuntu")
	require.NoError(t, err)
	assert.Len(t, spares, 2, "should top up to MinSpares")

	pool.mu.Lock()
	pool.wp = nil
	pool.mu.Unlock()
	for _, sp := range spares {
		sp.Status = types.SpareProvisioning
		require.NoError(t, store.UpdateHotSpare(sp))
	}
	pool.topUpFamily(context.Background(), pool.configs["ubuntu"])

	spares, err = store.ListHotSparesByPool("fake", "glassdome", "ubuntu")
	require.NoError(t, err)
	assert.Len(t, spares, 2, "already at minimum, no new rows enqueued")
	assert.Empty(t, adapter.created, "enqueueReplacement needs the workerpool, not invoked with nil wp")
}

func TestReleaseTearsDownThroughAdapter(t *testing.T) {
	pool, store, adapter := newTestPool(t)
	spare := seedReadySpare(t, store, "ubuntu", "10.9.0.10", time.Now())
	spare.Status = types.SpareInUse
	require.NoError(t, store.UpdateHotSpare(spare))

	require.NoError(t, pool.Release(context.Background(), spare.ID, true))

	assert.Contains(t, adapter.stopped, spare.VMID)
	assert.Contains(t, adapter.deleted, spare.VMID)
	_, err := store.GetHotSpare(spare.ID)
	assert.Error(t, err)
}

func TestStatusCountsByState(t *testing.T) {
	pool, store, _ := newTestPool(t)
	seedReadySpare(t, store, "ubuntu", "10.9.0.10", time.Now())
	inUse := seedReadySpare(t, store, "ubuntu", "10.9.0.11", time.Now())
	inUse.Status = types.SpareInUse
	require.NoError(t, store.UpdateHotSpare(inUse))

	status, err := pool.Status()
	require.NoError(t, err)
	fs := status.Families["ubuntu"]
	assert.Equal(t, 1, fs.Ready)
	assert.Equal(t, 1, fs.InUse)
	assert.Equal(t, 2, fs.Min)
	assert.Equal(t, 4, fs.Max)
}
