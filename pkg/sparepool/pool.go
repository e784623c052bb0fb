// Package sparepool implements the Hot Spare Pool: a self-replenishing
// inventory of pre-booted VMs per OS family so a mission can acquire one
// in constant time instead of waiting out a clone-and-boot cycle.
package sparepool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cilium/workerpool"
	"github.com/cuemby/glassdome/pkg/errs"
	"github.com/cuemby/glassdome/pkg/health"
	"github.com/cuemby/glassdome/pkg/log"
	"github.com/cuemby/glassdome/pkg/metrics"
	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/storage"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// consecutiveFailureThreshold is the number of failed ICMP probes that
// retires a ready spare to failed (spec.md §4.2 maintenance loop item 3).
const consecutiveFailureThreshold = 3

// PoolStatus reports per-OS-family counts by state for the whole pool.
type PoolStatus struct {
	Families map[string]FamilyStatus
}

// FamilyStatus is one OS family's slice of PoolStatus.
type FamilyStatus struct {
	Provisioning int
	Booting      int
	Ready        int
	InUse        int
	Failed       int
	Min          int
	Max          int
	IPRangeStart string
	IPRangeEnd   string
}

// Pool is the Hot Spare Pool manager. One Pool instance owns one
// platform instance's worth of spares across all configured OS families.
type Pool struct {
	store   storage.Store
	adapter platform.Adapter
	logger  zerolog.Logger

	mu      sync.Mutex
	configs map[string]PoolConfig

	wp      *workerpool.WorkerPool
	started bool
	submitN int
}

// New creates a Pool over the given configs, keyed by OS family.
func New(store storage.Store, adapter platform.Adapter, configs map[string]PoolConfig) *Pool {
	return &Pool{
		store:   store,
		adapter: adapter,
		configs: configs,
		logger:  log.WithComponent("sparepool"),
	}
}

// Start launches the background maintenance loop. Idempotent.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.wp = workerpool.New(4)
	if err := p.wp.Submit("maintenance", func(taskCtx context.Context) error {
		return p.maintenanceLoop(taskCtx)
	}); err != nil {
		return fmt.Errorf("submit maintenance loop: %w", err)
	}
	p.started = true
	p.logger.Info().Msg("hot spare pool started")
	return nil
}

// Stop cancels the maintenance loop and drains in-flight detached tasks.
// Idempotent.
func (p *Pool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	return p.wp.Close()
}

// minInterval is the maintenance loop's tick cadence: the shortest
// configured health-check interval across all families, so no family
// waits longer than its own setting.
func (p *Pool) minInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	interval := 60 * time.Second
	first := true
	for _, cfg := range p.configs {
		if cfg.HealthCheckInterval <= 0 {
			continue
		}
		if first || cfg.HealthCheckInterval < interval {
			interval = cfg.HealthCheckInterval
			first = false
		}
	}
	return interval
}

func (p *Pool) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.minInterval())
	defer ticker.Stop()

	p.runMaintenanceOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.runMaintenanceOnce(ctx)
		}
	}
}

func (p *Pool) runMaintenanceOnce(ctx context.Context) {
	p.mu.Lock()
	configs := make([]PoolConfig, 0, len(p.configs))
	for _, cfg := range p.configs {
		configs = append(configs, cfg)
	}
	p.mu.Unlock()

	for _, cfg := range configs {
		p.topUpFamily(ctx, cfg)
		p.healthCheckFamily(ctx, cfg)
	}
}

// topUpFamily enqueues replacements until the family's (ready +
// provisioning + booting) count reaches its configured minimum, capped
// at maximum (spec.md §4.2 maintenance loop items 1-2).
func (p *Pool) topUpFamily(ctx context.Context, cfg PoolConfig) {
	spares, err := p.store.ListHotSparesByPool(p.adapter.Name(), cfg.PlatformInstance, cfg.OSFamily)
	if err != nil {
		p.logger.Error().Err(err).Str("os_family", cfg.OSFamily).Msg("list hot spares failed")
		return
	}

	live := 0
	inUseIPs := make(map[string]bool, len(spares))
	for _, sp := range spares {
		switch sp.Status {
		case types.SpareProvisioning, types.SpareBooting, types.SpareReady:
			live++
		}
		if sp.Status != types.SpareDestroying {
			inUseIPs[sp.IPAddress] = true
		}
	}

	needed := cfg.MinSpares - live
	if needed <= 0 {
		return
	}
	room := cfg.MaxSpares - live
	if needed > room {
		needed = room
	}
	for i := 0; i < needed; i++ {
		p.enqueueReplacement(ctx, cfg, inUseIPs)
	}
}

// enqueueReplacement allocates an IP, requests a VM id, inserts a
// provisioning row, and dispatches the clone-and-wait as a detached
// workerpool task so the maintenance loop is never blocked by
// provisioning I/O.
func (p *Pool) enqueueReplacement(ctx context.Context, cfg PoolConfig, inUseIPs map[string]bool) {
	ip, err := firstFreeIP(cfg.IPRangeStart, cfg.IPRangeEnd, inUseIPs)
	if err != nil {
		p.logger.Error().Err(err).Str("os_family", cfg.OSFamily).Msg("no free ip for replacement spare")
		return
	}
	inUseIPs[ip] = true

	vmID, err := p.adapter.NextVMID(ctx, cfg.PlatformInstance)
	if err != nil {
		p.logger.Error().Err(err).Msg("next_vm_id failed")
		return
	}

	spare := &types.HotSpare{
		ID:               uuid.NewString(),
		VMID:             vmID,
		Platform:         p.adapter.Name(),
		PlatformInstance: cfg.PlatformInstance,
		OSFamily:         cfg.OSFamily,
		TemplateID:       cfg.TemplateID,
		IPAddress:        ip,
		Status:           types.SpareProvisioning,
		CreatedAt:        time.Now(),
	}
	if err := p.store.CreateHotSpare(spare); err != nil {
		p.logger.Error().Err(err).Msg("create hot spare row failed")
		return
	}

	p.dispatch("provision-"+spare.ID, func(taskCtx context.Context) error {
		p.provisionSpare(taskCtx, cfg, spare)
		return nil
	})
}

func (p *Pool) provisionSpare(ctx context.Context, cfg PoolConfig, spare *types.HotSpare) {
	timer := metrics.NewTimer()
	spare.Status = types.SpareBooting
	_ = p.store.UpdateHotSpare(spare)

	vmID, err := p.adapter.CreateVM(ctx, cfg.PlatformInstance, platform.VMSpec{
		OSFamily:  cfg.OSFamily,
		Cores:     cfg.Cores,
		MemoryMB:  cfg.MemoryMB,
		DiskGB:    cfg.DiskGB,
		IPAddress: spare.IPAddress,
	})
	timer.ObserveDuration(metrics.SparePoolProvisionDuration)
	if err != nil {
		spare.Status = types.SpareFailed
		_ = p.store.UpdateHotSpare(spare)
		p.logger.Error().Err(err).Str("spare_id", spare.ID).Msg("create_vm failed, spare retired")
		return
	}

	spare.VMID = vmID
	spare.Status = types.SpareReady
	spare.ReadyAt = time.Now()
	_ = p.store.UpdateHotSpare(spare)
}

// Acquire atomically claims the oldest ready spare matching
// (os_family, platform instance of this pool) and dispatches a
// replacement, re-checking the family's live count first so an
// acquisition spike cannot enqueue excess replacements.
func (p *Pool) Acquire(ctx context.Context, osFamily, missionID string) (*types.HotSpare, error) {
	p.mu.Lock()
	cfg, ok := p.configs[osFamily]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("acquire: unconfigured os family %q", osFamily)
	}

	spare, err := p.store.AcquireSpare(p.adapter.Name(), cfg.PlatformInstance, osFamily, missionID)
	if err != nil {
		if errors.Is(err, errs.ErrPoolExhausted) {
			metrics.SparePoolAcquireTotal.WithLabelValues(osFamily, "exhausted").Inc()
			return nil, err
		}
		metrics.SparePoolAcquireTotal.WithLabelValues(osFamily, "error").Inc()
		return nil, err
	}

	metrics.SparePoolAcquireTotal.WithLabelValues(osFamily, "acquired").Inc()
	p.logger.Info().Str("spare_id", spare.ID).Str("mission_id", missionID).Msg("spare acquired")

	p.dispatch("replace-"+spare.ID, func(taskCtx context.Context) error {
		p.topUpFamily(taskCtx, cfg)
		return nil
	})

	return spare, nil
}

// Release transitions a spare to destroying and tears it down via the
// platform adapter. The reset path (destroy=false) is reserved per
// spec.md §9 Design Notes; implementations MAY fall through to destroy
// until reset exists, and this one does.
func (p *Pool) Release(ctx context.Context, spareID string, destroy bool) error {
	spare, err := p.store.GetHotSpare(spareID)
	if err != nil {
		return err
	}

	spare.Status = types.SpareDestroying
	if err := p.store.UpdateHotSpare(spare); err != nil {
		return err
	}

	if !destroy {
		p.logger.Info().Str("spare_id", spareID).Msg("reset release is not implemented; destroying spare instead")
	}
	if err := p.adapter.StopVM(ctx, spare.PlatformInstance, spare.VMID); err != nil {
		p.logger.Warn().Err(err).Str("spare_id", spareID).Msg("stop_vm failed during release")
	}
	if err := p.adapter.DeleteVM(ctx, spare.PlatformInstance, spare.VMID); err != nil {
		return errs.NewPlatformError("delete_vm", err)
	}

	return p.store.DeleteHotSpare(spareID)
}

// Status reports per-OS-family counts by state.
func (p *Pool) Status() (PoolStatus, error) {
	p.mu.Lock()
	configs := make(map[string]PoolConfig, len(p.configs))
	for k, v := range p.configs {
		configs[k] = v
	}
	p.mu.Unlock()

	status := PoolStatus{Families: make(map[string]FamilyStatus, len(configs))}
	for family, cfg := range configs {
		spares, err := p.store.ListHotSparesByPool(p.adapter.Name(), cfg.PlatformInstance, family)
		if err != nil {
			return PoolStatus{}, err
		}
		fs := FamilyStatus{Min: cfg.MinSpares, Max: cfg.MaxSpares, IPRangeStart: cfg.IPRangeStart, IPRangeEnd: cfg.IPRangeEnd}
		for _, sp := range spares {
			switch sp.Status {
			case types.SpareProvisioning:
				fs.Provisioning++
			case types.SpareBooting:
				fs.Booting++
			case types.SpareReady:
				fs.Ready++
			case types.SpareInUse:
				fs.InUse++
			case types.SpareFailed:
				fs.Failed++
			}
		}
		status.Families[family] = fs
		metrics.SparePoolCount.WithLabelValues(cfg.PlatformInstance, family, string(types.SpareReady)).Set(float64(fs.Ready))
		metrics.SparePoolCount.WithLabelValues(cfg.PlatformInstance, family, string(types.SpareInUse)).Set(float64(fs.InUse))
	}
	return status, nil
}

// healthCheckFamily probes every ready spare once via ICMP, incrementing
// or resetting its consecutive-failure counter. Three consecutive
// failures retires the spare to failed (spec.md §4.2 maintenance loop
// item 3).
func (p *Pool) healthCheckFamily(ctx context.Context, cfg PoolConfig) {
	spares, err := p.store.ListHotSparesByPool(p.adapter.Name(), cfg.PlatformInstance, cfg.OSFamily)
	if err != nil {
		return
	}
	for _, sp := range spares {
		if sp.Status != types.SpareReady {
			continue
		}
		spare := sp
		p.dispatch("healthcheck-"+spare.ID, func(taskCtx context.Context) error {
			p.checkSpareOnce(taskCtx, spare)
			return nil
		})
	}
}

func (p *Pool) checkSpareOnce(ctx context.Context, spare *types.HotSpare) {
	checker := health.NewICMPChecker(spare.IPAddress)
	result := checker.Check(ctx)

	if result.Healthy {
		spare.HealthCheckFailures = 0
	} else {
		spare.HealthCheckFailures++
		metrics.SparePoolHealthCheckFailuresTotal.Inc()
		if spare.HealthCheckFailures >= consecutiveFailureThreshold {
			spare.Status = types.SpareFailed
			p.logger.Warn().Str("spare_id", spare.ID).Msg("spare failed health check threshold, retiring")
		}
	}
	_ = p.store.UpdateHotSpare(spare)
}

// dispatch submits a detached workerpool task under a unique name;
// cilium/workerpool requires distinct names per submission.
func (p *Pool) dispatch(name string, task func(context.Context) error) {
	p.mu.Lock()
	p.submitN++
	uniqueName := fmt.Sprintf("%s-%d", name, p.submitN)
	wp := p.wp
	p.mu.Unlock()

	if wp == nil {
		return
	}
	if err := wp.Submit(uniqueName, task); err != nil {
		p.logger.Warn().Err(err).Str("task", uniqueName).Msg("dispatch failed")
	}
}
