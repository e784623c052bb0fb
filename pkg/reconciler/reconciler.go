package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/glassdome/pkg/log"
	"github.com/cuemby/glassdome/pkg/metrics"
	"github.com/cuemby/glassdome/pkg/platform"
	"github.com/cuemby/glassdome/pkg/storage"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultInterval and DefaultHistorySize match spec.md §4.4's stated
// defaults (30 second cadence, last 1000 results retained).
const (
	DefaultInterval    = 30 * time.Second
	DefaultHistorySize = 1000
)

// CheckKind names which of the three checks produced a
// types.ReconciliationResult, and is stored verbatim in its ResourceKind
// field.
type CheckKind string

const (
	CheckNetwork     CheckKind = "network"
	CheckVMInterface CheckKind = "vm_interface"
	CheckDeployedVM  CheckKind = "deployed_vm"
)

// DriftCallback is invoked for every drifted result. Callbacks are
// best-effort: their errors are logged but never affect the loop.
type DriftCallback func(types.ReconciliationResult)

// Status reports the reconciler's current running state for external
// inspection (spec.md §4.4 "expose current status").
type Status struct {
	Running      bool
	Interval     time.Duration
	LastRun      time.Time
	TotalChecks  int64
	RecentDrifts []types.ReconciliationResult
}

// Reconciler closes the gap between recorded state and platform reality.
// It does not self-heal aggressively: it records drift, logs, and
// refreshes only the small set of fields explicitly named safe to
// refresh (an interface's or VM's observed IP).
type Reconciler struct {
	store    storage.Store
	adapters map[string]platform.Adapter // keyed by adapter.Name()
	logger   zerolog.Logger
	interval time.Duration

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastRun     time.Time
	totalChecks int64
	ring        []types.ReconciliationResult
	ringPos     int
	ringFull    bool

	callbacksMu sync.Mutex
	callbacks   []DriftCallback
}

// New creates a Reconciler. adapters maps each platform name (as
// returned by Adapter.Name()) to the adapter instance driving it; a
// deployment with one platform instance needs only one entry.
func New(store storage.Store, adapters map[string]platform.Adapter) *Reconciler {
	return &Reconciler{
		store:    store,
		adapters: adapters,
		logger:   log.WithComponent("reconciler"),
		interval: DefaultInterval,
		ring:     make([]types.ReconciliationResult, DefaultHistorySize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// OnDrift registers a callback invoked for every drifted result.
func (r *Reconciler) OnDrift(cb DriftCallback) {
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start begins the reconciliation loop. Idempotent.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
}

// Stop halts the reconciliation loop and waits for the in-flight cycle
// to finish. Idempotent.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	r.mu.Unlock()
	<-done
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("state reconciler started")
	r.runCycle(ctx)

	for {
		select {
		case <-ticker.C:
			r.runCycle(ctx)
		case <-r.stopCh:
			r.logger.Info().Msg("state reconciler stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCycle performs one reconciliation pass. Cycle timing is regulated
// by the fixed ticker, not by how long the pass itself takes.
func (r *Reconciler) runCycle(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	results := make([]types.ReconciliationResult, 0, 32)
	results = append(results, r.checkNetworksSafely(ctx)...)
	results = append(results, r.checkVMInterfacesSafely(ctx)...)
	results = append(results, r.checkDeployedVMsSafely(ctx)...)

	r.mu.Lock()
	r.lastRun = time.Now()
	r.totalChecks += int64(len(results))
	for _, res := range results {
		r.ring[r.ringPos] = res
		r.ringPos = (r.ringPos + 1) % len(r.ring)
		if r.ringPos == 0 {
			r.ringFull = true
		}
	}
	r.mu.Unlock()

	for _, res := range results {
		if res.Drifted {
			r.logger.Warn().
				Str("kind", res.ResourceKind).
				Str("resource_id", res.ResourceID).
				Str("expected", res.Expected).
				Str("actual", res.Actual).
				Str("detail", res.Detail).
				Msg("drift detected")
			metrics.ReconcilerDriftTotal.WithLabelValues(res.ResourceKind).Inc()
			r.notify(res)
		}
	}
}

func (r *Reconciler) notify(res types.ReconciliationResult) {
	r.callbacksMu.Lock()
	cbs := append([]DriftCallback(nil), r.callbacks...)
	r.callbacksMu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error().Interface("panic", rec).Msg("drift callback panicked")
				}
			}()
			cb(res)
		}()
	}
}

// errResult wraps an unexpected per-check error as a drifted result
// rather than aborting the cycle (spec.md §4.4 failure semantics).
func errResult(kind CheckKind, resourceID, platformName string, err error) types.ReconciliationResult {
	return types.ReconciliationResult{
		ResourceKind: string(kind),
		ResourceID:   resourceID,
		Platform:     platformName,
		Actual:       "error",
		Drifted:      true,
		Detail:       fmt.Sprintf("error: %v", err),
		Timestamp:    time.Now(),
	}
}

func (r *Reconciler) adapterFor(platformName string) (platform.Adapter, bool) {
	a, ok := r.adapters[platformName]
	return a, ok
}

// CurrentStatus returns the reconciler's present running state and
// recent drift history (spec.md §4.4 "expose current status").
func (r *Reconciler) CurrentStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	var recent []types.ReconciliationResult
	n := r.ringPos
	if r.ringFull {
		n = len(r.ring)
	}
	for i := 0; i < n; i++ {
		idx := i
		if r.ringFull {
			idx = (r.ringPos + i) % len(r.ring)
		}
		if r.ring[idx].Drifted {
			recent = append(recent, r.ring[idx])
		}
	}

	return Status{
		Running:      r.running,
		Interval:     r.interval,
		LastRun:      r.lastRun,
		TotalChecks:  r.totalChecks,
		RecentDrifts: recent,
	}
}
