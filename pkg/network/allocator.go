// Package network implements the Network Address Allocator: deterministic,
// collision-free IP planning for lab networks. It performs no platform
// I/O and acts as a single in-process writer over its own state.
package network

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/cuemby/glassdome/pkg/errs"
	"github.com/cuemby/glassdome/pkg/log"
	"github.com/cuemby/glassdome/pkg/metrics"
	"github.com/cuemby/glassdome/pkg/types"
	"github.com/rs/zerolog"
	"go4.org/netipx"
)

// subnetOffsets maps a subnet role to the third-octet offset used when
// composing its /24 from a lab's /16 VPC CIDR.
var subnetOffsets = map[types.SubnetRole]int{
	types.SubnetPublic:     0,
	types.SubnetDMZ:        1,
	types.SubnetInternal:   2,
	types.SubnetManagement: 3,
	types.SubnetAttack:     100,
}

const maxOrdinal = 254

// Allocator hands out non-overlapping per-lab address plans. It is
// in-memory only and single-writer; sharing one instance across
// orchestrator processes requires an external coordinator (spec §5).
type Allocator struct {
	logger zerolog.Logger
	mu     sync.Mutex

	allocations map[string]*types.LabNetworkAllocation // lab_id -> allocation
	ordinals    map[int]string                          // ordinal -> lab_id
}

// NewAllocator creates an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		logger:      log.WithComponent("allocator"),
		allocations: make(map[string]*types.LabNetworkAllocation),
		ordinals:    make(map[int]string),
	}
}

// AllocateLabNetworks assigns the next free lab ordinal and composes a VPC
// CIDR plus one /24 subnet per requested role. Idempotent per labID:
// repeated calls return the existing allocation.
func (a *Allocator) AllocateLabNetworks(labID string, roles []types.SubnetRole) (*types.LabNetworkAllocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.allocations[labID]; ok {
		metrics.AllocatorAllocateTotal.WithLabelValues("idempotent").Inc()
		return existing, nil
	}

	ordinal, err := a.nextOrdinalLocked()
	if err != nil {
		metrics.AllocatorAllocateTotal.WithLabelValues("exhausted").Inc()
		return nil, err
	}

	vpcCIDR := fmt.Sprintf("10.%d.0.0/16", ordinal)
	if err := a.checkDisjointLocked(vpcCIDR); err != nil {
		metrics.AllocatorAllocateTotal.WithLabelValues("overlap").Inc()
		return nil, err
	}

	subnets := make(map[types.SubnetRole]types.SubnetAllocation, len(roles))
	for _, role := range roles {
		offset, ok := subnetOffsets[role]
		if !ok {
			return nil, fmt.Errorf("unknown subnet role %q", role)
		}
		subnets[role] = types.SubnetAllocation{
			Role:      role,
			CIDR:      fmt.Sprintf("10.%d.%d.0/24", ordinal, offset),
			Gateway:   fmt.Sprintf("10.%d.%d.1", ordinal, offset),
			DHCPStart: fmt.Sprintf("10.%d.%d.100", ordinal, offset),
			DHCPEnd:   fmt.Sprintf("10.%d.%d.200", ordinal, offset),
			Public:    role == types.SubnetPublic,
		}
	}

	alloc := &types.LabNetworkAllocation{
		LabID:   labID,
		Ordinal: ordinal,
		VPCCIDR: vpcCIDR,
		Subnets: subnets,
	}
	a.allocations[labID] = alloc
	a.ordinals[ordinal] = labID
	metrics.AllocatorOrdinalsInUse.Set(float64(len(a.ordinals)))
	metrics.AllocatorAllocateTotal.WithLabelValues("allocated").Inc()

	a.logger.Info().
		Str("lab_id", labID).
		Int("ordinal", ordinal).
		Str("vpc_cidr", vpcCIDR).
		Msg("allocated lab networks")

	return alloc, nil
}

// AllocateVLANNetwork allocates the single-/24 VLAN-style variant used by
// the Proxmox adapter path: one combined subnet at 10.<vlanID>.0.0/24.
func (a *Allocator) AllocateVLANNetwork(labID string, vlanID int) (*types.LabNetworkAllocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.allocations[labID]; ok {
		return existing, nil
	}

	cidr := fmt.Sprintf("10.%d.0.0/24", vlanID)
	if err := a.checkDisjointLocked(cidr); err != nil {
		return nil, err
	}

	alloc := &types.LabNetworkAllocation{
		LabID:   labID,
		Ordinal: vlanID,
		VPCCIDR: cidr,
		Subnets: map[types.SubnetRole]types.SubnetAllocation{
			types.SubnetInternal: {
				Role:      types.SubnetInternal,
				CIDR:      cidr,
				Gateway:   fmt.Sprintf("10.%d.0.1", vlanID),
				DHCPStart: fmt.Sprintf("10.%d.0.100", vlanID),
				DHCPEnd:   fmt.Sprintf("10.%d.0.200", vlanID),
			},
		},
	}
	a.allocations[labID] = alloc
	a.ordinals[vlanID] = labID
	return alloc, nil
}

// VMIPInSubnet returns the IP at position index within role's subnet,
// reserving .1-.9 for infrastructure: the VM at index 0 gets .10.
func VMIPInSubnet(sub types.SubnetAllocation, index int) (string, error) {
	_, ipnet, err := net.ParseCIDR(sub.CIDR)
	if err != nil {
		return "", fmt.Errorf("parse subnet cidr %q: %w", sub.CIDR, err)
	}
	base := ipnet.IP.To4()
	if base == nil {
		return "", fmt.Errorf("subnet cidr %q is not IPv4", sub.CIDR)
	}
	host := 10 + index
	if host > 254 {
		return "", fmt.Errorf("vm index %d overflows subnet %q", index, sub.CIDR)
	}
	return fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], host), nil
}

// GetAllocation returns the existing allocation for labID, if any.
func (a *Allocator) GetAllocation(labID string) (*types.LabNetworkAllocation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	alloc, ok := a.allocations[labID]
	return alloc, ok
}

// ReleaseLabNetworks frees a lab's ordinal and forgets its allocation,
// reporting whether one existed.
func (a *Allocator) ReleaseLabNetworks(labID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	alloc, ok := a.allocations[labID]
	if !ok {
		return false
	}
	delete(a.allocations, labID)
	delete(a.ordinals, alloc.Ordinal)
	metrics.AllocatorOrdinalsInUse.Set(float64(len(a.ordinals)))
	a.logger.Info().Str("lab_id", labID).Int("ordinal", alloc.Ordinal).Msg("released lab networks")
	return true
}

// Stats reports current allocator bookkeeping: ordinals in use and the
// remaining capacity out of 254.
func (a *Allocator) Stats() (inUse, remaining int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inUse = len(a.ordinals)
	return inUse, maxOrdinal - inUse
}

// nextOrdinalLocked finds the lowest free ordinal in [1, 254] with a
// linear scan from 1. Caller must hold a.mu.
func (a *Allocator) nextOrdinalLocked() (int, error) {
	if len(a.ordinals) >= maxOrdinal {
		return 0, fmt.Errorf("lab ordinal allocation: %w", errs.ErrPoolExhausted)
	}
	for ordinal := 1; ordinal <= maxOrdinal; ordinal++ {
		if _, used := a.ordinals[ordinal]; !used {
			return ordinal, nil
		}
	}
	return 0, fmt.Errorf("lab ordinal allocation: %w", errs.ErrPoolExhausted)
}

// checkDisjointLocked verifies candidateCIDR does not overlap any live
// allocation's VPC CIDR, using netipx's IPSetBuilder rather than hand-rolled
// integer range arithmetic. Caller must hold a.mu.
func (a *Allocator) checkDisjointLocked(candidateCIDR string) error {
	candidate, err := netip.ParsePrefix(candidateCIDR)
	if err != nil {
		return fmt.Errorf("parse candidate cidr %q: %w", candidateCIDR, err)
	}

	var existing netipx.IPSetBuilder
	for _, alloc := range a.allocations {
		prefix, err := netip.ParsePrefix(alloc.VPCCIDR)
		if err != nil {
			continue
		}
		existing.AddPrefix(prefix)
	}
	existingSet, err := existing.IPSet()
	if err != nil {
		return fmt.Errorf("build existing allocation set: %w", err)
	}

	var candidateBuilder netipx.IPSetBuilder
	candidateBuilder.AddPrefix(candidate)
	candidateSet, err := candidateBuilder.IPSet()
	if err != nil {
		return fmt.Errorf("build candidate set: %w", err)
	}

	if existingSet.Overlaps(candidateSet) {
		return fmt.Errorf("cidr %q overlaps an existing lab allocation", candidateCIDR)
	}
	return nil
}
