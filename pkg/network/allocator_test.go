package network

import (
	"testing"

	"github.com/cuemby/glassdome/pkg/types"
)

func TestAllocateLabNetworksAssignsDistinctOrdinals(t *testing.T) {
	a := NewAllocator()

	first, err := a.AllocateLabNetworks("lab-1", []types.SubnetRole{types.SubnetInternal, types.SubnetDMZ})
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.AllocateLabNetworks("lab-2", []types.SubnetRole{types.SubnetInternal})
	if err != nil {
		t.Fatal(err)
	}

	if first.Ordinal == second.Ordinal {
		t.Fatalf("expected distinct ordinals, both got %d", first.Ordinal)
	}
	if len(first.Subnets) != 2 {
		t.Fatalf("expected 2 subnets, got %d", len(first.Subnets))
	}
	dmz := first.Subnets[types.SubnetDMZ]
	if dmz.CIDR == "" || dmz.Gateway == "" {
		t.Fatalf("expected a populated dmz subnet, got %+v", dmz)
	}
}

func TestAllocateLabNetworksIsIdempotentPerLabID(t *testing.T) {
	a := NewAllocator()

	first, err := a.AllocateLabNetworks("lab-1", []types.SubnetRole{types.SubnetInternal})
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.AllocateLabNetworks("lab-1", []types.SubnetRole{types.SubnetInternal})
	if err != nil {
		t.Fatal(err)
	}

	if first.Ordinal != second.Ordinal || first.VPCCIDR != second.VPCCIDR {
		t.Fatalf("expected identical allocation on repeat call, got %+v vs %+v", first, second)
	}

	inUse, _ := a.Stats()
	if inUse != 1 {
		t.Fatalf("expected 1 ordinal in use after idempotent repeat, got %d", inUse)
	}
}

func TestAllocateLabNetworksUnknownRoleErrors(t *testing.T) {
	a := NewAllocator()
	if _, err := a.AllocateLabNetworks("lab-1", []types.SubnetRole{"bogus"}); err == nil {
		t.Fatal("expected an error for an unknown subnet role")
	}
}

func TestAllocateLabNetworksExhaustionIsReported(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < maxOrdinal; i++ {
		if _, err := a.AllocateLabNetworks(string(rune('a'+i%26))+string(rune('0'+i/26)), []types.SubnetRole{types.SubnetInternal}); err != nil {
			t.Fatalf("unexpected error allocating ordinal %d: %v", i, err)
		}
	}

	if _, err := a.AllocateLabNetworks("one-too-many", []types.SubnetRole{types.SubnetInternal}); err == nil {
		t.Fatal("expected pool exhaustion error once all 254 ordinals are taken")
	}
}

func TestReleaseLabNetworksFreesTheOrdinal(t *testing.T) {
	a := NewAllocator()
	alloc, err := a.AllocateLabNetworks("lab-1", []types.SubnetRole{types.SubnetInternal})
	if err != nil {
		t.Fatal(err)
	}

	if !a.ReleaseLabNetworks("lab-1") {
		t.Fatal("expected release to report an existing allocation")
	}
	if a.ReleaseLabNetworks("lab-1") {
		t.Fatal("expected a second release of the same lab to report nothing to free")
	}

	again, err := a.AllocateLabNetworks("lab-2", []types.SubnetRole{types.SubnetInternal})
	if err != nil {
		t.Fatal(err)
	}
	if again.Ordinal != alloc.Ordinal {
		t.Fatalf("expected the freed ordinal %d to be reused, got %d", alloc.Ordinal, again.Ordinal)
	}
}

func TestAllocateVLANNetworkIsIdempotentPerLabID(t *testing.T) {
	a := NewAllocator()

	first, err := a.AllocateVLANNetwork("lab-1", 42)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.AllocateVLANNetwork("lab-1", 42)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the same allocation pointer back on repeat call")
	}
	if first.VPCCIDR != "10.42.0.0/24" {
		t.Fatalf("unexpected vpc cidr %q", first.VPCCIDR)
	}
}

func TestVMIPInSubnetReservesLowHostAddresses(t *testing.T) {
	sub := types.SubnetAllocation{CIDR: "10.5.2.0/24"}

	ip, err := VMIPInSubnet(sub, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ip != "10.5.2.10" {
		t.Fatalf("expected first VM at .10, got %s", ip)
	}

	ip, err = VMIPInSubnet(sub, 5)
	if err != nil {
		t.Fatal(err)
	}
	if ip != "10.5.2.15" {
		t.Fatalf("expected sixth VM at .15, got %s", ip)
	}
}

func TestVMIPInSubnetOverflowErrors(t *testing.T) {
	sub := types.SubnetAllocation{CIDR: "10.5.2.0/24"}
	if _, err := VMIPInSubnet(sub, 250); err == nil {
		t.Fatal("expected an overflow error past .254")
	}
}

func TestAllocateLabNetworksRejectsOverlap(t *testing.T) {
	a := NewAllocator()
	// nextOrdinalLocked always picks the lowest free ordinal, so "lab-1"
	// is guaranteed ordinal 1 here.
	if _, err := a.AllocateLabNetworks("lab-1", []types.SubnetRole{types.SubnetInternal}); err != nil {
		t.Fatal(err)
	}

	if _, err := a.AllocateVLANNetwork("lab-2", 1); err == nil {
		t.Fatal("expected an overlap error allocating the same ordinal's CIDR via the VLAN path")
	}
}
