package types

import "time"

// LabSpec is the in-memory input describing a lab to deploy. It owns no
// persistent rows itself; the orchestrator mints them as it builds and
// drives the task graph.
type LabSpec struct {
	Name             string
	Networks         []NetworkRequest
	VMs              []VMRequest
	MaxParallel      int
	FailFast         bool
	AutoShutdownAt   *time.Time
	PostDeployScripts []string
}

// NetworkRequest describes a network a lab wants provisioned.
type NetworkRequest struct {
	Name        string
	Type        NetworkType
	VLANTag     int
	DHCPEnabled bool
	DHCPStart   string
	DHCPEnd     string
	DNSServers  []string
}

// VMRequest describes a VM a lab wants provisioned.
type VMRequest struct {
	ID           string // logical id, unique within the LabSpec
	OSFamily     string
	Cores        int
	MemoryMB     int
	DiskGB       int
	Users        []UserAccount
	Packages     []string
	PostInstall  []string
	Network      string // logical network id this VM attaches to
	DependsOn    []string // logical ids (networks or VMs) this VM waits on
}

// UserAccount describes a user account to create on a VM.
type UserAccount struct {
	Username string
	SSHKey   string
	Sudo     bool
}

// TaskKind tags the variant of a Task's opaque payload. The engine itself
// never inspects this value; only the orchestrator's executor dispatches
// on it.
type TaskKind string

const (
	TaskKindCreateNetwork   TaskKind = "create-network"
	TaskKindCreateVM        TaskKind = "create-vm"
	TaskKindCreateUsers     TaskKind = "create-users"
	TaskKindInstallPackages TaskKind = "install-packages"
	TaskKindPostConfigure   TaskKind = "post-configure"
)

// TaskState is the lifecycle state of an engine-internal Task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskReady     TaskState = "ready"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskSkipped   TaskState = "skipped"
)

// TaskResult is returned by a task executor function.
type TaskResult struct {
	Success bool
	Output  any
	Error   string
}

// NetworkType enumerates how a NetworkDefinition is realized on a platform.
type NetworkType string

const (
	NetworkIsolated NetworkType = "isolated"
	NetworkNAT      NetworkType = "nat"
	NetworkBridged  NetworkType = "bridged"
	NetworkRouted   NetworkType = "routed"
)

// NetworkDefinition is a persisted logical network owned by a lab. Any two
// NetworkDefinitions sharing a platform+instance must not overlap in CIDR.
type NetworkDefinition struct {
	ID             string
	Name           string // unique
	CIDR           string
	VLANTag        int
	Gateway        string
	Type           NetworkType
	DHCPEnabled    bool
	DHCPRangeStart string
	DHCPRangeEnd   string
	DNSServers     []string
	LabID          string
	CreatedAt      time.Time
}

// PlatformNetworkMapping binds a NetworkDefinition to a specific platform
// instance. At most one mapping exists per (network, platform, instance).
type PlatformNetworkMapping struct {
	ID               string
	NetworkID        string
	Platform         string
	PlatformInstance string
	PlatformConfig   map[string]string
	Provisioned      bool
	ProvisionError   string
}

// VMStatus is the lifecycle state of a DeployedVM.
type VMStatus string

const (
	VMDeployed  VMStatus = "deployed"
	VMMigrating VMStatus = "migrating"
	VMStopped   VMStatus = "stopped"
	VMDeleted   VMStatus = "deleted"
)

// DeployedVM is the authoritative record of a VM successfully instantiated
// on a platform. (platform, platform_instance, vm_id) is unique.
type DeployedVM struct {
	ID               string
	LabID            string
	Name             string
	VMID             string // platform-assigned identifier
	Platform         string
	PlatformInstance string
	OSFamily         string
	TemplateID       string
	Cores            int
	MemoryMB         int
	DiskGB           int
	Status           VMStatus
	IPAddress        string
	MigrationFrom    string // non-empty iff this VM arrived via migration
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IPMethod is how a VMInterface obtained its address.
type IPMethod string

const (
	IPMethodDHCP   IPMethod = "dhcp"
	IPMethodStatic IPMethod = "static"
)

// VMInterface is a single network interface attached to a DeployedVM.
// (vm_id, platform, platform_instance, interface_index) is unique.
type VMInterface struct {
	ID               string
	VMID             string
	Platform         string
	PlatformInstance string
	InterfaceIndex   int
	InterfaceName    string
	MACAddress       string
	IPAddress        string
	IPMethod         IPMethod
	SubnetMask       string
	Gateway          string
	PlatformConfig   map[string]string
	Connected        bool
}

// SpareStatus is the lifecycle state of a HotSpare.
type SpareStatus string

const (
	SpareProvisioning SpareStatus = "provisioning"
	SpareBooting      SpareStatus = "booting"
	SpareReady        SpareStatus = "ready"
	SpareInUse        SpareStatus = "in-use"
	SpareResetting    SpareStatus = "resetting"
	SpareFailed       SpareStatus = "failed"
	SpareDestroying   SpareStatus = "destroying"
)

// HotSpare is a pre-provisioned VM held ready for fast mission assignment.
// Exactly one HotSpare exists per (platform, vm_id); an IP is assigned to
// at most one non-terminal spare at a time.
type HotSpare struct {
	ID                  string
	VMID                string
	Platform            string
	PlatformInstance    string
	OSFamily            string
	TemplateID          string
	IPAddress           string
	Status              SpareStatus
	AssignedToMission    string // set iff Status == SpareInUse
	HealthCheckFailures int
	CreatedAt           time.Time
	ReadyAt             time.Time
	AssignedAt          time.Time
}

// SubnetRole enumerates the roles a SubnetAllocation can serve.
type SubnetRole string

const (
	SubnetPublic     SubnetRole = "public"
	SubnetAttack     SubnetRole = "attack"
	SubnetDMZ        SubnetRole = "dmz"
	SubnetInternal   SubnetRole = "internal"
	SubnetManagement SubnetRole = "management"
)

// SubnetAllocation is one role's slice of a lab's address space.
type SubnetAllocation struct {
	Role      SubnetRole
	CIDR      string
	Gateway   string
	DHCPStart string
	DHCPEnd   string
	Public    bool
}

// LabNetworkAllocation is the in-memory address-space plan for one lab.
type LabNetworkAllocation struct {
	LabID   string
	Ordinal int // 1-254
	VPCCIDR string
	Subnets map[SubnetRole]SubnetAllocation
}

// ReconciliationResult is one outcome of a single reconciler check,
// retained in a bounded in-memory ring buffer.
type ReconciliationResult struct {
	ResourceKind string
	ResourceID   string
	Platform     string
	Expected     string
	Actual       string
	Drifted      bool
	Detail       string
	Timestamp    time.Time
}

// DeploymentReport is the aggregate result of an engine Run or a lab
// Deploy, carrying only JSON-like primitives, arrays, and maps per the
// external-interfaces contract. Error is set only for a graph-level
// failure (a cycle or an unknown prerequisite) that prevents the engine
// from running any task at all; per-task failures live in Tasks instead.
type DeploymentReport struct {
	Success   bool
	Error     string
	Total     int
	Completed int
	Failed    int
	Duration  time.Duration
	Tasks     map[string]TaskReportEntry
}

// TaskReportEntry is one task's entry in a DeploymentReport.
type TaskReportEntry struct {
	State  TaskState
	Result any
	Error  string
}
