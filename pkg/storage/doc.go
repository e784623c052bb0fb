/*
Package storage provides BoltDB-backed state persistence for Glassdome's
range inventory.

The storage package implements the Store interface using BoltDB as the
underlying database, giving ACID transactions over network definitions,
platform network mappings, deployed VMs, VM interfaces, and hot spares.
All data is serialized as JSON and stored in separate buckets for
efficient querying and isolation.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/glassdome.db             │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌─────────────────────────────────────┐    │          │
	│  │  │ network_definitions      (Net ID)    │    │          │
	│  │  │ platform_network_mappings (Map ID)   │    │          │
	│  │  │ deployed_vms             (VM row ID) │    │          │
	│  │  │ vm_interfaces            (Iface ID)  │    │          │
	│  │  │ hot_spares               (Spare ID) │    │          │
	│  │  └─────────────────────────────────────┘    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Transaction Management                │          │
	│  │  - Read: db.View() - Concurrent reads       │          │
	│  │  - Write: db.Update() - Serialized writes   │          │
	│  │  - Rollback: Automatic on error             │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# AcquireSpare

AcquireSpare is the one operation in this package that is not a plain
CRUD template. It scans hot_spares for the oldest ready row matching a
(platform, instance, os_family) key and flips it to in-use inside a
single db.Update closure. bbolt admits only one writer at a time, so the
scan-then-claim sequence can never race with another caller's
scan-then-claim: this is the same guarantee a relational store gets from
`SELECT ... FOR UPDATE SKIP LOCKED`, without needing a row-lock
primitive bbolt doesn't have.

# Design Patterns

Upsert Pattern:
  - Create and Update use the same method (db.Put)
  - No separate "exists" check needed

Cascade Delete:
  - DeleteNetworkDefinition removes its platform mappings first

Cursor Iteration:
  - ForEach / Cursor for full bucket scans, filtered in memory
  - Fine at the row counts a single range orchestrator manages

# See Also

  - pkg/sparepool for AcquireSpare's caller
  - pkg/reconciler for the read-heavy consumer of deployed_vms and
    vm_interfaces
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
