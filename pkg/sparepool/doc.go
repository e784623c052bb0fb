/*
Package sparepool implements the Hot Spare Pool (spec.md §4.2): a
self-replenishing inventory of pre-booted VMs per OS family, so a
mission can acquire one in constant time instead of waiting out a
clone-and-boot cycle.

# Acquire

Acquire delegates the race-free claim itself to pkg/storage's
AcquireSpare, which runs inside a single bbolt writer transaction.
Pool's own job starts after the claim succeeds: it dispatches a
replacement as a detached task on a github.com/cilium/workerpool, and
that task re-checks the family's live count (ready + provisioning +
booting) against its configured minimum before provisioning anything —
without that check, N concurrent acquisitions would enqueue N
replacements even though the pool only needs enough to get back to its
floor.

# Maintenance loop

A single long-running task, submitted once at Start, ticks on the
shortest configured health-check interval across all families. Each
tick, per OS family: top up short-of-minimum counts by allocating an IP
from the family's configured range, requesting a VM id from the
platform adapter, inserting a provisioning row, and cloning
asynchronously; then ICMP health-check every ready spare, retiring one
to failed after three consecutive probe failures.

# Release

Release always tears a spare down through the platform adapter
(StopVM then DeleteVM) and removes its row. The spec reserves a
"reset" path that reuses a spare's disk image instead of destroying
it, but leaves it unimplemented; Release treats destroy=false the same
as destroy=true until that lands.
*/
package sparepool
