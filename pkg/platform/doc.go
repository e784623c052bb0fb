/*
Package platform defines the Platform Adapter Interface (spec.md §4.6)
and one concrete implementation, LimaAdapter, backed by lima-vm/lima.

The core never talks to a hypervisor directly. It drives an Adapter
through generate_network_config/create_network/attach_interface/
next_vm_id/create_vm/stop_vm/delete_vm, and treats every call as a
potential blocking point.

LimaAdapter runs a single Lima instance and layers Glassdome's own VM
and network bookkeeping on top of it as a JSON state file inside the
mounted data directory, because Lima exposes no native API for live
interface attach/detach or post-boot interface enumeration. A
provisioning script inside the guest is expected to read this file and
apply the requested network/interface configuration; GetVMInterfaces
reads the same file back. This keeps the adapter boundary exactly where
spec.md §4.6 draws it: "any unrecoverable platform error is signalled by
returning a failure value... the core never silently swallows it" — the
core only sees Adapter's typed returns, never Lima's own types.
*/
package platform
