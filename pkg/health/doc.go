/*
Package health provides the generic reachability-check abstraction used to
probe whether a hot spare VM is still alive.

# Checker Interface

Checker is implemented by one concrete type, ICMPChecker, which pings an
IP address once and reports Result.Healthy. The interface exists so
pkg/sparepool can depend on Checker rather than on exec.Command directly,
and so a future platform that exposes a richer reachability signal (a
guest agent heartbeat, a platform API call) can plug in without changing
the pool's dispatch loop.

# Config and Status

Config carries the interval/timeout/retry knobs a caller applies around
a Checker: Interval between probes, Timeout per probe, Retries before a
still-failing target flips unhealthy, and an optional StartPeriod grace
window for targets that are slow to come up. Status accumulates the
running count of consecutive successes/failures across repeated Update
calls and exposes the resulting Healthy bool.

pkg/sparepool currently tracks consecutive ICMP failures itself, as a
field on the persisted HotSpare record, because that count must survive
the pool's own restarts and Status has no serialization of its own.
Config and Status remain available for any future caller that only
needs in-memory tracking for the lifetime of one process.

# Usage

	checker := health.NewICMPChecker(spare.IPAddress).WithTimeout(2 * time.Second)
	result := checker.Check(ctx)
	if !result.Healthy {
	    spare.HealthCheckFailures++
	}

# See Also

  - pkg/sparepool for the only current caller of ICMPChecker
*/
package health
