package health

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ICMPChecker probes reachability of a single IP address with one ping.
// Used by the hot spare pool to detect spares that have gone unreachable.
type ICMPChecker struct {
	// Address is the IP address to probe.
	Address string

	// Timeout bounds a single ping attempt (default: 2 seconds).
	Timeout time.Duration
}

// NewICMPChecker creates a new ICMP health checker for the given address.
func NewICMPChecker(address string) *ICMPChecker {
	return &ICMPChecker{
		Address: address,
		Timeout: 2 * time.Second,
	}
}

// Check sends a single ICMP echo request and reports whether it was answered.
func (c *ICMPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if c.Address == "" {
		return Result{
			Healthy:   false,
			Message:   "no address specified",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	waitSecs := int(timeout.Seconds())
	if waitSecs < 1 {
		waitSecs = 1
	}

	cmd := exec.CommandContext(execCtx, "ping", "-c", "1", "-W", fmt.Sprintf("%d", waitSecs), c.Address)
	err := cmd.Run()

	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("ping %s: %v", c.Address, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("ping %s: reachable", c.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type.
func (c *ICMPChecker) Type() CheckType {
	return CheckTypeICMP
}

// WithTimeout sets the ping timeout.
func (c *ICMPChecker) WithTimeout(timeout time.Duration) *ICMPChecker {
	c.Timeout = timeout
	return c
}
