//go:build linux

package edge

import (
	"golang.org/x/sys/unix"

	"github.com/brainbot-robotics/brainbot/internal/logger"
)

// raiseSchedulingPriority lowers the edge process's nice value so the
// control loop's tick scheduling is less likely to be starved by other work
// on the host (§5 "the loop's timing is scheduling-sensitive"). Best-effort:
// a non-root process without CAP_SYS_NICE simply keeps the default priority.
func raiseSchedulingPriority() {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -5); err != nil {
		logger.Warn("edge: failed to raise scheduling priority", "err", err)
	}
}
