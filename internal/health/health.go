// Package health reports process-level resource usage for operational
// visibility, grounded on the kind of process snapshot the teacher's
// monitor-adjacent packages collect. Not a spec.md module: ambient
// observability carried regardless of the spec's behavioral Non-goals,
// per SPEC_FULL.md §3.
package health

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

func pid() int { return os.Getpid() }

// Snapshot is a point-in-time process health reading.
type Snapshot struct {
	PID           int32
	CPUPercent    float64
	RSSBytes      uint64
	NumGoroutines int
	NumFDs        int32
	Uptime        time.Duration
}

// Collect reads /proc (via gopsutil) for the current process. Any field
// gopsutil cannot determine is left at its zero value rather than
// failing the whole snapshot.
func Collect(startedAt time.Time, numGoroutines int) (Snapshot, error) {
	proc, err := process.NewProcess(int32(pid()))
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		PID:           proc.Pid,
		NumGoroutines: numGoroutines,
		Uptime:        time.Since(startedAt),
	}

	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		snap.RSSBytes = mem.RSS
	}
	if fds, err := proc.NumFDs(); err == nil {
		snap.NumFDs = fds
	}

	return snap, nil
}
