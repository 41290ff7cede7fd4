package orchestrator

import (
	"mfsync/internal/endpoint"
	"mfsync/internal/period"
)

// Depth returns how many months a sync starting at current covers. A full
// sync reaches back to anchor but never covers less than an incremental one.
func Depth(mode endpoint.SyncMode, incremental int, anchor, current period.Period) int {
	if mode != endpoint.SyncFull {
		return incremental
	}
	full := period.MonthsBetween(anchor, current) + 1
	if full < incremental {
		return incremental
	}
	return full
}
