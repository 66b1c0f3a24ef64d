// internal/app/system/status/status.go

// Package status holds the group status constants and the derivation rule
// shared by the capacity tracker and the stores.
package status

// Group lifecycle states.
//
//	Open   — accepting joins while CurrentCount < TargetCount.
//	Locked — full; joins blocked, modification and cancellation still allowed.
//	Ended  — admin-set terminal state; no mutation of any kind, and the
//	         group is ineligible as a migration source or target.
const (
	Open   = "open"
	Locked = "locked"
	Ended  = "ended"
)

// Derive returns the status a group must carry for the given counts.
// Ended is sticky: a terminal group never re-derives to Open or Locked.
func Derive(current, target int64, existing string) string {
	if existing == Ended {
		return Ended
	}
	if current >= target {
		return Locked
	}
	return Open
}

// IsValid reports whether s is one of the known states.
func IsValid(s string) bool {
	return s == Open || s == Locked || s == Ended
}
