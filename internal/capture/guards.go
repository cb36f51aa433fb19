// Package capture is the Phase 1 tagging state machine. It turns timestamped
// shot and end-of-rally presses into closed rallies, keeps the running score,
// and keeps a linear history used for undo and video navigation.
package capture

import (
	"fmt"

	"rally-tagger/internal/domain"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// EndRallyContext provides context for end-of-rally guards.
type EndRallyContext struct {
	Condition  domain.EndCondition
	ShotCount  int
	Navigating bool
}

// CanRecordShot evaluates whether a shot press is accepted.
// Rules:
// - Not while reviewing history
func CanRecordShot(navigating bool) GuardResult {
	if navigating {
		return GuardResult{Allowed: false, Reason: "reviewing history; return to live before tagging"}
	}
	return GuardResult{Allowed: true}
}

// CanEndRally evaluates whether an end condition may close the rally.
// Rules:
// - Not while reviewing history
// - Condition must be known
// - At least one shot (after-serve)
// - forced_error needs a second shot; a service fault cannot be forced
func CanEndRally(ctx EndRallyContext) GuardResult {
	if ctx.Navigating {
		return GuardResult{Allowed: false, Reason: "reviewing history; return to live before tagging"}
	}
	if !ctx.Condition.Valid() {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown end condition %q", ctx.Condition)}
	}
	if ctx.ShotCount == 0 {
		return GuardResult{Allowed: false, Reason: "no serve recorded for this rally"}
	}
	if ctx.Condition == domain.EndForcedError && ctx.ShotCount < 2 {
		return GuardResult{Allowed: false, Reason: "forced error needs at least two shots"}
	}
	return GuardResult{Allowed: true}
}

// CanUndo evaluates whether the last history entry can be reverted.
// Rules:
// - Not while reviewing history
// - History must not be empty
func CanUndo(historyLen int, navigating bool) GuardResult {
	if navigating {
		return GuardResult{Allowed: false, Reason: "reviewing history; return to live before undoing"}
	}
	if historyLen == 0 {
		return GuardResult{Allowed: false, Reason: "nothing to undo"}
	}
	return GuardResult{Allowed: true}
}
