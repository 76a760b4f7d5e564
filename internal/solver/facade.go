// Package solver adapts a tracker.TargetSnapshot to the downstream
// ballistic solver's input contract (spec §4.5). The solver itself
// (coordinate-frame aware aiming math, fire-control policy) lives
// outside this module; SolverFacade only shapes the call and
// normalizes its failure mode.
package solver

import (
	"time"

	"github.com/fyt-labs/auto-aim/tracker"
)

// GimbalCommand is emitted every tick (spec §6). Inactive is
// (0, 0, -1, false).
type GimbalCommand struct {
	YawDiff    float64 `json:"yaw_diff"`
	PitchDiff  float64 `json:"pitch_diff"`
	Distance   float64 `json:"distance"`
	FireAdvice bool    `json:"fire_advice"`
}

// Inactive is the neutral command emitted when the tracker is not
// tracking, or when the solver itself fails.
var Inactive = GimbalCommand{Distance: -1}

// Solver is the external ballistic solver's input contract: given a
// target snapshot and the current time, produce an aim decision. Any
// error is treated as SolverFailure (spec §7) and maps to Inactive.
type Solver interface {
	Solve(snapshot tracker.TargetSnapshot, now time.Time) (GimbalCommand, error)
}

// Facade publishes a Tracker's per-tick snapshot to a Solver,
// normalizing both the not-tracking case and any solver failure to
// the neutral command.
type Facade struct {
	Solver Solver

	// OnError, if set, is called with every SolverFailure before the
	// neutral command is returned. Useful for diagnostics without
	// coupling this package to a particular logger.
	OnError func(err error)
}

// NewFacade constructs a Facade wrapping the given solver.
func NewFacade(s Solver) *Facade {
	return &Facade{Solver: s}
}

// Step takes a tracker's snapshot for the current tick and returns the
// gimbal command to publish. If snapshot.Tracking is false, or the
// solver fails, it returns Inactive.
func (f *Facade) Step(snapshot tracker.TargetSnapshot, now time.Time) GimbalCommand {
	if !snapshot.Tracking {
		return Inactive
	}

	cmd, err := f.Solver.Solve(snapshot, now)
	if err != nil {
		if f.OnError != nil {
			f.OnError(err)
		}
		return Inactive
	}
	return cmd
}
