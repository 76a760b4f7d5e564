// Package tracker implements the finite-state machine that fuses a
// stream of per-frame armor-plate observations into a single enemy
// robot's tracked state, per spec §4.4. It owns an
// internal/ekf.Filter parameterized by internal/motion's robot model
// and uses internal/geometry to resolve plate identity across frames.
package tracker

import (
	"math"
	"time"

	"github.com/fyt-labs/auto-aim/internal/geometry"
)

// PlateType is cosmetic (affects only downstream rendering); the
// tracker does not branch on it.
type PlateType int

const (
	PlateSmall PlateType = iota
	PlateLarge
)

// Observation is one detected armor plate in a frame, already
// expressed in the fixed world frame by an external transform (spec
// §3). Observations with |Pose.Z| > 2 must be filtered out before
// reaching the tracker; see IsValid.
type Observation struct {
	NumericID string
	Pose      Pose
	PlateType PlateType
}

// Pose is a plate's position and yaw in the world frame.
type Pose struct {
	Position geometry.Position
	Yaw      float64
}

// IsValid reports whether an observation satisfies spec §3's
// invariant: z is finite and |z| <= 2m, and yaw is finite. The
// tracker's caller is expected to apply this filter before Step;
// Step itself does not re-check it (BadObservation, spec §7, is
// resolved upstream of the tracker).
func (o Observation) IsValid() bool {
	z := o.Pose.Position.Z
	if isNonFinite(z) || isNonFinite(o.Pose.Yaw) {
		return false
	}
	return z >= -2 && z <= 2
}

func isNonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// State is the tracker's finite-state machine state, spec §3/§4.4.
type State int

const (
	Lost State = iota
	Detecting
	Tracking
	TempLost
)

// String implements fmt.Stringer for readable logs.
func (s State) String() string {
	switch s {
	case Lost:
		return "LOST"
	case Detecting:
		return "DETECTING"
	case Tracking:
		return "TRACKING"
	case TempLost:
		return "TEMP_LOST"
	default:
		return "UNKNOWN"
	}
}

// Measurement is the 4-vector used for the most recent EKF update
// (spec §6's Measurement output), retained for publication.
type Measurement struct {
	Stamp time.Time `json:"stamp"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Z     float64   `json:"z"`
	Yaw   float64   `json:"yaw"`
}

// TargetSnapshot is published every tick (spec §6). Fields beyond
// Tracking are defined only when Tracking is true.
type TargetSnapshot struct {
	Stamp     time.Time         `json:"stamp"`
	FrameID   string            `json:"frame_id"`
	Tracking  bool              `json:"tracking"`
	ID        string            `json:"id,omitempty"`
	ArmorsNum int               `json:"armors_num,omitempty"`
	Position  geometry.Position `json:"position,omitempty"`
	Velocity  geometry.Position `json:"velocity,omitempty"`
	Yaw       float64           `json:"yaw,omitempty"`
	VYaw      float64           `json:"v_yaw,omitempty"`
	Radius1   float64           `json:"radius_1,omitempty"`
	Radius2   float64           `json:"radius_2,omitempty"`
	Dz        float64           `json:"dz,omitempty"`
}
