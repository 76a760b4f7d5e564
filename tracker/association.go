package tracker

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/fyt-labs/auto-aim/internal/geometry"
	"github.com/fyt-labs/auto-aim/internal/motion"
)

// associateAndUpdate runs one predict/associate/update cycle against
// the current set of observations and reports whether a measurement
// was accepted (spec §4.4 steps 1-6). On a miss it still commits the
// time propagation so the filter does not fall behind wall-clock time.
func (t *Tracker) associateAndUpdate(observations []Observation, stamp time.Time) bool {
	candidates := make([]Observation, 0, len(observations))
	for _, o := range observations {
		if o.NumericID == t.trackedID {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		t.filter.Predict()
		t.filter.CommitPrediction()
		return false
	}

	predicted := t.filter.Predict()
	predState := t.robotStateFromVec(predicted)

	bestObs := candidates[0]
	bestPlate, bestDist := geometry.BestMatch(bestObs.Pose.Position, predState)
	for _, o := range candidates[1:] {
		plate, d := geometry.BestMatch(o.Pose.Position, predState)
		if d < bestDist {
			bestDist, bestObs, bestPlate = d, o, plate
		}
	}

	// Step 6 (miss) fires only on distance; a close-distance but
	// yaw-mismatched observation still falls into step 5 (jump) rather
	// than being discarded (spec §4.4).
	if bestDist > t.cfg.Tracker.MaxMatchDistance {
		t.filter.CommitPrediction()
		return false
	}

	yawDiff := math.Abs(geometry.NormalizeAngle(bestObs.Pose.Yaw - bestPlate.Yaw))
	isJump := bestPlate.Index != 0 || yawDiff > t.cfg.Tracker.MaxMatchYawDiff

	unwrappedYaw := geometry.UnwrapYaw(bestObs.Pose.Yaw, t.lastYaw)
	predicted.SetVec(motion.Yaw, unwrappedYaw)

	// An armor jump only swaps the r/za pair when the matched plate
	// belongs to the alternate pair of a 4-plate robot. The degenerate
	// case of i*==0 with a large yaw delta is still a jump (per step 5)
	// but has no pair to swap, so only the yaw reset above applies.
	if isJump && t.trackedArmorsNum == 4 && bestPlate.Index%2 == 1 {
		oldR := predicted.AtVec(motion.R)
		predicted.SetVec(motion.R, t.anotherR)
		t.anotherR = oldR
		predicted.SetVec(motion.Za, predicted.AtVec(motion.Za)+t.dz)
		t.dz = -t.dz

		Logf("tracker: armor jump id=%s epoch=%s plate=%d r<->%.3f dz=%.3f", t.trackedID, t.epoch, bestPlate.Index, t.anotherR, t.dz)
	} else if isJump {
		Logf("tracker: armor jump id=%s epoch=%s plate=%d (yaw reset only, no pair swap)", t.trackedID, t.epoch, bestPlate.Index)
	}

	t.filter.OverridePrediction(predicted)

	z := mat.NewVecDense(motion.MeasurementDim, nil)
	z.SetVec(motion.MXa, bestObs.Pose.Position.X)
	z.SetVec(motion.MYa, bestObs.Pose.Position.Y)
	z.SetVec(motion.MZa, bestObs.Pose.Position.Z)
	z.SetVec(motion.MYaw, unwrappedYaw)

	if _, err := t.filter.Update(z); err != nil {
		Logf("tracker: update rejected id=%s: %v", t.trackedID, err)
		return false
	}

	if r := t.filter.State().AtVec(motion.R); r < minRadius {
		t.filter.SetStateDim(motion.R, minRadius)
	} else if r > maxRadius {
		t.filter.SetStateDim(motion.R, maxRadius)
	}

	t.lastYaw = unwrappedYaw
	t.lastMeasurement = Measurement{
		Stamp: stamp,
		X:     bestObs.Pose.Position.X,
		Y:     bestObs.Pose.Position.Y,
		Z:     bestObs.Pose.Position.Z,
		Yaw:   unwrappedYaw,
	}
	t.updatedThisTick = true
	return true
}
