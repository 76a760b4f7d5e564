package tracker

import (
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/fyt-labs/auto-aim/internal/config"
	"github.com/fyt-labs/auto-aim/internal/ekf"
	"github.com/fyt-labs/auto-aim/internal/geometry"
	"github.com/fyt-labs/auto-aim/internal/motion"
)

// Logf is the package-level diagnostic logger, defaulting to
// log.Printf. Replace it with SetLogger to redirect or silence
// tracker diagnostics (FSM transitions, track inits, armor jumps,
// rejected measurements).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Initial radius assumed for a freshly initialized track (spec §4.4).
const initialRadius = 0.26

// Radius clamp bounds (spec §3 invariant).
const (
	minRadius = 0.12
	maxRadius = 0.40
)

// Tracker is the single-target finite-state machine wrapping an EKF,
// per spec §4.4. It is stateful and not re-entrant: one Step must
// complete before the next begins.
type Tracker struct {
	cfg   config.Config
	model *motion.Model
	state State

	filter *ekf.Filter

	trackedID        string
	trackedArmorsNum int
	anotherR         float64
	dz               float64
	lastYaw          float64
	lostCount        int
	detectCount      int
	trackingThres    int
	lostThres        int

	epoch uuid.UUID

	hasLastTime bool
	lastTime    time.Time

	lastMeasurement Measurement
	updatedThisTick bool
}

// New constructs a Tracker in the LOST state, using cfg for all
// thresholds and EKF noise parameters.
func New(cfg config.Config) *Tracker {
	return &Tracker{
		cfg:           cfg,
		model:         motion.NewModel(cfg.NoiseConfig()),
		state:         Lost,
		trackingThres: cfg.Tracker.TrackingThres,
	}
}

// State returns the tracker's current FSM state.
func (t *Tracker) State() State { return t.state }

// TrackedID returns the detector numeric_id locked at init, or "" if
// the track is LOST.
func (t *Tracker) TrackedID() string { return t.trackedID }

// Updated reports whether the most recent Step committed a
// measurement update (as opposed to a pure prediction or a dropped
// tick). Callers use this to decide whether to publish Measurement.
func (t *Tracker) Updated() bool { return t.updatedThisTick }

// LastMeasurement returns the 4-vector used for the most recent
// update.
func (t *Tracker) LastMeasurement() Measurement { return t.lastMeasurement }

// ErrNonMonotonicTick is returned by Step when dt computed from
// successive observation timestamps is not strictly positive; spec §5
// requires such ticks be dropped without advancing the tracker.
var ErrNonMonotonicTick = errors.New("tracker: non-monotonic or zero dt")

// Step advances the tracker by one frame. observations must already
// be expressed in the world frame and pre-filtered for |z| <= 2m and
// finite yaw (spec §3); Step performs no further validation of them.
func (t *Tracker) Step(observations []Observation, stamp time.Time) error {
	t.updatedThisTick = false

	if t.hasLastTime {
		dt := stamp.Sub(t.lastTime).Seconds()
		if dt <= 0 {
			return ErrNonMonotonicTick
		}
		t.model.SetDT(dt)
		t.lostThres = int(math.Abs(t.cfg.Tracker.LostTimeThres / dt))
	}
	t.lastTime = stamp
	t.hasLastTime = true

	switch t.state {
	case Lost:
		t.stepLost(observations)
	case Detecting:
		t.stepDetecting(observations, stamp)
	case Tracking:
		t.stepTracking(observations, stamp)
	case TempLost:
		t.stepTempLost(observations, stamp)
	}

	return nil
}

func (t *Tracker) stepLost(observations []Observation) {
	if len(observations) == 0 {
		return
	}
	t.initTrack(observations)
	t.setState(Detecting)
}

func (t *Tracker) stepDetecting(observations []Observation, stamp time.Time) {
	if len(observations) > 0 {
		if t.associateAndUpdate(observations, stamp) {
			t.detectCount++
			if t.detectCount >= t.trackingThres {
				t.detectCount = 0
				t.setState(Tracking)
			}
			return
		}
	}
	t.detectCount = 0
	t.reset()
	t.setState(Lost)
}

func (t *Tracker) stepTracking(observations []Observation, stamp time.Time) {
	if t.associateAndUpdate(observations, stamp) {
		return
	}
	t.lostCount = 1
	t.setState(TempLost)
}

func (t *Tracker) stepTempLost(observations []Observation, stamp time.Time) {
	if t.associateAndUpdate(observations, stamp) {
		t.lostCount = 0
		t.setState(Tracking)
		return
	}
	t.lostCount++
	if t.lostCount > t.lostThres {
		t.reset()
		t.setState(Lost)
	}
}

// initTrack implements spec §4.4's init(): picks the observation
// closest to the world-frame origin, locks tracked_id to its
// numeric_id, and seeds the filter state.
func (t *Tracker) initTrack(observations []Observation) {
	best := observations[0]
	bestDist := math.Hypot(best.Pose.Position.X, math.Hypot(best.Pose.Position.Y, best.Pose.Position.Z))

	for _, o := range observations[1:] {
		d := math.Hypot(o.Pose.Position.X, math.Hypot(o.Pose.Position.Y, o.Pose.Position.Z))
		if d < bestDist {
			bestDist = d
			best = o
		}
	}

	t.trackedID = best.NumericID
	t.trackedArmorsNum = geometry.RobotTypeTable(best.NumericID)
	t.anotherR = initialRadius
	t.dz = 0
	t.lastYaw = best.Pose.Yaw
	t.epoch = uuid.New()

	// Per spec §4.4's init(), xc/yc are seeded directly from the
	// observation rather than offset by r: scenario 1 (cold start)
	// requires posterior position == the raw observation exactly. The
	// center estimate starts r off from the physical center and is
	// corrected by subsequent updates as yaw varies.
	x := mat.NewVecDense(motion.Dim, nil)
	x.SetVec(motion.Xc, best.Pose.Position.X)
	x.SetVec(motion.Yc, best.Pose.Position.Y)
	x.SetVec(motion.Za, best.Pose.Position.Z)
	x.SetVec(motion.Yaw, best.Pose.Yaw)
	x.SetVec(motion.R, initialRadius)

	t.filter = t.model.NewFilter()
	t.filter.SetState(x)

	Logf("tracker: init id=%s epoch=%s armors=%d pos=(%.3f,%.3f,%.3f) yaw=%.3f",
		t.trackedID, t.epoch, t.trackedArmorsNum,
		best.Pose.Position.X, best.Pose.Position.Y, best.Pose.Position.Z, best.Pose.Yaw)
}

func (t *Tracker) reset() {
	t.trackedID = ""
	t.trackedArmorsNum = 0
	t.filter = nil
	t.detectCount = 0
	t.lostCount = 0
}

func (t *Tracker) setState(s State) {
	if s != t.state {
		Logf("tracker: %s -> %s (id=%s)", t.state, s, t.trackedID)
	}
	t.state = s
}

// robotStateFromVec builds a geometry.RobotState snapshot from a
// filter state vector and the tracker's auxiliary pair bookkeeping.
func (t *Tracker) robotStateFromVec(x *mat.VecDense) geometry.RobotState {
	return geometry.RobotState{
		Xc:        x.AtVec(motion.Xc),
		Yc:        x.AtVec(motion.Yc),
		Za:        x.AtVec(motion.Za),
		Yaw:       x.AtVec(motion.Yaw),
		R:         x.AtVec(motion.R),
		AnotherR:  t.anotherR,
		Dz:        t.dz,
		ArmorsNum: t.trackedArmorsNum,
	}
}

// Snapshot builds spec §6's per-tick TargetSnapshot.
func (t *Tracker) Snapshot(frameID string, stamp time.Time) TargetSnapshot {
	snap := TargetSnapshot{Stamp: stamp, FrameID: frameID}

	if t.state != Tracking && t.state != TempLost {
		return snap
	}

	x := t.filter.State()
	snap.Tracking = true
	snap.ID = t.trackedID
	snap.ArmorsNum = t.trackedArmorsNum
	snap.Position = geometry.Position{X: x.AtVec(motion.Xc), Y: x.AtVec(motion.Yc), Z: x.AtVec(motion.Za)}
	snap.Velocity = geometry.Position{X: x.AtVec(motion.Vxc), Y: x.AtVec(motion.Vyc), Z: x.AtVec(motion.Vza)}
	snap.Yaw = x.AtVec(motion.Yaw)
	snap.VYaw = x.AtVec(motion.Vyaw)
	snap.Radius1 = x.AtVec(motion.R)
	snap.Radius2 = t.anotherR
	snap.Dz = t.dz
	return snap
}
