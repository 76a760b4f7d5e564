package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/fyt-labs/auto-aim/internal/config"
	"github.com/fyt-labs/auto-aim/internal/geometry"
)

func floatsEqual(a, b, epsilon float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= epsilon
}

func obs(id string, x, y, z, yaw float64) Observation {
	return Observation{
		NumericID: id,
		Pose:      Pose{Position: geometry.Position{X: x, Y: y, Z: z}, Yaw: yaw},
	}
}

// plate0Obs builds the observation a robot centered at (xc,yc,za) with
// the given yaw and radius r would produce for its i=0 plate (the
// exact inverse of the observation model H). Feeding this back
// reproduces a steady-state: the filter's prediction already equals
// the observation, so association and update leave the state
// essentially unchanged.
func plate0Obs(id string, xc, yc, za, yaw, r float64) Observation {
	return obs(id, xc-r*math.Cos(yaw), yc-r*math.Sin(yaw), za, yaw)
}

func newTestTracker() *Tracker {
	cfg := config.DefaultConfig()
	return New(cfg)
}

func TestColdStartGoesLostToDetecting(t *testing.T) {
	tr := newTestTracker()
	if tr.State() != Lost {
		t.Fatalf("expected initial state LOST, got %s", tr.State())
	}

	start := time.Unix(0, 0)
	if err := tr.Step([]Observation{obs("3", 1, 0, 0.1, 0)}, start); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.State() != Detecting {
		t.Fatalf("expected DETECTING after first observation, got %s", tr.State())
	}
	if tr.TrackedID() != "3" {
		t.Fatalf("expected tracked id 3, got %s", tr.TrackedID())
	}

	x := tr.filter.State()
	if !floatsEqual(x.AtVec(0), 1.0, 1e-9) || !floatsEqual(x.AtVec(2), 0.0, 1e-9) || !floatsEqual(x.AtVec(4), 0.1, 1e-9) {
		t.Fatalf("expected init posterior position (1,0,0.1), got (%.4f,%.4f,%.4f)", x.AtVec(0), x.AtVec(2), x.AtVec(4))
	}
	if !floatsEqual(x.AtVec(8), 0.26, 1e-9) {
		t.Fatalf("expected initial r=0.26, got %.4f", x.AtVec(8))
	}
}

// driveToTracking initializes a track at (xc,yc,za,yaw) and feeds
// steady-state-consistent i=0 observations (see plate0Obs) until the
// tracker confirms into TRACKING, returning the final tick's stamp.
func driveToTracking(t *testing.T, tr *Tracker, start time.Time, id string, xc, yc, za, yaw, r float64) time.Time {
	t.Helper()
	dt := 20 * time.Millisecond
	stamp := start

	tr.Step([]Observation{plate0Obs(id, xc, yc, za, yaw, r)}, stamp)
	for i := 1; i <= tr.cfg.Tracker.TrackingThres; i++ {
		stamp = stamp.Add(dt)
		if err := tr.Step([]Observation{plate0Obs(id, xc, yc, za, yaw, r)}, stamp); err != nil {
			t.Fatalf("unexpected error driving to tracking: %v", err)
		}
	}
	if tr.State() != Tracking {
		t.Fatalf("failed to reach TRACKING, got %s", tr.State())
	}
	return stamp
}

func TestConfirmationReachesTracking(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 0)
	driveToTracking(t, tr, start, "1", 1, 0, 0, 0, 0.26)
}

func TestTempLostThenRecoversToTracking(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 0)
	stamp := driveToTracking(t, tr, start, "1", 1, 0, 0, 0, 0.26)

	dt := 20 * time.Millisecond

	// A single missed frame drops to TEMP_LOST without resetting the track.
	stamp = stamp.Add(dt)
	if err := tr.Step(nil, stamp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.State() != TempLost {
		t.Fatalf("expected TEMP_LOST after a missed frame, got %s", tr.State())
	}
	if tr.TrackedID() != "1" {
		t.Fatalf("track identity should survive TEMP_LOST, got %q", tr.TrackedID())
	}

	// Reassociating brings it back to TRACKING.
	stamp = stamp.Add(dt)
	if err := tr.Step([]Observation{plate0Obs("1", 1, 0, 0, 0, 0.26)}, stamp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.State() != Tracking {
		t.Fatalf("expected TRACKING after reassociation, got %s", tr.State())
	}
}

func TestTempLostExpiresToLostAfterThreshold(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 0)
	stamp := driveToTracking(t, tr, start, "1", 1, 0, 0, 0, 0.26)

	dt := 20 * time.Millisecond
	lostThres := int(math.Abs(tr.cfg.Tracker.LostTimeThres/dt.Seconds())) + 2

	for i := 0; i < lostThres; i++ {
		stamp = stamp.Add(dt)
		tr.Step(nil, stamp)
	}

	if tr.State() != Lost {
		t.Fatalf("expected LOST after exceeding lost_thres misses, got %s", tr.State())
	}
	if tr.TrackedID() != "" {
		t.Fatalf("expected tracked id cleared on LOST, got %q", tr.TrackedID())
	}
}

func TestOutlierObservationIsRejectedByGating(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 0)
	stamp := driveToTracking(t, tr, start, "1", 1, 0, 0, 0, 0.26)

	// Same id, but far outside max_match_distance: should not associate.
	stamp = stamp.Add(20 * time.Millisecond)
	tr.Step([]Observation{obs("1", 50, 50, 0, 0)}, stamp)

	if tr.Updated() {
		t.Fatal("expected outlier observation to be rejected, not fused")
	}
	if tr.State() != TempLost {
		t.Fatalf("expected TEMP_LOST after a gated-out observation, got %s", tr.State())
	}
}

func TestArmorJumpSwapsRadiusPair(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 0)
	// numeric id "2" maps to a 4-plate robot.
	stamp := driveToTracking(t, tr, start, "2", 1, 0, 0, 0, 0.26)

	initialR := tr.filter.State().AtVec(8) // motion.R
	initialAnotherR := tr.anotherR

	// A plate near position index 1 (rotated ~pi/2 from the reference
	// plate) should resolve as an armor jump and swap the radius pair.
	jumpYaw := math.Pi/2 + 0.01
	jump := plate0Obs("2", 1, 0, 0, jumpYaw, initialAnotherR)

	stamp = stamp.Add(20 * time.Millisecond)
	if err := tr.Step([]Observation{jump}, stamp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !tr.Updated() {
		t.Fatal("expected the jump observation to associate and update")
	}
	if tr.anotherR != initialR {
		t.Fatalf("expected another_r to take the pre-jump radius %.4f, got %.4f", initialR, tr.anotherR)
	}
}

func TestSamePlateLargeYawDeltaIsFusedNotRejected(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 0)
	// numeric id "1" maps to a 2-plate robot; converges to xc=1,yc=0,yaw=0,r=0.26.
	stamp := driveToTracking(t, tr, start, "1", 1, 0, 0, 0, 0.26)

	// Same position as the predicted i=0 plate (0.74,0,0) but with a
	// yaw far outside max_match_yaw_diff (default 1.0 rad). Step 6
	// (miss) is gated on distance alone, so this must still associate
	// to plate 0 and fuse with a yaw reset rather than being dropped.
	bigYawDelta := obs("1", 0.74, 0, 0, 1.2)

	stamp = stamp.Add(20 * time.Millisecond)
	if err := tr.Step([]Observation{bigYawDelta}, stamp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !tr.Updated() {
		t.Fatal("expected a close-distance, yaw-mismatched observation to be fused, not rejected")
	}
	if tr.State() != Tracking {
		t.Fatalf("expected TRACKING to be preserved, got %s", tr.State())
	}

	yaw := tr.filter.State().AtVec(6) // motion.Yaw
	if !floatsEqual(yaw, 1.2, 0.3) {
		t.Fatalf("expected yaw to be pulled toward the observation's 1.2, got %.4f", yaw)
	}
}

func TestYawWrapUnwrapsContinuously(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 0)
	nearPi := math.Pi - 0.05
	stamp := driveToTracking(t, tr, start, "1", 1, 0, 0, nearPi, 0.26)

	// The next observed yaw wraps past +/-pi; UnwrapYaw should keep the
	// filter's yaw state continuous rather than jumping by ~2pi.
	wrapped := -math.Pi + 0.05
	next := plate0Obs("1", 1, 0, 0, wrapped, 0.26)

	stamp = stamp.Add(20 * time.Millisecond)
	if err := tr.Step([]Observation{next}, stamp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	yaw := tr.filter.State().AtVec(6) // motion.Yaw
	if !floatsEqual(yaw, nearPi+0.1, 0.3) {
		t.Fatalf("expected yaw to continue past pi without wrapping discontinuity, got %.4f", yaw)
	}
}

func TestNonMonotonicTickIsRejected(t *testing.T) {
	tr := newTestTracker()
	start := time.Unix(0, 10)
	tr.Step([]Observation{obs("1", 1, 0, 0, 0)}, start)

	earlier := start.Add(-time.Second)
	if err := tr.Step([]Observation{obs("1", 1, 0, 0, 0)}, earlier); err == nil {
		t.Fatal("expected an error for a non-monotonic tick")
	}
}
