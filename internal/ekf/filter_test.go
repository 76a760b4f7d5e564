package ekf

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// floatsEqual compares two float64 values within a tolerance.
func floatsEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// newConstantVelocityFilter builds a toy 1D constant-velocity filter
// (state = [position, velocity], measurement = position) used to
// exercise the generic predict/update machinery independent of the
// robot motion model.
func newConstantVelocityFilter(dt float64) *Filter {
	f := func(x *mat.VecDense) *mat.VecDense {
		out := mat.NewVecDense(2, nil)
		out.SetVec(0, x.AtVec(0)+x.AtVec(1)*dt)
		out.SetVec(1, x.AtVec(1))
		return out
	}
	h := func(x *mat.VecDense) *mat.VecDense {
		out := mat.NewVecDense(1, nil)
		out.SetVec(0, x.AtVec(0))
		return out
	}
	jf := func(*mat.VecDense) *mat.Dense {
		return mat.NewDense(2, 2, []float64{1, dt, 0, 1})
	}
	jh := func(*mat.VecDense) *mat.Dense {
		return mat.NewDense(1, 2, []float64{1, 0})
	}
	q := func() *mat.SymDense {
		return mat.NewSymDense(2, []float64{0.01, 0, 0, 0.01})
	}
	r := func(*mat.VecDense) *mat.SymDense {
		return mat.NewSymDense(1, []float64{0.1})
	}
	p0 := mat.NewSymDense(2, []float64{1, 0, 0, 1})

	return New(f, h, jf, jh, q, r, p0)
}

func TestFilterPredictAdvancesPositionByVelocity(t *testing.T) {
	kf := newConstantVelocityFilter(1.0)
	kf.SetState(mat.NewVecDense(2, []float64{0, 2}))

	xPred := kf.Predict()

	if !floatsEqual(xPred.AtVec(0), 2.0, 1e-9) {
		t.Errorf("expected predicted position 2.0, got %v", xPred.AtVec(0))
	}
	if !floatsEqual(xPred.AtVec(1), 2.0, 1e-9) {
		t.Errorf("expected predicted velocity unchanged at 2.0, got %v", xPred.AtVec(1))
	}
}

func TestFilterUpdatePullsStateTowardMeasurement(t *testing.T) {
	kf := newConstantVelocityFilter(1.0)
	kf.SetState(mat.NewVecDense(2, []float64{0, 1}))

	kf.Predict()
	xPost, err := kf.Update(mat.NewVecDense(1, []float64{3.0}))
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	// Predicted position was 1.0; measurement says 3.0. Posterior
	// should land strictly between prediction and measurement.
	if xPost.AtVec(0) <= 1.0 || xPost.AtVec(0) >= 3.0 {
		t.Errorf("expected posterior position between 1.0 and 3.0, got %v", xPost.AtVec(0))
	}
}

func TestFilterUpdateWithoutPredictFails(t *testing.T) {
	kf := newConstantVelocityFilter(1.0)
	kf.SetState(mat.NewVecDense(2, []float64{0, 1}))

	_, err := kf.Update(mat.NewVecDense(1, []float64{3.0}))
	if err == nil {
		t.Fatal("expected an error when Update is called before Predict")
	}
}

func TestFilterRejectsSingularInnovationCovariance(t *testing.T) {
	f := func(x *mat.VecDense) *mat.VecDense { return mat.VecDenseCopyOf(x) }
	h := func(x *mat.VecDense) *mat.VecDense {
		out := mat.NewVecDense(1, nil)
		out.SetVec(0, x.AtVec(0))
		return out
	}
	jf := func(*mat.VecDense) *mat.Dense { return mat.NewDense(1, 1, []float64{1}) }
	jh := func(*mat.VecDense) *mat.Dense { return mat.NewDense(1, 1, []float64{1}) }
	q := func() *mat.SymDense { return mat.NewSymDense(1, []float64{0}) }
	// Zero measurement noise on a zero-covariance prior drives the
	// innovation covariance to exactly zero, which is singular.
	r := func(*mat.VecDense) *mat.SymDense { return mat.NewSymDense(1, []float64{0}) }
	p0 := mat.NewSymDense(1, []float64{0})

	kf := New(f, h, jf, jh, q, r, p0)
	kf.SetState(mat.NewVecDense(1, []float64{5}))
	kf.Predict()

	_, err := kf.Update(mat.NewVecDense(1, []float64{10}))
	if err == nil {
		t.Fatal("expected an error for a singular innovation covariance")
	}
	if !errors.Is(err, ErrSingular) {
		t.Errorf("expected error to wrap ErrSingular, got %v", err)
	}
}
