// Package ekf implements a generic discrete extended Kalman filter.
//
// The filter itself carries no knowledge of what it is tracking: the
// process and observation models, their Jacobians, and the noise
// covariance providers are all supplied as function values at
// construction. See package motion for the concrete 9-state robot
// model wired through this filter.
package ekf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ProcessFunc computes the next state x' = f(x).
type ProcessFunc func(x *mat.VecDense) *mat.VecDense

// ObservationFunc computes the expected measurement z = h(x).
type ObservationFunc func(x *mat.VecDense) *mat.VecDense

// JacobianFunc evaluates a Jacobian matrix at the given state.
type JacobianFunc func(x *mat.VecDense) *mat.Dense

// ProcessNoiseFunc returns the process noise covariance Q. It is
// called once per predict() and typically closes over a dt owned by
// the caller, since dt varies tick to tick.
type ProcessNoiseFunc func() *mat.SymDense

// MeasurementNoiseFunc returns the measurement noise covariance R for
// a given observation z; pose accuracy degrades with distance from
// the origin so R is allowed to depend on z.
type MeasurementNoiseFunc func(z *mat.VecDense) *mat.SymDense

// Filter is a generic discrete EKF parameterized by process and
// observation models, their Jacobians, and noise covariance
// providers. It is not safe for concurrent use; the owning Tracker is
// expected to serialize predict()/update() pairs.
type Filter struct {
	F  ProcessFunc
	H  ObservationFunc
	Jf JacobianFunc
	Jh JacobianFunc
	Q  ProcessNoiseFunc
	R  MeasurementNoiseFunc

	p0 *mat.SymDense

	x     *mat.VecDense // posterior state
	p     *mat.Dense    // posterior covariance
	xPred *mat.VecDense // last predicted state
	pPred *mat.Dense    // last predicted covariance
}

// New constructs a Filter with the given model and initial error
// covariance P0. The filter starts with a zero state; call SetState
// before the first Predict.
func New(f ProcessFunc, h ObservationFunc, jf, jh JacobianFunc,
	q ProcessNoiseFunc, r MeasurementNoiseFunc, p0 *mat.SymDense) *Filter {

	n, _ := p0.Dims()

	filt := &Filter{
		F: f, H: h, Jf: jf, Jh: jh, Q: q, R: r,
		p0: p0,
		x:  mat.NewVecDense(n, nil),
		p:  mat.NewDense(n, n, nil),
	}
	filt.p.Copy(p0)
	return filt
}

// SetState assigns the posterior state to x and resets the error
// covariance to P0.
func (kf *Filter) SetState(x *mat.VecDense) {
	kf.x = mat.VecDenseCopyOf(x)
	n := kf.p0.SymmetricDim()
	kf.p = mat.NewDense(n, n, nil)
	kf.p.Copy(kf.p0)
}

// State returns the current posterior state.
func (kf *Filter) State() *mat.VecDense {
	return kf.x
}

// Predict computes x_pred = f(x_post), F = Jf(x_post),
// P_pred = F P_post F^T + Q, and returns x_pred. A subsequent Update
// (which commits or rolls back) or CommitPrediction must be called
// before the next Predict to settle the prediction.
func (kf *Filter) Predict() *mat.VecDense {
	n, _ := kf.p.Dims()

	kf.xPred = kf.F(kf.x)

	jf := kf.Jf(kf.x)
	q := kf.Q()

	pPred := mat.NewDense(n, n, nil)
	pPred.Mul(jf, kf.p)
	pPred.Mul(pPred, jf.T())
	pPred.Add(pPred, q)
	kf.pPred = pPred

	return kf.xPred
}

// Update performs the EKF correction step using measurement z. On
// success it commits x_post/P_post and returns them. If the
// innovation covariance S is not invertible, the filter rolls back to
// the predicted state (x_pred, P_pred) and returns the prediction-only
// error so the caller can treat the tick as a rejected measurement.
func (kf *Filter) Update(z *mat.VecDense) (*mat.VecDense, error) {
	if kf.xPred == nil || kf.pPred == nil {
		return nil, errors.New("ekf: update called without a prior predict")
	}

	m, _ := z.Dims()
	n, _ := kf.pPred.Dims()

	jh := kf.Jh(kf.xPred)
	r := kf.R(z)

	// S = H P_pred H^T + R
	hp := mat.NewDense(m, n, nil)
	hp.Mul(jh, kf.pPred)

	s := mat.NewDense(m, m, nil)
	s.Mul(hp, jh.T())
	s.Add(s, r)

	sSym := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			sSym.SetSym(i, j, s.At(i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sSym); !ok {
		kf.rollback()
		return kf.x, fmt.Errorf("ekf: innovation covariance not invertible: %w", ErrSingular)
	}

	// K^T = S^-1 (H P_pred)  =>  K = (S^-1 H P_pred)^T, solved via Cholesky.
	var kT mat.Dense
	if err := chol.SolveTo(&kT, hp); err != nil {
		kf.rollback()
		return kf.x, fmt.Errorf("ekf: kalman gain solve failed: %w", err)
	}

	k := mat.DenseCopyOf(kT.T())

	innovation := mat.NewVecDense(m, nil)
	innovation.SubVec(z, kf.H(kf.xPred))

	correction := mat.NewVecDense(n, nil)
	correction.MulVec(k, innovation)

	xPost := mat.NewVecDense(n, nil)
	xPost.AddVec(kf.xPred, correction)

	if !finiteVec(xPost) {
		kf.rollback()
		return kf.x, fmt.Errorf("ekf: posterior state non-finite: %w", ErrNonFinite)
	}

	kh := mat.NewDense(n, n, nil)
	kh.Mul(k, jh)

	identity := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		identity.Set(i, i, 1)
	}
	identity.Sub(identity, kh)

	pPost := mat.NewDense(n, n, nil)
	pPost.Mul(identity, kf.pPred)

	kf.x = xPost
	kf.p = pPost
	kf.xPred = nil
	kf.pPred = nil

	return kf.x, nil
}

// rollback discards a rejected update, leaving the filter at its
// predicted state so FSM bookkeeping can still treat the tick as a
// miss without losing the time propagation.
func (kf *Filter) rollback() {
	kf.CommitPrediction()
}

// Predicted returns the most recent Predict() result. Valid only
// between a Predict/OverridePrediction call and the matching Update
// or CommitPrediction; callers use it to associate observations
// against the prediction before committing a correction (spec §4.1).
func (kf *Filter) Predicted() *mat.VecDense {
	return kf.xPred
}

// OverridePrediction replaces the pending prediction with a
// caller-supplied state, keeping P_pred unchanged. This lets a
// tracker apply a discrete geometry relabeling (an armor-plate jump)
// to the predicted state before Update folds in the new measurement.
func (kf *Filter) OverridePrediction(x *mat.VecDense) {
	kf.xPred = x
}

// CommitPrediction accepts the pending prediction as the posterior
// with no measurement correction, for ticks where no observation
// associated but the state must still propagate (e.g. TEMP_LOST).
func (kf *Filter) CommitPrediction() *mat.VecDense {
	kf.x = kf.xPred
	kf.p = kf.pPred
	kf.xPred = nil
	kf.pPred = nil
	return kf.x
}

// SetStateDim overwrites a single entry of the posterior state
// in-place, leaving the covariance untouched. Used for hard physical
// clamps (e.g. keeping the radius within its valid range) that the
// motion model itself does not enforce.
func (kf *Filter) SetStateDim(i int, v float64) {
	kf.x.SetVec(i, v)
}

func finiteVec(v *mat.VecDense) bool {
	n, _ := v.Dims()
	for i := 0; i < n; i++ {
		if math.IsNaN(v.AtVec(i)) || math.IsInf(v.AtVec(i), 0) {
			return false
		}
	}
	return true
}

// ErrSingular and ErrNonFinite classify why Update rejected a
// measurement; both map to spec's FilterNumericalFailure.
var (
	ErrSingular  = errors.New("innovation covariance is singular")
	ErrNonFinite = errors.New("state vector contains a non-finite value")
)
