// Package motion supplies the concrete process and observation models
// for the 9-state robot tracking problem: f, h, their Jacobians, and
// the Q(dt)/R(z)/P0 covariance providers that parameterize a generic
// ekf.Filter.
package motion

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fyt-labs/auto-aim/internal/ekf"
)

// State vector indices, per spec §3.
const (
	Xc = iota
	Vxc
	Yc
	Vyc
	Za
	Vza
	Yaw
	Vyaw
	R
	Dim = 9
)

// Measurement vector indices: (xa, ya, za, yaw).
const (
	MXa = iota
	MYa
	MZa
	MYaw
	MeasurementDim = 4
)

// NoiseConfig holds the per-axis spectral densities and measurement
// noise constants from spec §6's ekf.* configuration block.
type NoiseConfig struct {
	SigmaQX   float64
	SigmaQY   float64
	SigmaQZ   float64
	SigmaQYaw float64
	SigmaQR   float64

	Rx   float64
	Ry   float64
	Rz   float64
	Ryaw float64

	// ReplicateSourceQuirk, when true, reproduces the original
	// implementation's transcription: q_z_z/q_z_vz use SigmaQX instead
	// of SigmaQZ (q_vz_vz stays on SigmaQZ), and q_yaw_vyaw uses SigmaQX
	// instead of SigmaQYaw. Defaults to false (corrected, per-axis Q), per the
	// Open Question resolution in SPEC_FULL.md §12.
	ReplicateSourceQuirk bool
}

// DefaultNoiseConfig returns spec §6's default noise constants.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		SigmaQX:   20,
		SigmaQY:   20,
		SigmaQZ:   20,
		SigmaQYaw: 100,
		SigmaQR:   800,
		Rx:        0.05,
		Ry:        0.05,
		Rz:        0.05,
		Ryaw:      0.02,
	}
}

// Model owns the dt-dependent closures wired into an ekf.Filter. dt
// must be updated (via SetDT) before each Predict call, since Q(dt)
// and the process Jacobian both depend on the live frame interval.
type Model struct {
	Noise NoiseConfig
	dt    float64
}

// NewModel constructs a Model with the given noise configuration.
func NewModel(noise NoiseConfig) *Model {
	return &Model{Noise: noise}
}

// SetDT updates the frame interval used by F, Jf, and Q. Must be
// called once per tick before Predict.
func (m *Model) SetDT(dt float64) {
	m.dt = dt
}

// NewFilter builds an ekf.Filter wired to this model's process and
// observation functions, with P0 = I(9).
func (m *Model) NewFilter() *ekf.Filter {
	p0 := mat.NewSymDense(Dim, nil)
	for i := 0; i < Dim; i++ {
		p0.SetSym(i, i, 1)
	}
	return ekf.New(m.F, m.H, m.Jf, m.Jh, m.Q, m.R, p0)
}

// F is the constant-velocity process transition: position states
// advance by velocity*dt; r is a random walk (identity row).
func (m *Model) F(x *mat.VecDense) *mat.VecDense {
	out := mat.VecDenseCopyOf(x)
	out.SetVec(Xc, x.AtVec(Xc)+x.AtVec(Vxc)*m.dt)
	out.SetVec(Yc, x.AtVec(Yc)+x.AtVec(Vyc)*m.dt)
	out.SetVec(Za, x.AtVec(Za)+x.AtVec(Vza)*m.dt)
	out.SetVec(Yaw, x.AtVec(Yaw)+x.AtVec(Vyaw)*m.dt)
	return out
}

// Jf is the block-diagonal constant-velocity Jacobian of F.
func (m *Model) Jf(*mat.VecDense) *mat.Dense {
	f := mat.NewDense(Dim, Dim, nil)
	for i := 0; i < Dim; i++ {
		f.Set(i, i, 1)
	}
	f.Set(Xc, Vxc, m.dt)
	f.Set(Yc, Vyc, m.dt)
	f.Set(Za, Vza, m.dt)
	f.Set(Yaw, Vyaw, m.dt)
	return f
}

// H is the observation model: a plate at radius r on a robot centered
// at (xc, yc, za) with yaw "yaw" is observed at
//
//	xa = xc - r*cos(yaw), ya = yc - r*sin(yaw), za_obs = za, yaw_obs = yaw.
func (m *Model) H(x *mat.VecDense) *mat.VecDense {
	xc, yc, za, yaw, r := x.AtVec(Xc), x.AtVec(Yc), x.AtVec(Za), x.AtVec(Yaw), x.AtVec(R)

	z := mat.NewVecDense(MeasurementDim, nil)
	z.SetVec(MXa, xc-r*math.Cos(yaw))
	z.SetVec(MYa, yc-r*math.Sin(yaw))
	z.SetVec(MZa, za)
	z.SetVec(MYaw, yaw)
	return z
}

// Jh is the analytic Jacobian of H, evaluated at the predicted state.
func (m *Model) Jh(x *mat.VecDense) *mat.Dense {
	yaw, r := x.AtVec(Yaw), x.AtVec(R)

	h := mat.NewDense(MeasurementDim, Dim, nil)
	h.Set(MXa, Xc, 1)
	h.Set(MXa, Yaw, r*math.Sin(yaw))
	h.Set(MXa, R, -math.Cos(yaw))

	h.Set(MYa, Yc, 1)
	h.Set(MYa, Yaw, -r*math.Cos(yaw))
	h.Set(MYa, R, -math.Sin(yaw))

	h.Set(MZa, Za, 1)

	h.Set(MYaw, Yaw, 1)
	return h
}

// Q builds the process noise covariance from the per-axis spectral
// densities and the current dt. For each independent (position,
// velocity) pair: Q_pp = dt^4/4*sigma2, Q_pv = dt^3/2*sigma2,
// Q_vv = dt^2*sigma2; r is a pure random walk with Q_rr = dt^4/4*sigma2_r.
func (m *Model) Q() *mat.SymDense {
	t := m.dt
	n := m.Noise

	qx := pairBlock(t, n.SigmaQX)
	qy := pairBlock(t, n.SigmaQY)

	// armor_solver_node.cpp:106 substitutes s2qx_ for q_z_z/q_z_vz only,
	// leaving q_vz_vz on s2qz_; replicate that asymmetry exactly rather
	// than swapping the whole z pair.
	qzPosSigma := n.SigmaQZ
	if n.ReplicateSourceQuirk {
		qzPosSigma = n.SigmaQX
	}
	qz := pairBlock(t, qzPosSigma)
	qz.vv = math.Pow(t, 2) * n.SigmaQZ

	qYawYaw := math.Pow(t, 4) / 4 * n.SigmaQYaw
	qYawVyawSigma := n.SigmaQYaw
	if n.ReplicateSourceQuirk {
		qYawVyawSigma = n.SigmaQX
	}
	qYawVyaw := math.Pow(t, 3) / 2 * qYawVyawSigma
	qVyawVyaw := math.Pow(t, 2) * n.SigmaQYaw

	qR := math.Pow(t, 4) / 4 * n.SigmaQR

	q := mat.NewSymDense(Dim, nil)
	q.SetSym(Xc, Xc, qx.pp)
	q.SetSym(Xc, Vxc, qx.pv)
	q.SetSym(Vxc, Vxc, qx.vv)

	q.SetSym(Yc, Yc, qy.pp)
	q.SetSym(Yc, Vyc, qy.pv)
	q.SetSym(Vyc, Vyc, qy.vv)

	q.SetSym(Za, Za, qz.pp)
	q.SetSym(Za, Vza, qz.pv)
	q.SetSym(Vza, Vza, qz.vv)

	q.SetSym(Yaw, Yaw, qYawYaw)
	q.SetSym(Yaw, Vyaw, qYawVyaw)
	q.SetSym(Vyaw, Vyaw, qVyawVyaw)

	q.SetSym(R, R, qR)

	return q
}

type pairCov struct{ pp, pv, vv float64 }

func pairBlock(dt, sigma2 float64) pairCov {
	return pairCov{
		pp: math.Pow(dt, 4) / 4 * sigma2,
		pv: math.Pow(dt, 3) / 2 * sigma2,
		vv: math.Pow(dt, 2) * sigma2,
	}
}

// R returns the measurement noise covariance, scaled by |z| for the
// x/y/z axes since pose accuracy degrades with distance from origin.
func (m *Model) R(z *mat.VecDense) *mat.SymDense {
	n := m.Noise
	r := mat.NewSymDense(MeasurementDim, nil)
	r.SetSym(MXa, MXa, math.Abs(n.Rx*z.AtVec(MXa)))
	r.SetSym(MYa, MYa, math.Abs(n.Ry*z.AtVec(MYa)))
	r.SetSym(MZa, MZa, math.Abs(n.Rz*z.AtVec(MZa)))
	r.SetSym(MYaw, MYaw, n.Ryaw)
	return r
}
