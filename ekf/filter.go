// Package ekf implements the extended Kalman filter that jointly estimates
// the robot pose and the positions of a bounded set of static landmarks.
package ekf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/viam-ekf-slam/geometry"
)

// unseenVariance seeds the diagonal of every landmark's covariance block so
// that the first observation of a landmark dominates the prior.
const unseenVariance = 1e9

// Config holds the fixed parameters of a filter. Noise matrices are diagonal
// and do not change over the filter's lifetime.
type Config struct {
	// MaxLandmarks bounds the number of landmark slots in the state vector.
	MaxLandmarks int
	// ProcessNoise is the diagonal magnitude of the robot-pose block of Q.
	ProcessNoise float64
	// MeasurementNoise is the diagonal magnitude of R.
	MeasurementNoise float64
	// MeasurementBias is added to each range/bearing measurement, matching
	// the fixed sensor-noise offset of the measurement model.
	MeasurementBias [2]float64
	// InitialPose seeds the robot-pose portion of the state vector.
	InitialPose geometry.Transform2D
}

// Landmark is one estimated map feature.
type Landmark struct {
	ID       int
	Position geometry.Point2D
}

// Filter owns the joint state vector and covariance. The state layout is
// fixed: index 0 is the robot heading, 1/2 are robot x/y, and 3+2k/3+2k+1 are
// the x/y of landmark k. Callers must serialize Predict/Update invocations.
type Filter struct {
	maxLandmarks int
	stateSize    int

	state *mat.VecDense
	covar *mat.Dense

	processNoise     *mat.Dense
	measurementNoise *mat.Dense
	measurementBias  [2]float64

	// seen tracks which landmark slots have been initialized. An explicit
	// flag is used instead of the both-coordinates-zero sentinel so that a
	// landmark sitting exactly at the map origin still initializes once.
	seen []bool
}

// NewFilter returns a filter with the robot pose known exactly and every
// landmark slot at unseenVariance.
func NewFilter(cfg Config) (*Filter, error) {
	if cfg.MaxLandmarks <= 0 {
		return nil, errors.Errorf("max landmark count must be positive, got %d", cfg.MaxLandmarks)
	}
	if cfg.ProcessNoise < 0 {
		return nil, errors.Errorf("process noise must be non-negative, got %v", cfg.ProcessNoise)
	}
	if cfg.MeasurementNoise <= 0 {
		return nil, errors.Errorf("measurement noise must be positive, got %v", cfg.MeasurementNoise)
	}

	stateSize := 3 + 2*cfg.MaxLandmarks

	state := mat.NewVecDense(stateSize, nil)
	state.SetVec(0, cfg.InitialPose.Rotation())
	state.SetVec(1, cfg.InitialPose.Translation().X)
	state.SetVec(2, cfg.InitialPose.Translation().Y)

	covar := mat.NewDense(stateSize, stateSize, nil)
	for i := 3; i < stateSize; i++ {
		covar.Set(i, i, unseenVariance)
	}

	processNoise := mat.NewDense(stateSize, stateSize, nil)
	for i := 0; i < 3; i++ {
		processNoise.Set(i, i, cfg.ProcessNoise)
	}

	measurementNoise := mat.NewDense(2, 2, nil)
	measurementNoise.Set(0, 0, cfg.MeasurementNoise)
	measurementNoise.Set(1, 1, cfg.MeasurementNoise)

	return &Filter{
		maxLandmarks:     cfg.MaxLandmarks,
		stateSize:        stateSize,
		state:            state,
		covar:            covar,
		processNoise:     processNoise,
		measurementNoise: measurementNoise,
		measurementBias:  cfg.MeasurementBias,
		seen:             make([]bool, cfg.MaxLandmarks),
	}, nil
}

// Predict advances the robot-pose portion of the state by one odometry twist
// and propagates the covariance through the linearized motion model. Landmarks
// are static and are not perturbed.
func (f *Filter) Predict(twist geometry.Twist2D) {
	theta := f.state.AtVec(0)

	// mean update, straight-line and arc branches share the integration
	// tolerance with the kinematics model
	if geometry.AlmostEqual(twist.Omega, 0.0) {
		f.state.SetVec(1, f.state.AtVec(1)+twist.X*math.Cos(theta))
		f.state.SetVec(2, f.state.AtVec(2)+twist.X*math.Sin(theta))
	} else {
		ratio := twist.X / twist.Omega
		f.state.SetVec(1, f.state.AtVec(1)+ratio*(math.Sin(theta+twist.Omega)-math.Sin(theta)))
		f.state.SetVec(2, f.state.AtVec(2)+ratio*(-math.Cos(theta+twist.Omega)+math.Cos(theta)))
		f.state.SetVec(0, theta+twist.Omega)
	}

	// state-transition jacobian: identity plus the pose partials with
	// respect to heading, evaluated at the freshly advanced heading
	theta = f.state.AtVec(0)
	jacobian := identity(f.stateSize)
	if geometry.AlmostEqual(twist.Omega, 0.0) {
		jacobian.Set(1, 0, -twist.X*math.Sin(theta))
		jacobian.Set(2, 0, twist.X*math.Cos(theta))
	} else {
		ratio := twist.X / twist.Omega
		jacobian.Set(1, 0, ratio*(math.Cos(theta+twist.Omega)-math.Cos(theta)))
		jacobian.Set(2, 0, ratio*(math.Sin(theta+twist.Omega)-math.Sin(theta)))
	}

	var propagated mat.Dense
	propagated.Mul(jacobian, f.covar)
	propagated.Mul(&propagated, jacobian.T())
	propagated.Add(&propagated, f.processNoise)
	f.covar.Copy(&propagated)
}

// Update fuses a single landmark observation, given as a Cartesian position
// relative to the robot and the landmark's numeric id. The first observation
// of a landmark initializes its slot by projecting the measurement from the
// current pose estimate; subsequent observations run the Kalman correction.
func (f *Filter) Update(x, y float64, landmarkID int) error {
	if landmarkID < 0 || landmarkID >= f.maxLandmarks {
		return errors.Errorf("landmark id %d outside configured capacity %d", landmarkID, f.maxLandmarks)
	}

	measuredRange := math.Hypot(x, y)
	measuredBearing := math.Atan2(y, x)
	z := []float64{
		measuredRange + f.measurementBias[0],
		measuredBearing + f.measurementBias[1],
	}

	slot := 3 + 2*landmarkID
	if !f.seen[landmarkID] {
		theta := f.state.AtVec(0)
		f.state.SetVec(slot, f.state.AtVec(1)+measuredRange*math.Cos(measuredBearing+theta))
		f.state.SetVec(slot+1, f.state.AtVec(2)+measuredRange*math.Sin(measuredBearing+theta))
		f.seen[landmarkID] = true
	}

	deltaX := f.state.AtVec(slot) - f.state.AtVec(1)
	deltaY := f.state.AtVec(slot+1) - f.state.AtVec(2)
	d := deltaX*deltaX + deltaY*deltaY
	if geometry.AlmostEqual(d, 0.0) {
		return errors.Errorf("landmark %d coincides with the robot pose, measurement model is degenerate", landmarkID)
	}

	zHat := []float64{
		math.Sqrt(d),
		geometry.NormalizeAngle(math.Atan2(deltaY, deltaX) - f.state.AtVec(0)),
	}

	jacobian := mat.NewDense(2, f.stateSize, nil)
	jacobian.Set(1, 0, -1)
	jacobian.Set(0, 1, -deltaX/math.Sqrt(d))
	jacobian.Set(0, 2, -deltaY/math.Sqrt(d))
	jacobian.Set(1, 1, deltaY/d)
	jacobian.Set(1, 2, -deltaX/d)
	jacobian.Set(0, slot, deltaX/math.Sqrt(d))
	jacobian.Set(0, slot+1, deltaY/math.Sqrt(d))
	jacobian.Set(1, slot, -deltaY/d)
	jacobian.Set(1, slot+1, deltaX/d)

	// innovation covariance H*P*H^T + R
	var innovationCovar mat.Dense
	innovationCovar.Mul(jacobian, f.covar)
	innovationCovar.Mul(&innovationCovar, jacobian.T())
	innovationCovar.Add(&innovationCovar, f.measurementNoise)

	var innovationInv mat.Dense
	if err := innovationInv.Inverse(&innovationCovar); err != nil {
		return errors.Wrap(err, "innovation covariance is numerically singular")
	}

	// kalman gain K = P*H^T*S^-1
	var gain mat.Dense
	gain.Mul(f.covar, jacobian.T())
	gain.Mul(&gain, &innovationInv)

	innovation := mat.NewVecDense(2, []float64{
		z[0] - zHat[0],
		geometry.NormalizeAngle(z[1] - zHat[1]),
	})

	var correction mat.VecDense
	correction.MulVec(&gain, innovation)
	f.state.AddVec(f.state, &correction)

	// P = (I - K*H)*P, then re-symmetrize to absorb floating-point drift
	var kh mat.Dense
	kh.Mul(&gain, jacobian)
	ikh := identity(f.stateSize)
	ikh.Sub(ikh, &kh)

	var posterior mat.Dense
	posterior.Mul(ikh, f.covar)
	f.covar.Copy(&posterior)
	f.symmetrize()

	return nil
}

// symmetrize rewrites the covariance as (P + P^T)/2.
func (f *Filter) symmetrize() {
	var transposed mat.Dense
	transposed.CloneFrom(f.covar.T())
	f.covar.Add(f.covar, &transposed)
	f.covar.Scale(0.5, f.covar)
}

// SetPose overwrites the robot-pose portion of the state. Landmark estimates
// and the covariance are left untouched.
func (f *Filter) SetPose(pose geometry.Transform2D) {
	f.state.SetVec(0, pose.Rotation())
	f.state.SetVec(1, pose.Translation().X)
	f.state.SetVec(2, pose.Translation().Y)
}

// Pose returns the estimated robot pose.
func (f *Filter) Pose() geometry.Transform2D {
	return geometry.NewTransform2D(
		geometry.Vector2D{X: f.state.AtVec(1), Y: f.state.AtVec(2)},
		f.state.AtVec(0),
	)
}

// Landmark returns the estimated position of the given landmark and whether
// it has been observed yet.
func (f *Filter) Landmark(landmarkID int) (geometry.Point2D, bool) {
	if landmarkID < 0 || landmarkID >= f.maxLandmarks || !f.seen[landmarkID] {
		return geometry.Point2D{}, false
	}
	slot := 3 + 2*landmarkID
	return geometry.Point2D{X: f.state.AtVec(slot), Y: f.state.AtVec(slot + 1)}, true
}

// Landmarks returns every observed landmark in id order.
func (f *Filter) Landmarks() []Landmark {
	var landmarks []Landmark
	for id := 0; id < f.maxLandmarks; id++ {
		if position, ok := f.Landmark(id); ok {
			landmarks = append(landmarks, Landmark{ID: id, Position: position})
		}
	}
	return landmarks
}

// MaxLandmarks returns the configured landmark capacity.
func (f *Filter) MaxLandmarks() int {
	return f.maxLandmarks
}

// State returns a copy of the state vector.
func (f *Filter) State() []float64 {
	state := make([]float64, f.stateSize)
	for i := range state {
		state[i] = f.state.AtVec(i)
	}
	return state
}

// Covariance returns a copy of the covariance matrix.
func (f *Filter) Covariance() *mat.Dense {
	return mat.DenseCopyOf(f.covar)
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
