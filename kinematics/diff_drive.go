// Package kinematics implements the differential-drive model mapping wheel
// motion to robot pose and body twist and back.
package kinematics

import (
	"github.com/pkg/errors"

	"github.com/viam-modules/viam-ekf-slam/geometry"
)

// ErrLateralTwist is returned by InverseKinematics when the requested twist
// has a lateral velocity component, which two fixed wheels cannot realize.
var ErrLateralTwist = errors.New("invalid twist: y component must be zero for a differential drive")

// WheelConfig holds the absolute angle of each wheel in radians, as reported
// by the encoders.
type WheelConfig struct {
	Left  float64
	Right float64
}

// WheelVelocities holds per-wheel angular velocity in radians per sample
// period.
type WheelVelocities struct {
	Left  float64
	Right float64
}

// DiffDrive tracks a differential-drive robot's wheel configuration and pose.
// The geometry parameters are fixed at construction; the wheel configuration
// and pose advance as encoder samples are integrated.
type DiffDrive struct {
	halfTrack   float64
	wheelRadius float64
	wheelConfig WheelConfig
	robotConfig geometry.Transform2D
}

// NewDiffDrive returns a model with the given track half-width and wheel
// radius, both in meters, starting at the origin with zeroed wheels.
func NewDiffDrive(halfTrack, wheelRadius float64) (*DiffDrive, error) {
	return NewDiffDriveWithState(halfTrack, wheelRadius, WheelConfig{}, geometry.Identity())
}

// NewDiffDriveWithState returns a model seeded with an initial wheel
// configuration and pose.
func NewDiffDriveWithState(
	halfTrack, wheelRadius float64,
	wheels WheelConfig,
	pose geometry.Transform2D,
) (*DiffDrive, error) {
	if halfTrack <= 0 {
		return nil, errors.Errorf("track half-width must be positive, got %v", halfTrack)
	}
	if wheelRadius <= 0 {
		return nil, errors.Errorf("wheel radius must be positive, got %v", wheelRadius)
	}
	return &DiffDrive{
		halfTrack:   halfTrack,
		wheelRadius: wheelRadius,
		wheelConfig: wheels,
		robotConfig: pose,
	}, nil
}

// WheelTwist converts the wheel displacement between two encoder samples into
// the body-frame twist implied by no-slip rolling, assuming unit time between
// samples. It is a pure query on the drive geometry.
func (dd *DiffDrive) WheelTwist(current, previous WheelConfig) geometry.Twist2D {
	deltaLeft := current.Left - previous.Left
	deltaRight := current.Right - previous.Right

	return geometry.Twist2D{
		Omega: (deltaRight - deltaLeft) * dd.wheelRadius / (2 * dd.halfTrack),
		X:     0.5 * dd.wheelRadius * (deltaLeft + deltaRight),
	}
}

// RobotBodyTwist returns the body twist implied by advancing the wheels from
// the stored configuration to wheels, without mutating any state.
func (dd *DiffDrive) RobotBodyTwist(wheels WheelConfig) geometry.Twist2D {
	return dd.WheelTwist(wheels, dd.wheelConfig)
}

// ForwardKinematics integrates a new absolute wheel sample into the stored
// pose and returns the updated pose. The wheel configuration is advanced to
// the new sample.
func (dd *DiffDrive) ForwardKinematics(wheels WheelConfig) geometry.Transform2D {
	twist := dd.WheelTwist(wheels, dd.wheelConfig)
	dd.wheelConfig = wheels
	dd.robotConfig = dd.robotConfig.Mul(geometry.IntegrateTwist(twist))
	return dd.robotConfig
}

// InverseKinematics returns the wheel velocities realizing the desired body
// twist. A twist with non-zero lateral velocity is rejected.
func (dd *DiffDrive) InverseKinematics(twist geometry.Twist2D) (WheelVelocities, error) {
	if !geometry.AlmostEqual(twist.Y, 0.0) {
		return WheelVelocities{}, ErrLateralTwist
	}
	return WheelVelocities{
		Left:  (twist.X - dd.halfTrack*twist.Omega) / dd.wheelRadius,
		Right: (twist.X + dd.halfTrack*twist.Omega) / dd.wheelRadius,
	}, nil
}

// RobotConfig returns the stored pose.
func (dd *DiffDrive) RobotConfig() geometry.Transform2D {
	return dd.robotConfig
}

// SetRobotConfig teleports the stored pose without touching the wheel
// configuration.
func (dd *DiffDrive) SetRobotConfig(pose geometry.Transform2D) {
	dd.robotConfig = pose
}

// WheelConfig returns the stored wheel configuration.
func (dd *DiffDrive) WheelConfig() WheelConfig {
	return dd.wheelConfig
}

// SetWheelConfig overwrites the stored wheel configuration, e.g. to prime the
// model with the first encoder sample without integrating it as motion.
func (dd *DiffDrive) SetWheelConfig(wheels WheelConfig) {
	dd.wheelConfig = wheels
}
