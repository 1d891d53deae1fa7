package kinematics

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/viam-modules/viam-ekf-slam/geometry"
)

const testTolerance = 1e-9

func TestNewDiffDrive(t *testing.T) {
	_, err := NewDiffDrive(0, 1)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDiffDrive(1, -0.1)
	test.That(t, err, test.ShouldNotBeNil)

	dd, err := NewDiffDrive(0.5, 0.1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dd.RobotConfig(), test.ShouldResemble, geometry.Identity())
	test.That(t, dd.WheelConfig(), test.ShouldResemble, WheelConfig{})
}

func TestPureTranslation(t *testing.T) {
	dd, err := NewDiffDrive(0.8, 1.0)
	test.That(t, err, test.ShouldBeNil)

	vels, err := dd.InverseKinematics(geometry.Twist2D{X: 1.0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, vels.Left, test.ShouldAlmostEqual, 1.0, testTolerance)
	test.That(t, vels.Right, test.ShouldAlmostEqual, 1.0, testTolerance)

	pose := dd.ForwardKinematics(WheelConfig{Left: 1.0, Right: 1.0})
	test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 1.0, testTolerance)
	test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 0.0, testTolerance)
	test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 0.0, testTolerance)
	test.That(t, dd.WheelConfig(), test.ShouldResemble, WheelConfig{Left: 1.0, Right: 1.0})
}

func TestPureRotation(t *testing.T) {
	dd, err := NewDiffDrive(1.0, 1.0)
	test.That(t, err, test.ShouldBeNil)

	vels, err := dd.InverseKinematics(geometry.Twist2D{Omega: 1.0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, vels.Left, test.ShouldAlmostEqual, -1.0, testTolerance)
	test.That(t, vels.Right, test.ShouldAlmostEqual, 1.0, testTolerance)

	twist := dd.RobotBodyTwist(WheelConfig{Left: -1.0, Right: 1.0})
	test.That(t, twist.Omega, test.ShouldAlmostEqual, 1.0, testTolerance)
	test.That(t, twist.X, test.ShouldAlmostEqual, 0.0, testTolerance)
	test.That(t, twist.Y, test.ShouldEqual, 0.0)

	pose := dd.ForwardKinematics(WheelConfig{Left: -1.0, Right: 1.0})
	test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 0.0, testTolerance)
	test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 0.0, testTolerance)
	test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 1.0, testTolerance)
}

func TestCircularArc(t *testing.T) {
	dd, err := NewDiffDrive(1.0, 1.0)
	test.That(t, err, test.ShouldBeNil)

	vels, err := dd.InverseKinematics(geometry.Twist2D{Omega: 2 * math.Pi, X: 2.0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, vels.Left, test.ShouldAlmostEqual, -2*math.Pi+2.0, testTolerance)
	test.That(t, vels.Right, test.ShouldAlmostEqual, 2*math.Pi+2.0, testTolerance)

	// one full turn in place of the arc center returns the robot to its start
	pose := dd.ForwardKinematics(WheelConfig{Left: -2*math.Pi + 2.0, Right: 2*math.Pi + 2.0})
	test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 0.0, 1e-5)
	test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 0.0, 1e-5)
	// a full revolution normalizes back to zero rotation
	test.That(t, geometry.NormalizeAngle(pose.Rotation()), test.ShouldAlmostEqual, 0.0, 1e-5)
}

func TestZeroDisplacement(t *testing.T) {
	dd, err := NewDiffDriveWithState(
		0.5, 0.1,
		WheelConfig{Left: 2.0, Right: 2.0},
		geometry.NewTransform2D(geometry.Vector2D{X: 1, Y: 2}, 0.3),
	)
	test.That(t, err, test.ShouldBeNil)

	twist := dd.RobotBodyTwist(WheelConfig{Left: 2.0, Right: 2.0})
	test.That(t, twist, test.ShouldResemble, geometry.Twist2D{})

	pose := dd.ForwardKinematics(WheelConfig{Left: 2.0, Right: 2.0})
	test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 1, testTolerance)
	test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 2, testTolerance)
	test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 0.3, testTolerance)
}

func TestEqualWheelDisplacement(t *testing.T) {
	// wheel radius 0.1, track width 1.0, equal displacement of 0.2 rad each
	dd, err := NewDiffDrive(0.5, 0.1)
	test.That(t, err, test.ShouldBeNil)

	pose := dd.ForwardKinematics(WheelConfig{Left: 0.2, Right: 0.2})
	test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 0.02, testTolerance)
	test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 0.0, testTolerance)
	test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 0.0, testTolerance)
}

func TestInvalidTwist(t *testing.T) {
	dd, err := NewDiffDrive(1.0, 1.0)
	test.That(t, err, test.ShouldBeNil)

	_, err = dd.InverseKinematics(geometry.Twist2D{Omega: 2 * math.Pi, X: 2.0, Y: 1.0})
	test.That(t, err, test.ShouldBeError, ErrLateralTwist)
}

func TestSetRobotConfig(t *testing.T) {
	dd, err := NewDiffDrive(0.5, 0.1)
	test.That(t, err, test.ShouldBeNil)
	dd.SetWheelConfig(WheelConfig{Left: 1, Right: 2})

	teleport := geometry.NewTransform2D(geometry.Vector2D{X: -3, Y: 4}, math.Pi/4)
	dd.SetRobotConfig(teleport)
	test.That(t, dd.RobotConfig(), test.ShouldResemble, teleport)
	// teleporting must not disturb the wheel configuration
	test.That(t, dd.WheelConfig(), test.ShouldResemble, WheelConfig{Left: 1, Right: 2})
}

func TestForwardThenTurn(t *testing.T) {
	dd, err := NewDiffDrive(0.5, 0.1)
	test.That(t, err, test.ShouldBeNil)

	dd.ForwardKinematics(WheelConfig{Left: 0.2, Right: 0.2})
	// equal and opposite displacement spins in place by r*(dr-dl)/(2*half)
	pose := dd.ForwardKinematics(WheelConfig{Left: 0.2 - 0.5, Right: 0.2 + 0.5})
	test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 0.02, testTolerance)
	test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 0.0, testTolerance)
	test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 0.1, testTolerance)
}
