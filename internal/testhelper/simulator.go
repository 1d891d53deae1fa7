package testhelper

import (
	"github.com/viam-modules/viam-ekf-slam/control"
	"github.com/viam-modules/viam-ekf-slam/geometry"
	"github.com/viam-modules/viam-ekf-slam/kinematics"
	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// Simulator drives a ground-truth differential-drive robot through a known
// environment and reports the encoder ticks and robot-relative landmark
// observations a real robot would produce.
type Simulator struct {
	drive          *kinematics.DiffDrive
	circle         control.Circle
	ticksPerRadian float64
	landmarks      []geometry.Point2D
}

// NewSimulator returns a simulator with the robot at the origin and the given
// landmarks placed in the world frame.
func NewSimulator(
	halfTrack, wheelRadius, ticksPerRadian float64,
	landmarks []geometry.Point2D,
) (*Simulator, error) {
	drive, err := kinematics.NewDiffDrive(halfTrack, wheelRadius)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		drive:          drive,
		ticksPerRadian: ticksPerRadian,
		landmarks:      landmarks,
	}, nil
}

// DriveCircle commands the robot along an arc of the given radius in meters
// at the given angular velocity in radians per second.
func (sim *Simulator) DriveCircle(velocity, radius float64) {
	sim.circle.SetControl(velocity, radius)
}

// Reverse reverses the commanded arc.
func (sim *Simulator) Reverse() {
	sim.circle.Reverse()
}

// Stop halts the robot.
func (sim *Simulator) Stop() {
	sim.circle.Stop()
}

// Step advances the simulation by dt seconds, rolling the wheels at the
// velocities the commanded twist requires and integrating the resulting
// motion into the ground-truth pose.
func (sim *Simulator) Step(dt float64) error {
	twist, active := sim.circle.Twist()
	if !active {
		return nil
	}

	velocities, err := sim.drive.InverseKinematics(twist)
	if err != nil {
		return err
	}

	wheels := sim.drive.WheelConfig()
	wheels.Left += velocities.Left * dt
	wheels.Right += velocities.Right * dt
	sim.drive.ForwardKinematics(wheels)
	return nil
}

// Pose returns the ground-truth robot pose.
func (sim *Simulator) Pose() geometry.Transform2D {
	return sim.drive.RobotConfig()
}

// EncoderTicks returns the current absolute encoder readings.
func (sim *Simulator) EncoderTicks() (left, right int32) {
	return control.WheelConfigToTicks(sim.drive.WheelConfig(), sim.ticksPerRadian)
}

// Observations returns every landmark expressed in the robot body frame, in
// the order the landmarks were placed.
func (sim *Simulator) Observations() []s.LandmarkObservation {
	bodyFromWorld := sim.drive.RobotConfig().Inverse()
	observations := make([]s.LandmarkObservation, 0, len(sim.landmarks))
	for i, landmark := range sim.landmarks {
		relative := bodyFromWorld.TransformPoint(landmark)
		observations = append(observations, s.LandmarkObservation{
			ID: i,
			X:  relative.X,
			Y:  relative.Y,
		})
	}
	return observations
}
