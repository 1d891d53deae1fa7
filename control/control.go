// Package control converts commanded body twists into the integer wheel
// commands a differential-drive base accepts, and provides a driver that
// caches a constant twist for driving along a circular arc.
package control

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/viam-modules/viam-ekf-slam/geometry"
	"github.com/viam-modules/viam-ekf-slam/kinematics"
)

// WheelCommands is a pair of integer motor commands in motor control units.
type WheelCommands struct {
	Left  int32
	Right int32
}

// CommandLimits holds the per-motor unit conversion and saturation bound.
type CommandLimits struct {
	// MotorCmdPerRadSec is the wheel angular velocity, in radians per
	// second, that one motor control unit commands.
	MotorCmdPerRadSec float64
	// MotorCmdMax is the saturation bound on the magnitude of a command.
	MotorCmdMax int32
}

// Controller converts body twists into clamped wheel commands through the
// inverse kinematics of a differential drive.
type Controller struct {
	drive  *kinematics.DiffDrive
	limits CommandLimits
}

// NewController validates the limits and returns a controller for the given
// drive geometry.
func NewController(drive *kinematics.DiffDrive, limits CommandLimits) (*Controller, error) {
	if drive == nil {
		return nil, errors.New("drive model must not be nil")
	}
	if limits.MotorCmdPerRadSec <= 0 {
		return nil, errors.Errorf("motor command per rad/sec must be positive, got %v", limits.MotorCmdPerRadSec)
	}
	if limits.MotorCmdMax <= 0 {
		return nil, errors.Errorf("motor command max must be positive, got %v", limits.MotorCmdMax)
	}
	return &Controller{drive: drive, limits: limits}, nil
}

// WheelCommands returns the clamped integer wheel commands realizing the
// desired body twist. A twist with non-zero lateral velocity is rejected by
// the inverse kinematics.
func (c *Controller) WheelCommands(twist geometry.Twist2D) (WheelCommands, error) {
	velocities, err := c.drive.InverseKinematics(twist)
	if err != nil {
		return WheelCommands{}, err
	}
	return WheelCommands{
		Left:  c.clamp(velocities.Left),
		Right: c.clamp(velocities.Right),
	}, nil
}

func (c *Controller) clamp(radPerSec float64) int32 {
	cmd := int32(radPerSec / c.limits.MotorCmdPerRadSec)
	if cmd < -c.limits.MotorCmdMax {
		return -c.limits.MotorCmdMax
	}
	if cmd > c.limits.MotorCmdMax {
		return c.limits.MotorCmdMax
	}
	return cmd
}

// TicksToWheelConfig converts raw encoder tick counts into wheel angles in
// radians.
func TicksToWheelConfig(leftTicks, rightTicks int32, ticksPerRadian float64) kinematics.WheelConfig {
	return kinematics.WheelConfig{
		Left:  float64(leftTicks) / ticksPerRadian,
		Right: float64(rightTicks) / ticksPerRadian,
	}
}

// WheelConfigToTicks converts wheel angles in radians into raw encoder tick
// counts.
func WheelConfigToTicks(wheels kinematics.WheelConfig, ticksPerRadian float64) (left, right int32) {
	return int32(wheels.Left * ticksPerRadian), int32(wheels.Right * ticksPerRadian)
}

// Circle caches the constant body twist that drives the robot along a
// circular arc. It holds no twist until SetControl is called; callers poll
// Twist on their own schedule and publish the result.
type Circle struct {
	mu     sync.Mutex
	twist  geometry.Twist2D
	active bool
}

// SetControl caches the twist tracing an arc of the given radius in meters at
// the given angular velocity in radians per second and activates the driver.
func (c *Circle) SetControl(velocity, radius float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.twist = geometry.Twist2D{Omega: velocity, X: velocity * radius}
	c.active = true
}

// Reverse negates the cached twist, driving the same arc in the opposite
// direction.
func (c *Circle) Reverse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.twist.Omega = -c.twist.Omega
	c.twist.X = -c.twist.X
}

// Stop zeroes the cached twist and deactivates the driver. The zero twist
// remains readable so a caller can publish it once as a halt command.
func (c *Circle) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.twist = geometry.Twist2D{}
	c.active = false
}

// Twist returns the cached twist and whether the driver is active.
func (c *Circle) Twist() (geometry.Twist2D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.twist, c.active
}
