// Package sensorprocess contains the logic to add wheel encoder and landmark
// detector readings to the ekffacade.
package sensorprocess

import (
	"time"

	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-ekf-slam/ekffacade"
	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// Config holds config needed throughout the process of adding a sensor
// reading to the ekffacade.
type Config struct {
	EKFFacade ekffacade.Interface

	WheelSensor    s.TimedWheelSensor
	LandmarkSensor s.TimedLandmarkSensor

	Timeout time.Duration
	Logger  logging.Logger
}

// remainderOfInterval returns how many milliseconds of the sensor's sample
// interval are left after elapsed milliseconds of work.
func remainderOfInterval(dataFrequencyHz, timeElapsedMs int) int {
	remainder := 1000/dataFrequencyHz - timeElapsedMs
	if remainder < 0 {
		return 0
	}
	return remainder
}
