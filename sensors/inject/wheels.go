// Package inject provides dependency injected structures for mocking interfaces.
package inject

import (
	"context"

	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// TimedWheelSensor is an injected TimedWheelSensor.
type TimedWheelSensor struct {
	s.WheelEncoders
	NameFunc              func() string
	DataFrequencyHzFunc   func() int
	TimedWheelReadingFunc func(ctx context.Context) (s.TimedWheelReadingResponse, error)
}

// Name calls the injected Name or the real version.
func (tws *TimedWheelSensor) Name() string {
	if tws.NameFunc == nil {
		return tws.WheelEncoders.Name()
	}
	return tws.NameFunc()
}

// DataFrequencyHz calls the injected DataFrequencyHz or the real version.
func (tws *TimedWheelSensor) DataFrequencyHz() int {
	if tws.DataFrequencyHzFunc == nil {
		return tws.WheelEncoders.DataFrequencyHz()
	}
	return tws.DataFrequencyHzFunc()
}

// TimedWheelReading calls the injected TimedWheelReading or the real version.
func (tws *TimedWheelSensor) TimedWheelReading(ctx context.Context) (s.TimedWheelReadingResponse, error) {
	if tws.TimedWheelReadingFunc == nil {
		return tws.WheelEncoders.TimedWheelReading(ctx)
	}
	return tws.TimedWheelReadingFunc(ctx)
}
