package inject

import (
	"context"

	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// TimedLandmarkSensor is an injected TimedLandmarkSensor.
type TimedLandmarkSensor struct {
	s.LandmarkDetector
	NameFunc                 func() string
	DataFrequencyHzFunc      func() int
	TimedLandmarkReadingFunc func(ctx context.Context) (s.TimedLandmarkReadingResponse, error)
}

// Name calls the injected Name or the real version.
func (tls *TimedLandmarkSensor) Name() string {
	if tls.NameFunc == nil {
		return tls.LandmarkDetector.Name()
	}
	return tls.NameFunc()
}

// DataFrequencyHz calls the injected DataFrequencyHz or the real version.
func (tls *TimedLandmarkSensor) DataFrequencyHz() int {
	if tls.DataFrequencyHzFunc == nil {
		return tls.LandmarkDetector.DataFrequencyHz()
	}
	return tls.DataFrequencyHzFunc()
}

// TimedLandmarkReading calls the injected TimedLandmarkReading or the real version.
func (tls *TimedLandmarkSensor) TimedLandmarkReading(ctx context.Context) (s.TimedLandmarkReadingResponse, error) {
	if tls.TimedLandmarkReadingFunc == nil {
		return tls.LandmarkDetector.TimedLandmarkReading(ctx)
	}
	return tls.TimedLandmarkReadingFunc(ctx)
}
