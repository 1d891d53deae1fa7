// Package sensors defines the timed sensor interfaces the SLAM service reads from.
package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

const replayTimestampErrorMessage = "replay sensor timestamp parse error"

// timedReader is the common shape of the timed sensors in this package, used
// by the shared validation loop.
type timedReader interface {
	read(ctx context.Context) error
}

// validateGetData checks every sensorValidationInterval whether the provided
// sensor returned a valid timed reading, until either success or
// sensorValidationMaxTimeout has elapsed.
// Returns an error if no valid readings were returned.
func validateGetData(
	ctx context.Context,
	sensor timedReader,
	sensorValidationMaxTimeout time.Duration,
	sensorValidationInterval time.Duration,
	logger logging.Logger,
) error {
	startTime := time.Now().UTC()

	for {
		err := sensor.read(ctx)
		if err == nil {
			break
		}

		logger.Debugw("validateGetData hit error: ", "error", err)
		if time.Since(startTime) >= sensorValidationMaxTimeout {
			return errors.Wrap(err, "validateGetData timeout")
		}
		if !goutils.SelectContextOrWait(ctx, sensorValidationInterval) {
			return ctx.Err()
		}
	}

	return nil
}

type wheelReader struct{ wheels TimedWheelSensor }

func (r wheelReader) read(ctx context.Context) error {
	_, err := r.wheels.TimedWheelReading(ctx)
	return err
}

type landmarkReader struct{ landmarks TimedLandmarkSensor }

func (r landmarkReader) read(ctx context.Context) error {
	_, err := r.landmarks.TimedLandmarkReading(ctx)
	return err
}

// ValidateGetWheelData checks that the wheel encoders return valid timed
// readings before the service starts consuming them.
func ValidateGetWheelData(
	ctx context.Context,
	wheels TimedWheelSensor,
	sensorValidationMaxTimeout time.Duration,
	sensorValidationInterval time.Duration,
	logger logging.Logger,
) error {
	ctx, span := trace.StartSpan(ctx, "viamekfslam::sensors::ValidateGetWheelData")
	defer span.End()

	return validateGetData(ctx, wheelReader{wheels}, sensorValidationMaxTimeout, sensorValidationInterval, logger)
}

// ValidateGetLandmarkData checks that the landmark detector returns valid
// timed readings before the service starts consuming them.
func ValidateGetLandmarkData(
	ctx context.Context,
	landmarks TimedLandmarkSensor,
	sensorValidationMaxTimeout time.Duration,
	sensorValidationInterval time.Duration,
	logger logging.Logger,
) error {
	ctx, span := trace.StartSpan(ctx, "viamekfslam::sensors::ValidateGetLandmarkData")
	defer span.End()

	return validateGetData(ctx, landmarkReader{landmarks}, sensorValidationMaxTimeout, sensorValidationInterval, logger)
}
