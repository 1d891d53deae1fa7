package sensors_test

import (
	"context"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

const (
	testValidationMaxTimeout = 50 * time.Millisecond
	testValidationInterval   = time.Millisecond
)

func TestValidateGetWheelData(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	t.Run("returns nil for working encoders", func(t *testing.T) {
		deps := s.SetupDeps(s.GoodEncoder, s.SecondGoodEncoder, "")
		wheels, err := s.NewWheelEncoders(ctx, deps,
			string(s.GoodEncoder), string(s.SecondGoodEncoder), s.TestTicksPerRadian, 200, logger)
		test.That(t, err, test.ShouldBeNil)

		err = s.ValidateGetWheelData(ctx, wheels, testValidationMaxTimeout, testValidationInterval, logger)
		test.That(t, err, test.ShouldBeNil)
	})

	t.Run("times out on persistently erroring encoders", func(t *testing.T) {
		deps := s.SetupDeps(s.EncoderWithErroringFunctions, s.GoodEncoder, "")
		wheels, err := s.NewWheelEncoders(ctx, deps,
			string(s.EncoderWithErroringFunctions), string(s.GoodEncoder), s.TestTicksPerRadian, 200, logger)
		test.That(t, err, test.ShouldBeNil)

		err = s.ValidateGetWheelData(ctx, wheels, testValidationMaxTimeout, testValidationInterval, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "validateGetData timeout")
	})

	t.Run("returns the context error when cancelled", func(t *testing.T) {
		deps := s.SetupDeps(s.EncoderWithErroringFunctions, s.GoodEncoder, "")
		wheels, err := s.NewWheelEncoders(ctx, deps,
			string(s.EncoderWithErroringFunctions), string(s.GoodEncoder), s.TestTicksPerRadian, 200, logger)
		test.That(t, err, test.ShouldBeNil)

		cancelledCtx, cancelFunc := context.WithCancel(ctx)
		cancelFunc()
		err = s.ValidateGetWheelData(cancelledCtx, wheels, time.Second, testValidationInterval, logger)
		test.That(t, err, test.ShouldBeError, context.Canceled)
	})
}

func TestValidateGetLandmarkData(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	t.Run("returns nil once a warming up detector recovers", func(t *testing.T) {
		deps := s.SetupDeps("", "", s.WarmingUpLandmarkSensor)
		detector, err := s.NewLandmarkDetector(ctx, deps, string(s.WarmingUpLandmarkSensor), 5, logger)
		test.That(t, err, test.ShouldBeNil)

		err = s.ValidateGetLandmarkData(ctx, detector, time.Second, testValidationInterval, logger)
		test.That(t, err, test.ShouldBeNil)
	})

	t.Run("times out on a persistently erroring detector", func(t *testing.T) {
		deps := s.SetupDeps("", "", s.LandmarkSensorWithErroringFunctions)
		detector, err := s.NewLandmarkDetector(ctx, deps, string(s.LandmarkSensorWithErroringFunctions), 5, logger)
		test.That(t, err, test.ShouldBeNil)

		err = s.ValidateGetLandmarkData(ctx, detector, testValidationMaxTimeout, testValidationInterval, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "validateGetData timeout")
	})
}
