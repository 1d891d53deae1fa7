package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/encoder"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/testutils/inject"
	"go.viam.com/rdk/utils/contextutils"
)

// TestTicksPerRadian is the encoder resolution the test dependencies assume.
const TestTicksPerRadian = 651.8986469

// BadTime can be used to represent something that should cause an error while parsing it as a time.
const BadTime = "NOT A TIME"

// TestTimestamp can be used to test specific timestamps provided by a replay sensor.
var TestTimestamp = time.Now().UTC().Format("2006-01-02T15:04:05.999999Z")

// TestSensor represents sensors used for testing.
type TestSensor string

const (
	// InvalidSensorTestErrMsg represents an error message that indicates that the sensor is invalid.
	InvalidSensorTestErrMsg = "invalid test sensor"

	// GoodEncoder is an encoder that works as expected and reports one radian of travel.
	GoodEncoder TestSensor = "good_encoder"
	// SecondGoodEncoder is an encoder that works as expected and reports two radians of travel.
	SecondGoodEncoder TestSensor = "second_good_encoder"
	// EncoderWithErroringFunctions is an encoder whose functions return errors.
	EncoderWithErroringFunctions TestSensor = "encoder_with_erroring_functions"
	// EncoderWithInvalidProperties is an encoder that does not support tick counts.
	EncoderWithInvalidProperties TestSensor = "encoder_with_invalid_properties"
	// GibberishEncoder is an encoder that can't be found in the dependencies.
	GibberishEncoder TestSensor = "gibberish_encoder"

	// GoodLandmarkSensor is a landmark detector that works as expected and returns two observations.
	GoodLandmarkSensor TestSensor = "good_landmark_sensor"
	// WarmingUpLandmarkSensor is a landmark detector whose first reading returns a "warming up" error.
	WarmingUpLandmarkSensor TestSensor = "warming_up_landmark_sensor"
	// LandmarkSensorWithErroringFunctions is a landmark detector whose functions return errors.
	LandmarkSensorWithErroringFunctions TestSensor = "landmark_sensor_with_erroring_functions"
	// LandmarkSensorWithMalformedReadings is a landmark detector whose readings lack the landmarks list.
	LandmarkSensorWithMalformedReadings TestSensor = "landmark_sensor_with_malformed_readings"
	// ReplayLandmarkSensor is a landmark detector that works as expected and reports a replay timestamp.
	ReplayLandmarkSensor TestSensor = "replay_landmark_sensor"
	// InvalidReplayLandmarkSensor is a landmark detector whose meta timestamp is invalid.
	InvalidReplayLandmarkSensor TestSensor = "invalid_replay_landmark_sensor"
	// GibberishLandmarkSensor is a landmark detector that can't be found in the dependencies.
	GibberishLandmarkSensor TestSensor = "gibberish_landmark_sensor"
)

// TestLandmarks is the observation list GoodLandmarkSensor reports.
var TestLandmarks = []LandmarkObservation{
	{ID: 0, X: 1, Y: 2},
	{ID: 3, X: -0.5, Y: 0.25},
}

var (
	testEncoders = map[TestSensor]func() *inject.Encoder{
		GoodEncoder:                  func() *inject.Encoder { return getGoodEncoder(1) },
		SecondGoodEncoder:            func() *inject.Encoder { return getGoodEncoder(2) },
		EncoderWithErroringFunctions: getEncoderWithErroringFunctions,
		EncoderWithInvalidProperties: getEncoderWithInvalidProperties,
	}

	testLandmarkSensors = map[TestSensor]func() *inject.Sensor{
		GoodLandmarkSensor:                  getGoodLandmarkSensor,
		WarmingUpLandmarkSensor:             getWarmingUpLandmarkSensor,
		LandmarkSensorWithErroringFunctions: getLandmarkSensorWithErroringFunctions,
		LandmarkSensorWithMalformedReadings: getLandmarkSensorWithMalformedReadings,
		ReplayLandmarkSensor:                func() *inject.Sensor { return getReplayLandmarkSensor(TestTimestamp) },
		InvalidReplayLandmarkSensor:         func() *inject.Sensor { return getReplayLandmarkSensor(BadTime) },
	}
)

// SetupDeps returns the dependencies based on the encoder and landmark sensor names passed as arguments.
func SetupDeps(leftEncoderName, rightEncoderName, landmarkSensorName TestSensor) resource.Dependencies {
	deps := make(resource.Dependencies)
	for _, name := range []TestSensor{leftEncoderName, rightEncoderName} {
		if getEncoderFunc, ok := testEncoders[name]; ok {
			deps[encoder.Named(string(name))] = getEncoderFunc()
		}
	}

	if getLandmarkSensorFunc, ok := testLandmarkSensors[landmarkSensorName]; ok {
		deps[sensor.Named(string(landmarkSensorName))] = getLandmarkSensorFunc()
	}

	return deps
}

func getGoodEncoder(radians float64) *inject.Encoder {
	enc := &inject.Encoder{}
	enc.PositionFunc = func(
		ctx context.Context,
		positionType encoder.PositionType,
		extra map[string]interface{},
	) (float64, encoder.PositionType, error) {
		return radians * TestTicksPerRadian, encoder.PositionTypeTicks, nil
	}
	enc.PropertiesFunc = func(ctx context.Context, extra map[string]interface{}) (encoder.Properties, error) {
		return encoder.Properties{TicksCountSupported: true}, nil
	}
	return enc
}

func getEncoderWithErroringFunctions() *inject.Encoder {
	enc := &inject.Encoder{}
	enc.PositionFunc = func(
		ctx context.Context,
		positionType encoder.PositionType,
		extra map[string]interface{},
	) (float64, encoder.PositionType, error) {
		return 0, encoder.PositionTypeUnspecified, errors.New(InvalidSensorTestErrMsg)
	}
	enc.PropertiesFunc = func(ctx context.Context, extra map[string]interface{}) (encoder.Properties, error) {
		return encoder.Properties{TicksCountSupported: true}, nil
	}
	return enc
}

func getEncoderWithInvalidProperties() *inject.Encoder {
	enc := &inject.Encoder{}
	enc.PositionFunc = func(
		ctx context.Context,
		positionType encoder.PositionType,
		extra map[string]interface{},
	) (float64, encoder.PositionType, error) {
		return 0, encoder.PositionTypeDegrees, nil
	}
	enc.PropertiesFunc = func(ctx context.Context, extra map[string]interface{}) (encoder.Properties, error) {
		return encoder.Properties{AngleDegreesSupported: true}, nil
	}
	return enc
}

func landmarksAsReadings(landmarks []LandmarkObservation) map[string]interface{} {
	entries := make([]interface{}, 0, len(landmarks))
	for _, landmark := range landmarks {
		entries = append(entries, map[string]interface{}{
			"id": float64(landmark.ID),
			"x":  landmark.X,
			"y":  landmark.Y,
		})
	}
	return map[string]interface{}{"landmarks": entries}
}

func getGoodLandmarkSensor() *inject.Sensor {
	lms := &inject.Sensor{}
	lms.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return landmarksAsReadings(TestLandmarks), nil
	}
	return lms
}

func getWarmingUpLandmarkSensor() *inject.Sensor {
	lms := &inject.Sensor{}
	counter := 0
	lms.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		counter++
		if counter == 1 {
			return nil, errors.Errorf("warming up %d", counter)
		}
		return landmarksAsReadings(TestLandmarks), nil
	}
	return lms
}

func getLandmarkSensorWithErroringFunctions() *inject.Sensor {
	lms := &inject.Sensor{}
	lms.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New(InvalidSensorTestErrMsg)
	}
	return lms
}

func getReplayLandmarkSensor(testTime string) *inject.Sensor {
	lms := &inject.Sensor{}
	lms.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		md := ctx.Value(contextutils.MetadataContextKey)
		if mdMap, ok := md.(map[string][]string); ok {
			mdMap[contextutils.TimeRequestedMetadataKey] = []string{testTime}
		}
		return landmarksAsReadings(TestLandmarks), nil
	}
	return lms
}

func getLandmarkSensorWithMalformedReadings() *inject.Sensor {
	lms := &inject.Sensor{}
	lms.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"distance": 1.5}, nil
	}
	return lms
}
