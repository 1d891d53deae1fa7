// Package config implements functions to assist with attribute evaluation in the SLAM service.
package config

import (
	"strconv"
	"strings"

	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"github.com/viam-modules/viam-ekf-slam/geometry"
)

// Default noise parameters applied when the config does not override them.
const (
	DefaultProcessNoise     = 0.1
	DefaultMeasurementNoise = 0.1
	DefaultMeasurementBias  = 0.1
)

// newError returns an error specific to a failure in the SLAM config.
func newError(configError string) error {
	return errors.Errorf("SLAM service configuration error: %s", configError)
}

// InitialPose seeds the estimator's starting pose.
type InitialPose struct {
	XM       float64 `json:"x_m"`
	YM       float64 `json:"y_m"`
	ThetaRad float64 `json:"theta_rad"`
}

// Config describes how to configure the SLAM service.
type Config struct {
	Encoders       map[string]string `json:"encoders"`
	LandmarkSensor map[string]string `json:"landmark_sensor"`

	WheelRadiusM   float64 `json:"wheel_radius_m"`
	TrackWidthM    float64 `json:"track_width_m"`
	TicksPerRadian float64 `json:"ticks_per_radian"`

	MaxLandmarks   int `json:"max_landmarks"`
	OdometryFreqHz int `json:"odometry_freq_hz"`
	LandmarkFreqHz int `json:"landmark_freq_hz"`

	InitialPose      *InitialPose `json:"initial_pose"`
	ProcessNoise     *float64     `json:"process_noise"`
	MeasurementNoise *float64     `json:"measurement_noise"`
	MeasurementBias  []float64    `json:"measurement_bias"`

	MapOriginGPS     string `json:"map_origin_gps"`
	EnableDataSaving *bool  `json:"enable_data_saving"`
	DataDirectory    string `json:"data_dir"`
}

// OptionalConfigParams holds the optional config parameters after defaults
// have been filled in.
type OptionalConfigParams struct {
	OdometryFreqHz   int
	LandmarkFreqHz   int
	MaxLandmarks     int
	ProcessNoise     float64
	MeasurementNoise float64
	MeasurementBias  [2]float64
	InitialPose      geometry.Transform2D
	MapOrigin        *geo.Point
	EnableDataSaving bool
	DataDirectory    string
}

// Validate creates the list of implicit dependencies.
func (config *Config) Validate(path string) ([]string, error) {
	leftEncoderName, ok := config.Encoders["left"]
	if !ok || leftEncoderName == "" {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "encoders[left]")
	}
	rightEncoderName, ok := config.Encoders["right"]
	if !ok || rightEncoderName == "" {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "encoders[right]")
	}
	landmarkSensorName, ok := config.LandmarkSensor["name"]
	if !ok || landmarkSensorName == "" {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "landmark_sensor[name]")
	}

	if config.WheelRadiusM <= 0 {
		return nil, newError("wheel_radius_m must be positive")
	}
	if config.TrackWidthM <= 0 {
		return nil, newError("track_width_m must be positive")
	}
	if config.TicksPerRadian <= 0 {
		return nil, newError("ticks_per_radian must be positive")
	}

	if config.MaxLandmarks < 0 {
		return nil, newError("cannot specify max_landmarks less than zero")
	}
	if config.OdometryFreqHz < 0 {
		return nil, newError("cannot specify odometry_freq_hz less than zero")
	}
	if config.LandmarkFreqHz < 0 {
		return nil, newError("cannot specify landmark_freq_hz less than zero")
	}

	if config.ProcessNoise != nil && *config.ProcessNoise < 0 {
		return nil, newError("cannot specify process_noise less than zero")
	}
	if config.MeasurementNoise != nil && *config.MeasurementNoise <= 0 {
		return nil, newError("measurement_noise must be positive")
	}
	if config.MeasurementBias != nil && len(config.MeasurementBias) != 2 {
		return nil, newError("measurement_bias must hold exactly two values (range, bearing)")
	}

	if config.MapOriginGPS != "" {
		if _, err := parseGPSOrigin(config.MapOriginGPS); err != nil {
			return nil, err
		}
	}

	if config.EnableDataSaving != nil && *config.EnableDataSaving && config.DataDirectory == "" {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "data_dir")
	}

	deps := []string{leftEncoderName, rightEncoderName, landmarkSensorName}

	return deps, nil
}

// GetOptionalParameters sets any unset optional config parameters to the
// defaults passed to this function, and returns them.
func GetOptionalParameters(config *Config,
	defaultOdometryFreqHz, defaultLandmarkFreqHz, defaultMaxLandmarks int,
	logger logging.Logger,
) (OptionalConfigParams, error) {
	var optionalConfigParams OptionalConfigParams

	optionalConfigParams.OdometryFreqHz = config.OdometryFreqHz
	if config.OdometryFreqHz == 0 {
		optionalConfigParams.OdometryFreqHz = defaultOdometryFreqHz
		logger.Debugf("no odometry_freq_hz given, setting to default value of %d", defaultOdometryFreqHz)
	}

	optionalConfigParams.LandmarkFreqHz = config.LandmarkFreqHz
	if config.LandmarkFreqHz == 0 {
		optionalConfigParams.LandmarkFreqHz = defaultLandmarkFreqHz
		logger.Debugf("no landmark_freq_hz given, setting to default value of %d", defaultLandmarkFreqHz)
	}

	optionalConfigParams.MaxLandmarks = config.MaxLandmarks
	if config.MaxLandmarks == 0 {
		optionalConfigParams.MaxLandmarks = defaultMaxLandmarks
		logger.Debugf("no max_landmarks given, setting to default value of %d", defaultMaxLandmarks)
	}

	optionalConfigParams.ProcessNoise = DefaultProcessNoise
	if config.ProcessNoise != nil {
		optionalConfigParams.ProcessNoise = *config.ProcessNoise
	}

	optionalConfigParams.MeasurementNoise = DefaultMeasurementNoise
	if config.MeasurementNoise != nil {
		optionalConfigParams.MeasurementNoise = *config.MeasurementNoise
	}

	optionalConfigParams.MeasurementBias = [2]float64{DefaultMeasurementBias, DefaultMeasurementBias}
	if config.MeasurementBias != nil {
		optionalConfigParams.MeasurementBias = [2]float64{config.MeasurementBias[0], config.MeasurementBias[1]}
	}

	if config.InitialPose != nil {
		optionalConfigParams.InitialPose = geometry.NewTransform2D(
			geometry.Vector2D{X: config.InitialPose.XM, Y: config.InitialPose.YM},
			config.InitialPose.ThetaRad,
		)
	} else {
		optionalConfigParams.InitialPose = geometry.Identity()
	}

	if config.MapOriginGPS != "" {
		origin, err := parseGPSOrigin(config.MapOriginGPS)
		if err != nil {
			return OptionalConfigParams{}, err
		}
		optionalConfigParams.MapOrigin = origin
	}

	if config.EnableDataSaving != nil && *config.EnableDataSaving {
		optionalConfigParams.EnableDataSaving = true
		optionalConfigParams.DataDirectory = config.DataDirectory
	}

	return optionalConfigParams, nil
}

// parseGPSOrigin parses a "lat,lng" pair into a geodetic point.
func parseGPSOrigin(origin string) (*geo.Point, error) {
	parts := strings.Split(origin, ",")
	if len(parts) != 2 {
		return nil, newError("map_origin_gps must be of the form \"lat,lng\"")
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, newError("map_origin_gps latitude is not a number")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, newError("map_origin_gps longitude is not a number")
	}

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, newError("map_origin_gps is outside the valid latitude/longitude range")
	}

	return geo.NewPoint(lat, lng), nil
}
