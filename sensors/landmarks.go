package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/utils/contextutils"
)

// landmarksReadingKey is the key the detector's Readings map must hold the
// observation list under.
const landmarksReadingKey = "landmarks"

// TimedLandmarkSensor describes a landmark detector that reports the time the
// reading is from.
type TimedLandmarkSensor interface {
	Name() string
	DataFrequencyHz() int
	TimedLandmarkReading(ctx context.Context) (TimedLandmarkReadingResponse, error)
}

// LandmarkObservation is a single detected landmark, positioned relative to
// the robot body frame in meters. Deleted marks features the detector still
// tracks but has withdrawn from the map.
type LandmarkObservation struct {
	ID      int
	X       float64
	Y       float64
	Deleted bool
}

// TimedLandmarkReadingResponse represents one scan's worth of landmark
// observations with a time & allows the caller to know if the reading is from
// a replay sensor.
type TimedLandmarkReadingResponse struct {
	Landmarks   []LandmarkObservation
	ReadingTime time.Time
	Replay      bool
}

// LandmarkDetector reads landmark observations from a generic sensor
// component.
type LandmarkDetector struct {
	name            string
	dataFrequencyHz int
	Detector        sensor.Sensor
}

// Name returns the name of the landmark detector.
func (ld LandmarkDetector) Name() string {
	return ld.name
}

// DataFrequencyHz returns the data rate in hz of the landmark detector.
func (ld LandmarkDetector) DataFrequencyHz() int {
	return ld.dataFrequencyHz
}

// TimedLandmarkReading returns the detector's current observations and the
// time the reading is from.
func (ld LandmarkDetector) TimedLandmarkReading(ctx context.Context) (TimedLandmarkReadingResponse, error) {
	replay := false

	ctxWithMetadata, md := contextutils.ContextWithMetadata(ctx)
	readings, err := ld.Detector.Readings(ctxWithMetadata, make(map[string]interface{}))
	if err != nil {
		return TimedLandmarkReadingResponse{}, errors.Wrap(err, "Readings error")
	}
	readingTime := time.Now().UTC()

	landmarks, err := ParseLandmarks(readings)
	if err != nil {
		return TimedLandmarkReadingResponse{}, err
	}

	if timeRequestedMetadata, ok := md[contextutils.TimeRequestedMetadataKey]; ok {
		replay = true
		if readingTime, err = time.Parse(time.RFC3339Nano, timeRequestedMetadata[0]); err != nil {
			return TimedLandmarkReadingResponse{}, errors.Wrap(err, replayTimestampErrorMessage)
		}
	}
	return TimedLandmarkReadingResponse{Landmarks: landmarks, ReadingTime: readingTime, Replay: replay}, nil
}

// ParseLandmarks extracts landmark observations from a sensor Readings map.
// The map must hold a "landmarks" list whose entries each carry a numeric id
// and robot-relative x/y coordinates in meters.
func ParseLandmarks(readings map[string]interface{}) ([]LandmarkObservation, error) {
	raw, ok := readings[landmarksReadingKey]
	if !ok {
		return nil, errors.Errorf("landmark detector readings missing %q key", landmarksReadingKey)
	}

	entries, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New("could not cast landmarks reading to a list")
	}

	landmarks := make([]LandmarkObservation, 0, len(entries))
	for _, entry := range entries {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return nil, errors.New("could not cast landmark entry to a map")
		}

		id, err := parseNumericField(fields, "id")
		if err != nil {
			return nil, err
		}
		x, err := parseNumericField(fields, "x")
		if err != nil {
			return nil, err
		}
		y, err := parseNumericField(fields, "y")
		if err != nil {
			return nil, err
		}

		deleted := false
		if rawDeleted, ok := fields["deleted"]; ok {
			if deleted, ok = rawDeleted.(bool); !ok {
				return nil, errors.New("could not cast landmark \"deleted\" field to a bool")
			}
		}

		landmarks = append(landmarks, LandmarkObservation{ID: int(id), X: x, Y: y, Deleted: deleted})
	}

	return landmarks, nil
}

func parseNumericField(fields map[string]interface{}, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, errors.Errorf("landmark entry missing %q field", key)
	}
	switch value := raw.(type) {
	case float64:
		return value, nil
	case int:
		return float64(value), nil
	default:
		return 0, errors.Errorf("could not cast landmark %q field to a number", key)
	}
}

// NewLandmarkDetector returns a new LandmarkDetector backed by the named
// sensor component.
func NewLandmarkDetector(
	ctx context.Context,
	deps resource.Dependencies,
	sensorName string,
	dataFrequencyHz int,
	logger logging.Logger,
) (TimedLandmarkSensor, error) {
	_, span := trace.StartSpan(ctx, "viamekfslam::sensors::NewLandmarkDetector")
	defer span.End()

	detector, err := sensor.FromDependencies(deps, sensorName)
	if err != nil {
		return LandmarkDetector{}, errors.Wrapf(err, "error getting landmark sensor %v for slam service", sensorName)
	}

	return LandmarkDetector{
		name:            sensorName,
		dataFrequencyHz: dataFrequencyHz,
		Detector:        detector,
	}, nil
}
