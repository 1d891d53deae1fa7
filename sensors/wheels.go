package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/components/encoder"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/utils/contextutils"
)

// TimedWheelSensor describes a pair of wheel encoders that report the time
// the reading is from.
type TimedWheelSensor interface {
	Name() string
	DataFrequencyHz() int
	TimedWheelReading(ctx context.Context) (TimedWheelReadingResponse, error)
}

// TimedWheelReadingResponse represents the absolute wheel positions in
// radians at a single point in time & allows the caller to know if the
// reading is from a replay sensor.
type TimedWheelReadingResponse struct {
	Left        float64
	Right       float64
	ReadingTime time.Time
	Replay      bool
}

// WheelEncoders reads two encoder components and converts their tick counts
// into wheel angles.
type WheelEncoders struct {
	name            string
	dataFrequencyHz int
	ticksPerRadian  float64
	Left            encoder.Encoder
	Right           encoder.Encoder
}

// Name returns the name of the wheel encoder pair.
func (we WheelEncoders) Name() string {
	return we.name
}

// DataFrequencyHz returns the data rate in hz of the wheel encoders.
func (we WheelEncoders) DataFrequencyHz() int {
	return we.dataFrequencyHz
}

// TimedWheelReading returns the wheel angles in radians and the time the
// reading is from. Both encoders are sampled back to back and share one
// timestamp taken between the two reads.
func (we WheelEncoders) TimedWheelReading(ctx context.Context) (TimedWheelReadingResponse, error) {
	replay := false

	ctxWithMetadata, md := contextutils.ContextWithMetadata(ctx)
	leftTicks, _, err := we.Left.Position(ctxWithMetadata, encoder.PositionTypeTicks, make(map[string]interface{}))
	if err != nil {
		return TimedWheelReadingResponse{}, errors.Wrap(err, "left encoder Position error")
	}
	readingTime := time.Now().UTC()
	rightTicks, _, err := we.Right.Position(ctxWithMetadata, encoder.PositionTypeTicks, make(map[string]interface{}))
	if err != nil {
		return TimedWheelReadingResponse{}, errors.Wrap(err, "right encoder Position error")
	}

	if timeRequestedMetadata, ok := md[contextutils.TimeRequestedMetadataKey]; ok {
		replay = true
		if readingTime, err = time.Parse(time.RFC3339Nano, timeRequestedMetadata[0]); err != nil {
			return TimedWheelReadingResponse{}, errors.Wrap(err, replayTimestampErrorMessage)
		}
	}

	return TimedWheelReadingResponse{
		Left:        leftTicks / we.ticksPerRadian,
		Right:       rightTicks / we.ticksPerRadian,
		ReadingTime: readingTime,
		Replay:      replay,
	}, nil
}

// NewWheelEncoders returns a new WheelEncoders backed by the named encoder
// components.
func NewWheelEncoders(
	ctx context.Context,
	deps resource.Dependencies,
	leftEncoderName, rightEncoderName string,
	ticksPerRadian float64,
	dataFrequencyHz int,
	logger logging.Logger,
) (TimedWheelSensor, error) {
	_, span := trace.StartSpan(ctx, "viamekfslam::sensors::NewWheelEncoders")
	defer span.End()

	if ticksPerRadian <= 0 {
		return WheelEncoders{}, errors.Errorf("configuring wheel encoders error: "+
			"ticks per radian must be positive, got %v", ticksPerRadian)
	}

	left, err := encoder.FromDependencies(deps, leftEncoderName)
	if err != nil {
		return WheelEncoders{}, errors.Wrapf(err, "error getting left encoder %v for slam service", leftEncoderName)
	}
	right, err := encoder.FromDependencies(deps, rightEncoderName)
	if err != nil {
		return WheelEncoders{}, errors.Wrapf(err, "error getting right encoder %v for slam service", rightEncoderName)
	}

	// Both encoders must report tick counts for the angle conversion to hold.
	for name, enc := range map[string]encoder.Encoder{leftEncoderName: left, rightEncoderName: right} {
		properties, err := enc.Properties(ctx, make(map[string]interface{}))
		if err != nil {
			return WheelEncoders{}, errors.Wrapf(err, "error getting encoder properties from %v for slam service", name)
		}
		if !properties.TicksCountSupported {
			return WheelEncoders{}, errors.Errorf("configuring wheel encoders error: "+
				"encoder %v must support tick counts", name)
		}
	}

	return WheelEncoders{
		name:            leftEncoderName + "+" + rightEncoderName,
		dataFrequencyHz: dataFrequencyHz,
		ticksPerRadian:  ticksPerRadian,
		Left:            left,
		Right:           right,
	}, nil
}
