package sensorprocess

import (
	"context"
	"time"

	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// StartWheelSensor polls the wheel encoders to get the next sensor reading
// and adds it to the ekffacade. Stops when the context is Done.
func (config *Config) StartWheelSensor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addWheelReading(ctx); err != nil {
				config.Logger.Warn(err)
			}
		}
	}
}

// addWheelReading fetches the next encoder sample and feeds it to the
// ekffacade, then sleeps the remainder of the sample interval.
func (config *Config) addWheelReading(ctx context.Context) error {
	wheelReading, err := config.WheelSensor.TimedWheelReading(ctx)
	if err != nil {
		return err
	}

	timeToSleep := config.tryAddWheelReadingOnce(ctx, wheelReading)
	time.Sleep(time.Duration(timeToSleep) * time.Millisecond)
	config.Logger.Debugf("wheel sleep for %vms", timeToSleep)
	return nil
}

// tryAddWheelReadingOnce adds a reading to the ekffacade and does not retry.
// Returns the remainder of the time interval.
func (config *Config) tryAddWheelReadingOnce(ctx context.Context, reading s.TimedWheelReadingResponse) int {
	startTime := time.Now().UTC()

	if err := config.tryAddWheelReading(ctx, reading); err != nil {
		config.Logger.Warnw("Skipping wheel reading due to error from ekffacade", "error", err)
	}
	timeElapsedMs := int(time.Since(startTime).Milliseconds())
	return remainderOfInterval(config.WheelSensor.DataFrequencyHz(), timeElapsedMs)
}

// tryAddWheelReading tries to add a reading to the ekffacade.
func (config *Config) tryAddWheelReading(ctx context.Context, reading s.TimedWheelReadingResponse) error {
	err := config.EKFFacade.AddWheelReading(ctx, config.Timeout, config.WheelSensor.Name(), reading)
	if err != nil {
		config.Logger.Debugf("%v \t | WHEELS | Failure \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	} else {
		config.Logger.Debugf("%v \t | WHEELS | Success \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	}
	return err
}
