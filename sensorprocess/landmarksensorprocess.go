package sensorprocess

import (
	"context"
	"time"

	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// StartLandmarkSensor polls the landmark detector to get the next scan and
// adds it to the ekffacade. Stops when the context is Done.
func (config *Config) StartLandmarkSensor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addLandmarkReading(ctx); err != nil {
				config.Logger.Warn(err)
			}
		}
	}
}

// addLandmarkReading fetches the next scan and feeds it to the ekffacade,
// then sleeps the remainder of the scan interval.
func (config *Config) addLandmarkReading(ctx context.Context) error {
	landmarkReading, err := config.LandmarkSensor.TimedLandmarkReading(ctx)
	if err != nil {
		return err
	}

	timeToSleep := config.tryAddLandmarkReadingOnce(ctx, landmarkReading)
	time.Sleep(time.Duration(timeToSleep) * time.Millisecond)
	config.Logger.Debugf("landmark sleep for %vms", timeToSleep)
	return nil
}

// tryAddLandmarkReadingOnce adds a reading to the ekffacade and does not
// retry. Returns the remainder of the time interval.
func (config *Config) tryAddLandmarkReadingOnce(ctx context.Context, reading s.TimedLandmarkReadingResponse) int {
	startTime := time.Now().UTC()

	if err := config.tryAddLandmarkReading(ctx, reading); err != nil {
		config.Logger.Warnw("Skipping landmark reading due to error from ekffacade", "error", err)
	}
	timeElapsedMs := int(time.Since(startTime).Milliseconds())
	return remainderOfInterval(config.LandmarkSensor.DataFrequencyHz(), timeElapsedMs)
}

// tryAddLandmarkReading tries to add a reading to the ekffacade.
func (config *Config) tryAddLandmarkReading(ctx context.Context, reading s.TimedLandmarkReadingResponse) error {
	err := config.EKFFacade.AddLandmarkReading(ctx, config.Timeout, config.LandmarkSensor.Name(), reading)
	if err != nil {
		config.Logger.Debugf("%v \t | LANDMARKS | Failure \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	} else {
		config.Logger.Debugf("%v \t | LANDMARKS | Success \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	}
	return err
}
