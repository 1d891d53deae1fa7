// Package viamekfslam implements simultaneous localization and mapping
// with an extended Kalman filter over point landmarks.
// This is an Experimental package.
package viamekfslam

import (
	"bytes"
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	viamgrpc "go.viam.com/rdk/grpc"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/slam"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"

	vcConfig "github.com/viam-modules/viam-ekf-slam/config"
	"github.com/viam-modules/viam-ekf-slam/dataprocess"
	"github.com/viam-modules/viam-ekf-slam/ekffacade"
	"github.com/viam-modules/viam-ekf-slam/geometry"
	"github.com/viam-modules/viam-ekf-slam/postprocess"
	"github.com/viam-modules/viam-ekf-slam/sensorprocess"
	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// Model is the model name of the EKF SLAM service.
var (
	Model = resource.NewModel("viam", "slam", "ekf-landmarks")
	// ErrClosed denotes that the slam service method was called on a closed slam resource.
	ErrClosed = errors.Errorf("resource (%s) is closed", Model.String())
)

const (
	defaultOdometryDataFrequencyHz       = 200
	defaultLandmarkDataFrequencyHz       = 5
	defaultMaxLandmarks                  = 30
	defaultEKFFacadeTimeout              = 5 * time.Minute
	defaultSensorValidationMaxTimeoutSec = 30
	defaultSensorValidationIntervalSec   = 1
	poseSaveInterval                     = time.Second
	chunkSizeBytes                       = 1 * 1024 * 1024

	// InitialPoseCommand can be used to teleport the filter to a known pose.
	InitialPoseCommand = "initial_pose"
	// GeopointCommand can be used to read the estimated pose as a GPS
	// coordinate when a map origin was configured.
	GeopointCommand = "geopoint"
)

func init() {
	resource.RegisterService(slam.API, Model, resource.Registration[slam.Service, *vcConfig.Config]{
		Constructor: func(
			ctx context.Context,
			deps resource.Dependencies,
			c resource.Config,
			logger logging.Logger,
		) (slam.Service, error) {
			return New(
				ctx,
				deps,
				c,
				logger,
				defaultEKFFacadeTimeout,
				nil,
				nil,
			)
		},
	})
}

func initSensorProcesses(cancelCtx context.Context, slamSvc *EKFSlamService) {
	spConfig := sensorprocess.Config{
		EKFFacade:      slamSvc.ekffacade,
		WheelSensor:    slamSvc.wheelSensor,
		LandmarkSensor: slamSvc.landmarkSensor,
		Timeout:        slamSvc.ekfFacadeTimeout,
		Logger:         slamSvc.logger,
	}

	slamSvc.sensorProcessWorkers.Add(1)
	go func() {
		defer slamSvc.sensorProcessWorkers.Done()
		spConfig.StartWheelSensor(cancelCtx)
	}()

	slamSvc.sensorProcessWorkers.Add(1)
	go func() {
		defer slamSvc.sensorProcessWorkers.Done()
		spConfig.StartLandmarkSensor(cancelCtx)
	}()

	if slamSvc.enableDataSaving {
		slamSvc.sensorProcessWorkers.Add(1)
		go func() {
			defer slamSvc.sensorProcessWorkers.Done()
			slamSvc.saveTrajectory(cancelCtx)
		}()
	}
}

// New returns a new slam service for the given robot.
func New(
	ctx context.Context,
	deps resource.Dependencies,
	c resource.Config,
	logger logging.Logger,
	ekfFacadeTimeout time.Duration,
	testTimedWheelSensorOverride s.TimedWheelSensor,
	testTimedLandmarkSensorOverride s.TimedLandmarkSensor,
) (slam.Service, error) {
	ctx, span := trace.StartSpan(ctx, "viamekfslam::slamService::New")
	defer span.End()

	svcConfig, err := resource.NativeConfig[*vcConfig.Config](c)
	if err != nil {
		return nil, err
	}

	optionalConfigParams, err := vcConfig.GetOptionalParameters(
		svcConfig,
		defaultOdometryDataFrequencyHz,
		defaultLandmarkDataFrequencyHz,
		defaultMaxLandmarks,
		logger,
	)
	if err != nil {
		return nil, err
	}

	leftEncoderName := svcConfig.Encoders["left"]
	rightEncoderName := svcConfig.Encoders["right"]
	landmarkSensorName := svcConfig.LandmarkSensor["name"]

	timedWheelSensor, err := s.NewWheelEncoders(ctx, deps, leftEncoderName, rightEncoderName,
		svcConfig.TicksPerRadian, optionalConfigParams.OdometryFreqHz, logger)
	if err != nil {
		return nil, err
	}

	timedLandmarkSensor, err := s.NewLandmarkDetector(ctx, deps, landmarkSensorName,
		optionalConfigParams.LandmarkFreqHz, logger)
	if err != nil {
		return nil, err
	}

	// Need to be able to shut down the sensor processes before the ekfFacade
	cancelSensorProcessCtx, cancelSensorProcessFunc := context.WithCancel(context.Background())
	cancelEKFFacadeCtx, cancelEKFFacadeFunc := context.WithCancel(context.Background())

	// Override the sensors for testing if the override sensors are not nil
	if testTimedWheelSensorOverride != nil {
		timedWheelSensor = testTimedWheelSensorOverride
	}
	if testTimedLandmarkSensorOverride != nil {
		timedLandmarkSensor = testTimedLandmarkSensorOverride
	}

	slamSvc := &EKFSlamService{
		Named:                         c.ResourceName().AsNamed(),
		wheelSensor:                   timedWheelSensor,
		landmarkSensor:                timedLandmarkSensor,
		cancelSensorProcessFunc:       cancelSensorProcessFunc,
		cancelEKFFacadeFunc:           cancelEKFFacadeFunc,
		logger:                        logger,
		ekfFacadeTimeout:              ekfFacadeTimeout,
		sensorValidationMaxTimeoutSec: defaultSensorValidationMaxTimeoutSec,
		sensorValidationIntervalSec:   defaultSensorValidationIntervalSec,
		mapTimestamp:                  time.Now().UTC(),
		mapOrigin:                     optionalConfigParams.MapOrigin,
		enableDataSaving:              optionalConfigParams.EnableDataSaving,
		dataDirectory:                 optionalConfigParams.DataDirectory,
	}

	defer func() {
		if err != nil {
			logger.Errorw("New() hit error, closing...", "error", err)
			if err := slamSvc.Close(ctx); err != nil {
				logger.Errorw("error closing out after error", "error", err)
			}
		}
	}()

	if err = s.ValidateGetWheelData(
		cancelSensorProcessCtx,
		timedWheelSensor,
		time.Duration(slamSvc.sensorValidationMaxTimeoutSec)*time.Second,
		time.Duration(slamSvc.sensorValidationIntervalSec)*time.Second,
		slamSvc.logger); err != nil {
		err = errors.Wrap(err, "failed to get data from wheel encoders")
		return nil, err
	}

	if err = s.ValidateGetLandmarkData(
		cancelSensorProcessCtx,
		timedLandmarkSensor,
		time.Duration(slamSvc.sensorValidationMaxTimeoutSec)*time.Second,
		time.Duration(slamSvc.sensorValidationIntervalSec)*time.Second,
		slamSvc.logger); err != nil {
		err = errors.Wrap(err, "failed to get data from landmark detector")
		return nil, err
	}

	if err = initEKFFacade(cancelEKFFacadeCtx, slamSvc, svcConfig, optionalConfigParams); err != nil {
		return nil, err
	}

	if slamSvc.enableDataSaving {
		slamSvc.trajectoryFilename = dataprocess.CreateTimestampFilename(
			slamSvc.dataDirectory, slamSvc.landmarkSensor.Name(), ".jsonl", time.Now())
	}

	initSensorProcesses(cancelSensorProcessCtx, slamSvc)

	return slamSvc, nil
}

// initEKFFacade
// 1. creates a new ekffacade
// 2. initializes it and starts it
// 3. terminates it if start fails.
func initEKFFacade(
	ctx context.Context,
	slamSvc *EKFSlamService,
	svcConfig *vcConfig.Config,
	optionalConfigParams vcConfig.OptionalConfigParams,
) error {
	coreConfig := ekffacade.CoreConfig{
		WheelRadiusM:       svcConfig.WheelRadiusM,
		TrackWidthM:        svcConfig.TrackWidthM,
		MaxLandmarks:       optionalConfigParams.MaxLandmarks,
		ProcessNoise:       optionalConfigParams.ProcessNoise,
		MeasurementNoise:   optionalConfigParams.MeasurementNoise,
		MeasurementBias:    optionalConfigParams.MeasurementBias,
		InitialPose:        optionalConfigParams.InitialPose,
		ComponentReference: slamSvc.landmarkSensor.Name(),
		Logger:             slamSvc.logger,
	}

	ef := ekffacade.New(coreConfig)
	if err := ef.Initialize(ctx, slamSvc.ekfFacadeTimeout, &slamSvc.ekfFacadeWorkers); err != nil {
		slamSvc.logger.Errorw("ekffacade initialize failed", "error", err)
		return err
	}

	if err := ef.Start(ctx, slamSvc.ekfFacadeTimeout); err != nil {
		slamSvc.logger.Errorw("ekffacade start failed", "error", err)
		termErr := ef.Terminate(ctx, slamSvc.ekfFacadeTimeout)
		if termErr != nil {
			slamSvc.logger.Errorw("ekffacade terminate failed", "error", termErr)
			return termErr
		}
		return err
	}

	slamSvc.ekffacade = &ef

	return nil
}

func terminateEKFFacade(ctx context.Context, slamSvc *EKFSlamService) error {
	if slamSvc.ekffacade == nil {
		slamSvc.logger.Debug("terminateEKFFacade called when slamSvc.ekffacade is nil")
		return nil
	}

	stopErr := slamSvc.ekffacade.Stop(ctx, slamSvc.ekfFacadeTimeout)
	if stopErr != nil {
		slamSvc.logger.Errorw("ekffacade stop failed", "error", stopErr)
	}

	err := slamSvc.ekffacade.Terminate(ctx, slamSvc.ekfFacadeTimeout)
	if err != nil {
		slamSvc.logger.Errorw("ekffacade terminate failed", "error", err)
		return err
	}
	return stopErr
}

// EKFSlamService is the structure of the slam service.
type EKFSlamService struct {
	resource.Named
	resource.AlwaysRebuild
	mu     sync.Mutex
	closed bool

	wheelSensor    s.TimedWheelSensor
	landmarkSensor s.TimedLandmarkSensor

	ekffacade        ekffacade.Interface
	ekfFacadeTimeout time.Duration

	sensorValidationMaxTimeoutSec int
	sensorValidationIntervalSec   int

	cancelSensorProcessFunc func()
	cancelEKFFacadeFunc     func()
	logger                  logging.Logger
	sensorProcessWorkers    sync.WaitGroup
	ekfFacadeWorkers        sync.WaitGroup

	mapTimestamp time.Time
	mapOrigin    *geo.Point
	jobDone      atomic.Bool

	enableDataSaving   bool
	dataDirectory      string
	trajectoryFilename string

	postprocessMu       sync.Mutex
	postprocessed       bool
	postprocessingTasks []postprocess.Task
}

// Position returns the current estimated pose of the robot as a Pose in
// millimeters together with the component reference the estimate is
// relative to.
func (slamSvc *EKFSlamService) Position(ctx context.Context) (spatialmath.Pose, string, error) {
	ctx, span := trace.StartSpan(ctx, "viamekfslam::EKFSlamService::Position")
	defer span.End()
	if slamSvc.closed {
		slamSvc.logger.Warn("Position called after closed")
		return nil, "", ErrClosed
	}

	pos, err := slamSvc.ekffacade.Position(ctx, slamSvc.ekfFacadeTimeout)
	if err != nil {
		return nil, "", err
	}

	translation := pos.Pose.Translation()
	pose := spatialmath.NewPose(
		r3.Vector{X: translation.X * 1000, Y: translation.Y * 1000, Z: 0},
		&spatialmath.OrientationVector{OZ: 1, Theta: pos.Pose.Rotation()},
	)
	return pose, pos.ComponentReference, nil
}

// PointCloudMap returns a callback function which will return the next chunk
// of the current landmark map, encoded as a PCD pointcloud in millimeters.
func (slamSvc *EKFSlamService) PointCloudMap(ctx context.Context) (func() ([]byte, error), error) {
	ctx, span := trace.StartSpan(ctx, "viamekfslam::EKFSlamService::PointCloudMap")
	defer span.End()
	if slamSvc.closed {
		slamSvc.logger.Warn("PointCloudMap called after closed")
		return nil, ErrClosed
	}

	pc, err := slamSvc.ekffacade.PointCloudMap(ctx, slamSvc.ekfFacadeTimeout)
	if err != nil {
		return nil, err
	}

	slamSvc.postprocessMu.Lock()
	defer slamSvc.postprocessMu.Unlock()
	if slamSvc.postprocessed && len(slamSvc.postprocessingTasks) > 0 {
		var updatedPC []byte
		if err := postprocess.UpdatePointCloud(pc, &updatedPC, slamSvc.postprocessingTasks); err != nil {
			return nil, err
		}
		pc = updatedPC
	}

	return toChunkedFunc(pc), nil
}

// InternalState returns a callback function which will return the next chunk
// of the filter's serialized internal state.
func (slamSvc *EKFSlamService) InternalState(ctx context.Context) (func() ([]byte, error), error) {
	ctx, span := trace.StartSpan(ctx, "viamekfslam::EKFSlamService::InternalState")
	defer span.End()
	if slamSvc.closed {
		slamSvc.logger.Warn("InternalState called after closed")
		return nil, ErrClosed
	}

	is, err := slamSvc.ekffacade.InternalState(ctx, slamSvc.ekfFacadeTimeout)
	if err != nil {
		return nil, err
	}

	return toChunkedFunc(is), nil
}

func toChunkedFunc(b []byte) func() ([]byte, error) {
	chunk := make([]byte, chunkSizeBytes)

	reader := bytes.NewReader(b)

	f := func() ([]byte, error) {
		bytesRead, err := reader.Read(chunk)
		if err != nil {
			return nil, err
		}
		return chunk[:bytesRead], err
	}
	return f
}

// LatestMapInfo returns a new timestamp every time it is called, to signal
// that the map is being updated continuously.
func (slamSvc *EKFSlamService) LatestMapInfo(ctx context.Context) (time.Time, error) {
	_, span := trace.StartSpan(ctx, "viamekfslam::EKFSlamService::LatestMapInfo")
	defer span.End()
	if slamSvc.closed {
		slamSvc.logger.Warn("LatestMapInfo called after closed")
		return time.Time{}, ErrClosed
	}

	slamSvc.mapTimestamp = time.Now().UTC()
	return slamSvc.mapTimestamp, nil
}

// DoCommand receives arbitrary commands.
func (slamSvc *EKFSlamService) DoCommand(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	if slamSvc.closed {
		slamSvc.logger.Warn("DoCommand called after closed")
		return nil, ErrClosed
	}

	if val, ok := req[InitialPoseCommand]; ok {
		pose, err := parsePoseCommand(val)
		if err != nil {
			return nil, err
		}
		if err := slamSvc.ekffacade.SetPose(ctx, slamSvc.ekfFacadeTimeout, pose); err != nil {
			return nil, err
		}
		return map[string]interface{}{InitialPoseCommand: "success"}, nil
	}

	if _, ok := req[GeopointCommand]; ok {
		return slamSvc.geopoint(ctx)
	}

	if _, ok := req["job_done"]; ok {
		return map[string]interface{}{"job_done": slamSvc.jobDone.Load()}, nil
	}

	if val, ok := req[postprocess.ToggleCommand]; ok {
		enable, ok := val.(bool)
		if !ok {
			return nil, errors.New("could not parse postprocess_toggle as a bool")
		}
		slamSvc.postprocessMu.Lock()
		slamSvc.postprocessed = enable
		slamSvc.postprocessMu.Unlock()
		return map[string]interface{}{postprocess.ToggleCommand: "success"}, nil
	}

	if val, ok := req[postprocess.AddCommand]; ok {
		return slamSvc.appendPostprocessTask(val, postprocess.Add, postprocess.AddCommand)
	}

	if val, ok := req[postprocess.RemoveCommand]; ok {
		return slamSvc.appendPostprocessTask(val, postprocess.Remove, postprocess.RemoveCommand)
	}

	if _, ok := req[postprocess.UndoCommand]; ok {
		slamSvc.postprocessMu.Lock()
		if len(slamSvc.postprocessingTasks) > 0 {
			slamSvc.postprocessingTasks = slamSvc.postprocessingTasks[:len(slamSvc.postprocessingTasks)-1]
		}
		slamSvc.postprocessMu.Unlock()
		return map[string]interface{}{postprocess.UndoCommand: "success"}, nil
	}

	return nil, viamgrpc.UnimplementedError
}

func (slamSvc *EKFSlamService) appendPostprocessTask(
	val interface{},
	instruction postprocess.Instruction,
	command string,
) (map[string]interface{}, error) {
	task, err := postprocess.ParseDoCommand(val, instruction)
	if err != nil {
		return nil, err
	}
	slamSvc.postprocessMu.Lock()
	slamSvc.postprocessingTasks = append(slamSvc.postprocessingTasks, task)
	slamSvc.postprocessed = true
	slamSvc.postprocessMu.Unlock()
	return map[string]interface{}{command: "success"}, nil
}

// geopoint projects the current map-frame pose onto the globe relative to the
// configured map origin. The map x axis points east and the y axis north.
func (slamSvc *EKFSlamService) geopoint(ctx context.Context) (map[string]interface{}, error) {
	if slamSvc.mapOrigin == nil {
		return nil, errors.New("geopoint requires a configured map_origin_gps")
	}

	pos, err := slamSvc.ekffacade.Position(ctx, slamSvc.ekfFacadeTimeout)
	if err != nil {
		return nil, err
	}

	translation := pos.Pose.Translation()
	distanceKm := math.Hypot(translation.X, translation.Y) / 1000.0
	bearingDeg := math.Atan2(translation.X, translation.Y) * 180.0 / math.Pi
	point := slamSvc.mapOrigin.PointAtDistanceAndBearing(distanceKm, bearingDeg)

	return map[string]interface{}{
		"latitude":  point.Lat(),
		"longitude": point.Lng(),
	}, nil
}

func parsePoseCommand(val interface{}) (geometry.Transform2D, error) {
	poseMap, ok := val.(map[string]interface{})
	if !ok {
		return geometry.Transform2D{}, errors.New("could not parse initial_pose as a map")
	}

	fields := map[string]float64{}
	for _, key := range []string{"x_m", "y_m", "theta_rad"} {
		raw, ok := poseMap[key]
		if !ok {
			return geometry.Transform2D{}, errors.Errorf("initial_pose is missing %s", key)
		}
		value, ok := raw.(float64)
		if !ok {
			return geometry.Transform2D{}, errors.Errorf("could not parse initial_pose %s as a float64", key)
		}
		fields[key] = value
	}

	return geometry.NewTransform2D(
		geometry.Vector2D{X: fields["x_m"], Y: fields["y_m"]},
		fields["theta_rad"],
	), nil
}

// saveTrajectory periodically appends the estimated pose to the trajectory
// log until the sensor process context is cancelled.
func (slamSvc *EKFSlamService) saveTrajectory(ctx context.Context) {
	for {
		if !goutils.SelectContextOrWait(ctx, poseSaveInterval) {
			return
		}
		pos, err := slamSvc.ekffacade.Position(ctx, slamSvc.ekfFacadeTimeout)
		if err != nil {
			slamSvc.logger.Warnw("failed to get position for trajectory log", "error", err)
			continue
		}
		if err := dataprocess.AppendPoseToFile(pos.Pose, time.Now(), slamSvc.trajectoryFilename); err != nil {
			slamSvc.logger.Warnw("failed to save pose to trajectory log", "error", err)
		}
	}
}

// saveFinalMap writes the landmark map to the data directory as a PCD file.
func (slamSvc *EKFSlamService) saveFinalMap(ctx context.Context) {
	pc, err := slamSvc.ekffacade.PointCloudMap(ctx, slamSvc.ekfFacadeTimeout)
	if err != nil {
		slamSvc.logger.Warnw("failed to get landmark map for saving", "error", err)
		return
	}
	filename := dataprocess.CreateTimestampFilename(
		slamSvc.dataDirectory, slamSvc.landmarkSensor.Name(), ".pcd", time.Now())
	if err := dataprocess.WriteBytesToFile(pc, filename); err != nil {
		slamSvc.logger.Warnw("failed to save landmark map", "error", err)
	}
}

// Close out of all slam related processes.
func (slamSvc *EKFSlamService) Close(ctx context.Context) error {
	slamSvc.mu.Lock()
	slamSvc.logger.Info("Closing EKF SLAM module")

	defer slamSvc.mu.Unlock()
	if slamSvc.closed {
		slamSvc.logger.Warn("Close() called multiple times")
		return nil
	}
	// stop sensor process workers
	slamSvc.cancelSensorProcessFunc()
	slamSvc.sensorProcessWorkers.Wait()
	slamSvc.jobDone.Store(true)

	if slamSvc.enableDataSaving && slamSvc.ekffacade != nil {
		slamSvc.saveFinalMap(ctx)
	}

	// terminate the ekf facade
	err := terminateEKFFacade(ctx, slamSvc)
	if err != nil {
		slamSvc.logger.Errorw("close hit error", "error", err)
	}

	// stop ekf facade workers
	slamSvc.cancelEKFFacadeFunc()
	slamSvc.ekfFacadeWorkers.Wait()
	slamSvc.closed = true

	slamSvc.logger.Info("Closing complete")
	return nil
}
