package ekffacade

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"

	"github.com/viam-modules/viam-ekf-slam/ekf"
	"github.com/viam-modules/viam-ekf-slam/geometry"
	"github.com/viam-modules/viam-ekf-slam/kinematics"
	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// CoreConfig holds the parameters needed to build a SlamCore.
type CoreConfig struct {
	WheelRadiusM       float64
	TrackWidthM        float64
	MaxLandmarks       int
	ProcessNoise       float64
	MeasurementNoise   float64
	MeasurementBias    [2]float64
	InitialPose        geometry.Transform2D
	ComponentReference string
	Logger             logging.Logger
}

// Position is the pose estimate reported by the core: the filter's SLAM pose,
// the raw odometry pose for comparison, and the name of the component the
// estimate is relative to.
type Position struct {
	Pose               geometry.Transform2D
	OdometryPose       geometry.Transform2D
	Twist              geometry.Twist2D
	ComponentReference string
}

// coreInterface defines the operations the worker goroutine can invoke on a
// SlamCore. It should not be used outside of this package but needs to be
// public for testing purposes.
type coreInterface interface {
	start() error
	stop() error
	terminate() error
	addWheelReading(wheelSensorName string, reading s.TimedWheelReadingResponse) error
	addLandmarkReading(landmarkSensorName string, reading s.TimedLandmarkReadingResponse) error
	position() (Position, error)
	pointCloudMap() ([]byte, error)
	internalState() ([]byte, error)
	setPose(pose geometry.Transform2D) error
}

// SlamCore owns the kinematic model and the filter. It is never accessed from
// more than one goroutine: all calls arrive through the facade's worker, which
// serializes readings in arrival order.
type SlamCore struct {
	logger             logging.Logger
	componentReference string

	drive  *kinematics.DiffDrive
	filter *ekf.Filter

	// scanWheels holds the wheel angles consumed by the last filter predict,
	// so each landmark scan advances the filter by exactly the odometry
	// accumulated since the previous scan.
	scanWheels kinematics.WheelConfig

	// wheelsPrimed is false until the first encoder sample arrives. The first
	// sample seeds the wheel angles instead of being integrated as motion.
	wheelsPrimed bool

	// lastTwist is the body twist implied by the most recent encoder sample.
	lastTwist geometry.Twist2D

	started bool
}

// NewSlamCore builds the kinematic model and filter from the config.
func NewSlamCore(cfg CoreConfig) (*SlamCore, error) {
	drive, err := kinematics.NewDiffDriveWithState(
		cfg.TrackWidthM/2, cfg.WheelRadiusM, kinematics.WheelConfig{}, cfg.InitialPose)
	if err != nil {
		return nil, errors.Wrap(err, "building differential drive model")
	}

	filter, err := ekf.NewFilter(ekf.Config{
		MaxLandmarks:     cfg.MaxLandmarks,
		ProcessNoise:     cfg.ProcessNoise,
		MeasurementNoise: cfg.MeasurementNoise,
		MeasurementBias:  cfg.MeasurementBias,
		InitialPose:      cfg.InitialPose,
	})
	if err != nil {
		return nil, errors.Wrap(err, "building filter")
	}

	return &SlamCore{
		logger:             cfg.Logger,
		componentReference: cfg.ComponentReference,
		drive:              drive,
		filter:             filter,
	}, nil
}

func (c *SlamCore) start() error {
	if c.started {
		return errors.New("slam core already started")
	}
	c.started = true
	return nil
}

func (c *SlamCore) stop() error {
	if !c.started {
		return errors.New("slam core not started")
	}
	c.started = false
	return nil
}

func (c *SlamCore) terminate() error {
	c.started = false
	return nil
}

// addWheelReading integrates one encoder sample into the odometry pose. The
// first sample only seeds the wheel angles.
func (c *SlamCore) addWheelReading(wheelSensorName string, reading s.TimedWheelReadingResponse) error {
	if !c.started {
		return errors.Errorf("rejecting reading from %v, slam core not started", wheelSensorName)
	}

	wheels := kinematics.WheelConfig{Left: reading.Left, Right: reading.Right}
	if !c.wheelsPrimed {
		c.drive.SetWheelConfig(wheels)
		c.scanWheels = wheels
		c.wheelsPrimed = true
		return nil
	}

	c.lastTwist = c.drive.RobotBodyTwist(wheels)
	c.drive.ForwardKinematics(wheels)
	return nil
}

// addLandmarkReading runs one filter cycle: a predict over the odometry
// accumulated since the previous scan, then an update per observation in
// arrival order.
func (c *SlamCore) addLandmarkReading(landmarkSensorName string, reading s.TimedLandmarkReadingResponse) error {
	if !c.started {
		return errors.Errorf("rejecting reading from %v, slam core not started", landmarkSensorName)
	}

	wheels := c.drive.WheelConfig()
	twist := c.drive.WheelTwist(wheels, c.scanWheels)
	c.filter.Predict(twist)
	c.scanWheels = wheels

	for _, landmark := range reading.Landmarks {
		if landmark.Deleted {
			continue
		}
		if err := c.filter.Update(landmark.X, landmark.Y, landmark.ID); err != nil {
			return errors.Wrapf(err, "updating filter with landmark %d", landmark.ID)
		}
	}
	return nil
}

func (c *SlamCore) position() (Position, error) {
	return Position{
		Pose:               c.filter.Pose(),
		OdometryPose:       c.drive.RobotConfig(),
		Twist:              c.lastTwist,
		ComponentReference: c.componentReference,
	}, nil
}

// pointCloudMap renders the landmark estimates as a PCD, with coordinates in
// millimeters to match the map units used elsewhere in the ecosystem.
func (c *SlamCore) pointCloudMap() ([]byte, error) {
	pc := pointcloud.New()
	for _, landmark := range c.filter.Landmarks() {
		err := pc.Set(
			pointcloud.NewVector(landmark.Position.X*1000, landmark.Position.Y*1000, 0),
			pointcloud.NewBasicData(),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "adding landmark %d to point cloud", landmark.ID)
		}
	}

	buf := new(bytes.Buffer)
	if err := pointcloud.ToPCD(pc, buf, pointcloud.PCDBinary); err != nil {
		return nil, errors.Wrap(err, "ToPCD error")
	}
	return buf.Bytes(), nil
}

// internalStateSnapshot is the serialized form of the core's estimator state.
type internalStateSnapshot struct {
	State           []float64      `json:"state"`
	Covariance      [][]float64    `json:"covariance"`
	SeenLandmarkIDs []int          `json:"seen_landmark_ids"`
	OdometryPose    snapshotPose   `json:"odometry_pose"`
	Wheels          snapshotWheels `json:"wheels"`
}

type snapshotPose struct {
	X        float64 `json:"x_m"`
	Y        float64 `json:"y_m"`
	ThetaRad float64 `json:"theta_rad"`
}

type snapshotWheels struct {
	Left  float64 `json:"left_rad"`
	Right float64 `json:"right_rad"`
}

func (c *SlamCore) internalState() ([]byte, error) {
	covar := c.filter.Covariance()
	rows, _ := covar.Dims()
	covariance := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		covariance[i] = covar.RawRowView(i)
	}

	seen := []int{}
	for _, landmark := range c.filter.Landmarks() {
		seen = append(seen, landmark.ID)
	}

	odomPose := c.drive.RobotConfig()
	wheels := c.drive.WheelConfig()
	snapshot := internalStateSnapshot{
		State:           c.filter.State(),
		Covariance:      covariance,
		SeenLandmarkIDs: seen,
		OdometryPose: snapshotPose{
			X:        odomPose.Translation().X,
			Y:        odomPose.Translation().Y,
			ThetaRad: odomPose.Rotation(),
		},
		Wheels: snapshotWheels{Left: wheels.Left, Right: wheels.Right},
	}

	state, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling internal state")
	}
	return state, nil
}

// setPose teleports both the odometry pose and the filter's pose estimate.
func (c *SlamCore) setPose(pose geometry.Transform2D) error {
	c.drive.SetRobotConfig(pose)
	c.filter.SetPose(pose)
	return nil
}
