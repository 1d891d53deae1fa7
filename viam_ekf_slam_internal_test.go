package viamekfslam

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/slam"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"

	"github.com/viam-modules/viam-ekf-slam/ekffacade"
	"github.com/viam-modules/viam-ekf-slam/geometry"
)

func makeTestService(t *testing.T) (*EKFSlamService, *ekffacade.Mock) {
	t.Helper()

	svc := &EKFSlamService{Named: resource.NewName(slam.API, "test").AsNamed()}
	mockEKFFacade := &ekffacade.Mock{}
	svc.ekffacade = mockEKFFacade
	svc.ekfFacadeTimeout = time.Second
	return svc, mockEKFFacade
}

func TestPositionEndpoint(t *testing.T) {
	svc, mockEKFFacade := makeTestService(t)

	t.Run("returns the filter pose in millimeters", func(t *testing.T) {
		mockEKFFacade.PositionFunc = func(
			ctx context.Context,
			timeout time.Duration,
		) (ekffacade.Position, error) {
			return ekffacade.Position{
				Pose:               geometry.NewTransform2D(geometry.Vector2D{X: 1, Y: 2}, 0.5),
				ComponentReference: "detector",
			}, nil
		}

		pose, componentReference, err := svc.Position(context.Background())
		test.That(t, err, test.ShouldBeNil)
		expectedPose := spatialmath.NewPose(
			r3.Vector{X: 1000, Y: 2000, Z: 0},
			&spatialmath.OrientationVector{OZ: 1, Theta: 0.5},
		)
		test.That(t, pose, test.ShouldResemble, expectedPose)
		test.That(t, componentReference, test.ShouldEqual, "detector")
	})

	t.Run("propagates errors from the ekffacade", func(t *testing.T) {
		mockEKFFacade.PositionFunc = func(
			ctx context.Context,
			timeout time.Duration,
		) (ekffacade.Position, error) {
			return ekffacade.Position{}, errors.New("position error")
		}

		pose, componentReference, err := svc.Position(context.Background())
		test.That(t, pose, test.ShouldBeNil)
		test.That(t, componentReference, test.ShouldBeEmpty)
		test.That(t, err, test.ShouldBeError, errors.New("position error"))
	})
}

func TestPointCloudMapEndpoint(t *testing.T) {
	svc, mockEKFFacade := makeTestService(t)

	t.Run("returns the map bytes in chunks", func(t *testing.T) {
		mapBytes := []byte("landmark map bytes")
		mockEKFFacade.PointCloudMapFunc = func(
			ctx context.Context,
			timeout time.Duration,
		) ([]byte, error) {
			return mapBytes, nil
		}

		pcmFunc, err := svc.PointCloudMap(context.Background())
		test.That(t, err, test.ShouldBeNil)

		pcm, err := slam.HelperConcatenateChunksToFull(pcmFunc)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pcm, test.ShouldResemble, mapBytes)
	})

	t.Run("propagates errors from the ekffacade", func(t *testing.T) {
		mockEKFFacade.PointCloudMapFunc = func(
			ctx context.Context,
			timeout time.Duration,
		) ([]byte, error) {
			return nil, errors.New("map error")
		}

		pcmFunc, err := svc.PointCloudMap(context.Background())
		test.That(t, pcmFunc, test.ShouldBeNil)
		test.That(t, err, test.ShouldBeError, errors.New("map error"))
	})
}

func TestInternalStateEndpoint(t *testing.T) {
	svc, mockEKFFacade := makeTestService(t)

	t.Run("returns the internal state bytes in chunks", func(t *testing.T) {
		stateBytes := []byte(`{"state":[0,0,0]}`)
		mockEKFFacade.InternalStateFunc = func(
			ctx context.Context,
			timeout time.Duration,
		) ([]byte, error) {
			return stateBytes, nil
		}

		isFunc, err := svc.InternalState(context.Background())
		test.That(t, err, test.ShouldBeNil)

		is, err := slam.HelperConcatenateChunksToFull(isFunc)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, is, test.ShouldResemble, stateBytes)
	})

	t.Run("propagates errors from the ekffacade", func(t *testing.T) {
		mockEKFFacade.InternalStateFunc = func(
			ctx context.Context,
			timeout time.Duration,
		) ([]byte, error) {
			return nil, errors.New("state error")
		}

		isFunc, err := svc.InternalState(context.Background())
		test.That(t, isFunc, test.ShouldBeNil)
		test.That(t, err, test.ShouldBeError, errors.New("state error"))
	})
}

func TestParsePoseCommand(t *testing.T) {
	t.Run("parses a complete pose map", func(t *testing.T) {
		pose, err := parsePoseCommand(map[string]interface{}{
			"x_m":       1.5,
			"y_m":       -2.0,
			"theta_rad": 0.25,
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pose, test.ShouldResemble,
			geometry.NewTransform2D(geometry.Vector2D{X: 1.5, Y: -2.0}, 0.25))
	})

	t.Run("rejects a command that is not a map", func(t *testing.T) {
		_, err := parsePoseCommand([]interface{}{1.0})
		test.That(t, err, test.ShouldBeError, errors.New("could not parse initial_pose as a map"))
	})

	t.Run("rejects a command with a missing field", func(t *testing.T) {
		_, err := parsePoseCommand(map[string]interface{}{"x_m": 1.0, "theta_rad": 0.5})
		test.That(t, err, test.ShouldBeError, errors.New("initial_pose is missing y_m"))
	})

	t.Run("rejects a command with a non numeric field", func(t *testing.T) {
		_, err := parsePoseCommand(map[string]interface{}{
			"x_m":       1.0,
			"y_m":       "two",
			"theta_rad": 0.5,
		})
		test.That(t, err, test.ShouldBeError, errors.New("could not parse initial_pose y_m as a float64"))
	})
}

func TestInitialPoseCommandRouting(t *testing.T) {
	svc, mockEKFFacade := makeTestService(t)

	var capturedPose geometry.Transform2D
	mockEKFFacade.SetPoseFunc = func(
		ctx context.Context,
		timeout time.Duration,
		pose geometry.Transform2D,
	) error {
		capturedPose = pose
		return nil
	}

	cmd := map[string]interface{}{
		InitialPoseCommand: map[string]interface{}{
			"x_m":       3.0,
			"y_m":       4.0,
			"theta_rad": 1.0,
		},
	}
	resp, err := svc.DoCommand(context.Background(), cmd)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp, test.ShouldResemble, map[string]interface{}{InitialPoseCommand: "success"})
	test.That(t, capturedPose, test.ShouldResemble,
		geometry.NewTransform2D(geometry.Vector2D{X: 3, Y: 4}, 1.0))
}
