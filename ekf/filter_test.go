package ekf

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/viam-modules/viam-ekf-slam/geometry"
)

const testTolerance = 1e-9

func testConfig() Config {
	return Config{
		MaxLandmarks:     5,
		ProcessNoise:     0.1,
		MeasurementNoise: 0.1,
	}
}

func TestNewFilter(t *testing.T) {
	t.Run("rejects non-positive landmark capacity", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxLandmarks = 0
		_, err := NewFilter(cfg)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("rejects negative process noise", func(t *testing.T) {
		cfg := testConfig()
		cfg.ProcessNoise = -1
		_, err := NewFilter(cfg)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("rejects non-positive measurement noise", func(t *testing.T) {
		cfg := testConfig()
		cfg.MeasurementNoise = 0
		_, err := NewFilter(cfg)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("seeds pose and landmark uncertainty", func(t *testing.T) {
		cfg := testConfig()
		cfg.InitialPose = geometry.NewTransform2D(geometry.Vector2D{X: 1.5, Y: -2}, math.Pi/4)
		filter, err := NewFilter(cfg)
		test.That(t, err, test.ShouldBeNil)

		pose := filter.Pose()
		test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 1.5, testTolerance)
		test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, -2, testTolerance)
		test.That(t, pose.Rotation(), test.ShouldAlmostEqual, math.Pi/4, testTolerance)

		covar := filter.Covariance()
		for i := 0; i < 3; i++ {
			test.That(t, covar.At(i, i), test.ShouldEqual, 0)
		}
		for i := 3; i < 3+2*cfg.MaxLandmarks; i++ {
			test.That(t, covar.At(i, i), test.ShouldEqual, 1e9)
		}
		test.That(t, filter.Landmarks(), test.ShouldHaveLength, 0)
	})
}

func TestPredict(t *testing.T) {
	t.Run("zero twist leaves the mean alone and adds process noise", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		filter.Predict(geometry.Twist2D{})

		pose := filter.Pose()
		test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 0, testTolerance)
		test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 0, testTolerance)
		test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 0, testTolerance)

		covar := filter.Covariance()
		for i := 0; i < 3; i++ {
			test.That(t, covar.At(i, i), test.ShouldAlmostEqual, 0.1, testTolerance)
		}
		test.That(t, covar.At(3, 3), test.ShouldAlmostEqual, 1e9, testTolerance)
	})

	t.Run("straight twist translates along the heading", func(t *testing.T) {
		cfg := testConfig()
		cfg.InitialPose = geometry.NewTransform2D(geometry.Vector2D{}, math.Pi/2)
		filter, err := NewFilter(cfg)
		test.That(t, err, test.ShouldBeNil)

		filter.Predict(geometry.Twist2D{X: 2})

		pose := filter.Pose()
		test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 0, testTolerance)
		test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 2, testTolerance)
		test.That(t, pose.Rotation(), test.ShouldAlmostEqual, math.Pi/2, testTolerance)
	})

	t.Run("arc twist matches exact twist integration", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		twist := geometry.Twist2D{Omega: math.Pi / 2, X: 1}
		filter.Predict(twist)

		expected := geometry.IntegrateTwist(twist)
		pose := filter.Pose()
		test.That(t, pose.Translation().X, test.ShouldAlmostEqual, expected.Translation().X, testTolerance)
		test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, expected.Translation().Y, testTolerance)
		test.That(t, pose.Rotation(), test.ShouldAlmostEqual, math.Pi/2, testTolerance)
	})

	t.Run("repeated prediction grows pose uncertainty", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		filter.Predict(geometry.Twist2D{X: 1})
		first := filter.Covariance().At(1, 1)
		filter.Predict(geometry.Twist2D{X: 1})
		second := filter.Covariance().At(1, 1)
		test.That(t, second, test.ShouldBeGreaterThan, first)
	})
}

func TestUpdate(t *testing.T) {
	t.Run("rejects out-of-range landmark ids", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		test.That(t, filter.Update(1, 0, -1), test.ShouldNotBeNil)
		test.That(t, filter.Update(1, 0, 5), test.ShouldNotBeNil)
	})

	t.Run("rejects a landmark coincident with the robot", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		test.That(t, filter.Update(0, 0, 0), test.ShouldNotBeNil)
	})

	t.Run("first observation projects the measurement from the pose", func(t *testing.T) {
		cfg := testConfig()
		cfg.InitialPose = geometry.NewTransform2D(geometry.Vector2D{X: 1, Y: 2}, math.Pi/2)
		filter, err := NewFilter(cfg)
		test.That(t, err, test.ShouldBeNil)

		// landmark 3 ahead of the robot in body frame, pose heading pi/2
		test.That(t, filter.Update(3, 0, 1), test.ShouldBeNil)

		position, seen := filter.Landmark(1)
		test.That(t, seen, test.ShouldBeTrue)
		test.That(t, position.X, test.ShouldAlmostEqual, 1, testTolerance)
		test.That(t, position.Y, test.ShouldAlmostEqual, 5, testTolerance)

		_, seen = filter.Landmark(0)
		test.That(t, seen, test.ShouldBeFalse)
	})

	t.Run("first observation leaves the pose unchanged", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		// with an exact pose prior and a measurement equal to the
		// initialization, the innovation is zero
		test.That(t, filter.Update(2, 1, 0), test.ShouldBeNil)

		pose := filter.Pose()
		test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 0, testTolerance)
		test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, 0, testTolerance)
		test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 0, testTolerance)
	})

	t.Run("initializes a landmark at the map origin", func(t *testing.T) {
		cfg := testConfig()
		cfg.InitialPose = geometry.NewTransform2D(geometry.Vector2D{X: 2, Y: 0}, math.Pi)
		filter, err := NewFilter(cfg)
		test.That(t, err, test.ShouldBeNil)

		// robot at (2, 0) facing the origin, landmark 2 ahead
		test.That(t, filter.Update(2, 0, 0), test.ShouldBeNil)

		position, seen := filter.Landmark(0)
		test.That(t, seen, test.ShouldBeTrue)
		test.That(t, position.X, test.ShouldAlmostEqual, 0, testTolerance)
		test.That(t, position.Y, test.ShouldAlmostEqual, 0, testTolerance)

		// a second observation must correct, not re-initialize
		test.That(t, filter.Update(2.5, 0, 0), test.ShouldBeNil)
		position, seen = filter.Landmark(0)
		test.That(t, seen, test.ShouldBeTrue)
		test.That(t, position.X, test.ShouldNotAlmostEqual, 0, testTolerance)
	})

	t.Run("updating one landmark does not move the others", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		test.That(t, filter.Update(1, 1, 0), test.ShouldBeNil)
		test.That(t, filter.Update(-1, 2, 3), test.ShouldBeNil)
		before, _ := filter.Landmark(0)

		test.That(t, filter.Update(-1.1, 2.1, 3), test.ShouldBeNil)

		after, _ := filter.Landmark(0)
		test.That(t, after.X, test.ShouldAlmostEqual, before.X, testTolerance)
		test.That(t, after.Y, test.ShouldAlmostEqual, before.Y, testTolerance)
	})

	t.Run("repeated observation shrinks landmark uncertainty", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		test.That(t, filter.Update(4, 3, 2), test.ShouldBeNil)
		first := filter.Covariance().At(7, 7)
		test.That(t, filter.Update(4, 3, 2), test.ShouldBeNil)
		second := filter.Covariance().At(7, 7)
		test.That(t, second, test.ShouldBeLessThan, first)
	})

	t.Run("covariance stays symmetric through a full cycle", func(t *testing.T) {
		filter, err := NewFilter(testConfig())
		test.That(t, err, test.ShouldBeNil)

		filter.Predict(geometry.Twist2D{Omega: 0.3, X: 0.5})
		test.That(t, filter.Update(2, -1, 1), test.ShouldBeNil)
		filter.Predict(geometry.Twist2D{X: 0.2})
		test.That(t, filter.Update(1.8, -1.1, 1), test.ShouldBeNil)

		covar := filter.Covariance()
		rows, cols := covar.Dims()
		test.That(t, rows, test.ShouldEqual, cols)
		for i := 0; i < rows; i++ {
			for j := i + 1; j < cols; j++ {
				test.That(t, covar.At(i, j), test.ShouldAlmostEqual, covar.At(j, i), testTolerance)
			}
		}
	})
}

func TestMeasurementBias(t *testing.T) {
	cfg := testConfig()
	cfg.MeasurementBias = [2]float64{0.1, 0.1}
	filter, err := NewFilter(cfg)
	test.That(t, err, test.ShouldBeNil)

	// the slot initializes from the raw measurement, so the biased
	// observation produces a non-zero innovation that drags the estimate
	test.That(t, filter.Update(3, 0, 0), test.ShouldBeNil)
	position, seen := filter.Landmark(0)
	test.That(t, seen, test.ShouldBeTrue)
	test.That(t, position.X, test.ShouldNotAlmostEqual, 3, 1e-6)
}

func TestSetPose(t *testing.T) {
	filter, err := NewFilter(testConfig())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, filter.Update(2, 1, 0), test.ShouldBeNil)
	before, _ := filter.Landmark(0)

	filter.SetPose(geometry.NewTransform2D(geometry.Vector2D{X: 4, Y: -3}, 1))

	pose := filter.Pose()
	test.That(t, pose.Translation().X, test.ShouldAlmostEqual, 4, testTolerance)
	test.That(t, pose.Translation().Y, test.ShouldAlmostEqual, -3, testTolerance)
	test.That(t, pose.Rotation(), test.ShouldAlmostEqual, 1, testTolerance)

	after, _ := filter.Landmark(0)
	test.That(t, after, test.ShouldResemble, before)
}

func TestState(t *testing.T) {
	cfg := testConfig()
	cfg.InitialPose = geometry.NewTransform2D(geometry.Vector2D{X: 1, Y: 2}, 0.5)
	filter, err := NewFilter(cfg)
	test.That(t, err, test.ShouldBeNil)

	state := filter.State()
	test.That(t, state, test.ShouldHaveLength, 3+2*cfg.MaxLandmarks)
	test.That(t, state[0], test.ShouldAlmostEqual, 0.5, testTolerance)
	test.That(t, state[1], test.ShouldAlmostEqual, 1, testTolerance)
	test.That(t, state[2], test.ShouldAlmostEqual, 2, testTolerance)

	test.That(t, filter.MaxLandmarks(), test.ShouldEqual, cfg.MaxLandmarks)
}
