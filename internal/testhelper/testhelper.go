// Package testhelper provides helper functions for constructing the slam
// service with injected sensors. It is used across the tests in the
// viam-ekf-slam repo.
package testhelper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/slam"
	"go.viam.com/test"

	viamekfslam "github.com/viam-modules/viam-ekf-slam"
	vcConfig "github.com/viam-modules/viam-ekf-slam/config"
	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

const testEKFFacadeTimeout = 5 * time.Second

// CreateSLAMService creates a slam service for testing. The encoder and
// landmark sensor names in cfg select injected test fixtures.
func CreateSLAMService(
	t *testing.T,
	cfg *vcConfig.Config,
	logger logging.Logger,
) (slam.Service, error) {
	t.Helper()

	ctx := context.Background()
	cfgService := resource.Config{Name: getTestName(), API: slam.API, Model: viamekfslam.Model}
	cfgService.ConvertedAttributes = cfg

	sensorDeps, err := cfg.Validate("path")
	if err != nil {
		return nil, err
	}
	expectedDeps := []string{cfg.Encoders["left"], cfg.Encoders["right"], cfg.LandmarkSensor["name"]}
	test.That(t, sensorDeps, test.ShouldResemble, expectedDeps)

	deps := s.SetupDeps(
		s.TestSensor(cfg.Encoders["left"]),
		s.TestSensor(cfg.Encoders["right"]),
		s.TestSensor(cfg.LandmarkSensor["name"]),
	)

	svc, err := viamekfslam.New(
		ctx,
		deps,
		cfgService,
		logger,
		testEKFFacadeTimeout,
		nil,
		nil,
	)
	if err != nil {
		test.That(t, svc, test.ShouldBeNil)
		return nil, err
	}

	test.That(t, svc, test.ShouldNotBeNil)

	return svc, nil
}

func getTestName() string {
	id := uuid.New()
	return fmt.Sprintf("test-%s", id)
}
