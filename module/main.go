// Package main is a module with an EKF SLAM service model.
package main

import (
	"context"
	"strings"

	"go.uber.org/zap/zapcore"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/services/slam"
	"go.viam.com/utils"

	viamekfslam "github.com/viam-modules/viam-ekf-slam"
	"github.com/viam-modules/viam-ekf-slam/telemetry"
)

// Versioning variables which are replaced by LD flags.
var (
	Version     = "development"
	GitRevision = ""
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("ekfSlamModule"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var versionFields []interface{}
	if Version != "" {
		versionFields = append(versionFields, "version", Version)
	}
	if GitRevision != "" {
		versionFields = append(versionFields, "git_rev", GitRevision)
	}
	if len(versionFields) != 0 {
		logger.Infow(viamekfslam.Model.String(), versionFields...)
	} else {
		logger.Info(viamekfslam.Model.String() + " built from source; version unknown")
	}

	if len(args) == 2 && strings.HasSuffix(args[1], "-version") {
		return nil
	}

	if logger.Level() == zapcore.DebugLevel {
		exporter, err := telemetry.Setup()
		if err != nil {
			return err
		}
		defer exporter.Stop()
	}

	// Instantiate the module
	ekfModule, err := module.NewModuleFromArgs(ctx)
	if err != nil {
		return err
	}

	// Add the EKF SLAM model to the module
	if err = ekfModule.AddModelFromRegistry(ctx, slam.API, viamekfslam.Model); err != nil {
		return err
	}

	// Start the module
	err = ekfModule.Start(ctx)
	defer ekfModule.Close(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
