// Package ekffacade is used to mock an ekffacade.
package ekffacade

import (
	"context"
	"sync"
	"time"

	"github.com/viam-modules/viam-ekf-slam/geometry"
	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

// RequestMock represents a fake instance of a request.
type RequestMock struct {
	Request
	doWorkFunc func(ef *EKFFacade) (interface{}, error)
}

// doWork calls the injected doWorkFunc or the real version.
func (r *RequestMock) doWork(ef *EKFFacade) (interface{}, error) {
	if r.doWorkFunc == nil {
		return r.Request.doWork(ef)
	}
	return r.doWorkFunc(ef)
}

// Mock represents a fake instance of an ekffacade.
type Mock struct {
	EKFFacade
	requestFunc func(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{},
		timeout time.Duration,
	) (interface{}, error)
	startWorkerGoroutineFunc func(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	InitializeFunc func(
		ctx context.Context,
		timeout time.Duration, activeBackgroundWorkers *sync.WaitGroup,
	) error
	StartFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
	StopFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
	TerminateFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
	AddWheelReadingFunc func(
		ctx context.Context,
		timeout time.Duration,
		wheelSensorName string,
		currentReading s.TimedWheelReadingResponse,
	) error
	AddLandmarkReadingFunc func(
		ctx context.Context,
		timeout time.Duration,
		landmarkSensorName string,
		currentReading s.TimedLandmarkReadingResponse,
	) error
	PositionFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (Position, error)
	InternalStateFunc func(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	PointCloudMapFunc func(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	SetPoseFunc func(
		ctx context.Context,
		timeout time.Duration,
		pose geometry.Transform2D,
	) error
}

// request calls the injected requestFunc or the real version.
func (ef *Mock) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	if ef.requestFunc == nil {
		return ef.EKFFacade.request(ctxParent, requestType, inputs, timeout)
	}
	return ef.requestFunc(ctxParent, requestType, inputs, timeout)
}

// startWorkerGoroutine calls the injected startWorkerGoroutineFunc or the real version.
func (ef *Mock) startWorkerGoroutine(
	ctx context.Context,
	activeBackgroundWorkers *sync.WaitGroup,
) {
	if ef.startWorkerGoroutineFunc == nil {
		ef.EKFFacade.startWorkerGoroutine(ctx, activeBackgroundWorkers)
		return
	}
	ef.startWorkerGoroutineFunc(ctx, activeBackgroundWorkers)
}

// Initialize calls the injected InitializeFunc or the real version.
func (ef *Mock) Initialize(
	ctx context.Context,
	timeout time.Duration,
	activeBackgroundWorkers *sync.WaitGroup,
) error {
	if ef.InitializeFunc == nil {
		return ef.EKFFacade.Initialize(ctx, timeout, activeBackgroundWorkers)
	}
	return ef.InitializeFunc(ctx, timeout, activeBackgroundWorkers)
}

// Start calls the injected StartFunc or the real version.
func (ef *Mock) Start(
	ctx context.Context,
	timeout time.Duration,
) error {
	if ef.StartFunc == nil {
		return ef.EKFFacade.Start(ctx, timeout)
	}
	return ef.StartFunc(ctx, timeout)
}

// Stop calls the injected StopFunc or the real version.
func (ef *Mock) Stop(
	ctx context.Context,
	timeout time.Duration,
) error {
	if ef.StopFunc == nil {
		return ef.EKFFacade.Stop(ctx, timeout)
	}
	return ef.StopFunc(ctx, timeout)
}

// Terminate calls the injected TerminateFunc or the real version.
func (ef *Mock) Terminate(
	ctx context.Context,
	timeout time.Duration,
) error {
	if ef.TerminateFunc == nil {
		return ef.EKFFacade.Terminate(ctx, timeout)
	}
	return ef.TerminateFunc(ctx, timeout)
}

// AddWheelReading calls the injected AddWheelReadingFunc or the real version.
func (ef *Mock) AddWheelReading(
	ctx context.Context,
	timeout time.Duration,
	wheelSensorName string,
	currentReading s.TimedWheelReadingResponse,
) error {
	if ef.AddWheelReadingFunc == nil {
		return ef.EKFFacade.AddWheelReading(ctx, timeout, wheelSensorName, currentReading)
	}
	return ef.AddWheelReadingFunc(ctx, timeout, wheelSensorName, currentReading)
}

// AddLandmarkReading calls the injected AddLandmarkReadingFunc or the real version.
func (ef *Mock) AddLandmarkReading(
	ctx context.Context,
	timeout time.Duration,
	landmarkSensorName string,
	currentReading s.TimedLandmarkReadingResponse,
) error {
	if ef.AddLandmarkReadingFunc == nil {
		return ef.EKFFacade.AddLandmarkReading(ctx, timeout, landmarkSensorName, currentReading)
	}
	return ef.AddLandmarkReadingFunc(ctx, timeout, landmarkSensorName, currentReading)
}

// Position calls the injected PositionFunc or the real version.
func (ef *Mock) Position(
	ctx context.Context,
	timeout time.Duration,
) (Position, error) {
	if ef.PositionFunc == nil {
		return ef.EKFFacade.Position(ctx, timeout)
	}
	return ef.PositionFunc(ctx, timeout)
}

// InternalState calls the injected InternalStateFunc or the real version.
func (ef *Mock) InternalState(
	ctx context.Context,
	timeout time.Duration,
) ([]byte, error) {
	if ef.InternalStateFunc == nil {
		return ef.EKFFacade.InternalState(ctx, timeout)
	}
	return ef.InternalStateFunc(ctx, timeout)
}

// PointCloudMap calls the injected PointCloudMapFunc or the real version.
func (ef *Mock) PointCloudMap(
	ctx context.Context,
	timeout time.Duration,
) ([]byte, error) {
	if ef.PointCloudMapFunc == nil {
		return ef.EKFFacade.PointCloudMap(ctx, timeout)
	}
	return ef.PointCloudMapFunc(ctx, timeout)
}

// SetPose calls the injected SetPoseFunc or the real version.
func (ef *Mock) SetPose(
	ctx context.Context,
	timeout time.Duration,
	pose geometry.Transform2D,
) error {
	if ef.SetPoseFunc == nil {
		return ef.EKFFacade.SetPose(ctx, timeout, pose)
	}
	return ef.SetPoseFunc(ctx, timeout, pose)
}
