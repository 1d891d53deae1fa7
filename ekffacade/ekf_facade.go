// Package ekffacade serializes access to the SLAM estimator behind a single
// worker goroutine.
package ekffacade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/viam-modules/viam-ekf-slam/geometry"
	s "github.com/viam-modules/viam-ekf-slam/sensors"
)

var emptyRequestParams = map[RequestParamType]interface{}{}

// Initialize builds the slam core and starts the worker goroutine that owns it.
func (ef *EKFFacade) Initialize(ctx context.Context, timeout time.Duration, activeBackgroundWorkers *sync.WaitGroup) error {
	ef.startWorkerGoroutine(ctx, activeBackgroundWorkers)
	untyped, err := ef.request(ctx, initialize, emptyRequestParams, timeout)
	if err != nil {
		return err
	}

	core, ok := untyped.(*SlamCore)
	if !ok {
		return errors.New("unable to cast response from ekffacade to a slam core")
	}

	ef.core = core

	return nil
}

// Start begins a mapping session on the worker goroutine.
func (ef *EKFFacade) Start(ctx context.Context, timeout time.Duration) error {
	_, err := ef.request(ctx, start, emptyRequestParams, timeout)
	if err != nil {
		return err
	}

	return nil
}

// Stop ends the mapping session on the worker goroutine.
func (ef *EKFFacade) Stop(ctx context.Context, timeout time.Duration) error {
	_, err := ef.request(ctx, stop, emptyRequestParams, timeout)
	if err != nil {
		return err
	}

	return nil
}

// Terminate tears down the slam core on the worker goroutine.
func (ef *EKFFacade) Terminate(ctx context.Context, timeout time.Duration) error {
	_, err := ef.request(ctx, terminate, emptyRequestParams, timeout)
	if err != nil {
		return err
	}

	return nil
}

// AddWheelReading integrates one wheel encoder sample on the worker goroutine.
func (ef *EKFFacade) AddWheelReading(
	ctx context.Context,
	timeout time.Duration,
	wheelSensorName string,
	currentReading s.TimedWheelReadingResponse,
) error {
	requestParams := map[RequestParamType]interface{}{
		sensor:  wheelSensorName,
		reading: currentReading,
	}

	_, err := ef.request(ctx, addWheelReading, requestParams, timeout)
	if err != nil {
		return err
	}

	return nil
}

// AddLandmarkReading runs one filter cycle on the worker goroutine.
func (ef *EKFFacade) AddLandmarkReading(
	ctx context.Context,
	timeout time.Duration,
	landmarkSensorName string,
	currentReading s.TimedLandmarkReadingResponse,
) error {
	requestParams := map[RequestParamType]interface{}{
		sensor:  landmarkSensorName,
		reading: currentReading,
	}

	_, err := ef.request(ctx, addLandmarkReading, requestParams, timeout)
	if err != nil {
		return err
	}

	return nil
}

// Position returns the current pose estimate from the worker goroutine.
func (ef *EKFFacade) Position(ctx context.Context, timeout time.Duration) (Position, error) {
	untyped, err := ef.request(ctx, position, emptyRequestParams, timeout)
	if err != nil {
		return Position{}, err
	}

	pos, ok := untyped.(Position)
	if !ok {
		return Position{}, errors.New("unable to cast response from ekffacade to a position info struct")
	}

	return pos, nil
}

// InternalState returns the serialized estimator state from the worker goroutine.
func (ef *EKFFacade) InternalState(ctx context.Context, timeout time.Duration) ([]byte, error) {
	untyped, err := ef.request(ctx, internalState, emptyRequestParams, timeout)
	if err != nil {
		return []byte{}, err
	}

	internalState, ok := untyped.([]byte)
	if !ok {
		return []byte{}, errors.New("unable to cast response from ekffacade to a byte slice")
	}

	return internalState, nil
}

// PointCloudMap returns the landmark map as PCD bytes from the worker goroutine.
func (ef *EKFFacade) PointCloudMap(ctx context.Context, timeout time.Duration) ([]byte, error) {
	untyped, err := ef.request(ctx, pointCloudMap, emptyRequestParams, timeout)
	if err != nil {
		return []byte{}, err
	}

	pointCloud, ok := untyped.([]byte)
	if !ok {
		return []byte{}, errors.New("unable to cast response from ekffacade to a byte slice")
	}

	return pointCloud, nil
}

// SetPose teleports the estimator to the given pose on the worker goroutine.
func (ef *EKFFacade) SetPose(ctx context.Context, timeout time.Duration, pose geometry.Transform2D) error {
	requestParams := map[RequestParamType]interface{}{
		poseParam: pose,
	}

	_, err := ef.request(ctx, setPose, requestParams, timeout)
	if err != nil {
		return err
	}

	return nil
}

// RequestType defines the slam core operation that is being made.
type RequestType int64

const (
	// initialize represents building the slam core.
	initialize RequestType = iota
	// start represents beginning a mapping session.
	start
	// stop represents ending a mapping session.
	stop
	// terminate represents tearing down the slam core.
	terminate
	// addWheelReading represents integrating a wheel encoder sample.
	addWheelReading
	// addLandmarkReading represents running a filter predict/update cycle.
	addLandmarkReading
	// position represents querying the pose estimate.
	position
	// internalState represents serializing the estimator state.
	internalState
	// pointCloudMap represents rendering the landmark map.
	pointCloudMap
	// setPose represents teleporting the estimator.
	setPose
)

// RequestParamType defines the type being provided as input to the work.
type RequestParamType int64

const (
	// sensor represents a sensor name input.
	sensor RequestParamType = iota
	// reading represents a sensor reading input.
	reading
	// poseParam represents a pose input.
	poseParam
)

// Response defines the result of one piece of work that can be put on the result channel.
type Response struct {
	result interface{}
	err    error
}

/*
EKFFacade exists to ensure that only one goroutine is mutating the estimator at
a time, so readings are folded in strictly in arrival order.
*/
type EKFFacade struct {
	coreConfig  CoreConfig
	core        coreInterface
	requestChan chan Request
}

// RequestInterface defines the functionality of a Request.
// It should not be used outside of this package but needs to be public for testing purposes.
type RequestInterface interface {
	doWork(q *EKFFacade) (interface{}, error)
}

// Interface defines the functionality of an EKFFacade instance.
// It should not be used outside of this package but needs to be public for testing purposes.
type Interface interface {
	request(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{}, timeout time.Duration,
	) (interface{}, error)
	startWorkerGoroutine(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	Initialize(
		ctx context.Context,
		timeout time.Duration,
		activeBackgroundWorkers *sync.WaitGroup,
	) error
	Start(
		ctx context.Context,
		timeout time.Duration,
	) error
	Stop(
		ctx context.Context,
		timeout time.Duration,
	) error
	Terminate(
		ctx context.Context,
		timeout time.Duration,
	) error
	AddWheelReading(
		ctx context.Context,
		timeout time.Duration,
		wheelSensorName string,
		currentReading s.TimedWheelReadingResponse,
	) error
	AddLandmarkReading(
		ctx context.Context,
		timeout time.Duration,
		landmarkSensorName string,
		currentReading s.TimedLandmarkReadingResponse,
	) error
	Position(
		ctx context.Context,
		timeout time.Duration,
	) (Position, error)
	InternalState(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	PointCloudMap(
		ctx context.Context,
		timeout time.Duration,
	) ([]byte, error)
	SetPose(
		ctx context.Context,
		timeout time.Duration,
		pose geometry.Transform2D,
	) error
}

// Request defines all of the necessary pieces to dispatch work to the worker goroutine.
type Request struct {
	responseChan  chan Response
	requestType   RequestType
	requestParams map[RequestParamType]interface{}
}

// New instantiates the EKFFacade struct which limits calls into the estimator.
func New(coreConfig CoreConfig) EKFFacade {
	return EKFFacade{
		coreConfig:  coreConfig,
		requestChan: make(chan Request),
	}
}

// doWork provides the logic to call the correct slam core functions with the correct input.
func (r *Request) doWork(
	ef *EKFFacade,
) (interface{}, error) {
	switch r.requestType {
	case initialize:
		return NewSlamCore(ef.coreConfig)
	case start:
		return nil, ef.core.start()
	case stop:
		return nil, ef.core.stop()
	case terminate:
		return nil, ef.core.terminate()
	case addWheelReading:
		wheelSensorName, ok := r.requestParams[sensor].(string)
		if !ok {
			return nil, errors.New("could not cast inputted wheel sensor name to string")
		}

		currentReading, ok := r.requestParams[reading].(s.TimedWheelReadingResponse)
		if !ok {
			return nil, errors.New("could not cast inputted reading to type sensors.TimedWheelReadingResponse")
		}

		return nil, ef.core.addWheelReading(wheelSensorName, currentReading)
	case addLandmarkReading:
		landmarkSensorName, ok := r.requestParams[sensor].(string)
		if !ok {
			return nil, errors.New("could not cast inputted landmark sensor name to string")
		}

		currentReading, ok := r.requestParams[reading].(s.TimedLandmarkReadingResponse)
		if !ok {
			return nil, errors.New("could not cast inputted reading to type sensors.TimedLandmarkReadingResponse")
		}

		return nil, ef.core.addLandmarkReading(landmarkSensorName, currentReading)
	case position:
		return ef.core.position()
	case internalState:
		return ef.core.internalState()
	case pointCloudMap:
		return ef.core.pointCloudMap()
	case setPose:
		pose, ok := r.requestParams[poseParam].(geometry.Transform2D)
		if !ok {
			return nil, errors.New("could not cast inputted pose to type geometry.Transform2D")
		}

		return nil, ef.core.setPose(pose)
	}
	return nil, fmt.Errorf("no worktype found for: %v", r.requestType)
}

// request wraps calls into the worker goroutine. This function requires the
// caller to know which RequestTypes require casting to which response values.
func (ef *EKFFacade) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctxParent, timeout)
	defer cancel()

	req := Request{
		responseChan:  make(chan Response, 1),
		requestType:   requestType,
		requestParams: inputs,
	}

	// wait until the worker can accept the request (and timeout if needed)
	select {
	case ef.requestChan <- req:
		select {
		case response := <-req.responseChan:
			return response.result, response.err
		case <-ctx.Done():
			msg := "timeout reading from the slam core"
			return nil, multierr.Combine(errors.New(msg), ctx.Err())
		}
	case <-ctx.Done():
		msg := "timeout writing to the slam core"
		return nil, multierr.Combine(errors.New(msg), ctx.Err())
	}
}

// startWorkerGoroutine starts the background goroutine that is responsible for
// ensuring the estimator is only ever mutated from one goroutine.
func (ef *EKFFacade) startWorkerGoroutine(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case workToDo := <-ef.requestChan:
				result, err := workToDo.doWork(ef)
				workToDo.responseChan <- Response{result: result, err: err}
			}
		}
	}()
}
