// Package postprocess contains functionality to postprocess landmark maps
package postprocess

import (
	"bytes"
	"errors"
	"image/color"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/pointcloud"
)

// Instruction describes the action of the postprocess step.
type Instruction int

const (
	// Add is the instruction for adding landmarks.
	Add Instruction = iota
	// Remove is the instruction for removing landmarks.
	Remove = iota
)

const (
	fullConfidence = 100
	removalRadius  = 100 // mm
	metersToMM     = 1000.0
	xKey           = "X"
	yKey           = "Y"

	// ToggleCommand can be used to turn postprocessing on and off.
	ToggleCommand = "postprocess_toggle"
	// AddCommand can be used to add landmarks to the map.
	AddCommand = "postprocess_add"
	// RemoveCommand can be used to remove landmarks from the map.
	RemoveCommand = "postprocess_remove"
	// UndoCommand can be used to undo last postprocessing step.
	UndoCommand = "postprocess_undo"
)

var (
	// ErrPointsNotASlice denotes that the landmarks have not been properly formatted as a slice.
	ErrPointsNotASlice = errors.New("could not parse provided landmarks as a slice")

	// ErrPointNotAMap denotes that a landmark has not been properly formatted as a map.
	ErrPointNotAMap = errors.New("could not parse provided landmark as a map")

	// ErrXNotProvided denotes that an X value was not provided.
	ErrXNotProvided = errors.New("X not provided")

	// ErrXNotFloat64 denotes that an X value is not a float64.
	ErrXNotFloat64 = errors.New("could not parse provided X as a float64")

	// ErrYNotProvided denotes that a Y value was not provided.
	ErrYNotProvided = errors.New("Y not provided")

	// ErrYNotFloat64 denotes that an Y value is not a float64.
	ErrYNotFloat64 = errors.New("could not parse provided Y as a float64")

	// ErrRemovingPoints denotes that something unexpected happened during removal.
	ErrRemovingPoints = errors.New("unexpected number of landmarks after removal")
)

// Task can be used to construct a postprocessing step.
type Task struct {
	Instruction Instruction
	Points      []r3.Vector
}

// ParseDoCommand parses postprocessing DoCommands into Tasks. Landmark
// coordinates arrive in meters and are held in millimeters to match the
// map representation.
func ParseDoCommand(
	unstructuredLandmarks interface{},
	instruction Instruction,
) (Task, error) {
	landmarkSlice, ok := unstructuredLandmarks.([]interface{})
	if !ok {
		return Task{}, ErrPointsNotASlice
	}

	task := Task{Instruction: instruction}
	for _, landmark := range landmarkSlice {
		landmarkMap, ok := landmark.(map[string]interface{})
		if !ok {
			return Task{}, ErrPointNotAMap
		}

		x, ok := landmarkMap[xKey]
		if !ok {
			return Task{}, ErrXNotProvided
		}

		xFloat, ok := x.(float64)
		if !ok {
			return Task{}, ErrXNotFloat64
		}

		y, ok := landmarkMap[yKey]
		if !ok {
			return Task{}, ErrYNotProvided
		}

		yFloat, ok := y.(float64)
		if !ok {
			return Task{}, ErrYNotFloat64
		}

		task.Points = append(task.Points, r3.Vector{X: xFloat * metersToMM, Y: yFloat * metersToMM})
	}
	return task, nil
}

/*
UpdatePointCloud iterates through a list of tasks and adds or removes landmarks
from data and writes the updated map to updatedData.
*/
func UpdatePointCloud(
	data []byte,
	updatedData *[]byte,
	tasks []Task,
) error {
	*updatedData = append(*updatedData, data...)

	// iterate through tasks and add or remove landmarks
	for _, task := range tasks {
		switch task.Instruction {
		case Add:
			err := updatePointCloudWithAddedPoints(updatedData, task.Points)
			if err != nil {
				return err
			}
		case Remove:
			err := updatePointCloudWithRemovedPoints(updatedData, task.Points)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func updatePointCloudWithAddedPoints(updatedData *[]byte, points []r3.Vector) error {
	reader := bytes.NewReader(*updatedData)
	pc, err := pointcloud.ReadPCD(reader)
	if err != nil {
		return err
	}

	for _, point := range points {
		/*
			Viam expects pointcloud data with fields "x y z" or "x y z rgb", and for
			this to be specified in the pointcloud header in the FIELDS entry. If color
			data is included in the pointcloud, Viam's services assume that the color
			value encodes a confidence score for that data point. Viam expects the
			confidence score to be encoded in the blue parameter of the RGB value, on a
			scale from 1-100.
		*/
		err := pc.Set(point, pointcloud.NewColoredData(color.NRGBA{B: fullConfidence, R: fullConfidence}))
		if err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	err = pointcloud.ToPCD(pc, &buf, pointcloud.PCDBinary)
	if err != nil {
		return err
	}

	*updatedData = make([]byte, buf.Len())
	updatedReader := bytes.NewReader(buf.Bytes())
	_, err = updatedReader.Read(*updatedData)
	if err != nil {
		return err
	}

	return nil
}

func updatePointCloudWithRemovedPoints(updatedData *[]byte, points []r3.Vector) error {
	reader := bytes.NewReader(*updatedData)
	pc, err := pointcloud.ReadPCD(reader)
	if err != nil {
		return err
	}

	updatedPC := pointcloud.NewWithPrealloc(pc.Size() - len(points))
	pointsVisited := 0

	filterRemovedPoints := func(p r3.Vector, d pointcloud.Data) bool {
		pointsVisited++

		// remove all landmarks within the removalRadius from the removed points
		for _, point := range points {
			if point.Distance(p) <= removalRadius {
				return true
			}
		}

		err := updatedPC.Set(p, d)
		// end early if point cannot be set
		return err == nil
	}

	pc.Iterate(0, 0, filterRemovedPoints)

	// confirm iterate did not have to end early
	if pc.Size() != pointsVisited {
		return ErrRemovingPoints
	}

	buf := bytes.Buffer{}
	err = pointcloud.ToPCD(updatedPC, &buf, pointcloud.PCDBinary)
	if err != nil {
		return err
	}

	*updatedData = make([]byte, buf.Len())
	updatedReader := bytes.NewReader(buf.Bytes())
	_, err = updatedReader.Read(*updatedData)
	if err != nil {
		return err
	}

	return nil
}
