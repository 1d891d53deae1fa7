// Package dataprocess manages code related to the data-saving process.
package dataprocess

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	pc "go.viam.com/rdk/pointcloud"

	"github.com/viam-modules/viam-ekf-slam/geometry"
)

const (
	// SlamTimeFormat is the timestamp format used in the dataprocess.
	SlamTimeFormat = "2006-01-02T15:04:05.0000Z"
)

// PoseRecord is one timestamped entry of the estimated trajectory.
type PoseRecord struct {
	Time     string  `json:"time"`
	XM       float64 `json:"x_m"`
	YM       float64 `json:"y_m"`
	ThetaRad float64 `json:"theta_rad"`
}

// CreateTimestampFilename creates an absolute filename with a primary sensor name and timestamp written
// into the filename.
func CreateTimestampFilename(dataDirectory, primarySensorName, fileType string, timeStamp time.Time) string {
	return filepath.Join(dataDirectory, primarySensorName+"_data_"+timeStamp.UTC().Format(SlamTimeFormat)+fileType)
}

// WritePCDToFile encodes the landmark map pointcloud and then saves it to the passed filename.
func WritePCDToFile(pointcloud pc.PointCloud, filename string) error {
	buf := new(bytes.Buffer)
	if err := pc.ToPCD(pointcloud, buf, pc.PCDBinary); err != nil {
		return err
	}
	return WriteBytesToFile(buf.Bytes(), filename)
}

// AppendPoseToFile appends a timestamped pose estimate to the trajectory log
// as one JSON document per line. The file is created if it does not exist.
func AppendPoseToFile(pose geometry.Transform2D, timeStamp time.Time, filename string) error {
	record := PoseRecord{
		Time:     timeStamp.UTC().Format(SlamTimeFormat),
		XM:       pose.Translation().X,
		YM:       pose.Translation().Y,
		ThetaRad: pose.Rotation(),
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	//nolint:gosec
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteBytesToFile writes the passed bytes to the passed filename.
func WriteBytesToFile(bytes []byte, filename string) error {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(bytes); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
